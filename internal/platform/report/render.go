package report

import (
	"bytes"
	"fmt"

	"github.com/signintech/gopdf"
)

// DefaultFontPaths are the usual locations of DejaVuSans, which covers the
// Latin and Arabic-script text patients send.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	fontFamily = "DejaVu"
	pageBottom = 800
	textWidth  = 500
	marginLeft = 40
	marginTop  = 40
)

// PDFRenderer draws a Document on A4 pages.
type PDFRenderer struct {
	fontPaths []string
}

// NewPDFRenderer tries fontPath first, then DefaultFontPaths.
func NewPDFRenderer(fontPath string) *PDFRenderer {
	paths := DefaultFontPaths
	if fontPath != "" {
		paths = append([]string{fontPath}, DefaultFontPaths...)
	}
	return &PDFRenderer{fontPaths: paths}
}

func (r *PDFRenderer) Render(doc Document) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.SetMargins(marginLeft, marginTop, marginLeft, marginTop)
	pdf.AddPage()

	var fontErr error
	loaded := false
	for _, path := range r.fontPaths {
		if err := pdf.AddTTFFont(fontFamily, path); err != nil {
			fontErr = err
			continue
		}
		loaded = true
		break
	}
	if !loaded {
		return nil, fmt.Errorf("load report font: %w", fontErr)
	}

	w := &pageWriter{pdf: &pdf}
	w.text(18, doc.Title)
	w.gap(20)
	for _, s := range doc.Sections {
		w.text(14, s.Title)
		w.gap(4)
		for _, row := range s.Rows {
			w.wrapped(11, row)
		}
		w.gap(12)
	}
	if w.err != nil {
		return nil, w.err
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// pageWriter adds pages as text runs past the bottom margin. The first
// error sticks and turns later calls into no-ops.
type pageWriter struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *pageWriter) text(size float64, s string) {
	if w.err != nil {
		return
	}
	if w.err = w.pdf.SetFont(fontFamily, "", size); w.err != nil {
		return
	}
	w.breakIfNeeded(size)
	w.err = w.pdf.Cell(nil, s)
	w.pdf.Br(size + 4)
}

func (w *pageWriter) wrapped(size float64, s string) {
	if w.err != nil {
		return
	}
	if w.err = w.pdf.SetFont(fontFamily, "", size); w.err != nil {
		return
	}
	lines, err := w.pdf.SplitText(s, textWidth)
	if err != nil {
		lines = []string{s}
	}
	for _, l := range lines {
		w.breakIfNeeded(size)
		if w.err = w.pdf.Cell(nil, l); w.err != nil {
			return
		}
		w.pdf.Br(size + 3)
	}
}

func (w *pageWriter) gap(h float64) {
	if w.err == nil {
		w.pdf.Br(h)
	}
}

func (w *pageWriter) breakIfNeeded(size float64) {
	if w.pdf.GetY()+size > pageBottom {
		w.pdf.AddPage()
	}
}
