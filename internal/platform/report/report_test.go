package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/domain/intake"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func completedRecord(t *testing.T) *intake.Record {
	t.Helper()
	rec := intake.NewRecord("patient-1", testNow)
	rec.Identity = intake.Identity{Name: "Ayesha", Age: "28", Contact: "03001234567"}
	rec.Phase = intake.PhaseCompleted
	rec.DetectedIssue = intake.IssueBleeding
	rec.AlertLevel = intake.AlertRed
	rec.AssessmentComplete = true
	rec.Assessment = &intake.Assessment{
		AlertLevel:         intake.AlertRed,
		Summary:            "Bleeding in the second trimester.",
		ClinicalImpression: "Possible placental cause.",
		Recommendations:    []string{"Go to the hospital now"},
		AssessedAt:         testNow,
	}
	rec.Skipped = []string{"medical.allergies"}
	sets := [][2]string{
		{"problem_description", "bleeding since morning"},
		{intake.IssueFieldPath(intake.IssueBleeding, "onset"), "this morning"},
		{"demographics.marriage_duration", "5 years"},
		{"current_pregnancy.lmp_date", intake.NotRecalled},
		{"current_pregnancy.gestational_weeks", "22"},
		{"current_pregnancy.gestational_days", "3"},
	}
	for _, kv := range sets {
		if err := rec.Set(kv[0], kv[1]); err != nil {
			t.Fatalf("set %s: %v", kv[0], err)
		}
	}
	return rec
}

func sectionByTitle(doc Document, title string) (Section, bool) {
	for _, s := range doc.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return Section{}, false
}

func contains(rows []string, sub string) bool {
	for _, r := range rows {
		if strings.Contains(r, sub) {
			return true
		}
	}
	return false
}

func TestBuild(t *testing.T) {
	doc := Build(completedRecord(t), intake.DefaultCatalog(), intake.DefaultIssues())

	var titles []string
	for _, s := range doc.Sections {
		titles = append(titles, s.Title)
	}
	want := []string{"Patient", "Assessment", "Chief complaint", "Demographics", "Current pregnancy", "Not answered"}
	if strings.Join(titles, "|") != strings.Join(want, "|") {
		t.Fatalf("sections = %v, want %v", titles, want)
	}

	patient, _ := sectionByTitle(doc, "Patient")
	if !contains(patient.Rows, "Name: Ayesha") || !contains(patient.Rows, "Visit: 1") {
		t.Errorf("patient rows %v", patient.Rows)
	}
	assessment, _ := sectionByTitle(doc, "Assessment")
	if !contains(assessment.Rows, "RED") || !contains(assessment.Rows, "- Go to the hospital now") {
		t.Errorf("assessment rows %v", assessment.Rows)
	}
	complaint, _ := sectionByTitle(doc, "Chief complaint")
	if !contains(complaint.Rows, "Category: Bleeding") || !contains(complaint.Rows, "When did the bleeding start? this morning") {
		t.Errorf("complaint rows %v", complaint.Rows)
	}
	demo, _ := sectionByTitle(doc, "Demographics")
	if len(demo.Rows) != 2 || !contains(demo.Rows, "not recalled") {
		t.Errorf("demographics rows %v", demo.Rows)
	}
	preg, _ := sectionByTitle(doc, "Current pregnancy")
	if len(preg.Rows) != 1 || !strings.HasSuffix(preg.Rows[0], " 3)") {
		t.Errorf("follow-up answer not folded into row: %v", preg.Rows)
	}
}

func TestBuild_RoutineWithoutAssessment(t *testing.T) {
	rec := intake.NewRecord("patient-2", testNow)
	doc := Build(rec, intake.DefaultCatalog(), intake.DefaultIssues())

	if _, ok := sectionByTitle(doc, "Assessment"); ok {
		t.Error("no assessment section expected")
	}
	complaint, _ := sectionByTitle(doc, "Chief complaint")
	if !contains(complaint.Rows, "Category: Routine") || !contains(complaint.Rows, "Complaint: -") {
		t.Errorf("complaint rows %v", complaint.Rows)
	}
	if _, ok := sectionByTitle(doc, "Not answered"); ok {
		t.Error("no skipped section expected")
	}
}

type fakeRenderer struct {
	err   error
	calls int
}

func (f *fakeRenderer) Render(doc Document) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-" + doc.Title), nil
}

func newTestDispatcher(store Store, r Renderer) *Dispatcher {
	d := NewDispatcher(store, r, intake.DefaultCatalog(), intake.DefaultIssues(), 1, zerolog.Nop())
	d.now = func() time.Time { return testNow }
	return d
}

func TestDispatcher_Generate(t *testing.T) {
	store := NewMemoryStore()
	d := newTestDispatcher(store, &fakeRenderer{})

	r, err := d.Generate(context.Background(), completedRecord(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, err := store.Get(context.Background(), "patient-1", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != r.ID || got.AlertLevel != intake.AlertRed || got.ContentType != ContentTypePDF {
		t.Errorf("unexpected stored report %+v", got)
	}
	if !strings.HasPrefix(string(got.Document), "%PDF-") || !got.CreatedAt.Equal(testNow) {
		t.Errorf("unexpected document or timestamp %+v", got)
	}
}

func TestDispatcher_GenerateRenderError(t *testing.T) {
	store := NewMemoryStore()
	d := newTestDispatcher(store, &fakeRenderer{err: errors.New("no font")})

	if _, err := d.Generate(context.Background(), completedRecord(t)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := store.Get(context.Background(), "patient-1", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}
}

func TestDispatcher_ScheduleDropsWhenFull(t *testing.T) {
	d := newTestDispatcher(NewMemoryStore(), &fakeRenderer{})
	rec := completedRecord(t)
	for i := 0; i < cap(d.jobs)+5; i++ {
		d.Schedule(rec)
	}
	if len(d.jobs) != cap(d.jobs) {
		t.Errorf("queue len = %d, want %d", len(d.jobs), cap(d.jobs))
	}
}

func TestDispatcher_Run(t *testing.T) {
	store := NewMemoryStore()
	d := newTestDispatcher(store, &fakeRenderer{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.Schedule(completedRecord(t))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := store.Get(context.Background(), "patient-1", 1); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("report was not generated")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	store := NewMemoryStore()
	d := newTestDispatcher(store, &fakeRenderer{})
	for visit := 1; visit <= 3; visit++ {
		rec := completedRecord(t)
		rec.VisitNumber = visit
		d.Schedule(rec)
	}
	d.Close()
	d.Close()

	late := completedRecord(t)
	late.VisitNumber = 4
	d.Schedule(late)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	for visit := 1; visit <= 3; visit++ {
		if _, err := store.Get(context.Background(), "patient-1", visit); err != nil {
			t.Errorf("visit %d: queued report lost: %v", visit, err)
		}
	}
	if _, err := store.Get(context.Background(), "patient-1", 4); !errors.Is(err, ErrNotFound) {
		t.Errorf("report scheduled after Close should be dropped, got %v", err)
	}
}

func TestMemoryStore_ListOmitsDocuments(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, v := range []int{2, 1} {
		_ = store.Save(ctx, &Report{PatientID: "p", VisitNumber: v, Document: []byte("x")})
	}
	list, _ := store.List(ctx, "p")
	if len(list) != 2 || list[0].VisitNumber != 1 || list[1].VisitNumber != 2 {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Document != nil {
		t.Error("list should not carry documents")
	}
	full, _ := store.Get(ctx, "p", 2)
	if string(full.Document) != "x" {
		t.Error("Get should carry the document")
	}
}

func TestHandler_GetReport(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Save(context.Background(), &Report{
		PatientID: "patient-1", VisitNumber: 1, ContentType: ContentTypePDF, Document: []byte("%PDF-1.4"),
	})
	h := NewHandler(store)
	e := echo.New()

	tests := []struct {
		name  string
		visit string
		code  int
	}{
		{"found", "1", http.StatusOK},
		{"missing", "2", http.StatusNotFound},
		{"invalid", "zero", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("patient_id", "visit")
			c.SetParamValues("patient-1", tt.visit)

			err := h.GetReport(c)
			if tt.code == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Header().Get(echo.HeaderContentType) != ContentTypePDF || rec.Body.String() != "%PDF-1.4" {
					t.Errorf("unexpected response %q %q", rec.Header().Get(echo.HeaderContentType), rec.Body.String())
				}
				return
			}
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != tt.code {
				t.Errorf("expected %d, got %v", tt.code, err)
			}
		})
	}
}

func TestPDFRenderer(t *testing.T) {
	font := ""
	for _, p := range DefaultFontPaths {
		if _, err := os.Stat(p); err == nil {
			font = p
			break
		}
	}
	if font == "" {
		t.Skip("DejaVuSans not installed")
	}
	doc := Build(completedRecord(t), intake.DefaultCatalog(), intake.DefaultIssues())
	out, err := NewPDFRenderer(font).Render(doc)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(string(out), "%PDF-") {
		t.Errorf("output is not a PDF")
	}
}

func TestPDFRenderer_MissingFont(t *testing.T) {
	r := &PDFRenderer{fontPaths: []string{"/nonexistent/font.ttf"}}
	if _, err := r.Render(Document{Title: "x"}); err == nil {
		t.Fatal("expected font error")
	}
}
