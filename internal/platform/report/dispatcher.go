package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/intake/internal/domain/intake"
)

const ContentTypePDF = "application/pdf"

// Renderer turns a laid-out document into bytes of ContentTypePDF.
type Renderer interface {
	Render(doc Document) ([]byte, error)
}

// Dispatcher runs report generation off the turn path. Schedule enqueues a
// completed visit; Run drains the queue with a fixed set of workers until
// Close is called and the queue is empty.
type Dispatcher struct {
	store    Store
	renderer Renderer
	catalog  *intake.Catalog
	issues   *intake.IssueCatalog
	workers  int
	jobs     chan *intake.Record
	now      func() time.Time
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(store Store, renderer Renderer, catalog *intake.Catalog, issues *intake.IssueCatalog, workers int, logger zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		store:    store,
		renderer: renderer,
		catalog:  catalog,
		issues:   issues,
		workers:  workers,
		jobs:     make(chan *intake.Record, workers*32),
		now:      time.Now,
		logger:   logger.With().Str("component", "report").Logger(),
	}
}

// Schedule never blocks the caller. A full queue, or one already closed,
// drops the job.
func (d *Dispatcher) Schedule(rec *intake.Record) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(rec, "report queue closed, report dropped")
		return
	}
	select {
	case d.jobs <- rec:
	default:
		d.drop(rec, "report queue full, report dropped")
	}
}

func (d *Dispatcher) drop(rec *intake.Record, msg string) {
	d.logger.Error().
		Str("patient_id", rec.PatientID).
		Int("visit_number", rec.VisitNumber).
		Msg(msg)
}

// Close stops accepting jobs. Run returns once the queued ones are done.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
}

// Run processes jobs until the queue is closed and drained, or ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case rec, ok := <-d.jobs:
					if !ok {
						return nil
					}
					if _, err := d.Generate(ctx, rec); err != nil {
						d.logger.Error().Err(err).
							Str("patient_id", rec.PatientID).
							Int("visit_number", rec.VisitNumber).
							Msg("report generation failed")
					}
				}
			}
		})
	}
	return g.Wait()
}

// Generate renders rec and stores the result.
func (d *Dispatcher) Generate(ctx context.Context, rec *intake.Record) (*Report, error) {
	start := d.now()
	body, err := d.renderer.Render(Build(rec, d.catalog, d.issues))
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	r := &Report{
		ID:          uuid.New(),
		PatientID:   rec.PatientID,
		VisitNumber: rec.VisitNumber,
		AlertLevel:  rec.AlertLevel,
		ContentType: ContentTypePDF,
		Document:    body,
		CreatedAt:   d.now(),
	}
	if err := d.store.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	d.logger.Info().
		Str("patient_id", r.PatientID).
		Int("visit_number", r.VisitNumber).
		Str("alert_level", string(r.AlertLevel)).
		Dur("latency", d.now().Sub(start)).
		Msg("report generated")
	return r, nil
}
