package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Locker serializes turns per patient. Acquire waits at most wait for the
// lock and returns the function that releases it.
type Locker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (release func(), err error)
}

// ReportScheduler receives every visit that just completed.
type ReportScheduler interface {
	Schedule(rec *Record)
}

// TurnResult is the reply to one utterance plus where the interview stands.
type TurnResult struct {
	Reply
	PatientID   string `json:"patient_id"`
	Phase       Phase  `json:"phase"`
	VisitNumber int    `json:"visit_number"`
}

type pendingTurn struct {
	text   string
	rec    *Record
	result *TurnResult
}

// Service runs turns end to end: lock, load, lifecycle, engine, save.
type Service struct {
	engine    *Engine
	lifecycle *Lifecycle
	store     RecordStore
	locker    Locker
	lockWait  time.Duration
	reports   ReportScheduler
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingTurn
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLocker enables per-patient turn locking with the given bounded wait.
func WithLocker(l Locker, wait time.Duration) ServiceOption {
	return func(s *Service) {
		s.locker = l
		s.lockWait = wait
	}
}

// WithReportScheduler hands completed visits to r.
func WithReportScheduler(r ReportScheduler) ServiceOption {
	return func(s *Service) { s.reports = r }
}

// WithServiceClock overrides the time source used for new records.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(engine *Engine, store RecordStore, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		engine:   engine,
		store:    store,
		lockWait: 60 * time.Second,
		now:      time.Now,
		logger:   logger,
		pending:  make(map[string]*pendingTurn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lifecycle = NewLifecycle(s.now)
	return s
}

// HandleTurn applies one utterance from patientID. On a save failure it
// returns a *PersistenceError and keeps the computed turn; sending the
// same utterance again re-attempts the save without re-running the turn.
func (s *Service) HandleTurn(ctx context.Context, patientID, text string) (*TurnResult, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, ErrEmptyPatientID
	}

	release, err := s.lock(ctx, patientID)
	if err != nil {
		return nil, err
	}
	defer release()

	var rec *Record
	if p := s.takePending(patientID); p != nil {
		if p.text == text {
			return s.persist(ctx, p)
		}
		rec = p.rec
	} else {
		rec, err = s.load(ctx, patientID)
		if err != nil {
			return nil, err
		}
	}

	rec, reset := s.lifecycle.OnIncoming(rec)
	if reset {
		s.logger.Info().
			Str("patient_id", patientID).
			Int("visit_number", rec.VisitNumber).
			Msg("visit archived, new visit started")
	}

	reply, err := s.engine.Handle(ctx, rec, text)
	if err != nil {
		return nil, fmt.Errorf("handle turn: %w", err)
	}

	return s.persist(ctx, &pendingTurn{
		text: text,
		rec:  rec,
		result: &TurnResult{
			Reply:       reply,
			PatientID:   patientID,
			Phase:       rec.Phase,
			VisitNumber: rec.VisitNumber,
		},
	})
}

func (s *Service) lock(ctx context.Context, patientID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, patientID, s.lockWait)
	if err == nil {
		return release, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	s.logger.Warn().Err(err).
		Str("patient_id", patientID).
		Dur("wait", s.lockWait).
		Msg("turn lock not acquired, proceeding unlocked")
	return func() {}, nil
}

func (s *Service) load(ctx context.Context, patientID string) (*Record, error) {
	rec, err := s.store.Load(ctx, patientID)
	if errors.Is(err, ErrRecordNotFound) {
		s.logger.Info().Str("patient_id", patientID).Msg("new patient record")
		return NewRecord(patientID, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	return rec, nil
}

func (s *Service) persist(ctx context.Context, p *pendingTurn) (*TurnResult, error) {
	if err := s.store.Save(ctx, p.rec); err != nil {
		s.putPending(p)
		s.logger.Error().Err(err).Str("patient_id", p.rec.PatientID).Msg("record save failed, turn retained")
		return nil, &PersistenceError{PatientID: p.rec.PatientID, Err: err}
	}
	if p.result.TerminalAction == ActionGenerateReport && s.reports != nil {
		s.reports.Schedule(p.rec.Clone())
	}
	return p.result, nil
}

func (s *Service) takePending(patientID string) *pendingTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending[patientID]
	delete(s.pending, patientID)
	return p
}

func (s *Service) putPending(p *pendingTurn) {
	s.mu.Lock()
	s.pending[p.rec.PatientID] = p
	s.mu.Unlock()
}

// -- Staff views --

func (s *Service) GetRecord(ctx context.Context, patientID string) (*Record, error) {
	return s.store.Load(ctx, patientID)
}

func (s *Service) ListRecords(ctx context.Context, limit, offset int) ([]*RecordSummary, int, error) {
	return s.store.List(ctx, limit, offset)
}

// Plan returns the resolver's current decision for every catalog question.
func (s *Service) Plan(ctx context.Context, patientID string) ([]PlanEntry, error) {
	rec, err := s.store.Load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.engine.Resolver().Plan(rec), nil
}

// Visits lists the archived visits followed by the current one.
func (s *Service) Visits(ctx context.Context, patientID string) ([]VisitSnapshot, error) {
	rec, err := s.store.Load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]VisitSnapshot, 0, len(rec.VisitHistory)+1)
	out = append(out, rec.VisitHistory...)
	return append(out, currentVisit(rec)), nil
}

func currentVisit(rec *Record) VisitSnapshot {
	return VisitSnapshot{
		VisitNumber:   rec.VisitNumber,
		Fields:        rec.Fields,
		DetectedIssue: rec.DetectedIssue,
		AlertLevel:    rec.AlertLevel,
		Assessment:    rec.Assessment,
		Skipped:       rec.Skipped,
	}
}

// Visit returns the fields of visit n: the archived snapshot, or the
// current visit when n is the record's visit number.
func (s *Service) Visit(ctx context.Context, patientID string, n int) (*Record, *VisitSnapshot, error) {
	rec, err := s.store.Load(ctx, patientID)
	if err != nil {
		return nil, nil, err
	}
	if n == rec.VisitNumber {
		cur := currentVisit(rec)
		return rec, &cur, nil
	}
	for i := range rec.VisitHistory {
		if rec.VisitHistory[i].VisitNumber == n {
			return rec, &rec.VisitHistory[i], nil
		}
	}
	return rec, nil, fmt.Errorf("visit %d: %w", n, ErrRecordNotFound)
}

func (s *Service) Catalog() *Catalog { return s.engine.Catalog() }

func (s *Service) Issues() *IssueCatalog { return s.engine.Issues() }
