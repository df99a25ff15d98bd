package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// flakyStore wraps MemoryStore and fails saves while failSave is set.
type flakyStore struct {
	*MemoryStore
	failSave bool
	saves    int
}

func (s *flakyStore) Save(ctx context.Context, rec *Record) error {
	s.saves++
	if s.failSave {
		return errors.New("connection reset")
	}
	return s.MemoryStore.Save(ctx, rec)
}

type fakeLocker struct {
	err      error
	acquired int
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}

type recordingScheduler struct {
	mu   sync.Mutex
	recs []*Record
}

func (s *recordingScheduler) Schedule(rec *Record) {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
}

func newTestService(store RecordStore, ext Extractor, ass Assessor, opts ...ServiceOption) *Service {
	opts = append(opts, WithServiceClock(func() time.Time { return testNow }))
	return NewService(newTestEngine(ext, ass), store, zerolog.Nop(), opts...)
}

func TestService_HandleTurn_NewPatient(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, newFakeExtractor(), greenAssessor())

	res, err := svc.HandleTurn(context.Background(), "patient-1", identityUtterance)
	if err != nil {
		t.Fatalf("HandleTurn() error: %v", err)
	}
	if res.Phase != PhaseDemographics || res.VisitNumber != 1 || res.PatientID != "patient-1" {
		t.Errorf("unexpected result %+v", res)
	}

	saved, err := store.Load(context.Background(), "patient-1")
	if err != nil {
		t.Fatalf("record not saved: %v", err)
	}
	if saved.Identity.Name != "Amina" {
		t.Errorf("unexpected saved identity %+v", saved.Identity)
	}
}

func TestService_HandleTurn_EmptyPatientID(t *testing.T) {
	svc := newTestService(NewMemoryStore(), newFakeExtractor(), greenAssessor())
	if _, err := svc.HandleTurn(context.Background(), "  ", "hi"); !errors.Is(err, ErrEmptyPatientID) {
		t.Errorf("expected ErrEmptyPatientID, got %v", err)
	}
}

func TestService_PersistenceFailureRetainsTurn(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failSave: true}
	ext := newFakeExtractor()
	svc := newTestService(store, ext, greenAssessor())
	ctx := context.Background()

	_, err := svc.HandleTurn(ctx, "patient-1", identityUtterance)
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if !perr.Retryable() || perr.PatientID != "patient-1" {
		t.Errorf("unexpected error %+v", perr)
	}
	calls := len(ext.calls)

	store.failSave = false
	res, err := svc.HandleTurn(ctx, "patient-1", identityUtterance)
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if len(ext.calls) != calls {
		t.Errorf("a retried turn must not re-run extraction, %d new calls", len(ext.calls)-calls)
	}
	if res.Phase != PhaseDemographics {
		t.Errorf("expected demographics, got %s", res.Phase)
	}
	saved, err := store.Load(ctx, "patient-1")
	if err != nil || saved.Phase != PhaseDemographics {
		t.Fatalf("expected the retained turn to be saved, got %v %v", saved, err)
	}
	if len(saved.ConversationLog) != 2 {
		t.Errorf("expected a single exchange in the log, got %d entries", len(saved.ConversationLog))
	}
}

func TestService_PersistenceFailureThenNewUtterance(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failSave: true}
	svc := newTestService(store, newFakeExtractor(), greenAssessor())
	ctx := context.Background()

	if _, err := svc.HandleTurn(ctx, "patient-1", identityUtterance); err == nil {
		t.Fatal("expected a save failure")
	}
	store.failSave = false

	res, err := svc.HandleTurn(ctx, "patient-1", "3 years")
	if err != nil {
		t.Fatalf("HandleTurn() error: %v", err)
	}
	saved, _ := store.Load(ctx, "patient-1")
	if saved.Identity.Name != "Amina" || saved.Fields.Demographics.MarriageDuration != "3 years" {
		t.Errorf("expected both turns applied, got %+v %+v", saved.Identity, saved.Fields.Demographics)
	}
	if res.NextPrompt != DefaultCatalog().At(1).Prompt {
		t.Errorf("unexpected prompt %q", res.NextPrompt)
	}
}

func TestService_LockTimeoutProceedsUnlocked(t *testing.T) {
	locker := &fakeLocker{err: errors.New("lock wait exceeded")}
	svc := newTestService(NewMemoryStore(), newFakeExtractor(), greenAssessor(), WithLocker(locker, time.Millisecond))

	res, err := svc.HandleTurn(context.Background(), "patient-1", "Hi")
	if err != nil {
		t.Fatalf("expected the turn to proceed, got %v", err)
	}
	if res.Phase != PhaseOnboarding {
		t.Errorf("unexpected phase %s", res.Phase)
	}
}

func TestService_LockCancelledContext(t *testing.T) {
	locker := &fakeLocker{err: context.Canceled}
	svc := newTestService(NewMemoryStore(), newFakeExtractor(), greenAssessor(), WithLocker(locker, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.HandleTurn(ctx, "patient-1", "Hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestService_LockReleased(t *testing.T) {
	locker := &fakeLocker{}
	svc := newTestService(NewMemoryStore(), newFakeExtractor(), greenAssessor(), WithLocker(locker, time.Second))

	for i := 0; i < 3; i++ {
		if _, err := svc.HandleTurn(context.Background(), "patient-1", "Hi"); err != nil {
			t.Fatalf("HandleTurn() error: %v", err)
		}
	}
	if locker.acquired != 3 || locker.released != 3 {
		t.Errorf("expected 3 acquire/release pairs, got %d/%d", locker.acquired, locker.released)
	}
}

func TestService_CompletedVisitScheduledAndReset(t *testing.T) {
	store := NewMemoryStore()
	sched := &recordingScheduler{}
	svc := newTestService(store, newFakeExtractor(), greenAssessor(), WithReportScheduler(sched))
	ctx := context.Background()

	rec := NewRecord("patient-1", testNow)
	rec.Identity = Identity{Name: "Amina", Age: "28", Contact: "03001234567"}
	rec.HasGreeted = true
	rec.Phase = PhaseAssessment
	if err := store.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}

	res, err := svc.HandleTurn(ctx, "patient-1", "that's all")
	if err != nil {
		t.Fatalf("HandleTurn() error: %v", err)
	}
	if res.TerminalAction != ActionGenerateReport || res.Phase != PhaseCompleted {
		t.Fatalf("expected completion, got %+v", res)
	}
	if len(sched.recs) != 1 || sched.recs[0].VisitNumber != 1 {
		t.Fatalf("expected visit 1 scheduled, got %d", len(sched.recs))
	}

	res, err = svc.HandleTurn(ctx, "patient-1", "Hello again")
	if err != nil {
		t.Fatalf("HandleTurn() error: %v", err)
	}
	if res.VisitNumber != 2 || res.Phase != PhaseDemographics {
		t.Errorf("expected visit 2 in demographics, got %d/%s", res.VisitNumber, res.Phase)
	}
	saved, _ := store.Load(ctx, "patient-1")
	if len(saved.VisitHistory) != 1 || saved.VisitHistory[0].AlertLevel != AlertGreen {
		t.Errorf("expected visit 1 archived, got %+v", saved.VisitHistory)
	}
	if saved.AssessmentComplete || saved.AlertLevel != "" {
		t.Error("new visit must start without an assessment")
	}

	_, snap, err := svc.Visit(ctx, "patient-1", 1)
	if err != nil || snap.VisitNumber != 1 {
		t.Errorf("expected archived visit 1, got %v %v", snap, err)
	}
	if _, _, err := svc.Visit(ctx, "patient-1", 7); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected not found for an unknown visit, got %v", err)
	}

	visits, err := svc.Visits(ctx, "patient-1")
	if err != nil || len(visits) != 2 || visits[0].VisitNumber != 1 || visits[1].VisitNumber != 2 {
		t.Errorf("expected visits 1 and 2, got %+v %v", visits, err)
	}
}

func TestService_Plan(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, newFakeExtractor(), greenAssessor())
	ctx := context.Background()

	if _, err := svc.Plan(ctx, "nobody"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
	if _, err := svc.HandleTurn(ctx, "patient-1", "Hi"); err != nil {
		t.Fatal(err)
	}
	plan, err := svc.Plan(ctx, "patient-1")
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(plan) != DefaultCatalog().Len() {
		t.Errorf("expected one entry per question, got %d", len(plan))
	}
}
