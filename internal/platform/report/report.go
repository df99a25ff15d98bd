// Package report carries out the generateReport terminal action: it renders
// a completed visit to PDF and stores the document for staff to download.
package report

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/intake/internal/domain/intake"
)

var ErrNotFound = errors.New("report not found")

// Report is the rendered document of one visit.
type Report struct {
	ID          uuid.UUID         `json:"id"`
	PatientID   string            `json:"patient_id"`
	VisitNumber int               `json:"visit_number"`
	AlertLevel  intake.AlertLevel `json:"alert_level"`
	ContentType string            `json:"content_type"`
	Document    []byte            `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Store persists reports, one per patient and visit. Saving a visit again
// replaces its document.
type Store interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, patientID string, visit int) (*Report, error)
	List(ctx context.Context, patientID string) ([]*Report, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]map[int]*Report
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[string]map[int]*Report)}
}

func (m *MemoryStore) Save(_ context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	visits, ok := m.reports[r.PatientID]
	if !ok {
		visits = make(map[int]*Report)
		m.reports[r.PatientID] = visits
	}
	cp := *r
	visits[r.VisitNumber] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, patientID string, visit int) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[patientID][visit]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, patientID string) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Report, 0, len(m.reports[patientID]))
	for _, r := range m.reports[patientID] {
		cp := *r
		cp.Document = nil
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitNumber < out[j].VisitNumber })
	return out, nil
}
