package intake

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a process-local RecordStore. Records are copied in and out
// so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Load(_ context.Context, patientID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[patientID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	if rec.PatientID == "" {
		return ErrEmptyPatientID
	}
	m.mu.Lock()
	m.records[rec.PatientID] = rec.Clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context, limit, offset int) ([]*RecordSummary, int, error) {
	m.mu.RLock()
	items := make([]*RecordSummary, 0, len(m.records))
	for _, rec := range m.records {
		items = append(items, summarize(rec))
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].PatientID < items[j].PatientID
	})

	total := len(items)
	if offset >= total {
		return []*RecordSummary{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end], total, nil
}

func summarize(rec *Record) *RecordSummary {
	return &RecordSummary{
		PatientID:   rec.PatientID,
		Name:        rec.Identity.Name,
		Phase:       rec.Phase,
		VisitNumber: rec.VisitNumber,
		AlertLevel:  rec.AlertLevel,
		UpdatedAt:   rec.UpdatedAt,
	}
}
