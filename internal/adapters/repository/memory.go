package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/proctor/internal/domain/model"
)

// MemoryStore keeps records in a map. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.SessionRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.SessionRecord)}
}

func (m *MemoryStore) Save(_ context.Context, rec model.SessionRecord) error { //nolint:gocritic // records are values
	if err := validate(&rec); err != nil {
		return err
	}
	rec.Alerts = append([]model.Alert(nil), rec.Alerts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (model.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return model.SessionRecord{}, ErrNotFound
	}
	rec.Alerts = append([]model.Alert(nil), rec.Alerts...)
	return rec, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]model.SessionRecord, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]model.SessionRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sortByEnded(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryStore) Close() error { return nil }

// sortByEnded orders records most recently ended first, session id breaking
// ties.
func sortByEnded(recs []model.SessionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].EndedAt.Equal(recs[j].EndedAt) {
			return recs[i].EndedAt.After(recs[j].EndedAt)
		}
		return recs[i].SessionID < recs[j].SessionID
	})
}
