package snapshot

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
)

// MemoryStore keeps snapshots in process. Used when no external store is
// configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	exams map[uuid.UUID][]timer.SessionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{exams: make(map[uuid.UUID][]timer.SessionRecord)}
}

func (s *MemoryStore) Save(_ context.Context, examID uuid.UUID, records []timer.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(records) == 0 {
		delete(s.exams, examID)
		return nil
	}
	s.exams[examID] = append([]timer.SessionRecord(nil), records...)
	return nil
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]timer.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []timer.SessionRecord
	for _, recs := range s.exams {
		records = append(records, recs...)
	}
	return records, nil
}

func (s *MemoryStore) Delete(_ context.Context, examID uuid.UUID) error {
	s.mu.Lock()
	delete(s.exams, examID)
	s.mu.Unlock()
	return nil
}
