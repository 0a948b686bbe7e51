package exams

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/examclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusCall struct {
	examID        uuid.UUID
	status        models.ExamStatus
	statusChanged bool
}

type fakeStatusStore struct {
	mu    sync.Mutex
	calls []statusCall
	fail  int
}

func (s *fakeStatusStore) UpdateStatus(_ context.Context, examID uuid.UUID, update models.ExamStatusUpdate, statusChanged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("connection refused")
	}
	s.calls = append(s.calls, statusCall{examID: examID, status: update.Status, statusChanged: statusChanged})
	return nil
}

func (s *fakeStatusStore) snapshot() []statusCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]statusCall(nil), s.calls...)
}

func TestStatusWriter_CoalescesPerExam(t *testing.T) {
	store := &fakeStatusStore{}
	w := NewStatusWriter(store, clockwork.NewFakeClock(), time.Second)
	examID := uuid.New()

	w.PersistExamStatus(examID, models.ExamStatusUpdate{Status: models.ExamStatusRunning})
	w.PersistExamStatus(examID, models.ExamStatusUpdate{Status: models.ExamStatusPaused})
	assert.Equal(t, 1, w.Pending())

	assert.Equal(t, 1, w.Flush(context.Background()))
	assert.Equal(t, []statusCall{{examID, models.ExamStatusPaused, true}}, store.snapshot())

	// same status with a new connected list is written without history
	w.PersistExamStatus(examID, models.ExamStatusUpdate{Status: models.ExamStatusPaused, ConnectedStudentIDs: []uuid.UUID{uuid.New()}})
	w.Flush(context.Background())
	calls := store.snapshot()
	require.Len(t, calls, 2)
	assert.False(t, calls[1].statusChanged)
}

func TestStatusWriter_RequeuesFailures(t *testing.T) {
	store := &fakeStatusStore{fail: 1}
	w := NewStatusWriter(store, clockwork.NewFakeClock(), time.Second)
	examID := uuid.New()

	w.PersistExamStatus(examID, models.ExamStatusUpdate{Status: models.ExamStatusRunning})
	assert.Equal(t, 0, w.Flush(context.Background()))
	assert.Equal(t, 1, w.Pending())

	assert.Equal(t, 1, w.Flush(context.Background()))
	assert.Zero(t, w.Pending())
}

func TestStatusWriter_FlushesOnTickAndStop(t *testing.T) {
	store := &fakeStatusStore{}
	clock := clockwork.NewFakeClock()
	w := NewStatusWriter(store, clock, time.Second)
	require.NoError(t, w.Start(context.Background()))

	first := uuid.New()
	w.PersistExamStatus(first, models.ExamStatusUpdate{Status: models.ExamStatusRunning})
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return len(store.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	second := uuid.New()
	w.PersistExamStatus(second, models.ExamStatusUpdate{Status: models.ExamStatusCompleted})
	require.NoError(t, w.Stop())

	calls := store.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, second, calls[1].examID)
}
