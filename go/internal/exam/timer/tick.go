package timer

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// handleTick applies one scheduled decrement and reports whether the
// session keeps ticking.
func (e *Engine) handleTick(key SessionKey, gen uint64) bool {
	s, ok := e.store.get(key)
	if !ok {
		return false
	}

	s.mu.Lock()
	result := s.tick(gen)
	view := s.view()
	connID := s.connID
	s.mu.Unlock()

	if key.isExamClock() {
		return result == tickApplied
	}

	switch result {
	case tickApplied:
		e.coordinator.PushTimerLive(view, connID)
		return true
	case tickExpired:
		e.coordinator.PushTimerLive(view, connID)
		e.finished(key, connID)
		return false
	default:
		return false
	}
}

// handleTickBatch broadcasts the roster once per exam that ticked.
func (e *Engine) handleTickBatch(exams []uuid.UUID) {
	for _, examID := range exams {
		e.coordinator.BroadcastRoster(examID)
		e.refreshStatus(examID)
	}
}

// finished emits the one-time expiry notification for a session.
func (e *Engine) finished(key SessionKey, connID string) {
	now := e.clock.Now().UTC()
	e.coordinator.PushFinished(TimerFinishedPayload{
		ExamID:     key.ExamID,
		StudentID:  key.StudentID,
		FinishedAt: now,
	}, connID)
	e.publish(DomainEvent{
		Type:       DomainStudentTimerFinished,
		ExamID:     key.ExamID,
		StudentID:  key.StudentID,
		OccurredAt: now,
	})

	log.Info().
		Str("exam_id", key.ExamID.String()).
		Str("student_id", key.StudentID.String()).
		Msg("student timer finished")
}
