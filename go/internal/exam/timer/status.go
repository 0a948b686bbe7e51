package timer

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// aggregateTracker remembers the last exam status handed to the persister
// so only transitions are reported.
type aggregateTracker struct {
	mu    sync.Mutex
	exams map[uuid.UUID]models.ExamStatusUpdate
	// locks serialize refreshes of one exam from collection to hand-off.
	locks map[uuid.UUID]*sync.Mutex
}

func newAggregateTracker() *aggregateTracker {
	return &aggregateTracker{
		exams: make(map[uuid.UUID]models.ExamStatusUpdate),
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockExam holds the exam's refresh lock until the returned func is called.
func (t *aggregateTracker) lockExam(examID uuid.UUID) func() {
	t.mu.Lock()
	l, ok := t.locks[examID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[examID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// observe records the derived status and reports what changed.
func (t *aggregateTracker) observe(examID uuid.UUID, status models.ExamStatus, connected []uuid.UUID, now time.Time) (models.ExamStatusUpdate, bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, known := t.exams[examID]
	if !known {
		prev = models.ExamStatusUpdate{Status: models.ExamStatusStopped, ConnectedStudentIDs: []uuid.UUID{}}
	}

	next := prev
	next.ConnectedStudentIDs = connected
	statusChanged := prev.Status != status
	if statusChanged {
		next.Status = status
		switch status {
		case models.ExamStatusRunning:
			if prev.Status != models.ExamStatusPaused || prev.StartedAt == nil {
				next.StartedAt = timePtr(now)
			}
			next.PausedAt = nil
			next.CompletedAt = nil
		case models.ExamStatusPaused:
			next.PausedAt = timePtr(now)
		case models.ExamStatusCompleted:
			next.CompletedAt = timePtr(now)
			next.PausedAt = nil
		case models.ExamStatusStopped:
			next.StartedAt = nil
			next.PausedAt = nil
			next.CompletedAt = nil
		}
	}

	changed := statusChanged || !slices.Equal(prev.ConnectedStudentIDs, connected)
	if changed {
		t.exams[examID] = next
	}
	return next, changed, statusChanged
}

// forget drops the exam's last status. The caller holds its refresh lock.
func (t *aggregateTracker) forget(examID uuid.UUID) {
	t.mu.Lock()
	delete(t.exams, examID)
	t.mu.Unlock()
}

// aggregateStatus derives the exam status from its student sessions.
func aggregateStatus(states []TimerState) models.ExamStatus {
	var running, paused bool
	finished := len(states) > 0
	for _, st := range states {
		switch st.Status {
		case StatusRunning:
			running = true
		case StatusPaused:
			paused = true
		}
		if st.Status != StatusStopped || st.RemainingTime > 0 {
			finished = false
		}
	}
	switch {
	case running:
		return models.ExamStatusRunning
	case paused:
		return models.ExamStatusPaused
	case finished:
		return models.ExamStatusCompleted
	default:
		return models.ExamStatusStopped
	}
}

// refreshStatus recomputes the exam's aggregate status and connected list
// and hands any change to the persister. Refreshes of one exam run one at a
// time so a stale reading never overwrites a newer one.
func (e *Engine) refreshStatus(examID uuid.UUID) {
	unlock := e.aggregates.lockExam(examID)
	defer unlock()

	sessions := e.store.forExam(examID)
	states := make([]TimerState, 0, len(sessions))
	connected := make([]uuid.UUID, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		states = append(states, s.state)
		if s.connected {
			connected = append(connected, s.key.StudentID)
		}
		s.mu.Unlock()
	}

	status := aggregateStatus(states)
	update, changed, statusChanged := e.aggregates.observe(examID, status, connected, e.clock.Now().UTC())
	if !changed {
		return
	}
	if e.status != nil {
		e.status.PersistExamStatus(examID, update)
	}
	if statusChanged {
		log.Info().
			Str("exam_id", examID.String()).
			Str("status", string(status)).
			Msg("exam status changed")
		e.publish(DomainEvent{
			Type:    DomainExamStatusChanged,
			ExamID:  examID,
			Payload: update,
		})
	}
}
