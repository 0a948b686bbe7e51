package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// transition mutates one session. It runs with the session lock held.
type transition func(s *Session, now time.Time) error

// authorize resolves the caller and checks it is an authority in examID.
func (e *Engine) authorize(connID string, examID uuid.UUID) (ConnectionContext, error) {
	cc, ok := e.registry.Resolve(connID)
	if !ok || cc.ExamID != examID {
		return ConnectionContext{}, newCommandError(CodeNotJoined, "connection has not joined exam %s", examID)
	}
	if !cc.Role.IsAuthority() {
		return ConnectionContext{}, newCommandError(CodeNotAuthority, "only an instructor or admin may control timers")
	}
	return cc, nil
}

// Start starts the targeted timers from stopped or paused.
func (e *Engine) Start(connID string, target Target) (*CommandAck, error) {
	return e.command(CommandStart, connID, target, func(s *Session, now time.Time) error {
		gen, err := s.start(now)
		if err != nil {
			return err
		}
		e.scheduler.Schedule(s.key, gen)
		return nil
	})
}

// Pause pauses the targeted running timers.
func (e *Engine) Pause(connID string, target Target) (*CommandAck, error) {
	return e.command(CommandPause, connID, target, func(s *Session, now time.Time) error {
		if err := s.pause(now); err != nil {
			return err
		}
		e.scheduler.Cancel(s.key)
		return nil
	})
}

// Reset restores the exam's original duration and zeroes adjustments.
func (e *Engine) Reset(connID string, target Target) (*CommandAck, error) {
	return e.command(CommandReset, connID, target, func(s *Session, _ time.Time) error {
		s.reset()
		e.scheduler.Cancel(s.key)
		return nil
	})
}

// Adjust adds deltaSeconds to the targeted timers. An over-limit delta is
// rejected before any session is touched. Timers drained to zero expire.
func (e *Engine) Adjust(connID string, target Target, deltaSeconds int) (*CommandAck, error) {
	if limit := e.config.MaxAdjustmentSec; limit > 0 && (deltaSeconds > limit || deltaSeconds < -limit) {
		if _, err := e.authorize(connID, target.ExamID); err != nil {
			return nil, err
		}
		return nil, newCommandError(CodeAdjustmentTooLarge,
			"adjustment of %d seconds exceeds the maximum of %d", deltaSeconds, limit)
	}

	var issuedBy uuid.UUID
	if cc, ok := e.registry.Resolve(connID); ok {
		issuedBy = cc.UserID
	}
	type expiry struct {
		key    SessionKey
		connID string
	}
	var expired []expiry
	ack, err := e.command(CommandAdjust, connID, target, func(s *Session, _ time.Time) error {
		if s.adjust(deltaSeconds) {
			e.scheduler.Cancel(s.key)
			if !s.key.isExamClock() {
				expired = append(expired, expiry{key: s.key, connID: s.connID})
			}
		}
		if !s.key.isExamClock() {
			e.publish(DomainEvent{
				Type:      DomainStudentTimerAdjusted,
				ExamID:    s.key.ExamID,
				StudentID: s.key.StudentID,
				Payload: AdjustedPayload{
					DeltaSeconds:  deltaSeconds,
					RemainingTime: s.state.RemainingTime,
					IssuedBy:      issuedBy,
				},
			})
		}
		return nil
	})
	for _, x := range expired {
		e.finished(x.key, x.connID)
	}
	return ack, err
}

// command applies fn independently to every targeted session. A failure on
// one session is recorded in the ack and never stops the others.
func (e *Engine) command(name MessageType, connID string, target Target, fn transition) (*CommandAck, error) {
	cc, err := e.authorize(connID, target.ExamID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	ack := &CommandAck{
		ExamID:   target.ExamID,
		Command:  name,
		IssuedBy: cc.UserID,
		Applied:  []uuid.UUID{},
	}
	if len(target.StudentIDs) == 1 {
		id := target.StudentIDs[0]
		ack.StudentID = &id
	}

	sessions, missing := e.targetSessions(target)
	for _, id := range missing {
		ack.Failed = append(ack.Failed, FailedTarget{
			StudentID: id,
			Code:      CodeSessionNotFound,
			Message:   "no timer session for student",
		})
	}

	for _, s := range sessions {
		s.mu.Lock()
		err := fn(s, now)
		view := s.view()
		studentConn := s.connID
		s.mu.Unlock()

		if err != nil {
			ack.Failed = append(ack.Failed, FailedTarget{
				StudentID: s.key.StudentID,
				Code:      CodeOf(err),
				Message:   messageOf(err),
			})
			continue
		}
		ack.Applied = append(ack.Applied, s.key.StudentID)
		e.coordinator.PushTimer(view, studentConn)
	}

	if target.All() {
		e.applyToExamClock(target.ExamID, now, fn)
	}

	log.Info().
		Str("exam_id", target.ExamID.String()).
		Str("command", string(name)).
		Str("issued_by", cc.UserID.String()).
		Int("applied", len(ack.Applied)).
		Int("failed", len(ack.Failed)).
		Msg("timer command applied")

	e.coordinator.BroadcastRoster(target.ExamID)
	e.refreshStatus(target.ExamID)

	// a command aimed at one student reports that student's failure directly
	if len(target.StudentIDs) == 1 && len(ack.Failed) == 1 {
		failed := ack.Failed[0]
		return nil, newCommandError(failed.Code, "%s", failed.Message)
	}
	return ack, nil
}

// applyToExamClock keeps the exam-level clock in step with exam-wide
// commands so late joiners inherit the class's remaining time.
func (e *Engine) applyToExamClock(examID uuid.UUID, now time.Time, fn transition) {
	meta, ok := e.examMeta(examID)
	if !ok {
		return
	}
	key := SessionKey{ExamID: examID}
	clock, _ := e.store.getOrCreate(key, func() *Session {
		return newSession(key, "", meta.durationSec, now)
	})
	clock.mu.Lock()
	defer clock.mu.Unlock()
	if err := fn(clock, now); err != nil {
		log.Debug().Err(err).Str("exam_id", examID.String()).Msg("exam clock unchanged")
	}
}

func (e *Engine) targetSessions(target Target) ([]*Session, []uuid.UUID) {
	if target.All() {
		return e.store.forExam(target.ExamID), nil
	}
	var (
		sessions []*Session
		missing  []uuid.UUID
		seen     = make(map[uuid.UUID]struct{}, len(target.StudentIDs))
	)
	for _, id := range target.StudentIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if id == uuid.Nil {
			missing = append(missing, id)
			continue
		}
		s, ok := e.store.get(SessionKey{ExamID: target.ExamID, StudentID: id})
		if !ok {
			missing = append(missing, id)
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, missing
}

// SelectStudent is the read-only dashboard query for one student.
func (e *Engine) SelectStudent(connID string, examID, studentID uuid.UUID) (SessionView, error) {
	if _, err := e.authorize(connID, examID); err != nil {
		return SessionView{}, err
	}
	view, ok := e.Session(examID, studentID)
	if !ok {
		return SessionView{}, newCommandError(CodeSessionNotFound, "no timer session for student %s", studentID)
	}
	return view, nil
}

// RemoveStudent deletes one session explicitly and cancels its tick.
func (e *Engine) RemoveStudent(connID string, examID, studentID uuid.UUID) (*CommandAck, error) {
	cc, err := e.authorize(connID, examID)
	if err != nil {
		return nil, err
	}
	key := SessionKey{ExamID: examID, StudentID: studentID}
	s, ok := e.store.remove(key)
	if !ok {
		return nil, newCommandError(CodeSessionNotFound, "no timer session for student %s", studentID)
	}
	s.mu.Lock()
	s.tickGen++
	e.scheduler.Cancel(key)
	s.mu.Unlock()

	log.Info().
		Str("exam_id", examID.String()).
		Str("student_id", studentID.String()).
		Str("issued_by", cc.UserID.String()).
		Msg("student session removed")

	e.coordinator.BroadcastRoster(examID)
	e.refreshStatus(examID)
	return &CommandAck{
		ExamID:    examID,
		StudentID: &studentID,
		Command:   CommandRemoveStudent,
		IssuedBy:  cc.UserID,
		Applied:   []uuid.UUID{studentID},
	}, nil
}

// RemoveExam drops every session of an exam, called when the exam is
// deleted by its owner service.
func (e *Engine) RemoveExam(examID uuid.UUID) int {
	removed := e.store.removeExam(examID)
	for _, s := range removed {
		s.mu.Lock()
		s.tickGen++
		e.scheduler.Cancel(s.key)
		s.mu.Unlock()
	}
	e.metaMu.Lock()
	delete(e.meta, examID)
	e.metaMu.Unlock()

	unlock := e.aggregates.lockExam(examID)
	e.aggregates.forget(examID)
	unlock()

	log.Info().Str("exam_id", examID.String()).Int("sessions", len(removed)).Msg("exam sessions removed")
	e.coordinator.BroadcastRoster(examID)
	return len(removed)
}
