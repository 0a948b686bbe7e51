package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// attachStudent binds the student's connection to its session, creating the
// session on first join. It returns the fresh view, the connection now owning
// the session and whether this was a reconnect.
func (e *Engine) attachStudent(cc ConnectionContext, meta examMeta) (SessionView, string, bool) {
	key := SessionKey{ExamID: cc.ExamID, StudentID: cc.UserID}
	now := e.clock.Now()

	seed, seeded := e.examClockState(cc.ExamID)
	s, created := e.store.getOrCreate(key, func() *Session {
		s := newSession(key, cc.DisplayName, meta.durationSec, now)
		if seeded {
			s.state.RemainingTime = seed.RemainingTime
			s.state.TotalTime = seed.TotalTime
			s.state.TimeAdjustment = seed.TimeAdjustment
			if seed.RemainingTime > 0 && seed.Status != StatusStopped {
				s.state.Status = seed.Status
				s.state.StartedAt = timePtr(now)
				if seed.Status == StatusPaused {
					s.state.PausedAt = timePtr(now)
				}
			}
		}
		return s
	})

	s.mu.Lock()
	previousConn := s.connID
	gap, wasAway := s.attach(cc.ConnectionID, cc.DisplayName, now)
	status := s.state.Status
	restarted := false
	// ticking belongs to the session; make sure a running one owns a tick
	if status == StatusRunning && !e.scheduler.Owns(key, s.tickGen) {
		s.tickGen++
		e.scheduler.Schedule(key, s.tickGen)
		restarted = !created
	}
	view := s.view()
	s.mu.Unlock()

	logger := log.With().
		Str("exam_id", cc.ExamID.String()).
		Str("student_id", cc.UserID.String()).
		Str("connection_id", cc.ConnectionID).
		Str("status", string(status)).
		Int("remaining_time", view.RemainingTime).
		Logger()

	switch {
	case created:
		logger.Info().Bool("seeded", seeded).Msg("student session created")
	case wasAway && status == StatusRunning && gap < e.config.ReconnectGrace:
		logger.Info().
			Dur("gap", gap).
			Bool("tick_restarted", restarted).
			Msg("student reconnected after network flap")
	case wasAway:
		logger.Info().Dur("gap", gap).Msg("student reconnected")
	case previousConn != "" && previousConn != cc.ConnectionID:
		logger.Info().Str("previous_connection_id", previousConn).Msg("session taken over by new connection")
	}

	return view, cc.ConnectionID, wasAway
}

// examClockState returns a copy of the exam-level clock, if one exists.
func (e *Engine) examClockState(examID uuid.UUID) (TimerState, bool) {
	clock, ok := e.store.get(SessionKey{ExamID: examID})
	if !ok {
		return TimerState{}, false
	}
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.state, true
}

// Restore re-creates sessions from persisted records. Restored students are
// disconnected until they join again. A running session loses the whole
// seconds that passed since it was saved and expires if nothing is left.
func (e *Engine) Restore(records []SessionRecord) int {
	now := e.clock.Now()
	restored := 0
	touched := make(map[uuid.UUID]struct{})

	for _, rec := range records {
		key := SessionKey{ExamID: rec.ExamID, StudentID: rec.StudentID}
		if _, exists := e.store.get(key); exists {
			continue
		}
		s := newSession(key, rec.DisplayName, rec.BaseDuration, rec.JoinedAt)
		s.state = rec.State
		s.state.StartedAt = copyTime(rec.State.StartedAt)
		s.state.PausedAt = copyTime(rec.State.PausedAt)
		if !key.isExamClock() {
			s.lastDisconnectedAt = timePtr(rec.SavedAt)
		}

		if _, ok := e.examMeta(rec.ExamID); !ok {
			e.metaMu.Lock()
			e.meta[rec.ExamID] = examMeta{durationSec: rec.BaseDuration}
			e.metaMu.Unlock()
		}

		e.store.put(s)

		s.mu.Lock()
		expired := false
		if s.state.Status == StatusRunning {
			elapsed := int(now.Sub(rec.SavedAt) / time.Second)
			if elapsed > 0 {
				s.state.RemainingTime = max(s.state.RemainingTime-elapsed, 0)
			}
			if s.state.RemainingTime == 0 {
				s.expire()
				expired = true
			} else {
				s.tickGen++
				e.scheduler.Schedule(key, s.tickGen)
			}
		}
		s.mu.Unlock()

		restored++
		touched[rec.ExamID] = struct{}{}

		if expired && !key.isExamClock() {
			e.finished(key, "")
		}
	}

	for examID := range touched {
		e.refreshStatus(examID)
	}
	log.Info().Int("sessions", restored).Int("exams", len(touched)).Msg("timer sessions restored")
	return restored
}

// Records returns the persisted form of every session of the exam, the exam
// clock included.
func (e *Engine) Records(examID uuid.UUID) []SessionRecord {
	now := e.clock.Now().UTC()
	var records []SessionRecord
	if clock, ok := e.store.get(SessionKey{ExamID: examID}); ok {
		clock.mu.Lock()
		records = append(records, clock.record(now))
		clock.mu.Unlock()
	}
	for _, s := range e.store.forExam(examID) {
		s.mu.Lock()
		records = append(records, s.record(now))
		s.mu.Unlock()
	}
	return records
}

// Exams lists every exam the engine holds sessions for.
func (e *Engine) Exams() []uuid.UUID {
	return e.store.exams()
}
