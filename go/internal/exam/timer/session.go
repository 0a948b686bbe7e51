package timer

import (
	"sync"
	"time"
)

// tickResult is what a scheduled tick did to its session.
type tickResult int

const (
	tickStale tickResult = iota
	tickApplied
	tickExpired
)

// Session is the StudentTimerSession for one (exam, student) pair.
// Every transition below requires mu to be held by the caller.
type Session struct {
	mu sync.Mutex

	key          SessionKey
	displayName  string
	baseDuration int
	joinedAt     time.Time

	// connID is empty while the student is disconnected.
	connID             string
	connected          bool
	lastDisconnectedAt *time.Time

	state TimerState

	// tickGen identifies the tick allowed to mutate this session. Any
	// transition out of running bumps it so stale ticks become no-ops.
	tickGen uint64
}

func newSession(key SessionKey, displayName string, duration int, joinedAt time.Time) *Session {
	return &Session{
		key:          key,
		displayName:  displayName,
		baseDuration: duration,
		joinedAt:     joinedAt,
		state: TimerState{
			Status:        StatusStopped,
			RemainingTime: duration,
			TotalTime:     duration,
		},
	}
}

// start moves stopped or paused to running and returns the tick generation
// the scheduler must use.
func (s *Session) start(now time.Time) (uint64, error) {
	switch s.state.Status {
	case StatusStopped, StatusPaused:
	default:
		return 0, newCommandError(CodeInvalidTransition, "cannot start a %s timer", s.state.Status)
	}
	if s.state.RemainingTime <= 0 {
		return 0, newCommandError(CodeInvalidTransition, "no time remaining")
	}

	s.state.Status = StatusRunning
	s.state.StartedAt = timePtr(now)
	s.state.PausedAt = nil
	s.tickGen++
	return s.tickGen, nil
}

func (s *Session) pause(now time.Time) error {
	if s.state.Status != StatusRunning {
		return newCommandError(CodeInvalidTransition, "cannot pause a %s timer", s.state.Status)
	}
	s.state.Status = StatusPaused
	s.state.PausedAt = timePtr(now)
	s.tickGen++
	return nil
}

// reset drops every adjustment and restores the exam's original duration.
func (s *Session) reset() {
	s.state = TimerState{
		Status:        StatusStopped,
		RemainingTime: s.baseDuration,
		TotalTime:     s.baseDuration,
	}
	s.tickGen++
}

// adjust shifts remaining and total time by delta. Only remaining time is
// clamped at zero. A running or paused timer drained to zero expires, and
// adjust reports true.
func (s *Session) adjust(delta int) bool {
	s.state.RemainingTime = max(s.state.RemainingTime+delta, 0)
	s.state.TotalTime += delta
	s.state.TimeAdjustment += delta
	if s.state.RemainingTime == 0 && s.state.Status != StatusStopped {
		s.expire()
		return true
	}
	return false
}

// tick applies one decrement if gen still owns the session.
func (s *Session) tick(gen uint64) tickResult {
	if s.state.Status != StatusRunning || gen != s.tickGen {
		return tickStale
	}
	if s.state.RemainingTime > 0 {
		s.state.RemainingTime--
	}
	if s.state.RemainingTime == 0 {
		s.expire()
		return tickExpired
	}
	return tickApplied
}

func (s *Session) expire() {
	s.state.Status = StatusStopped
	s.state.RemainingTime = 0
	s.state.StartedAt = nil
	s.state.PausedAt = nil
	s.tickGen++
}

// attach binds a new connection and returns how long the student was away.
func (s *Session) attach(connID, displayName string, now time.Time) (time.Duration, bool) {
	var gap time.Duration
	wasAway := s.lastDisconnectedAt != nil
	if wasAway {
		gap = now.Sub(*s.lastDisconnectedAt)
	}
	if displayName != "" {
		s.displayName = displayName
	}
	s.connID = connID
	s.connected = true
	s.lastDisconnectedAt = nil
	return gap, wasAway
}

// detach marks the session disconnected if connID still owns it. Ticking is
// not touched.
func (s *Session) detach(connID string, now time.Time) bool {
	if !s.connected || s.connID != connID {
		return false
	}
	s.connID = ""
	s.connected = false
	s.lastDisconnectedAt = timePtr(now)
	return true
}

func (s *Session) view() SessionView {
	v := SessionView{
		ExamID:      s.key.ExamID,
		StudentID:   s.key.StudentID,
		DisplayName: s.displayName,
		IsConnected: s.connected,
		JoinedAt:    s.joinedAt,
		TimerState:  s.state,
	}
	v.StartedAt = copyTime(s.state.StartedAt)
	v.PausedAt = copyTime(s.state.PausedAt)
	v.LastDisconnectedAt = copyTime(s.lastDisconnectedAt)
	return v
}

func (s *Session) record(savedAt time.Time) SessionRecord {
	state := s.state
	state.StartedAt = copyTime(s.state.StartedAt)
	state.PausedAt = copyTime(s.state.PausedAt)
	return SessionRecord{
		ExamID:       s.key.ExamID,
		StudentID:    s.key.StudentID,
		DisplayName:  s.displayName,
		JoinedAt:     s.joinedAt,
		BaseDuration: s.baseDuration,
		State:        state,
		SavedAt:      savedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
