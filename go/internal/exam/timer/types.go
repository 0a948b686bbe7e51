package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/models"
)

// Status is the state of a single student's countdown.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)

// TimerState is the countdown owned by one StudentTimerSession.
type TimerState struct {
	Status         Status     `json:"status"`
	RemainingTime  int        `json:"remaining_time"`
	TotalTime      int        `json:"total_time"`
	TimeAdjustment int        `json:"time_adjustment"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	PausedAt       *time.Time `json:"paused_at,omitempty"`
}

// SessionKey identifies a session. A zero StudentID addresses the
// exam-level clock that seeds late joiners.
type SessionKey struct {
	ExamID    uuid.UUID
	StudentID uuid.UUID
}

func (k SessionKey) isExamClock() bool {
	return k.StudentID == uuid.Nil
}

// SessionView is an immutable copy of a session, safe to hand to transports.
type SessionView struct {
	ExamID             uuid.UUID  `json:"exam_id"`
	StudentID          uuid.UUID  `json:"student_id"`
	DisplayName        string     `json:"display_name"`
	IsConnected        bool       `json:"is_connected"`
	JoinedAt           time.Time  `json:"joined_at"`
	LastDisconnectedAt *time.Time `json:"last_disconnected_at,omitempty"`
	TimerState
}

// SessionRecord is the persisted form of a session used by snapshot stores.
type SessionRecord struct {
	ExamID       uuid.UUID  `json:"exam_id"`
	StudentID    uuid.UUID  `json:"student_id"`
	DisplayName  string     `json:"display_name"`
	JoinedAt     time.Time  `json:"joined_at"`
	BaseDuration int        `json:"base_duration"`
	State        TimerState `json:"state"`
	SavedAt      time.Time  `json:"saved_at"`
}

// ConnectionContext is what the registry knows about a live connection.
type ConnectionContext struct {
	ConnectionID string      `json:"connection_id"`
	ExamID       uuid.UUID   `json:"exam_id"`
	UserID       uuid.UUID   `json:"user_id"`
	Role         models.Role `json:"role"`
	DisplayName  string      `json:"display_name"`
	JoinedAt     time.Time   `json:"joined_at"`
}

// Target selects the sessions a command applies to. No student ids means
// every student in the exam.
type Target struct {
	ExamID     uuid.UUID
	StudentIDs []uuid.UUID
}

// All reports whether the target addresses every student in the exam.
func (t Target) All() bool {
	return len(t.StudentIDs) == 0
}

// Config holds the tunables consumed by the engine.
type Config struct {
	MaxAdjustmentSec int           `yaml:"max_adjustment_sec"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	ReconnectGrace   time.Duration `yaml:"reconnect_grace"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		MaxAdjustmentSec: 3600,
		TickInterval:     time.Second,
		ReconnectGrace:   5 * time.Minute,
	}
}
