package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/models"
)

// MessageType names every inbound command and outbound event.
type MessageType string

// Inbound commands
const (
	CommandJoin          MessageType = "join"
	CommandLeave         MessageType = "leave"
	CommandStart         MessageType = "start"
	CommandPause         MessageType = "pause"
	CommandReset         MessageType = "reset"
	CommandAdjust        MessageType = "adjust"
	CommandSelectStudent MessageType = "selectStudent"
	CommandRemoveStudent MessageType = "removeStudent"
)

// Outbound events
const (
	EventJoinResult      MessageType = "joinResult"
	EventTimerUpdate     MessageType = "timerUpdate"
	EventTimerFinished   MessageType = "timerFinished"
	EventRosterUpdate    MessageType = "rosterUpdate"
	EventCommandAck      MessageType = "commandAck"
	EventStudentSelected MessageType = "studentSelected"
	EventError           MessageType = "error"
)

// Command is a decoded inbound request. A single student_id is carried as a
// one-element StudentIDs slice.
type Command struct {
	Type         MessageType
	RequestID    string
	ExamID       uuid.UUID
	UserID       uuid.UUID
	StudentIDs   []uuid.UUID
	DeltaSeconds int
}

// Message is an outbound event addressed to one or more connections.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	ExamID    string      `json:"exam_id,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// JoinResult is returned for every join attempt, successful or not.
type JoinResult struct {
	Success     bool        `json:"success"`
	Role        models.Role `json:"role,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
	ErrorCode   ErrorCode   `json:"error_code,omitempty"`
	Message     string      `json:"message,omitempty"`
	Reconnected bool        `json:"reconnected,omitempty"`
}

// TimerFinishedPayload is sent once when a student's countdown expires.
type TimerFinishedPayload struct {
	ExamID     uuid.UUID `json:"exam_id"`
	StudentID  uuid.UUID `json:"student_id"`
	FinishedAt time.Time `json:"finished_at"`
}

// RosterUpdatePayload is the ordered snapshot of every session in an exam.
type RosterUpdatePayload struct {
	ExamID   uuid.UUID     `json:"exam_id"`
	Students []SessionView `json:"students"`
}

// FailedTarget reports a per-student failure inside a bulk command.
type FailedTarget struct {
	StudentID uuid.UUID `json:"student_id"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
}

// CommandAck acknowledges an authority command.
type CommandAck struct {
	ExamID    uuid.UUID      `json:"exam_id"`
	StudentID *uuid.UUID     `json:"student_id,omitempty"`
	Command   MessageType    `json:"command"`
	IssuedBy  uuid.UUID      `json:"issued_by"`
	Applied   []uuid.UUID    `json:"applied"`
	Failed    []FailedTarget `json:"failed,omitempty"`
}

// ErrorPayload carries a rejected command back to its caller.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DomainEventType names events published to other services.
type DomainEventType string

const (
	DomainExamStatusChanged    DomainEventType = "ExamStatusChanged"
	DomainStudentTimerFinished DomainEventType = "StudentTimerFinished"
	DomainStudentTimerAdjusted DomainEventType = "StudentTimerAdjusted"
)

// DomainEvent is handed to an EventPublisher.
type DomainEvent struct {
	ID         uuid.UUID       `json:"id"`
	Type       DomainEventType `json:"type"`
	ExamID     uuid.UUID       `json:"exam_id"`
	StudentID  uuid.UUID       `json:"student_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    any             `json:"payload,omitempty"`
}

// AdjustedPayload is the payload of a StudentTimerAdjusted event.
type AdjustedPayload struct {
	DeltaSeconds  int       `json:"delta_seconds"`
	RemainingTime int       `json:"remaining_time"`
	IssuedBy      uuid.UUID `json:"issued_by"`
}
