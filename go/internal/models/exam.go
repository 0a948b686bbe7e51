package models

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus defines the aggregate status of an exam.
type ExamStatus string

const (
	ExamStatusStopped   ExamStatus = "stopped"
	ExamStatusRunning   ExamStatus = "running"
	ExamStatusPaused    ExamStatus = "paused"
	ExamStatusCompleted ExamStatus = "completed"
)

// Exam represents an exam record owned by the persistence layer.
type Exam struct {
	ID                  uuid.UUID   `json:"id"`
	Title               string      `json:"title"`
	DurationSec         int         `json:"duration_sec"`
	InstructorID        uuid.UUID   `json:"instructor_id"`
	Status              ExamStatus  `json:"status"`
	StartedAt           *time.Time  `json:"started_at,omitempty"`
	PausedAt            *time.Time  `json:"paused_at,omitempty"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty"`
	ConnectedStudentIDs []uuid.UUID `json:"connected_student_ids"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// ExamStatusUpdate is the set of fields the timer engine asks to persist
// whenever the aggregate state of an exam changes.
type ExamStatusUpdate struct {
	Status              ExamStatus  `json:"status"`
	StartedAt           *time.Time  `json:"started_at,omitempty"`
	PausedAt            *time.Time  `json:"paused_at,omitempty"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty"`
	ConnectedStudentIDs []uuid.UUID `json:"connected_student_ids"`
}
