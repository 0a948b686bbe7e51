package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
)

// ErrMalformedEnvelope is returned for bus messages that cannot be decoded.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the wire form of a domain event on the bus.
type Envelope struct {
	EventID   string                `json:"eventId"`
	EventType timer.DomainEventType `json:"eventType"`
	ExamID    string                `json:"examId"`
	StudentID string                `json:"studentId,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
	Payload   json.RawMessage       `json:"payload"`
}

// NewEnvelope encodes a domain event for publication.
func NewEnvelope(ev timer.DomainEvent) (Envelope, error) {
	payload := json.RawMessage("{}")
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal payload: %w", err)
		}
		payload = data
	}

	env := Envelope{
		EventID:   ev.ID.String(),
		EventType: ev.Type,
		ExamID:    ev.ExamID.String(),
		Timestamp: ev.OccurredAt.UTC(),
		Payload:   payload,
	}
	if ev.StudentID != uuid.Nil {
		env.StudentID = ev.StudentID.String()
	}
	return env, nil
}

// subjectFor builds "<prefix>.<eventType>.<examId>".
func subjectFor(prefix string, env Envelope) string {
	return fmt.Sprintf("%s.%s.%s", prefix, env.EventType, env.ExamID)
}
