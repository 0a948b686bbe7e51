package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
)

// ErrMalformedMessage is returned when a client frame cannot be decoded.
var ErrMalformedMessage = errors.New("malformed message")

// ClientMessage is the wire form of an inbound command.
type ClientMessage struct {
	Type         timer.MessageType `json:"type"`
	RequestID    string            `json:"request_id,omitempty"`
	ExamID       string            `json:"exam_id"`
	UserID       string            `json:"user_id,omitempty"`
	StudentID    string            `json:"student_id,omitempty"`
	StudentIDs   []string          `json:"student_ids,omitempty"`
	DeltaSeconds int               `json:"delta_seconds,omitempty"`
}

// DecodeCommand parses a client frame into a typed command. A single
// student_id and a student_ids list may not be combined.
func DecodeCommand(data []byte) (timer.Command, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return timer.Command{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return timer.Command{}, fmt.Errorf("%w: type is required", ErrMalformedMessage)
	}

	cmd := timer.Command{
		Type:         msg.Type,
		RequestID:    msg.RequestID,
		DeltaSeconds: msg.DeltaSeconds,
	}

	var err error
	if cmd.ExamID, err = parseOptionalID("exam_id", msg.ExamID); err != nil {
		return cmd, err
	}
	if cmd.UserID, err = parseOptionalID("user_id", msg.UserID); err != nil {
		return cmd, err
	}

	if msg.StudentID != "" && len(msg.StudentIDs) > 0 {
		return cmd, fmt.Errorf("%w: student_id and student_ids are mutually exclusive", ErrMalformedMessage)
	}
	ids := msg.StudentIDs
	if msg.StudentID != "" {
		ids = []string{msg.StudentID}
	}
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return cmd, fmt.Errorf("%w: invalid student id %q", ErrMalformedMessage, raw)
		}
		cmd.StudentIDs = append(cmd.StudentIDs, id)
	}
	return cmd, nil
}

func parseOptionalID(field, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", ErrMalformedMessage, field)
	}
	return id, nil
}

// decodeErrorMessage builds the error event sent back for an undecodable frame.
func decodeErrorMessage(err error, now time.Time) *timer.Message {
	return &timer.Message{
		ID:        uuid.NewString(),
		Type:      timer.EventError,
		Timestamp: now.UTC(),
		Data: timer.ErrorPayload{
			Code:    timer.CodeInvalidRequest,
			Message: err.Error(),
		},
	}
}
