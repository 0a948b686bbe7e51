package timer

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// commandFunc handles one decoded command and returns the reply for the
// caller. An empty reply type means the handler already answered.
type commandFunc func(ctx context.Context, connID string, cmd Command) (MessageType, any, error)

func (e *Engine) commandHandlers() map[MessageType]commandFunc {
	return map[MessageType]commandFunc{
		CommandJoin:          e.handleJoin,
		CommandLeave:         e.handleLeave,
		CommandStart:         e.bulk(e.Start),
		CommandPause:         e.bulk(e.Pause),
		CommandReset:         e.bulk(e.Reset),
		CommandAdjust:        e.handleAdjust,
		CommandSelectStudent: e.handleSelectStudent,
		CommandRemoveStudent: e.handleRemoveStudent,
	}
}

// Handle dispatches an inbound command through the lookup table and sends
// the reply, or a typed error, back to the calling connection.
func (e *Engine) Handle(ctx context.Context, connID string, cmd Command) error {
	handler, ok := e.handlers[cmd.Type]
	if !ok {
		err := newCommandError(CodeInvalidRequest, "unknown command %q", cmd.Type)
		e.coordinator.SendError(connID, cmd.ExamID, cmd.RequestID, err)
		return err
	}
	if cmd.ExamID == uuid.Nil {
		err := newCommandError(CodeInvalidRequest, "exam_id is required")
		e.coordinator.SendError(connID, cmd.ExamID, cmd.RequestID, err)
		return err
	}

	replyType, reply, err := handler(ctx, connID, cmd)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", connID).
			Str("command", string(cmd.Type)).
			Msg("command rejected")
		e.coordinator.SendError(connID, cmd.ExamID, cmd.RequestID, err)
		return err
	}
	if replyType != "" {
		e.coordinator.SendTo(connID, replyType, cmd.ExamID, cmd.RequestID, reply)
	}
	return nil
}

func (e *Engine) handleJoin(ctx context.Context, connID string, cmd Command) (MessageType, any, error) {
	if cmd.UserID == uuid.Nil {
		return "", nil, newCommandError(CodeInvalidRequest, "user_id is required")
	}
	// Join answers with its own joinResult
	e.Join(ctx, connID, cmd.ExamID, cmd.UserID)
	return "", nil, nil
}

func (e *Engine) handleLeave(_ context.Context, connID string, cmd Command) (MessageType, any, error) {
	cc, _ := e.registry.Resolve(connID)
	if err := e.LeaveExam(connID, cmd.ExamID); err != nil {
		return "", nil, err
	}
	return EventCommandAck, &CommandAck{
		ExamID:   cmd.ExamID,
		Command:  CommandLeave,
		IssuedBy: cc.UserID,
		Applied:  []uuid.UUID{},
	}, nil
}

func (e *Engine) bulk(fn func(connID string, target Target) (*CommandAck, error)) commandFunc {
	return func(_ context.Context, connID string, cmd Command) (MessageType, any, error) {
		ack, err := fn(connID, Target{ExamID: cmd.ExamID, StudentIDs: cmd.StudentIDs})
		if err != nil {
			return "", nil, err
		}
		return EventCommandAck, ack, nil
	}
}

func (e *Engine) handleAdjust(_ context.Context, connID string, cmd Command) (MessageType, any, error) {
	if cmd.DeltaSeconds == 0 {
		return "", nil, newCommandError(CodeInvalidRequest, "delta_seconds must not be zero")
	}
	ack, err := e.Adjust(connID, Target{ExamID: cmd.ExamID, StudentIDs: cmd.StudentIDs}, cmd.DeltaSeconds)
	if err != nil {
		return "", nil, err
	}
	return EventCommandAck, ack, nil
}

func (e *Engine) handleSelectStudent(_ context.Context, connID string, cmd Command) (MessageType, any, error) {
	if len(cmd.StudentIDs) != 1 {
		return "", nil, newCommandError(CodeInvalidRequest, "exactly one student_id is required")
	}
	view, err := e.SelectStudent(connID, cmd.ExamID, cmd.StudentIDs[0])
	if err != nil {
		return "", nil, err
	}
	return EventStudentSelected, view, nil
}

func (e *Engine) handleRemoveStudent(_ context.Context, connID string, cmd Command) (MessageType, any, error) {
	if len(cmd.StudentIDs) != 1 {
		return "", nil, newCommandError(CodeInvalidRequest, "exactly one student_id is required")
	}
	ack, err := e.RemoveStudent(connID, cmd.ExamID, cmd.StudentIDs[0])
	if err != nil {
		return "", nil, err
	}
	return EventCommandAck, ack, nil
}
