package timer

import (
	"context"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_Dispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.engine.Handle(ctx, "owner", Command{Type: CommandJoin, ExamID: env.examID, UserID: env.instructorID}))
	require.NoError(t, env.engine.Handle(ctx, "alice", Command{Type: CommandJoin, ExamID: env.examID, UserID: env.studentA}))
	assert.Equal(t, 1, env.sender.count(EventJoinResult, "alice"))

	err := env.engine.Handle(ctx, "owner", Command{Type: CommandStart, RequestID: "r1", ExamID: env.examID})
	require.NoError(t, err)
	msg, ok := env.sender.last(EventCommandAck, "owner")
	require.True(t, ok)
	assert.Equal(t, "r1", msg.RequestID)
	assert.Equal(t, CommandStart, msg.Data.(*CommandAck).Command)

	err = env.engine.Handle(ctx, "owner", Command{
		Type:       CommandSelectStudent,
		ExamID:     env.examID,
		StudentIDs: []uuid.UUID{env.studentA},
	})
	require.NoError(t, err)
	msg, ok = env.sender.last(EventStudentSelected, "owner")
	require.True(t, ok)
	assert.Equal(t, env.studentA, msg.Data.(SessionView).StudentID)
}

func TestHandle_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.True(t, env.join(t, "owner", env.instructorID).Success)
	require.True(t, env.join(t, "alice", env.studentA).Success)

	tests := []struct {
		name   string
		connID string
		cmd    Command
		code   ErrorCode
	}{
		{"unknown command", "owner", Command{Type: "explode", ExamID: env.examID}, CodeInvalidRequest},
		{"missing exam", "owner", Command{Type: CommandStart}, CodeInvalidRequest},
		{"student issues pause", "alice", Command{Type: CommandPause, ExamID: env.examID}, CodeNotAuthority},
		{"adjust too large", "owner", Command{Type: CommandAdjust, ExamID: env.examID, DeltaSeconds: 7200}, CodeAdjustmentTooLarge},
		{"adjust at smallest int", "owner", Command{Type: CommandAdjust, ExamID: env.examID, DeltaSeconds: math.MinInt}, CodeAdjustmentTooLarge},
		{"zero adjust", "owner", Command{Type: CommandAdjust, ExamID: env.examID}, CodeInvalidRequest},
		{"select without student", "owner", Command{Type: CommandSelectStudent, ExamID: env.examID}, CodeInvalidRequest},
		{"select unknown student", "owner", Command{Type: CommandSelectStudent, ExamID: env.examID, StudentIDs: []uuid.UUID{uuid.New()}}, CodeSessionNotFound},
		{"other exam", "owner", Command{Type: CommandReset, ExamID: uuid.New()}, CodeNotJoined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.engine.Handle(ctx, tt.connID, tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))

			msg, ok := env.sender.last(EventError, tt.connID)
			require.True(t, ok)
			assert.Equal(t, tt.code, msg.Data.(ErrorPayload).Code)
		})
	}

	// rejected commands never drop the connection
	_, joined := env.engine.Resolve("alice")
	assert.True(t, joined)
}

func TestHandle_Leave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.True(t, env.join(t, "alice", env.studentA).Success)

	require.NoError(t, env.engine.Handle(ctx, "alice", Command{Type: CommandLeave, ExamID: env.examID}))
	_, joined := env.engine.Resolve("alice")
	assert.False(t, joined)
	assert.False(t, env.session(t, env.studentA).IsConnected)

	err := env.engine.Handle(ctx, "alice", Command{Type: CommandLeave, ExamID: env.examID})
	assert.Equal(t, CodeNotJoined, CodeOf(err))
}
