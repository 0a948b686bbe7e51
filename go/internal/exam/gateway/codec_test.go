package gateway

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	examID := uuid.New()
	userID := uuid.New()
	a, b := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		frame   string
		want    timer.Command
		wantErr bool
	}{
		{
			name:  "join",
			frame: `{"type":"join","exam_id":"` + examID.String() + `","user_id":"` + userID.String() + `"}`,
			want:  timer.Command{Type: timer.CommandJoin, ExamID: examID, UserID: userID},
		},
		{
			name:  "start everyone",
			frame: `{"type":"start","exam_id":"` + examID.String() + `","request_id":"r1"}`,
			want:  timer.Command{Type: timer.CommandStart, ExamID: examID, RequestID: "r1"},
		},
		{
			name:  "single student becomes a one element target",
			frame: `{"type":"pause","exam_id":"` + examID.String() + `","student_id":"` + a.String() + `"}`,
			want:  timer.Command{Type: timer.CommandPause, ExamID: examID, StudentIDs: []uuid.UUID{a}},
		},
		{
			name:  "adjust a list",
			frame: `{"type":"adjust","exam_id":"` + examID.String() + `","student_ids":["` + a.String() + `","` + b.String() + `"],"delta_seconds":-120}`,
			want:  timer.Command{Type: timer.CommandAdjust, ExamID: examID, StudentIDs: []uuid.UUID{a, b}, DeltaSeconds: -120},
		},
		{
			name:  "missing exam id is left to the engine",
			frame: `{"type":"reset"}`,
			want:  timer.Command{Type: timer.CommandReset},
		},
		{name: "not json", frame: `nope`, wantErr: true},
		{name: "missing type", frame: `{"exam_id":"` + examID.String() + `"}`, wantErr: true},
		{name: "bad exam id", frame: `{"type":"start","exam_id":"123"}`, wantErr: true},
		{name: "bad student id", frame: `{"type":"start","exam_id":"` + examID.String() + `","student_ids":["x"]}`, wantErr: true},
		{
			name:    "student_id and student_ids together",
			frame:   `{"type":"start","exam_id":"` + examID.String() + `","student_id":"` + a.String() + `","student_ids":["` + b.String() + `"]}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.frame))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
