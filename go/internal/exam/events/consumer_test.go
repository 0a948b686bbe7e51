package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemover struct {
	removed []uuid.UUID
}

func (f *fakeRemover) RemoveExam(examID uuid.UUID) int {
	f.removed = append(f.removed, examID)
	return 2
}

func lifecycleMessage(t *testing.T, eventType timer.DomainEventType, examID string) []byte {
	t.Helper()
	data, err := json.Marshal(Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		ExamID:    examID,
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage("{}"),
	})
	require.NoError(t, err)
	return data
}

func TestLifecycleConsumer_ExamDeletedRemovesSessions(t *testing.T) {
	remover := &fakeRemover{}
	lc := &LifecycleConsumer{remover: remover, config: DefaultLifecycleConsumerConfig()}
	examID := uuid.New()

	require.NoError(t, lc.Apply(lifecycleMessage(t, LifecycleExamDeleted, examID.String())))
	assert.Equal(t, []uuid.UUID{examID}, remover.removed)
}

func TestLifecycleConsumer_RejectsBadMessages(t *testing.T) {
	remover := &fakeRemover{}
	lc := &LifecycleConsumer{remover: remover, config: DefaultLifecycleConsumerConfig()}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not json", []byte("{"), ErrMalformedEnvelope},
		{"bad exam id", lifecycleMessage(t, LifecycleExamDeleted, "nope"), ErrMalformedEnvelope},
		{"unknown type", lifecycleMessage(t, "ExamRenamed", uuid.NewString()), ErrUnknownLifecycleEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, lc.Apply(tt.data), tt.want)
		})
	}
	assert.Empty(t, remover.removed)
}
