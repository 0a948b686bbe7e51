package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	envelopes []Envelope
	failures  int
}

func (p *fakePublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("bus unavailable")
	}
	p.envelopes = append(p.envelopes, env)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.envelopes...)
}

func finishedEvent() timer.DomainEvent {
	return timer.DomainEvent{
		ID:         uuid.New(),
		Type:       timer.DomainStudentTimerFinished,
		ExamID:     uuid.New(),
		StudentID:  uuid.New(),
		OccurredAt: time.Now(),
	}
}

func TestNewEnvelope(t *testing.T) {
	ev := timer.DomainEvent{
		ID:         uuid.New(),
		Type:       timer.DomainStudentTimerAdjusted,
		ExamID:     uuid.New(),
		StudentID:  uuid.New(),
		OccurredAt: time.Now(),
		Payload:    timer.AdjustedPayload{DeltaSeconds: 300, RemainingTime: 900},
	}

	env, err := NewEnvelope(ev)
	require.NoError(t, err)
	assert.Equal(t, ev.ID.String(), env.EventID)
	assert.Equal(t, ev.StudentID.String(), env.StudentID)
	assert.Equal(t, "exam.events.StudentTimerAdjusted."+ev.ExamID.String(), subjectFor("exam.events", env))

	var payload timer.AdjustedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, 300, payload.DeltaSeconds)

	ev.StudentID = uuid.Nil
	ev.Payload = nil
	env, err = NewEnvelope(ev)
	require.NoError(t, err)
	assert.Empty(t, env.StudentID)
	assert.JSONEq(t, "{}", string(env.Payload))
}

func TestDispatcher_PublishesInBackground(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	d := NewDispatcher(pub, Config{BufferSize: 8, MaxRetries: 2, RetryDelay: time.Millisecond})
	require.NoError(t, d.Start(context.Background()))

	ev := finishedEvent()
	d.PublishEvent(ev)

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ev.ID.String(), pub.published()[0].EventID)

	require.NoError(t, d.Stop())
	assert.Error(t, d.Stop())
	assert.Equal(t, uint64(1), d.Stats()["published"])
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, Config{BufferSize: 2, MaxRetries: 0})

	for i := 0; i < 5; i++ {
		d.PublishEvent(finishedEvent())
	}
	assert.Equal(t, uint64(3), d.Stats()["dropped"])

	// queued events are flushed on stop
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop())
	assert.Len(t, pub.published(), 2)
}

func TestDispatcher_GivesUpAfterRetries(t *testing.T) {
	pub := &fakePublisher{failures: 10}
	d := NewDispatcher(pub, Config{BufferSize: 4, MaxRetries: 1, RetryDelay: time.Millisecond})
	require.NoError(t, d.Start(context.Background()))

	d.PublishEvent(finishedEvent())
	require.Eventually(t, func() bool { return d.Stats()["failed"] == uint64(1) }, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop())
	assert.Empty(t, pub.published())
}
