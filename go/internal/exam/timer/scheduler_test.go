package timer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickRecorder struct {
	mu      sync.Mutex
	ticks   map[SessionKey][]uint64
	batches int
	limit   int
}

func (r *tickRecorder) onTick(key SessionKey, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ticks == nil {
		r.ticks = make(map[SessionKey][]uint64)
	}
	r.ticks[key] = append(r.ticks[key], gen)
	return r.limit == 0 || len(r.ticks[key]) < r.limit
}

func (r *tickRecorder) onBatch([]uuid.UUID) {
	r.mu.Lock()
	r.batches++
	r.mu.Unlock()
}

func (r *tickRecorder) count(key SessionKey) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks[key])
}

func newTestScheduler(rec *tickRecorder) (*Scheduler, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewScheduler(clock, time.Second, rec.onTick, rec.onBatch), clock
}

func TestScheduler_ScheduleIsIdempotentPerGeneration(t *testing.T) {
	rec := &tickRecorder{}
	s, clock := newTestScheduler(rec)
	key := SessionKey{ExamID: uuid.New(), StudentID: uuid.New()}

	s.Schedule(key, 1)
	s.Schedule(key, 1)
	clock.Advance(time.Second)
	s.drainDue()

	assert.Equal(t, 1, rec.count(key))
	assert.Equal(t, 1, rec.batches)
}

func TestScheduler_ReplaceDropsOldGeneration(t *testing.T) {
	rec := &tickRecorder{}
	s, clock := newTestScheduler(rec)
	key := SessionKey{ExamID: uuid.New(), StudentID: uuid.New()}

	s.Schedule(key, 1)
	s.Schedule(key, 2)
	clock.Advance(time.Second)
	s.drainDue()

	assert.Equal(t, []uint64{2}, rec.ticks[key])
	assert.True(t, s.Owns(key, 2))
	assert.False(t, s.Owns(key, 1))
}

func TestScheduler_CancelStopsTicks(t *testing.T) {
	rec := &tickRecorder{}
	s, clock := newTestScheduler(rec)
	key := SessionKey{ExamID: uuid.New(), StudentID: uuid.New()}

	s.Schedule(key, 1)
	clock.Advance(time.Second)
	s.drainDue()
	s.Cancel(key)
	clock.Advance(5 * time.Second)
	s.drainDue()

	assert.Equal(t, 1, rec.count(key))
	assert.False(t, s.Active(key))
	_, ok := s.nextDeadline()
	assert.False(t, ok)
}

func TestScheduler_CatchesUpMissedIntervals(t *testing.T) {
	rec := &tickRecorder{}
	s, clock := newTestScheduler(rec)
	key := SessionKey{ExamID: uuid.New(), StudentID: uuid.New()}

	s.Schedule(key, 1)
	clock.Advance(5 * time.Second)
	assert.Equal(t, 5, s.drainDue())
	assert.Equal(t, 5, rec.count(key))
	assert.Equal(t, 1, rec.batches)
}

func TestScheduler_HandlerEndsTicking(t *testing.T) {
	rec := &tickRecorder{limit: 3}
	s, clock := newTestScheduler(rec)
	key := SessionKey{ExamID: uuid.New(), StudentID: uuid.New()}

	s.Schedule(key, 7)
	for i := 0; i < 6; i++ {
		clock.Advance(time.Second)
		s.drainDue()
	}

	assert.Equal(t, 3, rec.count(key))
	assert.Zero(t, s.ActiveCount())
}

func TestScheduler_IndependentKeys(t *testing.T) {
	rec := &tickRecorder{}
	s, clock := newTestScheduler(rec)
	a := SessionKey{ExamID: uuid.New(), StudentID: uuid.New()}
	b := SessionKey{ExamID: a.ExamID, StudentID: uuid.New()}

	s.Schedule(a, 1)
	clock.Advance(500 * time.Millisecond)
	s.Schedule(b, 1)
	clock.Advance(500 * time.Millisecond)
	s.drainDue()

	assert.Equal(t, 1, rec.count(a))
	assert.Equal(t, 0, rec.count(b))

	clock.Advance(500 * time.Millisecond)
	s.drainDue()
	assert.Equal(t, 1, rec.count(b))
}

func TestScheduler_Run(t *testing.T) {
	var ticks atomic.Int32
	clock := clockwork.NewFakeClock()
	s := NewScheduler(clock, time.Second, func(SessionKey, uint64) bool {
		ticks.Add(1)
		return true
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Schedule(SessionKey{ExamID: uuid.New(), StudentID: uuid.New()}, 1)
	require.Eventually(t, func() bool {
		clock.Advance(time.Second)
		return ticks.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
