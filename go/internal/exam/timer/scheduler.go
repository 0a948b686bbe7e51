package timer

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// tickHandler applies one tick and reports whether the key keeps ticking.
type tickHandler func(key SessionKey, gen uint64) bool

// batchHandler runs after each drain with the exams that ticked.
type batchHandler func(exams []uuid.UUID)

// Scheduler drives every running session from a single min-heap of
// next-tick deadlines instead of one timer per session.
type Scheduler struct {
	clock    Clock
	interval time.Duration
	onTick   tickHandler
	onBatch  batchHandler

	mu     sync.Mutex
	queue  deadlineQueue
	active map[SessionKey]uint64 // key -> generation allowed to tick
	wakeCh chan struct{}
}

// NewScheduler creates a scheduler ticking every interval
func NewScheduler(clock Clock, interval time.Duration, onTick tickHandler, onBatch batchHandler) *Scheduler {
	return &Scheduler{
		clock:    clock,
		interval: interval,
		onTick:   onTick,
		onBatch:  onBatch,
		active:   make(map[SessionKey]uint64),
		wakeCh:   make(chan struct{}, 1),
	}
}

// Schedule makes gen the only tick owner for key, replacing any previous
// one, with the first tick one interval from now.
func (s *Scheduler) Schedule(key SessionKey, gen uint64) {
	s.ScheduleAt(key, gen, s.clock.Now().Add(s.interval))
}

// ScheduleAt is Schedule with an explicit first deadline.
func (s *Scheduler) ScheduleAt(key SessionKey, gen uint64, deadline time.Time) {
	s.mu.Lock()
	old, exists := s.active[key]
	if exists && old == gen {
		s.mu.Unlock()
		return
	}
	if exists {
		log.Debug().
			Str("exam_id", key.ExamID.String()).
			Str("student_id", key.StudentID.String()).
			Msg("replaced existing tick")
	}
	s.active[key] = gen
	heap.Push(&s.queue, &deadlineEntry{key: key, gen: gen, deadline: deadline})
	s.mu.Unlock()

	s.wake()
}

// Cancel stops ticking for key. Queued entries are discarded lazily.
func (s *Scheduler) Cancel(key SessionKey) {
	s.mu.Lock()
	delete(s.active, key)
	s.mu.Unlock()
}

// Active reports whether key currently owns a tick.
func (s *Scheduler) Active(key SessionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[key]
	return ok
}

// Owns reports whether gen is the tick owner for key.
func (s *Scheduler) Owns(key SessionKey, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.active[key]
	return ok && current == gen
}

// ActiveCount returns the number of keys currently ticking.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run loops until ctx is done, sleeping until the next deadline.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("countdown scheduler started")

	const idleWait = time.Minute
	timer := s.clock.NewTimer(idleWait)
	defer timer.Stop()

	for {
		s.drainDue()

		wait := idleWait
		if next, ok := s.nextDeadline(); ok {
			wait = max(next.Sub(s.clock.Now()), 0)
		}
		stopAndDrainTimer(timer)
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			log.Info().Msg("countdown scheduler shutting down")
			return
		case <-s.wakeCh:
		case <-timer.Chan():
		}
	}
}

func (s *Scheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() > 0 {
		top := s.queue[0]
		if gen, ok := s.active[top.key]; ok && gen == top.gen {
			return top.deadline, true
		}
		// drop cancelled or replaced entries
		heap.Pop(&s.queue)
	}
	return time.Time{}, false
}

// drainDue fires every tick whose deadline has passed. A key that is
// several intervals behind ticks once per missed interval.
func (s *Scheduler) drainDue() int {
	now := s.clock.Now()
	fired := 0
	touched := make(map[uuid.UUID]struct{})

	for {
		s.mu.Lock()
		if s.queue.Len() == 0 || s.queue[0].deadline.After(now) {
			s.mu.Unlock()
			break
		}
		entry := heap.Pop(&s.queue).(*deadlineEntry)
		gen, ok := s.active[entry.key]
		s.mu.Unlock()
		if !ok || gen != entry.gen {
			continue
		}

		// the handler takes the session lock, never call it with s.mu held
		keep := s.onTick(entry.key, entry.gen)
		fired++
		touched[entry.key.ExamID] = struct{}{}

		s.mu.Lock()
		if current, ok := s.active[entry.key]; ok && current == entry.gen {
			if keep {
				entry.deadline = entry.deadline.Add(s.interval)
				heap.Push(&s.queue, entry)
			} else {
				delete(s.active, entry.key)
			}
		}
		s.mu.Unlock()
	}

	if len(touched) > 0 && s.onBatch != nil {
		exams := make([]uuid.UUID, 0, len(touched))
		for id := range touched {
			exams = append(exams, id)
		}
		s.onBatch(exams)
	}
	return fired
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

type deadlineEntry struct {
	key      SessionKey
	gen      uint64
	deadline time.Time
}

// deadlineQueue implements heap.Interface ordered by deadline.
type deadlineQueue []*deadlineEntry

func (q deadlineQueue) Len() int           { return len(q) }
func (q deadlineQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q deadlineQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *deadlineQueue) Push(x any) {
	*q = append(*q, x.(*deadlineEntry))
}

func (q *deadlineQueue) Pop() any {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return entry
}
