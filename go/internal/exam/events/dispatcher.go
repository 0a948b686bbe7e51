package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/rs/zerolog/log"
)

type Config struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize: 1024,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Dispatcher queues domain events from the timer engine and publishes them
// in the background. PublishEvent never blocks; a full queue drops the event.
type Dispatcher struct {
	publisher Publisher
	config    Config
	queue     chan timer.DomainEvent

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(publisher Publisher, cfg Config) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Dispatcher{
		publisher: publisher,
		config:    cfg,
		queue:     make(chan timer.DomainEvent, cfg.BufferSize),
		stopChan:  make(chan struct{}),
	}
}

// PublishEvent implements timer.EventPublisher.
func (d *Dispatcher) PublishEvent(ev timer.DomainEvent) {
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		log.Warn().
			Str("event_type", string(ev.Type)).
			Str("exam_id", ev.ExamID.String()).
			Msg("event queue full, dropping domain event")
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("event dispatcher already running")
	}
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(ctx)

	log.Info().
		Int("buffer_size", d.config.BufferSize).
		Int("max_retries", d.config.MaxRetries).
		Msg("event dispatcher started")
	return nil
}

// Stop publishes whatever is still queued and returns.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("event dispatcher not running")
	}
	d.running = false
	d.mu.Unlock()

	close(d.stopChan)
	d.wg.Wait()

	log.Info().
		Uint64("published", d.published.Load()).
		Uint64("failed", d.failed.Load()).
		Uint64("dropped", d.dropped.Load()).
		Msg("event dispatcher stopped")
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			d.drain()
			return
		case ev := <-d.queue:
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev timer.DomainEvent) {
	env, err := NewEnvelope(ev)
	if err != nil {
		d.failed.Add(1)
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to encode domain event")
		return
	}
	if err := d.publishWithRetry(ctx, env); err != nil {
		d.failed.Add(1)
		log.Error().
			Err(err).
			Str("event_id", env.EventID).
			Str("event_type", string(env.EventType)).
			Msg("failed to publish event")
		return
	}
	d.published.Add(1)
}

func (d *Dispatcher) publishWithRetry(ctx context.Context, env Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := d.publisher.Publish(ctx, env); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", env.EventID).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", d.config.MaxRetries+1, lastErr)
}

// Stats returns dispatcher counters
func (d *Dispatcher) Stats() map[string]any {
	return map[string]any{
		"queued":    len(d.queue),
		"published": d.published.Load(),
		"failed":    d.failed.Load(),
		"dropped":   d.dropped.Load(),
	}
}
