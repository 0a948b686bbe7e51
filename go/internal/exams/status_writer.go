package exams

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/examclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// StatusStore persists an exam's aggregate status.
type StatusStore interface {
	UpdateStatus(ctx context.Context, examID uuid.UUID, update models.ExamStatusUpdate, statusChanged bool) error
}

// StatusWriter coalesces status updates from the timer engine and writes
// the latest one per exam on every flush. PersistExamStatus never blocks
// on the database.
type StatusWriter struct {
	store    StatusStore
	clock    clockwork.Clock
	interval time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]models.ExamStatusUpdate
	written map[uuid.UUID]models.ExamStatus

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewStatusWriter(store StatusStore, clock clockwork.Clock, interval time.Duration) *StatusWriter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusWriter{
		store:    store,
		clock:    clock,
		interval: interval,
		pending:  make(map[uuid.UUID]models.ExamStatusUpdate),
		written:  make(map[uuid.UUID]models.ExamStatus),
		stopChan: make(chan struct{}),
	}
}

// PersistExamStatus queues update, replacing any unflushed one for the exam.
func (w *StatusWriter) PersistExamStatus(examID uuid.UUID, update models.ExamStatusUpdate) {
	w.mu.Lock()
	w.pending[examID] = update
	w.mu.Unlock()
}

func (w *StatusWriter) Start(ctx context.Context) error {
	w.runMu.Lock()
	if w.running {
		w.runMu.Unlock()
		return fmt.Errorf("status writer already running")
	}
	w.running = true
	w.runMu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().Dur("flush_interval", w.interval).Msg("exam status writer started")
	return nil
}

// Stop flushes pending updates and waits for the loop to exit.
func (w *StatusWriter) Stop() error {
	w.runMu.Lock()
	if !w.running {
		w.runMu.Unlock()
		return fmt.Errorf("status writer not running")
	}
	w.running = false
	w.runMu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("exam status writer stopped")
	return nil
}

func (w *StatusWriter) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.Flush(flushCtx)
			cancel()
			return
		case <-ticker.Chan():
			w.Flush(ctx)
		}
	}
}

// Flush writes every pending update. Failed updates are requeued unless a
// newer one arrived in the meantime.
func (w *StatusWriter) Flush(ctx context.Context) int {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[uuid.UUID]models.ExamStatusUpdate, len(batch))
	w.mu.Unlock()

	written := 0
	for examID, update := range batch {
		w.mu.Lock()
		prev, known := w.written[examID]
		w.mu.Unlock()
		statusChanged := !known || prev != update.Status

		if err := w.store.UpdateStatus(ctx, examID, update, statusChanged); err != nil {
			log.Error().
				Err(err).
				Str("exam_id", examID.String()).
				Str("status", string(update.Status)).
				Msg("failed to persist exam status")
			w.mu.Lock()
			if _, newer := w.pending[examID]; !newer {
				w.pending[examID] = update
			}
			w.mu.Unlock()
			continue
		}

		w.mu.Lock()
		w.written[examID] = update.Status
		w.mu.Unlock()
		written++
	}

	if written > 0 {
		log.Debug().Int("exams", written).Msg("exam statuses persisted")
	}
	return written
}

// Pending returns the number of exams waiting for a flush.
func (w *StatusWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
