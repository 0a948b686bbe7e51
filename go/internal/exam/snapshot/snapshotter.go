package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/rs/zerolog/log"
)

// Source is the engine surface the snapshotter reads and restores.
type Source interface {
	Exams() []uuid.UUID
	Records(examID uuid.UUID) []timer.SessionRecord
	Restore(records []timer.SessionRecord) int
}

// Snapshotter periodically writes every exam's sessions to a Store.
type Snapshotter struct {
	source   Source
	store    Store
	clock    clockwork.Clock
	interval time.Duration

	mu    sync.Mutex
	saved map[uuid.UUID]struct{}
}

func NewSnapshotter(source Source, store Store, clock clockwork.Clock, interval time.Duration) *Snapshotter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Snapshotter{
		source:   source,
		store:    store,
		clock:    clock,
		interval: interval,
		saved:    make(map[uuid.UUID]struct{}),
	}
}

// Restore loads every stored record into the engine.
func (s *Snapshotter) Restore(ctx context.Context) (int, error) {
	records, err := s.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	for _, rec := range records {
		s.saved[rec.ExamID] = struct{}{}
	}
	s.mu.Unlock()

	return s.source.Restore(records), nil
}

// Run snapshots on every interval until ctx is done, then once more.
func (s *Snapshotter) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("snapshotter started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.SnapshotAll(finalCtx)
			cancel()
			log.Info().Msg("snapshotter stopped")
			return
		case <-ticker.Chan():
			s.SnapshotAll(ctx)
		}
	}
}

// SnapshotAll saves every exam the engine holds and deletes snapshots of
// exams that are gone. It returns the number of exams saved.
func (s *Snapshotter) SnapshotAll(ctx context.Context) int {
	current := make(map[uuid.UUID]struct{})
	saved := 0

	for _, examID := range s.source.Exams() {
		records := s.source.Records(examID)
		if len(records) == 0 {
			continue
		}
		current[examID] = struct{}{}
		if err := s.store.Save(ctx, examID, records); err != nil {
			log.Error().Err(err).Str("exam_id", examID.String()).Msg("failed to save snapshot")
			continue
		}
		saved++
	}

	s.mu.Lock()
	var stale []uuid.UUID
	for examID := range s.saved {
		if _, ok := current[examID]; !ok {
			stale = append(stale, examID)
		}
	}
	s.saved = current
	s.mu.Unlock()

	for _, examID := range stale {
		if err := s.store.Delete(ctx, examID); err != nil {
			log.Error().Err(err).Str("exam_id", examID.String()).Msg("failed to delete snapshot")
		}
	}

	log.Debug().Int("exams", saved).Int("removed", len(stale)).Msg("snapshot written")
	return saved
}
