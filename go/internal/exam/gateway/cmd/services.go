package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/examclock/go/internal/exam/events"
	"github.com/mcdev12/examclock/go/internal/exam/gateway"
	"github.com/mcdev12/examclock/go/internal/exam/snapshot"
	"github.com/mcdev12/examclock/go/internal/exams"
	"github.com/mcdev12/examclock/go/internal/users"
	usersdb "github.com/mcdev12/examclock/go/internal/users/db"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Services are the collaborators of the timer engine. They run on their
// own lifecycle so that they can flush after the engine has stopped.
type Services struct {
	Directory    *exams.Directory
	StatusWriter *exams.StatusWriter
	Dispatcher   *events.Dispatcher
	Snapshots    snapshot.Store

	publisher events.Publisher
	redis     *redis.Client
	cancel    context.CancelFunc
}

func setupServices(ctx context.Context, database *sql.DB, clock clockwork.Clock, config Config) (*Services, error) {
	// Database layer → Repository layer → App layer
	userRepo := users.NewRepository(usersdb.New(database))
	userApp := users.NewApp(userRepo)
	examRepo := exams.NewRepository(database)

	s := &Services{
		Directory:    exams.NewDirectory(userApp, examRepo),
		StatusWriter: exams.NewStatusWriter(examRepo, clock, config.Timer.StatusFlushInterval),
	}

	s.publisher = setupPublisher()
	s.Dispatcher = events.NewDispatcher(s.publisher, events.DefaultConfig())

	store, client, err := setupSnapshotStore(ctx, database)
	if err != nil {
		_ = s.publisher.Close()
		return nil, err
	}
	s.Snapshots = store
	s.redis = client

	// Detached from ctx so that Close can drain them after shutdown.
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if err := s.StatusWriter.Start(runCtx); err != nil {
		cancel()
		return nil, err
	}
	if err := s.Dispatcher.Start(runCtx); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

// Close flushes pending status updates and domain events, then releases
// external connections.
func (s *Services) Close() {
	if err := s.StatusWriter.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop status writer")
	}
	if err := s.Dispatcher.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event dispatcher")
	}
	s.cancel()

	if err := s.publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}
}

// RegisterProbes adds readiness probes for the external connections.
func (s *Services) RegisterProbes(health *gateway.HealthChecker) {
	if js, ok := s.publisher.(*events.JetStreamPublisher); ok {
		health.Register("nats", func(context.Context) error {
			if !js.Connected() {
				return errors.New("not connected")
			}
			return nil
		})
	}
	if s.redis != nil {
		health.Register("redis", func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		})
	}
}

// StartLifecycle consumes exam lifecycle events on the publisher's JetStream
// connection until ctx is done. The returned channel closes when the
// consumer has stopped; without NATS it is closed immediately.
func (s *Services) StartLifecycle(ctx context.Context, remover events.ExamRemover) <-chan struct{} {
	done := make(chan struct{})
	js, ok := s.publisher.(*events.JetStreamPublisher)
	if !ok {
		close(done)
		return done
	}

	cfg := events.DefaultLifecycleConsumerConfig()
	cfg.StreamName = getEnv("NATS_LIFECYCLE_STREAM", cfg.StreamName)
	cfg.SubjectPrefix = getEnv("NATS_LIFECYCLE_SUBJECT_PREFIX", cfg.SubjectPrefix)

	consumer, err := events.NewLifecycleConsumer(js.JetStream(), remover, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up lifecycle consumer, exam deletions are not applied")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("lifecycle consumer failed")
		}
	}()
	return done
}

// setupPublisher connects to JetStream, falling back to logging events when
// NATS is not configured or unreachable.
func setupPublisher() events.Publisher {
	natsURL := getEnv("NATS_URL", "")
	if natsURL == "" {
		log.Info().Msg("NATS_URL not set, domain events are logged only")
		return events.LogPublisher{}
	}

	jsConfig := events.DefaultJetStreamConfig()
	jsConfig.URL = natsURL
	jsConfig.StreamName = getEnv("NATS_STREAM", jsConfig.StreamName)
	jsConfig.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", jsConfig.SubjectPrefix)

	publisher, err := events.NewJetStreamPublisher(jsConfig)
	if err != nil {
		log.Error().Err(err).Str("nats_url", natsURL).Msg("failed to connect to JetStream, domain events are logged only")
		return events.LogPublisher{}
	}
	return publisher
}

func setupSnapshotStore(ctx context.Context, database *sql.DB) (snapshot.Store, *redis.Client, error) {
	backend := getEnv("SNAPSHOT_BACKEND", "postgres")
	switch backend {
	case "memory":
		return snapshot.NewMemoryStore(), nil, nil
	case "postgres":
		return snapshot.NewPostgresStore(database), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		ttl := time.Duration(getEnvAsInt("SNAPSHOT_TTL_HOURS", 24)) * time.Hour
		return snapshot.NewRedisStore(client, ttl), client, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", snapshot.ErrUnknownBackend, backend)
	}
}
