package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Lifecycle events published by the service that owns exam records.
const (
	LifecycleExamDeleted timer.DomainEventType = "ExamDeleted"
)

// ErrUnknownLifecycleEvent is returned for event types the gateway ignores.
var ErrUnknownLifecycleEvent = errors.New("unknown lifecycle event")

// ExamRemover drops the timer sessions of a deleted exam.
type ExamRemover interface {
	RemoveExam(examID uuid.UUID) int
}

type LifecycleConsumerConfig struct {
	StreamName    string
	SubjectPrefix string
	ConsumerName  string
	MaxDeliver    int           // Max delivery attempts
	AckWait       time.Duration // How long to wait for ack
	MaxAckPending int
	MaxAge        time.Duration
}

func DefaultLifecycleConsumerConfig() LifecycleConsumerConfig {
	return LifecycleConsumerConfig{
		StreamName:    "EXAM_LIFECYCLE",
		SubjectPrefix: "exam.lifecycle",
		ConsumerName:  "exam-gateway",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxAge:        72 * time.Hour,
	}
}

// LifecycleConsumer applies exam lifecycle events from JetStream to the
// timer engine.
type LifecycleConsumer struct {
	js       jetstream.JetStream
	consumer jetstream.Consumer
	remover  ExamRemover
	config   LifecycleConsumerConfig
}

// NewLifecycleConsumer binds a durable consumer on the lifecycle stream,
// creating the stream when the owner service has not yet done so.
func NewLifecycleConsumer(js jetstream.JetStream, remover ExamRemover, cfg LifecycleConsumerConfig) (*LifecycleConsumer, error) {
	lc := &LifecycleConsumer{js: js, remover: remover, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := lc.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return lc, nil
}

func (lc *LifecycleConsumer) ensureConsumer(ctx context.Context) error {
	subject := fmt.Sprintf("%s.>", lc.config.SubjectPrefix)

	stream, err := lc.js.Stream(ctx, lc.config.StreamName)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("get stream: %w", err)
		}
		stream, err = lc.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        lc.config.StreamName,
			Description: "Exam lifecycle events",
			Subjects:    []string{subject},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      lc.config.MaxAge,
			Storage:     jetstream.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", lc.config.StreamName).Msg("created JetStream stream")
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          lc.config.ConsumerName,
		Durable:       lc.config.ConsumerName,
		Description:   "Exam gateway lifecycle consumer",
		FilterSubject: subject,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    lc.config.MaxDeliver,
		AckWait:       lc.config.AckWait,
		MaxAckPending: lc.config.MaxAckPending,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", lc.config.ConsumerName).
		Str("stream", lc.config.StreamName).
		Msg("using JetStream consumer")
	lc.consumer = consumer
	return nil
}

// Start consumes until ctx is done.
func (lc *LifecycleConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", lc.config.ConsumerName).
		Str("stream", lc.config.StreamName).
		Msg("starting lifecycle consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := lc.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("lifecycle consumer shutting down")
			return nil
		case msg := <-messageCh:
			lc.settle(msg, lc.Apply(msg.Data()))
		}
	}
}

// settle acks handled and malformed messages and naks the rest so they
// are redelivered.
func (lc *LifecycleConsumer) settle(msg jetstream.Msg, err error) {
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	case errors.Is(err, ErrUnknownLifecycleEvent), errors.Is(err, ErrMalformedEnvelope):
		log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping lifecycle message")
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
	default:
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
	}
}

// Apply handles one encoded lifecycle envelope.
func (lc *LifecycleConsumer) Apply(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	examID, err := uuid.Parse(env.ExamID)
	if err != nil {
		return fmt.Errorf("%w: exam id %q", ErrMalformedEnvelope, env.ExamID)
	}

	switch env.EventType {
	case LifecycleExamDeleted:
		removed := lc.remover.RemoveExam(examID)
		log.Info().
			Str("event_id", env.EventID).
			Str("exam_id", examID.String()).
			Int("sessions", removed).
			Msg("exam deleted")
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownLifecycleEvent, env.EventType)
	}
}
