package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/rs/zerolog/log"
)

// Service is the exam gateway: it owns the timer engine, the WebSocket
// transport and the pull endpoints.
type Service struct {
	engine            *timer.Engine
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	queryService      *QueryService
}

// Config holds configuration for the exam gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Timer            timer.Config
}

// DefaultConfig returns default configuration for the exam gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Timer:            timer.DefaultConfig(),
	}
}

// NewService creates the engine with the connection manager as its sender.
// deps.Sender is ignored.
func NewService(config Config, deps timer.Deps) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	deps.Sender = connectionManager

	engine := timer.NewEngine(config.Timer, deps)
	connectionManager.SetHandler(engine)

	return &Service{
		engine:            engine,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, engine),
		stateHandler:      NewStateHandler(engine),
		queryService:      NewQueryService(engine),
	}
}

// Engine exposes the timer engine for snapshotting and administration.
func (s *Service) Engine() *timer.Engine {
	return s.engine
}

// Start runs the connection manager and the countdown scheduler until ctx
// is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting exam gateway service")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.connectionManager.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		s.engine.Run(ctx)
	}()
	wg.Wait()

	log.Info().Msg("exam gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket, REST and Connect routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.Handle(NewTimerQueryServiceHandler(s.queryService))
	log.Info().Msg("exam gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]any {
	stats := s.connectionManager.GetConnectionStats()
	stats["engine"] = s.engine.Stats()
	stats["service"] = "exam_gateway"
	return stats
}
