package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/examclock/go/internal/dbconfig"
	"github.com/mcdev12/examclock/go/internal/exam/gateway"
	"github.com/mcdev12/examclock/go/internal/exam/snapshot"
	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"github.com/mcdev12/examclock/go/internal/migrations"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	setupLogging(getEnv("LOG_LEVEL", "info"))

	config, err := loadConfig(getEnv("EXAMCLOCK_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	port := getEnv("GATEWAY_PORT", "8081")
	dbCfg := dbconfig.NewConfigFromEnv()

	db, err := dbCfg.Open(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if getEnv("MIGRATE_ON_BOOT", "true") == "true" {
		if err := runMigrations(dbCfg.DSN()); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	log.Info().
		Str("database", dbCfg.Database).
		Str("port", port).
		Int("max_adjustment_sec", config.Timer.MaxAdjustmentSec).
		Dur("tick_interval", config.Timer.TickInterval).
		Dur("reconnect_grace", config.Timer.ReconnectGrace).
		Msg("starting exam gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()
	services, err := setupServices(ctx, db, clock, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	gatewayService := gateway.NewService(gateway.Config{
		ConnectionConfig: gateway.DefaultConnectionConfig(),
		Timer:            config.Timer.Config,
	}, timer.Deps{
		Directory: services.Directory,
		Clock:     clock,
		Status:    services.StatusWriter,
		Events:    services.Dispatcher,
	})

	snapshotter := snapshot.NewSnapshotter(gatewayService.Engine(), services.Snapshots, clock, config.Timer.SnapshotInterval)
	if restored, err := snapshotter.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("failed to restore timer snapshots")
	} else {
		log.Info().Int("sessions", restored).Msg("timer snapshots restored")
	}

	health := gateway.NewHealthChecker(gatewayService.Engine())
	health.Register("database", db.PingContext)
	services.RegisterProbes(health)

	server := setupServer(port, gatewayService, health)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	lifecycleDone := services.StartLifecycle(ctx, gatewayService.Engine())

	snapshotsDone := make(chan struct{})
	go func() {
		defer close(snapshotsDone)
		snapshotter.Run(ctx)
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stops the scheduler and connections, then takes a final snapshot.
	cancel()
	<-done
	<-snapshotsDone
	<-lifecycleDone

	log.Info().Msg("exam gateway shutdown complete")
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func runMigrations(dsn string) error {
	migrator, err := migrations.New(dsn)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Up()
}
