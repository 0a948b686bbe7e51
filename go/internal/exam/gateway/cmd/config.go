package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/examclock/go/internal/exam/timer"
	"gopkg.in/yaml.v3"
)

// Config is the gateway configuration file. Every field has a default and
// the timer keys can be overridden from the environment.
type Config struct {
	Timer TimerConfig `yaml:"timer"`
}

// TimerConfig carries the engine settings plus the background loop
// intervals.
type TimerConfig struct {
	timer.Config        `yaml:",inline"`
	SnapshotInterval    time.Duration `yaml:"snapshot_interval"`
	StatusFlushInterval time.Duration `yaml:"status_flush_interval"`
}

func defaultConfig() Config {
	return Config{
		Timer: TimerConfig{
			Config:              timer.DefaultConfig(),
			SnapshotInterval:    15 * time.Second,
			StatusFlushInterval: 5 * time.Second,
		},
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return config, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return config, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TIMER_MAX_ADJUSTMENT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid TIMER_MAX_ADJUSTMENT_SEC %q", v)
		}
		c.Timer.MaxAdjustmentSec = n
	}
	if err := durationEnv("TIMER_TICK_INTERVAL", &c.Timer.TickInterval); err != nil {
		return err
	}
	if err := durationEnv("TIMER_RECONNECT_GRACE", &c.Timer.ReconnectGrace); err != nil {
		return err
	}
	if err := durationEnv("TIMER_SNAPSHOT_INTERVAL", &c.Timer.SnapshotInterval); err != nil {
		return err
	}
	return durationEnv("TIMER_STATUS_FLUSH_INTERVAL", &c.Timer.StatusFlushInterval)
}

func durationEnv(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s %q", key, v)
	}
	*dst = d
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
