package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *AgentConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}
	if !strings.HasPrefix(c.Gateway.URL, "ws://") && !strings.HasPrefix(c.Gateway.URL, "wss://") {
		return fmt.Errorf("gateway.url must use ws:// or wss://, got %q", c.Gateway.URL)
	}
	if c.Gateway.Profile != "standard" && c.Gateway.Profile != "constrained" {
		return fmt.Errorf("gateway.profile must be standard or constrained, got %q", c.Gateway.Profile)
	}

	if c.Channel.MaxReconnectAttempts < 1 {
		return errors.New("channel.max_reconnect_attempts must be >= 1")
	}
	if c.Channel.BackoffMultiplier < 1 {
		return errors.New("channel.backoff_multiplier must be >= 1")
	}
	if c.Channel.InitialReconnectDelay > c.Channel.MaxReconnectDelay {
		return fmt.Errorf("channel.initial_reconnect_delay (%v) cannot exceed max_reconnect_delay (%v)",
			c.Channel.InitialReconnectDelay, c.Channel.MaxReconnectDelay)
	}

	if c.Quality.WindowSize < 1 {
		return errors.New("quality.window_size must be >= 1")
	}
	if c.Quality.BadSampleLimit < 1 {
		return errors.New("quality.bad_sample_limit must be >= 1")
	}
	if c.Quality.CriticalStability < 0 || c.Quality.CriticalStability > 100 {
		return fmt.Errorf("quality.critical_stability must be between 0 and 100, got %d", c.Quality.CriticalStability)
	}
	if c.Quality.ExtremeLossPercent < 0 || c.Quality.ExtremeLossPercent > 100 {
		return fmt.Errorf("quality.extreme_loss_percent must be between 0 and 100, got %v", c.Quality.ExtremeLossPercent)
	}
	if c.Quality.PongTimeout > c.Quality.PingInterval {
		return fmt.Errorf("quality.pong_timeout (%v) cannot exceed ping_interval (%v)",
			c.Quality.PongTimeout, c.Quality.PingInterval)
	}

	if c.Breaker.TripCount < 1 {
		return errors.New("breaker.trip_count must be >= 1")
	}
	if c.Breaker.TripRate <= 0 {
		return errors.New("breaker.trip_rate must be > 0")
	}
	if c.Breaker.Growth < 1 {
		return errors.New("breaker.growth must be >= 1")
	}
	if c.Breaker.BaseCooldown > c.Breaker.CooldownCap {
		return fmt.Errorf("breaker.base_cooldown (%v) cannot exceed cooldown_cap (%v)",
			c.Breaker.BaseCooldown, c.Breaker.CooldownCap)
	}
	if c.Breaker.Jitter < 0 || c.Breaker.Jitter > 1 {
		return fmt.Errorf("breaker.jitter must be between 0 and 1, got %v", c.Breaker.Jitter)
	}

	// The telemetry database is optional; validate only when configured.
	if c.RecorderEnabled() {
		if err := c.Database.Telemetry.validate("database.telemetry"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
		if c.Recorder.BufferSize < 1 {
			return errors.New("recorder.buffer_size must be >= 1")
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// RecorderEnabled reports whether a telemetry database is configured.
func (c *AgentConfig) RecorderEnabled() bool {
	return c.Database.Telemetry.Host != ""
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
