package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultProfile          = "standard"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second

	DefaultMaxReconnectAttempts  = 5
	DefaultInitialReconnectDelay = 1 * time.Second
	DefaultMaxReconnectDelay     = 30 * time.Second
	DefaultBackoffMultiplier     = 1.5
	DefaultStatusCheckInterval   = 30 * time.Second
	DefaultStallTimeout          = 8 * time.Second

	DefaultPingInterval            = 10 * time.Second
	DefaultPongTimeout             = 5 * time.Second
	DefaultConstrainedPingInterval = 60 * time.Second
	DefaultConstrainedPongTimeout  = 30 * time.Second
	DefaultWindowSize              = 50
	DefaultCriticalStability       = 50
	DefaultExtremeLossPercent      = 98.0
	DefaultBadSampleLimit          = 3

	DefaultBreakerWindow    = 10 * time.Second
	DefaultBreakerTripCount = 5
	DefaultBreakerTripRate  = 0.5
	DefaultBaseCooldown     = 60 * time.Second
	DefaultBreakerGrowth    = 2.0
	DefaultCooldownCap      = 5 * time.Minute
	DefaultQuietPeriod      = 30 * time.Second
	DefaultBreakerJitter    = 0.10

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 4
	DefaultMinConns  = 1

	DefaultBatchSize     = 200
	DefaultFlushInterval = 2 * time.Second
	DefaultBufferSize    = 10000

	DefaultMetricsPort = 9302
	DefaultMetricsPath = "/metrics"
	DefaultHealthPort  = 8089

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

func (c *AgentConfig) applyDefaults() {
	// Gateway defaults
	if c.Gateway.Profile == "" {
		c.Gateway.Profile = DefaultProfile
	}
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}

	// Channel defaults
	if c.Channel.MaxReconnectAttempts == 0 {
		c.Channel.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Channel.InitialReconnectDelay == 0 {
		c.Channel.InitialReconnectDelay = DefaultInitialReconnectDelay
	}
	if c.Channel.MaxReconnectDelay == 0 {
		c.Channel.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if c.Channel.BackoffMultiplier == 0 {
		c.Channel.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.Channel.StatusCheckInterval == 0 {
		c.Channel.StatusCheckInterval = DefaultStatusCheckInterval
	}
	if c.Channel.StallTimeout == 0 {
		c.Channel.StallTimeout = DefaultStallTimeout
	}

	// Quality defaults follow the profile: constrained deployments probe
	// sparingly to stay under proxy idle budgets.
	if c.Quality.PingInterval == 0 {
		if c.Gateway.Profile == "constrained" {
			c.Quality.PingInterval = DefaultConstrainedPingInterval
		} else {
			c.Quality.PingInterval = DefaultPingInterval
		}
	}
	if c.Quality.PongTimeout == 0 {
		if c.Gateway.Profile == "constrained" {
			c.Quality.PongTimeout = DefaultConstrainedPongTimeout
		} else {
			c.Quality.PongTimeout = DefaultPongTimeout
		}
	}
	if c.Quality.WindowSize == 0 {
		c.Quality.WindowSize = DefaultWindowSize
	}
	if c.Quality.CriticalStability == 0 {
		c.Quality.CriticalStability = DefaultCriticalStability
	}
	if c.Quality.ExtremeLossPercent == 0 {
		c.Quality.ExtremeLossPercent = DefaultExtremeLossPercent
	}
	if c.Quality.BadSampleLimit == 0 {
		c.Quality.BadSampleLimit = DefaultBadSampleLimit
	}

	// Breaker defaults
	if c.Breaker.Window == 0 {
		c.Breaker.Window = DefaultBreakerWindow
	}
	if c.Breaker.TripCount == 0 {
		c.Breaker.TripCount = DefaultBreakerTripCount
	}
	if c.Breaker.TripRate == 0 {
		c.Breaker.TripRate = DefaultBreakerTripRate
	}
	if c.Breaker.BaseCooldown == 0 {
		c.Breaker.BaseCooldown = DefaultBaseCooldown
	}
	if c.Breaker.Growth == 0 {
		c.Breaker.Growth = DefaultBreakerGrowth
	}
	if c.Breaker.CooldownCap == 0 {
		c.Breaker.CooldownCap = DefaultCooldownCap
	}
	if c.Breaker.QuietPeriod == 0 {
		c.Breaker.QuietPeriod = DefaultQuietPeriod
	}
	if c.Breaker.Jitter == 0 {
		c.Breaker.Jitter = DefaultBreakerJitter
	}

	// Database defaults
	applyDBDefaults(&c.Database.Telemetry)

	// Recorder defaults
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
