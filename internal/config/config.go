package config

import "time"

// AgentConfig is the root configuration for an agent instance.
type AgentConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Channel  ChannelConfig  `yaml:"channel"`
	Quality  QualityConfig  `yaml:"quality"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Database DatabaseConfig `yaml:"database"`
	Recorder RecorderConfig `yaml:"recorder"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Health   HealthConfig   `yaml:"health"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this agent.
type InstanceConfig struct {
	ID          string `yaml:"id"`
	Environment string `yaml:"environment"`
}

// GatewayConfig holds the control channel endpoint settings.
type GatewayConfig struct {
	URL              string        `yaml:"url"`     // ws:// or wss://
	Profile          string        `yaml:"profile"` // standard or constrained
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
}

// ChannelConfig holds reconnect behavior settings.
type ChannelConfig struct {
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	InitialReconnectDelay time.Duration `yaml:"initial_reconnect_delay"`
	MaxReconnectDelay     time.Duration `yaml:"max_reconnect_delay"`
	BackoffMultiplier     float64       `yaml:"backoff_multiplier"`
	StatusCheckInterval   time.Duration `yaml:"status_check_interval"`
	StallTimeout          time.Duration `yaml:"stall_timeout"`
}

// QualityConfig holds connection quality probe settings.
type QualityConfig struct {
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	WindowSize         int           `yaml:"window_size"`
	CriticalStability  int           `yaml:"critical_stability"`
	ExtremeLossPercent float64       `yaml:"extreme_loss_percent"`
	BadSampleLimit     int           `yaml:"bad_sample_limit"`
}

// BreakerConfig holds reconnect-storm containment settings.
type BreakerConfig struct {
	Window       time.Duration `yaml:"window"`
	TripCount    int           `yaml:"trip_count"`
	TripRate     float64       `yaml:"trip_rate"`
	BaseCooldown time.Duration `yaml:"base_cooldown"`
	Growth       float64       `yaml:"growth"`
	CooldownCap  time.Duration `yaml:"cooldown_cap"`
	QuietPeriod  time.Duration `yaml:"quiet_period"`
	Jitter       float64       `yaml:"jitter"`
}

// DatabaseConfig holds the telemetry database connection. Leaving
// telemetry.host empty disables the recorder entirely.
type DatabaseConfig struct {
	Telemetry DBConfig `yaml:"telemetry"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds telemetry batch writer settings.
type RecorderConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// HealthConfig holds the health/debug endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}
