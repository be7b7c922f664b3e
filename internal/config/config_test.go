package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: agent-01
  environment: staging
gateway:
  url: wss://gateway.internal:8443/channel
  profile: constrained
channel:
  max_reconnect_attempts: 8
  initial_reconnect_delay: 500ms
quality:
  ping_interval: 45s
database:
  telemetry:
    host: localhost
    port: 5433
    name: telemetry
    user: agent
    password: secret
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "agent-01" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "agent-01")
	}
	if cfg.Gateway.URL != "wss://gateway.internal:8443/channel" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.Profile != "constrained" {
		t.Errorf("Gateway.Profile = %q, want constrained", cfg.Gateway.Profile)
	}
	if cfg.Channel.MaxReconnectAttempts != 8 {
		t.Errorf("Channel.MaxReconnectAttempts = %d, want 8", cfg.Channel.MaxReconnectAttempts)
	}
	if cfg.Channel.InitialReconnectDelay != 500*time.Millisecond {
		t.Errorf("Channel.InitialReconnectDelay = %v, want 500ms", cfg.Channel.InitialReconnectDelay)
	}
	if cfg.Quality.PingInterval != 45*time.Second {
		t.Errorf("Quality.PingInterval = %v, want 45s", cfg.Quality.PingInterval)
	}
	if cfg.Database.Telemetry.Port != 5433 {
		t.Errorf("Database.Telemetry.Port = %d, want 5433", cfg.Database.Telemetry.Port)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_TELEMETRY_PASSWORD", "secret123")

	yaml := `
instance:
  id: agent-01
gateway:
  url: ws://localhost:8443/channel
database:
  telemetry:
    host: localhost
    name: telemetry
    user: agent
    password: ${TEST_TELEMETRY_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Telemetry.Password != "secret123" {
		t.Errorf("Database.Telemetry.Password = %q, want %q", cfg.Database.Telemetry.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: agent-01
gateway:
  url: wss://gateway.internal/channel
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Gateway.Profile != DefaultProfile {
		t.Errorf("Gateway.Profile = %q, want default %q", cfg.Gateway.Profile, DefaultProfile)
	}
	if cfg.Channel.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Channel.MaxReconnectAttempts = %d, want default %d",
			cfg.Channel.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Channel.BackoffMultiplier != DefaultBackoffMultiplier {
		t.Errorf("Channel.BackoffMultiplier = %v, want default %v",
			cfg.Channel.BackoffMultiplier, DefaultBackoffMultiplier)
	}
	if cfg.Quality.PingInterval != DefaultPingInterval {
		t.Errorf("Quality.PingInterval = %v, want default %v", cfg.Quality.PingInterval, DefaultPingInterval)
	}
	if cfg.Breaker.BaseCooldown != DefaultBaseCooldown {
		t.Errorf("Breaker.BaseCooldown = %v, want default %v", cfg.Breaker.BaseCooldown, DefaultBaseCooldown)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q, want default %q", cfg.Logging.Level, DefaultLogLevel)
	}
}

func TestLoadWithDefaultsConstrainedProfile(t *testing.T) {
	yaml := `
instance:
  id: agent-01
gateway:
  url: wss://gateway.internal/channel
  profile: constrained
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Quality.PingInterval != DefaultConstrainedPingInterval {
		t.Errorf("Quality.PingInterval = %v, want constrained default %v",
			cfg.Quality.PingInterval, DefaultConstrainedPingInterval)
	}
	if cfg.Quality.PongTimeout != DefaultConstrainedPongTimeout {
		t.Errorf("Quality.PongTimeout = %v, want constrained default %v",
			cfg.Quality.PongTimeout, DefaultConstrainedPongTimeout)
	}
}

func TestRecorderEnabled(t *testing.T) {
	cfg := AgentConfig{}
	if cfg.RecorderEnabled() {
		t.Error("recorder enabled without a telemetry host")
	}
	cfg.Database.Telemetry.Host = "localhost"
	if !cfg.RecorderEnabled() {
		t.Error("recorder disabled with a telemetry host configured")
	}
}

func TestValidate(t *testing.T) {
	valid := func() AgentConfig {
		cfg := AgentConfig{
			Instance: InstanceConfig{ID: "agent-01"},
			Gateway:  GatewayConfig{URL: "wss://gateway.internal/channel"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*AgentConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*AgentConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *AgentConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing gateway url",
			mutate:  func(c *AgentConfig) { c.Gateway.URL = "" },
			wantErr: "gateway.url is required",
		},
		{
			name:    "non-websocket gateway url",
			mutate:  func(c *AgentConfig) { c.Gateway.URL = "https://gateway.internal/channel" },
			wantErr: `gateway.url must use ws:// or wss://, got "https://gateway.internal/channel"`,
		},
		{
			name:    "unknown profile",
			mutate:  func(c *AgentConfig) { c.Gateway.Profile = "mobile" },
			wantErr: `gateway.profile must be standard or constrained, got "mobile"`,
		},
		{
			name:    "zero reconnect attempts",
			mutate:  func(c *AgentConfig) { c.Channel.MaxReconnectAttempts = -1 },
			wantErr: "channel.max_reconnect_attempts must be >= 1",
		},
		{
			name: "initial delay exceeds max",
			mutate: func(c *AgentConfig) {
				c.Channel.InitialReconnectDelay = time.Minute
				c.Channel.MaxReconnectDelay = time.Second
			},
			wantErr: "channel.initial_reconnect_delay (1m0s) cannot exceed max_reconnect_delay (1s)",
		},
		{
			name: "pong timeout exceeds ping interval",
			mutate: func(c *AgentConfig) {
				c.Quality.PingInterval = time.Second
				c.Quality.PongTimeout = 2 * time.Second
			},
			wantErr: "quality.pong_timeout (2s) cannot exceed ping_interval (1s)",
		},
		{
			name:    "breaker growth below one",
			mutate:  func(c *AgentConfig) { c.Breaker.Growth = 0.5 },
			wantErr: "breaker.growth must be >= 1",
		},
		{
			name: "telemetry db missing password",
			mutate: func(c *AgentConfig) {
				c.Database.Telemetry.Host = "localhost"
				c.Database.Telemetry.Name = "telemetry"
				c.Database.Telemetry.User = "agent"
			},
			wantErr: "database.telemetry.password is required",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *AgentConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *AgentConfig) { c.Logging.Level = "verbose" },
			wantErr: `logging.level must be debug, info, warn or error, got "verbose"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

// The shipped example config is the documented default for --config; it has
// to parse and validate as-is.
func TestLoadShippedExampleConfig(t *testing.T) {
	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "agent.yaml"))
	if err != nil {
		t.Fatalf("LoadAndValidate(configs/agent.yaml) error = %v", err)
	}
	if cfg.Gateway.Profile != "standard" {
		t.Errorf("profile = %q, want standard", cfg.Gateway.Profile)
	}
	if cfg.RecorderEnabled() {
		t.Error("example config should ship with the recorder disabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
