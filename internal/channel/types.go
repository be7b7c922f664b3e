package channel

import (
	"errors"
	"time"
)

// Common errors returned by the channel.
var (
	// ErrNotOpen is returned by Send when the channel is not Open. Nothing
	// is queued; callers retry after the next Connected event.
	ErrNotOpen = errors.New("channel not open")

	// ErrConnectStalled is published when an attempt sits in Connecting
	// past the stall deadline.
	ErrConnectStalled = errors.New("connect stalled")

	// ErrRetriesExhausted is published when the reconnect budget runs out.
	// The channel stays down until Connect is called again.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// State is the lifecycle state of the managed connection.
type State int

const (
	// StateIdle means Connect has never been called.
	StateIdle State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means the socket is live and frames flow.
	StateOpen
	// StateClosing means an intentional teardown is in progress.
	StateClosing
	// StateClosed means the socket is down; a reconnect may be pending.
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ManagerConfig holds the channel manager settings.
type ManagerConfig struct {
	// URL is the gateway control endpoint (ws:// or wss://).
	URL string

	// Profile shapes reconnect delays and probe cadence. Injected by the
	// caller; the channel never sniffs its environment.
	Profile Profile

	// MaxReconnectAttempts bounds automatic retries per connection cycle.
	MaxReconnectAttempts int

	// InitialReconnectDelay seeds the standard backoff curve.
	InitialReconnectDelay time.Duration

	// MaxReconnectDelay caps the standard backoff curve.
	MaxReconnectDelay time.Duration

	// BackoffMultiplier grows the standard backoff curve per attempt.
	BackoffMultiplier float64

	// StatusCheckInterval is the cadence of status_request probes while
	// the channel is Open.
	StatusCheckInterval time.Duration

	// StallTimeout bounds how long an attempt may sit in Connecting before
	// it is aborted and retried.
	StallTimeout time.Duration

	// HandshakeTimeout bounds the WebSocket upgrade itself.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration

	// Monitor tunes the quality probe loop. Zero value means
	// DefaultMonitorConfig for the configured profile.
	Monitor MonitorConfig

	// Breaker tunes reconnect-storm containment. Zero value means
	// DefaultBreakerConfig.
	Breaker BreakerConfig
}

// DefaultManagerConfig returns production defaults for the standard profile.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Profile:               ProfileStandard,
		MaxReconnectAttempts:  5,
		InitialReconnectDelay: 1000 * time.Millisecond,
		MaxReconnectDelay:     30 * time.Second,
		BackoffMultiplier:     1.5,
		StatusCheckInterval:   30 * time.Second,
		StallTimeout:          8 * time.Second,
		HandshakeTimeout:      10 * time.Second,
		WriteTimeout:          5 * time.Second,
	}
}

// applyManagerDefaults fills zero fields from DefaultManagerConfig.
func applyManagerDefaults(cfg *ManagerConfig) {
	def := DefaultManagerConfig()
	if cfg.Profile == "" {
		cfg.Profile = def.Profile
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.InitialReconnectDelay == 0 {
		cfg.InitialReconnectDelay = def.InitialReconnectDelay
	}
	if cfg.MaxReconnectDelay == 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.StatusCheckInterval == 0 {
		cfg.StatusCheckInterval = def.StatusCheckInterval
	}
	if cfg.StallTimeout == 0 {
		cfg.StallTimeout = def.StallTimeout
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Monitor.PingInterval == 0 {
		cfg.Monitor = DefaultMonitorConfig(cfg.Profile)
	}
	if cfg.Breaker.Window == 0 {
		cfg.Breaker = DefaultBreakerConfig()
	}
}

// ManagerStats is a point-in-time snapshot of the manager.
type ManagerStats struct {
	State                       State
	Attempt                     int
	ConsecutiveAbnormalClosures int
	SessionID                   string
	ConnectedAt                 time.Time
	MessagesIn                  int64
	MessagesOut                 int64
	LastCloseCode               int
	LastCloseReason             string
	Breaker                     BreakerStats
	Quality                     QualityMetrics
}
