package channel

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Profile selects the reconnect and probe shape for the deployment
// environment. Callers inject it; the channel never sniffs its surroundings.
type Profile string

const (
	// ProfileStandard backs off exponentially up to the configured cap.
	ProfileStandard Profile = "standard"

	// ProfileConstrained favors frequent cheap attempts over long waits,
	// for deployments behind proxies that drop idle tunnels.
	ProfileConstrained Profile = "constrained"
)

// CloseCause classifies why the socket closed.
type CloseCause int

const (
	CauseUnknown CloseCause = iota
	// CauseNormal is close code 1000 arriving without a local disconnect.
	CauseNormal
	// CauseGoingAway is close code 1001, a restarting or migrating peer.
	CauseGoingAway
	// CauseAbnormal is close code 1006 plus dial failures and stalls.
	CauseAbnormal
	// CausePolicyViolation is close code 1008.
	CausePolicyViolation
	// CauseInternalError is close code 1011.
	CauseInternalError
	// CauseServiceRestart is close code 1012.
	CauseServiceRestart
)

// String returns the snake_case cause name.
func (c CloseCause) String() string {
	switch c {
	case CauseNormal:
		return "normal"
	case CauseGoingAway:
		return "going_away"
	case CauseAbnormal:
		return "abnormal"
	case CausePolicyViolation:
		return "policy_violation"
	case CauseInternalError:
		return "internal_error"
	case CauseServiceRestart:
		return "service_restart"
	default:
		return "unknown"
	}
}

// classifyCloseCode maps a WebSocket close code to its CloseCause.
func classifyCloseCode(code int) CloseCause {
	switch code {
	case websocket.CloseNormalClosure:
		return CauseNormal
	case websocket.CloseGoingAway:
		return CauseGoingAway
	case websocket.CloseAbnormalClosure:
		return CauseAbnormal
	case websocket.ClosePolicyViolation:
		return CausePolicyViolation
	case websocket.CloseInternalServerErr:
		return CauseInternalError
	case websocket.CloseServiceRestart:
		return CauseServiceRestart
	default:
		return CauseUnknown
	}
}

// Fixed delays for causes where the peer's close code dictates the wait
// rather than the attempt count.
const (
	goingAwayDelay      = 1 * time.Second
	serviceRestartDelay = 1500 * time.Millisecond
	serverErrorDelay    = 3 * time.Second
)

// PolicyConfig shapes reconnect delay computation.
type PolicyConfig struct {
	Profile Profile

	// Standard profile: InitialDelay * Multiplier^attempt, capped.
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration

	// Constrained profile: Base + attempt*Step, capped low.
	ConstrainedBase time.Duration
	ConstrainedStep time.Duration
	ConstrainedCap  time.Duration

	// Jitter fractions applied symmetrically around the base delay.
	StandardJitter    float64
	ConstrainedJitter float64
}

// DefaultPolicyConfig returns the delay shape for the given profile.
func DefaultPolicyConfig(profile Profile) PolicyConfig {
	return PolicyConfig{
		Profile:           profile,
		InitialDelay:      1000 * time.Millisecond,
		Multiplier:        1.5,
		MaxDelay:          30 * time.Second,
		ConstrainedBase:   1000 * time.Millisecond,
		ConstrainedStep:   250 * time.Millisecond,
		ConstrainedCap:    3 * time.Second,
		StandardJitter:    0.10,
		ConstrainedJitter: 0.20,
	}
}

// ReconnectPolicy turns (attempt, cause) into a wait before the next dial.
// Base is deterministic; Delay adds jitter from the policy's own source.
type ReconnectPolicy struct {
	cfg PolicyConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewReconnectPolicy creates a policy with a time-seeded jitter source.
func NewReconnectPolicy(cfg PolicyConfig) *ReconnectPolicy {
	return &ReconnectPolicy{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the jittered wait before reconnect attempt number attempt
// (zero-based) after a closure with the given cause.
func (p *ReconnectPolicy) Delay(attempt int, cause CloseCause) time.Duration {
	return p.jitter(p.Base(attempt, cause))
}

// Base returns the delay before jitter. For a fixed cause it is monotone
// non-decreasing in attempt and capped by the profile's ceiling.
func (p *ReconnectPolicy) Base(attempt int, cause CloseCause) time.Duration {
	switch cause {
	case CauseGoingAway:
		return goingAwayDelay
	case CauseServiceRestart:
		return serviceRestartDelay
	case CausePolicyViolation, CauseInternalError:
		return serverErrorDelay
	}

	if attempt < 0 {
		attempt = 0
	}

	if p.cfg.Profile == ProfileConstrained {
		d := p.cfg.ConstrainedBase + time.Duration(attempt)*p.cfg.ConstrainedStep
		if d > p.cfg.ConstrainedCap {
			d = p.cfg.ConstrainedCap
		}
		return d
	}

	d := time.Duration(float64(p.cfg.InitialDelay) * math.Pow(p.cfg.Multiplier, float64(attempt)))
	if d > p.cfg.MaxDelay || d <= 0 {
		d = p.cfg.MaxDelay
	}
	return d
}

func (p *ReconnectPolicy) jitter(d time.Duration) time.Duration {
	frac := p.cfg.StandardJitter
	if p.cfg.Profile == ProfileConstrained {
		frac = p.cfg.ConstrainedJitter
	}
	if frac <= 0 || d <= 0 {
		return d
	}
	p.mu.Lock()
	f := p.rng.Float64()
	p.mu.Unlock()
	// Spread across [-frac, +frac] of the base.
	return d + time.Duration((f*2-1)*frac*float64(d))
}
