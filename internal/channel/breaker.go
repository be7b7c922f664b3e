package channel

import (
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// BreakerConfig tunes reconnect-storm containment.
type BreakerConfig struct {
	// Window is the sliding window closures are counted over.
	Window time.Duration

	// TripCount and TripRate set the trip condition: more than TripCount
	// closures inside the window, arriving faster than TripRate per second.
	TripCount int
	TripRate  float64

	// BaseCooldown grows by Growth per consecutive trip, up to CooldownCap.
	BaseCooldown time.Duration
	Growth       float64
	CooldownCap  time.Duration

	// QuietPeriod is the closure-free time after which trip history decays.
	QuietPeriod time.Duration

	// Jitter is the symmetric fraction applied to each cooldown.
	Jitter float64
}

// DefaultBreakerConfig returns production defaults. The cooldown floor sits
// above the reconnect policy's delay cap: the breaker is the outer net.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Window:       10 * time.Second,
		TripCount:    5,
		TripRate:     0.5,
		BaseCooldown: 60 * time.Second,
		Growth:       2.0,
		CooldownCap:  5 * time.Minute,
		QuietPeriod:  30 * time.Second,
		Jitter:       0.10,
	}
}

// BreakerStats is a point-in-time snapshot.
type BreakerStats struct {
	WindowCount       int
	TripCount         int
	Tripped           bool
	CooldownRemaining time.Duration
}

// CircuitBreaker contains reconnect storms. When abnormal closures burst
// past the window threshold it trips and defers all reconnection until an
// independent cooldown elapses. Consecutive trips grow the cooldown; a
// sustained quiet period decays the trip history back to zero.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *slog.Logger

	mu        sync.Mutex
	events    []time.Time
	tripCount int
	trippedAt time.Time // zero when not cooling down
	cooldown  time.Duration
	lastEvent time.Time

	now func() time.Time
	rng *rand.Rand
}

// NewCircuitBreaker creates a breaker with the given tuning.
func NewCircuitBreaker(cfg BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RecordClosure notes one abnormal closure. Returns true when this closure
// tripped the breaker.
func (b *CircuitBreaker) RecordClosure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refreshLocked(now)
	b.lastEvent = now

	if !b.trippedAt.IsZero() {
		// Already cooling down; the closure changes nothing.
		return false
	}

	b.events = append(b.events, now)
	b.pruneLocked(now)

	count := len(b.events)
	if count <= b.cfg.TripCount {
		return false
	}
	span := now.Sub(b.events[0])
	rate := math.Inf(1)
	if span > 0 {
		rate = float64(count) / span.Seconds()
	}
	if rate <= b.cfg.TripRate {
		return false
	}

	b.tripLocked(now, count, rate)
	return true
}

// Deferral returns the remaining cooldown, or zero when reconnection may
// proceed.
func (b *CircuitBreaker) Deferral() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refreshLocked(now)
	if b.trippedAt.IsZero() {
		return 0
	}
	return b.cooldown - now.Sub(b.trippedAt)
}

// Tripped reports whether the breaker is currently cooling down.
func (b *CircuitBreaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked(b.now())
	return !b.trippedAt.IsZero()
}

// Stats returns a snapshot.
func (b *CircuitBreaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.refreshLocked(now)
	s := BreakerStats{
		WindowCount: len(b.events),
		TripCount:   b.tripCount,
	}
	if !b.trippedAt.IsZero() {
		s.Tripped = true
		s.CooldownRemaining = b.cooldown - now.Sub(b.trippedAt)
	}
	return s
}

// tripLocked opens the breaker and computes this trip's cooldown.
func (b *CircuitBreaker) tripLocked(now time.Time, count int, rate float64) {
	cooldown := time.Duration(float64(b.cfg.BaseCooldown) * math.Pow(b.cfg.Growth, float64(b.tripCount)))
	if cooldown > b.cfg.CooldownCap || cooldown <= 0 {
		cooldown = b.cfg.CooldownCap
	}
	if b.cfg.Jitter > 0 {
		f := b.rng.Float64()
		cooldown += time.Duration((f*2 - 1) * b.cfg.Jitter * float64(cooldown))
	}

	b.tripCount++
	b.trippedAt = now
	b.cooldown = cooldown
	b.events = nil

	b.logger.Warn("reconnect storm detected, circuit breaker tripped",
		"closures", count,
		"rate_per_sec", rate,
		"cooldown", cooldown,
		"trip_count", b.tripCount,
	)
}

// refreshLocked applies time-based transitions: an elapsed cooldown closes
// the breaker for one clean attempt, and a quiet period afterwards decays
// the trip history. Quiet time counts from the cooldown's end, not from the
// last closure, so waiting out a cooldown alone never resets the growth.
// Caller holds mu.
func (b *CircuitBreaker) refreshLocked(now time.Time) {
	if !b.trippedAt.IsZero() && now.Sub(b.trippedAt) >= b.cooldown {
		if end := b.trippedAt.Add(b.cooldown); end.After(b.lastEvent) {
			b.lastEvent = end
		}
		b.trippedAt = time.Time{}
		b.cooldown = 0
		b.events = nil
	}
	if b.trippedAt.IsZero() && b.tripCount > 0 && !b.lastEvent.IsZero() &&
		now.Sub(b.lastEvent) >= b.cfg.QuietPeriod {
		b.tripCount = 0
	}
}

// pruneLocked drops events older than the window. Caller holds mu.
func (b *CircuitBreaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = append(b.events[:0], b.events[i:]...)
	}
}
