package channel

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := newFakeClock()
	b := NewCircuitBreaker(cfg, nil)
	b.now = clock.Now
	return b, clock
}

func testBreakerConfig() BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Jitter = 0 // deterministic cooldowns
	return cfg
}

func TestBreakerNoTripAtThreshold(t *testing.T) {
	b, clock := newTestBreaker(testBreakerConfig())

	// Exactly TripCount closures inside the window: not a storm yet.
	for i := 0; i < 5; i++ {
		if b.RecordClosure() {
			t.Fatalf("closure %d tripped the breaker", i+1)
		}
		clock.Advance(time.Second)
	}

	if b.Tripped() {
		t.Error("breaker tripped at the threshold count")
	}
	if d := b.Deferral(); d != 0 {
		t.Errorf("expected zero deferral, got %v", d)
	}
}

func TestBreakerTripsOnBurst(t *testing.T) {
	b, clock := newTestBreaker(testBreakerConfig())

	// Six abnormal closures spread over 8 seconds: count 6 > 5 and rate
	// 0.75/s > 0.5/s.
	tripped := false
	for i := 0; i < 6; i++ {
		tripped = b.RecordClosure()
		if i < 5 {
			if tripped {
				t.Fatalf("tripped early on closure %d", i+1)
			}
			clock.Advance(1600 * time.Millisecond)
		}
	}

	if !tripped {
		t.Fatal("sixth closure in 8s did not trip the breaker")
	}
	if !b.Tripped() {
		t.Error("breaker does not report tripped")
	}
	if d := b.Deferral(); d != 60*time.Second {
		t.Errorf("expected 60s cooldown, got %v", d)
	}

	stats := b.Stats()
	if stats.TripCount != 1 {
		t.Errorf("expected trip count 1, got %d", stats.TripCount)
	}
}

func TestBreakerSlowClosuresNeverTrip(t *testing.T) {
	b, clock := newTestBreaker(testBreakerConfig())

	// One closure every 15s: the 10s window never holds more than one.
	for i := 0; i < 20; i++ {
		if b.RecordClosure() {
			t.Fatalf("slow closure %d tripped the breaker", i+1)
		}
		clock.Advance(15 * time.Second)
	}
}

func TestBreakerClosuresDuringCooldownIgnored(t *testing.T) {
	b, clock := newTestBreaker(testBreakerConfig())

	for i := 0; i < 6; i++ {
		b.RecordClosure()
	}
	if !b.Tripped() {
		t.Fatal("breaker did not trip")
	}
	before := b.Deferral()

	// A straggling closure while cooling down neither extends the cooldown
	// nor counts toward a new window.
	clock.Advance(10 * time.Second)
	if b.RecordClosure() {
		t.Error("closure during cooldown reported a trip")
	}
	if d := b.Deferral(); d != before-10*time.Second {
		t.Errorf("cooldown shifted: expected %v, got %v", before-10*time.Second, d)
	}
	if b.Stats().WindowCount != 0 {
		t.Errorf("window accumulated during cooldown: %d", b.Stats().WindowCount)
	}
}

func TestBreakerCooldownElapses(t *testing.T) {
	b, clock := newTestBreaker(testBreakerConfig())

	for i := 0; i < 6; i++ {
		b.RecordClosure()
	}
	clock.Advance(60 * time.Second)

	if b.Tripped() {
		t.Error("breaker still tripped after the cooldown elapsed")
	}
	if d := b.Deferral(); d != 0 {
		t.Errorf("expected zero deferral after cooldown, got %v", d)
	}
	// Trip history survives the cooldown itself.
	if got := b.Stats().TripCount; got != 1 {
		t.Errorf("expected trip count 1 after cooldown, got %d", got)
	}
}

func TestBreakerConsecutiveTripsGrowCooldown(t *testing.T) {
	b, clock := newTestBreaker(testBreakerConfig())

	storm := func() {
		for i := 0; i < 6; i++ {
			b.RecordClosure()
		}
	}

	storm()
	if d := b.Deferral(); d != 60*time.Second {
		t.Fatalf("first trip: expected 60s, got %v", d)
	}
	clock.Advance(60 * time.Second)

	storm()
	if d := b.Deferral(); d != 120*time.Second {
		t.Fatalf("second trip: expected 120s, got %v", d)
	}
	clock.Advance(120 * time.Second)

	storm()
	if d := b.Deferral(); d != 240*time.Second {
		t.Fatalf("third trip: expected 240s, got %v", d)
	}
	clock.Advance(240 * time.Second)

	// 60 * 2^3 = 480s would exceed the 300s cap.
	storm()
	if d := b.Deferral(); d != 300*time.Second {
		t.Fatalf("fourth trip: expected capped 300s, got %v", d)
	}
}

func TestBreakerQuietPeriodDecaysTripHistory(t *testing.T) {
	b, clock := newTestBreaker(testBreakerConfig())

	for i := 0; i < 6; i++ {
		b.RecordClosure()
	}
	clock.Advance(60 * time.Second)

	// Quiet period starts counting from the last closure. Ride past it
	// with a healthy connection.
	clock.Advance(31 * time.Second)
	if got := b.Stats().TripCount; got != 0 {
		t.Fatalf("expected trip history decayed, got count %d", got)
	}

	// The next storm is treated as the first again.
	for i := 0; i < 6; i++ {
		b.RecordClosure()
	}
	if d := b.Deferral(); d != 60*time.Second {
		t.Errorf("expected base cooldown after decay, got %v", d)
	}
}

func TestBreakerJitterBounds(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.Jitter = 0.10

	for i := 0; i < 50; i++ {
		b, _ := newTestBreaker(cfg)
		for j := 0; j < 6; j++ {
			b.RecordClosure()
		}
		d := b.Deferral()
		if d < 54*time.Second || d > 66*time.Second {
			t.Fatalf("cooldown %v outside +/-10%% of 60s", d)
		}
	}
}

func TestBreakerInstancesIndependent(t *testing.T) {
	cfg := testBreakerConfig()
	b1, _ := newTestBreaker(cfg)
	b2, _ := newTestBreaker(cfg)

	for i := 0; i < 6; i++ {
		b1.RecordClosure()
	}

	if !b1.Tripped() {
		t.Fatal("first breaker did not trip")
	}
	if b2.Tripped() {
		t.Error("second breaker shares state with the first")
	}
}
