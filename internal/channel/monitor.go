package channel

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MonitorConfig tunes the quality probe loop.
type MonitorConfig struct {
	// PingInterval is the probe cadence while the channel is Open.
	PingInterval time.Duration

	// PongTimeout is how long a probe waits before counting as lost.
	PongTimeout time.Duration

	// WindowSize is the sample ring capacity.
	WindowSize int

	// CriticalStability, ExtremeLossPercent and BadSampleLimit gate the
	// forced reconnect: BadSampleLimit consecutive samples with the score
	// below CriticalStability and loss at or above ExtremeLossPercent.
	CriticalStability  int
	ExtremeLossPercent float64
	BadSampleLimit     int
}

// DefaultMonitorConfig returns probe settings for the given profile. The
// constrained profile probes sparingly to stay under proxy idle budgets.
func DefaultMonitorConfig(profile Profile) MonitorConfig {
	cfg := MonitorConfig{
		PingInterval:       10 * time.Second,
		PongTimeout:        5 * time.Second,
		WindowSize:         50,
		CriticalStability:  50,
		ExtremeLossPercent: 98,
		BadSampleLimit:     3,
	}
	if profile == ProfileConstrained {
		cfg.PingInterval = 60 * time.Second
		cfg.PongTimeout = 30 * time.Second
	}
	return cfg
}

// SendFunc writes one outbound frame to the live channel.
type SendFunc func(v any) error

// QualityMonitor probes an open connection with application-level pings,
// keeps a bounded window of results, and publishes a quality event after
// every sample. When the stability score and packet loss stay past their
// thresholds for BadSampleLimit consecutive samples it requests a forced
// reconnect, exactly once per degradation streak.
type QualityMonitor struct {
	cfg      MonitorConfig
	send     SendFunc
	degraded func(reason string)
	publish  func(Event)
	logger   *slog.Logger
	timers   *timerSet

	wg sync.WaitGroup

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	ring        *sampleRing
	outstanding string // in-flight ping ID, empty when none
	sentAt      time.Time
	startedAt   time.Time
	lastRTT     time.Duration
	badStreak   int
	requested   bool // degraded already requested for this streak

	now func() time.Time
}

// NewQualityMonitor creates a monitor. send writes probe frames, degraded
// runs on its own goroutine when sustained degradation is detected, and
// publish receives a quality event after every settled sample.
func NewQualityMonitor(cfg MonitorConfig, send SendFunc, degraded func(reason string), publish func(Event), logger *slog.Logger) *QualityMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 1
	}
	return &QualityMonitor{
		cfg:      cfg,
		send:     send,
		degraded: degraded,
		publish:  publish,
		logger:   logger,
		timers:   newTimerSet(),
		ring:     newSampleRing(cfg.WindowSize),
		now:      time.Now,
	}
}

// Start begins probing a newly opened connection. Prior samples and streaks
// are discarded. No-op when already running.
func (q *QualityMonitor) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.ring.Reset()
	q.outstanding = ""
	q.badStreak = 0
	q.requested = false
	q.lastRTT = 0
	q.startedAt = q.now()
	q.mu.Unlock()

	q.wg.Add(1)
	go q.run(runCtx)

	q.logger.Debug("quality monitor started",
		"ping_interval", q.cfg.PingInterval,
		"pong_timeout", q.cfg.PongTimeout,
	)
}

// Stop halts probing and waits for the probe loop to exit. Safe to call
// when not running.
func (q *QualityMonitor) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	cancel()
	q.timers.Cancel(slotPong)
	q.wg.Wait()
}

// Snapshot returns current metrics without recording a sample.
func (q *QualityMonitor) Snapshot() QualityMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *QualityMonitor) run(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.PingInterval)
	defer ticker.Stop()

	q.probe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.probe()
		}
	}
}

// probe sends one ping and arms the pong deadline.
func (q *QualityMonitor) probe() {
	id := uuid.NewString()

	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	if q.outstanding != "" {
		// The previous probe is still in flight; its deadline records the
		// miss. Skip rather than stack probes.
		q.mu.Unlock()
		return
	}
	q.outstanding = id
	q.sentAt = q.now()
	sentAt := q.sentAt
	q.mu.Unlock()

	if err := q.send(newPing(id, sentAt)); err != nil {
		q.logger.Debug("quality ping send failed", "error", err)
		q.settle(id, 0, false)
		return
	}

	q.timers.Arm(slotPong, q.cfg.PongTimeout, func() {
		q.settle(id, 0, false)
	})
}

// HandlePong resolves the in-flight probe. A pong without an ID matches the
// outstanding ping; a mismatched ID is ignored as stale.
func (q *QualityMonitor) HandlePong(f pongFrame) {
	q.mu.Lock()
	id := q.outstanding
	sentAt := q.sentAt
	now := q.now()
	q.mu.Unlock()

	if id == "" || (f.ID != "" && f.ID != id) {
		return
	}
	q.timers.Cancel(slotPong)
	q.settle(id, now.Sub(sentAt), true)
}

// HandleServerPing answers an unsolicited gateway probe immediately with a
// client_pong carrying current diagnostics.
func (q *QualityMonitor) HandleServerPing(f serverPingFrame) {
	q.mu.Lock()
	m := q.snapshotLocked()
	rtt := q.lastRTT
	now := q.now()
	q.mu.Unlock()

	pong := clientPongFrame{
		Type:          frameClientPong,
		ID:            f.ID,
		Timestamp:     now.UnixMilli(),
		RoundTripTime: float64(rtt.Milliseconds()),
		Metrics:       m,
	}
	if err := q.send(pong); err != nil {
		q.logger.Debug("client pong send failed", "error", err)
	}
}

// settle records the outcome of the probe identified by id, publishes the
// resulting sample, and evaluates the degradation gate.
func (q *QualityMonitor) settle(id string, rtt time.Duration, ok bool) {
	q.mu.Lock()
	if !q.running || q.outstanding != id {
		q.mu.Unlock()
		return
	}
	q.outstanding = ""
	q.ring.Push(pingSample{RTT: rtt, OK: ok, At: q.now()})
	if ok {
		q.lastRTT = rtt
	}
	m := q.snapshotLocked()

	degrade := false
	if m.StabilityScore < q.cfg.CriticalStability && m.PacketLossPercent >= q.cfg.ExtremeLossPercent {
		q.badStreak++
		if q.badStreak >= q.cfg.BadSampleLimit && !q.requested {
			q.requested = true
			degrade = true
		}
	} else {
		q.badStreak = 0
		q.requested = false
	}
	at := q.now()
	q.mu.Unlock()

	if q.publish != nil {
		q.publish(Event{Type: EventQuality, At: at, Quality: m})
	}

	if degrade {
		q.logger.Warn("sustained connection degradation",
			"stability", m.StabilityScore,
			"loss_pct", m.PacketLossPercent,
			"bad_samples", q.cfg.BadSampleLimit,
		)
		if q.degraded != nil {
			// Detach: the callback tears the connection down and will stop
			// this monitor, so it must not run on the probe goroutine.
			go q.degraded("sustained quality degradation")
		}
	}
}

// snapshotLocked computes metrics over the current window. Caller holds mu.
func (q *QualityMonitor) snapshotLocked() QualityMetrics {
	m := QualityMetrics{StabilityScore: 100}
	if q.running {
		m.ConnectionAgeMs = q.now().Sub(q.startedAt).Milliseconds()
	}

	samples := q.ring.Snapshot()
	if len(samples) == 0 {
		return m
	}

	var rtts []float64
	missed := 0
	for _, s := range samples {
		if s.OK {
			rtts = append(rtts, float64(s.RTT.Milliseconds()))
		} else {
			missed++
		}
	}
	m.PacketLossPercent = float64(missed) / float64(len(samples)) * 100

	var stddev float64
	if len(rtts) > 0 {
		var sum float64
		for _, v := range rtts {
			sum += v
		}
		mean := sum / float64(len(rtts))
		m.LatencyMs = mean

		var varSum float64
		for _, v := range rtts {
			varSum += (v - mean) * (v - mean)
		}
		stddev = math.Sqrt(varSum / float64(len(rtts)))
	}
	m.StabilityScore = stabilityScore(m.PacketLossPercent, stddev)
	return m
}

// stabilityScore folds packet loss and RTT jitter into [0, 100]. Loss
// dominates: total loss alone costs 60 points; jitter costs up to 40 more,
// saturating at 400ms of standard deviation.
func stabilityScore(lossPercent, rttStddevMs float64) int {
	score := 100 - lossPercent*0.6 - math.Min(40, rttStddevMs/10)
	if score < 0 {
		return 0
	}
	return int(math.Round(score))
}
