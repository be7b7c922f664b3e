package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avellar/opswire/internal/channel"
)

const namespace = "opswire"

// knownStates enumerates the channel states exported on the state gauge.
var knownStates = []channel.State{
	channel.StateIdle,
	channel.StateConnecting,
	channel.StateOpen,
	channel.StateClosing,
	channel.StateClosed,
}

// Metrics collects channel and recorder metrics on a private registry.
type Metrics struct {
	mu            sync.Mutex
	lastTripCount int

	// Channel lifecycle
	connectionState  *prometheus.GaugeVec
	connectsTotal    prometheus.Counter
	disconnectsTotal *prometheus.CounterVec
	eventsTotal      *prometheus.CounterVec

	// Quality
	rttSeconds     prometheus.Histogram
	stabilityScore prometheus.Gauge
	packetLossPct  prometheus.Gauge

	// Breaker
	breakerTrips    prometheus.Counter
	cooldownSeconds prometheus.Gauge

	// Recorder
	recorderFlushes *prometheus.CounterVec
	recorderInserts *prometheus.CounterVec
	recorderErrors  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a metrics collector with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		connectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "channel_state",
				Help:      "Current channel state (1 for the active state, 0 otherwise)",
			},
			[]string{"state"},
		),
		connectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_connects_total",
				Help:      "Total number of successful channel opens",
			},
		),
		disconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_disconnects_total",
				Help:      "Total number of channel closures by close code",
			},
			[]string{"code"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_events_total",
				Help:      "Total number of channel events by type",
			},
			[]string{"type"},
		),

		rttSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "channel_rtt_seconds",
				Help:      "Application-level ping round-trip time",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		stabilityScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "channel_stability_score",
				Help:      "Latest connection stability score (0-100)",
			},
		),
		packetLossPct: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "channel_packet_loss_percent",
				Help:      "Latest probe packet loss over the sample window",
			},
		),

		breakerTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
		),
		cooldownSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_cooldown_seconds",
				Help:      "Remaining breaker cooldown, 0 when not tripped",
			},
		),

		recorderFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recorder_flushes_total",
				Help:      "Total number of recorder batch flushes",
			},
			[]string{"writer"},
		),
		recorderInserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recorder_inserts_total",
				Help:      "Total number of rows inserted by the recorder",
			},
			[]string{"writer"},
		),
		recorderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recorder_errors_total",
				Help:      "Total number of recorder batch insert failures",
			},
			[]string{"writer"},
		),
	}

	registry.MustRegister(
		m.connectionState,
		m.connectsTotal,
		m.disconnectsTotal,
		m.eventsTotal,
		m.rttSeconds,
		m.stabilityScore,
		m.packetLossPct,
		m.breakerTrips,
		m.cooldownSeconds,
		m.recorderFlushes,
		m.recorderInserts,
		m.recorderErrors,
	)

	m.SetState(channel.StateIdle)
	return m
}

// SetState marks one state active on the state gauge.
func (m *Metrics) SetState(s channel.State) {
	for _, known := range knownStates {
		v := 0.0
		if known == s {
			v = 1.0
		}
		m.connectionState.WithLabelValues(known.String()).Set(v)
	}
}

// ObserveStats refreshes gauges derived from a manager snapshot and counts
// breaker trips by their delta since the previous snapshot. The breaker's
// trip count decays during quiet periods, so only increases count.
func (m *Metrics) ObserveStats(stats channel.ManagerStats) {
	m.SetState(stats.State)
	m.cooldownSeconds.Set(stats.Breaker.CooldownRemaining.Seconds())

	m.mu.Lock()
	if stats.Breaker.TripCount > m.lastTripCount {
		m.breakerTrips.Add(float64(stats.Breaker.TripCount - m.lastTripCount))
	}
	m.lastTripCount = stats.Breaker.TripCount
	m.mu.Unlock()
}

// RecordFlush counts one recorder flush with its insert outcome.
func (m *Metrics) RecordFlush(writer string, inserts int) {
	m.recorderFlushes.WithLabelValues(writer).Inc()
	m.recorderInserts.WithLabelValues(writer).Add(float64(inserts))
}

// RecordWriteError counts one failed recorder flush.
func (m *Metrics) RecordWriteError(writer string) {
	m.recorderErrors.WithLabelValues(writer).Inc()
}

// HandleEvent updates collectors from one bus event. Subscribe it directly
// on the channel manager.
func (m *Metrics) HandleEvent(ev channel.Event) {
	m.eventsTotal.WithLabelValues(ev.Type.String()).Inc()

	switch ev.Type {
	case channel.EventConnected:
		m.connectsTotal.Inc()
		m.SetState(channel.StateOpen)
	case channel.EventDisconnected:
		m.disconnectsTotal.WithLabelValues(strconv.Itoa(ev.Code)).Inc()
		m.SetState(channel.StateClosed)
	case channel.EventQuality:
		m.stabilityScore.Set(float64(ev.Quality.StabilityScore))
		m.packetLossPct.Set(ev.Quality.PacketLossPercent)
		if ev.Quality.LatencyMs > 0 {
			m.rttSeconds.Observe(ev.Quality.LatencyMs / 1000)
		}
	}
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer exposes the scrape endpoint on addr until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, addr, path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server started", "addr", addr, "path", path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}
