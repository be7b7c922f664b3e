package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/avellar/opswire/internal/channel"
	"github.com/avellar/opswire/internal/config"
	"github.com/avellar/opswire/internal/database"
	"github.com/avellar/opswire/internal/metrics"
	"github.com/avellar/opswire/internal/recorder"
	"github.com/avellar/opswire/internal/version"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent: control channel, metrics, telemetry recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context())
		},
	}
}

func runAgent(ctx context.Context) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting opswire agent",
		"version", version.Version,
		"commit", version.Commit,
		"instance_id", cfg.Instance.ID,
		"gateway_url", cfg.Gateway.URL,
		"profile", cfg.Gateway.Profile,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Telemetry database is optional; the channel runs without it.
	var pool *pgxpool.Pool
	if cfg.RecorderEnabled() {
		logger.Info("connecting to telemetry database",
			"host", cfg.Database.Telemetry.Host,
			"port", cfg.Database.Telemetry.Port,
			"database", cfg.Database.Telemetry.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database.Telemetry)
		if err != nil {
			return fmt.Errorf("connect telemetry database: %w", err)
		}
		defer pool.Close()
		logger.Info("telemetry database connected")
	} else {
		logger.Info("telemetry database not configured, recorder disabled")
	}

	m := metrics.New()
	m.StartServer(ctx, fmt.Sprintf(":%d", cfg.Metrics.Port), cfg.Metrics.Path, logger)

	mgr := channel.NewManager(managerConfig(cfg), logger)
	metricsToken := mgr.Subscribe(m.HandleEvent)
	defer mgr.Unsubscribe(metricsToken)

	var rec *recorder.Recorder
	if pool != nil {
		rec = recorder.New(recorderConfig(cfg), mgr, pool, m, logger)
		if err := rec.Start(ctx); err != nil {
			return fmt.Errorf("start recorder: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			rec.Stop(stopCtx)
		}()
	}

	if err := mgr.Connect(ctx); err != nil {
		return fmt.Errorf("connect channel: %w", err)
	}
	defer mgr.Disconnect()

	// Gauges the event stream cannot carry (breaker cooldown, trip deltas)
	// come from periodic snapshots.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ObserveStats(mgr.Stats())
			}
		}
	}()

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           newHealthHandler(pool, mgr, rec),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("health server started", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("agent running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	return nil
}

// buildLogger creates the configured slog logger.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// managerConfig maps file configuration onto the channel manager.
func managerConfig(cfg *config.AgentConfig) channel.ManagerConfig {
	return channel.ManagerConfig{
		URL:                   cfg.Gateway.URL,
		Profile:               channel.Profile(cfg.Gateway.Profile),
		MaxReconnectAttempts:  cfg.Channel.MaxReconnectAttempts,
		InitialReconnectDelay: cfg.Channel.InitialReconnectDelay,
		MaxReconnectDelay:     cfg.Channel.MaxReconnectDelay,
		BackoffMultiplier:     cfg.Channel.BackoffMultiplier,
		StatusCheckInterval:   cfg.Channel.StatusCheckInterval,
		StallTimeout:          cfg.Channel.StallTimeout,
		HandshakeTimeout:      cfg.Gateway.HandshakeTimeout,
		WriteTimeout:          cfg.Gateway.WriteTimeout,
		Monitor: channel.MonitorConfig{
			PingInterval:       cfg.Quality.PingInterval,
			PongTimeout:        cfg.Quality.PongTimeout,
			WindowSize:         cfg.Quality.WindowSize,
			CriticalStability:  cfg.Quality.CriticalStability,
			ExtremeLossPercent: cfg.Quality.ExtremeLossPercent,
			BadSampleLimit:     cfg.Quality.BadSampleLimit,
		},
		Breaker: channel.BreakerConfig{
			Window:       cfg.Breaker.Window,
			TripCount:    cfg.Breaker.TripCount,
			TripRate:     cfg.Breaker.TripRate,
			BaseCooldown: cfg.Breaker.BaseCooldown,
			Growth:       cfg.Breaker.Growth,
			CooldownCap:  cfg.Breaker.CooldownCap,
			QuietPeriod:  cfg.Breaker.QuietPeriod,
			Jitter:       cfg.Breaker.Jitter,
		},
	}
}

func recorderConfig(cfg *config.AgentConfig) recorder.Config {
	return recorder.Config{
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
		BufferSize:    cfg.Recorder.BufferSize,
	}
}

// newHealthHandler serves /health plus channel debug endpoints.
func newHealthHandler(pool *pgxpool.Pool, mgr channel.Manager, rec *recorder.Recorder) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		stats := mgr.Stats()
		health.Components["channel"] = map[string]any{
			"state":     stats.State.String(),
			"attempt":   stats.Attempt,
			"stability": stats.Quality.StabilityScore,
		}
		if stats.State != channel.StateOpen {
			health.Status = "degraded"
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/channel", func(w http.ResponseWriter, r *http.Request) {
		stats := mgr.Stats()
		out := map[string]any{
			"state":                stats.State.String(),
			"session_id":           stats.SessionID,
			"connected_at":         stats.ConnectedAt,
			"attempt":              stats.Attempt,
			"consecutive_abnormal": stats.ConsecutiveAbnormalClosures,
			"messages_in":          stats.MessagesIn,
			"messages_out":         stats.MessagesOut,
			"last_close_code":      stats.LastCloseCode,
			"last_close_reason":    stats.LastCloseReason,
			"breaker_tripped":      stats.Breaker.Tripped,
			"breaker_trip_count":   stats.Breaker.TripCount,
			"breaker_cooldown":     stats.Breaker.CooldownRemaining.String(),
			"latency_ms":           stats.Quality.LatencyMs,
			"packet_loss_percent":  stats.Quality.PacketLossPercent,
			"stability_score":      stats.Quality.StabilityScore,
			"connection_age_ms":    stats.Quality.ConnectionAgeMs,
		}
		if rec != nil {
			out["recorder"] = rec.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	mux.HandleFunc("/debug/reconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		mgr.ForceReconnect("operator request")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "reconnect triggered")
	})

	return mux
}
