package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/avellar/opswire/internal/channel"
	"github.com/avellar/opswire/internal/config"
)

func newProbeCommand() *cobra.Command {
	var (
		duration time.Duration
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to the gateway, print channel events, and summarize",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), duration, verbose)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "how long to observe the channel")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print full message payloads")
	return cmd
}

func runProbe(ctx context.Context, duration time.Duration, verbose bool) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	mgr := channel.NewManager(managerConfig(cfg), logger)

	var (
		mu          sync.Mutex
		counts      = make(map[string]int)
		lastQuality channel.QualityMetrics
	)

	token := mgr.Subscribe(func(ev channel.Event) {
		mu.Lock()
		counts[ev.Type.String()]++
		if ev.Type == channel.EventQuality {
			lastQuality = ev.Quality
		}
		mu.Unlock()

		switch ev.Type {
		case channel.EventConnected:
			fmt.Printf("%s connected session=%s\n", ev.At.Format(time.TimeOnly), ev.SessionID)
		case channel.EventDisconnected:
			fmt.Printf("%s disconnected code=%d reason=%q\n", ev.At.Format(time.TimeOnly), ev.Code, ev.Reason)
		case channel.EventError:
			fmt.Printf("%s error %v\n", ev.At.Format(time.TimeOnly), ev.Err)
		case channel.EventQuality:
			fmt.Printf("%s quality latency=%.1fms loss=%.1f%% stability=%d\n",
				ev.At.Format(time.TimeOnly),
				ev.Quality.LatencyMs,
				ev.Quality.PacketLossPercent,
				ev.Quality.StabilityScore,
			)
		case channel.EventStatusUpdate:
			fmt.Printf("%s status servers=%d\n", ev.At.Format(time.TimeOnly), len(ev.Servers))
		case channel.EventToolUpdate:
			fmt.Printf("%s tools count=%d\n", ev.At.Format(time.TimeOnly), len(ev.Tools))
		case channel.EventMessage:
			if verbose {
				fmt.Printf("%s message unparsed=%v payload=%s\n", ev.At.Format(time.TimeOnly), ev.Unparsed, ev.Payload)
			} else {
				fmt.Printf("%s message unparsed=%v bytes=%d\n", ev.At.Format(time.TimeOnly), ev.Unparsed, len(ev.Payload))
			}
		}
	})
	defer mgr.Unsubscribe(token)

	fmt.Printf("probing %s for %s (profile %s)\n", cfg.Gateway.URL, duration, cfg.Gateway.Profile)
	if err := mgr.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(duration):
	}
	mgr.Disconnect()

	stats := mgr.Stats()
	mu.Lock()
	defer mu.Unlock()

	fmt.Println("\n--- probe summary ---")
	for _, typ := range []string{"connected", "disconnected", "error", "message", "status_update", "tool_update", "quality"} {
		if counts[typ] > 0 {
			fmt.Printf("%-14s %d\n", typ, counts[typ])
		}
	}
	fmt.Printf("messages in/out: %d/%d\n", stats.MessagesIn, stats.MessagesOut)
	if counts["quality"] > 0 {
		fmt.Printf("final quality: latency=%.1fms loss=%.1f%% stability=%d\n",
			lastQuality.LatencyMs,
			lastQuality.PacketLossPercent,
			lastQuality.StabilityScore,
		)
	}
	return nil
}
