// Package commands implements the opswire CLI.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/avellar/opswire/internal/version"
)

var configPath string

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return newRootCommand().ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opswire",
		Short: "Operations console control-channel agent",
		Long: `opswire maintains a persistent control channel to the operations
gateway: it survives flaky networks and server restarts with bounded
jittered reconnection, contains reconnect storms with a circuit breaker,
and continuously measures connection quality. Channel telemetry is
exported to Prometheus and optionally recorded to PostgreSQL.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/agent.yaml", "config file path")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newProbeCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
