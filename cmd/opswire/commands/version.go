package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avellar/opswire/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "opswire", version.String())
		},
	}
}
