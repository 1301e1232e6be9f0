package commands

import (
	"context"
	"fmt"
	"os"
	"volleymanager-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	debug      *bool
)

var rootCmd = &cobra.Command{
	Use:   "volleymanager-cli",
	Short: "volleymanager-cli logs into volleymanager and inspects the resulting session.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*debug)
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file to read credentials from.")
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Enables debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
