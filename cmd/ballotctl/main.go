package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const programName = "ballotctl"

var globalFlags = struct {
	debug bool
}{}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Operator tooling for voting ledgers",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.AddCommand(
		ledgersCommand(),
		scheduleCommand(),
		settleCommand(),
		randomnessCommand(),
		sweepCommand(),
		resultsCommand(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("ballotctl failed", "error", err.Error())
		os.Exit(1)
	}
}
