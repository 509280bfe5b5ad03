package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ballotbox/internal/app/bootstrap"
	"ballotbox/internal/platform/config"
	"ballotbox/internal/platform/logging"

	"github.com/spf13/cobra"
)

const programName = "ballotbox-api"

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Serve HTTP and metrics until SIGINT/SIGTERM.
func main() {
	var debug bool
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Voting ledger HTTP API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.Setup(programName, debug || cfg.Debug)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.BuildAPI(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					logger.Error("api shutdown close failed", "error", err.Error())
				}
			}()
			return app.Run(ctx)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "enable debug logging")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("ballotbox api stopped with error", "error", err.Error())
		os.Exit(1)
	}
}
