package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"ballotbox/internal/app/bootstrap"
	"ballotbox/internal/platform/config"
	"ballotbox/internal/platform/logging"

	"github.com/spf13/cobra"
)

// withOperator builds the shared runtime for one command and closes it
// afterwards.
func withOperator(cmd *cobra.Command, run func(context.Context, *bootstrap.OperatorApp) (any, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.Setup(programName, globalFlags.debug || cfg.Debug)
	if err != nil {
		return err
	}
	app, err := bootstrap.BuildOperator(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	out, err := run(cmd.Context(), app)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func scheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect the deadline schedule",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List schedule entries in deadline order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(cmd, func(ctx context.Context, app *bootstrap.OperatorApp) (any, error) {
				return app.Module.Handler.ScheduleHandler(ctx)
			})
		},
	})
	return cmd
}

func ledgersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ledgers",
		Short: "List every ledger with its state and settlement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(cmd, func(ctx context.Context, app *bootstrap.OperatorApp) (any, error) {
				return app.Module.Handler.ListLedgersHandler(ctx)
			})
		},
	}
}

func settleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <ledger-id>",
		Short: "Execute one ledger's schedule entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, func(ctx context.Context, app *bootstrap.OperatorApp) (any, error) {
				return app.Module.Handler.SettleLedgerHandler(ctx, args[0])
			})
		},
	}
}

func randomnessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "randomness",
		Short: "Inspect and recover randomness requests",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stalled",
			Short: "List ledgers whose randomness request stalled",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withOperator(cmd, func(ctx context.Context, app *bootstrap.OperatorApp) (any, error) {
					return app.Module.Handler.StalledHandler(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "retry <ledger-id>",
			Short: "Issue a fresh randomness request for a stalled ledger",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withOperator(cmd, func(ctx context.Context, app *bootstrap.OperatorApp) (any, error) {
					return app.Module.Handler.RetryRandomnessHandler(ctx, args[0])
				})
			},
		},
	)
	return cmd
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one pass over every due schedule entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOperator(cmd, func(ctx context.Context, app *bootstrap.OperatorApp) (any, error) {
				executed, err := app.Module.Handler.Settlement.ExecuteDue(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]int{"executed": executed}, nil
			})
		},
	}
}

func resultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "results <ledger-id>",
		Short: "Show tally and settlement of a closed ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, func(ctx context.Context, app *bootstrap.OperatorApp) (any, error) {
				return app.Module.Handler.ResultsHandler(ctx, args[0])
			})
		},
	}
}

func printJSON(w io.Writer, payload any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
