package workers

import (
	"context"
	"log/slog"

	application "ballotbox/contexts/governance/voting-ledger/application"
	"ballotbox/contexts/governance/voting-ledger/application/commands"
)

type RandomnessExpirer interface {
	ExpireStaleRandomness(ctx context.Context) (commands.ExpiryResult, error)
}

// RandomnessWatchdog retries randomness requests that outlived their timeout.
type RandomnessWatchdog struct {
	Settlement RandomnessExpirer
	Logger     *slog.Logger
}

func (j RandomnessWatchdog) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	result, err := j.Settlement.ExpireStaleRandomness(ctx)
	if err != nil {
		logger.Error("randomness watchdog pass failed",
			"event", "ledger_randomness_watchdog_failed",
			"module", application.LogModule,
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if result.Expired > 0 {
		logger.Info("randomness watchdog pass completed",
			"event", "ledger_randomness_watchdog_completed",
			"module", application.LogModule,
			"layer", "worker",
			"expired_count", result.Expired,
			"retried_count", result.Retried,
			"stalled_count", result.Stalled,
		)
	}
	return nil
}
