package workers

import (
	"context"
	"log/slog"

	application "ballotbox/contexts/governance/voting-ledger/application"
)

type DueExecutor interface {
	ExecuteDue(ctx context.Context) (int, error)
}

// DeadlineSweeper settles every ledger whose deadline has passed.
type DeadlineSweeper struct {
	Settlement DueExecutor
	Logger     *slog.Logger
}

func (j DeadlineSweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(j.Logger)
	executed, err := j.Settlement.ExecuteDue(ctx)
	if err != nil {
		logger.Error("deadline sweep failed",
			"event", "ledger_deadline_sweep_failed",
			"module", application.LogModule,
			"layer", "worker",
			"executed_count", executed,
			"error", err.Error(),
		)
		return err
	}
	if executed > 0 {
		logger.Info("deadline sweep completed",
			"event", "ledger_deadline_sweep_completed",
			"module", application.LogModule,
			"layer", "worker",
			"executed_count", executed,
		)
	}
	return nil
}
