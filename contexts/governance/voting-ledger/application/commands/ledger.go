package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "ballotbox/contexts/governance/voting-ledger/application"
	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/domain/services"
	"ballotbox/contexts/governance/voting-ledger/ports"
	contractsv1 "ballotbox/contracts/gen/events/v1"

	"github.com/go-playground/validator/v10"
)

var commandValidator = validator.New(validator.WithRequiredStructEnabled())

// maxConflictRetries bounds reload-and-reapply cycles on version conflicts.
const maxConflictRetries = 3

type CreateLedgerCommand struct {
	Name         string    `validate:"required,max=200"`
	Description  string    `validate:"max=2000"`
	TotalOptions int       `validate:"min=2,max=256"`
	Mode         string    `validate:"required,oneof=deterministic weighted_lottery"`
	Deadline     time.Time `validate:"required"`
}

type CastVoteCommand struct {
	LedgerID  string `validate:"required"`
	Principal string `validate:"required"`
	Option    int
}

type ClearVoteCommand struct {
	LedgerID  string `validate:"required"`
	Principal string `validate:"required"`
}

// LedgerUseCase owns vote recording. Each mutation loads the ledger, applies
// the entity operation, saves it under the loaded version and appends one
// outbox event.
type LedgerUseCase struct {
	Ledgers   ports.LedgerRepository
	Schedule  ports.ScheduleRepository
	Scheduler *services.DeadlineScheduler
	Rights    ports.RightsRegistry
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

// CreateLedger opens a ledger and registers its deadline with the scheduler.
func (uc LedgerUseCase) CreateLedger(ctx context.Context, cmd CreateLedgerCommand) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	now := uc.now()
	if err := commandValidator.Struct(cmd); err != nil || !cmd.Deadline.After(now) {
		logger.Warn("ledger create validation failed",
			"event", "ledger_create_validation_failed",
			"module", application.LogModule,
			"layer", "application",
			"name", strings.TrimSpace(cmd.Name),
			"total_options", cmd.TotalOptions,
			"mode", cmd.Mode,
		)
		return entities.Ledger{}, domainerrors.ErrInvalidLedgerInput
	}

	ledgerID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return entities.Ledger{}, err
	}
	ledger, err := entities.NewLedger(
		ledgerID,
		cmd.Name,
		cmd.Description,
		cmd.TotalOptions,
		entities.SelectionMode(cmd.Mode),
		cmd.Deadline,
		now,
	)
	if err != nil {
		return entities.Ledger{}, err
	}
	if err := uc.Ledgers.CreateLedger(ctx, ledger); err != nil {
		return entities.Ledger{}, err
	}

	// sequences continue from the persisted schedule after a restart
	if err := hydrateScheduler(ctx, uc.Schedule, uc.Scheduler); err != nil {
		return entities.Ledger{}, err
	}
	entry, err := uc.Scheduler.Register(ledger.LedgerID, ledger.Deadline, now)
	if err != nil {
		return entities.Ledger{}, err
	}
	if uc.Schedule != nil {
		if err := uc.Schedule.SaveScheduleEntry(ctx, entry); err != nil {
			logger.Error("ledger schedule entry persist failed",
				"event", "ledger_schedule_persist_failed",
				"module", application.LogModule,
				"layer", "application",
				"ledger_id", ledger.LedgerID,
				"error", err.Error(),
			)
			return entities.Ledger{}, err
		}
	}

	if err := uc.appendEvent(ctx, contractsv1.EventLedgerCreated, ledger.LedgerID, now, map[string]any{
		"name":          ledger.Name,
		"total_options": ledger.TotalOptions,
		"mode":          string(ledger.Mode),
		"deadline":      ledger.Deadline.Format(time.RFC3339Nano),
	}); err != nil {
		return entities.Ledger{}, err
	}
	logger.Info("ledger created",
		"event", "ledger_created",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", ledger.LedgerID,
		"total_options", ledger.TotalOptions,
		"mode", string(ledger.Mode),
		"deadline", ledger.Deadline,
	)
	return ledger, nil
}

// CastVote records a first vote and then grants the voting right when the
// principal holds none yet. The grant follows the committed vote: a failed
// grant is logged and repaired by the principal's next cast attempt.
func (uc LedgerUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := commandValidator.Struct(cmd); err != nil {
		return entities.Ledger{}, domainerrors.ErrInvalidOption
	}
	principal := strings.TrimSpace(cmd.Principal)
	ledger, err := uc.mutate(ctx, cmd.LedgerID, func(ledger *entities.Ledger) (bool, error) {
		return true, ledger.Cast(principal, cmd.Option)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyVoted) {
			uc.repairRight(ctx, logger, strings.TrimSpace(cmd.LedgerID), principal)
		}
		uc.logRejected(logger, "cast", cmd.LedgerID, principal, err)
		return entities.Ledger{}, err
	}

	now := uc.now()
	if err := uc.appendEvent(ctx, contractsv1.EventVoteCast, ledger.LedgerID, now, map[string]any{
		"principal": principal,
		"option":    cmd.Option,
	}); err != nil {
		return entities.Ledger{}, err
	}
	uc.grantRight(ctx, logger, ledger.LedgerID, principal)
	logger.Info("vote cast",
		"event", "ledger_vote_cast",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", ledger.LedgerID,
		"principal", principal,
		"option", cmd.Option,
	)
	return ledger, nil
}

func (uc LedgerUseCase) ChangeVote(ctx context.Context, cmd CastVoteCommand) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := commandValidator.Struct(cmd); err != nil {
		return entities.Ledger{}, domainerrors.ErrInvalidOption
	}
	principal := strings.TrimSpace(cmd.Principal)
	var previous int
	ledger, err := uc.mutate(ctx, cmd.LedgerID, func(ledger *entities.Ledger) (bool, error) {
		previous = ledger.ChoiceOf(principal)
		return true, ledger.ChangeVote(principal, cmd.Option)
	})
	if err != nil {
		uc.logRejected(logger, "change", cmd.LedgerID, principal, err)
		return entities.Ledger{}, err
	}
	if err := uc.appendEvent(ctx, contractsv1.EventVoteChanged, ledger.LedgerID, uc.now(), map[string]any{
		"principal":       principal,
		"previous_option": previous,
		"option":          cmd.Option,
	}); err != nil {
		return entities.Ledger{}, err
	}
	logger.Info("vote changed",
		"event", "ledger_vote_changed",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", ledger.LedgerID,
		"principal", principal,
		"previous_option", previous,
		"option", cmd.Option,
	)
	return ledger, nil
}

// ClearVote withdraws a vote. Only the current holder of the voting right may
// clear it.
func (uc LedgerUseCase) ClearVote(ctx context.Context, cmd ClearVoteCommand) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := commandValidator.Struct(cmd); err != nil {
		return entities.Ledger{}, domainerrors.ErrNoExistingVote
	}
	principal := strings.TrimSpace(cmd.Principal)
	if uc.Rights != nil {
		holds, err := uc.Rights.Holds(ctx, strings.TrimSpace(cmd.LedgerID), principal)
		if err != nil {
			return entities.Ledger{}, err
		}
		if !holds {
			uc.logRejected(logger, "clear", cmd.LedgerID, principal, domainerrors.ErrRightNotHeld)
			return entities.Ledger{}, domainerrors.ErrRightNotHeld
		}
	}
	var previous int
	ledger, err := uc.mutate(ctx, cmd.LedgerID, func(ledger *entities.Ledger) (bool, error) {
		previous = ledger.ChoiceOf(principal)
		return true, ledger.ClearVote(principal)
	})
	if err != nil {
		uc.logRejected(logger, "clear", cmd.LedgerID, principal, err)
		return entities.Ledger{}, err
	}
	if err := uc.appendEvent(ctx, contractsv1.EventVoteCleared, ledger.LedgerID, uc.now(), map[string]any{
		"principal":       principal,
		"previous_option": previous,
	}); err != nil {
		return entities.Ledger{}, err
	}
	logger.Info("vote cleared",
		"event", "ledger_vote_cleared",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", ledger.LedgerID,
		"principal", principal,
	)
	return ledger, nil
}

// TransferChoice is the ledger side of a rights transfer. It reports whether a
// recorded choice moved; the tally never changes.
func (uc LedgerUseCase) TransferChoice(ctx context.Context, ledgerID string, from string, to string) (bool, error) {
	logger := application.ResolveLogger(uc.Logger)
	var moved bool
	_, err := uc.mutate(ctx, ledgerID, func(ledger *entities.Ledger) (bool, error) {
		var err error
		moved, err = ledger.TransferChoice(from, to)
		return moved, err
	})
	if err != nil {
		logger.Warn("ledger choice transfer rejected",
			"event", "ledger_choice_transfer_rejected",
			"module", application.LogModule,
			"layer", "application",
			"ledger_id", strings.TrimSpace(ledgerID),
			"from", strings.TrimSpace(from),
			"to", strings.TrimSpace(to),
			"error", err.Error(),
		)
		return false, err
	}
	if moved {
		logger.Info("ledger choice transferred",
			"event", "ledger_choice_transferred",
			"module", application.LogModule,
			"layer", "application",
			"ledger_id", strings.TrimSpace(ledgerID),
			"from", strings.TrimSpace(from),
			"to", strings.TrimSpace(to),
		)
	}
	return moved, nil
}

func (uc LedgerUseCase) grantRight(ctx context.Context, logger *slog.Logger, ledgerID string, principal string) {
	if uc.Rights == nil {
		return
	}
	if _, err := uc.Rights.Grant(ctx, ledgerID, principal); err != nil {
		logger.Error("voting right grant failed",
			"event", "ledger_vote_right_grant_failed",
			"module", application.LogModule,
			"layer", "application",
			"ledger_id", ledgerID,
			"principal", principal,
			"error", err.Error(),
		)
	}
}

// repairRight grants the right behind a recorded vote whose grant was lost.
// A principal with a choice always holds the right once this succeeds.
func (uc LedgerUseCase) repairRight(ctx context.Context, logger *slog.Logger, ledgerID string, principal string) {
	if uc.Rights == nil {
		return
	}
	holds, err := uc.Rights.Holds(ctx, ledgerID, principal)
	if err != nil || holds {
		return
	}
	logger.Warn("repairing missing voting right",
		"event", "ledger_vote_right_repair",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", ledgerID,
		"principal", principal,
	)
	uc.grantRight(ctx, logger, ledgerID, principal)
}

// mutate applies fn to a freshly loaded ledger and saves it when fn reports a
// change. Version conflicts reload and reapply a bounded number of times.
func (uc LedgerUseCase) mutate(
	ctx context.Context,
	ledgerID string,
	fn func(ledger *entities.Ledger) (bool, error),
) (entities.Ledger, error) {
	ledgerID = strings.TrimSpace(ledgerID)
	if ledgerID == "" {
		return entities.Ledger{}, domainerrors.ErrLedgerNotFound
	}
	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		ledger, err := uc.Ledgers.GetLedger(ctx, ledgerID)
		if err != nil {
			return entities.Ledger{}, err
		}
		changed, err := fn(&ledger)
		if err != nil {
			return entities.Ledger{}, err
		}
		if !changed {
			return ledger, nil
		}
		ledger.UpdatedAt = uc.now()
		saved, err := uc.Ledgers.SaveLedger(ctx, ledger)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, domainerrors.ErrConflict) {
			return entities.Ledger{}, err
		}
		lastErr = err
	}
	return entities.Ledger{}, lastErr
}

func (uc LedgerUseCase) appendEvent(
	ctx context.Context,
	eventType string,
	ledgerID string,
	now time.Time,
	data map[string]any,
) error {
	if uc.Outbox == nil {
		return nil
	}
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := application.NewLedgerEnvelope(eventID, eventType, ledgerID, now, data)
	if err != nil {
		return err
	}
	return uc.Outbox.AppendOutbox(ctx, envelope)
}

func (uc LedgerUseCase) logRejected(logger *slog.Logger, op string, ledgerID string, principal string, err error) {
	logger.Warn("ledger vote rejected",
		"event", "ledger_vote_rejected",
		"module", application.LogModule,
		"layer", "application",
		"operation", op,
		"ledger_id", strings.TrimSpace(ledgerID),
		"principal", principal,
		"error", err.Error(),
	)
}

func (uc LedgerUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}
