package rights

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "ballotbox/contexts/governance/voting-ledger/application"
	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/ports"
	contractsv1 "ballotbox/contracts/gen/events/v1"
)

type TransferCommand struct {
	LedgerID string
	From     string
	To       string
}

// Registry tracks who holds the voting right of each ledger. A principal
// holds at most one right per ledger, and a transfer carries the holder's
// recorded choice along through the ledger hook.
type Registry struct {
	Store  ports.RightsStore
	Hook   ports.ChoiceTransferHook
	Outbox ports.OutboxWriter
	Clock  ports.Clock
	IDGen  ports.IDGenerator
	Logger *slog.Logger
}

// Grant issues a right to principal. Granting to a current holder returns the
// existing holding.
func (r Registry) Grant(ctx context.Context, ledgerID string, principal string) (entities.RightHolding, error) {
	ledgerID = strings.TrimSpace(ledgerID)
	principal = strings.TrimSpace(principal)
	if ledgerID == "" || principal == "" {
		return entities.RightHolding{}, domainerrors.ErrInvalidLedgerInput
	}
	if existing, found, err := r.Store.GetHoldingByHolder(ctx, ledgerID, principal); err != nil {
		return entities.RightHolding{}, err
	} else if found {
		return existing, nil
	}
	rightID, err := r.IDGen.NewID(ctx)
	if err != nil {
		return entities.RightHolding{}, err
	}
	holding := entities.RightHolding{
		RightID:   rightID,
		LedgerID:  ledgerID,
		Holder:    principal,
		GrantedAt: r.now(),
	}
	if err := r.Store.SaveHolding(ctx, holding); err != nil {
		return entities.RightHolding{}, err
	}
	application.ResolveLogger(r.Logger).Info("voting right granted",
		"event", "rights_granted",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", ledgerID,
		"right_id", rightID,
		"holder", principal,
	)
	return holding, nil
}

func (r Registry) Holds(ctx context.Context, ledgerID string, principal string) (bool, error) {
	_, found, err := r.Store.GetHoldingByHolder(ctx, strings.TrimSpace(ledgerID), strings.TrimSpace(principal))
	return found, err
}

// Transfer moves from's right to to. The ledger hook runs first so a
// rejected choice move leaves the holding untouched; if the holding then
// fails to persist, the choice is moved back to from.
func (r Registry) Transfer(ctx context.Context, cmd TransferCommand) (entities.RightHolding, error) {
	logger := application.ResolveLogger(r.Logger)
	ledgerID := strings.TrimSpace(cmd.LedgerID)
	from := strings.TrimSpace(cmd.From)
	to := strings.TrimSpace(cmd.To)
	if ledgerID == "" || from == "" || to == "" || from == to {
		return entities.RightHolding{}, domainerrors.ErrInvalidTransfer
	}

	holding, found, err := r.Store.GetHoldingByHolder(ctx, ledgerID, from)
	if err != nil {
		return entities.RightHolding{}, err
	}
	if !found {
		return entities.RightHolding{}, domainerrors.ErrRightNotHeld
	}
	if _, taken, err := r.Store.GetHoldingByHolder(ctx, ledgerID, to); err != nil {
		return entities.RightHolding{}, err
	} else if taken {
		return entities.RightHolding{}, domainerrors.ErrAlreadyHoldsRight
	}

	moved := false
	if r.Hook != nil {
		moved, err = r.Hook.TransferChoice(ctx, ledgerID, from, to)
		if err != nil {
			logger.Warn("rights transfer rejected by ledger",
				"event", "rights_transfer_rejected",
				"module", application.LogModule,
				"layer", "application",
				"ledger_id", ledgerID,
				"right_id", holding.RightID,
				"from", from,
				"to", to,
				"error", err.Error(),
			)
			return entities.RightHolding{}, err
		}
	}

	now := r.now()
	holding.Holder = to
	holding.TransferredAt = &now
	if err := r.Store.SaveHolding(ctx, holding); err != nil {
		logger.Error("rights holding persist failed",
			"event", "rights_transfer_persist_failed",
			"module", application.LogModule,
			"layer", "application",
			"ledger_id", ledgerID,
			"right_id", holding.RightID,
			"choice_moved", moved,
			"error", err.Error(),
		)
		if moved {
			if _, undoErr := r.Hook.TransferChoice(ctx, ledgerID, to, from); undoErr != nil {
				logger.Error("rights transfer choice restore failed",
					"event", "rights_transfer_restore_failed",
					"module", application.LogModule,
					"layer", "application",
					"ledger_id", ledgerID,
					"right_id", holding.RightID,
					"from", from,
					"to", to,
					"error", undoErr.Error(),
				)
				return entities.RightHolding{}, errors.Join(err, undoErr)
			}
		}
		return entities.RightHolding{}, err
	}
	if err := r.appendTransferred(ctx, holding, from, moved, now); err != nil {
		return entities.RightHolding{}, err
	}
	logger.Info("voting right transferred",
		"event", "rights_transferred",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", ledgerID,
		"right_id", holding.RightID,
		"from", from,
		"to", to,
		"choice_moved", moved,
	)
	return holding, nil
}

// HolderOf returns the current holder of a right.
func (r Registry) HolderOf(ctx context.Context, rightID string) (string, bool, error) {
	holding, found, err := r.Store.GetHolding(ctx, strings.TrimSpace(rightID))
	if err != nil || !found {
		return "", found, err
	}
	return holding.Holder, true, nil
}

func (r Registry) ListHoldings(ctx context.Context, ledgerID string) ([]entities.RightHolding, error) {
	return r.Store.ListHoldings(ctx, strings.TrimSpace(ledgerID))
}

func (r Registry) appendTransferred(
	ctx context.Context,
	holding entities.RightHolding,
	from string,
	moved bool,
	now time.Time,
) error {
	if r.Outbox == nil {
		return nil
	}
	eventID, err := r.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	envelope, err := application.NewLedgerEnvelope(eventID, contractsv1.EventRightTransferred, holding.LedgerID, now, map[string]any{
		"right_id":     holding.RightID,
		"from":         from,
		"to":           holding.Holder,
		"choice_moved": moved,
	})
	if err != nil {
		return err
	}
	return r.Outbox.AppendOutbox(ctx, envelope)
}

func (r Registry) now() time.Time {
	if r.Clock == nil {
		return time.Now().UTC()
	}
	return r.Clock.Now().UTC()
}

var _ ports.RightsRegistry = Registry{}
