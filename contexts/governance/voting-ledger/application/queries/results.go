package queries

import (
	"context"
	"strings"
	"time"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/domain/services"
	"ballotbox/contexts/governance/voting-ledger/ports"

	"github.com/moznion/go-optional"
)

type Results struct {
	LedgerID         string
	Mode             entities.SelectionMode
	Tally            []uint64
	TotalVotes       uint64
	Settlement       entities.SettlementStatus
	SettlementReason string
	Winner           optional.Option[int]
	RandomValue      string
	ClosedAt         *time.Time
	ResolvedAt       *time.Time
}

// ResultsUseCase serves read models over ledgers and the schedule.
type ResultsUseCase struct {
	Ledgers   ports.LedgerRepository
	Schedule  ports.ScheduleRepository
	Scheduler *services.DeadlineScheduler
}

func (uc ResultsUseCase) GetLedger(ctx context.Context, ledgerID string) (entities.Ledger, error) {
	return uc.Ledgers.GetLedger(ctx, strings.TrimSpace(ledgerID))
}

// GetResults is only defined once voting has closed.
func (uc ResultsUseCase) GetResults(ctx context.Context, ledgerID string) (Results, error) {
	ledger, err := uc.Ledgers.GetLedger(ctx, strings.TrimSpace(ledgerID))
	if err != nil {
		return Results{}, err
	}
	if ledger.IsOpen() {
		return Results{}, domainerrors.ErrNotClosed
	}
	return Results{
		LedgerID:         ledger.LedgerID,
		Mode:             ledger.Mode,
		Tally:            append([]uint64(nil), ledger.Tally...),
		TotalVotes:       ledger.TotalVotes(),
		Settlement:       ledger.Settlement,
		SettlementReason: ledger.SettlementReason,
		Winner:           ledger.Winner,
		RandomValue:      ledger.RandomValue,
		ClosedAt:         ledger.ClosedAt,
		ResolvedAt:       ledger.ResolvedAt,
	}, nil
}

// ListSchedule returns every schedule entry, executed ones included.
func (uc ResultsUseCase) ListSchedule(ctx context.Context) ([]entities.ScheduleEntry, error) {
	if uc.Schedule != nil {
		entries, err := uc.Schedule.ListScheduleEntries(ctx)
		if err != nil {
			return nil, err
		}
		uc.Scheduler.Hydrate(entries)
	}
	return uc.Scheduler.Entries(), nil
}

// ListLedgers returns every ledger in creation order.
func (uc ResultsUseCase) ListLedgers(ctx context.Context) ([]entities.Ledger, error) {
	return uc.Ledgers.ListLedgers(ctx)
}

func (uc ResultsUseCase) ListStalled(ctx context.Context) ([]entities.Ledger, error) {
	return uc.Ledgers.ListLedgersBySettlement(ctx, entities.SettlementStatusStalled)
}
