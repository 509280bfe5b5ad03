package httpadapter

import (
	"context"
	"log/slog"
	"math/big"
	"strings"

	"ballotbox/contexts/governance/voting-ledger/application/commands"
	"ballotbox/contexts/governance/voting-ledger/application/queries"
	"ballotbox/contexts/governance/voting-ledger/application/rights"
	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	httptransport "ballotbox/contexts/governance/voting-ledger/transport/http"

	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

type Handler struct {
	Ledgers    commands.LedgerUseCase
	Settlement commands.SettlementUseCase
	Rights     rights.Registry
	Results    queries.ResultsUseCase
	Logger     *slog.Logger
}

func (h Handler) CreateLedgerHandler(
	ctx context.Context,
	req httptransport.CreateLedgerRequest,
) (httptransport.LedgerResponse, error) {
	if err := requestValidator.Struct(req); err != nil {
		return httptransport.LedgerResponse{}, domainerrors.ErrInvalidLedgerInput
	}
	ledger, err := h.Ledgers.CreateLedger(ctx, commands.CreateLedgerCommand{
		Name:         req.Name,
		Description:  req.Description,
		TotalOptions: req.TotalOptions,
		Mode:         req.Mode,
		Deadline:     req.Deadline,
	})
	if err != nil {
		return httptransport.LedgerResponse{}, err
	}
	return mapLedger(ledger), nil
}

func (h Handler) GetLedgerHandler(ctx context.Context, ledgerID string) (httptransport.LedgerResponse, error) {
	ledger, err := h.Results.GetLedger(ctx, ledgerID)
	if err != nil {
		return httptransport.LedgerResponse{}, err
	}
	return mapLedger(ledger), nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	ledgerID string,
	principal string,
	req httptransport.VoteRequest,
) (httptransport.VoteResponse, error) {
	ledger, err := h.Ledgers.CastVote(ctx, commands.CastVoteCommand{
		LedgerID:  ledgerID,
		Principal: principal,
		Option:    req.Option,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(ledger, principal), nil
}

func (h Handler) ChangeVoteHandler(
	ctx context.Context,
	ledgerID string,
	principal string,
	req httptransport.VoteRequest,
) (httptransport.VoteResponse, error) {
	ledger, err := h.Ledgers.ChangeVote(ctx, commands.CastVoteCommand{
		LedgerID:  ledgerID,
		Principal: principal,
		Option:    req.Option,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(ledger, principal), nil
}

func (h Handler) ClearVoteHandler(ctx context.Context, ledgerID string, principal string) (httptransport.VoteResponse, error) {
	ledger, err := h.Ledgers.ClearVote(ctx, commands.ClearVoteCommand{
		LedgerID:  ledgerID,
		Principal: principal,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return mapVote(ledger, principal), nil
}

func (h Handler) TransferRightHandler(
	ctx context.Context,
	ledgerID string,
	req httptransport.TransferRightRequest,
) (httptransport.RightHoldingResponse, error) {
	if err := requestValidator.Struct(req); err != nil {
		return httptransport.RightHoldingResponse{}, domainerrors.ErrInvalidTransfer
	}
	holding, err := h.Rights.Transfer(ctx, rights.TransferCommand{
		LedgerID: ledgerID,
		From:     req.From,
		To:       req.To,
	})
	if err != nil {
		return httptransport.RightHoldingResponse{}, err
	}
	return mapHolding(holding), nil
}

func (h Handler) ListRightsHandler(ctx context.Context, ledgerID string) (httptransport.RightsResponse, error) {
	holdings, err := h.Rights.ListHoldings(ctx, ledgerID)
	if err != nil {
		return httptransport.RightsResponse{}, err
	}
	items := make([]httptransport.RightHoldingResponse, 0, len(holdings))
	for _, holding := range holdings {
		items = append(items, mapHolding(holding))
	}
	return httptransport.RightsResponse{Items: items}, nil
}

func (h Handler) ResultsHandler(ctx context.Context, ledgerID string) (httptransport.ResultsResponse, error) {
	results, err := h.Results.GetResults(ctx, ledgerID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	response := httptransport.ResultsResponse{
		LedgerID:         results.LedgerID,
		Mode:             string(results.Mode),
		Tally:            results.Tally,
		TotalVotes:       results.TotalVotes,
		Settlement:       string(results.Settlement),
		SettlementReason: results.SettlementReason,
		RandomValue:      results.RandomValue,
		ClosedAt:         results.ClosedAt,
		ResolvedAt:       results.ResolvedAt,
	}
	if winner, err := results.Winner.Take(); err == nil {
		response.Winner = &winner
	}
	return response, nil
}

func (h Handler) SettleLedgerHandler(ctx context.Context, ledgerID string) (httptransport.LedgerResponse, error) {
	ledger, err := h.Settlement.ExecuteLedger(ctx, ledgerID)
	if err != nil {
		return httptransport.LedgerResponse{}, err
	}
	return mapLedger(ledger), nil
}

func (h Handler) FulfillRandomnessHandler(
	ctx context.Context,
	req httptransport.FulfillRandomnessRequest,
) (httptransport.LedgerResponse, error) {
	if err := requestValidator.Struct(req); err != nil {
		return httptransport.LedgerResponse{}, domainerrors.ErrInvalidRandomValue
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(req.Value), 10)
	if !ok {
		return httptransport.LedgerResponse{}, domainerrors.ErrInvalidRandomValue
	}
	ledger, err := h.Settlement.FulfillRandomness(ctx, req.RequestID, value)
	if err != nil {
		return httptransport.LedgerResponse{}, err
	}
	return mapLedger(ledger), nil
}

func (h Handler) RetryRandomnessHandler(ctx context.Context, ledgerID string) (httptransport.LedgerResponse, error) {
	ledger, err := h.Settlement.RetryRandomness(ctx, ledgerID)
	if err != nil {
		return httptransport.LedgerResponse{}, err
	}
	return mapLedger(ledger), nil
}

func (h Handler) ScheduleHandler(ctx context.Context) (httptransport.ScheduleResponse, error) {
	entries, err := h.Results.ListSchedule(ctx)
	if err != nil {
		return httptransport.ScheduleResponse{}, err
	}
	items := make([]httptransport.ScheduleEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, httptransport.ScheduleEntryResponse{
			LedgerID:     entry.LedgerID,
			Deadline:     entry.Deadline,
			Sequence:     entry.Sequence,
			Done:         entry.Done,
			RegisteredAt: entry.RegisteredAt,
			ExecutedAt:   entry.ExecutedAt,
		})
	}
	response := httptransport.ScheduleResponse{Items: items}
	if wake, err := h.Results.Scheduler.NextWake().Take(); err == nil {
		response.NextWake = &wake
	}
	return response, nil
}

func (h Handler) ListLedgersHandler(ctx context.Context) (httptransport.LedgerListResponse, error) {
	ledgers, err := h.Results.ListLedgers(ctx)
	if err != nil {
		return httptransport.LedgerListResponse{}, err
	}
	return mapLedgerList(ledgers), nil
}

func (h Handler) StalledHandler(ctx context.Context) (httptransport.LedgerListResponse, error) {
	ledgers, err := h.Results.ListStalled(ctx)
	if err != nil {
		return httptransport.LedgerListResponse{}, err
	}
	return mapLedgerList(ledgers), nil
}

func mapLedgerList(ledgers []entities.Ledger) httptransport.LedgerListResponse {
	items := make([]httptransport.LedgerResponse, 0, len(ledgers))
	for _, ledger := range ledgers {
		items = append(items, mapLedger(ledger))
	}
	return httptransport.LedgerListResponse{Items: items}
}

func mapLedger(ledger entities.Ledger) httptransport.LedgerResponse {
	response := httptransport.LedgerResponse{
		LedgerID:           ledger.LedgerID,
		Name:               ledger.Name,
		Description:        ledger.Description,
		TotalOptions:       ledger.TotalOptions,
		State:              string(ledger.State),
		Mode:               string(ledger.Mode),
		Deadline:           ledger.Deadline,
		Tally:              append([]uint64(nil), ledger.Tally...),
		TotalVotes:         ledger.TotalVotes(),
		Settlement:         string(ledger.Settlement),
		SettlementReason:   ledger.SettlementReason,
		RandomnessAttempts: ledger.RandomnessAttempts,
		Version:            ledger.Version,
		CreatedAt:          ledger.CreatedAt,
		ClosedAt:           ledger.ClosedAt,
		ResolvedAt:         ledger.ResolvedAt,
	}
	if requestID, err := ledger.PendingRandomRequest.Take(); err == nil {
		response.PendingRequestID = requestID
	}
	if winner, err := ledger.Winner.Take(); err == nil {
		response.Winner = &winner
	}
	return response
}

func mapVote(ledger entities.Ledger, principal string) httptransport.VoteResponse {
	return httptransport.VoteResponse{
		LedgerID:  ledger.LedgerID,
		Principal: strings.TrimSpace(principal),
		Option:    ledger.ChoiceOf(principal),
		Tally:     append([]uint64(nil), ledger.Tally...),
	}
}

func mapHolding(holding entities.RightHolding) httptransport.RightHoldingResponse {
	return httptransport.RightHoldingResponse{
		RightID:       holding.RightID,
		LedgerID:      holding.LedgerID,
		Holder:        holding.Holder,
		GrantedAt:     holding.GrantedAt,
		TransferredAt: holding.TransferredAt,
	}
}
