package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	application "ballotbox/contexts/governance/voting-ledger/application"
	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/domain/services"
	"ballotbox/contexts/governance/voting-ledger/ports"
	contractsv1 "ballotbox/contracts/gen/events/v1"
)

const (
	defaultRandomnessTimeout     = 10 * time.Minute
	defaultMaxRandomnessAttempts = 3
	noVotesCastReason            = "no votes cast"
)

// ExpiryResult summarizes one randomness watchdog pass.
type ExpiryResult struct {
	Expired int
	Retried int
	Stalled int
}

// SettlementUseCase closes ledgers after their deadline and selects winners.
// Deterministic ledgers settle inside the close; weighted ledgers wait for a
// randomness fulfilment.
type SettlementUseCase struct {
	Ledgers               ports.LedgerRepository
	Schedule              ports.ScheduleRepository
	Requests              ports.RandomnessRequestRepository
	Scheduler             *services.DeadlineScheduler
	Randomness            ports.RandomnessSource
	Outbox                ports.OutboxWriter
	Metrics               ports.SettlementMetrics
	Clock                 ports.Clock
	IDGen                 ports.IDGenerator
	RandomnessTimeout     time.Duration
	MaxRandomnessAttempts int
	Logger                *slog.Logger
}

// ExecuteDue settles every ledger whose deadline has passed, earliest first.
// A ledger whose close fails is skipped for the rest of the pass and retried
// on the next one; the failures come back joined.
func (uc SettlementUseCase) ExecuteDue(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(uc.Logger)
	if err := hydrateScheduler(ctx, uc.Schedule, uc.Scheduler); err != nil {
		return 0, err
	}
	now := uc.now()
	executed := 0
	var failures []error
	for uc.Scheduler.IsDue(now) {
		if err := ctx.Err(); err != nil {
			return executed, errors.Join(append(failures, err)...)
		}
		entry, err := uc.Scheduler.PollDue(now).Take()
		if err != nil {
			break
		}
		if _, err := uc.execute(ctx, entry.LedgerID, now); err != nil {
			if errors.Is(err, domainerrors.ErrAlreadyExecuted) {
				continue
			}
			logger.Error("scheduled ledger settlement failed",
				"event", "ledger_scheduled_settlement_failed",
				"module", application.LogModule,
				"layer", "application",
				"ledger_id", entry.LedgerID,
				"deadline", entry.Deadline,
				"error", err.Error(),
			)
			failures = append(failures, fmt.Errorf("settle ledger %s: %w", entry.LedgerID, err))
			continue
		}
		executed++
	}
	if executed > 0 {
		logger.Info("due ledgers settled",
			"event", "ledger_due_settled",
			"module", application.LogModule,
			"layer", "application",
			"executed_count", executed,
		)
	}
	return executed, errors.Join(failures...)
}

// ExecuteLedger settles one ledger explicitly once its deadline has passed.
func (uc SettlementUseCase) ExecuteLedger(ctx context.Context, ledgerID string) (entities.Ledger, error) {
	if err := hydrateScheduler(ctx, uc.Schedule, uc.Scheduler); err != nil {
		return entities.Ledger{}, err
	}
	ledgerID = strings.TrimSpace(ledgerID)
	if _, err := uc.execute(ctx, ledgerID, uc.now()); err != nil {
		return entities.Ledger{}, err
	}
	return uc.Ledgers.GetLedger(ctx, ledgerID)
}

func (uc SettlementUseCase) execute(ctx context.Context, ledgerID string, now time.Time) (entities.ScheduleEntry, error) {
	entry, err := uc.Scheduler.Execute(ctx, ledgerID, now, uc)
	if err != nil {
		return entities.ScheduleEntry{}, err
	}
	if uc.Schedule != nil && entry.ExecutedAt != nil {
		if err := uc.Schedule.MarkScheduleEntryDone(ctx, entry.LedgerID, *entry.ExecutedAt); err != nil {
			return entities.ScheduleEntry{}, err
		}
	}
	return entry, nil
}

// CloseLedger is the scheduler's close callback. A ledger already closed by
// another process counts as closed.
func (uc SettlementUseCase) CloseLedger(ctx context.Context, ledgerID string, now time.Time) error {
	logger := application.ResolveLogger(uc.Logger)
	ledger, err := uc.Ledgers.GetLedger(ctx, ledgerID)
	if err != nil {
		return err
	}
	if !ledger.IsOpen() {
		logger.Info("ledger already closed",
			"event", "ledger_close_skipped",
			"module", application.LogModule,
			"layer", "application",
			"ledger_id", ledger.LedgerID,
		)
		return nil
	}
	if err := ledger.Close(now); err != nil {
		return err
	}

	outcome := contractsv1.EventLedgerSettled
	switch {
	case ledger.Mode == entities.SelectionModeDeterministic:
		winner, err := services.SelectDeterministic(ledger)
		if err != nil {
			return err
		}
		ledger.Resolve(winner, now)
	case ledger.TotalVotes() == 0:
		ledger.FailSettlement(entities.SettlementStatusFailed, noVotesCastReason, now)
	default:
		// the close commits even when the source is down; the ledger is
		// parked as stalled for the operator retry
		outcome = contractsv1.EventRandomnessRequested
		if err := uc.issueRandomnessRequest(ctx, &ledger, now); err != nil {
			uc.stallOnRequestFailure(logger, &ledger, err, now)
			outcome = contractsv1.EventRandomnessStalled
		}
	}

	saved, err := uc.Ledgers.SaveLedger(ctx, ledger)
	if err != nil {
		return err
	}
	uc.metrics().LedgerClosed(saved.Mode)
	switch outcome {
	case contractsv1.EventLedgerSettled:
		err = uc.emitSettled(ctx, saved, now)
	case contractsv1.EventRandomnessStalled:
		if err = uc.emitRandomnessEvent(ctx, outcome, saved, now); err == nil {
			err = uc.refreshStalledGauge(ctx)
		}
	default:
		err = uc.emitRandomnessEvent(ctx, outcome, saved, now)
	}
	if err != nil {
		return err
	}
	logger.Info("ledger closed",
		"event", "ledger_closed",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", saved.LedgerID,
		"mode", string(saved.Mode),
		"settlement", string(saved.Settlement),
		"total_votes", saved.TotalVotes(),
	)
	return nil
}

// FulfillRandomness completes a weighted settlement. Unknown ids, ids that are
// no longer pending and ids that differ from the ledger's pending request are
// rejected without any state change.
func (uc SettlementUseCase) FulfillRandomness(
	ctx context.Context,
	requestID string,
	value *big.Int,
) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	requestID = strings.TrimSpace(requestID)
	if value == nil || value.Sign() < 0 {
		return entities.Ledger{}, domainerrors.ErrInvalidRandomValue
	}
	request, found, err := uc.Requests.GetRandomnessRequest(ctx, requestID)
	if err != nil {
		return entities.Ledger{}, err
	}
	if !found || request.Status != entities.RandomnessRequestPending {
		uc.logStaleFulfilment(logger, requestID, request.LedgerID)
		return entities.Ledger{}, domainerrors.ErrUnknownOrStaleRequest
	}
	ledger, err := uc.Ledgers.GetLedger(ctx, request.LedgerID)
	if err != nil {
		return entities.Ledger{}, err
	}
	if err := ledger.ConsumeRandomness(requestID); err != nil {
		uc.logStaleFulfilment(logger, requestID, request.LedgerID)
		return entities.Ledger{}, err
	}

	now := uc.now()
	ledger.RandomValue = value.String()
	winner, err := services.SelectWeighted(ledger.Tally, value)
	switch {
	case err == nil:
		ledger.Resolve(winner, now)
	case errors.Is(err, domainerrors.ErrNoVotesCast):
		ledger.FailSettlement(entities.SettlementStatusFailed, noVotesCastReason, now)
	default:
		return entities.Ledger{}, err
	}
	saved, err := uc.Ledgers.SaveLedger(ctx, ledger)
	if err != nil {
		return entities.Ledger{}, err
	}

	fulfilledAt := now
	request.Status = entities.RandomnessRequestFulfilled
	request.FulfilledAt = &fulfilledAt
	if err := uc.Requests.SaveRandomnessRequest(ctx, request); err != nil {
		return entities.Ledger{}, err
	}
	if err := uc.emitSettled(ctx, saved, now); err != nil {
		return entities.Ledger{}, err
	}
	logger.Info("randomness fulfilled",
		"event", "ledger_randomness_fulfilled",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", saved.LedgerID,
		"request_id", requestID,
		"winner", winner,
	)
	return saved, nil
}

// ExpireStaleRandomness marks timed-out requests stale. Ledgers with attempts
// left get a fresh request; the rest, and those whose fresh request could not
// be issued, are parked as stalled for an operator. One failing ledger does
// not stop the pass.
func (uc SettlementUseCase) ExpireStaleRandomness(ctx context.Context) (ExpiryResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	pending, err := uc.Requests.ListPendingRandomnessRequests(ctx)
	if err != nil {
		return ExpiryResult{}, err
	}
	now := uc.now()
	timeout := uc.randomnessTimeout()
	result := ExpiryResult{}
	var failures []error
	for _, request := range pending {
		if !request.Expired(now, timeout) {
			continue
		}
		outcome, err := uc.expireRequest(ctx, logger, request, now)
		if err != nil {
			logger.Error("randomness request expiry failed",
				"event", "ledger_randomness_expiry_failed",
				"module", application.LogModule,
				"layer", "application",
				"ledger_id", request.LedgerID,
				"request_id", request.RequestID,
				"error", err.Error(),
			)
			failures = append(failures, fmt.Errorf("expire request %s: %w", request.RequestID, err))
			continue
		}
		result.Expired++
		switch outcome {
		case expiryRetried:
			result.Retried++
		case expiryStalled:
			result.Stalled++
		}
	}
	if err := uc.refreshStalledGauge(ctx); err != nil {
		failures = append(failures, err)
	}
	return result, errors.Join(failures...)
}

type expiryOutcome int

const (
	expiryOrphaned expiryOutcome = iota
	expiryRetried
	expiryStalled
)

// expireRequest saves the ledger before the request row turns stale. If the
// ledger write fails the request is still pending and the next pass sees it
// again; if the request write fails the next pass finds it orphaned.
func (uc SettlementUseCase) expireRequest(
	ctx context.Context,
	logger *slog.Logger,
	request entities.RandomnessRequest,
	now time.Time,
) (expiryOutcome, error) {
	ledger, err := uc.Ledgers.GetLedger(ctx, request.LedgerID)
	if err != nil {
		return expiryOrphaned, err
	}
	if err := ledger.ConsumeRandomness(request.RequestID); err != nil {
		// orphaned request; the ledger moved on
		return expiryOrphaned, uc.markRequestStale(ctx, request)
	}

	outcome := expiryRetried
	if ledger.RandomnessAttempts < uc.maxRandomnessAttempts() {
		if err := uc.issueRandomnessRequest(ctx, &ledger, now); err != nil {
			uc.stallOnRequestFailure(logger, &ledger, err, now)
			outcome = expiryStalled
		}
	} else {
		ledger.FailSettlement(
			entities.SettlementStatusStalled,
			fmt.Sprintf("randomness not delivered after %d attempts", ledger.RandomnessAttempts),
			now,
		)
		outcome = expiryStalled
	}

	saved, err := uc.Ledgers.SaveLedger(ctx, ledger)
	if err != nil {
		return outcome, err
	}
	if err := uc.markRequestStale(ctx, request); err != nil {
		return outcome, err
	}
	if outcome == expiryRetried {
		uc.metrics().RandomnessRetried()
		return outcome, uc.emitRandomnessEvent(ctx, contractsv1.EventRandomnessRetried, saved, now)
	}
	if err := uc.emitRandomnessEvent(ctx, contractsv1.EventRandomnessStalled, saved, now); err != nil {
		return outcome, err
	}
	logger.Warn("ledger randomness stalled",
		"event", "ledger_randomness_stalled",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", saved.LedgerID,
		"attempts", saved.RandomnessAttempts,
		"reason", saved.SettlementReason,
	)
	return outcome, nil
}

// RetryRandomness is the operator path for a stalled ledger: attempts reset
// and a fresh request is issued.
func (uc SettlementUseCase) RetryRandomness(ctx context.Context, ledgerID string) (entities.Ledger, error) {
	logger := application.ResolveLogger(uc.Logger)
	ledger, err := uc.Ledgers.GetLedger(ctx, strings.TrimSpace(ledgerID))
	if err != nil {
		return entities.Ledger{}, err
	}
	if ledger.IsOpen() {
		return entities.Ledger{}, domainerrors.ErrNotClosed
	}
	if ledger.PendingRandomRequest.IsSome() {
		return entities.Ledger{}, domainerrors.ErrRequestAlreadyPending
	}
	if ledger.Settlement != entities.SettlementStatusStalled {
		return entities.Ledger{}, domainerrors.ErrRandomnessNotAvailable
	}
	now := uc.now()
	ledger.RandomnessAttempts = 0
	if err := uc.issueRandomnessRequest(ctx, &ledger, now); err != nil {
		return entities.Ledger{}, err
	}
	saved, err := uc.Ledgers.SaveLedger(ctx, ledger)
	if err != nil {
		return entities.Ledger{}, err
	}
	uc.metrics().RandomnessRetried()
	if err := uc.emitRandomnessEvent(ctx, contractsv1.EventRandomnessRetried, saved, now); err != nil {
		return entities.Ledger{}, err
	}
	if err := uc.refreshStalledGauge(ctx); err != nil {
		return entities.Ledger{}, err
	}
	logger.Info("ledger randomness retried by operator",
		"event", "ledger_randomness_operator_retry",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", saved.LedgerID,
	)
	return saved, nil
}

// issueRandomnessRequest leaves ledger untouched unless the request was
// accepted by the source and recorded.
func (uc SettlementUseCase) issueRandomnessRequest(ctx context.Context, ledger *entities.Ledger, now time.Time) error {
	if ledger.PendingRandomRequest.IsSome() {
		return domainerrors.ErrRequestAlreadyPending
	}
	requestID, err := uc.Randomness.Request(ctx, ledger.LedgerID)
	if err != nil {
		return err
	}
	if err := uc.Requests.SaveRandomnessRequest(ctx, entities.RandomnessRequest{
		RequestID: requestID,
		LedgerID:  ledger.LedgerID,
		Attempt:   ledger.RandomnessAttempts + 1,
		Status:    entities.RandomnessRequestPending,
		IssuedAt:  now.UTC(),
	}); err != nil {
		return err
	}
	if err := ledger.AwaitRandomness(requestID, now); err != nil {
		return err
	}
	uc.metrics().RandomnessRequested()
	return nil
}

func (uc SettlementUseCase) stallOnRequestFailure(logger *slog.Logger, ledger *entities.Ledger, cause error, now time.Time) {
	logger.Error("ledger randomness request failed",
		"event", "ledger_randomness_request_failed",
		"module", application.LogModule,
		"layer", "application",
		"ledger_id", ledger.LedgerID,
		"attempts", ledger.RandomnessAttempts,
		"error", cause.Error(),
	)
	ledger.FailSettlement(entities.SettlementStatusStalled, "randomness request failed: "+cause.Error(), now)
}

func (uc SettlementUseCase) markRequestStale(ctx context.Context, request entities.RandomnessRequest) error {
	request.Status = entities.RandomnessRequestStale
	return uc.Requests.SaveRandomnessRequest(ctx, request)
}

// hydrateScheduler merges the persisted schedule so processes sharing storage
// agree on entries and sequence numbers.
func hydrateScheduler(ctx context.Context, schedule ports.ScheduleRepository, scheduler *services.DeadlineScheduler) error {
	if schedule == nil {
		return nil
	}
	entries, err := schedule.ListScheduleEntries(ctx)
	if err != nil {
		return err
	}
	scheduler.Hydrate(entries)
	return nil
}

func (uc SettlementUseCase) refreshStalledGauge(ctx context.Context) error {
	if uc.Metrics == nil {
		return nil
	}
	stalled, err := uc.Ledgers.ListLedgersBySettlement(ctx, entities.SettlementStatusStalled)
	if err != nil {
		return err
	}
	uc.Metrics.SetStalled(len(stalled))
	return nil
}

func (uc SettlementUseCase) emitSettled(ctx context.Context, ledger entities.Ledger, now time.Time) error {
	uc.metrics().LedgerSettled(ledger.Settlement)
	data := map[string]any{
		"mode":        string(ledger.Mode),
		"settlement":  string(ledger.Settlement),
		"tally":       ledger.Tally,
		"total_votes": ledger.TotalVotes(),
	}
	if winner, err := ledger.Winner.Take(); err == nil {
		data["winner"] = winner
	}
	if ledger.SettlementReason != "" {
		data["reason"] = ledger.SettlementReason
	}
	if ledger.RandomValue != "" {
		data["random_value"] = ledger.RandomValue
	}
	return uc.appendEvent(ctx, contractsv1.EventLedgerSettled, ledger.LedgerID, now, data)
}

func (uc SettlementUseCase) emitRandomnessEvent(
	ctx context.Context,
	eventType string,
	ledger entities.Ledger,
	now time.Time,
) error {
	data := map[string]any{
		"attempts": ledger.RandomnessAttempts,
	}
	if requestID, err := ledger.PendingRandomRequest.Take(); err == nil {
		data["request_id"] = requestID
	}
	return uc.appendEvent(ctx, eventType, ledger.LedgerID, now, data)
}

func (uc SettlementUseCase) appendEvent(
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

func (uc SettlementUseCase) logStaleFulfilment(logger *slog.Logger, requestID string, ledgerID string) {
	logger.Warn("randomness fulfilment rejected",
		"event", "ledger_randomness_fulfilment_rejected",
		"module", application.LogModule,
		"layer", "application",
		"request_id", requestID,
		"ledger_id", ledgerID,
	)
}

func (uc SettlementUseCase) metrics() ports.SettlementMetrics {
	if uc.Metrics == nil {
		return noopMetrics{}
	}
	return uc.Metrics
}

func (uc SettlementUseCase) randomnessTimeout() time.Duration {
	if uc.RandomnessTimeout <= 0 {
		return defaultRandomnessTimeout
	}
	return uc.RandomnessTimeout
}

func (uc SettlementUseCase) maxRandomnessAttempts() int {
	if uc.MaxRandomnessAttempts <= 0 {
		return defaultMaxRandomnessAttempts
	}
	return uc.MaxRandomnessAttempts
}

func (uc SettlementUseCase) now() time.Time {
	if uc.Clock == nil {
		return time.Now().UTC()
	}
	return uc.Clock.Now().UTC()
}

type noopMetrics struct{}

func (noopMetrics) LedgerClosed(entities.SelectionMode)     {}
func (noopMetrics) LedgerSettled(entities.SettlementStatus) {}
func (noopMetrics) RandomnessRequested()                    {}
func (noopMetrics) RandomnessRetried()                      {}
func (noopMetrics) SetStalled(int)                          {}
