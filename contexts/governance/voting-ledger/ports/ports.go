package ports

import (
	"context"
	"time"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	contractsv1 "ballotbox/contracts/gen/events/v1"
)

// LedgerRepository persists ledgers. SaveLedger compares the stored version
// with ledger.Version and fails with ErrConflict on mismatch; the stored
// version becomes ledger.Version+1.
type LedgerRepository interface {
	CreateLedger(ctx context.Context, ledger entities.Ledger) error
	SaveLedger(ctx context.Context, ledger entities.Ledger) (entities.Ledger, error)
	GetLedger(ctx context.Context, ledgerID string) (entities.Ledger, error)
	ListLedgers(ctx context.Context) ([]entities.Ledger, error)
	ListLedgersBySettlement(ctx context.Context, status entities.SettlementStatus) ([]entities.Ledger, error)
}

type ScheduleRepository interface {
	SaveScheduleEntry(ctx context.Context, entry entities.ScheduleEntry) error
	ListScheduleEntries(ctx context.Context) ([]entities.ScheduleEntry, error)
	MarkScheduleEntryDone(ctx context.Context, ledgerID string, executedAt time.Time) error
}

type RandomnessRequestRepository interface {
	SaveRandomnessRequest(ctx context.Context, request entities.RandomnessRequest) error
	GetRandomnessRequest(ctx context.Context, requestID string) (entities.RandomnessRequest, bool, error)
	ListPendingRandomnessRequests(ctx context.Context) ([]entities.RandomnessRequest, error)
}

type RightsStore interface {
	GetHoldingByHolder(ctx context.Context, ledgerID string, holder string) (entities.RightHolding, bool, error)
	GetHolding(ctx context.Context, rightID string) (entities.RightHolding, bool, error)
	SaveHolding(ctx context.Context, holding entities.RightHolding) error
	ListHoldings(ctx context.Context, ledgerID string) ([]entities.RightHolding, error)
}

// RightsRegistry is what the ledger commands need from the transfer bridge.
type RightsRegistry interface {
	Grant(ctx context.Context, ledgerID string, principal string) (entities.RightHolding, error)
	Holds(ctx context.Context, ledgerID string, principal string) (bool, error)
}

// ChoiceTransferHook moves a recorded choice when a voting right changes holder.
type ChoiceTransferHook interface {
	TransferChoice(ctx context.Context, ledgerID string, from string, to string) (bool, error)
}

// RandomnessSource accepts a request now and fulfils it later through
// FulfillRandomness with the returned request id.
type RandomnessSource interface {
	Request(ctx context.Context, ledgerID string) (string, error)
}

type SettlementMetrics interface {
	LedgerClosed(mode entities.SelectionMode)
	LedgerSettled(status entities.SettlementStatus)
	RandomnessRequested()
	RandomnessRetried()
	SetStalled(count int)
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
}

type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
}
