package randomness

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"ballotbox/contexts/governance/voting-ledger/ports"
	contractsv1 "ballotbox/contracts/gen/events/v1"

	"github.com/google/uuid"
)

const oracleSource = "local-randomness-oracle"

var valueBound = new(big.Int).Lsh(big.NewInt(1), 256)

// LocalOracle is a development randomness source. Request only commits to an
// id; RunOnce later answers every pending request older than Delay with a
// 256-bit value published as randomness.fulfilled.
type LocalOracle struct {
	Requests  ports.RandomnessRequestRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	Delay     time.Duration
	Logger    *slog.Logger

	mu        sync.Mutex
	delivered map[string]struct{}
}

func NewLocalOracle(
	requests ports.RandomnessRequestRepository,
	publisher ports.EventPublisher,
	clock ports.Clock,
	delay time.Duration,
	logger *slog.Logger,
) *LocalOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalOracle{
		Requests:  requests,
		Publisher: publisher,
		Clock:     clock,
		Delay:     delay,
		Logger:    logger,
		delivered: make(map[string]struct{}),
	}
}

func (o *LocalOracle) Request(_ context.Context, ledgerID string) (string, error) {
	requestID := uuid.NewString()
	o.Logger.Debug("randomness requested from local oracle",
		"event", "local_oracle_request_accepted",
		"module", "governance/voting-ledger",
		"layer", "adapter",
		"ledger_id", strings.TrimSpace(ledgerID),
		"request_id", requestID,
	)
	return requestID, nil
}

// RunOnce publishes one fulfilment per pending request. It returns how many
// fulfilments went out.
func (o *LocalOracle) RunOnce(ctx context.Context) (int, error) {
	if o.Publisher == nil {
		return 0, nil
	}
	pending, err := o.Requests.ListPendingRandomnessRequests(ctx)
	if err != nil {
		return 0, err
	}
	now := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()

	stillPending := make(map[string]struct{}, len(pending))
	published := 0
	for _, request := range pending {
		stillPending[request.RequestID] = struct{}{}
		if _, done := o.delivered[request.RequestID]; done {
			continue
		}
		if now.Before(request.IssuedAt.Add(o.Delay)) {
			continue
		}
		value, err := rand.Int(rand.Reader, valueBound)
		if err != nil {
			return published, err
		}
		envelope, err := fulfilmentEnvelope(request.RequestID, request.LedgerID, value, now)
		if err != nil {
			return published, err
		}
		if err := o.Publisher.Publish(ctx, contractsv1.EventRandomnessFulfilled, envelope); err != nil {
			o.Logger.Error("local oracle publish failed",
				"event", "local_oracle_publish_failed",
				"module", "governance/voting-ledger",
				"layer", "adapter",
				"request_id", request.RequestID,
				"error", err.Error(),
			)
			return published, err
		}
		o.delivered[request.RequestID] = struct{}{}
		published++
	}
	for requestID := range o.delivered {
		if _, ok := stillPending[requestID]; !ok {
			delete(o.delivered, requestID)
		}
	}
	return published, nil
}

func (o *LocalOracle) now() time.Time {
	if o.Clock == nil {
		return time.Now().UTC()
	}
	return o.Clock.Now().UTC()
}

func fulfilmentEnvelope(requestID string, ledgerID string, value *big.Int, now time.Time) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(contractsv1.RandomnessFulfilled{
		RequestID: requestID,
		LedgerID:  ledgerID,
		Value:     value.String(),
	})
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	eventID := uuid.NewString()
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        contractsv1.EventRandomnessFulfilled,
		OccurredAt:       now.UTC(),
		SourceService:    oracleSource,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "ledger_id",
		PartitionKey:     ledgerID,
		Data:             payload,
	}, nil
}

var _ ports.RandomnessSource = (*LocalOracle)(nil)
