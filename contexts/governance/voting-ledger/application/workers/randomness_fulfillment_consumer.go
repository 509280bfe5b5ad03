package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	application "ballotbox/contexts/governance/voting-ledger/application"
	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/ports"
	contractsv1 "ballotbox/contracts/gen/events/v1"
)

const defaultFulfillmentCG = "voting-ledger-randomness-cg"

type RandomnessFulfiller interface {
	FulfillRandomness(ctx context.Context, requestID string, value *big.Int) (entities.Ledger, error)
}

// RandomnessFulfillmentConsumer feeds randomness.fulfilled deliveries into
// settlement. Replays are dropped by event id; stale deliveries are logged
// and dropped.
type RandomnessFulfillmentConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Settlement    RandomnessFulfiller
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

func (c RandomnessFulfillmentConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("randomness fulfilment consumer disabled by feature flag",
			"event", "ledger_randomness_consumer_disabled",
			"module", application.LogModule,
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultFulfillmentCG
	}
	if err := c.Subscriber.Subscribe(ctx, contractsv1.EventRandomnessFulfilled, group, c.Handle); err != nil {
		logger.Error("randomness fulfilment consumer subscribe failed",
			"event", "ledger_randomness_consumer_subscribe_failed",
			"module", application.LogModule,
			"layer", "worker",
			"topic", contractsv1.EventRandomnessFulfilled,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("randomness fulfilment consumer subscribed",
		"event", "ledger_randomness_consumer_started",
		"module", application.LogModule,
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c RandomnessFulfillmentConsumer) Handle(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Dedup != nil {
		alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), c.now().Add(c.dedupTTL()))
		if err != nil {
			return err
		}
		if alreadyProcessed {
			logger.Debug("randomness.fulfilled replay skipped",
				"event", "ledger_randomness_fulfilled_replayed",
				"module", application.LogModule,
				"layer", "worker",
				"event_id", event.EventID,
			)
			return nil
		}
	}

	var payload contractsv1.RandomnessFulfilled
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("randomness.fulfilled payload decode failed",
			"event", "ledger_randomness_fulfilled_decode_failed",
			"module", application.LogModule,
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(payload.Value), 10)
	if !ok {
		logger.Error("randomness.fulfilled value is not a decimal integer",
			"event", "ledger_randomness_fulfilled_value_invalid",
			"module", application.LogModule,
			"layer", "worker",
			"event_id", event.EventID,
			"request_id", payload.RequestID,
		)
		return domainerrors.ErrInvalidRandomValue
	}

	ledger, err := c.Settlement.FulfillRandomness(ctx, payload.RequestID, value)
	if err != nil {
		if errors.Is(err, domainerrors.ErrUnknownOrStaleRequest) {
			logger.Warn("randomness.fulfilled dropped as stale",
				"event", "ledger_randomness_fulfilled_stale",
				"module", application.LogModule,
				"layer", "worker",
				"event_id", event.EventID,
				"request_id", payload.RequestID,
				"ledger_id", payload.LedgerID,
			)
			return nil
		}
		return err
	}
	logger.Info("randomness.fulfilled consumed",
		"event", "ledger_randomness_fulfilled_consumed",
		"module", application.LogModule,
		"layer", "worker",
		"event_id", event.EventID,
		"request_id", payload.RequestID,
		"ledger_id", ledger.LedgerID,
		"settlement", string(ledger.Settlement),
	)
	return nil
}

func (c RandomnessFulfillmentConsumer) now() time.Time {
	if c.Clock == nil {
		return time.Now().UTC()
	}
	return c.Clock.Now().UTC()
}

func (c RandomnessFulfillmentConsumer) dedupTTL() time.Duration {
	if c.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.DedupTTL
}
