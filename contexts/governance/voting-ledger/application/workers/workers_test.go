package workers

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"ballotbox/contexts/governance/voting-ledger/adapters/memory"
	application "ballotbox/contexts/governance/voting-ledger/application"
	"ballotbox/contexts/governance/voting-ledger/application/commands"
	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/ports"
	contractsv1 "ballotbox/contracts/gen/events/v1"
)

type stubSubscriber struct {
	handlers map[string]func(context.Context, ports.EventEnvelope) error
	groups   map[string]string
}

func (s *stubSubscriber) Subscribe(
	_ context.Context,
	topic string,
	group string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	if s.handlers == nil {
		s.handlers = map[string]func(context.Context, ports.EventEnvelope) error{}
		s.groups = map[string]string{}
	}
	s.handlers[topic] = handler
	s.groups[topic] = group
	return nil
}

type fulfilCall struct {
	requestID string
	value     string
}

type stubFulfiller struct {
	calls []fulfilCall
	err   error
}

func (f *stubFulfiller) FulfillRandomness(_ context.Context, requestID string, value *big.Int) (entities.Ledger, error) {
	f.calls = append(f.calls, fulfilCall{requestID: requestID, value: value.String()})
	if f.err != nil {
		return entities.Ledger{}, f.err
	}
	return entities.Ledger{LedgerID: "ledger-1", Settlement: entities.SettlementStatusResolved}, nil
}

type recordingPublisher struct {
	topics []string
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ ports.EventEnvelope) error {
	if topic == p.failOn {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

type stubDueExecutor struct {
	executed int
	err      error
}

func (s stubDueExecutor) ExecuteDue(context.Context) (int, error) {
	return s.executed, s.err
}

type stubExpirer struct {
	calls int
}

func (s *stubExpirer) ExpireStaleRandomness(context.Context) (commands.ExpiryResult, error) {
	s.calls++
	return commands.ExpiryResult{Expired: 1, Retried: 1}, nil
}

func fulfilledEvent(t *testing.T, eventID string, requestID string, value string) ports.EventEnvelope {
	t.Helper()
	payload, err := json.Marshal(contractsv1.RandomnessFulfilled{
		RequestID: requestID,
		LedgerID:  "ledger-1",
		Value:     value,
	})
	if err != nil {
		t.Fatalf("marshal fulfilment payload: %v", err)
	}
	return ports.EventEnvelope{
		EventID:   eventID,
		EventType: contractsv1.EventRandomnessFulfilled,
		Data:      payload,
	}
}

func TestFulfillmentConsumerSubscribesAndDedupes(t *testing.T) {
	store := memory.NewStore()
	sub := &stubSubscriber{}
	fulfiller := &stubFulfiller{}
	consumer := RandomnessFulfillmentConsumer{
		Subscriber: sub,
		Dedup:      store,
		Settlement: fulfiller,
		Clock:      store,
	}

	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("start fulfilment consumer failed: %v", err)
	}
	handler := sub.handlers[contractsv1.EventRandomnessFulfilled]
	if handler == nil {
		t.Fatalf("expected randomness.fulfilled handler registration")
	}
	if sub.groups[contractsv1.EventRandomnessFulfilled] != defaultFulfillmentCG {
		t.Fatalf("expected default consumer group, got %q", sub.groups[contractsv1.EventRandomnessFulfilled])
	}

	// larger than any machine word
	value := "340282366920938463463374607431768211457"
	event := fulfilledEvent(t, "event-1", "req-1", value)
	for i := 0; i < 2; i++ {
		if err := handler(context.Background(), event); err != nil {
			t.Fatalf("handle delivery %d failed: %v", i, err)
		}
	}
	if len(fulfiller.calls) != 1 {
		t.Fatalf("expected one fulfilment for a replayed event, got %d", len(fulfiller.calls))
	}
	if fulfiller.calls[0] != (fulfilCall{requestID: "req-1", value: value}) {
		t.Fatalf("unexpected fulfilment call: %+v", fulfiller.calls[0])
	}

	tampered := fulfilledEvent(t, "event-1", "req-1", "5")
	if err := handler(context.Background(), tampered); !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected conflict for reused event id, got %v", err)
	}
}

func TestFulfillmentConsumerDropsStaleDeliveries(t *testing.T) {
	fulfiller := &stubFulfiller{err: domainerrors.ErrUnknownOrStaleRequest}
	consumer := RandomnessFulfillmentConsumer{Settlement: fulfiller}

	if err := consumer.Handle(context.Background(), fulfilledEvent(t, "event-2", "req-old", "9")); err != nil {
		t.Fatalf("stale delivery should be dropped, got %v", err)
	}
	if len(fulfiller.calls) != 1 {
		t.Fatalf("expected the stale delivery to reach settlement once")
	}
}

func TestFulfillmentConsumerRejectsMalformedValue(t *testing.T) {
	fulfiller := &stubFulfiller{}
	consumer := RandomnessFulfillmentConsumer{Settlement: fulfiller}

	err := consumer.Handle(context.Background(), fulfilledEvent(t, "event-3", "req-1", "-12x"))
	if !errors.Is(err, domainerrors.ErrInvalidRandomValue) {
		t.Fatalf("expected invalid random value, got %v", err)
	}
	if len(fulfiller.calls) != 0 {
		t.Fatalf("malformed value must not reach settlement")
	}
	if err := consumer.Handle(context.Background(), ports.EventEnvelope{EventID: "event-4", Data: []byte("{")}); err == nil {
		t.Fatalf("expected decode error for truncated payload")
	}
}

func TestFulfillmentConsumerDisabled(t *testing.T) {
	sub := &stubSubscriber{}
	consumer := RandomnessFulfillmentConsumer{Subscriber: sub, Disabled: true}
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("disabled consumer start failed: %v", err)
	}
	if len(sub.handlers) != 0 {
		t.Fatalf("disabled consumer must not subscribe")
	}
}

func TestOutboxRelayPublishesAndMarks(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for i, eventType := range []string{contractsv1.EventLedgerCreated, contractsv1.EventVoteCast, contractsv1.EventLedgerSettled} {
		envelope, err := application.NewLedgerEnvelope(
			"event-"+eventType,
			eventType,
			"ledger-1",
			time.Date(2026, 6, 1, 10, i, 0, 0, time.UTC),
			nil,
		)
		if err != nil {
			t.Fatalf("build envelope: %v", err)
		}
		if err := store.AppendOutbox(ctx, envelope); err != nil {
			t.Fatalf("append outbox: %v", err)
		}
	}

	failing := &recordingPublisher{failOn: contractsv1.EventVoteCast}
	relay := OutboxRelay{Outbox: store, Publisher: failing, Clock: store, BatchSize: 10}
	if err := relay.RunOnce(ctx); err == nil {
		t.Fatalf("expected relay to surface publish failure")
	}
	if len(failing.topics) != 1 || failing.topics[0] != contractsv1.EventLedgerCreated {
		t.Fatalf("expected only the first row published before the failure, got %v", failing.topics)
	}

	publisher := &recordingPublisher{}
	relay.Publisher = publisher
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay run failed: %v", err)
	}
	want := []string{contractsv1.EventVoteCast, contractsv1.EventLedgerSettled}
	if len(publisher.topics) != len(want) || publisher.topics[0] != want[0] || publisher.topics[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, publisher.topics)
	}

	pending, err := store.ListPendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("list pending outbox: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d rows", len(pending))
	}
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("empty relay run failed: %v", err)
	}
}

func TestSweeperAndWatchdogDelegate(t *testing.T) {
	sweepErr := errors.New("store down")
	if err := (DeadlineSweeper{Settlement: stubDueExecutor{executed: 2}}).RunOnce(context.Background()); err != nil {
		t.Fatalf("sweeper run failed: %v", err)
	}
	if err := (DeadlineSweeper{Settlement: stubDueExecutor{err: sweepErr}}).RunOnce(context.Background()); !errors.Is(err, sweepErr) {
		t.Fatalf("expected sweeper to return settlement error, got %v", err)
	}

	expirer := &stubExpirer{}
	if err := (RandomnessWatchdog{Settlement: expirer}).RunOnce(context.Background()); err != nil {
		t.Fatalf("watchdog run failed: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected one expiry pass, got %d", expirer.calls)
	}
}
