package messaging

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ballotbox/contexts/governance/voting-ledger/ports"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBusDeliversOncePerConsumerGroup(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var groupA, groupB atomic.Int32
	count := func(counter *atomic.Int32) func(context.Context, ports.EventEnvelope) error {
		return func(context.Context, ports.EventEnvelope) error {
			counter.Add(1)
			return nil
		}
	}
	require.NoError(t, bus.Subscribe(ctx, "randomness.fulfilled", "group-a", count(&groupA)))
	require.NoError(t, bus.Subscribe(ctx, "randomness.fulfilled", "group-a", count(&groupA)))
	require.NoError(t, bus.Subscribe(ctx, "randomness.fulfilled", "group-b", count(&groupB)))

	require.NoError(t, bus.Publish(ctx, "randomness.fulfilled", ports.EventEnvelope{EventID: "evt-1"}))
	require.NoError(t, bus.Publish(ctx, "vote.cast", ports.EventEnvelope{EventID: "evt-2"}))

	require.Eventually(t, func() bool {
		return groupA.Load() == 1 && groupB.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBusStopsConsumersOnCancel(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Subscribe(ctx, "topic", "group", func(context.Context, ports.EventEnvelope) error {
		return nil
	}))
	cancel()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.groups) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestBusRejectsUseAfterClose(t *testing.T) {
	bus := NewBus(nil)
	require.NoError(t, bus.Subscribe(context.Background(), "topic", "group", func(context.Context, ports.EventEnvelope) error {
		return nil
	}))
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	err := bus.Publish(context.Background(), "topic", ports.EventEnvelope{EventID: "evt-1"})
	require.ErrorIs(t, err, ErrBusClosed)
	err = bus.Subscribe(context.Background(), "topic", "group", func(context.Context, ports.EventEnvelope) error {
		return nil
	})
	require.ErrorIs(t, err, ErrBusClosed)
}

func TestBusSubscribeValidatesArguments(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()
	require.Error(t, bus.Subscribe(context.Background(), "", "group", func(context.Context, ports.EventEnvelope) error {
		return nil
	}))
	require.Error(t, bus.Subscribe(context.Background(), "topic", "group", nil))
}
