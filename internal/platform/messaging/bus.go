package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"ballotbox/contexts/governance/voting-ledger/ports"
)

const groupBuffer = 128

var ErrBusClosed = errors.New("event bus closed")

// Bus is the in-process event bus used by the API, worker and oracle.
// Each consumer group on a topic gets one delivery per event; handlers
// subscribed under the same group share that delivery.
type Bus struct {
	mu     sync.RWMutex
	groups map[string]map[string]*consumerGroup
	wg     sync.WaitGroup
	closed bool
	logger *slog.Logger
}

type consumerGroup struct {
	ch      chan ports.EventEnvelope
	members int
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		groups: make(map[string]map[string]*consumerGroup),
		logger: logger,
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Sends never block, so holding the read lock keeps Close from closing a
	// channel mid-publish.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for name, group := range b.groups[topic] {
		select {
		case group.ch <- event:
		default:
			b.logger.Warn("dropping event for slow consumer group",
				"event", "event_bus_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", name,
				"event_id", event.EventID,
			)
		}
	}

	b.logger.Debug("event published",
		"event", "event_bus_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"consumer_groups", len(b.groups[topic]),
	)
	return nil
}

// Subscribe returns once the handler is registered. Delivery stops when ctx
// is cancelled or the bus is closed.
func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	groupName string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	topic = strings.TrimSpace(topic)
	groupName = strings.TrimSpace(groupName)
	if topic == "" || groupName == "" || handler == nil {
		return errors.New("topic, consumer group and handler are required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	byGroup, ok := b.groups[topic]
	if !ok {
		byGroup = make(map[string]*consumerGroup)
		b.groups[topic] = byGroup
	}
	group, ok := byGroup[groupName]
	if !ok {
		group = &consumerGroup{ch: make(chan ports.EventEnvelope, groupBuffer)}
		byGroup[groupName] = group
	}
	group.members++
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer b.leave(topic, groupName)
		for {
			select {
			case <-ctx.Done():
				return
			case event, open := <-group.ch:
				if !open {
					return
				}
				if err := handler(ctx, event); err != nil {
					b.logger.Error("consumer handler failed",
						"event", "event_bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", groupName,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

// Close stops every consumer and waits for in-flight handlers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, byGroup := range b.groups {
		for _, group := range byGroup {
			close(group.ch)
		}
	}
	b.groups = make(map[string]map[string]*consumerGroup)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *Bus) leave(topic string, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	group, ok := b.groups[topic][name]
	if !ok {
		return
	}
	group.members--
	if group.members > 0 {
		return
	}
	delete(b.groups[topic], name)
	if len(b.groups[topic]) == 0 {
		delete(b.groups, topic)
	}
}

var _ ports.EventBus = (*Bus)(nil)
