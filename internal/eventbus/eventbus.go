// Package eventbus provides the in-process publish/subscribe channel that
// carries poll results to internal consumers. Delivery is synchronous and in
// subscriber-registration order; there is no buffering or replay, so a
// subscriber registered after a publish never sees that payload.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/labwatch/labwatch/internal/model"
)

// Handler receives a metric payload. Handlers run on the publisher's
// goroutine; a handler that panics is isolated and does not prevent delivery
// to the remaining subscribers.
type Handler func(payload model.MetricPayload)

type subscription struct {
	id      int
	handler Handler
}

// Bus is the metrics event bus
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	nextID int
	logger *slog.Logger
}

// New creates a metrics event bus
func New(logger *slog.Logger) *Bus {
	return &Bus{logger: logger.With("component", "eventbus")}
}

// Subscribe registers a handler and returns an unsubscribe function.
// Unsubscription takes effect no later than the next publish.
func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the payload to every currently registered subscriber in
// registration order. A panicking subscriber never propagates back to the
// publisher.
func (b *Bus) Publish(payload model.MetricPayload) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		b.deliver(sub, payload)
	}
}

// SubscriberCount returns the number of registered subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) deliver(sub subscription, payload model.MetricPayload) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				"subscriber_id", sub.id,
				"integration_id", payload.IntegrationID,
				"panic", r,
			)
		}
	}()

	sub.handler(payload)
}
