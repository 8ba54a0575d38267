package status

import (
	"log/slog"

	"github.com/labwatch/labwatch/internal/model"
	"github.com/labwatch/labwatch/internal/stream"
)

// Publisher is the event-bus consumer that turns poll payloads into status
// diffs on the "status" topic. Broadcast maps are partial; streaming clients
// merge them the same way the local cache does.
type Publisher struct {
	cache    *Cache
	registry *stream.Registry
	logger   *slog.Logger
}

// NewPublisher creates a status publisher backed by the given cache and
// status-topic registry.
func NewPublisher(cache *Cache, registry *stream.Registry, logger *slog.Logger) *Publisher {
	return &Publisher{
		cache:    cache,
		registry: registry,
		logger:   logger.With("component", "status_publisher"),
	}
}

// Handle is subscribed to the metrics event bus
func (p *Publisher) Handle(payload model.MetricPayload) {
	sm := FromPayload(payload)
	if len(sm) == 0 {
		return
	}

	p.cache.Merge(sm)
	p.registry.Broadcast(sm)

	p.logger.Debug("status diff broadcast",
		"integration_id", payload.IntegrationID,
		"items", len(sm),
	)
}
