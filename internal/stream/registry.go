// Package stream fans poll results out to connected real-time viewers. Each
// topic ("metrics", "status", "maintenance") owns one Registry; the transport
// endpoint registers clients on connect and the registry drops any client
// whose write fails, so a dead connection never blocks the remaining ones.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Topic names
const (
	TopicMetrics     = "metrics"
	TopicStatus      = "status"
	TopicMaintenance = "maintenance"
)

// Client is a connected streaming subscriber. Send must not block: a
// transport with an internal buffer returns an error on overflow, which the
// registry treats the same as a failed write.
type Client interface {
	ID() string
	Send(message []byte) error
	Close()
}

// connectedEvent is pushed to a client right after registration
type connectedEvent struct {
	ClientID string `json:"client_id"`
}

// Registry maintains the set of connected clients for one topic
type Registry struct {
	topic  string
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]Client
}

// NewRegistry creates a broadcast registry for a topic
func NewRegistry(topic string, logger *slog.Logger) *Registry {
	return &Registry{
		topic:   topic,
		logger:  logger.With("component", "stream", "topic", topic),
		clients: make(map[string]Client),
	}
}

// Topic returns the topic this registry serves
func (r *Registry) Topic() string {
	return r.topic
}

// Register adds a client and acknowledges the connection with a
// {client_id} event.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	r.clients[c.ID()] = c
	count := len(r.clients)
	r.mu.Unlock()

	r.logger.Debug("client connected", "client_id", c.ID(), "clients", count)

	if msg, err := json.Marshal(connectedEvent{ClientID: c.ID()}); err == nil {
		if err := c.Send(msg); err != nil {
			r.Unregister(c.ID())
		}
	}
}

// Unregister removes a client by id. Safe to call for ids that are already gone.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	c, ok := r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	count := len(r.clients)
	r.mu.Unlock()

	if ok {
		c.Close()
		r.logger.Debug("client disconnected", "client_id", id, "clients", count)
	}
}

// Broadcast serializes the payload and pushes it to every currently
// registered client. A client whose write fails is removed from the set;
// delivery to the remaining clients always proceeds.
func (r *Registry) Broadcast(payload any) {
	message, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("failed to marshal broadcast payload", "error", err)
		return
	}

	r.mu.Lock()
	clients := make([]Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	r.mu.Unlock()

	for _, c := range clients {
		if err := c.Send(message); err != nil {
			r.logger.Warn("dropping client after failed write",
				"client_id", c.ID(),
				"error", err,
			)
			r.Unregister(c.ID())
		}
	}
}

// ClientCount returns the number of connected clients
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
