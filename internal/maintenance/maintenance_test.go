package maintenance

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labwatch/labwatch/internal/stream"
)

type countingClient struct {
	mu       sync.Mutex
	messages []string
}

func (c *countingClient) ID() string { return "viewer" }

func (c *countingClient) Send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, string(message))
	return nil
}

func (c *countingClient) Close() {}

func (c *countingClient) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.messages))
	copy(out, c.messages)
	return out
}

func TestSetBroadcastsOnlyOnChange(t *testing.T) {
	registry := stream.NewRegistry(stream.TopicMaintenance, slog.New(slog.DiscardHandler))
	client := &countingClient{}
	registry.Register(client)

	state := NewState(registry)
	require.False(t, state.Enabled())

	state.Set(true)
	state.Set(true) // no change, no broadcast
	state.Set(false)

	msgs := client.received()
	// connected event plus the two transitions
	require.Len(t, msgs, 3)
	assert.JSONEq(t, `{"enabled":true}`, msgs[1])
	assert.JSONEq(t, `{"enabled":false}`, msgs[2])
	assert.False(t, state.Enabled())
}

func TestSetFalseFromInitialStateIsNoop(t *testing.T) {
	registry := stream.NewRegistry(stream.TopicMaintenance, slog.New(slog.DiscardHandler))
	client := &countingClient{}
	registry.Register(client)

	state := NewState(registry)
	state.Set(false)

	assert.Len(t, client.received(), 1, "only the connected event should be sent")
}
