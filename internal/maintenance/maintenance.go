// Package maintenance tracks the dashboard-wide maintenance banner flag and
// propagates changes to streaming clients on its own topic.
package maintenance

import (
	"sync"

	"github.com/labwatch/labwatch/internal/stream"
)

// Event is the wire shape broadcast on the maintenance topic
type Event struct {
	Enabled bool `json:"enabled"`
}

// State holds the maintenance flag
type State struct {
	mu       sync.Mutex
	enabled  bool
	registry *stream.Registry
}

// NewState creates the maintenance state bound to its broadcast registry
func NewState(registry *stream.Registry) *State {
	return &State{registry: registry}
}

// Enabled returns the current flag
func (s *State) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Set updates the flag, broadcasting only on change
func (s *State) Set(enabled bool) {
	s.mu.Lock()
	changed := s.enabled != enabled
	s.enabled = enabled
	s.mu.Unlock()

	if changed {
		s.registry.Broadcast(Event{Enabled: enabled})
	}
}
