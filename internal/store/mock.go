package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/labwatch/labwatch/internal/model"
)

// MockStore holds integrations in memory for tests and local development
type MockStore struct {
	mu           sync.RWMutex
	integrations map[uuid.UUID]*model.Integration
}

// NewMockStore creates an empty in-memory store
func NewMockStore() *MockStore {
	return &MockStore{integrations: make(map[uuid.UUID]*model.Integration)}
}

// Put inserts or replaces an integration
func (s *MockStore) Put(in model.Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := in
	s.integrations[in.ID] = &copied
}

func (s *MockStore) ListActiveIntegrations(_ context.Context) ([]model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Integration
	for _, in := range s.integrations {
		if in.Active {
			out = append(out, *in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (s *MockStore) ListIntegrations(_ context.Context) ([]model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Integration
	for _, in := range s.integrations {
		out = append(out, *in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (s *MockStore) GetIntegration(_ context.Context, id uuid.UUID) (model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.integrations[id]
	if !ok {
		return model.Integration{}, ErrNotFound
	}
	return *in, nil
}

func (s *MockStore) UpdateLastPoll(_ context.Context, id uuid.UUID, outcome model.PollOutcome, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.integrations[id]
	if !ok {
		return ErrNotFound
	}

	polledAt := ts
	in.LastPolledAt = &polledAt
	in.LastPollOutcome = outcome
	in.UpdatedAt = time.Now()

	return nil
}
