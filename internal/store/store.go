// Package store owns integration persistence. The poll engine only reads
// active integrations and writes back per-row last-poll fields; everything
// else is read-only API surface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/labwatch/labwatch/internal/model"
)

// ErrNotFound is returned when an integration does not exist
var ErrNotFound = errors.New("integration not found")

// Store is the persistence contract consumed by the poll engine and the API
type Store interface {
	// ListActiveIntegrations returns all active integrations ordered by
	// name, so poll cycles visit them deterministically.
	ListActiveIntegrations(ctx context.Context) ([]model.Integration, error)

	// ListIntegrations returns all integrations ordered by name
	ListIntegrations(ctx context.Context) ([]model.Integration, error)

	// GetIntegration returns a single integration by id
	GetIntegration(ctx context.Context, id uuid.UUID) (model.Integration, error)

	// UpdateLastPoll records the outcome and timestamp of a poll attempt.
	// Single-row update; cycles never overlap, so no cross-row transaction
	// is needed.
	UpdateLastPoll(ctx context.Context, id uuid.UUID, outcome model.PollOutcome, ts time.Time) error
}
