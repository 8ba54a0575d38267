package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labwatch/labwatch/internal/model"
)

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a postgres-backed store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const integrationColumns = `id, name, service_type, encrypted_credentials,
	poll_interval_seconds, active, last_polled_at, last_poll_outcome,
	created_at, updated_at`

func (s *PostgresStore) ListActiveIntegrations(ctx context.Context) ([]model.Integration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE active = true ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active integrations: %w", err)
	}
	defer rows.Close()

	return scanIntegrations(rows)
}

func (s *PostgresStore) ListIntegrations(ctx context.Context) ([]model.Integration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+integrationColumns+` FROM integrations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	return scanIntegrations(rows)
}

func (s *PostgresStore) GetIntegration(ctx context.Context, id uuid.UUID) (model.Integration, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+integrationColumns+` FROM integrations WHERE id = $1`, id)

	in, err := scanIntegration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Integration{}, ErrNotFound
	}
	if err != nil {
		return model.Integration{}, fmt.Errorf("failed to get integration: %w", err)
	}

	return in, nil
}

func (s *PostgresStore) UpdateLastPoll(ctx context.Context, id uuid.UUID, outcome model.PollOutcome, ts time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE integrations
		 SET last_polled_at = $2, last_poll_outcome = $3, updated_at = now()
		 WHERE id = $1`,
		id, ts, string(outcome))
	if err != nil {
		return fmt.Errorf("failed to update last poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (model.Integration, error) {
	var in model.Integration
	var intervalSeconds *int32
	var outcome *string

	err := row.Scan(
		&in.ID,
		&in.Name,
		&in.ServiceType,
		&in.EncryptedCredentials,
		&intervalSeconds,
		&in.Active,
		&in.LastPolledAt,
		&outcome,
		&in.CreatedAt,
		&in.UpdatedAt,
	)
	if err != nil {
		return model.Integration{}, err
	}

	if intervalSeconds != nil {
		in.PollIntervalSeconds = int(*intervalSeconds)
	}
	if outcome != nil {
		in.LastPollOutcome = model.PollOutcome(*outcome)
	}

	return in, nil
}

func scanIntegrations(rows pgx.Rows) ([]model.Integration, error) {
	var integrations []model.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		integrations = append(integrations, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read integrations: %w", err)
	}

	return integrations, nil
}
