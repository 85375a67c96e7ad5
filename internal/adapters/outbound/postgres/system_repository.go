package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

// Compile-time check that SystemRepository implements outbound.SystemRepository
var _ outbound.SystemRepository = (*SystemRepository)(nil)

// SystemRepository stores cached protocol values as JSONB keyed by type.
type SystemRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSystemRepository creates a new PostgreSQL system repository.
func NewSystemRepository(pool *pgxpool.Pool, logger *slog.Logger) (*SystemRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

func (r *SystemRepository) Get(ctx context.Context, key entity.SystemType) (json.RawMessage, bool, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT payload::TEXT FROM system WHERE type = $1`, key.String()).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get system value %s: %w", key, err)
	}
	return json.RawMessage(payload), true, nil
}

func (r *SystemRepository) Save(ctx context.Context, key entity.SystemType, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("system value %s is not valid JSON", key)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO system (type, payload) VALUES ($1, $2::TEXT::JSONB)
		 ON CONFLICT (type) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		key.String(), string(value))
	if err != nil {
		return fmt.Errorf("failed to save system value %s: %w", key, err)
	}
	return nil
}
