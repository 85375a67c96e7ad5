package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

// Compile-time check that EarningRepository implements outbound.EarningRepository
var _ outbound.EarningRepository = (*EarningRepository)(nil)

// EarningRepository is a PostgreSQL implementation of the outbound.EarningRepository port.
type EarningRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEarningRepository creates a new PostgreSQL earning repository.
func NewEarningRepository(pool *pgxpool.Pool, logger *slog.Logger) (*EarningRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EarningRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Save stores an earning. Uses ON CONFLICT DO NOTHING: a hash is recorded once.
func (r *EarningRepository) Save(ctx context.Context, e *entity.Earning) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO earning (hash, from_address, gas_price, gas_used, earned, earned_at_block)
		 VALUES ($1, $2, $3::TEXT::NUMERIC, $4, $5::TEXT::NUMERIC, $6)
		 ON CONFLICT (hash) DO NOTHING`,
		strings.ToLower(e.Hash.Hex()), addressToText(e.From),
		bigIntToNumeric(e.GasPrice), int64(e.GasUsed), bigIntToNumeric(e.Earned), e.EarnedAtBlock)
	if err != nil {
		return fmt.Errorf("failed to save earning %s: %w", e.Hash.Hex(), err)
	}
	return nil
}

// List returns the most recent earnings first. A non-positive limit returns all rows.
func (r *EarningRepository) List(ctx context.Context, limit int) ([]*entity.Earning, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT hash, from_address, gas_price::TEXT, gas_used, earned::TEXT, earned_at_block, created_at
		 FROM earning
		 ORDER BY earned_at_block DESC, created_at DESC
		 LIMIT NULLIF($1::BIGINT, 0)`, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list earnings: %w", err)
	}
	defer rows.Close()

	var out []*entity.Earning
	for rows.Next() {
		var (
			e        entity.Earning
			hash     string
			from     string
			gasPrice *string
			gasUsed  int64
			earned   *string
		)
		if err := rows.Scan(&hash, &from, &gasPrice, &gasUsed, &earned, &e.EarnedAtBlock, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan earning: %w", err)
		}
		e.Hash = common.HexToHash(hash)
		e.From = common.HexToAddress(from)
		e.GasUsed = uint64(gasUsed)
		if e.GasPrice, err = numericToBigInt(gasPrice); err != nil {
			return nil, fmt.Errorf("earning %s gas_price: %w", hash, err)
		}
		if e.Earned, err = numericToBigInt(earned); err != nil {
			return nil, fmt.Errorf("earning %s earned: %w", hash, err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list earnings: %w", err)
	}
	return out, nil
}
