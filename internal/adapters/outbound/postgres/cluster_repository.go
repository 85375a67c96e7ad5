package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

// Compile-time check that ClusterRepository implements outbound.ClusterRepository
var _ outbound.ClusterRepository = (*ClusterRepository)(nil)

const clusterColumns = `id, owner, operator_ids, snapshot, burn_rate::TEXT, balance::TEXT,
	is_liquidated, liquidation_block_number, created_at, updated_at`

// ClusterRepository is a PostgreSQL implementation of the outbound.ClusterRepository port.
type ClusterRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewClusterRepository creates a new PostgreSQL cluster repository.
func NewClusterRepository(pool *pgxpool.Pool, logger *slog.Logger) (*ClusterRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClusterRepository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Create inserts a stale cluster. A row that already exists for the same owner
// and operators takes the new snapshot and loses its derived state.
func (r *ClusterRepository) Create(ctx context.Context, c *entity.Cluster) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cluster (owner, operator_ids, snapshot)
		 VALUES ($1, $2, $3)
		 ON CONFLICT ON CONSTRAINT cluster_owner_operators_key DO UPDATE SET
		     snapshot = EXCLUDED.snapshot,
		     burn_rate = NULL,
		     balance = NULL,
		     liquidation_block_number = NULL,
		     is_liquidated = FALSE,
		     updated_at = NOW()`,
		addressToText(c.Owner), operatorIDsToArray(c.OperatorIDs), string(c.Snapshot))
	if err != nil {
		return fmt.Errorf("failed to create cluster %s: %w", c.Key(), err)
	}
	return nil
}

func (r *ClusterRepository) Get(ctx context.Context, owner common.Address, operatorIDs []uint64) (*entity.Cluster, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+clusterColumns+` FROM cluster WHERE owner = $1 AND operator_ids = $2`,
		addressToText(owner), operatorIDsToArray(entity.SortOperatorIDs(operatorIDs)))

	c, err := scanCluster(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster %s: %w", entity.ClusterKey(owner, operatorIDs), err)
	}
	return c, nil
}

func (r *ClusterRepository) MarkStale(ctx context.Context, owner common.Address, operatorIDs []uint64, snapshot json.RawMessage) (int64, error) {
	var snap *string
	if len(snapshot) > 0 {
		s := string(snapshot)
		snap = &s
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE cluster SET
		     snapshot = COALESCE($3::TEXT, snapshot),
		     burn_rate = NULL,
		     balance = NULL,
		     liquidation_block_number = NULL,
		     is_liquidated = FALSE,
		     updated_at = NOW()
		 WHERE owner = $1 AND operator_ids = $2`,
		addressToText(owner), operatorIDsToArray(entity.SortOperatorIDs(operatorIDs)), snap)
	if err != nil {
		return 0, fmt.Errorf("failed to mark cluster %s stale: %w", entity.ClusterKey(owner, operatorIDs), err)
	}
	return tag.RowsAffected(), nil
}

func (r *ClusterRepository) MarkStaleByOperator(ctx context.Context, operatorID uint64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cluster SET
		     burn_rate = NULL,
		     balance = NULL,
		     liquidation_block_number = NULL,
		     updated_at = NOW()
		 WHERE NOT is_liquidated AND operator_ids @> ARRAY[$1::BIGINT]`,
		int64(operatorID))
	if err != nil {
		return 0, fmt.Errorf("failed to mark clusters of operator %d stale: %w", operatorID, err)
	}
	return tag.RowsAffected(), nil
}

func (r *ClusterRepository) MarkAllStale(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cluster SET
		     burn_rate = NULL,
		     balance = NULL,
		     liquidation_block_number = NULL,
		     updated_at = NOW()
		 WHERE NOT is_liquidated`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all clusters stale: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ClusterRepository) MarkLiquidated(ctx context.Context, owner common.Address, operatorIDs []uint64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE cluster SET
		     burn_rate = NULL,
		     balance = NULL,
		     liquidation_block_number = NULL,
		     is_liquidated = TRUE,
		     updated_at = NOW()
		 WHERE owner = $1 AND operator_ids = $2`,
		addressToText(owner), operatorIDsToArray(entity.SortOperatorIDs(operatorIDs)))
	if err != nil {
		return fmt.Errorf("failed to mark cluster %s liquidated: %w", entity.ClusterKey(owner, operatorIDs), err)
	}
	return nil
}

// UpdateMetrics writes the derived state. A cluster read from this repository
// carries its updated_at; the write is dropped when the row changed since.
func (r *ClusterRepository) UpdateMetrics(ctx context.Context, c *entity.Cluster) error {
	if err := c.Validate(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE cluster SET
		     burn_rate = $3::TEXT::NUMERIC,
		     balance = $4::TEXT::NUMERIC,
		     liquidation_block_number = $5,
		     is_liquidated = $6,
		     updated_at = NOW()
		 WHERE owner = $1 AND operator_ids = $2
		   AND ($7::TIMESTAMPTZ IS NULL OR updated_at = $7)`,
		addressToText(c.Owner), operatorIDsToArray(c.OperatorIDs),
		bigIntToNumeric(c.BurnRate), bigIntToNumeric(c.Balance),
		c.LiquidationBlockNumber, c.IsLiquidated, optionalTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to update metrics of cluster %s: %w", c.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("cluster metrics not written, row missing or changed", "cluster", c.Key())
	}
	return nil
}

func (r *ClusterRepository) FindStale(ctx context.Context, limit int) ([]*entity.Cluster, error) {
	return r.query(ctx, "find stale clusters",
		`SELECT `+clusterColumns+` FROM cluster
		 WHERE burn_rate IS NULL AND NOT is_liquidated
		 ORDER BY id
		 LIMIT $1`, limit)
}

func (r *ClusterRepository) FindLiquidatable(ctx context.Context, currentBlock int64) ([]*entity.Cluster, error) {
	return r.query(ctx, "find liquidatable clusters",
		`SELECT `+clusterColumns+` FROM cluster
		 WHERE NOT is_liquidated AND liquidation_block_number <= $1
		 ORDER BY id`, currentBlock)
}

func (r *ClusterRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cluster WHERE NOT is_liquidated AND burn_rate IS NOT NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active clusters: %w", err)
	}
	return n, nil
}

func (r *ClusterRepository) CountLiquidatable(ctx context.Context, currentBlock, window int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cluster
		 WHERE NOT is_liquidated AND liquidation_block_number <= $1`,
		currentBlock+window).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count liquidatable clusters: %w", err)
	}
	return n, nil
}

// List returns clusters by liquidation block. A non-positive limit returns all rows.
func (r *ClusterRepository) List(ctx context.Context, limit int) ([]*entity.Cluster, error) {
	return r.query(ctx, "list clusters",
		`SELECT `+clusterColumns+` FROM cluster
		 ORDER BY liquidation_block_number ASC NULLS LAST, id
		 LIMIT NULLIF($1::BIGINT, 0)`, max(limit, 0))
}

func (r *ClusterRepository) query(ctx context.Context, what, sql string, args ...any) ([]*entity.Cluster, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	defer rows.Close()

	var out []*entity.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to %s: %w", what, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return out, nil
}

func scanCluster(row pgx.Row) (*entity.Cluster, error) {
	var (
		c        entity.Cluster
		owner    string
		ids      []int64
		snapshot string
		burnRate *string
		balance  *string
		err      error
	)
	if err := row.Scan(&c.ID, &owner, &ids, &snapshot, &burnRate, &balance,
		&c.IsLiquidated, &c.LiquidationBlockNumber, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Owner = common.HexToAddress(owner)
	c.OperatorIDs = arrayToOperatorIDs(ids)
	c.Snapshot = json.RawMessage(snapshot)
	if c.BurnRate, err = numericToBigInt(burnRate); err != nil {
		return nil, fmt.Errorf("burn_rate: %w", err)
	}
	if c.Balance, err = numericToBigInt(balance); err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return &c, nil
}
