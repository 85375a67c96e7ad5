package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

// clusterArgs packs the (owner, operatorIds, cluster) arguments shared by
// every cluster call.
func clusterArgs(c *entity.Cluster) ([]any, error) {
	tuple, err := DecodeSnapshot(c.Snapshot)
	if err != nil {
		return nil, err
	}
	return []any{c.Owner, c.OperatorIDs, tuple}, nil
}

// callView packs and executes a views contract method and returns its first output.
func (c *Client) callView(ctx context.Context, method string, args ...any) (any, error) {
	viewsABI := c.contract.ViewsABI
	data, err := viewsABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	to := c.contract.ViewsAddress
	out, err := c.call(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		// %w keeps the revert data reachable through errors.As.
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	values, err := viewsABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values[0], nil
}

func (c *Client) clusterBig(ctx context.Context, method string, cluster *entity.Cluster) (*big.Int, error) {
	args, err := clusterArgs(cluster)
	if err != nil {
		return nil, err
	}
	v, err := c.callView(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, v)
	}
	return n, nil
}

func (c *Client) clusterBool(ctx context.Context, method string, cluster *entity.Cluster) (bool, error) {
	args, err := clusterArgs(cluster)
	if err != nil {
		return false, err
	}
	v, err := c.callView(ctx, method, args...)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: unexpected result type %T", method, v)
	}
	return b, nil
}

func (c *Client) BurnRate(ctx context.Context, cluster *entity.Cluster) (*big.Int, error) {
	return c.clusterBig(ctx, "getBurnRate", cluster)
}

func (c *Client) Balance(ctx context.Context, cluster *entity.Cluster) (*big.Int, error) {
	return c.clusterBig(ctx, "getBalance", cluster)
}

func (c *Client) IsLiquidated(ctx context.Context, cluster *entity.Cluster) (bool, error) {
	return c.clusterBool(ctx, "isLiquidated", cluster)
}

func (c *Client) IsLiquidatable(ctx context.Context, cluster *entity.Cluster) (bool, error) {
	return c.clusterBool(ctx, "isLiquidatable", cluster)
}

func (c *Client) MinimumLiquidationCollateral(ctx context.Context) (*big.Int, error) {
	v, err := c.callView(ctx, "getMinimumLiquidationCollateral")
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getMinimumLiquidationCollateral: unexpected result type %T", v)
	}
	return n, nil
}

func (c *Client) LiquidationThresholdPeriod(ctx context.Context) (uint64, error) {
	v, err := c.callView(ctx, "getLiquidationThresholdPeriod")
	if err != nil {
		return 0, err
	}
	n, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("getLiquidationThresholdPeriod: unexpected result type %T", v)
	}
	return n, nil
}
