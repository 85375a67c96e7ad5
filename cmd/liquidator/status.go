package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"text/tabwriter"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

// printStatus writes clusters ordered by liquidation block followed by the
// recorded earnings. It never writes to the store.
func printStatus(ctx context.Context, out io.Writer, clusters outbound.ClusterRepository, earnings outbound.EarningRepository, limit int) error {
	list, err := clusters.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing clusters: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OWNER\tOPERATORS\tSTATE\tBURN RATE\tBALANCE\tLIQUIDATION BLOCK")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Owner.Hex(), c.OperatorIDsString(), clusterState(c),
			bigOrDash(c.BurnRate), bigOrDash(c.Balance), blockOrDash(c.LiquidationBlockNumber))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rows, err := earnings.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing earnings: %w", err)
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tBLOCK\tGAS USED\tCOST (WEI)\tEARNED")
	total := new(big.Int)
	for _, e := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			e.Hash.Hex(), e.EarnedAtBlock, e.GasUsed, e.Cost(), bigOrDash(e.Earned))
		if e.Earned != nil {
			total.Add(total, e.Earned)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "\n%d clusters, %d liquidations, %s earned\n", len(list), len(rows), total)
	return err
}

func clusterState(c *entity.Cluster) string {
	switch {
	case c.IsLiquidated:
		return "liquidated"
	case c.IsStale():
		return "stale"
	default:
		return "active"
	}
}

func bigOrDash(v *big.Int) string {
	if v == nil {
		return "-"
	}
	return v.String()
}

func blockOrDash(v *int64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatInt(*v, 10)
}
