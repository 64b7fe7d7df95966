package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	v2 "github.com/you/cyclearb/internal/dex/v2"
	"github.com/you/cyclearb/internal/types"
)

func newPoolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List the pools the bot reads, with reserves and USD liquidity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			src, err := v2.New(cfg, log)
			if err != nil {
				return err
			}
			defer src.Close()

			ctx := cmd.Context()
			if _, err := src.FetchObservations(ctx, src.Tokens()); err != nil {
				return err
			}
			return printPools(ctx, cmd.OutOrStdout(), src)
		},
	}
}

type poolLister interface {
	Pools() []v2.Pool
	FetchLiquidity(ctx context.Context, pair types.Pair) ([2]types.LiquidityEstimate, bool, error)
}

func printPools(ctx context.Context, w io.Writer, src poolLister) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tADDRESS\tRESERVE A\tRESERVE B\tUSD A\tUSD B")
	for _, p := range src.Pools() {
		usdA, usdB := "-", "-"
		liq, ok, err := src.FetchLiquidity(ctx, types.Pair{From: p.Key.A, To: p.Key.B})
		if err != nil {
			return err
		}
		if ok {
			usdA = fmt.Sprintf("%.0f", liq[0].USDValue)
			usdB = fmt.Sprintf("%.0f", liq[1].USDValue)
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6g\t%.6g\t%s\t%s\n", p.Key, p.Address.Hex(), p.ReserveA, p.ReserveB, usdA, usdB)
	}
	return tw.Flush()
}
