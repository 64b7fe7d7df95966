package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/you/cyclearb/internal/connectors/redisfeed"
	"github.com/you/cyclearb/internal/report"
	"github.com/you/cyclearb/internal/types"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		backlog int64
		latest  bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow reports published to Redis by a running bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if cfg.Redis.Addr == "" {
				return errors.New("redis.addr is not set")
			}

			c := redisfeed.NewConsumer(cfg)
			defer c.Close()
			if latest {
				return printLatest(cmd, c)
			}
			return follow(cmd.Context(), c, report.NewConsole(cmd.OutOrStdout()), backlog)
		},
	}
	cmd.Flags().Int64Var(&backlog, "backlog", 10, "number of past reports to print first")
	cmd.Flags().BoolVar(&latest, "latest", false, "print the latest report as JSON and exit")
	return cmd
}

func printLatest(cmd *cobra.Command, c *redisfeed.Consumer) error {
	r, err := c.Latest(cmd.Context())
	if errors.Is(err, redis.Nil) {
		return errors.New("no report published yet")
	}
	if err != nil {
		return fmt.Errorf("read latest: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// follow prints the backlog oldest first, then every report published after
// it until ctx is done.
func follow(ctx context.Context, c *redisfeed.Consumer, rep report.Reporter, backlog int64) error {
	recent, last, err := c.Recent(ctx, backlog)
	if err != nil {
		return fmt.Errorf("read backlog: %w", err)
	}
	for i := len(recent) - 1; i >= 0; i-- {
		_ = rep.Report(ctx, recent[i])
	}

	out := make(chan types.Report, 16)
	errc := make(chan error, 1)
	go func() { errc <- c.Follow(ctx, last, out) }()
	for {
		select {
		case r := <-out:
			_ = rep.Report(ctx, r)
		case err := <-errc:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}
