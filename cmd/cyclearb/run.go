package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/you/cyclearb/internal/bot"
	"github.com/you/cyclearb/internal/config"
	"github.com/you/cyclearb/internal/connectors/redisfeed"
	"github.com/you/cyclearb/internal/dash"
	v2 "github.com/you/cyclearb/internal/dex/v2"
	"github.com/you/cyclearb/internal/metrics"
	"github.com/you/cyclearb/internal/report"
	"go.uber.org/zap"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the arbitrage loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			ctx := cmd.Context()

			metrics.Serve(ctx, cfg.Metrics.Addr, nil, log)

			src, err := v2.New(cfg, log)
			if err != nil {
				return err
			}

			reporters := []report.Reporter{report.NewConsole(os.Stdout), report.NewLog(log)}
			if cfg.Dash.Addr != "" {
				store := dash.NewStore(cfg.Dash.History)
				reporters = append(reporters, store)
				go dash.StartHTTP(ctx, store, cfg.Dash.Addr, log)
			}
			if cfg.Redis.Addr != "" {
				pub := redisfeed.NewPublisher(cfg)
				defer pub.Close()
				reporters = append(reporters, pub)
			}

			b := bot.New(cfg, src, report.NewMulti(log, reporters...), log)
			logStart(log, cfg)
			return b.Run(ctx)
		},
	}
}

func logStart(log *zap.Logger, cfg *config.Config) {
	log.Info("cyclearb starting",
		zap.Strings("tokens", cfg.Symbols()),
		zap.Strings("hubs", cfg.Hubs),
		zap.String("usd_token", cfg.USDToken),
		zap.Float64("min_relative_gain", cfg.Risk.MinRelativeGain),
		zap.Float64("min_absolute_gain", cfg.Risk.MinAbsoluteGain),
		zap.Float64("liquidity_threshold", cfg.Risk.LiquidityThreshold),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.String("dash", cfg.Dash.Addr),
	)
}
