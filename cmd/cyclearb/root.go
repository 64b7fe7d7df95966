package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"
	"github.com/you/cyclearb/internal/bot"
	"github.com/you/cyclearb/internal/config"
	"go.uber.org/zap"
)

type rootOptions struct {
	cfgFile string
	envFile string
	level   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cyclearb",
		Short: "Negative-cycle arbitrage detector for Uniswap V2 pools",
		Long: `cyclearb periodically reads Uniswap V2 reserves, builds a -log(rate)
graph over the configured tokens and reports profitable currency cycles
found with Bellman-Ford. It never trades.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "config.yaml", "path to the YAML config")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "dotenv file loaded before the config")
	cmd.PersistentFlags().StringVar(&opts.level, "log-level", "", "override log_level from the config")

	cmd.AddCommand(
		newRunCmd(opts),
		newOnceCmd(opts),
		newPoolsCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

// setup loads the env file, the config and builds the logger.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnv(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("load %s: %w", o.envFile, err)
	}
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.level != "" {
		cfg.LogLevel = o.level
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config %s:\n%w", o.cfgFile, err)
	}
	log, err := bot.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
