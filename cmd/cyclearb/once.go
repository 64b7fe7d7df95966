package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/you/cyclearb/internal/bot"
	v2 "github.com/you/cyclearb/internal/dex/v2"
	"github.com/you/cyclearb/internal/report"
)

func newOnceCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single pass and print its report",
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

			rep := report.Reporter(report.NewLog(log))
			if !asJSON {
				rep = report.NewMulti(log, rep, report.NewConsole(cmd.OutOrStdout()))
			}
			r := bot.New(cfg, src, rep, log).RunPass(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
