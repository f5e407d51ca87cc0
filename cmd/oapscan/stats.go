package main

import (
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TigerSong/OAP/internal/logging"
	"github.com/TigerSong/OAP/internal/scan"
)

func newStatsCmd(logger *slog.Logger, filter *logging.ComponentFilterHandler) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [flags] <file-or-glob>...",
		Short: "Run a query and report how each file was read",
		Long: `Run a query, discarding the rows, and report per-file outcomes and the
execution metrics. With --output table the metrics are printed in the
Prometheus text format after the task table.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, req, err := setup(cmd, args, logger, filter)
			if err != nil {
				return err
			}
			defer func() { _ = h.cache.Close() }()

			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			report, err := h.engine.Run(cmd.Context(), req, func(scan.Row) error { return nil })
			if err != nil {
				return err
			}
			return printReport(p, report)
		},
	}
}

func printReport(p *printer, report *scan.Report) error {
	if p.format == "json" {
		return p.json(report)
	}
	rows := make([][]string, 0, len(report.Tasks))
	for _, t := range report.Tasks {
		rows = append(rows, []string{
			t.File.Path,
			t.Outcome.Kind.String(),
			strconv.FormatInt(t.Outcome.RowsRead, 10),
			strconv.FormatInt(t.Outcome.RowsSkipped, 10),
			strconv.FormatInt(t.Emitted, 10),
			t.Plan.String(),
		})
	}
	p.table([]string{"FILE", "OUTCOME", "READ", "SKIPPED", "EMITTED", "PLAN"}, rows)
	_, _ = p.w.Write([]byte("\n"))
	return report.Metrics.WriteText(p.w)
}
