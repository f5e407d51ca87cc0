package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TigerSong/OAP/internal/logging"
	"github.com/TigerSong/OAP/internal/scan"
)

func newScanCmd(logger *slog.Logger, filter *logging.ComponentFilterHandler) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [flags] <file-or-glob>...",
		Short: "Print the rows matching every filter",
		Args:  cobra.MinimumNArgs(1),
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

			columns := req.Columns
			if len(columns) == 0 {
				for _, f := range h.schema.Fields() {
					columns = append(columns, f.Name)
				}
			}

			var rows []scan.Row
			report, err := h.engine.Run(cmd.Context(), req, func(r scan.Row) error {
				rows = append(rows, r)
				return nil
			})
			if err != nil {
				return err
			}

			if p.format == "json" {
				out := make([]map[string]any, len(rows))
				for i, r := range rows {
					m := map[string]any{"_file": r.File.Path, "_row": r.ID}
					for j, name := range columns {
						m[name] = r.Values[j]
					}
					out[i] = m
				}
				return p.json(out)
			}

			header := append([]string{"FILE", "ROW"}, columns...)
			table := make([][]string, len(rows))
			for i, r := range rows {
				line := []string{r.File.Path, strconv.FormatUint(r.ID, 10)}
				for _, v := range r.Values {
					line = append(line, cell(v))
				}
				table[i] = line
			}
			p.table(header, table)
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d rows from %d files\n", len(rows), report.Metrics.TotalTasks)
			return nil
		},
	}
}
