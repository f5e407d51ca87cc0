package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/TigerSong/OAP/internal/logging"
)

func newExplainCmd(logger *slog.Logger, filter *logging.ComponentFilterHandler) *cobra.Command {
	return &cobra.Command{
		Use:   "explain [flags] <file-or-glob>...",
		Short: "Show how each file would be scanned, without reading rows",
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
			plan, err := h.engine.Explain(cmd.Context(), req)
			if err != nil {
				return err
			}
			if p.format == "json" {
				return p.json(plan)
			}
			return plan.WriteText(p.w)
		},
	}
}
