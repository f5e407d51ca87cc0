package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TigerSong/OAP/internal/cache"
	"github.com/TigerSong/OAP/internal/config"
	"github.com/TigerSong/OAP/internal/logging"
	"github.com/TigerSong/OAP/internal/scan"
	"github.com/TigerSong/OAP/internal/scheduler"
	"github.com/TigerSong/OAP/internal/storage"
)

const queryJobName = "watch-query"

func newWatchCmd(logger *slog.Logger, filter *logging.ComponentFilterHandler) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [flags] <file-or-glob>...",
		Short: "Re-run a query on a schedule, keeping handles cached between runs",
		Long: `Re-run a query on a schedule until interrupted, printing a report after
every run. Handles stay cached between runs. When cache.watch is set in the
config, local files are watched and a change drops their cached handles.
cache.sweepSchedule evicts expired handles in the background.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			every, _ := cmd.Flags().GetString("every")
			if err := config.ValidateSchedule(every); err != nil || every == "" {
				return fmt.Errorf("--every: invalid schedule %q", every)
			}

			h, req, err := setup(cmd, args, logger, filter)
			if err != nil {
				return err
			}
			defer func() { _ = h.cache.Close() }()

			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if h.cfg.Cache.Watch {
				w, err := cache.NewWatcher(h.cache, logger)
				if err != nil {
					return err
				}
				defer func() { _ = w.Close() }()
				for _, f := range req.Files {
					if storage.IsS3(f.Path) {
						continue
					}
					if err := w.Watch(f.Path); err != nil {
						return err
					}
				}
			}

			sched, err := scheduler.New(logger)
			if err != nil {
				return err
			}
			if s := h.cfg.Cache.SweepSchedule; s != "" {
				if err := h.cache.ScheduleSweep(sched, s); err != nil {
					return err
				}
			}
			run := func() { watchOnce(ctx, h, req, p, logger) }
			if err := sched.AddJob(queryJobName, every, run); err != nil {
				return err
			}

			run()
			sched.Start()
			<-ctx.Done()
			return sched.Stop()
		},
	}
	cmd.Flags().String("every", "30s", "how often to re-run: a Go duration or a cron expression")
	return cmd
}

// watchOnce runs the query once and prints its report. Failures are logged
// and the next run goes ahead.
func watchOnce(ctx context.Context, h *host, req scan.Request, p *printer, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	report, err := h.engine.Run(ctx, req, func(scan.Row) error { return nil })
	if err != nil {
		logger.Warn("watch run failed", "error", err)
		return
	}
	if err := printReport(p, report); err != nil {
		logger.Warn("print report", "error", err)
		return
	}
	cs := h.cache.Stats()
	p.kv([][2]string{
		{"cached handles", fmt.Sprint(cs.Entries)},
		{"cache hits", fmt.Sprint(cs.Hits)},
		{"cache loads", fmt.Sprint(cs.Loads)},
		{"invalidations", fmt.Sprint(cs.Invalidations)},
	})
}
