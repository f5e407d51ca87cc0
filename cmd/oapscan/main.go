// Command oapscan runs index- and statistics-accelerated scans over
// columnar files.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/TigerSong/OAP/internal/logging"
)

var version = "dev"

func main() {
	// Allow all levels; filtering is done by ComponentFilterHandler.
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelInfo)
	logger := slog.New(filterHandler)

	rootCmd := newRootCmd(logger, filterHandler)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, filter *logging.ComponentFilterHandler) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oapscan",
		Short:         "Scan columnar files using indexes and column statistics",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("home", "", "home directory (default: platform config dir)")
	pf.String("config", "", "config file (default: <home>/config.json)")
	pf.String("log-level", "", "log level: debug, info, warn or error (overrides config)")
	pf.StringP("output", "o", "table", "output format: table or json")

	scanCmds := []*cobra.Command{
		newExplainCmd(logger, filter),
		newScanCmd(logger, filter),
		newStatsCmd(logger, filter),
		newWatchCmd(logger, filter),
	}
	for _, c := range scanCmds {
		addScanFlags(c)
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(scanCmds...)
	rootCmd.AddCommand(newConfigCmd(), versionCmd)
	return rootCmd
}

// addScanFlags registers the flags shared by every command that plans or
// runs a query.
func addScanFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("schema", "", `declared schema, e.g. "age:int64,name:string" (required)`)
	f.String("format", "auto", "file format: auto, native or parquet")
	f.StringArrayP("filter", "f", nil, `filter expression, e.g. "age < 40" (repeatable, ANDed)`)
	f.StringToStringP("option", "O", nil, "selection hint: order, limit, indexScanNum or groupBy")
	f.StringSlice("columns", nil, "columns to return (default: all)")
	f.Int("parallelism", 0, "scan tasks run at once (overrides config)")
	_ = cmd.MarkFlagRequired("schema")
}
