package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TigerSong/OAP/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := configStore(cmd)
			if err != nil {
				return err
			}
			existing, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if force, _ := cmd.Flags().GetBool("force"); existing != nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", store.Path())
			}
			if err := store.Save(cmd.Context(), config.Default()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", store.Path())
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := configStore(cmd)
			if err != nil {
				return err
			}
			cfg, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			source := store.Path()
			if cfg == nil {
				cfg = config.Default()
				source = "defaults"
			}
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			if p.format == "json" {
				return p.json(cfg)
			}
			p.kv(configPairs(source, cfg))
			return nil
		},
	}
}

func configPairs(source string, cfg *config.Config) [][2]string {
	pairs := [][2]string{
		{"source", source},
		{"parallelism", strconv.Itoa(cfg.Parallelism)},
		{"ignoreIndexRatio", strconv.FormatFloat(cfg.IgnoreIndexRatio, 'g', -1, 64)},
		{"scan.maxIndexCandidates", strconv.Itoa(cfg.Scan.MaxIndexCandidates)},
		{"scan.rowOrder", cfg.Scan.RowOrder},
		{"scan.limit", strconv.Itoa(cfg.Scan.Limit)},
		{"scan.indexScanLimit", strconv.Itoa(cfg.Scan.IndexScanLimit)},
		{"scan.groupBy", cfg.Scan.GroupBy},
		{"cache.policy", cfg.Cache.Policy},
		{"cache.capacity", strconv.Itoa(cfg.Cache.Capacity)},
		{"cache.ttl", cfg.Cache.TTL.Std().String()},
		{"cache.loadTimeout", cfg.Cache.LoadTimeout.Std().String()},
		{"cache.sweepSchedule", cfg.Cache.SweepSchedule},
		{"cache.watch", strconv.FormatBool(cfg.Cache.Watch)},
		{"logging.level", cfg.Logging.Level},
	}
	for component, level := range cfg.Logging.Components {
		pairs = append(pairs, [2]string{"logging.components." + component, level})
	}
	if s3 := cfg.Storage.S3; s3 != nil {
		secret := "(not set)"
		if s3.SecretKey != "" {
			secret = "(configured)"
		}
		pairs = append(pairs,
			[2]string{"storage.s3.endpoint", s3.Endpoint},
			[2]string{"storage.s3.region", s3.Region},
			[2]string{"storage.s3.accessKey", s3.AccessKey},
			[2]string{"storage.s3.secretKey", secret},
			[2]string{"storage.s3.secure", strconv.FormatBool(s3.Secure)},
		)
	}
	return pairs
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := configStore(cmd)
			if err != nil {
				return err
			}
			cfg, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if cfg == nil {
				return errors.New(store.Path() + ": no config file")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("%s: %w", store.Path(), err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", store.Path())
			return nil
		},
	}
}
