package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/TigerSong/OAP/internal/cache"
	"github.com/TigerSong/OAP/internal/config"
	configfile "github.com/TigerSong/OAP/internal/config/file"
	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/handle/foreign"
	"github.com/TigerSong/OAP/internal/handle/native"
	"github.com/TigerSong/OAP/internal/home"
	indexmem "github.com/TigerSong/OAP/internal/index/memory"
	"github.com/TigerSong/OAP/internal/logging"
	"github.com/TigerSong/OAP/internal/predicate"
	"github.com/TigerSong/OAP/internal/reader"
	foreignreader "github.com/TigerSong/OAP/internal/reader/foreign"
	"github.com/TigerSong/OAP/internal/scan"
	"github.com/TigerSong/OAP/internal/schema"
	"github.com/TigerSong/OAP/internal/selector"
	"github.com/TigerSong/OAP/internal/storage"
)

// configStore resolves the config file from --config or --home.
func configStore(cmd *cobra.Command) (*configfile.Store, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return configfile.NewStore(path), nil
	}
	homeFlag, _ := cmd.Flags().GetString("home")
	hd := home.New(homeFlag)
	if homeFlag == "" {
		var err error
		if hd, err = home.Default(); err != nil {
			return nil, err
		}
	}
	return configfile.NewStore(hd.ConfigPath()), nil
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist, and applies flag overrides and log levels.
func loadConfig(cmd *cobra.Command, filter *logging.ComponentFilterHandler) (*config.Config, error) {
	store, err := configStore(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := store.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	if f := cmd.Flags().Lookup("parallelism"); f != nil && f.Changed {
		cfg.Parallelism, _ = cmd.Flags().GetInt("parallelism")
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", store.Path(), err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	filter.SetDefaultLevel(level)
	for component, l := range cfg.Logging.Components {
		cl, err := logging.ParseLevel(l)
		if err != nil {
			return nil, fmt.Errorf("logging.components.%s: %w", component, err)
		}
		filter.SetLevel(component, cl)
	}
	return cfg, nil
}

// host is the scan stack wired from configuration.
type host struct {
	cfg     *config.Config
	schema  schema.Schema
	storage *storage.Mux
	loaders *handle.Registry
	cache   *cache.Cache
	engine  *scan.Engine
}

func newHost(cfg *config.Config, s schema.Schema, logger *slog.Logger) (*host, error) {
	mux := &storage.Mux{}
	if cfg.Storage.S3 != nil {
		s3, err := storage.NewS3(storage.S3Config(*cfg.Storage.S3))
		if err != nil {
			return nil, err
		}
		mux.S3 = s3
	}

	loaders := &handle.Registry{}
	loaders.Register(handle.FormatNative, native.NewLoader(mux))
	loaders.Register(handle.FormatParquet, foreign.NewLoader(mux))

	var policy cache.Policy
	switch cfg.Cache.Policy {
	case config.PolicyLRU:
		policy = cache.LRU(cfg.Cache.Capacity)
	case config.PolicyTTL:
		policy = cache.TTL(cfg.Cache.TTL.Std())
	default:
		policy = cache.Unbounded()
	}
	built := indexmem.NewManager(logger)
	c := cache.NewWithOptions(loaders, policy, cache.Options{
		LoadTimeout: cfg.Cache.LoadTimeout.Std(),
		OnTeardown:  func(h handle.Handle) { built.Remove(h.Identity()) },
	}, logger)

	parquetRows := foreignreader.NewReader(mux)
	parquetRows.Declare(s)
	var readers reader.Registry
	readers.Register(handle.FormatParquet, parquetRows)

	indexes := indexmem.NewLazy(built, columnValues(&readers, s))

	return &host{
		cfg:     cfg,
		schema:  s,
		storage: mux,
		loaders: loaders,
		cache:   c,
		engine:  scan.New(c, indexes, &readers, *cfg, logger),
	}, nil
}

// columnValues reads a whole column through r so a missing index can be
// built in memory.
func columnValues(r reader.Reader, s schema.Schema) indexmem.ColumnFunc {
	return func(ctx context.Context, h handle.Handle, attr string) ([]any, error) {
		ord, _, ok := s.Lookup(attr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", scan.ErrUnknownColumn, attr)
		}
		seq, err := r.Open(ctx, h.Identity(), []int{ord}, nil)
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, h.TotalRowCount())
		for row, err := range seq {
			if err != nil {
				return nil, err
			}
			values = append(values, row.Values[0])
		}
		return values, nil
	}
}

// request builds a scan request from flags and pattern arguments.
func (h *host) request(cmd *cobra.Command, patterns []string) (scan.Request, error) {
	var req scan.Request
	flags := cmd.Flags()

	formatFlag, _ := flags.GetString("format")
	format, err := handle.ParseFormat(formatFlag)
	if err != nil {
		return req, err
	}
	known := h.loaders.Formats()
	_ = known
	for _, pattern := range patterns {
		paths, err := h.storage.Glob(cmd.Context(), pattern)
		if err != nil {
			return req, err
		}
		if len(paths) == 0 {
			return req, fmt.Errorf("%s: no matching files", pattern)
		}
		for _, p := range paths {
			ff := format
			if ff == "" {
				if ff, err = handle.DetectFormat(p); err != nil {
					return req, err
				}
			}
			req.Files = append(req.Files, handle.File{Path: p, Schema: h.schema, Format: ff})
		}
	}

	exprs, _ := flags.GetStringArray("filter")
	if req.Filters, err = predicate.ParseAll(exprs); err != nil {
		return req, err
	}
	opts, _ := flags.GetStringToString("option")
	if req.Options, err = selector.ParseOptions(opts); err != nil {
		return req, err
	}
	req.Columns, _ = flags.GetStringSlice("columns")
	return req, nil
}

// setup loads configuration and wires the host for a query command.
func setup(cmd *cobra.Command, args []string, logger *slog.Logger, filter *logging.ComponentFilterHandler) (*host, scan.Request, error) {
	cfg, err := loadConfig(cmd, filter)
	if err != nil {
		return nil, scan.Request{}, err
	}
	schemaText, _ := cmd.Flags().GetString("schema")
	s, err := schema.Parse(schemaText)
	if err != nil {
		return nil, scan.Request{}, fmt.Errorf("--schema: %w", err)
	}
	h, err := newHost(cfg, s, logger)
	if err != nil {
		return nil, scan.Request{}, err
	}
	req, err := h.request(cmd, args)
	if err != nil {
		_ = h.cache.Close()
		return nil, scan.Request{}, err
	}
	return h, req, nil
}
