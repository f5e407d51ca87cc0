// Package config describes how a scan host is set up: index selection
// defaults, the handle cache, object storage and parallelism.
//
// Config is loaded once at startup. Command-line flags override loaded
// values before Validate is called.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Store persists configuration.
type Store interface {
	// Load reads the configuration. Returns nil if nothing exists.
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}

// Cache policies.
const (
	PolicyUnbounded = "unbounded"
	PolicyLRU       = "lru"
	PolicyTTL       = "ttl"
)

// Config is the full host configuration.
type Config struct {
	Scan    Scan    `json:"scan"`
	Cache   Cache   `json:"cache"`
	Storage Storage `json:"storage"`
	Logging Logging `json:"logging"`

	// Parallelism is the number of scan tasks run at once.
	Parallelism int `json:"parallelism"`

	// IgnoreIndexRatio bypasses an index whose result keeps more than this
	// fraction of a file's rows. Zero never bypasses.
	IgnoreIndexRatio float64 `json:"ignoreIndexRatio"`
}

// Scan holds index selection defaults. Per-request options override the
// hints.
type Scan struct {
	MaxIndexCandidates int    `json:"maxIndexCandidates"`
	RowOrder           string `json:"rowOrder,omitempty"`
	Limit              int    `json:"limit,omitempty"`
	IndexScanLimit     int    `json:"indexScanLimit,omitempty"`
	GroupBy            string `json:"groupBy,omitempty"`
}

// Cache configures the shared handle cache.
type Cache struct {
	Policy      string   `json:"policy"`
	Capacity    int      `json:"capacity,omitempty"`
	TTL         Duration `json:"ttl,omitempty"`
	LoadTimeout Duration `json:"loadTimeout,omitempty"`
	// SweepSchedule is a Go duration or a six-field cron expression. Empty
	// disables the periodic sweep.
	SweepSchedule string `json:"sweepSchedule,omitempty"`
	// Watch invalidates cached handles when local files change.
	Watch bool `json:"watch"`
}

// Storage configures where files are read from.
type Storage struct {
	S3 *S3 `json:"s3,omitempty"`
}

// S3 configures an S3-compatible object store for s3:// paths.
type S3 struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
	Region    string `json:"region,omitempty"`
	Secure    bool   `json:"secure"`
}

// Logging configures the base log level and per-component overrides.
type Logging struct {
	Level      string            `json:"level"`
	Components map[string]string `json:"components,omitempty"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Scan: Scan{MaxIndexCandidates: 4},
		Cache: Cache{
			Policy:        PolicyLRU,
			Capacity:      1024,
			SweepSchedule: "0 */5 * * * *",
		},
		Logging:          Logging{Level: "info"},
		Parallelism:      8,
		IgnoreIndexRatio: 0.8,
	}
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Scan.MaxIndexCandidates < 0 {
		add("scan.maxIndexCandidates must not be negative")
	}
	if c.Scan.Limit < 0 {
		add("scan.limit must not be negative")
	}
	if c.Scan.IndexScanLimit < 0 {
		add("scan.indexScanLimit must not be negative")
	}
	if c.Parallelism < 1 {
		add("parallelism must be at least 1")
	}
	if c.IgnoreIndexRatio < 0 || c.IgnoreIndexRatio > 1 {
		add("ignoreIndexRatio must be within [0, 1]")
	}

	switch c.Cache.Policy {
	case PolicyUnbounded:
	case PolicyLRU:
		if c.Cache.Capacity < 1 {
			add("cache.capacity must be at least 1 for the lru policy")
		}
	case PolicyTTL:
		if c.Cache.TTL <= 0 {
			add("cache.ttl must be positive for the ttl policy")
		}
	default:
		add("unknown cache.policy %q", c.Cache.Policy)
	}
	if c.Cache.LoadTimeout < 0 {
		add("cache.loadTimeout must not be negative")
	}
	if err := ValidateSchedule(c.Cache.SweepSchedule); err != nil {
		add("cache.sweepSchedule: %w", err)
	}

	if s3 := c.Storage.S3; s3 != nil && strings.TrimSpace(s3.Endpoint) == "" {
		add("storage.s3.endpoint is required")
	}
	return errors.Join(errs...)
}

// ValidateSchedule accepts an empty string, a positive Go duration or a
// cron expression with five or six fields.
func ValidateSchedule(s string) error {
	if s == "" {
		return nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return fmt.Errorf("interval must be positive")
		}
		return nil
	}
	cr := gocron.NewDefaultCron(true)
	if err := cr.IsValid(s, time.UTC, time.Now()); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
