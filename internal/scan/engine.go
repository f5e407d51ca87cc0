// Package scan drives filtered scans over a set of columnar files.
//
// Each file is one task. A task loads the file's handle through the
// shared cache, tries to skip the file from its column statistics, picks
// indexes for the eligible filters, narrows the rows to read, and reads
// them. Every task that starts is counted in the query's metrics context
// and, when it finishes, classified under exactly one outcome.
//
// Rows are always re-checked against every filter after reading, so the
// index and statistics paths only decide how much is read, never what is
// emitted.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/TigerSong/OAP/internal/cache"
	"github.com/TigerSong/OAP/internal/config"
	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
	"github.com/TigerSong/OAP/internal/logging"
	"github.com/TigerSong/OAP/internal/metrics"
	"github.com/TigerSong/OAP/internal/outcome"
	"github.com/TigerSong/OAP/internal/predicate"
	"github.com/TigerSong/OAP/internal/reader"
	"github.com/TigerSong/OAP/internal/schema"
	"github.com/TigerSong/OAP/internal/selector"
)

var ErrUnknownColumn = errors.New("unknown column")

// Request is one query over a set of files.
type Request struct {
	Files []handle.File
	// Filters are implicitly ANDed.
	Filters []predicate.Expr
	// Options override the configured selection hints field by field.
	Options selector.Options
	// Columns is the projection, by name. Empty means every declared column.
	Columns []string
}

// Row is one emitted row. Values follow the request's projection.
type Row struct {
	File   handle.Identity
	ID     uint64
	Values []any
}

// EmitFunc receives matching rows. Calls are serialized. Returning an
// error stops the query.
type EmitFunc func(Row) error

// TaskResult describes how one file was scanned.
type TaskResult struct {
	File    handle.Identity
	Plan    selector.ScanPlan
	Outcome outcome.Outcome
	Emitted int64
}

// Report is the result of Run.
type Report struct {
	Metrics metrics.Snapshot
	// Tasks has one entry per request file, in request order. A task that
	// failed before finishing has a zero Outcome.
	Tasks []TaskResult
}

// Engine runs scans. It is safe for concurrent use.
type Engine struct {
	cache    *cache.Cache
	scanners index.Opener
	reader   reader.Reader
	cfg      config.Config
	logger   *slog.Logger

	problems   *rate.Limiter
	suppressed atomic.Int64
}

// New creates an engine. scanners may be nil, in which case every file is
// read without an index.
func New(c *cache.Cache, scanners index.Opener, r reader.Reader, cfg config.Config, logger *slog.Logger) *Engine {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Engine{
		cache:    c,
		scanners: scanners,
		reader:   r,
		cfg:      cfg,
		logger:   logging.Component(logger, "scan-engine"),
		problems: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// options fills unset request hints from configuration.
func (e *Engine) options(o selector.Options) selector.Options {
	if o.RowOrder == "" {
		o.RowOrder = e.cfg.Scan.RowOrder
	}
	if o.Limit == 0 {
		o.Limit = e.cfg.Scan.Limit
	}
	if o.IndexScanLimit == 0 {
		o.IndexScanLimit = e.cfg.Scan.IndexScanLimit
	}
	if o.GroupBy == "" {
		o.GroupBy = e.cfg.Scan.GroupBy
	}
	return o
}

// Run scans every file in req and emits matching rows. Tasks run in
// parallel up to the configured limit; the first task error cancels the
// rest. The report is returned even when err is non-nil.
func (e *Engine) Run(ctx context.Context, req Request, emit EmitFunc) (*Report, error) {
	mc := metrics.New()
	report := &Report{Tasks: make([]TaskResult, len(req.Files))}
	opts := e.options(req.Options)

	var emitMu sync.Mutex
	serialized := func(r Row) error {
		emitMu.Lock()
		defer emitMu.Unlock()
		return emit(r)
	}

	e.logger.Debug("query started", "query", mc.ID(), "files", len(req.Files), "filters", len(req.Filters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for i, f := range req.Files {
		report.Tasks[i].File = f.Identity()
		g.Go(func() error {
			res, err := e.runTask(gctx, mc, req, opts, f, serialized)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
			report.Tasks[i] = res
			return nil
		})
	}
	err := g.Wait()

	report.Metrics = mc.Snapshot()
	e.logger.Debug("query finished", "query", mc.ID(),
		"tasks", report.Metrics.TotalTasks, "rows", report.Metrics.TotalRows,
		"elapsed", report.Metrics.Elapsed, "error", err)
	return report, err
}

func (e *Engine) runTask(ctx context.Context, mc *metrics.Context, req Request, opts selector.Options, f handle.File, emit EmitFunc) (TaskResult, error) {
	proj, err := projection(f.Schema, req.Columns)
	if err != nil {
		return TaskResult{}, err
	}

	ref, err := e.cache.Get(ctx, f)
	if err != nil {
		return TaskResult{}, err
	}
	defer ref.Release()
	h := ref.Handle()

	res := TaskResult{File: h.Identity()}
	total := h.TotalRowCount()
	mc.StartTask(total)
	obs := outcome.Observation{TotalRows: total}

	skip, problems := predicate.CanSkipWithFilters(h.ColumnStatistics(), req.Filters, f.Schema)
	if problems != nil {
		e.reportProblems(res.File, problems)
	}
	if skip {
		res.Outcome = outcome.Classify(obs)
		mc.Record(res.Outcome)
		return res, nil
	}

	eligible, _ := predicate.Partition(req.Filters, f.Schema)
	res.Plan = selector.Select(eligible, handle.UsableIndexes(h.Indexes(), f.Schema), opts, e.cfg.Scan.MaxIndexCandidates)

	rows, err := e.narrow(ctx, h, res.Plan)
	if err != nil {
		return res, err
	}
	if rows != nil && e.ignore(rows.Len(), total) {
		e.logger.Debug("index result too wide, reading whole file",
			"file", res.File, "rows", rows.Len(), "total", total)
		obs.IgnoreIndex = true
		rows = nil
	}

	read, emitted, err := e.read(ctx, f, h.Identity(), req.Filters, proj, rows, opts.Limit, emit)
	if err != nil {
		return res, err
	}
	obs.ReaderInvoked = true
	if rows != nil {
		obs.RowsReadByIndex = &read
	}
	res.Emitted = emitted
	res.Outcome = outcome.Classify(obs)
	mc.Record(res.Outcome)
	return res, nil
}

// narrow opens the chosen indexes and intersects their row ids. It
// returns nil when no index applies, including when an index turns out
// to be missing or unable to answer its filters.
func (e *Engine) narrow(ctx context.Context, h handle.Handle, plan selector.ScanPlan) (*index.RowSet, error) {
	if !plan.Usable() || e.scanners == nil {
		return nil, nil
	}
	var (
		scanners []index.Scanner
		filters  [][]predicate.Expr
	)
	for _, c := range plan.Choices {
		sc, err := e.scanners.Open(ctx, h, c.Index)
		if errors.Is(err, index.ErrIndexNotFound) {
			e.logger.Debug("index not found", "file", h.Identity(), "index", c.Index.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open index %s: %w", c.Index.Name, err)
		}
		scanners = append(scanners, sc)
		filters = append(filters, c.Filters)
	}
	rows, err := index.Narrow(ctx, scanners, filters)
	if errors.Is(err, index.ErrUnsupportedFilter) {
		e.logger.Debug("index cannot answer filters", "file", h.Identity(), "error", err)
		return nil, nil
	}
	return rows, err
}

// ignore reports whether an index result keeps too much of the file to
// be worth reading row by row.
func (e *Engine) ignore(selected int, total int64) bool {
	ratio := e.cfg.IgnoreIndexRatio
	return ratio > 0 && total > 0 && float64(selected) > ratio*float64(total)
}

// read reads rows (all of them when rows is nil), keeps those matching
// every filter and emits their projection, up to limit when positive. It
// returns the rows read and the rows emitted.
func (e *Engine) read(ctx context.Context, f handle.File, id handle.Identity, filters []predicate.Expr, proj []int, rows *index.RowSet, limit int, emit EmitFunc) (int64, int64, error) {
	cols, names := required(f.Schema, filters, proj)
	seq, err := e.reader.Open(ctx, id, cols, rows)
	if err != nil {
		return 0, 0, err
	}

	var read, emitted int64
	row := make(predicate.Row, len(cols))
	for r, err := range seq {
		if err != nil {
			return read, emitted, err
		}
		read++
		for i, name := range names {
			row[name] = r.Values[i]
		}
		if !matchesAll(filters, row) {
			continue
		}
		values := make([]any, len(proj))
		for i := range proj {
			values[i] = r.Values[i]
		}
		if err := emit(Row{File: id, ID: r.ID, Values: values}); err != nil {
			return read, emitted, err
		}
		emitted++
		if limit > 0 && emitted >= int64(limit) {
			break
		}
	}
	return read, emitted, nil
}

func matchesAll(filters []predicate.Expr, row predicate.Row) bool {
	for _, f := range filters {
		if !predicate.Matches(f, row) {
			return false
		}
	}
	return true
}

// projection resolves column names to ordinals.
func projection(s schema.Schema, columns []string) ([]int, error) {
	if len(columns) == 0 {
		out := make([]int, s.Len())
		for i := range out {
			out[i] = i
		}
		return out, nil
	}
	out := make([]int, len(columns))
	for i, name := range columns {
		ord, _, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		out[i] = ord
	}
	return out, nil
}

// required returns the ordinals to read: the projection first, then any
// declared column a filter refers to. names is parallel to cols.
func required(s schema.Schema, filters []predicate.Expr, proj []int) (cols []int, names []string) {
	cols = slices.Clone(proj)
	for _, ord := range cols {
		names = append(names, s.Field(ord).Name)
	}
	for _, f := range filters {
		for _, attr := range predicate.Attributes(f) {
			ord, _, ok := s.Lookup(attr)
			if !ok || slices.Contains(cols, ord) {
				continue
			}
			cols = append(cols, ord)
			names = append(names, attr)
		}
	}
	return cols, names
}

// reportProblems logs statistics problems met while testing a file for
// skipping. Bursts are rate limited; dropped reports are counted and
// included in the next one that gets through.
func (e *Engine) reportProblems(id handle.Identity, err error) {
	if !e.problems.Allow() {
		e.suppressed.Add(1)
		return
	}
	e.logger.Warn("statistics not usable for skipping",
		"file", id, "error", err, "suppressed", e.suppressed.Swap(0))
}
