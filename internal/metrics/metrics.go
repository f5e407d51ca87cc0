// Package metrics counts scan outcomes for one query execution.
//
// A Context is created when a query starts, shared by all of its scan
// tasks, and read once when the query completes. Counters only grow.
package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/TigerSong/OAP/internal/outcome"
)

// Context holds the counters of one query execution. Safe for concurrent
// use by any number of tasks.
type Context struct {
	id      uuid.UUID
	started time.Time

	totalTasks atomic.Int64
	totalRows  atomic.Int64

	skipTasks atomic.Int64
	skipRows  atomic.Int64

	hitTasks       atomic.Int64
	hitRowsRead    atomic.Int64
	hitRowsSkipped atomic.Int64

	ignoreTasks atomic.Int64
	ignoreRows  atomic.Int64

	missTasks atomic.Int64
	missRows  atomic.Int64
}

// New creates a context with a fresh execution ID.
func New() *Context {
	return &Context{id: uuid.Must(uuid.NewV7()), started: time.Now()}
}

func (c *Context) ID() uuid.UUID { return c.id }

// StartTask counts a task and its file's rows. Call it once per task when
// its scan begins, before the outcome is known.
func (c *Context) StartTask(totalRows int64) {
	c.totalTasks.Add(1)
	c.totalRows.Add(totalRows)
}

// Record counts a finished task under exactly one outcome.
func (c *Context) Record(o outcome.Outcome) {
	switch o.Kind {
	case outcome.SkippedByStatistics:
		c.skipTasks.Add(1)
		c.skipRows.Add(o.RowsSkipped)
	case outcome.HitIndex:
		c.hitTasks.Add(1)
		c.hitRowsRead.Add(o.RowsRead)
		c.hitRowsSkipped.Add(o.RowsSkipped)
	case outcome.IgnoredIndex:
		c.ignoreTasks.Add(1)
		c.ignoreRows.Add(o.RowsRead)
	case outcome.MissedIndex:
		c.missTasks.Add(1)
		c.missRows.Add(o.RowsRead)
	}
}

// Snapshot is a point-in-time copy of a Context.
type Snapshot struct {
	ID      uuid.UUID
	Elapsed time.Duration

	TotalTasks int64
	TotalRows  int64

	SkipForStatisticsTasks int64
	SkipForStatisticsRows  int64

	HitIndexTasks       int64
	HitIndexRowsRead    int64
	HitIndexRowsSkipped int64

	IgnoreIndexTasks int64
	IgnoreIndexRows  int64

	MissIndexTasks int64
	MissIndexRows  int64
}

func (c *Context) Snapshot() Snapshot {
	return Snapshot{
		ID:                     c.id,
		Elapsed:                time.Since(c.started),
		TotalTasks:             c.totalTasks.Load(),
		TotalRows:              c.totalRows.Load(),
		SkipForStatisticsTasks: c.skipTasks.Load(),
		SkipForStatisticsRows:  c.skipRows.Load(),
		HitIndexTasks:          c.hitTasks.Load(),
		HitIndexRowsRead:       c.hitRowsRead.Load(),
		HitIndexRowsSkipped:    c.hitRowsSkipped.Load(),
		IgnoreIndexTasks:       c.ignoreTasks.Load(),
		IgnoreIndexRows:        c.ignoreRows.Load(),
		MissIndexTasks:         c.missTasks.Load(),
		MissIndexRows:          c.missRows.Load(),
	}
}

// Finished returns the number of tasks that recorded an outcome.
func (s Snapshot) Finished() int64 {
	return s.SkipForStatisticsTasks + s.HitIndexTasks + s.IgnoreIndexTasks + s.MissIndexTasks
}

// Tasks returns the task count for one outcome kind.
func (s Snapshot) Tasks(k outcome.Kind) int64 {
	switch k {
	case outcome.SkippedByStatistics:
		return s.SkipForStatisticsTasks
	case outcome.HitIndex:
		return s.HitIndexTasks
	case outcome.IgnoredIndex:
		return s.IgnoreIndexTasks
	case outcome.MissedIndex:
		return s.MissIndexTasks
	}
	return 0
}

// WriteText writes s in the Prometheus text exposition format, labelled
// with the execution ID.
func (s Snapshot) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}
	label := fmt.Sprintf("query=%q", s.ID.String())

	counter := func(name, help string, v int64) {
		ew.printf("# HELP oap_%s %s\n", name, help)
		ew.printf("# TYPE oap_%s counter\n", name)
		ew.printf("oap_%s{%s} %d\n", name, label, v)
	}

	counter("tasks_total", "Scan tasks started.", s.TotalTasks)
	counter("rows_total", "Rows in files whose scan started.", s.TotalRows)

	ew.printf("# HELP oap_task_outcomes_total Finished scan tasks by outcome.\n")
	ew.printf("# TYPE oap_task_outcomes_total counter\n")
	for _, k := range outcome.Kinds {
		ew.printf("oap_task_outcomes_total{%s,outcome=%q} %d\n", label, k.String(), s.Tasks(k))
	}

	ew.printf("# HELP oap_rows_read_total Rows handed to the reader by outcome.\n")
	ew.printf("# TYPE oap_rows_read_total counter\n")
	ew.printf("oap_rows_read_total{%s,outcome=%q} %d\n", label, outcome.HitIndex.String(), s.HitIndexRowsRead)
	ew.printf("oap_rows_read_total{%s,outcome=%q} %d\n", label, outcome.IgnoredIndex.String(), s.IgnoreIndexRows)
	ew.printf("oap_rows_read_total{%s,outcome=%q} %d\n", label, outcome.MissedIndex.String(), s.MissIndexRows)

	ew.printf("# HELP oap_rows_skipped_total Rows never read by outcome.\n")
	ew.printf("# TYPE oap_rows_skipped_total counter\n")
	ew.printf("oap_rows_skipped_total{%s,outcome=%q} %d\n", label, outcome.SkippedByStatistics.String(), s.SkipForStatisticsRows)
	ew.printf("oap_rows_skipped_total{%s,outcome=%q} %d\n", label, outcome.HitIndex.String(), s.HitIndexRowsSkipped)

	ew.printf("# HELP oap_query_duration_seconds Wall time of the query so far.\n")
	ew.printf("# TYPE oap_query_duration_seconds gauge\n")
	ew.printf("oap_query_duration_seconds{%s} %.3f\n", label, s.Elapsed.Seconds())
	return ew.err
}

// errWriter keeps the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
