package scan

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/predicate"
	"github.com/TigerSong/OAP/internal/selector"
)

// Scan modes reported by Explain.
const (
	ModeSkipped     = "skipped"
	ModeIndexDriven = "index-driven"
	ModeSequential  = "sequential"
)

// Plan describes how a request would be executed.
type Plan struct {
	Filters []predicate.Expr
	Options selector.Options
	Files   []FilePlan
}

// FilePlan describes the execution plan for a single file.
type FilePlan struct {
	File       handle.Identity
	Rows       int64
	Mode       string // "skipped", "index-driven" or "sequential"
	SkipReason string
	Eligible   []predicate.Expr
	// Residual are the filters no chosen index answers. Every filter is
	// still re-checked on read.
	Residual []predicate.Expr
	Choices  []selector.Choice
	Error    string // load failure; the other fields are unset
}

// Explain returns the plan for req without opening any index or reading
// any row. Handles are loaded through the cache, so explaining warms it.
// A file that fails to load is reported in its FilePlan.
func (e *Engine) Explain(ctx context.Context, req Request) (*Plan, error) {
	opts := e.options(req.Options)
	plan := &Plan{Filters: req.Filters, Options: opts}
	for _, f := range req.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plan.Files = append(plan.Files, e.explainFile(ctx, req, opts, f))
	}
	return plan, nil
}

func (e *Engine) explainFile(ctx context.Context, req Request, opts selector.Options, f handle.File) FilePlan {
	fp := FilePlan{File: f.Identity()}
	ref, err := e.cache.Get(ctx, f)
	if err != nil {
		fp.Error = err.Error()
		return fp
	}
	defer ref.Release()
	h := ref.Handle()
	fp.Rows = h.TotalRowCount()

	for _, flt := range req.Filters {
		skip, problems := predicate.CanSkipFile(h.ColumnStatistics(), flt, f.Schema)
		if problems != nil {
			e.reportProblems(fp.File, problems)
		}
		if skip {
			fp.Mode = ModeSkipped
			fp.SkipReason = fmt.Sprintf("statistics rule out %s", flt)
			return fp
		}
	}

	eligible, rest := predicate.Partition(req.Filters, f.Schema)
	sp := selector.Select(eligible, handle.UsableIndexes(h.Indexes(), f.Schema), opts, e.cfg.Scan.MaxIndexCandidates)
	fp.Eligible = eligible
	fp.Choices = sp.Choices
	fp.Residual = rest
	covered := make(map[string]bool, len(sp.Choices))
	for _, c := range sp.Choices {
		covered[c.Attribute] = true
	}
	for _, flt := range eligible {
		if attr, _ := predicate.IsIndexEligible(flt); !covered[attr] {
			fp.Residual = append(fp.Residual, flt)
		}
	}

	if sp.Usable() {
		fp.Mode = ModeIndexDriven
	} else {
		fp.Mode = ModeSequential
	}
	return fp
}

// WriteText writes a human-readable rendering of the plan.
func (p *Plan) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "filters: %s\n", exprList(p.Filters))
	if hints := p.Options.Map(); len(hints) > 0 {
		fmt.Fprintf(&b, "options: %v\n", hints)
	}
	for _, fp := range p.Files {
		fmt.Fprintf(&b, "\n%s\n", fp.File)
		if fp.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", fp.Error)
			continue
		}
		fmt.Fprintf(&b, "  rows: %d\n  mode: %s\n", fp.Rows, fp.Mode)
		if fp.Mode == ModeSkipped {
			fmt.Fprintf(&b, "  reason: %s\n", fp.SkipReason)
			continue
		}
		for _, c := range fp.Choices {
			fmt.Fprintf(&b, "  index: %s -> %s [%s]\n", c.Attribute, c.Index, exprList(c.Filters))
		}
		if len(fp.Residual) > 0 {
			fmt.Fprintf(&b, "  residual: %s\n", exprList(fp.Residual))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func exprList(exprs []predicate.Expr) string {
	if len(exprs) == 0 {
		return "(none)"
	}
	parts := make([]string, len(exprs))
	for i, x := range exprs {
		parts[i] = x.String()
	}
	return strings.Join(parts, " AND ")
}
