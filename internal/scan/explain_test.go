package scan

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/TigerSong/OAP/internal/cache"
	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
	"github.com/TigerSong/OAP/internal/predicate"
)

// countingOpener fails the test if Explain opens an index.
type countingOpener struct{ t *testing.T }

func (o countingOpener) Open(context.Context, handle.Handle, handle.IndexDescriptor) (index.Scanner, error) {
	o.t.Error("Explain opened an index")
	return nil, index.ErrIndexNotFound
}

func TestExplainModes(t *testing.T) {
	fx := newFixture()
	low := fx.people(t, "low.oap", 100, 0, ageBTree)
	high := fx.people(t, "high.oap", 100, 1000)
	missing := handle.File{Path: "missing.oap", Schema: people, Format: handle.FormatNative}

	e := New(cache.New(fx, nil, nil), countingOpener{t}, nil, defaults(), nil)
	plan, err := e.Explain(context.Background(), Request{
		Files: []handle.File{low, high, missing},
		Filters: []predicate.Expr{
			predicate.Lt("age", int64(50)),
			predicate.Or(predicate.IsNull("name"), predicate.Eq("age", int64(3))),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Files) != 3 {
		t.Fatalf("got %d file plans", len(plan.Files))
	}

	lp := plan.Files[0]
	if lp.Mode != ModeIndexDriven || lp.Rows != 100 {
		t.Errorf("low: mode %s, rows %d", lp.Mode, lp.Rows)
	}
	if len(lp.Choices) != 1 || lp.Choices[0].Index.Name != "age_btree" {
		t.Errorf("low choices = %v", lp.Choices)
	}
	if len(lp.Eligible) != 1 || len(lp.Residual) != 1 {
		t.Errorf("low eligible = %v, residual = %v", lp.Eligible, lp.Residual)
	}

	hp := plan.Files[1]
	if hp.Mode != ModeSkipped || !strings.Contains(hp.SkipReason, "age < 50") {
		t.Errorf("high: mode %s, reason %q", hp.Mode, hp.SkipReason)
	}

	if mp := plan.Files[2]; mp.Error == "" || mp.Mode != "" {
		t.Errorf("missing: %+v", mp)
	}

	var buf bytes.Buffer
	if err := plan.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"mode: index-driven", "mode: skipped", "age -> age_btree", "residual:", "error:"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan text missing %q:\n%s", want, out)
		}
	}
}

func TestExplainSequential(t *testing.T) {
	fx := newFixture()
	f := fx.people(t, "p.oap", 10, 0, nameHash)
	e := New(cache.New(fx, nil, nil), fx.indexes, fx.reader, defaults(), nil)
	plan, err := e.Explain(context.Background(), Request{
		Files:   []handle.File{f},
		Filters: []predicate.Expr{predicate.Gt("name", "n3")},
	})
	if err != nil {
		t.Fatal(err)
	}
	fp := plan.Files[0]
	if fp.Mode != ModeSequential || len(fp.Choices) != 0 {
		t.Errorf("mode %s, choices %v", fp.Mode, fp.Choices)
	}
	// The eligible filter has no index, so it is residual too.
	if len(fp.Residual) != 1 {
		t.Errorf("residual = %v", fp.Residual)
	}
}
