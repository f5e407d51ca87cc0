// Package selector chooses which indexes a scan uses.
//
// Selection is a pure function of its inputs: the same filters, catalog,
// options and candidate cap always produce the same plan.
package selector

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/predicate"
)

// Choice is the index picked for one attribute and the filters it answers.
type Choice struct {
	Attribute string
	Index     handle.IndexDescriptor
	Filters   []predicate.Expr
	Shape     predicate.ShapeKind
}

// ScanPlan is the outcome of selection. A plan with no choices means no
// index is usable; the scan reads the file without one.
type ScanPlan struct {
	Choices []Choice
	// HitKinds maps each chosen attribute to its index kind. Row ids from
	// the chosen indexes are combined by intersection.
	HitKinds map[string]handle.Kind
}

func (p ScanPlan) Usable() bool { return len(p.Choices) > 0 }

func (p ScanPlan) String() string {
	if !p.Usable() {
		return "no index usable"
	}
	parts := make([]string, len(p.Choices))
	for i, c := range p.Choices {
		parts[i] = fmt.Sprintf("%s via %s", c.Attribute, c.Index)
	}
	return strings.Join(parts, ", ")
}

// Unknown kinds rank after every known kind.
const unknownPenalty = 100

// penalty ranks an index kind for a filter shape; lower is better. ok is
// false when the kind cannot answer the shape at all.
func penalty(k handle.Kind, shape predicate.ShapeKind, hinted bool) (int, bool) {
	if hinted && k == handle.KindBTree {
		// Sorted access serves the order or grouping hint as well.
		return -1, true
	}
	switch shape {
	case predicate.ShapePoint:
		switch k {
		case handle.KindHash:
			return 0, true
		case handle.KindBitmap:
			return 1, true
		case handle.KindBTree:
			return 2, true
		}
	case predicate.ShapeNullTest:
		switch k {
		case handle.KindBitmap:
			return 0, true
		case handle.KindBTree:
			return 1, true
		case handle.KindHash:
			return 2, true
		}
	default:
		switch k {
		case handle.KindBTree:
			return 0, true
		case handle.KindBitmap:
			return 1, true
		case handle.KindHash:
			return 0, false
		}
	}
	return unknownPenalty, true
}

// group is the eligible filters bound to one attribute.
type group struct {
	attr    string
	filters []predicate.Expr
	best    predicate.ShapeKind
	// pointOnly is set when every filter is a point lookup or null test,
	// which is all a hash index can answer.
	pointOnly bool
}

func groupFilters(eligible []predicate.Expr) []*group {
	byAttr := make(map[string]*group)
	for _, f := range eligible {
		attr, ok := predicate.IsIndexEligible(f)
		if !ok {
			continue
		}
		g := byAttr[attr]
		if g == nil {
			g = &group{attr: attr, best: predicate.ShapeOther, pointOnly: true}
			byAttr[attr] = g
		}
		s := predicate.Shape(f)
		g.filters = append(g.filters, f)
		g.best = min(g.best, s)
		if s != predicate.ShapePoint && s != predicate.ShapeNullTest {
			g.pointOnly = false
		}
	}
	out := make([]*group, 0, len(byAttr))
	for _, attr := range slices.Sorted(maps.Keys(byAttr)) {
		out = append(out, byAttr[attr])
	}
	return out
}

// Select builds the scan plan for eligible filters against a file's
// catalog. Filters that are not index-eligible are ignored. At most
// maxCandidates attributes get an index; zero means no cap.
func Select(eligible []predicate.Expr, catalog []handle.IndexDescriptor, opts Options, maxCandidates int) ScanPlan {
	groups := groupFilters(eligible)
	slices.SortStableFunc(groups, func(a, b *group) int {
		ha, hb := opts.hinted(a.attr), opts.hinted(b.attr)
		if ha != hb {
			if ha {
				return -1
			}
			return 1
		}
		return cmp.Or(cmp.Compare(a.best, b.best), strings.Compare(a.attr, b.attr))
	})

	plan := ScanPlan{HitKinds: make(map[string]handle.Kind)}
	for _, g := range groups {
		if maxCandidates > 0 && len(plan.Choices) == maxCandidates {
			break
		}
		d, ok := best(g, candidates(g.attr, catalog, opts.IndexScanLimit), opts.hinted(g.attr))
		if !ok {
			continue
		}
		plan.Choices = append(plan.Choices, Choice{
			Attribute: g.attr,
			Index:     d,
			Filters:   g.filters,
			Shape:     g.best,
		})
		plan.HitKinds[g.attr] = d.Kind
	}
	return plan
}

// candidates returns catalog entries led by attr, in catalog order, cut to
// limit when positive.
func candidates(attr string, catalog []handle.IndexDescriptor, limit int) []handle.IndexDescriptor {
	var out []handle.IndexDescriptor
	for _, d := range catalog {
		if d.Leading() != attr {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// best ranks candidates by kind penalty, then by fewer covered attributes,
// then by name.
func best(g *group, cands []handle.IndexDescriptor, hinted bool) (handle.IndexDescriptor, bool) {
	type ranked struct {
		d       handle.IndexDescriptor
		penalty int
	}
	var usable []ranked
	for _, d := range cands {
		if d.Kind == handle.KindHash && !g.pointOnly {
			continue
		}
		p, ok := penalty(d.Kind, g.best, hinted)
		if !ok {
			continue
		}
		usable = append(usable, ranked{d, p})
	}
	if len(usable) == 0 {
		return handle.IndexDescriptor{}, false
	}
	r := slices.MinFunc(usable, func(a, b ranked) int {
		return cmp.Or(
			cmp.Compare(a.penalty, b.penalty),
			cmp.Compare(len(a.d.Attributes), len(b.d.Attributes)),
			strings.Compare(a.d.Name, b.d.Name),
		)
	})
	return r.d, true
}
