package index

import (
	"iter"
	"slices"
	"sort"
)

// RowSet is an immutable ascending set of row ids.
type RowSet struct {
	ids []uint64
}

// NewRowSet builds a set from ids in any order.
func NewRowSet(ids ...uint64) *RowSet {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	return &RowSet{ids: slices.Compact(ids)}
}

// Collect drains seq into a set. Already sorted input is kept as is.
func Collect(seq iter.Seq[uint64]) *RowSet {
	ids := slices.Collect(seq)
	if !slices.IsSorted(ids) {
		slices.Sort(ids)
	}
	return &RowSet{ids: slices.Compact(ids)}
}

func (s *RowSet) Len() int { return len(s.ids) }

// All yields the ids in ascending order.
func (s *RowSet) All() iter.Seq[uint64] { return slices.Values(s.ids) }

// IDs returns a copy of the ids.
func (s *RowSet) IDs() []uint64 { return slices.Clone(s.ids) }

func (s *RowSet) Contains(id uint64) bool {
	_, ok := slices.BinarySearch(s.ids, id)
	return ok
}

// From returns the ids >= lo.
func (s *RowSet) From(lo uint64) *RowSet {
	i := sort.Search(len(s.ids), func(i int) bool {
		return s.ids[i] >= lo
	})
	return &RowSet{ids: s.ids[i:]}
}

// Intersect returns the ids present in both sets.
func (s *RowSet) Intersect(o *RowSet) *RowSet {
	a, b := s.ids, o.ids
	var result []uint64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] == b[j] {
			result = append(result, a[i])
			i++
			j++
		} else if a[i] < b[j] {
			i++
		} else {
			j++
		}
	}
	return &RowSet{ids: result}
}
