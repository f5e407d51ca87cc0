// Package outcome classifies how a scan task read its file.
package outcome

import "fmt"

// Kind is the path a scan task took. Every task has exactly one.
type Kind int

const (
	// SkippedByStatistics: statistics proved no row can match and the
	// reader was never invoked.
	SkippedByStatistics Kind = iota + 1
	// HitIndex: an index narrowed the rows handed to the reader.
	HitIndex
	// IgnoredIndex: an index was usable but deliberately bypassed.
	IgnoredIndex
	// MissedIndex: no index applied and the file was read in full.
	MissedIndex
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{SkippedByStatistics, HitIndex, IgnoredIndex, MissedIndex}

func (k Kind) String() string {
	switch k {
	case SkippedByStatistics:
		return "skipped_by_statistics"
	case HitIndex:
		return "hit_index"
	case IgnoredIndex:
		return "ignored_index"
	case MissedIndex:
		return "missed_index"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Outcome is the classified result of one task. RowsSkipped is nonzero
// only for SkippedByStatistics and HitIndex.
type Outcome struct {
	Kind        Kind
	RowsRead    int64
	RowsSkipped int64
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s(read=%d, skipped=%d)", o.Kind, o.RowsRead, o.RowsSkipped)
}

// Observation is what a scan task knows once it has finished.
type Observation struct {
	// TotalRows is the file's row count from its footer.
	TotalRows int64
	// ReaderInvoked is false when the file was skipped before reading.
	ReaderInvoked bool
	// RowsReadByIndex is the number of rows an index narrowed the read
	// to, or nil when no index result was used.
	RowsReadByIndex *int64
	// IgnoreIndex is set when a usable index was bypassed on purpose.
	IgnoreIndex bool
}

// Classify maps an observation to exactly one outcome. A skip wins over
// everything, then an index result, then a deliberate bypass.
func Classify(o Observation) Outcome {
	switch {
	case !o.ReaderInvoked:
		return Outcome{Kind: SkippedByStatistics, RowsSkipped: o.TotalRows}
	case o.RowsReadByIndex != nil:
		read := *o.RowsReadByIndex
		return Outcome{Kind: HitIndex, RowsRead: read, RowsSkipped: max(o.TotalRows-read, 0)}
	case o.IgnoreIndex:
		return Outcome{Kind: IgnoredIndex, RowsRead: o.TotalRows}
	default:
		return Outcome{Kind: MissedIndex, RowsRead: o.TotalRows}
	}
}
