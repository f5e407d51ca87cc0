// Package foreign loads handles for Parquet files. Row count and column
// statistics come from the Parquet footer; the index catalog is stored as
// JSON under the CatalogKey key/value metadata entry.
package foreign

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/schema"
	"github.com/TigerSong/OAP/internal/stats"
	"github.com/TigerSong/OAP/internal/storage"
)

// CatalogKey is the key/value metadata entry holding the index catalog.
const CatalogKey = "oap.index.catalog"

// Handle is the parsed footer of a Parquet file.
type Handle struct {
	id      handle.Identity
	rows    int64
	stats   stats.Set
	indexes []handle.IndexDescriptor
}

func (h *Handle) Identity() handle.Identity         { return h.id }
func (h *Handle) TotalRowCount() int64              { return h.rows }
func (h *Handle) ColumnStatistics() stats.Set       { return h.stats }
func (h *Handle) Indexes() []handle.IndexDescriptor { return h.indexes }

// Loader loads Parquet handles through an Opener.
type Loader struct {
	Opener storage.Opener
}

// NewLoader returns a loader reading through opener, or the local
// filesystem when opener is nil.
func NewLoader(opener storage.Opener) *Loader {
	if opener == nil {
		opener = storage.Local{}
	}
	return &Loader{Opener: opener}
}

func (l *Loader) Load(ctx context.Context, f handle.File) (handle.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, err := l.Opener.Open(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = obj.Close() }()

	// Only the footer is needed; page indexes and bloom filters stay unread.
	pf, err := parquet.OpenFile(obj, obj.Size(),
		parquet.SkipPageIndex(true),
		parquet.SkipBloomFilters(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", f.Path, handle.ErrCorrupt, err)
	}

	var catalog []handle.IndexDescriptor
	if raw, ok := pf.Lookup(CatalogKey); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &catalog); err != nil {
			return nil, fmt.Errorf("%s: %w: index catalog: %w", f.Path, handle.ErrCorrupt, err)
		}
	}

	return &Handle{
		id:      f.Identity(),
		rows:    pf.NumRows(),
		stats:   Statistics(pf.Metadata(), f.Schema),
		indexes: handle.UsableIndexes(catalog, f.Schema),
	}, nil
}

// Statistics merges the per-row-group statistics of md into one entry per
// column of s. Columns are matched by top-level name. A column gets
// Unknown statistics when it is missing, nested, unsigned, of a physical
// type with no exact conversion, or when any row group lacks bounds.
func Statistics(md *format.FileMetaData, s schema.Schema) stats.Set {
	out := make(stats.Set, s.Len())
	leaves := topLevelLeaves(md.Schema)
	for i, field := range s.Fields() {
		out[i] = stats.Unknown()
		el, ok := leaves[field.Name]
		if !ok {
			continue
		}
		phys, ok := physicalType(el)
		if !ok {
			continue
		}
		merged, ok := mergeRowGroups(md.RowGroups, field.Name, phys)
		if !ok {
			continue
		}
		conv, err := stats.Convert(merged, phys, field.Type)
		if err != nil {
			continue
		}
		out[i] = conv
	}
	return out
}

func mergeRowGroups(groups []format.RowGroup, name string, phys schema.Type) (stats.Column, bool) {
	acc := stats.AllNull()
	for gi := range groups {
		cc := findChunk(&groups[gi], name)
		if cc == nil {
			return stats.Column{}, false
		}
		c, ok := chunkStats(cc, phys)
		if !ok {
			return stats.Column{}, false
		}
		merged, err := stats.Merge(phys, acc, c)
		if err != nil {
			return stats.Column{}, false
		}
		acc = merged
	}
	return acc, true
}

// chunkStats reads one column chunk's statistics. A chunk holding
// non-null values without both bounds proves nothing.
func chunkStats(cc *format.ColumnChunk, phys schema.Type) (stats.Column, bool) {
	md := &cc.MetaData
	st := &md.Statistics
	if md.NumValues <= st.NullCount {
		return stats.AllNull(), true
	}
	lo, hi := st.MinValue, st.MaxValue
	if lo == nil && hi == nil && phys.Numeric() {
		// Legacy min/max fields use signed order, which is correct for
		// numeric physical types only.
		lo, hi = st.Min, st.Max
	}
	if lo == nil || hi == nil {
		return stats.Column{}, false
	}
	return stats.Column{Min: lo, Max: hi, HasNonNull: true}, true
}

func findChunk(rg *format.RowGroup, name string) *format.ColumnChunk {
	for i := range rg.Columns {
		path := rg.Columns[i].MetaData.PathInSchema
		if len(path) == 1 && path[0] == name {
			return &rg.Columns[i]
		}
	}
	return nil
}

// physicalType maps a leaf's physical type to the schema type its plain
// encoded statistics decode as.
func physicalType(el format.SchemaElement) (schema.Type, bool) {
	if el.Type == nil {
		return schema.TypeInvalid, false
	}
	if lt := el.LogicalType; lt != nil && lt.Integer != nil && !lt.Integer.IsSigned {
		return schema.TypeInvalid, false
	}
	switch *el.Type {
	case format.Boolean:
		return schema.TypeBool, true
	case format.Int32:
		return schema.TypeInt32, true
	case format.Int64:
		return schema.TypeInt64, true
	case format.Float:
		return schema.TypeFloat32, true
	case format.Double:
		return schema.TypeFloat64, true
	case format.ByteArray:
		if lt := el.LogicalType; lt != nil && lt.UTF8 != nil {
			return schema.TypeString, true
		}
		return schema.TypeBinary, true
	}
	return schema.TypeInvalid, false
}

// topLevelLeaves returns the direct primitive children of the schema root
// by name.
func topLevelLeaves(els []format.SchemaElement) map[string]format.SchemaElement {
	out := make(map[string]format.SchemaElement)
	if len(els) == 0 {
		return out
	}
	i := 1
	for range els[0].NumChildren {
		if i >= len(els) {
			break
		}
		if els[i].NumChildren == 0 {
			out[els[i].Name] = els[i]
		}
		i = skipSubtree(els, i)
	}
	return out
}

func skipSubtree(els []format.SchemaElement, i int) int {
	n := els[i].NumChildren
	i++
	for range n {
		if i >= len(els) {
			return i
		}
		i = skipSubtree(els, i)
	}
	return i
}
