// Package foreign reads rows of Parquet files for a scan.
//
// Columns are matched to the declared schema by top-level name, as the
// handle loader does for statistics. A declared column missing from the
// file reads as null.
package foreign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
	"github.com/TigerSong/OAP/internal/reader"
	"github.com/TigerSong/OAP/internal/schema"
	"github.com/TigerSong/OAP/internal/storage"
)

var ErrUndeclaredSchema = errors.New("schema not declared to reader")

const batchSize = 256

// Reader reads Parquet rows through an Opener. Identities carry only a
// schema fingerprint, so every schema the reader may see is declared up
// front with Declare. Safe for concurrent use.
type Reader struct {
	opener storage.Opener

	mu      sync.RWMutex
	schemas map[uint64]schema.Schema
}

var _ reader.Reader = (*Reader)(nil)

// NewReader returns a reader using opener, or the local filesystem when
// opener is nil.
func NewReader(opener storage.Opener) *Reader {
	if opener == nil {
		opener = storage.Local{}
	}
	return &Reader{opener: opener, schemas: make(map[uint64]schema.Schema)}
}

// Declare registers s for identities carrying its fingerprint.
func (r *Reader) Declare(s schema.Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Fingerprint()] = s
}

// Open validates the request and returns the rows. The file is opened
// each time the sequence is iterated.
func (r *Reader) Open(ctx context.Context, id handle.Identity, columns []int, rows *index.RowSet) (iter.Seq2[reader.Row, error], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	s, ok := r.schemas[id.Schema]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUndeclaredSchema)
	}
	fields := make([]schema.Field, len(columns))
	for i, ord := range columns {
		if ord < 0 || ord >= s.Len() {
			return nil, fmt.Errorf("%w: %d", reader.ErrColumnOrdinal, ord)
		}
		fields[i] = s.Field(ord)
	}

	return func(yield func(reader.Row, error) bool) {
		if err := r.scan(ctx, id.Path, fields, rows, yield); err != nil {
			yield(reader.Row{}, err)
		}
	}, nil
}

// errStopped ends a scan whose consumer stopped iterating.
var errStopped = errors.New("stopped")

func (r *Reader) scan(ctx context.Context, path string, fields []schema.Field, rows *index.RowSet, yield func(reader.Row, error) bool) error {
	obj, err := r.opener.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = obj.Close() }()

	pf, err := parquet.OpenFile(obj, obj.Size(), parquet.SkipBloomFilters(true))
	if err != nil {
		return fmt.Errorf("%s: %w: %w", path, handle.ErrCorrupt, err)
	}

	// leaf[i] is the file column holding fields[i], or -1.
	leaf := make([]int, len(fields))
	for i, f := range fields {
		leaf[i] = -1
		if lc, ok := pf.Schema().Lookup(f.Name); ok && len(lc.Path) == 1 {
			leaf[i] = lc.ColumnIndex
		}
	}

	var base uint64
	for _, rg := range pf.RowGroups() {
		n := uint64(rg.NumRows())
		if rows != nil && !overlaps(rows, base, base+n) {
			base += n
			continue
		}
		err := readGroup(ctx, rg, base, fields, leaf, rows, yield)
		if errors.Is(err, errStopped) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		base += n
	}
	return nil
}

// overlaps reports whether rows holds any id in [lo, hi).
func overlaps(rows *index.RowSet, lo, hi uint64) bool {
	for id := range rows.From(lo).All() {
		return id < hi
	}
	return false
}

func readGroup(ctx context.Context, rg parquet.RowGroup, base uint64, fields []schema.Field, leaf []int, rows *index.RowSet, yield func(reader.Row, error) bool) error {
	rr := rg.Rows()
	defer func() { _ = rr.Close() }()

	byColumn := make(map[int]int, len(leaf))
	for i, c := range leaf {
		if c >= 0 {
			byColumn[c] = i
		}
	}

	buf := make([]parquet.Row, batchSize)
	id := base
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := rr.ReadRows(buf)
		for _, prow := range buf[:n] {
			rowID := id
			id++
			if rows != nil && !rows.Contains(rowID) {
				continue
			}
			values := make([]any, len(fields))
			for _, v := range prow {
				i, ok := byColumn[v.Column()]
				if !ok || v.IsNull() {
					continue
				}
				cv, cerr := convert(v, fields[i].Type)
				if cerr != nil {
					return fmt.Errorf("row %d column %s: %w", rowID, fields[i].Name, cerr)
				}
				values[i] = cv
			}
			if !yield(reader.Row{ID: rowID, Values: values}, nil) {
				return errStopped
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// convert turns a Parquet value into the canonical value of the declared
// type. Byte slices are copied; the row buffer is reused.
func convert(v parquet.Value, t schema.Type) (any, error) {
	var raw any
	switch v.Kind() {
	case parquet.Boolean:
		raw = v.Boolean()
	case parquet.Int32:
		raw = v.Int32()
	case parquet.Int64:
		raw = v.Int64()
	case parquet.Float:
		raw = v.Float()
	case parquet.Double:
		raw = v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		raw = bytes.Clone(v.ByteArray())
	default:
		return nil, fmt.Errorf("unsupported parquet kind %s", v.Kind())
	}
	return schema.Coerce(t, raw)
}
