package foreign

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/index"
	"github.com/TigerSong/OAP/internal/reader"
	"github.com/TigerSong/OAP/internal/schema"
)

type person struct {
	Age  int32   `parquet:"age"`
	Name *string `parquet:"name"`
}

var declared = schema.MustNew(
	schema.Field{Name: "age", Type: schema.TypeInt64},
	schema.Field{Name: "name", Type: schema.TypeString},
	schema.Field{Name: "height", Type: schema.TypeFloat64},
)

// writePeople writes n rows in row groups of size group. Every fifth name
// is null.
func writePeople(t *testing.T, n, group int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.parquet")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[person](f)
	for lo := 0; lo < n; lo += group {
		var rows []person
		for i := lo; i < min(lo+group, n); i++ {
			p := person{Age: int32(i)}
			if i%5 != 4 {
				name := fmt.Sprintf("p%d", i)
				p.Name = &name
			}
			rows = append(rows, p)
		}
		if _, err := w.Write(rows); err != nil {
			t.Fatal(err)
		}
		if err := w.Flush(); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func newReader() *Reader {
	r := NewReader(nil)
	r.Declare(declared)
	return r
}

func identity(path string) handle.Identity {
	return handle.File{Path: path, Schema: declared, Format: handle.FormatParquet}.Identity()
}

func readAll(t *testing.T, r *Reader, id handle.Identity, columns []int, rows *index.RowSet) []reader.Row {
	t.Helper()
	seq, err := r.Open(context.Background(), id, columns, rows)
	if err != nil {
		t.Fatal(err)
	}
	var out []reader.Row
	for row, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, row)
	}
	return out
}

func TestReadAll(t *testing.T) {
	path := writePeople(t, 30, 10)
	rows := readAll(t, newReader(), identity(path), []int{1, 0, 2}, nil)
	if len(rows) != 30 {
		t.Fatalf("got %d rows, want 30", len(rows))
	}
	for i, r := range rows {
		if r.ID != uint64(i) {
			t.Fatalf("row %d has id %d", i, r.ID)
		}
		if r.Values[1] != int64(i) {
			t.Errorf("row %d age = %#v", i, r.Values[1])
		}
		if r.Values[2] != nil {
			t.Errorf("row %d height = %#v, want null", i, r.Values[2])
		}
		if i%5 == 4 {
			if r.Values[0] != nil {
				t.Errorf("row %d name = %#v, want null", i, r.Values[0])
			}
		} else if r.Values[0] != fmt.Sprintf("p%d", i) {
			t.Errorf("row %d name = %#v", i, r.Values[0])
		}
	}
}

func TestReadSelectedRows(t *testing.T) {
	path := writePeople(t, 30, 10)
	// Row group 1 (ids 10-19) holds no selected row and is not read.
	want := []uint64{0, 7, 25, 29}
	rows := readAll(t, newReader(), identity(path), []int{0}, index.NewRowSet(want...))
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, r := range rows {
		if r.ID != want[i] || r.Values[0] != int64(want[i]) {
			t.Errorf("row %d = %+v", i, r)
		}
	}
	if got := readAll(t, newReader(), identity(path), []int{0}, index.NewRowSet()); len(got) != 0 {
		t.Errorf("empty selection read %d rows", len(got))
	}
}

func TestReadStopsEarly(t *testing.T) {
	path := writePeople(t, 30, 10)
	seq, err := newReader().Open(context.Background(), identity(path), []int{0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 12 {
			break
		}
	}
	if n != 12 {
		t.Errorf("read %d rows", n)
	}
	// The sequence can be iterated again.
	if again := readAll(t, newReader(), identity(path), []int{0}, nil); len(again) != 30 {
		t.Errorf("second pass read %d rows", len(again))
	}
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()
	r := newReader()

	other := handle.File{Path: "x", Schema: schema.MustNew(schema.Field{Name: "a", Type: schema.TypeBool}), Format: handle.FormatParquet}
	if _, err := r.Open(ctx, other.Identity(), nil, nil); !errors.Is(err, ErrUndeclaredSchema) {
		t.Errorf("error = %v, want ErrUndeclaredSchema", err)
	}
	if _, err := r.Open(ctx, identity("x"), []int{3}, nil); !errors.Is(err, reader.ErrColumnOrdinal) {
		t.Errorf("error = %v, want ErrColumnOrdinal", err)
	}

	seq, err := r.Open(ctx, identity(filepath.Join(t.TempDir(), "missing.parquet")), []int{0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, err := range seq {
		if err == nil {
			t.Error("missing file produced a row")
		}
	}

	garbage := filepath.Join(t.TempDir(), "garbage.parquet")
	if err := os.WriteFile(garbage, []byte("not parquet at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	seq, err = r.Open(ctx, identity(garbage), []int{0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, err := range seq {
		if !errors.Is(err, handle.ErrCorrupt) {
			t.Errorf("error = %v, want ErrCorrupt", err)
		}
	}
}
