package native

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/TigerSong/OAP/internal/format"
	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/schema"
	"github.com/TigerSong/OAP/internal/stats"
	"github.com/TigerSong/OAP/internal/storage"
)

// Handle is the parsed footer of a native file, projected onto the
// declared schema it was loaded with.
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

// Loader loads native handles through an Opener.
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

	footer, err := ReadFooter(obj, obj.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return &Handle{
		id:      f.Identity(),
		rows:    footer.Rows,
		stats:   project(footer.Columns, f.Schema),
		indexes: handle.UsableIndexes(footer.Indexes, f.Schema),
	}, nil
}

// ReadFooter validates the header and trailer of a native file of the
// given size and decodes its footer.
func ReadFooter(r io.ReaderAt, size int64) (Footer, error) {
	if size < MinFileSize {
		return Footer{}, fmt.Errorf("%w: file is %d bytes", handle.ErrCorrupt, size)
	}
	var hdr [format.HeaderSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return Footer{}, err
	}
	if _, err := format.DecodeAndValidate(hdr[:], format.TypeDataFile, Version); err != nil {
		return Footer{}, fmt.Errorf("%w: header: %w", handle.ErrCorrupt, err)
	}

	var tail [trailerSize]byte
	if _, err := r.ReadAt(tail[:], size-trailerSize); err != nil {
		return Footer{}, err
	}
	n, th, err := decodeTrailer(tail[:])
	if err != nil {
		return Footer{}, err
	}
	start := size - trailerSize - int64(n)
	if start < format.HeaderSize {
		return Footer{}, fmt.Errorf("%w: footer length %d exceeds file", handle.ErrCorrupt, n)
	}
	body := make([]byte, n)
	if _, err := r.ReadAt(body, start); err != nil {
		return Footer{}, err
	}
	return DecodeFooter(body, th.Flags)
}

// project maps stored columns onto the declared schema by name. A
// declared column missing from the file, or stored with a type that
// cannot be converted exactly, gets Unknown statistics.
func project(cols []Column, s schema.Schema) stats.Set {
	byName := make(map[string]Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}
	out := make(stats.Set, s.Len())
	for i, field := range s.Fields() {
		c, ok := byName[field.Name]
		if !ok || c.Type == schema.TypeInvalid {
			out[i] = stats.Unknown()
			continue
		}
		conv, err := stats.Convert(c.Stats, c.Type, field.Type)
		if err != nil {
			out[i] = stats.Unknown()
			continue
		}
		out[i] = conv
	}
	return out
}

// WriteFile writes a native file holding data and footer. The file is
// written to a temp file and renamed into place.
func WriteFile(path string, data []byte, f Footer, compress bool) error {
	tail, err := EncodeFooter(f, compress)
	if err != nil {
		return err
	}
	hdr := format.Header{Type: format.TypeDataFile, Version: Version}.Encode()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".native-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}
	for _, b := range [][]byte{hdr[:], data, tail} {
		if _, err := tmp.Write(b); err != nil {
			cleanup()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
