// Package handle defines the parsed metadata of one physical file: its row
// count, per-column statistics and index catalog.
//
// Consumers depend only on the Handle interface. The native and foreign
// columnar formats are separate subpackages that register a Loader.
package handle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/TigerSong/OAP/internal/schema"
	"github.com/TigerSong/OAP/internal/stats"
)

var (
	ErrUnknownFormat = errors.New("unknown file format")
	ErrCorrupt       = errors.New("corrupt file metadata")
)

// Format tags the reader implementation for a file.
type Format string

const (
	FormatNative  Format = "native"
	FormatParquet Format = "parquet"
)

// ParseFormat parses a format name. "auto" and "" return the empty format,
// which DetectFormat resolves per path.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "native", "oap":
		return FormatNative, nil
	case "parquet":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectFormat guesses the format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet, nil
	case ".oap", ".data":
		return FormatNative, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Identity is the cache key for a handle. The same path read with a
// different schema or format is a different identity.
type Identity struct {
	Path   string
	Schema uint64
	Format Format
}

func (id Identity) String() string {
	return fmt.Sprintf("%s:%s#%016x", id.Format, id.Path, id.Schema)
}

// File is a request to load a handle: where the file is, the declared
// schema it is read with, and the reader implementation.
type File struct {
	Path   string
	Schema schema.Schema
	Format Format
}

// Identity derives the cache key for f.
func (f File) Identity() Identity {
	return Identity{Path: f.Path, Schema: f.Schema.Fingerprint(), Format: f.Format}
}

// Kind is an index kind.
type Kind string

const (
	KindBTree  Kind = "btree"
	KindBitmap Kind = "bitmap"
	KindHash   Kind = "hash"
)

// IndexDescriptor describes one index in a file's catalog.
type IndexDescriptor struct {
	Name       string   `json:"name" msgpack:"name"`
	Attributes []string `json:"attributes" msgpack:"attributes"`
	Kind       Kind     `json:"kind" msgpack:"kind"`
}

// Leading returns the first covered attribute, or "".
func (d IndexDescriptor) Leading() string {
	if len(d.Attributes) == 0 {
		return ""
	}
	return d.Attributes[0]
}

func (d IndexDescriptor) String() string {
	return fmt.Sprintf("%s(%s) %s", d.Name, strings.Join(d.Attributes, ","), d.Kind)
}

// Handle is the parsed, immutable metadata of one file. Implementations
// must be safe for concurrent reads.
type Handle interface {
	Identity() Identity
	TotalRowCount() int64
	// ColumnStatistics has one entry per declared schema column, by ordinal.
	ColumnStatistics() stats.Set
	Indexes() []IndexDescriptor
}

// Static is a Handle over values already in memory.
type Static struct {
	ID      Identity
	Rows    int64
	Stats   stats.Set
	Catalog []IndexDescriptor
}

func (s *Static) Identity() Identity          { return s.ID }
func (s *Static) TotalRowCount() int64        { return s.Rows }
func (s *Static) ColumnStatistics() stats.Set { return s.Stats }
func (s *Static) Indexes() []IndexDescriptor  { return s.Catalog }

// UsableIndexes drops catalog entries with no attributes or with an
// attribute missing from s. The catalog order is kept.
func UsableIndexes(catalog []IndexDescriptor, s schema.Schema) []IndexDescriptor {
	return slices.DeleteFunc(slices.Clone(catalog), func(d IndexDescriptor) bool {
		if d.Name == "" || len(d.Attributes) == 0 {
			return true
		}
		for _, a := range d.Attributes {
			if _, _, ok := s.Lookup(a); !ok {
				return true
			}
		}
		return false
	})
}

// Loader builds the handle for a file. Load is expensive (it reads and
// parses a footer) and is called through the handle cache.
type Loader interface {
	Load(ctx context.Context, f File) (Handle, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, f File) (Handle, error)

func (fn LoaderFunc) Load(ctx context.Context, f File) (Handle, error) {
	return fn(ctx, f)
}

// Registry dispatches Load on File.Format. The zero value is empty and
// ready to use.
type Registry struct {
	mu      sync.RWMutex
	loaders map[Format]Loader
}

// Register installs the loader for format, replacing any previous one.
func (r *Registry) Register(format Format, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaders == nil {
		r.loaders = make(map[Format]Loader)
	}
	r.loaders[format] = l
}

// Formats returns the registered formats, sorted.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, 0, len(r.loaders))
	for f := range r.loaders {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Load(ctx context.Context, f File) (Handle, error) {
	r.mu.RLock()
	l, ok := r.loaders[f.Format]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f.Format)
	}
	return l.Load(ctx, f)
}
