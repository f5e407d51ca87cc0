// Package storage opens data files for random access, on local disk or in
// an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var ErrNotFound = errors.New("object not found")

// Object is an open file supporting random reads.
type Object interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Opener opens objects by path.
type Opener interface {
	Open(ctx context.Context, path string) (Object, error)
}

// Globber expands a pattern into object paths, sorted.
type Globber interface {
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// Local opens files on the local filesystem.
type Local struct{}

type localObject struct {
	*os.File
	size int64
}

func (o *localObject) Size() int64 { return o.size }

func (Local) Open(_ context.Context, path string) (Object, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	return &localObject{File: f, size: info.Size()}, nil
}

// Glob expands doublestar patterns ("data/**/*.parquet"). A pattern without
// meta characters is returned as is if the file exists.
func (Local) Glob(_ context.Context, pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	slices.Sort(matches)
	return matches, nil
}

// Mux routes s3:// paths to S3 and everything else to Local.
type Mux struct {
	Local Local
	S3    *S3 // nil disables s3:// paths
}

func (m *Mux) Open(ctx context.Context, path string) (Object, error) {
	if IsS3(path) {
		if m.S3 == nil {
			return nil, fmt.Errorf("%s: object storage is not configured", path)
		}
		return m.S3.Open(ctx, path)
	}
	return m.Local.Open(ctx, path)
}

func (m *Mux) Glob(ctx context.Context, pattern string) ([]string, error) {
	if IsS3(pattern) {
		if m.S3 == nil {
			return nil, fmt.Errorf("%s: object storage is not configured", pattern)
		}
		return m.S3.Glob(ctx, pattern)
	}
	return m.Local.Glob(ctx, pattern)
}

// IsS3 reports whether path is an s3:// URL.
func IsS3(path string) bool {
	return strings.HasPrefix(path, "s3://")
}
