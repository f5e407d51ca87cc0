package handle

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestParseAndDetectFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", "", false},
		{"auto", "", false},
		{"OAP", FormatNative, false},
		{" parquet ", FormatParquet, false},
		{"orc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("ParseFormat(%q) error %v is not ErrUnknownFormat", tt.in, err)
		}
	}

	for path, want := range map[string]Format{
		"a/b.parquet": FormatParquet,
		"x.OAP":       FormatNative,
		"part-0.data": FormatNative,
	} {
		if got, err := DetectFormat(path); err != nil || got != want {
			t.Errorf("DetectFormat(%q) = %q, %v", path, got, err)
		}
	}
	if _, err := DetectFormat("notes.txt"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("DetectFormat(notes.txt) err = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	var r Registry
	if got := r.Formats(); len(got) != 0 {
		t.Errorf("empty registry Formats = %v", got)
	}

	var loaded []Format
	loader := func(format Format) Loader {
		return LoaderFunc(func(ctx context.Context, f File) (Handle, error) {
			loaded = append(loaded, format)
			return nil, nil
		})
	}
	r.Register(FormatParquet, loader(FormatParquet))
	r.Register(FormatNative, loader(FormatNative))

	if got := r.Formats(); !slices.Equal(got, []Format{FormatNative, FormatParquet}) {
		t.Errorf("Formats = %v", got)
	}

	ctx := context.Background()
	for _, f := range []Format{FormatParquet, FormatNative} {
		if _, err := r.Load(ctx, File{Path: "f", Format: f}); err != nil {
			t.Fatal(err)
		}
	}
	if !slices.Equal(loaded, []Format{FormatParquet, FormatNative}) {
		t.Errorf("dispatched to %v", loaded)
	}
	if _, err := r.Load(ctx, File{Path: "f", Format: "orc"}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Load(orc) err = %v", err)
	}
}
