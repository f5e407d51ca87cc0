// Package native reads the metadata footer of the native columnar file
// format.
//
// File layout:
//
//	header   (4 bytes, format.TypeDataFile)
//	data     (opaque row groups, not interpreted here)
//	footer   (msgpack document, zstd compressed when FlagCompressed is set)
//	length   (uint32 little-endian, footer size in bytes)
//	trailer  (4 bytes, format.TypeFooter, flags)
//
// The footer holds the row count, one statistics entry per stored column
// and the index catalog.
package native

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/TigerSong/OAP/internal/format"
	"github.com/TigerSong/OAP/internal/handle"
	"github.com/TigerSong/OAP/internal/schema"
	"github.com/TigerSong/OAP/internal/stats"
)

const (
	Version = 0x01

	lengthSize  = 4
	trailerSize = lengthSize + format.HeaderSize

	// MinFileSize is a header, an empty footer and the trailer.
	MinFileSize = format.HeaderSize + trailerSize

	// maxFooterSize bounds allocation when the length word is corrupt.
	maxFooterSize = 64 << 20
)

var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	var err error
	zstdEnc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("zstd: init encoder: " + err.Error())
	}
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// Column is one stored column and its statistics.
type Column struct {
	Name  string
	Type  schema.Type
	Stats stats.Column
}

// Footer is the decoded metadata of a native file.
type Footer struct {
	Rows    int64
	Columns []Column
	Indexes []handle.IndexDescriptor
}

// footerDoc is the msgpack wire form. Bounds carry explicit presence
// flags so an empty string bound survives the round trip.
type footerDoc struct {
	Rows    int64                    `msgpack:"rows"`
	Columns []columnDoc              `msgpack:"columns"`
	Indexes []handle.IndexDescriptor `msgpack:"indexes"`
}

type columnDoc struct {
	Name       string `msgpack:"name"`
	Type       string `msgpack:"type"`
	Min        []byte `msgpack:"min,omitempty"`
	Max        []byte `msgpack:"max,omitempty"`
	HasMin     bool   `msgpack:"has_min"`
	HasMax     bool   `msgpack:"has_max"`
	HasNonNull bool   `msgpack:"has_non_null"`
}

// EncodeFooter returns the footer, length word and trailer to append after
// a file's data section.
func EncodeFooter(f Footer, compress bool) ([]byte, error) {
	doc := footerDoc{Rows: f.Rows, Indexes: f.Indexes}
	for _, c := range f.Columns {
		doc.Columns = append(doc.Columns, columnDoc{
			Name:       c.Name,
			Type:       c.Type.String(),
			Min:        c.Stats.Min,
			Max:        c.Stats.Max,
			HasMin:     c.Stats.Min != nil,
			HasMax:     c.Stats.Max != nil,
			HasNonNull: c.Stats.HasNonNull,
		})
	}
	body, err := msgpack.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encode footer: %w", err)
	}
	var flags byte
	if compress {
		body = zstdEnc.EncodeAll(body, nil)
		flags |= format.FlagCompressed
	}
	if len(body) > maxFooterSize {
		return nil, fmt.Errorf("footer too large: %d bytes", len(body))
	}

	out := make([]byte, 0, len(body)+trailerSize)
	out = append(out, body...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	hdr := format.Header{Type: format.TypeFooter, Version: Version, Flags: flags}.Encode()
	return append(out, hdr[:]...), nil
}

// decodeTrailer validates the last trailerSize bytes of a file and returns
// the footer length and header.
func decodeTrailer(b []byte) (uint32, format.Header, error) {
	if len(b) != trailerSize {
		return 0, format.Header{}, fmt.Errorf("%w: trailer is %d bytes", handle.ErrCorrupt, len(b))
	}
	h, err := format.DecodeAndValidate(b[lengthSize:], format.TypeFooter, Version)
	if err != nil {
		return 0, format.Header{}, fmt.Errorf("%w: trailer: %w", handle.ErrCorrupt, err)
	}
	n := binary.LittleEndian.Uint32(b[:lengthSize])
	if n > maxFooterSize {
		return 0, format.Header{}, fmt.Errorf("%w: footer length %d", handle.ErrCorrupt, n)
	}
	return n, h, nil
}

// DecodeFooter parses a footer body written by EncodeFooter.
func DecodeFooter(body []byte, flags byte) (Footer, error) {
	if flags&format.FlagCompressed != 0 {
		var err error
		body, err = zstdDec.DecodeAll(body, nil)
		if err != nil {
			return Footer{}, fmt.Errorf("%w: decompress footer: %w", handle.ErrCorrupt, err)
		}
	}
	var doc footerDoc
	if err := msgpack.Unmarshal(body, &doc); err != nil {
		return Footer{}, fmt.Errorf("%w: decode footer: %w", handle.ErrCorrupt, err)
	}
	if doc.Rows < 0 {
		return Footer{}, fmt.Errorf("%w: negative row count %d", handle.ErrCorrupt, doc.Rows)
	}

	f := Footer{Rows: doc.Rows, Indexes: doc.Indexes}
	for _, c := range doc.Columns {
		col := Column{Name: c.Name, Stats: stats.Column{HasNonNull: c.HasNonNull}}
		t, err := schema.ParseType(c.Type)
		if err != nil {
			// Unknown stored type: keep the column, prove nothing about it.
			col.Stats = stats.Unknown()
		} else {
			col.Type = t
		}
		if c.HasMin && col.Type != schema.TypeInvalid {
			col.Stats.Min = nonNil(c.Min)
		}
		if c.HasMax && col.Type != schema.TypeInvalid {
			col.Stats.Max = nonNil(c.Max)
		}
		f.Columns = append(f.Columns, col)
	}
	return f, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
