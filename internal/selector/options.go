package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Option keys accepted by ParseOptions.
const (
	KeyOrder        = "order"
	KeyLimit        = "limit"
	KeyIndexScanNum = "indexScanNum"
	KeyGroupBy      = "groupBy"
)

var ErrBadOption = errors.New("invalid selector option")

// Options are the optimisation hints that influence index choice. The zero
// value means no hints.
type Options struct {
	// RowOrder is the attribute results are wanted in, if any.
	RowOrder string
	// Limit caps the matching rows a task needs to produce. Zero is no cap.
	Limit int
	// IndexScanLimit caps the candidate indexes considered per attribute,
	// in catalog order, before ranking. Zero is no cap.
	IndexScanLimit int
	// GroupBy is the attribute results are grouped by, if any.
	GroupBy string
}

// ParseOptions reads options from string key/value pairs. Unknown keys
// are ignored.
func ParseOptions(m map[string]string) (Options, error) {
	var o Options
	o.RowOrder = strings.TrimSpace(m[KeyOrder])
	o.GroupBy = strings.TrimSpace(m[KeyGroupBy])

	var err error
	if o.Limit, err = parseCount(m, KeyLimit); err != nil {
		return Options{}, err
	}
	if o.IndexScanLimit, err = parseCount(m, KeyIndexScanNum); err != nil {
		return Options{}, err
	}
	return o, nil
}

func parseCount(m map[string]string, key string) (int, error) {
	v, ok := m[key]
	if !ok || strings.TrimSpace(v) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrBadOption, key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrBadOption, key)
	}
	return n, nil
}

// Map returns o as key/value pairs, omitting unset hints.
func (o Options) Map() map[string]string {
	m := make(map[string]string)
	if o.RowOrder != "" {
		m[KeyOrder] = o.RowOrder
	}
	if o.Limit > 0 {
		m[KeyLimit] = strconv.Itoa(o.Limit)
	}
	if o.IndexScanLimit > 0 {
		m[KeyIndexScanNum] = strconv.Itoa(o.IndexScanLimit)
	}
	if o.GroupBy != "" {
		m[KeyGroupBy] = o.GroupBy
	}
	return m
}

func (o Options) hinted(attr string) bool {
	return attr != "" && (attr == o.RowOrder || attr == o.GroupBy)
}
