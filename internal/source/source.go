// Package source describes the raw tables handed to the normalizer by a market data fetcher.
//
// A table is one of two shapes:
//   - Wide: multi-ticker, two-level column keys, one level holding ticker symbols
//     and the other the field names. Which level is which is not known up front.
//   - Flat: single ticker, plain field-name columns.
package source

import (
	"fmt"
	"strings"
	"time"
)

// Stamp is one value of a table's time index.
//
// Zoned reports whether the value carried explicit offset information. Naive
// stamps hold their wall clock in a UTC time.Time. Valid is false for values
// that could not be parsed.
type Stamp struct {
	Time  time.Time
	Zoned bool
	Valid bool
}

// Zoned builds an offset-aware stamp.
func Zoned(t time.Time) Stamp { return Stamp{Time: t, Zoned: true, Valid: true} }

// Naive builds a stamp without offset information from its wall clock.
func Naive(year int, month time.Month, day, hour, min, sec, nsec int) Stamp {
	return Stamp{Time: time.Date(year, month, day, hour, min, sec, nsec, time.UTC), Valid: true}
}

// Invalid is an unparseable index value.
var Invalid = Stamp{}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseStamp parses a textual index value.
//
// Values with an explicit offset or a trailing Z are zoned; plain dates and
// date-times are naive. Fractional seconds are accepted anywhere after the
// seconds field. Anything else yields an invalid stamp.
func ParseStamp(s string) Stamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return Invalid
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Zoned(t)
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Stamp{Time: t, Valid: true}
		}
	}
	return Invalid
}

// ColumnKey is one column of a wide table: an (outer, inner) pair of level values.
type ColumnKey struct {
	Outer string
	Inner string
}

// Level returns the value of level 0 (Outer) or level 1 (Inner).
func (k ColumnKey) Level(i int) string {
	if i == 0 {
		return k.Outer
	}
	return k.Inner
}

// Table is implemented by Wide and Flat only.
type Table interface {
	// Rows reports the number of index entries.
	Rows() int
	// Check verifies the table is rectangular.
	Check() error
	sealed()
}

// Wide is a multi-ticker table with two-level column keys.
// Values[i][j] is the cell at Index[i], Columns[j].
type Wide struct {
	Index   []Stamp
	Columns []ColumnKey
	Values  [][]any
}

// Rows implements Table.
func (w *Wide) Rows() int {
	if w == nil {
		return 0
	}
	return len(w.Index)
}

// Check implements Table.
func (w *Wide) Check() error {
	if w == nil {
		return nil
	}
	return checkShape(len(w.Index), len(w.Columns), w.Values)
}

func (*Wide) sealed() {}

// Flat is a single-ticker table with plain column names.
type Flat struct {
	Index   []Stamp
	Columns []string
	Values  [][]any
}

// Rows implements Table.
func (f *Flat) Rows() int {
	if f == nil {
		return 0
	}
	return len(f.Index)
}

// Check implements Table.
func (f *Flat) Check() error {
	if f == nil {
		return nil
	}
	return checkShape(len(f.Index), len(f.Columns), f.Values)
}

func (*Flat) sealed() {}

func checkShape(rows, cols int, values [][]any) error {
	if len(values) != rows {
		return fmt.Errorf("source table has %d index values but %d value rows", rows, len(values))
	}
	for i, row := range values {
		if len(row) != cols {
			return fmt.Errorf("source row %d has %d cells, want %d", i, len(row), cols)
		}
	}
	return nil
}
