// Package tidy reshapes raw source tables into canonical schema rows.
package tidy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/internal/schema"
	"github.com/guttosm/b3lake/internal/source"
)

// UnknownTicker is attached to single-ticker tables when no ticker was requested.
const UnknownTicker = "UNKNOWN"

// ErrUnsupportedSource is returned for source.Table values that are neither Wide nor Flat.
var ErrUnsupportedSource = errors.New("unsupported source table shape")

var fieldAliases = map[string]string{
	"open":      schema.ColOpen,
	"high":      schema.ColHigh,
	"low":       schema.ColLow,
	"close":     schema.ColClose,
	"adj close": schema.ColAdjClose,
	"adj_close": schema.ColAdjClose,
	"volume":    schema.ColVolume,
}

// canonicalField maps a raw column name to a canonical field, or "" when the column is dropped.
func canonicalField(name string) string {
	return fieldAliases[strings.ToLower(strings.TrimSpace(name))]
}

// Normalizer converts source tables to canonical tables. The logger receives
// debug output about timezone assumptions.
type Normalizer struct {
	Log zerolog.Logger
}

// Normalize runs a Normalizer with logging disabled.
func Normalize(src source.Table, tickers []string) (*schema.Table, error) {
	return Normalizer{Log: zerolog.Nop()}.Normalize(src, tickers)
}

// Normalize reshapes src into canonical rows.
//
// Parameters:
//   - src: a *source.Wide or *source.Flat table.
//   - tickers: the tickers originally requested, used only to tell the ticker
//     level of a wide table apart from the field level, and to label flat tables.
//
// Returns:
//   - *schema.Table: rows ordered by index, then by ticker first appearance.
//   - error: when src is ragged or of an unknown shape.
//
// Behavior:
//   - Zoned stamps are converted to UTC. Naive stamps keep their wall clock as UTC.
//   - Timestamps are truncated to the millisecond.
//   - Unparseable timestamps stay in the output with Valid=false.
//   - Unparseable prices become NaN. Volume falls back to 0 and is never negative.
//   - An empty source yields an empty table and no error.
func (n Normalizer) Normalize(src source.Table, tickers []string) (*schema.Table, error) {
	if src == nil || src.Rows() == 0 {
		return &schema.Table{}, nil
	}
	if err := src.Check(); err != nil {
		return nil, err
	}

	var rows []schema.Row
	var index []source.Stamp
	switch t := src.(type) {
	case *source.Wide:
		index = t.Index
		rows = n.fromWide(t, tickers)
	case *source.Flat:
		index = t.Index
		ticker := UnknownTicker
		if len(tickers) > 0 {
			ticker = tickers[0]
		}
		rows = fromFlat(t, ticker)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, src)
	}

	naive := 0
	for _, s := range index {
		if s.Valid && !s.Zoned {
			naive++
		}
	}
	if naive > 0 {
		n.Log.Debug().Int("stamps", naive).Msg("timezone-naive trade_date values assumed to be UTC")
	}
	return &schema.Table{Rows: rows}, nil
}

// DetectTickerLevel returns the column level (0 or 1) holding ticker symbols.
//
// Each level scores the number of distinct requested tickers found among its
// values, compared case-insensitively. The higher score wins; ties, including
// zero matches, resolve to level 0.
func DetectTickerLevel(cols []source.ColumnKey, tickers []string) int {
	want := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		want[strings.ToUpper(strings.TrimSpace(t))] = struct{}{}
	}
	score := func(level int) int {
		seen := make(map[string]struct{})
		for _, c := range cols {
			v := strings.ToUpper(strings.TrimSpace(c.Level(level)))
			if _, ok := want[v]; ok {
				seen[v] = struct{}{}
			}
		}
		return len(seen)
	}
	if score(1) > score(0) {
		return 1
	}
	return 0
}

// fieldColumns maps canonical field name to the column position holding it.
type fieldColumns map[string]int

func (n Normalizer) fromWide(w *source.Wide, tickers []string) []schema.Row {
	tickerLevel := DetectTickerLevel(w.Columns, tickers)
	fieldLevel := 1 - tickerLevel

	var order []string
	byTicker := make(map[string]fieldColumns)
	for j, c := range w.Columns {
		tk := c.Level(tickerLevel)
		fc, ok := byTicker[tk]
		if !ok {
			fc = fieldColumns{}
			byTicker[tk] = fc
			order = append(order, tk)
		}
		f := canonicalField(c.Level(fieldLevel))
		if f == "" {
			continue
		}
		if _, dup := fc[f]; !dup {
			fc[f] = j
		}
	}

	rows := make([]schema.Row, 0, len(w.Index)*len(order))
	for i, stamp := range w.Index {
		for _, tk := range order {
			rows = append(rows, buildRow(stamp, tk, w.Values[i], byTicker[tk]))
		}
	}
	return rows
}

func fromFlat(f *source.Flat, ticker string) []schema.Row {
	fc := fieldColumns{}
	for j, c := range f.Columns {
		name := canonicalField(c)
		if name == "" {
			continue
		}
		if _, dup := fc[name]; !dup {
			fc[name] = j
		}
	}
	rows := make([]schema.Row, 0, len(f.Index))
	for i, stamp := range f.Index {
		rows = append(rows, buildRow(stamp, ticker, f.Values[i], fc))
	}
	return rows
}

func buildRow(stamp source.Stamp, ticker string, cells []any, fc fieldColumns) schema.Row {
	cell := func(field string) any {
		j, ok := fc[field]
		if !ok {
			return nil
		}
		return cells[j]
	}
	ts, valid := NormalizeStamp(stamp)
	return schema.Row{
		TradeDate: ts,
		Valid:     valid,
		Ticker:    ticker,
		Open:      ToFloat(cell(schema.ColOpen)),
		High:      ToFloat(cell(schema.ColHigh)),
		Low:       ToFloat(cell(schema.ColLow)),
		Close:     ToFloat(cell(schema.ColClose)),
		AdjClose:  ToFloat(cell(schema.ColAdjClose)),
		Volume:    ToVolume(cell(schema.ColVolume)),
	}
}

// NormalizeStamp converts an index value to a UTC, millisecond-precision instant.
//
// Zoned values are converted to UTC. Naive values are not converted: their wall
// clock is taken to already be UTC.
func NormalizeStamp(s source.Stamp) (time.Time, bool) {
	if !s.Valid {
		return time.Time{}, false
	}
	t := s.Time
	if s.Zoned {
		t = t.UTC()
	} else {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	}
	return t.Truncate(time.Millisecond), true
}

// ToFloat coerces a cell to float64. Unparseable or null cells become NaN.
func ToFloat(v any) float64 {
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// ToVolume coerces a cell to a non-negative int64.
// Nulls, unparseable values, NaN, infinities and negatives become 0. Fractions are truncated.
func ToVolume(v any) int64 {
	switch x := v.(type) {
	case int64:
		return max(x, 0)
	case int:
		return max(int64(x), 0)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return max(i, 0)
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return max(i, 0)
		}
	}
	f := ToFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}
