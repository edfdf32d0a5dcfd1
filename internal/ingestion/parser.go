package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/guttosm/b3lake/internal/source"
	"github.com/guttosm/b3lake/internal/yahoo"
)

// Header names recognized by FileSource, compared case-insensitively.
var (
	stampHeaders  = []string{"date", "datetime", "trade_date", "data_pregao"}
	tickerHeaders = []string{"ticker", "symbol", "acao", "codigoinstrumento"}
)

// FileSource reads bars from a CSV export instead of the network.
//
// The header must name a timestamp column and at least one of the bar fields
// (Open, High, Low, Close, Adj Close, Volume). An optional ticker column turns
// the file into a multi-ticker source; without it every row belongs to the
// single requested ticker.
//
// Fields:
//   - Path: CSV file.
//   - Comma: field delimiter. With ';' decimal commas are accepted, as in B3 exports.
type FileSource struct {
	Path  string
	Comma rune
}

var _ Fetcher = (*FileSource)(nil)

// Fetch implements Fetcher.
//
// Behavior:
//   - Rows outside [req.Start, req.End) are dropped when a range is given.
//   - With a ticker column, rows of tickers not in req.Tickers are dropped
//     (no filter when req.Tickers is empty).
//   - Empty cells become nulls. Timestamps keep their offset when present,
//     otherwise they are naive.
//   - A malformed header or a row of the wrong width fails the whole file.
func (s *FileSource) Fetch(ctx context.Context, req yahoo.Request) (source.Table, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	if s.Comma != 0 {
		r.Comma = s.Comma
	}
	r.LazyQuotes = true
	r.FieldsPerRecord = -1 // checked explicitly per line

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	layout, err := parseHeader(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}

	b := newBarSet(layout.fields)
	lineNumber := 1 // header already read
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rec, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read line after %d: %w", lineNumber, err)
		}
		lineNumber++

		if len(rec) != len(header) {
			return nil, fmt.Errorf("invalid column count on line %d: expected %d got %d", lineNumber, len(header), len(rec))
		}

		stamp := source.ParseStamp(rec[layout.stamp])
		if !inRange(stamp, req) {
			continue
		}
		ticker := ""
		if layout.ticker >= 0 {
			ticker = strings.TrimSpace(rec[layout.ticker])
			if len(req.Tickers) > 0 && !containsFold(req.Tickers, ticker) {
				continue
			}
		}

		cells := make([]any, len(layout.fields))
		for i, col := range layout.columns {
			cells[i] = s.cell(rec[col])
		}
		b.add(ticker, strings.TrimSpace(rec[layout.stamp]), stamp, cells)
	}

	if layout.ticker < 0 {
		return b.flat(), nil
	}
	return b.wide(), nil
}

// cell maps one raw value to a source cell. Empty cells are null.
func (s *FileSource) cell(raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if s.Comma == ';' && strings.Contains(v, ",") {
		v = strings.ReplaceAll(strings.ReplaceAll(v, ".", ""), ",", ".")
	}
	return v
}

type fileLayout struct {
	stamp   int
	ticker  int
	fields  []string // original header names of bar fields
	columns []int    // their positions
}

func parseHeader(header []string) (fileLayout, error) {
	l := fileLayout{stamp: -1, ticker: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case slices.Contains(stampHeaders, name):
			if l.stamp >= 0 {
				return l, fmt.Errorf("duplicate timestamp column %q", h)
			}
			l.stamp = i
		case slices.Contains(tickerHeaders, name):
			l.ticker = i
		case isBarField(name):
			l.fields = append(l.fields, strings.TrimSpace(h))
			l.columns = append(l.columns, i)
		}
	}
	if l.stamp < 0 {
		return l, fmt.Errorf("missing timestamp column (one of %s)", strings.Join(stampHeaders, ", "))
	}
	if len(l.fields) == 0 {
		return l, fmt.Errorf("no bar columns (expected some of %s)", strings.Join(yahoo.Fields, ", "))
	}
	return l, nil
}

func isBarField(name string) bool {
	for _, f := range yahoo.Fields {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return name == "adj_close"
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func inRange(s source.Stamp, req yahoo.Request) bool {
	if !s.Valid {
		// kept so the writer can count and skip it
		return req.Start == nil && req.End == nil
	}
	if req.Start != nil && s.Time.Before(*req.Start) {
		return false
	}
	if req.End != nil && !s.Time.Before(*req.End) {
		return false
	}
	return true
}

// barSet accumulates rows per ticker keyed by the raw timestamp text.
type barSet struct {
	fields  []string
	tickers []string
	stamps  []string
	index   map[string]source.Stamp
	cells   map[string]map[string][]any // ticker -> stamp -> cells
}

func newBarSet(fields []string) *barSet {
	return &barSet{fields: fields, index: map[string]source.Stamp{}, cells: map[string]map[string][]any{}}
}

func (b *barSet) add(ticker, raw string, stamp source.Stamp, cells []any) {
	if _, ok := b.cells[ticker]; !ok {
		b.tickers = append(b.tickers, ticker)
		b.cells[ticker] = map[string][]any{}
	}
	if _, ok := b.index[raw]; !ok {
		b.stamps = append(b.stamps, raw)
		b.index[raw] = stamp
	}
	b.cells[ticker][raw] = cells
}

func (b *barSet) flat() *source.Flat {
	out := &source.Flat{Columns: b.fields}
	for _, t := range b.tickers {
		for _, raw := range b.stamps {
			if cells, ok := b.cells[t][raw]; ok {
				out.Index = append(out.Index, b.index[raw])
				out.Values = append(out.Values, cells)
			}
		}
	}
	return out
}

func (b *barSet) wide() *source.Wide {
	out := &source.Wide{}
	for _, t := range b.tickers {
		for _, f := range b.fields {
			out.Columns = append(out.Columns, source.ColumnKey{Outer: t, Inner: f})
		}
	}
	for _, raw := range b.stamps {
		out.Index = append(out.Index, b.index[raw])
		row := make([]any, 0, len(out.Columns))
		for _, t := range b.tickers {
			cells, ok := b.cells[t][raw]
			if !ok {
				cells = make([]any, len(b.fields))
			}
			row = append(row, cells...)
		}
		out.Values = append(out.Values, row)
	}
	return out
}
