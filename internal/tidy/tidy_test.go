package tidy

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/internal/schema"
	"github.com/guttosm/b3lake/internal/source"
)

var brt = time.FixedZone("America/Sao_Paulo", -3*3600)

func flat(index []source.Stamp, cols []string, values ...[]any) *source.Flat {
	return &source.Flat{Index: index, Columns: cols, Values: values}
}

func TestNormalize_TimezoneAsymmetry(t *testing.T) {
	cases := []struct {
		name  string
		stamp source.Stamp
		want  time.Time
	}{
		{"zoned converts to UTC", source.Zoned(time.Date(2026, 1, 16, 10, 0, 0, 0, brt)), time.Date(2026, 1, 16, 13, 0, 0, 0, time.UTC)},
		{"naive keeps wall clock", source.Naive(2026, 1, 16, 10, 0, 0, 0), time.Date(2026, 1, 16, 10, 0, 0, 0, time.UTC)},
		{"zoned crosses day boundary", source.Zoned(time.Date(2026, 1, 16, 22, 30, 0, 0, brt)), time.Date(2026, 1, 17, 1, 30, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tbl, err := Normalize(flat([]source.Stamp{c.stamp}, []string{"Close"}, []any{1.0}), []string{"VALE3.SA"})
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			got := tbl.Rows[0].TradeDate
			if !got.Equal(c.want) || got.Location() != time.UTC {
				t.Fatalf("trade_date=%v, want %v (UTC)", got, c.want)
			}
		})
	}
}

func TestNormalize_MixedAwarenessPerElement(t *testing.T) {
	idx := []source.Stamp{
		source.Zoned(time.Date(2026, 1, 16, 10, 0, 0, 0, brt)),
		source.Naive(2026, 1, 16, 10, 0, 0, 0),
	}
	tbl, err := Normalize(flat(idx, []string{"Close"}, []any{1.0}, []any{2.0}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Rows[0].TradeDate.Hour() != 13 || tbl.Rows[1].TradeDate.Hour() != 10 {
		t.Fatalf("unexpected hours: %v %v", tbl.Rows[0].TradeDate, tbl.Rows[1].TradeDate)
	}
}

func TestNormalize_TruncatesToMillisecond(t *testing.T) {
	stamp := source.Naive(2026, 1, 16, 10, 0, 0, 123_999_999)
	tbl, err := Normalize(flat([]source.Stamp{stamp}, []string{"Close"}, []any{1.0}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if ns := tbl.Rows[0].TradeDate.Nanosecond(); ns != 123_000_000 {
		t.Fatalf("nanosecond=%d, want truncation to 123000000", ns)
	}
}

func TestNormalize_FlatSchemaAndTicker(t *testing.T) {
	idx := []source.Stamp{source.Naive(2026, 1, 16, 10, 0, 0, 0), source.Invalid}
	cols := []string{" Open ", "HIGH", "Low", "Close", "Adj Close", "Volume", "Dividends"}
	tbl, err := Normalize(flat(idx, cols,
		[]any{"10.5", 11.0, float32(9.5), 10, json.Number("10.2"), "1000", 0.5},
		[]any{nil, "x", nil, nil, nil, nil, nil},
	), []string{"PETR4.SA", "VALE3.SA"})
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("rows=%d, want 2", tbl.Len())
	}
	r := tbl.Rows[0]
	if r.Ticker != "PETR4.SA" || r.Open != 10.5 || r.High != 11 || r.Low != 9.5 || r.Close != 10 || r.AdjClose != 10.2 || r.Volume != 1000 {
		t.Fatalf("unexpected row: %+v", r)
	}
	bad := tbl.Rows[1]
	if bad.Valid || !math.IsNaN(bad.High) || !math.IsNaN(bad.Open) || bad.Volume != 0 {
		t.Fatalf("invalid row not coerced: %+v", bad)
	}
}

func TestNormalize_FlatWithoutTickersIsUnknown(t *testing.T) {
	tbl, err := Normalize(flat([]source.Stamp{source.Naive(2026, 1, 16, 0, 0, 0, 0)}, []string{"close"}, []any{1.0}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Rows[0].Ticker != UnknownTicker {
		t.Fatalf("ticker=%q, want %q", tbl.Rows[0].Ticker, UnknownTicker)
	}
}

func TestNormalize_MissingFieldsAreNull(t *testing.T) {
	tbl, err := Normalize(flat([]source.Stamp{source.Naive(2026, 1, 16, 0, 0, 0, 0)}, []string{"adj_close"}, []any{3.0}), []string{"X"})
	if err != nil {
		t.Fatal(err)
	}
	r := tbl.Rows[0]
	for name, v := range map[string]float64{"open": r.Open, "high": r.High, "low": r.Low, "close": r.Close} {
		if !math.IsNaN(v) {
			t.Fatalf("%s should be null, got %v", name, v)
		}
	}
	if r.AdjClose != 3 || r.Volume != 0 {
		t.Fatalf("unexpected row: %+v", r)
	}
}

func wideFixture(swap bool) *source.Wide {
	tickers := []string{"VALE3.SA", "PETR4.SA"}
	fields := []string{"Open", "Close", "Adj Close", "Volume"}
	var cols []source.ColumnKey
	for _, tk := range tickers {
		for _, f := range fields {
			if swap {
				cols = append(cols, source.ColumnKey{Outer: f, Inner: tk})
			} else {
				cols = append(cols, source.ColumnKey{Outer: tk, Inner: f})
			}
		}
	}
	return &source.Wide{
		Index: []source.Stamp{
			source.Zoned(time.Date(2026, 1, 16, 10, 0, 0, 0, brt)),
			source.Zoned(time.Date(2026, 1, 17, 10, 0, 0, 0, brt)),
		},
		Columns: cols,
		Values: [][]any{
			{60.1, 61.0, 60.9, 1000.0, 38.0, 38.5, 38.4, 2000.0},
			{61.0, 62.0, 61.9, nil, 38.5, 39.0, 38.9, -5.0},
		},
	}
}

func TestNormalize_WideLevelSwapIsDeterministic(t *testing.T) {
	tickers := []string{"vale3.sa", "PETR4.SA"}
	a, err := Normalize(wideFixture(false), tickers)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Normalize(wideFixture(true), tickers)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 4 {
		t.Fatalf("rows=%d, want 4", a.Len())
	}
	if !reflect.DeepEqual(rowsKey(a), rowsKey(b)) {
		t.Fatalf("swapped levels differ:\n%v\n%v", rowsKey(a), rowsKey(b))
	}
	wantOrder := []string{"VALE3.SA", "PETR4.SA", "VALE3.SA", "PETR4.SA"}
	for i, r := range a.Rows {
		if r.Ticker != wantOrder[i] {
			t.Fatalf("row %d ticker=%q, want %q", i, r.Ticker, wantOrder[i])
		}
	}
	if a.Rows[0].AdjClose != 60.9 || a.Rows[1].Volume != 2000 {
		t.Fatalf("values misaligned: %+v", a.Rows[:2])
	}
	if a.Rows[2].Volume != 0 || a.Rows[3].Volume != 0 {
		t.Fatalf("null/negative volume must be 0: %+v", a.Rows[2:])
	}
}

func rowsKey(tbl *schema.Table) []string {
	out := make([]string, 0, tbl.Len())
	for _, r := range tbl.Rows {
		out = append(out, r.TradeDate.Format(time.RFC3339)+"|"+r.Ticker+"|"+
			formatFloat(r.Open)+"|"+formatFloat(r.Close)+"|"+formatFloat(r.AdjClose)+"|"+
			formatFloat(float64(r.Volume)))
	}
	return out
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	b, _ := json.Marshal(f)
	return string(b)
}

func TestDetectTickerLevel(t *testing.T) {
	cols := []source.ColumnKey{{Outer: "Close", Inner: "VALE3.SA"}, {Outer: "Close", Inner: "PETR4.SA"}, {Outer: "Open", Inner: "VALE3.SA"}}
	cases := []struct {
		name    string
		cols    []source.ColumnKey
		tickers []string
		want    int
	}{
		{"level 1 wins", cols, []string{"VALE3.SA", "PETR4.SA"}, 1},
		{"case insensitive", cols, []string{"vale3.sa"}, 1},
		{"no match defaults to 0", cols, []string{"ITUB4.SA"}, 0},
		{"no tickers defaults to 0", cols, nil, 0},
		{"tie defaults to 0", []source.ColumnKey{{Outer: "A", Inner: "B"}}, []string{"A", "B"}, 0},
		{"duplicates in request do not inflate score", cols, []string{"CLOSE", "VALE3.SA", "vale3.sa"}, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetectTickerLevel(c.cols, c.tickers); got != c.want {
				t.Fatalf("DetectTickerLevel=%d, want %d", got, c.want)
			}
		})
	}
}

func TestToVolume(t *testing.T) {
	cases := []struct {
		in   any
		want int64
	}{
		{nil, 0},
		{"abc", 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{-3.0, 0},
		{int64(-7), 0},
		{12.9, 12},
		{"42", 42},
		{" 42.7 ", 42},
		{json.Number("9007199254740993"), 9007199254740993},
		{int(5), 5},
		{1e30, 0},
	}
	for _, c := range cases {
		if got := ToVolume(c.in); got != c.want {
			t.Fatalf("ToVolume(%v)=%d, want %d", c.in, got, c.want)
		}
	}
}

func TestToFloat(t *testing.T) {
	if got := ToFloat(" 1.25 "); got != 1.25 {
		t.Fatalf("ToFloat string=%v", got)
	}
	if got := ToFloat(true); got != 1 {
		t.Fatalf("ToFloat bool=%v", got)
	}
	for _, v := range []any{nil, "n/a", struct{}{}, json.Number("x")} {
		if !math.IsNaN(ToFloat(v)) {
			t.Fatalf("ToFloat(%v) should be NaN", v)
		}
	}
}

func TestNormalize_EmptyAndErrors(t *testing.T) {
	tbl, err := Normalize(nil, nil)
	if err != nil || !tbl.Empty() {
		t.Fatalf("nil source: tbl=%v err=%v", tbl, err)
	}
	tbl, err = Normalize(&source.Wide{}, []string{"A"})
	if err != nil || !tbl.Empty() {
		t.Fatalf("empty wide: tbl=%v err=%v", tbl, err)
	}
	ragged := &source.Flat{Index: []source.Stamp{source.Invalid}, Columns: []string{"close"}, Values: [][]any{{}}}
	if _, err := Normalize(ragged, nil); err == nil {
		t.Fatalf("expected error for ragged table")
	}
}

type alien struct{ source.Flat }

func TestNormalize_UnsupportedShape(t *testing.T) {
	a := &alien{Flat: source.Flat{Index: []source.Stamp{source.Invalid}, Columns: []string{"close"}, Values: [][]any{{1.0}}}}
	_, err := Normalize(a, nil)
	if !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource, got %v", err)
	}
}

func TestNormalizer_LogsNaiveAssumption(t *testing.T) {
	var buf bytes.Buffer
	n := Normalizer{Log: zerolog.New(&buf).Level(zerolog.DebugLevel)}
	_, err := n.Normalize(flat([]source.Stamp{source.Naive(2026, 1, 16, 0, 0, 0, 0)}, []string{"close"}, []any{1.0}), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "assumed to be UTC") {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}
