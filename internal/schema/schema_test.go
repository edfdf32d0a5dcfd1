package schema

import (
	"math"
	"testing"
	"time"
)

func TestColumnsOrder(t *testing.T) {
	want := []string{"trade_date", "ticker", "open", "high", "low", "close", "adj_close", "volume"}
	if len(Columns) != len(want) {
		t.Fatalf("len(Columns)=%d, want %d", len(Columns), len(want))
	}
	for i := range want {
		if Columns[i] != want[i] {
			t.Fatalf("Columns[%d]=%q, want %q", i, Columns[i], want[i])
		}
	}
}

func TestRecordConversion_NaNIsNull(t *testing.T) {
	ts := time.Date(2026, 1, 16, 13, 0, 0, 123_000_000, time.UTC)
	r := Row{TradeDate: ts, Valid: true, Ticker: "VALE3.SA", Open: 1.5, High: math.NaN(), Low: 1, Close: 2, AdjClose: math.NaN(), Volume: 10}

	rec := ToRecord(r)
	if rec.TradeDate != ts.UnixMilli() {
		t.Fatalf("trade_date=%d, want %d", rec.TradeDate, ts.UnixMilli())
	}
	if rec.High != nil || rec.AdjClose != nil {
		t.Fatalf("NaN prices must become null: %+v", rec)
	}
	if rec.Open == nil || *rec.Open != 1.5 {
		t.Fatalf("open lost: %+v", rec.Open)
	}

	back := FromRecord(rec)
	if !back.TradeDate.Equal(ts) || back.TradeDate.Location() != time.UTC {
		t.Fatalf("trade_date round trip: %v", back.TradeDate)
	}
	if !math.IsNaN(back.High) || back.Close != 2 || back.Volume != 10 || !back.Valid {
		t.Fatalf("unexpected row: %+v", back)
	}
}

func TestRowDay(t *testing.T) {
	r := Row{TradeDate: time.Date(2026, 1, 17, 23, 0, 0, 0, time.UTC), Valid: true}
	if got := r.Day(); got != "2026-01-17" {
		t.Fatalf("Day()=%q", got)
	}
	r.Valid = false
	if got := r.Day(); got != "" {
		t.Fatalf("invalid row Day()=%q, want empty", got)
	}
}

func TestTableLen(t *testing.T) {
	var nilTable *Table
	if nilTable.Len() != 0 || !nilTable.Empty() {
		t.Fatalf("nil table must be empty")
	}
	tbl := &Table{Rows: make([]Row, 3)}
	if tbl.Len() != 3 || tbl.Empty() {
		t.Fatalf("Len()=%d", tbl.Len())
	}
}
