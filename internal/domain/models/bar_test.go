package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/guttosm/b3lake/internal/schema"
)

func TestBarFromRow_NullPrices(t *testing.T) {
	row := schema.Row{
		TradeDate: time.Date(2026, 1, 16, 13, 0, 0, 0, time.UTC),
		Valid:     true,
		Ticker:    "VALE3.SA",
		Open:      math.NaN(),
		High:      62,
		Low:       math.NaN(),
		Close:     61.5,
		AdjClose:  math.NaN(),
		Volume:    10,
	}
	b := BarFromRow(row)
	if b.Open != nil || b.Low != nil || b.AdjClose != nil {
		t.Fatalf("NaN prices should be nil: %+v", b)
	}
	if b.High == nil || *b.High != 62 || *b.Close != 61.5 {
		t.Fatalf("unexpected prices: %+v", b)
	}
	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"open":null`) || !strings.Contains(string(out), `"trade_date":"2026-01-16T13:00:00Z"`) {
		t.Fatalf("unexpected json: %s", out)
	}
}
