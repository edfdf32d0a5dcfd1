// Package schema holds the canonical bar layout every partition file is written with.
package schema

import (
	"math"
	"time"
)

// FileName is the fixed file name of every day partition.
const FileName = "b3_stocks.parquet"

// DayLayout formats partition keys (UTC calendar day).
const DayLayout = "2006-01-02"

// Column names in canonical order.
const (
	ColTradeDate = "trade_date"
	ColTicker    = "ticker"
	ColOpen      = "open"
	ColHigh      = "high"
	ColLow       = "low"
	ColClose     = "close"
	ColAdjClose  = "adj_close"
	ColVolume    = "volume"
)

// Columns lists the eight canonical fields in the order they are persisted.
var Columns = []string{ColTradeDate, ColTicker, ColOpen, ColHigh, ColLow, ColClose, ColAdjClose, ColVolume}

// PriceColumns are the nullable float fields.
var PriceColumns = []string{ColOpen, ColHigh, ColLow, ColClose, ColAdjClose}

// Row is one bar for one ticker at one instant.
//
// TradeDate is always UTC with millisecond precision. Valid is false when the
// source timestamp could not be parsed; such rows carry no partition key.
// Price fields use NaN for null. Volume is never null.
type Row struct {
	TradeDate time.Time
	Valid     bool
	Ticker    string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	AdjClose  float64
	Volume    int64
}

// Day returns the UTC partition key of the row, or "" when the timestamp is invalid.
func (r Row) Day() string {
	if !r.Valid {
		return ""
	}
	return r.TradeDate.UTC().Format(DayLayout)
}

// Record is the on-disk Parquet row. Optional doubles are Parquet nulls.
type Record struct {
	TradeDate int64    `parquet:"trade_date,timestamp(millisecond)"`
	Ticker    string   `parquet:"ticker"`
	Open      *float64 `parquet:"open,optional"`
	High      *float64 `parquet:"high,optional"`
	Low       *float64 `parquet:"low,optional"`
	Close     *float64 `parquet:"close,optional"`
	AdjClose  *float64 `parquet:"adj_close,optional"`
	Volume    int64    `parquet:"volume"`
}

// ToRecord converts a valid row to its Parquet form.
func ToRecord(r Row) Record {
	return Record{
		TradeDate: r.TradeDate.UnixMilli(),
		Ticker:    r.Ticker,
		Open:      nullable(r.Open),
		High:      nullable(r.High),
		Low:       nullable(r.Low),
		Close:     nullable(r.Close),
		AdjClose:  nullable(r.AdjClose),
		Volume:    r.Volume,
	}
}

// FromRecord converts a Parquet row back to a Row.
func FromRecord(rec Record) Row {
	return Row{
		TradeDate: time.UnixMilli(rec.TradeDate).UTC(),
		Valid:     true,
		Ticker:    rec.Ticker,
		Open:      value(rec.Open),
		High:      value(rec.High),
		Low:       value(rec.Low),
		Close:     value(rec.Close),
		AdjClose:  value(rec.AdjClose),
		Volume:    rec.Volume,
	}
}

func nullable(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	v := f
	return &v
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Table is an ordered collection of canonical rows.
type Table struct {
	Rows []Row
}

// Len reports the number of rows, tolerating a nil table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }
