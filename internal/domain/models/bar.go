package models

import (
	"math"
	"time"

	"github.com/guttosm/b3lake/internal/schema"
)

// Bar is one stored OHLCV row as served by the read API.
// Missing prices are nil so they encode as JSON null.
type Bar struct {
	TradeDate time.Time `json:"trade_date"`
	Ticker    string    `json:"ticker" example:"VALE3.SA"`
	Open      *float64  `json:"open" example:"61.20"`
	High      *float64  `json:"high" example:"62.05"`
	Low       *float64  `json:"low" example:"60.90"`
	Close     *float64  `json:"close" example:"61.87"`
	AdjClose  *float64  `json:"adj_close" example:"61.87"`
	Volume    int64     `json:"volume" example:"18234500"`
}

// BarFromRow converts a canonical row.
func BarFromRow(r schema.Row) Bar {
	return Bar{
		TradeDate: r.TradeDate,
		Ticker:    r.Ticker,
		Open:      price(r.Open),
		High:      price(r.High),
		Low:       price(r.Low),
		Close:     price(r.Close),
		AdjClose:  price(r.AdjClose),
		Volume:    r.Volume,
	}
}

func price(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
