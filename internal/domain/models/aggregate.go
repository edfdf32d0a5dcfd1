package models

import "time"

// Aggregate summarizes the stored bars of one ticker over a date window.
//
// Fields:
//   - Ticker: The ticker symbol used in the aggregation (e.g., "VALE3.SA").
//   - MaxRangeValue: The highest price observed in the window (high, or close
//     when the high is missing).
//   - MaxDailyVolume: The largest volume traded in a single UTC day.
//   - Days: Number of distinct trading days with bars.
//   - From, To: First and last trading day found.
//
// swagger:model Aggregate
type Aggregate struct {
	Ticker         string    `json:"ticker" example:"PETR4.SA"`
	MaxRangeValue  float64   `json:"max_range_value" example:"38.92"`
	MaxDailyVolume int64     `json:"max_daily_volume" example:"45123400"`
	Days           int       `json:"days" example:"5"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
}
