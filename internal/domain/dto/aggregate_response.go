package dto

import (
	"time"

	"github.com/guttosm/b3lake/internal/domain/models"
)

// AggregateResponse represents the JSON structure returned by the
// GET /api/v1/aggregate endpoint.
//
// Fields match the API contract and may differ from internal domain models.
type AggregateResponse struct {
	Ticker         string  `json:"ticker" example:"PETR4.SA"`           // Stock ticker requested
	MaxRangeValue  float64 `json:"max_range_value" example:"38.92"`     // Maximum price observed in the period
	MaxDailyVolume int64   `json:"max_daily_volume" example:"45123400"` // Maximum daily traded volume in the period
	Days           int     `json:"days" example:"5"`                    // Trading days found
	From           string  `json:"from" example:"2026-01-12"`           // First trading day found
	To             string  `json:"to" example:"2026-01-16"`             // Last trading day found
}

// NewAggregateResponse maps the domain aggregate to the API contract.
func NewAggregateResponse(a *models.Aggregate) AggregateResponse {
	return AggregateResponse{
		Ticker:         a.Ticker,
		MaxRangeValue:  a.MaxRangeValue,
		MaxDailyVolume: a.MaxDailyVolume,
		Days:           a.Days,
		From:           a.From.Format(time.DateOnly),
		To:             a.To.Format(time.DateOnly),
	}
}

// BarsResponse is returned by GET /api/v1/bars.
type BarsResponse struct {
	Ticker string       `json:"ticker" example:"VALE3.SA"`
	Count  int          `json:"count" example:"2"`
	Bars   []models.Bar `json:"bars"`
}

// PartitionResponse describes one manifest entry.
type PartitionResponse struct {
	Day        string    `json:"dt" example:"2026-01-16"`
	Prefix     string    `json:"prefix" example:"raw"`
	Path       string    `json:"path,omitempty" example:"data/raw/dt=2026-01-16/b3_stocks.parquet"`
	RemoteKey  string    `json:"remote_key,omitempty" example:"raw/dt=2026-01-16/b3_stocks.parquet"`
	RowCount   int       `json:"row_count" example:"10"`
	ByteSize   int64     `json:"byte_size" example:"4096"`
	RunID      string    `json:"run_id"`
	IngestedAt time.Time `json:"ingested_at"`
}

// PartitionsResponse is returned by GET /api/v1/partitions.
type PartitionsResponse struct {
	Count      int                 `json:"count" example:"1"`
	Partitions []PartitionResponse `json:"partitions"`
}
