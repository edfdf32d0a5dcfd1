package service

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/guttosm/b3lake/internal/domain/models"
	"github.com/guttosm/b3lake/internal/partition"
	"github.com/guttosm/b3lake/internal/schema"
	"github.com/guttosm/b3lake/internal/storage"
)

// MarketService answers read queries over the partitioned lake.
type MarketService interface {
	GetAggregate(ctx context.Context, ticker string, startDate *time.Time, endDate *time.Time) (*models.Aggregate, error)
	GetBars(ctx context.Context, ticker string, startDate *time.Time, endDate *time.Time) ([]models.Bar, error)
	ListPartitions(ctx context.Context, startDate *time.Time, endDate *time.Time) ([]storage.Entry, error)
}

type marketService struct {
	root     string
	prefix   string
	reader   *partition.Reader
	manifest storage.PartitionsRepository
}

// NewMarketService serves data from <root>/<prefix>/dt=*/ files.
//
// Parameters:
//   - root: local lake root (DATA_DIR).
//   - prefix: dataset prefix under root (S3_PREFIX).
//   - reader: partition reader used for every query.
//   - manifest: ingestion manifest backing ListPartitions.
func NewMarketService(root, prefix string, reader *partition.Reader, manifest storage.PartitionsRepository) MarketService {
	if manifest == nil {
		manifest = storage.NewNopRepository()
	}
	return &marketService{root: root, prefix: prefix, reader: reader, manifest: manifest}
}

// GetBars returns the ticker's bars whose UTC day falls in [startDate, endDate],
// ordered by trade_date. Ticker matching ignores case. Nil bounds are open.
func (s *marketService) GetBars(ctx context.Context, ticker string, startDate *time.Time, endDate *time.Time) ([]models.Bar, error) {
	rows, err := s.rows(ctx, ticker, startDate, endDate)
	if err != nil {
		return nil, err
	}
	out := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.BarFromRow(r))
	}
	return out, nil
}

// GetAggregate computes the highest price and the largest single-day volume of
// ticker in the window. It returns nil, nil when no bar matches.
func (s *marketService) GetAggregate(ctx context.Context, ticker string, startDate *time.Time, endDate *time.Time) (*models.Aggregate, error) {
	rows, err := s.rows(ctx, ticker, startDate, endDate)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	agg := &models.Aggregate{Ticker: rows[0].Ticker, MaxRangeValue: math.Inf(-1)}
	daily := map[string]int64{}
	for _, r := range rows {
		p := r.High
		if math.IsNaN(p) {
			p = r.Close
		}
		if !math.IsNaN(p) && p > agg.MaxRangeValue {
			agg.MaxRangeValue = p
		}
		daily[r.Day()] += r.Volume
	}
	if math.IsInf(agg.MaxRangeValue, -1) {
		agg.MaxRangeValue = 0
	}
	for _, v := range daily {
		agg.MaxDailyVolume = max(agg.MaxDailyVolume, v)
	}
	agg.Days = len(daily)
	agg.From = dayOf(rows[0].TradeDate)
	agg.To = dayOf(rows[len(rows)-1].TradeDate)
	return agg, nil
}

// ListPartitions returns the manifest entries for the service prefix.
func (s *marketService) ListPartitions(ctx context.Context, startDate *time.Time, endDate *time.Time) ([]storage.Entry, error) {
	return s.manifest.ListPartitions(ctx, s.prefix, startDate, endDate)
}

func (s *marketService) rows(ctx context.Context, ticker string, startDate, endDate *time.Time) ([]schema.Row, error) {
	files, err := partition.FindFiles(filepath.Join(s.root, filepath.FromSlash(s.prefix)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f := partition.Filter{}
	if startDate != nil {
		f.Start = startDate.UTC().Format(schema.DayLayout)
	}
	if endDate != nil {
		f.End = endDate.UTC().Format(schema.DayLayout)
	}
	files = partition.FilterFiles(files, f)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := s.reader.ReadFiles(files, nil)
	if err != nil {
		return nil, err
	}
	var out []schema.Row
	for _, r := range frame.Canonical() {
		if !r.Valid || !strings.EqualFold(r.Ticker, ticker) {
			continue
		}
		day := r.Day()
		if (f.Start != "" && day < f.Start) || (f.End != "" && day > f.End) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	return out, nil
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
