// Package yahoo fetches OHLCV bars from the Yahoo Finance v8 chart API and
// shapes them as source tables.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guttosm/b3lake/internal/source"
)

// DefaultBaseURL is the public chart API host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Fields are the flat column names produced for every ticker, in order.
var Fields = []string{"Open", "High", "Low", "Close", "Adj Close", "Volume"}

// ErrNoData is returned by FetchTicker when the API has no bars for a symbol.
var ErrNoData = errors.New("no data")

// Request selects what to download. Period is ignored when Start is set.
// End is exclusive.
type Request struct {
	Tickers  []string
	Period   string
	Interval string
	Start    *time.Time
	End      *time.Time
}

// Client talks to the chart API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     zerolog.Logger
	// Concurrency caps simultaneous symbol requests (default 4).
	Concurrency int
}

// New builds a client with a request timeout.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Log:     log,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				Gmtoffset            int    `json:"gmtoffset"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Series is one ticker's bars, timestamps in the exchange timezone.
type Series struct {
	Ticker string
	Times  []time.Time
	// Values[i] holds Fields for Times[i]; nil entries are missing values.
	Values [][]any
}

// Fetch downloads every ticker and shapes the result.
//
// Returns:
//   - *source.Flat for a single ticker, *source.Wide with (ticker, field)
//     columns otherwise.
//   - nil, nil when no ticker returned any bar.
//   - an error when every ticker failed.
//
// Behavior:
//   - Tickers failing individually are logged and left out, as long as one succeeds.
//   - Index values are zoned stamps in the exchange timezone.
func (c *Client) Fetch(ctx context.Context, req Request) (source.Table, error) {
	if len(req.Tickers) == 0 {
		return nil, nil
	}
	series := make([]*Series, len(req.Tickers))
	errs := make([]error, len(req.Tickers))

	g, gctx := errgroup.WithContext(ctx)
	limit := c.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, t := range req.Tickers {
		g.Go(func() error {
			s, err := c.FetchTicker(gctx, t, req)
			if err != nil {
				errs[i] = err
				return nil
			}
			series[i] = s
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ok []*Series
	var failed []error
	for i, s := range series {
		if errs[i] != nil {
			if !errors.Is(errs[i], ErrNoData) {
				failed = append(failed, errs[i])
			}
			c.Log.Warn().Str("ticker", req.Tickers[i]).Err(errs[i]).Msg("ticker download failed")
			continue
		}
		ok = append(ok, s)
	}
	if len(ok) == 0 {
		if len(failed) > 0 {
			return nil, fmt.Errorf("download failed: %w", errors.Join(failed...))
		}
		return nil, nil
	}
	if len(req.Tickers) == 1 {
		return toFlat(ok[0]), nil
	}
	return toWide(ok), nil
}

// FetchTicker downloads one symbol.
func (c *Client) FetchTicker(ctx context.Context, ticker string, req Request) (*Series, error) {
	q := url.Values{}
	q.Set("interval", req.Interval)
	if req.Start != nil {
		q.Set("period1", strconv.FormatInt(req.Start.Unix(), 10))
		end := time.Now()
		if req.End != nil {
			end = *req.End
		}
		q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	} else {
		q.Set("range", req.Period)
	}
	q.Set("includePrePost", "false")
	q.Set("events", "div,splits")

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.BaseURL, url.PathEscape(ticker), q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (compatible; b3lake)")
	httpReq.Header.Set("Accept", "application/json")

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ticker, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", ticker, err)
	}

	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("%s: status %d: decode: %w", ticker, resp.StatusCode, err)
	}
	if cr.Chart.Error != nil {
		return nil, fmt.Errorf("%s: yahoo api error: %s - %s", ticker, cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", ticker, resp.StatusCode)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}

	res := cr.Chart.Result[0]
	loc := exchangeLocation(res.Meta.ExchangeTimezoneName, res.Meta.Gmtoffset)
	var quote struct{ Open, High, Low, Close, Volume []*float64 }
	if len(res.Indicators.Quote) > 0 {
		qt := res.Indicators.Quote[0]
		quote.Open, quote.High, quote.Low, quote.Close, quote.Volume = qt.Open, qt.High, qt.Low, qt.Close, qt.Volume
	}
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	s := &Series{Ticker: ticker}
	for i, ts := range res.Timestamp {
		s.Times = append(s.Times, time.Unix(ts, 0).In(loc))
		s.Values = append(s.Values, []any{
			at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i), at(adj, i), at(quote.Volume, i),
		})
	}
	return s, nil
}

// at returns the i-th value or nil when missing or out of range.
func at(vals []*float64, i int) any {
	if i >= len(vals) || vals[i] == nil {
		return nil
	}
	return *vals[i]
}

func exchangeLocation(name string, offset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone("", offset)
}

func toFlat(s *Series) *source.Flat {
	f := &source.Flat{Columns: append([]string(nil), Fields...)}
	for i, t := range s.Times {
		f.Index = append(f.Index, source.Zoned(t))
		f.Values = append(f.Values, s.Values[i])
	}
	return f
}

// toWide aligns series on the union of their timestamps. Tickers missing a
// timestamp get null cells.
func toWide(all []*Series) *source.Wide {
	type slot struct {
		t   time.Time
		row map[int][]any
	}
	byUnix := map[int64]*slot{}
	for si, s := range all {
		for i, t := range s.Times {
			k := t.Unix()
			sl, ok := byUnix[k]
			if !ok {
				sl = &slot{t: t, row: map[int][]any{}}
				byUnix[k] = sl
			}
			sl.row[si] = s.Values[i]
		}
	}
	keys := make([]int64, 0, len(byUnix))
	for k := range byUnix {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	w := &source.Wide{}
	for _, s := range all {
		for _, f := range Fields {
			w.Columns = append(w.Columns, source.ColumnKey{Outer: s.Ticker, Inner: f})
		}
	}
	for _, k := range keys {
		sl := byUnix[k]
		w.Index = append(w.Index, source.Zoned(sl.t))
		row := make([]any, 0, len(w.Columns))
		for si := range all {
			if vals, ok := sl.row[si]; ok {
				row = append(row, vals...)
			} else {
				row = append(row, make([]any, len(Fields))...)
			}
		}
		w.Values = append(w.Values, row)
	}
	return w
}
