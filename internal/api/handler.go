package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/b3lake/internal/domain/dto"
	"github.com/guttosm/b3lake/internal/service"
)

const dateLayout = "2006-01-02"

// Handler provides HTTP handlers for the read API.
//
// Responsibilities:
//   - Validate incoming HTTP query parameters
//   - Delegate to the market service
//   - Translate results into response DTOs
type Handler struct {
	svc service.MarketService
	now func() time.Time
}

// NewHandler constructs a new Handler instance.
func NewHandler(svc service.MarketService) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

// parseDate reads an optional YYYY-MM-DD query parameter.
func parseDate(c *gin.Context, name string) (*time.Time, error) {
	s := strings.TrimSpace(c.Query(name))
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, errors.New("invalid " + name + " format, expected YYYY-MM-DD")
	}
	return &d, nil
}

func requireTicker(c *gin.Context) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Query("ticker")))
	if ticker == "" {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("ticker is required", nil))
		return "", false
	}
	return ticker, true
}

// GetAggregate godoc
// @Summary      Get aggregate by ticker
// @Description  Returns the highest price and the largest single-day volume for the ticker since an optional start date. Without data_inicio the last 7 days ending yesterday are used.
// @Tags         aggregate
// @Produce      json
// @Param        ticker       query     string  true   "Ticker symbol" example(PETR4.SA)
// @Param        data_inicio  query     string  false  "Start date in YYYY-MM-DD" example(2026-01-12)
// @Success      200          {object}  dto.AggregateResponse  "Success"
// @Failure      400          {object}  dto.ErrorResponse      "Bad Request"
// @Failure      404          {object}  dto.ErrorResponse      "Not Found"
// @Failure      500          {object}  dto.ErrorResponse      "Internal Error"
// @Router       /api/v1/aggregate [get]
func (h *Handler) GetAggregate(c *gin.Context) {
	ticker, ok := requireTicker(c)
	if !ok {
		return
	}

	startDate, err := parseDate(c, "data_inicio")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(err.Error(), nil))
		return
	}
	var endDate *time.Time
	if startDate == nil {
		// Default: last 7 days, ending yesterday (UTC)
		y, m, d := h.now().UTC().AddDate(0, 0, -1).Date()
		yday := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		start := yday.AddDate(0, 0, -6)
		startDate, endDate = &start, &yday
	}

	agg, err := h.svc.GetAggregate(c.Request.Context(), ticker, startDate, endDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("failed to fetch aggregates", err))
		return
	}
	if agg == nil {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse("no data found", nil))
		return
	}

	c.JSON(http.StatusOK, dto.NewAggregateResponse(agg))
}

// GetBars godoc
// @Summary      List bars for a ticker
// @Description  Returns the stored OHLCV bars of one ticker, ordered by trade_date. Both bounds are inclusive UTC days.
// @Tags         bars
// @Produce      json
// @Param        ticker  query     string  true   "Ticker symbol" example(VALE3.SA)
// @Param        start   query     string  false  "First day, YYYY-MM-DD"
// @Param        end     query     string  false  "Last day, YYYY-MM-DD"
// @Success      200     {object}  dto.BarsResponse
// @Failure      400     {object}  dto.ErrorResponse
// @Failure      500     {object}  dto.ErrorResponse
// @Router       /api/v1/bars [get]
func (h *Handler) GetBars(c *gin.Context) {
	ticker, ok := requireTicker(c)
	if !ok {
		return
	}
	start, end, ok := dateRange(c)
	if !ok {
		return
	}

	bars, err := h.svc.GetBars(c.Request.Context(), ticker, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("failed to read bars", err))
		return
	}
	c.JSON(http.StatusOK, dto.BarsResponse{Ticker: ticker, Count: len(bars), Bars: bars})
}

// ListPartitions godoc
// @Summary      List ingested partitions
// @Description  Returns the ingestion manifest entries for the configured prefix. Empty when no manifest database is configured.
// @Tags         partitions
// @Produce      json
// @Param        start  query     string  false  "First day, YYYY-MM-DD"
// @Param        end    query     string  false  "Last day, YYYY-MM-DD"
// @Success      200    {object}  dto.PartitionsResponse
// @Failure      400    {object}  dto.ErrorResponse
// @Failure      500    {object}  dto.ErrorResponse
// @Router       /api/v1/partitions [get]
func (h *Handler) ListPartitions(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	entries, err := h.svc.ListPartitions(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse("failed to list partitions", err))
		return
	}
	resp := dto.PartitionsResponse{Count: len(entries), Partitions: make([]dto.PartitionResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Partitions = append(resp.Partitions, dto.PartitionResponse{
			Day:        e.Day.Format(dateLayout),
			Prefix:     e.Prefix,
			Path:       e.Path,
			RemoteKey:  e.RemoteKey,
			RowCount:   e.RowCount,
			ByteSize:   e.ByteSize,
			RunID:      e.RunID,
			IngestedAt: e.IngestedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// dateRange parses the start/end query pair, writing a 400 on failure.
func dateRange(c *gin.Context) (start, end *time.Time, ok bool) {
	var err error
	if start, err = parseDate(c, "start"); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(err.Error(), nil))
		return nil, nil, false
	}
	if end, err = parseDate(c, "end"); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(err.Error(), nil))
		return nil, nil, false
	}
	if start != nil && end != nil && end.Before(*start) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("end must not be before start", nil))
		return nil, nil, false
	}
	return start, end, true
}
