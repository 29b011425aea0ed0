package server

import (
	"errors"
	"net/http"
	"strconv"

	"CDPRadar/internal/calculator"
	"CDPRadar/internal/collector"
	"CDPRadar/internal/logger"
	"CDPRadar/internal/model"
	"CDPRadar/internal/radar"
	"CDPRadar/internal/scan"

	"github.com/labstack/echo/v4"
)

// PivotRequest is a manual calculation. Prices arrive as strings so an
// explicit zero stays distinguishable from a missing parameter.
type PivotRequest struct {
	High  string `query:"high" validate:"required,numeric"`
	Low   string `query:"low" validate:"required,numeric"`
	Close string `query:"close" validate:"required,numeric"`
}

// ScanRequest overrides the configured scan settings for one call.
// Empty fields keep the configured value.
type ScanRequest struct {
	MinVolume        string `query:"min_volume" validate:"omitempty,number"`
	MinChangePercent string `query:"min_change_percent" validate:"omitempty,numeric"`
	MaxPrice         string `query:"max_price" validate:"omitempty,numeric"`
	TopN             int    `query:"top_n" validate:"gte=0,lte=500"`
	SortBy           string `query:"sort_by" validate:"omitempty,oneof=change_percent volume turnover"`
}

// PivotResponse carries a bar and its next-session levels.
type PivotResponse struct {
	Symbol string            `json:"symbol,omitempty"`
	Name   string            `json:"name,omitempty"`
	Bar    model.OHLCV       `json:"bar"`
	Levels model.PivotLevels `json:"levels"`
}

// Handler serves the pivot and scan API.
type Handler struct {
	radar  *radar.Radar
	scan   ScanDefaults
	logger *logger.Logger
}

// ScanDefaults is the configured scan used when a request overrides nothing.
type ScanDefaults struct {
	Criterion model.ScanCriterion
	TopN      int
	SortBy    string
}

func NewHandler(r *radar.Radar, defaults ScanDefaults, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{radar: r, scan: defaults, logger: log}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api/v1")
	g.GET("/pivots", h.Pivots)
	g.GET("/pivots/:symbol", h.SymbolPivots)
	g.GET("/scan", h.Scan)
}

func (h *Handler) Health(c echo.Context) error {
	return SuccessResponse(c, map[string]string{"health": "ok"})
}

func (h *Handler) Pivots(c echo.Context) error {
	req := &PivotRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	high, _ := strconv.ParseFloat(req.High, 64)
	low, _ := strconv.ParseFloat(req.Low, 64)
	closePrice, _ := strconv.ParseFloat(req.Close, 64)

	levels, err := calculator.CalculateCDP(high, low, closePrice)
	if err != nil {
		return AppErrorResponse(c, NewAppError("ERR_INVALID_INPUT", "",
			"prices must satisfy high >= close >= low >= 0", http.StatusBadRequest).WithError(err))
	}
	return SuccessResponse(c, PivotResponse{
		Bar:    model.OHLCV{High: high, Low: low, Close: closePrice},
		Levels: levels,
	})
}

func (h *Handler) SymbolPivots(c echo.Context) error {
	symbol := c.Param("symbol")
	name, bar, levels, err := h.radar.Pivots(c.Request().Context(), symbol)
	switch {
	case err == nil:
	case errors.Is(err, collector.ErrNoData):
		return AppErrorResponse(c, NewAppError("ERR_NOT_FOUND", "symbol",
			"no market data for "+symbol, http.StatusNotFound).WithError(err))
	case errors.Is(err, calculator.ErrInvalidInput), errors.Is(err, model.ErrInvalidBar):
		return AppErrorResponse(c, NewAppError("ERR_MALFORMED_BAR", "symbol",
			"provider returned an unusable bar for "+symbol, http.StatusUnprocessableEntity).WithError(err))
	default:
		h.logger.Error("pivot lookup failed", logger.String("symbol", symbol), logger.Error(err))
		return AppErrorResponse(c, NewAppError("ERR_UPSTREAM", "",
			"market data provider unavailable", http.StatusBadGateway).WithError(err))
	}
	return SuccessResponse(c, PivotResponse{Symbol: symbol, Name: name, Bar: bar, Levels: levels})
}

func (h *Handler) Scan(c echo.Context) error {
	req := &ScanRequest{}
	if verr := ReadAndValidateRequest(c, req); verr != nil {
		return BadRequestResponse(c, verr)
	}
	p, err := h.pipeline(req)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	run := h.radar.Scan(c.Request().Context(), p, radar.TriggerAPI)
	return SuccessResponse(c, run)
}

func (h *Handler) pipeline(req *ScanRequest) (*scan.Pipeline, error) {
	crit := h.scan.Criterion
	if req.MinVolume != "" {
		v, err := strconv.ParseInt(req.MinVolume, 10, 64)
		if err != nil {
			return nil, NewAppError("ERR_NUMBER", "min_volume", "min_volume is out of range", http.StatusBadRequest)
		}
		crit.MinVolume = v
	}
	if req.MinChangePercent != "" {
		crit.MinChangePercent, _ = strconv.ParseFloat(req.MinChangePercent, 64)
	}
	if req.MaxPrice != "" {
		crit.MaxPrice, _ = strconv.ParseFloat(req.MaxPrice, 64)
	}

	topN := h.scan.TopN
	if req.TopN > 0 {
		topN = req.TopN
	}
	sortBy := h.scan.SortBy
	if req.SortBy != "" {
		sortBy = req.SortBy
	}
	order, err := scan.ParseSortKey(sortBy)
	if err != nil {
		return nil, NewAppError("ERR_ONEOF", "sort_by", err.Error(), http.StatusBadRequest)
	}

	p := scan.NewPipeline(crit, topN)
	p.Order = order
	return p, nil
}
