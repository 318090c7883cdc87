package api

import (
	"fmt"
	"net/http"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	domrepo "github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	"github.com/gonghuaze999-design/QuantAgrify/internal/usecase"
	xhttp "github.com/gonghuaze999-design/QuantAgrify/pkg/http"
	xlogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SeriesHandler exposes the fusion engine over HTTP.
type SeriesHandler struct {
	logger  *xlogger.Logger
	manager *connection.Manager
	series  *usecase.SeriesOrchestrator
	live    domrepo.LiveFeed
}

func NewSeriesHandler(logger *xlogger.Logger, manager *connection.Manager, series *usecase.SeriesOrchestrator, live domrepo.LiveFeed) *SeriesHandler {
	return &SeriesHandler{logger: logger, manager: manager, series: series, live: live}
}

func (h *SeriesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/series", h.Series)
	g.POST("/status", h.Status)
	g.POST("/oracle/analyze", h.OracleAnalyze)
	e.GET("/health", h.Health)
}

// Series serves the fused OHLCV window. Backend failures degrade
// inside the orchestrator; the only failure shapes here are bad input,
// rejected credentials, and an empty result.
func (h *SeriesHandler) Series(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return c.JSON(http.StatusBadRequest, models.SeriesResponse{
			Success: false,
			Error:   fmt.Sprintf("invalid request: %v", verr),
		})
	}

	if len(req.Credentials) > 0 {
		if err := h.manager.Connect(c.Request().Context(), req.Credentials); err != nil {
			h.logger.Error("credential hot-swap rejected", xlogger.Error(err))
			return c.JSON(http.StatusUnauthorized, models.SeriesResponse{
				Success: false,
				Error:   err.Error(),
			})
		}
		h.series.InvalidateCache(c.Request().Context())
	}

	g := domrepo.NormalizeGranularity(req.Granularity)
	res, err := h.series.GetSeries(c.Request().Context(), req.Symbol, req.StartDate, req.EndDate, g)
	if err != nil {
		h.logger.Error("series usecase error", xlogger.Error(err))
		return c.JSON(http.StatusBadRequest, models.SeriesResponse{
			Success: false,
			Error:   err.Error(),
		})
	}

	if res.Source == models.SourceNone {
		return c.JSON(http.StatusOK, models.SeriesResponse{
			Success: false,
			Error:   fmt.Sprintf("no data found for symbol %s", req.Symbol),
		})
	}

	return c.JSON(http.StatusOK, models.SeriesResponse{
		Success:    true,
		Data:       toRows(res.Bars, g),
		Source:     res.Source,
		Rows:       len(res.Bars),
		FuzzyMatch: res.Fuzzy,
	})
}

// Status reports connection health, optionally after a credential
// hot-swap. A rejected swap still reports state so operators can see
// what the engine fell back to.
func (h *SeriesHandler) Status(c echo.Context) error {
	req := &models.StatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return c.JSON(http.StatusBadRequest, models.StatusResponse{Success: false})
	}

	swapOK := true
	if len(req.Credentials) > 0 {
		if err := h.manager.Connect(c.Request().Context(), req.Credentials); err != nil {
			swapOK = false
		} else {
			h.series.InvalidateCache(c.Request().Context())
		}
	}

	st := h.manager.State()
	resp := models.StatusResponse{
		Success:        swapOK,
		WarehouseReady: st.WarehouseReady,
		OracleReady:    st.OracleReady,
		ActiveProject:  st.ActiveProject,
		ResolvedFrom:   string(st.ResolvedFrom),
		LastError:      st.LastError,
	}
	if h.live != nil {
		resp.QuotaRemaining = h.live.QuotaRemaining()
	}
	if h.logger != nil {
		for _, e := range h.logger.RecentErrors(10) {
			resp.RecentErrors = append(resp.RecentErrors, models.StatusError{
				Message:  e.Message,
				Count:    e.Count,
				LastSeen: e.LastSeen.Format("2006-01-02 15:04:05"),
			})
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// OracleAnalyze forwards an opaque payload to the imagery oracle.
func (h *SeriesHandler) OracleAnalyze(c echo.Context) error {
	req := &models.OracleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	oracle, err := h.manager.Oracle()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"success": false,
			"error":   "oracle backend not connected",
		})
	}

	out, err := oracle.Analyze(c.Request().Context(), req.Payload)
	if err != nil {
		h.logger.Error("oracle analyze error", xlogger.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	}
	return c.JSONBlob(http.StatusOK, out)
}

// Health is the liveness probe: the process is up; backend readiness
// lives in /api/status.
func (h *SeriesHandler) Health(c echo.Context) error {
	st := h.manager.State()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"warehouse_ready": st.WarehouseReady,
		"oracle_ready":    st.OracleReady,
	})
}

func toRows(bars []models.Bar, g domrepo.Granularity) []models.SeriesRow {
	layout := "2006-01-02"
	if g == domrepo.Intraday {
		layout = "2006-01-02 15:04:05"
	}
	rows := make([]models.SeriesRow, len(bars))
	for i, b := range bars {
		rows[i] = models.SeriesRow{
			Date:   b.Date.UTC().Format(layout),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return rows
}
