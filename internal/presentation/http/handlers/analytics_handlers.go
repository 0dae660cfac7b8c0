package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/application/services"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// AnalyticsHandlers serves the dashboard aggregates
type AnalyticsHandlers struct {
	metricsService *services.MetricsService
	clock          clock.Clock
	logger         *logging.ChanneledLogger
}

// NewAnalyticsHandlers creates analytics handlers with injected dependencies
func NewAnalyticsHandlers(metricsService *services.MetricsService, clk clock.Clock, logger *logging.ChanneledLogger) *AnalyticsHandlers {
	return &AnalyticsHandlers{metricsService: metricsService, clock: clk, logger: logger}
}

// GetSummary returns headline totals and trends
func (h *AnalyticsHandlers) GetSummary(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}
	rg, err := parseRange(c, h.clock.Now())
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "summary", err)
		return
	}

	summary, err := h.metricsService.Summary(c.Request.Context(), accountID, rg)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "summary", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"range": rg, "summary": summary})
}

// GetSources returns the per-source revenue breakdown
func (h *AnalyticsHandlers) GetSources(c *gin.Context) {
	start := time.Now()
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}
	rg, err := parseRange(c, h.clock.Now())
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "sources", err)
		return
	}

	rows, err := h.metricsService.RevenueBySource(c.Request.Context(), accountID, rg)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "sources", err)
		return
	}

	h.logger.Analytics().Debug("Revenue by source request completed", "accountId", accountID, "count", len(rows), "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"range": rg, "sources": rows})
}

// GetRecent returns the latest purchases
func (h *AnalyticsHandlers) GetRecent(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "recent", err)
		return
	}

	rows, err := h.metricsService.RecentPurchases(c.Request.Context(), accountID, limit)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "recent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": rows, "count": len(rows)})
}

// GetDrillDown breaks one source down by campaign and medium
func (h *AnalyticsHandlers) GetDrillDown(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}
	rg, err := parseRange(c, h.clock.Now())
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "drilldown", err)
		return
	}

	source := c.Query("source")
	rows, err := h.metricsService.DrillDown(c.Request.Context(), accountID, source, rg)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "drilldown", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "range": rg, "campaigns": rows})
}

// GetExport downloads the per-source breakdown as CSV
func (h *AnalyticsHandlers) GetExport(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}
	rg, err := parseRange(c, h.clock.Now())
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "export", err)
		return
	}

	body, err := h.metricsService.ExportCSV(c.Request.Context(), accountID, rg)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "export", err)
		return
	}

	filename := fmt.Sprintf("revenue-by-source-%s-%s.csv", rg.Start.Format(dateLayout), rg.End.Format(dateLayout))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
}
