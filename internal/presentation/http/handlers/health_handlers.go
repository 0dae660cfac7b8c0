package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/interfaces"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
	"github.com/gin-gonic/gin"
)

// HealthHandlers reports process and dependency health
type HealthHandlers struct {
	db        *database.DB
	cache     interfaces.MetricsCache
	startedAt time.Time
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(db *database.DB, cache interfaces.MetricsCache) *HealthHandlers {
	return &HealthHandlers{db: db, cache: cache, startedAt: time.Now()}
}

// GetHealth pings the database and reports cache occupancy when available
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	ctx, cancel := database.WithTimeout(c.Request.Context())
	defer cancel()

	body := gin.H{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	}
	if expiring, ok := h.cache.(interfaces.ExpiringCache); ok {
		body["cache"] = expiring.Stats()
	}

	if err := h.db.PingContext(ctx); err != nil {
		body["status"] = "degraded"
		body["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["database"] = "ok"
	c.JSON(http.StatusOK, body)
}
