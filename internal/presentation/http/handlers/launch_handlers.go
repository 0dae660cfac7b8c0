package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/application/services"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/launch"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// SharePasswordHeader carries the password for protected share links.
const SharePasswordHeader = "X-Share-Password"

// RecapRequest names the recipient of a launch recap email.
type RecapRequest struct {
	Email string `json:"email" binding:"required"`
}

// LaunchHandlers contains all launch-related HTTP handlers
type LaunchHandlers struct {
	launchService  *services.LaunchService
	metricsService *services.MetricsService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewLaunchHandlers creates launch handlers with injected dependencies
func NewLaunchHandlers(launchService *services.LaunchService, metricsService *services.MetricsService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *LaunchHandlers {
	return &LaunchHandlers{
		launchService:  launchService,
		metricsService: metricsService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// ListLaunches returns one page of launches
func (h *LaunchHandlers) ListLaunches(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	q, err := listQuery(c)
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "list", err)
		return
	}

	page, err := h.launchService.List(c.Request.Context(), accountID, q)
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "list", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreateLaunch stores a new launch
func (h *LaunchHandlers) CreateLaunch(c *gin.Context) {
	start := time.Now()
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var in launch.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	l, err := h.launchService.Create(c.Request.Context(), accountID, in)
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "create", err)
		return
	}

	h.logger.Launch().Info("Create launch request completed", "launchId", l.ID, "duration", time.Since(start))
	c.JSON(http.StatusCreated, l)
}

// GetLaunch returns a launch with its status re-derived
func (h *LaunchHandlers) GetLaunch(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	l, err := h.launchService.Get(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "get", err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// UpdateLaunch applies a partial update
func (h *LaunchHandlers) UpdateLaunch(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var patch launch.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}

	l, err := h.launchService.Update(c.Request.Context(), accountID, c.Param("id"), patch)
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "update", err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// DeleteLaunch removes a launch and detaches its purchases
func (h *LaunchHandlers) DeleteLaunch(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	if err := h.launchService.Delete(c.Request.Context(), accountID, c.Param("id")); err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ArchiveLaunch moves a launch to archived
func (h *LaunchHandlers) ArchiveLaunch(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	l, err := h.launchService.Archive(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "archive", err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// DuplicateLaunch copies a launch into a new one starting now
func (h *LaunchHandlers) DuplicateLaunch(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	l, err := h.launchService.Duplicate(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "duplicate", err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

// EnableShare issues a public share link
func (h *LaunchHandlers) EnableShare(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var opts services.ShareOptions
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			badRequest(c, err)
			return
		}
	}

	link, err := h.launchService.EnableShare(c.Request.Context(), accountID, c.Param("id"), opts)
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "enable_share", err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// DisableShare revokes the public share link
func (h *LaunchHandlers) DisableShare(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	if err := h.launchService.DisableShare(c.Request.Context(), accountID, c.Param("id")); err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "disable_share", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetShareViews summarises public views
func (h *LaunchHandlers) GetShareViews(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	stats, err := h.launchService.ShareViews(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "share_views", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SendRecap emails the launch metrics
func (h *LaunchHandlers) SendRecap(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var req RecapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.launchService.SendRecap(c.Request.Context(), accountID, c.Param("id"), req.Email); err != nil {
		respondError(c, h.logger, logging.ChannelLaunch, "send_recap", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": true})
}

// GetLaunchMetrics returns performance figures, served from the launch cache when possible
func (h *LaunchHandlers) GetLaunchMetrics(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	m, err := h.metricsService.LaunchMetrics(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "launch_metrics", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GetLiveStats always recomputes launch figures
func (h *LaunchHandlers) GetLiveStats(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	m, err := h.metricsService.LiveStats(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "live_stats", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, m)
}

// CompareLaunches returns side-by-side figures for ?ids=a,b,c
func (h *LaunchHandlers) CompareLaunches(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	rows, err := h.metricsService.CompareLaunches(c.Request.Context(), accountID, splitIDs(c))
	if err != nil {
		respondError(c, h.logger, logging.ChannelAnalytics, "compare", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"launches": rows, "count": len(rows)})
}

// GetSharedLaunch serves the public view behind a share token
func (h *LaunchHandlers) GetSharedLaunch(c *gin.Context) {
	marker := h.perfTracker.StartOperation("share_view_request", "public")
	defer marker.Complete()

	viewer := services.Viewer{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	pub, err := h.launchService.GetPublicByToken(c.Request.Context(), c.Param("token"), c.GetHeader(SharePasswordHeader), viewer)
	if err != nil {
		marker.SetError(err)
		if apperror.IsAuthorizationGate(err) {
			h.logger.Auth().Info("Share access denied", "reason", apperror.CodeOf(err), "ip", viewer.IP)
		}
		respondError(c, h.logger, logging.ChannelLaunch, "public_share", err)
		return
	}
	marker.SetSuccess(true)
	c.JSON(http.StatusOK, pub)
}

func listQuery(c *gin.Context) (launch.ListQuery, error) {
	var q launch.ListQuery
	var err error
	if q.Page, err = queryInt(c, "page", 1); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(c, "limit", 0); err != nil {
		return q, err
	}
	if raw := c.Query("status"); raw != "" {
		st, ok := launch.ParseStatus(raw)
		if !ok {
			return q, apperror.Validation("unknown status: " + raw)
		}
		q.Status = &st
	}
	q.SortField = launch.SortField(strings.ToLower(c.Query("sort")))
	q.Descending = strings.EqualFold(c.DefaultQuery("order", "desc"), "desc")
	return q, nil
}
