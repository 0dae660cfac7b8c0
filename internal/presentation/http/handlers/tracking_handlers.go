package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/launchtrack-go/internal/application/services"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// IdentifyRequest attaches an email to a known visitor token.
type IdentifyRequest struct {
	VisitorToken string `json:"visitorToken" binding:"required"`
	Email        string `json:"email" binding:"required"`
}

// TrackingHandlers ingests visits and identity hints
type TrackingHandlers struct {
	identityService *services.IdentityService
	logger          *logging.ChanneledLogger
}

// NewTrackingHandlers creates tracking handlers with injected dependencies
func NewTrackingHandlers(identityService *services.IdentityService, logger *logging.ChanneledLogger) *TrackingHandlers {
	return &TrackingHandlers{identityService: identityService, logger: logger}
}

// PostVisit records one tracking hit
func (h *TrackingHandlers) PostVisit(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var ev attribution.VisitEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err)
		return
	}

	visitor, err := h.identityService.RecordVisit(c.Request.Context(), accountID, ev)
	if err != nil {
		respondError(c, h.logger, logging.ChannelIdentity, "record_visit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitorId": visitor.ID, "createdAt": visitor.CreatedAt})
}

// PostIdentify attaches an email to a visitor
func (h *TrackingHandlers) PostIdentify(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var req IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	visitor, err := h.identityService.Identify(c.Request.Context(), accountID, req.VisitorToken, req.Email)
	if err != nil {
		respondError(c, h.logger, logging.ChannelIdentity, "identify", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visitorId": visitor.ID})
}
