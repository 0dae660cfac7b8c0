package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/launchtrack-go/internal/application/services"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/attribution"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// RefundRequest identifies the platform purchase to zero out.
type RefundRequest struct {
	Platform           string `json:"platform" binding:"required"`
	PlatformPurchaseID string `json:"platformPurchaseId" binding:"required"`
}

// PurchaseHandlers exposes the purchase ledger and its attribution
type PurchaseHandlers struct {
	attributionService *services.AttributionService
	jobService         *services.JobService
	logger             *logging.ChanneledLogger
}

// NewPurchaseHandlers creates purchase handlers with injected dependencies
func NewPurchaseHandlers(attributionService *services.AttributionService, jobService *services.JobService, logger *logging.ChanneledLogger) *PurchaseHandlers {
	return &PurchaseHandlers{
		attributionService: attributionService,
		jobService:         jobService,
		logger:             logger,
	}
}

// PostPurchase attributes and stores a normalized platform purchase
func (h *PurchaseHandlers) PostPurchase(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var in attribution.NormalizedPurchase
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.attributionService.Attribute(c.Request.Context(), accountID, in)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAttribution, "attribute", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// PostRefund zeroes the amount of an existing purchase
func (h *PurchaseHandlers) PostRefund(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.attributionService.RecordRefund(c.Request.Context(), accountID, req.Platform, req.PlatformPurchaseID); err != nil {
		respondError(c, h.logger, logging.ChannelAttribution, "refund", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunded": true})
}

// PostReattribute retries identity resolution for one purchase
func (h *PurchaseHandlers) PostReattribute(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	result, err := h.attributionService.Reattribute(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelAttribution, "reattribute", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PostReattributeAll starts a background pass over every unmatched purchase
func (h *PurchaseHandlers) PostReattributeAll(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	job, err := h.jobService.StartReattribution(c.Request.Context(), accountID, h.attributionService)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAttribution, "reattribute_all", err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GetJob reports the progress of a background job
func (h *PurchaseHandlers) GetJob(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	job, err := h.jobService.Get(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, logging.ChannelAttribution, "get_job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetMatchRate returns the share of purchases tied to a visitor
func (h *PurchaseHandlers) GetMatchRate(c *gin.Context) {
	accountID, ok := requireAccount(c)
	if !ok {
		return
	}

	rate, err := h.attributionService.MatchRate(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, h.logger, logging.ChannelAttribution, "match_rate", err)
		return
	}
	c.JSON(http.StatusOK, rate)
}
