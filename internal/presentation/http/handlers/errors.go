// Package handlers provides the HTTP handlers for tracking, purchases, launches and analytics
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

var statusByCode = map[apperror.Code]int{
	apperror.CodeNotFound:         http.StatusNotFound,
	apperror.CodeValidation:       http.StatusBadRequest,
	apperror.CodePasswordRequired: http.StatusUnauthorized,
	apperror.CodeInvalidPassword:  http.StatusForbidden,
	apperror.CodeShareExpired:     http.StatusGone,
}

// respondError maps business errors onto status codes. Anything else is a 500 whose detail
// stays in the logs.
func respondError(c *gin.Context, logger *logging.ChanneledLogger, channel logging.Channel, operation string, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, ok := statusByCode[appErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		body := gin.H{"error": appErr.Message, "code": appErr.Code}
		if len(appErr.Meta) > 0 {
			body["details"] = appErr.Meta
		}
		c.JSON(status, body)
		return
	}

	accountID, _ := middleware.GetAccountID(c)
	logger.LogError(channel, operation, err, accountID, map[string]any{"path": c.Request.URL.Path})
	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "storage timed out", "code": "timeout"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
}

// requireAccount reads the authenticated account or writes a 401.
func requireAccount(c *gin.Context) (string, bool) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return accountID, ok
}
