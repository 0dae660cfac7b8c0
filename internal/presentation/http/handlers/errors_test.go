package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperror.NotFound("Launch not found"), http.StatusNotFound},
		{"validation", apperror.Validation("bad"), http.StatusBadRequest},
		{"share expired", fmt.Errorf("wrapped: %w", apperror.ShareExpired()), http.StatusGone},
		{"storage timeout", fmt.Errorf("failed to query totals: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"storage failure", errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary", nil)

			respondError(c, logging.NewNopLogger(), logging.ChannelAnalytics, "summary", tt.err)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
