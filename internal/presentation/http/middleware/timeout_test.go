package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRequestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestTimeout(20 * time.Millisecond))
	r.GET("/stalled", func(c *gin.Context) {
		// stands in for a storage call that never returns on its own
		select {
		case <-c.Request.Context().Done():
			c.String(http.StatusGatewayTimeout, c.Request.Context().Err().Error())
		case <-time.After(2 * time.Second):
			c.String(http.StatusOK, "finished")
		}
	})
	r.GET("/deadline", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stalled", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, context.DeadlineExceeded.Error(), w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/deadline", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
