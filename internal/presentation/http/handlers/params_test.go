package handlers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextFor(target string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	return c
}

func TestParseRange(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("defaults to the last 30 days", func(t *testing.T) {
		rg, err := parseRange(contextFor("/x"), now)
		require.NoError(t, err)
		assert.Equal(t, now, rg.End)
		assert.Equal(t, now.AddDate(0, 0, -30), rg.Start)
	})

	t.Run("date-only to covers the whole day", func(t *testing.T) {
		rg, err := parseRange(contextFor("/x?from=2025-05-01&to=2025-05-31"), now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), rg.Start)
		assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), rg.End)
	})

	t.Run("rfc3339 bounds are exact", func(t *testing.T) {
		rg, err := parseRange(contextFor("/x?from=2025-05-01T08:00:00Z&to=2025-05-02T08:00:00Z"), now)
		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, rg.End.Sub(rg.Start))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseRange(contextFor("/x?from=yesterday"), now)
		assert.True(t, apperror.IsValidation(err))
	})

	t.Run("inverted", func(t *testing.T) {
		_, err := parseRange(contextFor("/x?from=2025-06-01&to=2025-05-01"), now)
		assert.True(t, apperror.IsValidation(err))
	})
}

func TestSplitIDs(t *testing.T) {
	c := contextFor("/x?ids=a,b&ids=c&ids=,")
	assert.Equal(t, []string{"a", "b", "c"}, splitIDs(c))
}
