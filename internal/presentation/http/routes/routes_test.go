package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/application/container"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/clock"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/launchtrack-go/internal/testutil"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "route-test-secret"

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type api struct {
	t      *testing.T
	router *gin.Engine
	token  string
	mailer *email.LogService
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.JWTSecret = testSecret

	logger := logging.NewNopLogger()
	clk := clock.Fixed{T: now}
	mailer := email.NewLogService(logger)
	c, err := container.NewContainer(context.Background(), testutil.NewDB(t), logger, container.Options{
		Clock:  clk,
		Cache:  stores.NewMetricsStore(clk),
		Mailer: mailer,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	token, err := security.GenerateAccountToken("acct_1", testSecret, time.Hour)
	require.NoError(t, err)
	return &api{t: t, router: SetupRoutes(c), token: token, mailer: mailer}
}

func (a *api) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *api) authed(method, path, body string) *httptest.ResponseRecorder {
	return a.do(method, path, body, map[string]string{"Authorization": "Bearer " + a.token})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *api) createLaunch(title string, start, end time.Time) string {
	a.t.Helper()
	body := `{"title":"` + title + `","startDate":"` + start.Format(time.RFC3339) + `","endDate":"` + end.Format(time.RFC3339) + `"}`
	w := a.authed(http.MethodPost, "/api/v1/launches", body)
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(a.t, w)["id"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	w := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["database"])

	w = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "launchtrack_http_requests_total")
}

func TestAuthRequired(t *testing.T) {
	a := newAPI(t)

	tests := []struct {
		name   string
		header map[string]string
	}{
		{"no header", nil},
		{"not bearer", map[string]string{"Authorization": "Basic abc"}},
		{"bad token", map[string]string{"Authorization": "Bearer nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(http.MethodGet, "/api/v1/launches", "", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestLaunchLifecycleRoutes(t *testing.T) {
	a := newAPI(t)
	id := a.createLaunch("Spring", now.Add(-24*time.Hour), now.Add(7*24*time.Hour))

	w := a.authed(http.MethodGet, "/api/v1/launches/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", decode(t, w)["status"])

	w = a.authed(http.MethodPatch, "/api/v1/launches/"+id, `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode(t, w)["title"])

	w = a.authed(http.MethodPatch, "/api/v1/launches/"+id, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decode(t, w)["code"])

	w = a.authed(http.MethodGet, "/api/v1/launches?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = a.authed(http.MethodGet, "/api/v1/launches?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.authed(http.MethodDelete, "/api/v1/launches/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.authed(http.MethodGet, "/api/v1/launches/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["code"])
}

func TestPurchaseRoutes(t *testing.T) {
	a := newAPI(t)

	w := a.authed(http.MethodPost, "/api/v1/track/visit",
		`{"visitorToken":"vt_1","sessionToken":"st_1","source":"google","email":"buyer@example.com","occurredAt":"2025-05-30T10:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = a.authed(http.MethodPost, "/api/v1/purchases",
		`{"email":"Buyer@example.com","amount":"99.00","platform":"teachable","platformPurchaseId":"tch_1","purchasedAt":"2025-05-31T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "matched", body["status"])
	assert.Equal(t, "email", body["method"])

	w = a.authed(http.MethodPost, "/api/v1/purchases", `{"email":"x@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.authed(http.MethodGet, "/api/v1/attribution/match-rate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(100), decode(t, w)["matchRate"])

	w = a.authed(http.MethodPost, "/api/v1/purchases/refund", `{"platform":"teachable","platformPurchaseId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.authed(http.MethodPost, "/api/v1/purchases/refund", `{"platform":"teachable","platformPurchaseId":"tch_1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestShareRoutes(t *testing.T) {
	a := newAPI(t)
	id := a.createLaunch("Spring", now.Add(-72*time.Hour), now.Add(-24*time.Hour))

	w := a.authed(http.MethodPost, "/api/v1/launches/"+id+"/share", `{"password":"s3cret"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decode(t, w)["shareToken"].(string)
	path := "/api/v1/share/" + token

	tests := []struct {
		name     string
		password string
		want     int
	}{
		{"missing password", "", http.StatusUnauthorized},
		{"wrong password", "nope", http.StatusForbidden},
		{"right password", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.password != "" {
				headers["X-Share-Password"] = tt.password
			}
			w := a.do(http.MethodGet, path, "", headers)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w = a.authed(http.MethodGet, "/api/v1/launches/"+id+"/views", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = a.authed(http.MethodDelete, "/api/v1/launches/"+id+"/share", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(http.MethodGet, path, "", map[string]string{"X-Share-Password": "s3cret"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyticsRoutes(t *testing.T) {
	a := newAPI(t)

	w := a.authed(http.MethodGet, "/api/v1/analytics/export?from=2025-05-01&to=2025-05-31", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Equal(t, "Source,Visitors,Revenue,Students,Conversion Rate %,Avg Order Value,Revenue Per Visitor", w.Body.String())

	w = a.authed(http.MethodGet, "/api/v1/analytics/summary?from=2025-06-01&to=2025-05-01", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.authed(http.MethodGet, "/api/v1/analytics/drilldown", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.authed(http.MethodGet, "/api/v1/launches/compare?ids=a,b,c,d", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.authed(http.MethodGet, "/api/v1/analytics/recent", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])
}
