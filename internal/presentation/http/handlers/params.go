package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/domain/apperror"
	"github.com/AtRiskMedia/launchtrack-go/internal/domain/metrics"
	"github.com/gin-gonic/gin"
)

const (
	dateLayout       = "2006-01-02"
	defaultRangeDays = 30
)

// parseRange reads ?from=&to= as RFC3339 instants or calendar dates. A date-only "to" covers
// that whole day. Missing bounds default to the last 30 days ending now.
func parseRange(c *gin.Context, now time.Time) (metrics.DateRange, error) {
	rg := metrics.DateRange{End: now, Start: now.AddDate(0, 0, -defaultRangeDays)}

	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		end, dateOnly, err := parseInstant(raw)
		if err != nil {
			return rg, apperror.Validation(fmt.Sprintf("invalid to: %s", raw))
		}
		if dateOnly {
			end = end.AddDate(0, 0, 1)
		}
		rg.End = end
		rg.Start = end.AddDate(0, 0, -defaultRangeDays)
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		start, _, err := parseInstant(raw)
		if err != nil {
			return rg, apperror.Validation(fmt.Sprintf("invalid from: %s", raw))
		}
		rg.Start = start
	}
	return rg, rg.Validate()
}

func parseInstant(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateLayout, raw)
	return t.UTC(), true, err
}

// queryInt reads a positive integer query parameter, returning def when absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.Validation(fmt.Sprintf("%s must be a non-negative integer", name))
	}
	return n, nil
}

// splitIDs accepts ids=a,b and repeated ids=a&ids=b.
func splitIDs(c *gin.Context) []string {
	var ids []string
	for _, v := range c.QueryArray("ids") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
