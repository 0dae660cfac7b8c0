// Package database provides database helper functions
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/shopspring/decimal"
)

// TimeLayout is fixed width so lexical comparison in SQL matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// TestTursoConnectionWithLogger tests the Turso database connection with logging
func TestTursoConnectionWithLogger(ctx context.Context, databaseURL, authToken string, logger *logging.ChanneledLogger) error {
	start := time.Now()
	logger.Database().Debug("Testing Turso database connection", "databaseURL", databaseURL)

	connStr := fmt.Sprintf("%s?authToken=%s", databaseURL, authToken)

	db, err := sql.Open(DriverLibSQL, connStr)
	if err != nil {
		logger.Database().Error("Failed to open Turso connection", "error", err.Error(), "databaseURL", databaseURL)
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		logger.Database().Error("Turso connection test query failed", "error", err.Error(), "databaseURL", databaseURL)
		return fmt.Errorf("connection test query failed: %w", err)
	}

	if result != 1 {
		logger.Database().Error("Unexpected Turso query result", "result", result, "expected", 1, "databaseURL", databaseURL)
		return fmt.Errorf("unexpected query result: %d", result)
	}

	logger.Database().Info("Turso connection test successful", "databaseURL", databaseURL, "duration", time.Since(start))
	return nil
}

// GetSlowQueryThreshold returns the configured slow query threshold
func GetSlowQueryThreshold() time.Duration {
	return config.SlowQueryThreshold
}

// CheckAndLogSlowQuery checks if a query duration exceeds threshold
// and logs it using the slow query channel if it does
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, query string, duration time.Duration, accountID string) {
	threshold := GetSlowQueryThreshold()

	// set-based scheduler and aggregate queries scan whole tables
	if strings.HasPrefix(query, "BULK_") {
		threshold *= 3
	}

	if duration > threshold {
		logger.LogSlowQuery(query, duration, accountID)
	}
}

// FormatTime renders a timestamp in the storage layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a stored timestamp, accepting RFC3339 rows written by other tools.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NullTime renders an optional timestamp for a nullable column.
func NullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// ParseNullTime reads an optional timestamp.
func ParseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// NullString maps an optional string to a nullable column.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// StringPtr maps a nullable column to an optional string.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// ToCents converts money to integer minor units.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromCents converts integer minor units back to money.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// NullCents maps an optional amount to a nullable column.
func NullCents(d *decimal.Decimal) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: ToCents(*d), Valid: true}
}

// CentsPtr maps a nullable column to an optional amount.
func CentsPtr(n sql.NullInt64) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := FromCents(n.Int64)
	return &d
}

// Placeholders returns "?, ?, ..." for n arguments.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
