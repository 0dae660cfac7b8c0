// Package database provides schema creation for the attribution store
package database

import (
	"context"
	"fmt"

	persistence "github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
)

// TableCreator handles the creation of the database schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and indexes. It is idempotent.
func (tc *TableCreator) CreateSchema(ctx context.Context, db persistence.Querier) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// Timestamps are TEXT in persistence.TimeLayout; money is INTEGER cents.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS visitors (id TEXT PRIMARY KEY, account_id TEXT NOT NULL, visitor_token TEXT NOT NULL, email TEXT, fingerprint TEXT, first_source TEXT NOT NULL DEFAULT '', first_medium TEXT NOT NULL DEFAULT '', first_campaign TEXT NOT NULL DEFAULT '', first_content TEXT NOT NULL DEFAULT '', first_term TEXT NOT NULL DEFAULT '', first_referrer TEXT NOT NULL DEFAULT '', first_landing_page TEXT NOT NULL DEFAULT '', first_touch_at TEXT NOT NULL, created_at TEXT NOT NULL, UNIQUE(account_id, visitor_token))`,
	`CREATE TABLE IF NOT EXISTS sessions (id TEXT PRIMARY KEY, visitor_id TEXT NOT NULL REFERENCES visitors(id), session_token TEXT NOT NULL, source TEXT NOT NULL DEFAULT '', medium TEXT NOT NULL DEFAULT '', campaign TEXT NOT NULL DEFAULT '', content TEXT NOT NULL DEFAULT '', term TEXT NOT NULL DEFAULT '', referrer TEXT NOT NULL DEFAULT '', landing_page TEXT NOT NULL DEFAULT '', occurred_at TEXT NOT NULL, UNIQUE(visitor_id, session_token))`,
	`CREATE TABLE IF NOT EXISTS launches (id TEXT PRIMARY KEY, account_id TEXT NOT NULL, title TEXT NOT NULL, description TEXT, start_date TEXT NOT NULL, end_date TEXT NOT NULL, revenue_goal_cents INTEGER, sales_goal INTEGER, status TEXT NOT NULL, share_token TEXT UNIQUE, share_password_hash TEXT, share_expires_at TEXT, cached_revenue_cents INTEGER, cached_students INTEGER, cached_conversion_rate REAL, cache_updated_at TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL, CHECK (end_date > start_date))`,
	`CREATE TABLE IF NOT EXISTS purchases (id TEXT PRIMARY KEY, account_id TEXT NOT NULL, visitor_id TEXT REFERENCES visitors(id), launch_id TEXT REFERENCES launches(id) ON DELETE SET NULL, email TEXT NOT NULL, amount_cents INTEGER NOT NULL CHECK (amount_cents >= 0), currency TEXT NOT NULL, course_name TEXT NOT NULL DEFAULT '', platform TEXT NOT NULL, platform_purchase_id TEXT NOT NULL, first_source TEXT, first_medium TEXT, first_campaign TEXT, first_content TEXT, first_term TEXT, first_referrer TEXT, first_landing_page TEXT, first_touch_at TEXT, last_source TEXT, last_medium TEXT, last_campaign TEXT, last_content TEXT, last_term TEXT, last_referrer TEXT, last_landing_page TEXT, last_touch_at TEXT, attribution_status TEXT NOT NULL, refunded_at TEXT, purchased_at TEXT NOT NULL, created_at TEXT NOT NULL, updated_at TEXT NOT NULL, UNIQUE(account_id, platform, platform_purchase_id))`,
	`CREATE TABLE IF NOT EXISTS launch_views (id TEXT PRIMARY KEY, launch_id TEXT NOT NULL REFERENCES launches(id) ON DELETE CASCADE, viewer_ip TEXT, user_agent TEXT, viewed_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS sync_jobs (id TEXT PRIMARY KEY, account_id TEXT NOT NULL, kind TEXT NOT NULL, status TEXT NOT NULL, processed INTEGER NOT NULL DEFAULT 0, error TEXT, started_at TEXT NOT NULL, finished_at TEXT)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_visitors_account_email ON visitors(account_id, email, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_visitors_account_fingerprint ON visitors(account_id, fingerprint, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_visitors_account_created ON visitors(account_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_visitor_occurred ON sessions(visitor_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_account_purchased ON purchases(account_id, purchased_at)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_account_status ON purchases(account_id, attribution_status)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_launch_id ON purchases(launch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_account_email ON purchases(account_id, email)`,
	`CREATE INDEX IF NOT EXISTS idx_launches_account_status ON launches(account_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_launches_status_dates ON launches(status, start_date, end_date)`,
	`CREATE INDEX IF NOT EXISTS idx_launch_views_launch ON launch_views(launch_id, viewed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_jobs_account ON sync_jobs(account_id, started_at)`,
}
