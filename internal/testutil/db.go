// Package testutil provides reusable test utilities for repository and service tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	schema "github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/database"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
)

// NewDB opens an isolated in-memory SQLite database with the full schema.
// The pool is pinned to one connection so the shared-cache database lives as long as the test.
func NewDB(t *testing.T) *database.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", security.GenerateULID())
	db, err := database.NewConnection(database.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := schema.NewTableCreator().CreateSchema(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
