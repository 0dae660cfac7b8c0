package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AtRiskMedia/launchtrack-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/launchtrack-go/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempDatabase(t *testing.T) {
	t.Helper()
	driver, path, backend := config.DatabaseDriver, config.DatabasePath, config.CacheBackend
	config.DatabaseDriver = "sqlite3"
	config.DatabasePath = filepath.Join(t.TempDir(), "admin.db")
	config.CacheBackend = "memory"
	t.Cleanup(func() {
		config.DatabaseDriver, config.DatabasePath, config.CacheBackend = driver, path, backend
	})
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAdminCommands(t *testing.T) {
	useTempDatabase(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema ready")

	out, err = run(t, "tick")
	require.NoError(t, err)
	assert.Equal(t, "activated=0 completed=0\n", out)

	out, err = run(t, "match-rate", "--account", "acct_1")
	require.NoError(t, err)
	assert.Equal(t, "matched=0 total=0 rate=0%\n", out)

	out, err = run(t, "reattribute", "--account", "acct_1")
	require.NoError(t, err)
	assert.Equal(t, "checked=0 matched=0\n", out)

	out, err = run(t, "export", "--account", "acct_1", "--from", "2025-05-01", "--to", "2025-05-31")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Source,Visitors,Revenue"))

	_, err = run(t, "export", "--account", "acct_1", "--from", "nope")
	assert.Error(t, err)

	_, err = run(t, "match-rate")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	secret := config.JWTSecret
	config.JWTSecret = "admin-test-secret"
	t.Cleanup(func() { config.JWTSecret = secret })

	out, err := run(t, "token", "--account", "acct_7", "--ttl", "1h")
	require.NoError(t, err)

	accountID, err := security.ValidateAccountToken(strings.TrimSpace(out), config.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "acct_7", accountID)
}

func TestParseDates(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

	rg, err := parseDates("", "", now)
	require.NoError(t, err)
	assert.Equal(t, now, rg.End)
	assert.Equal(t, now.AddDate(0, 0, -30), rg.Start)

	rg, err = parseDates("2025-06-01", "2025-06-01", now)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, rg.End.Sub(rg.Start))

	_, err = parseDates("2025-06-02", "2025-06-01", now)
	assert.Error(t, err)
}
