package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyChannelLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, slog.LevelInfo)

	require.NoError(t, logger.ApplyChannelLevels("database=debug, cache = warn,"))
	levels := logger.GetChannelLevels()
	assert.Equal(t, "DEBUG", levels["database"])
	assert.Equal(t, "WARN", levels["cache"])
	assert.Equal(t, "INFO", levels["scheduler"])

	buf.Reset()
	logger.Database().Debug("query plan")
	logger.Cache().Info("cache hit")
	logger.Scheduler().Debug("tick")
	assert.Contains(t, buf.String(), "query plan")
	assert.NotContains(t, buf.String(), "cache hit")
	assert.NotContains(t, buf.String(), "tick")

	t.Run("rejects malformed entries", func(t *testing.T) {
		assert.Error(t, logger.ApplyChannelLevels("database"))
		assert.Error(t, logger.ApplyChannelLevels("nope=debug"))
	})

	t.Run("empty list is a no-op", func(t *testing.T) {
		assert.NoError(t, logger.ApplyChannelLevels(""))
	})
}

func TestWithAccount(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, slog.LevelInfo)

	logger.WithAccount(ChannelSystem, "acct_7").Info("Job finished")
	assert.Contains(t, buf.String(), "accountId=acct_7")
	assert.Contains(t, buf.String(), "channel=system")
}
