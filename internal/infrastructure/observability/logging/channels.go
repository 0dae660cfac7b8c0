// Package logging provides structured logging channels for LaunchTrack operations
// with per-account context and slow query reporting.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Channel represents a logical logging channel for different system components
type Channel string

const (
	// System channels
	ChannelSystem   Channel = "system"   // General system operations
	ChannelStartup  Channel = "startup"  // Application startup and initialization
	ChannelShutdown Channel = "shutdown" // Application shutdown and cleanup

	// Business logic channels
	ChannelAuth        Channel = "auth"        // Token validation and share access
	ChannelAttribution Channel = "attribution" // Purchase attribution and re-attribution
	ChannelIdentity    Channel = "identity"    // Visitor and session ingestion
	ChannelLaunch      Channel = "launch"      // Launch lifecycle operations
	ChannelScheduler   Channel = "scheduler"   // Periodic status advancement
	ChannelAnalytics   Channel = "analytics"   // Metrics aggregation and exports
	ChannelCache       Channel = "cache"       // Cache operations and management

	// Infrastructure channels
	ChannelDatabase  Channel = "database"   // Database operations and queries
	ChannelSlowQuery Channel = "slow-query" // Slow database queries

	// Development and debugging channels
	ChannelDebug Channel = "debug"
)

var allChannels = []Channel{
	ChannelSystem, ChannelStartup, ChannelShutdown,
	ChannelAuth, ChannelAttribution, ChannelIdentity, ChannelLaunch,
	ChannelScheduler, ChannelAnalytics, ChannelCache,
	ChannelDatabase, ChannelSlowQuery, ChannelDebug,
}

// ChanneledLogger provides structured logging with multiple channels
type ChanneledLogger struct {
	channels map[Channel]*slog.Logger
	config   *LoggerConfig
	configMu sync.RWMutex
	files    []*os.File
	sink     io.Writer
}

// LoggerConfig contains configuration options for the channeled logger
type LoggerConfig struct {
	OutputToFile    bool   `json:"outputToFile"`
	OutputToConsole bool   `json:"outputToConsole"`
	LogDirectory    string `json:"logDirectory"`

	JSONFormat    bool `json:"jsonFormat"`
	IncludeSource bool `json:"includeSource"`

	DefaultLevel  slog.Level             `json:"defaultLevel"`
	ChannelLevels map[Channel]slog.Level `json:"channelLevels"`
}

// DefaultLoggerConfig returns a sensible default configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		OutputToFile:    false,
		OutputToConsole: true,
		LogDirectory:    "logs",
		JSONFormat:      true,
		IncludeSource:   false,
		DefaultLevel:    slog.LevelInfo,
		ChannelLevels:   make(map[Channel]slog.Level),
	}
}

// ParseLevel maps a textual level onto slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewChanneledLogger creates a new channeled logger with the given configuration
func NewChanneledLogger(config *LoggerConfig) (*ChanneledLogger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.ChannelLevels == nil {
		config.ChannelLevels = make(map[Channel]slog.Level)
	}

	logger := &ChanneledLogger{
		channels: make(map[Channel]*slog.Logger),
		config:   config,
	}

	if config.OutputToFile {
		if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	for _, channel := range allChannels {
		channelLogger, err := logger.createChannelLogger(channel)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger for channel %s: %w", channel, err)
		}
		logger.channels[channel] = channelLogger
	}

	return logger, nil
}

// NewNopLogger returns a logger that discards everything. Used by tests and CLI tools.
func NewNopLogger() *ChanneledLogger {
	return NewWriterLogger(io.Discard, slog.LevelError)
}

// NewWriterLogger routes every channel to a single writer.
func NewWriterLogger(w io.Writer, level slog.Level) *ChanneledLogger {
	logger := &ChanneledLogger{
		channels: make(map[Channel]*slog.Logger),
		config: &LoggerConfig{
			DefaultLevel:  level,
			ChannelLevels: make(map[Channel]slog.Level),
		},
		sink: w,
	}
	for _, channel := range allChannels {
		// createChannelLogger cannot fail without file output
		channelLogger, _ := logger.createChannelLogger(channel)
		logger.channels[channel] = channelLogger
	}
	return logger
}

// createChannelLogger creates a slog.Logger for a specific channel
func (cl *ChanneledLogger) createChannelLogger(channel Channel) (*slog.Logger, error) {
	cl.configMu.RLock()
	defer cl.configMu.RUnlock()

	level := cl.config.DefaultLevel
	if channelLevel, exists := cl.config.ChannelLevels[channel]; exists {
		level = channelLevel
	}

	var writers []io.Writer
	if cl.sink != nil {
		writers = append(writers, cl.sink)
	}

	if cl.config.OutputToConsole {
		writers = append(writers, os.Stdout)
	}

	if cl.config.OutputToFile {
		filename := fmt.Sprintf("%s.log", string(channel))
		path := filepath.Join(cl.config.LogDirectory, filename)

		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		cl.files = append(cl.files, file)
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cl.config.IncludeSource,
	}

	var handler slog.Handler
	if cl.config.JSONFormat {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	return slog.New(handler).With(slog.String("channel", string(channel))), nil
}

func (cl *ChanneledLogger) System() *slog.Logger      { return cl.GetChannel(ChannelSystem) }
func (cl *ChanneledLogger) Startup() *slog.Logger     { return cl.GetChannel(ChannelStartup) }
func (cl *ChanneledLogger) Shutdown() *slog.Logger    { return cl.GetChannel(ChannelShutdown) }
func (cl *ChanneledLogger) Auth() *slog.Logger        { return cl.GetChannel(ChannelAuth) }
func (cl *ChanneledLogger) Attribution() *slog.Logger { return cl.GetChannel(ChannelAttribution) }
func (cl *ChanneledLogger) Identity() *slog.Logger    { return cl.GetChannel(ChannelIdentity) }
func (cl *ChanneledLogger) Launch() *slog.Logger      { return cl.GetChannel(ChannelLaunch) }
func (cl *ChanneledLogger) Scheduler() *slog.Logger   { return cl.GetChannel(ChannelScheduler) }
func (cl *ChanneledLogger) Analytics() *slog.Logger   { return cl.GetChannel(ChannelAnalytics) }
func (cl *ChanneledLogger) Cache() *slog.Logger       { return cl.GetChannel(ChannelCache) }
func (cl *ChanneledLogger) Database() *slog.Logger    { return cl.GetChannel(ChannelDatabase) }
func (cl *ChanneledLogger) SlowQuery() *slog.Logger   { return cl.GetChannel(ChannelSlowQuery) }
func (cl *ChanneledLogger) Debug() *slog.Logger       { return cl.GetChannel(ChannelDebug) }

// GetChannel returns a logger for a specific channel
func (cl *ChanneledLogger) GetChannel(channel Channel) *slog.Logger {
	cl.configMu.RLock()
	defer cl.configMu.RUnlock()
	if logger, exists := cl.channels[channel]; exists {
		return logger
	}
	return cl.channels[ChannelSystem]
}

// WithAccount returns a logger with account context
func (cl *ChanneledLogger) WithAccount(channel Channel, accountID string) *slog.Logger {
	return cl.GetChannel(channel).With(slog.String("accountId", accountID))
}

type contextKey string

const (
	// ContextKeyAccountID carries the authenticated account through request contexts.
	ContextKeyAccountID contextKey = "accountId"
	// ContextKeyRequestID carries the request correlation id.
	ContextKeyRequestID contextKey = "requestId"
)

// WithContext returns a logger with context from the provided context.Context
func (cl *ChanneledLogger) WithContext(channel Channel, ctx context.Context) *slog.Logger {
	logger := cl.GetChannel(channel)

	if accountID, ok := ctx.Value(ContextKeyAccountID).(string); ok && accountID != "" {
		logger = logger.With(slog.String("accountId", accountID))
	}
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok && requestID != "" {
		logger = logger.With(slog.String("requestId", requestID))
	}

	return logger
}

// LogSlowQuery logs a slow database query
func (cl *ChanneledLogger) LogSlowQuery(query string, duration time.Duration, accountID string) {
	cl.SlowQuery().Warn("Slow query detected",
		slog.String("query", cl.sanitizeQuery(query)),
		slog.Duration("duration", duration),
		slog.String("accountId", accountID),
	)
}

// LogCacheOperation logs cache operations with timing context
func (cl *ChanneledLogger) LogCacheOperation(operation, key string, hit bool, duration time.Duration, accountID string) {
	logger := cl.Cache().With(
		slog.String("operation", operation),
		slog.String("key", key),
		slog.Bool("hit", hit),
		slog.Duration("duration", duration),
		slog.String("accountId", accountID),
	)

	if hit {
		logger.Debug("Cache hit")
	} else {
		logger.Debug("Cache miss")
	}
}

// LogError logs an error with appropriate context and channel
func (cl *ChanneledLogger) LogError(channel Channel, operation string, err error, accountID string, metadata map[string]any) {
	logger := cl.GetChannel(channel).With(
		slog.String("operation", operation),
		slog.String("accountId", accountID),
		slog.String("error", err.Error()),
	)

	for key, value := range metadata {
		logger = logger.With(slog.Any(key, value))
	}

	logger.Error("Operation failed")
}

// LogStartupPhase logs application startup phases
func (cl *ChanneledLogger) LogStartupPhase(phase string, duration time.Duration, success bool, metadata map[string]any) {
	logger := cl.Startup().With(
		slog.String("phase", phase),
		slog.Duration("duration", duration),
		slog.Bool("success", success),
	)

	for key, value := range metadata {
		logger = logger.With(slog.Any(key, value))
	}

	if success {
		logger.Info("Startup phase completed")
	} else {
		logger.Error("Startup phase failed")
	}
}

// sanitizeQuery flattens whitespace and truncates long SQL for logging
func (cl *ChanneledLogger) sanitizeQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) > 500 {
		query = query[:500] + "..."
	}
	return query
}

// MaskEmail partially masks an email address for logs.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "****"
	}
	local := email[:at]
	if len(local) <= 2 {
		return "**" + email[at:]
	}
	return local[:2] + "****" + email[at:]
}

// Close releases file handles opened for file output
func (cl *ChanneledLogger) Close() error {
	cl.System().Info("Channeled logger shutting down")
	var firstErr error
	for _, f := range cl.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetChannelLevel dynamically sets the log level for a specific channel
func (cl *ChanneledLogger) SetChannelLevel(channel Channel, level slog.Level) error {
	cl.configMu.Lock()
	if _, exists := cl.channels[channel]; !exists {
		cl.configMu.Unlock()
		return fmt.Errorf("channel %s does not exist", channel)
	}
	cl.config.ChannelLevels[channel] = level
	cl.configMu.Unlock()

	newLogger, err := cl.createChannelLogger(channel)
	if err != nil {
		return fmt.Errorf("failed to recreate logger for channel %s: %w", channel, err)
	}

	cl.configMu.Lock()
	cl.channels[channel] = newLogger
	cl.configMu.Unlock()

	cl.System().Info("Channel log level updated dynamically",
		slog.String("channel", string(channel)),
		slog.String("level", level.String()),
	)
	return nil
}

// ApplyChannelLevels sets per-channel levels from a list such as "database=debug,cache=warn".
func (cl *ChanneledLogger) ApplyChannelLevels(spec string) error {
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, level, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid channel level %q, want channel=level", pair)
		}
		if err := cl.SetChannelLevel(Channel(strings.TrimSpace(name)), ParseLevel(level)); err != nil {
			return err
		}
	}
	return nil
}

// GetChannelLevels returns the current log levels for all channels.
func (cl *ChanneledLogger) GetChannelLevels() map[string]string {
	cl.configMu.RLock()
	defer cl.configMu.RUnlock()

	levels := make(map[string]string)
	for channel := range cl.channels {
		if level, ok := cl.config.ChannelLevels[channel]; ok {
			levels[string(channel)] = level.String()
		} else {
			levels[string(channel)] = cl.config.DefaultLevel.String()
		}
	}
	return levels
}
