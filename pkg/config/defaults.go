// Package config provides centralized default values for LaunchTrack
package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

// loadEnvFile applies .env overrides without clobbering variables already set in the environment.
func loadEnvFile() {
	envLoaded.Do(func() {
		if _, err := os.Stat(".env"); err != nil {
			return
		}
		log.Println("Loading configuration overrides from .env file...")
		if err := godotenv.Load(); err != nil {
			log.Printf("Failed to load .env file: %v", err)
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvSecret(key string) string {
	return os.Getenv(key)
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	PublicBaseURL      string
	GinMode            string

	// Database
	DatabaseDriver           string
	DatabasePath             string
	TursoDatabaseURL         string
	TursoAuthToken           string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBQueryTimeout           time.Duration
	SlowQueryThreshold       time.Duration

	// Attribution
	FingerprintWindowHours int
	DefaultCurrency        string

	// Launch lifecycle
	SchedulerInterval     time.Duration
	JobTimeout            time.Duration
	DuplicateLaunchSpan   time.Duration
	ShareTokenBytes       int
	RecentPurchasesLimit  int
	MaxComparedLaunches   int
	DefaultLaunchPageSize int

	// Cache Configuration
	CacheBackend         string
	RedisURL             string
	LaunchCacheTTL       time.Duration
	DashboardCacheTTL    time.Duration
	CacheCleanupInterval time.Duration

	// Auth
	JWTSecret string

	// Email
	ResendAPIKey  string
	EmailFrom     string
	EmailFromName string

	// Logging
	LogLevel         string
	LogChannelLevels string
	LogJSON          bool
	LogToFile        bool
	LogDirectory     string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
	ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	PublicBaseURL = getEnvString("PUBLIC_BASE_URL", "http://localhost:4321")
	GinMode = getEnvString("GIN_MODE", "debug")

	// Database
	DatabaseDriver = getEnvString("DATABASE_DRIVER", "sqlite3")
	DatabasePath = getEnvString("DATABASE_PATH", "db/launchtrack.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvSecret("TURSO_AUTH_TOKEN")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBQueryTimeout = getEnvDuration("DB_QUERY_TIMEOUT", 10*time.Second)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 500*time.Millisecond)

	// Attribution
	FingerprintWindowHours = getEnvInt("FINGERPRINT_WINDOW_HOURS", 24)
	DefaultCurrency = getEnvString("DEFAULT_CURRENCY", "USD")

	// Launch lifecycle
	SchedulerInterval = getEnvDuration("SCHEDULER_INTERVAL", 5*time.Minute)
	JobTimeout = getEnvDuration("JOB_TIMEOUT", 30*time.Minute)
	DuplicateLaunchSpan = time.Duration(getEnvInt("DUPLICATE_LAUNCH_DAYS", 7)) * 24 * time.Hour
	ShareTokenBytes = getEnvInt("SHARE_TOKEN_BYTES", 24)
	RecentPurchasesLimit = getEnvInt("RECENT_PURCHASES_LIMIT", 20)
	MaxComparedLaunches = 3
	DefaultLaunchPageSize = getEnvInt("DEFAULT_LAUNCH_PAGE_SIZE", 20)

	// Cache Configuration
	CacheBackend = getEnvString("CACHE_BACKEND", "memory")
	RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	LaunchCacheTTL = getEnvDuration("LAUNCH_CACHE_TTL", time.Hour)
	DashboardCacheTTL = getEnvDuration("DASHBOARD_CACHE_TTL", 5*time.Minute)
	CacheCleanupInterval = getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute)

	// Auth
	JWTSecret = getEnvSecret("JWT_SECRET")

	// Email
	ResendAPIKey = getEnvSecret("RESEND_API_KEY")
	EmailFrom = getEnvString("EMAIL_FROM", "noreply@launchtrack.app")
	EmailFromName = getEnvString("EMAIL_FROM_NAME", "LaunchTrack")

	// Logging
	LogLevel = getEnvString("LOG_LEVEL", "info")
	LogChannelLevels = getEnvString("LOG_CHANNEL_LEVELS", "")
	LogJSON = getEnvBool("LOG_JSON", true)
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
}
