// Package config provides centralized default values for PerkCity
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

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

	// Database
	SQLitePath   string
	TursoDBURL   string
	TursoDBToken string

	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int

	// Identity
	JWTSecret string

	// Server Cache TTLs
	CatalogDetailTTL time.Duration
	CatalogListTTL   time.Duration
	FeatureTTL       time.Duration

	// Cache maintenance
	CacheCleanupInterval time.Duration
	CacheMaxEntries      int

	// Realtime Configuration
	BroadcastParallelism    int
	BroadcastSendTimeout    time.Duration
	HeartbeatInterval       time.Duration
	ConnectionStaleAfter    time.Duration
	RegistryCleanupInterval time.Duration
	RegistryCleanupVerbose  bool

	// Logging
	LogLevel  string
	LogFormat string
)

func init() {
	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database
	SQLitePath = getEnvString("SQLITE_PATH", "data/perkcity.db")
	TursoDBURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoDBToken = getEnvString("TURSO_AUTH_TOKEN", "")

	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)

	// Identity
	JWTSecret = getEnvString("JWT_SECRET", "")

	// Server Cache TTLs. Catalog detail entries are shared by every consumer
	// on the same plan so they can live longer; feature lookups gate monetized
	// access and must go stale quickly.
	CatalogDetailTTL = time.Duration(getEnvInt("CATALOG_DETAIL_TTL_MINUTES", 30)) * time.Minute
	CatalogListTTL = time.Duration(getEnvInt("CATALOG_LIST_TTL_MINUTES", 10)) * time.Minute
	FeatureTTL = time.Duration(getEnvInt("FEATURE_TTL_MINUTES", 5)) * time.Minute

	// Cache maintenance
	CacheCleanupInterval = time.Duration(getEnvInt("CACHE_CLEANUP_INTERVAL_MINUTES", 10)) * time.Minute
	CacheMaxEntries = getEnvInt("CACHE_MAX_ENTRIES", 50000)

	// Realtime Configuration
	BroadcastParallelism = getEnvInt("BROADCAST_PARALLELISM", 16)
	BroadcastSendTimeout = getEnvDuration("BROADCAST_SEND_TIMEOUT", 5*time.Second)
	HeartbeatInterval = time.Duration(getEnvInt("HEARTBEAT_INTERVAL_SECONDS", 30)) * time.Second
	ConnectionStaleAfter = time.Duration(getEnvInt("CONNECTION_STALE_AFTER_MINUTES", 30)) * time.Minute
	RegistryCleanupInterval = time.Duration(getEnvInt("REGISTRY_CLEANUP_INTERVAL_MINUTES", 5)) * time.Minute
	RegistryCleanupVerbose = getEnvBool("REGISTRY_CLEANUP_VERBOSE", false)

	// Logging
	LogLevel = getEnvString("LOG_LEVEL", "info")
	LogFormat = getEnvString("LOG_FORMAT", "text")
}
