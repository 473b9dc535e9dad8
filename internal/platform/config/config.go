package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration built from the environment so
// main stays lean. Zero values mean "not configured" for optional backends.
type Server struct {
	Addr          string
	JWTSigningKey string

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string

	// LedgerExplorerURL is the base URL used to build viewer links for
	// ledger references in audit-log detail responses.
	LedgerExplorerURL string

	// DocumentCacheTTL bounds how long enrichment lookups may be served from cache.
	DocumentCacheTTL time.Duration

	// AuditDefaultPageSize and AuditMaxPageSize bound verification-log pagination.
	AuditDefaultPageSize int
	AuditMaxPageSize     int

	Environment string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:                 getEnv("KYCORE_ADDR", ":8080"),
		JWTSigningKey:        getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		KafkaBrokers:         os.Getenv("KAFKA_BROKERS"),
		LedgerExplorerURL:    getEnv("LEDGER_EXPLORER_URL", "https://ledger.kycore.dev"),
		DocumentCacheTTL:     getDuration("DOCUMENT_CACHE_TTL", 5*time.Minute),
		AuditDefaultPageSize: getInt("AUDIT_DEFAULT_PAGE_SIZE", 10),
		AuditMaxPageSize:     getInt("AUDIT_MAX_PAGE_SIZE", 100),
		Environment:          getEnv("ENVIRONMENT", "development"),
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
