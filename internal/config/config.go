package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable via STORE_BACKEND.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	// Environment is ENV, e.g. production or development.
	Environment string

	StoreBackend string
	PostgresDSN  string
	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisAddr    string
	CacheEnabled bool
	ListCacheTTL time.Duration

	ClickHouseDSN    string
	AnalyticsEnabled bool
	GeoIPDB          string

	TokenSecret string
	TokenTTL    time.Duration

	UploadDir        string
	EvidenceMaxFiles int
	EvidenceMaxBytes int64

	// Submission throttling, per caller
	RateLimitEnabled    bool
	RateLimitCapacity   int
	RateLimitRefillRate int

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "5000")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 15*time.Second)
	// uploads of up to five 10MB files need a generous write window
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 30*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "pollwatch")
	cfg.Environment = getenv("ENV", "production")

	cfg.StoreBackend = getenv("STORE_BACKEND", StoreBackendPostgres)
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/pollwatch?sslmode=disable")
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.CacheEnabled = envBool("CACHE_ENABLED", true)
	cfg.ListCacheTTL = envDuration("LIST_CACHE_TTL", 30*time.Second)

	cfg.ClickHouseDSN = getenv("CLICKHOUSE_DSN", "clickhouse://default:@localhost:9000/default?async_insert=1&wait_for_async_insert=1")
	cfg.AnalyticsEnabled = envBool("ANALYTICS_ENABLED", false)
	cfg.GeoIPDB = getenv("GEOIP_DB", "data/GeoLite2-City.mmdb")

	cfg.TokenSecret = getenv("TOKEN_SECRET", "")
	cfg.TokenTTL = envDuration("TOKEN_TTL", 24*time.Hour)

	cfg.UploadDir = getenv("UPLOAD_DIR", "uploads")
	cfg.EvidenceMaxFiles = envInt("EVIDENCE_MAX_FILES", 5)
	cfg.EvidenceMaxBytes = envInt64("EVIDENCE_MAX_BYTES", 10<<20)

	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 10)
	cfg.RateLimitRefillRate = envInt("RATE_LIMIT_REFILL_RATE", 1)

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envParse returns parse(value) for a set variable and def when it is unset
// or fails to parse.
func envParse[T any](key string, def T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if out, err := parse(v); err == nil {
		return out
	}
	return def
}

// envDuration accepts a duration string ("5s") or a bare number of seconds.
func envDuration(key string, def time.Duration) time.Duration {
	return envParse(key, def, func(v string) (time.Duration, error) {
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
		secs, err := strconv.Atoi(v)
		return time.Duration(secs) * time.Second, err
	})
}

func envBool(key string, def bool) bool { return envParse(key, def, strconv.ParseBool) }

func envInt(key string, def int) int { return envParse(key, def, strconv.Atoi) }

func envInt64(key string, def int64) int64 {
	return envParse(key, def, func(v string) (int64, error) { return strconv.ParseInt(v, 10, 64) })
}

func envFloat(key string, def float64) float64 {
	return envParse(key, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}
