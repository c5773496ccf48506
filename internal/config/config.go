package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	SeedDemo bool

	RateLimit RateLimitConfig

	CloudMetrics CloudMetricsConfig
}

// RateLimitConfig configures the redis-backed ingest limiter.
type RateLimitConfig struct {
	Enabled              bool
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	IngestTenantRate     float64
	IngestTenantBurst    int
	IngestEndpointRate   float64
	IngestEndpointBurst  int
	IngestLockTTLSeconds int
}

// CloudMetricsConfig configures the optional remote-write metrics pusher.
type CloudMetricsConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	TenantTag string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "halo"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "halo"),
		DBUser:            getenv("DATABASE_USER", "halo"),
		DBPassword:        getenv("DATABASE_PASSWORD", "halo"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		SeedDemo: getenvBool("SEED_DEMO_DATA", false),

		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:            strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword:        strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:              getenvInt("RATE_LIMIT_REDIS_DB", 0),
			IngestTenantRate:     getenvFloat("RATE_LIMIT_INGEST_TENANT_RATE", 50),
			IngestTenantBurst:    getenvInt("RATE_LIMIT_INGEST_TENANT_BURST", 100),
			IngestEndpointRate:   getenvFloat("RATE_LIMIT_INGEST_ENDPOINT_RATE", 200),
			IngestEndpointBurst:  getenvInt("RATE_LIMIT_INGEST_ENDPOINT_BURST", 400),
			IngestLockTTLSeconds: getenvInt("RATE_LIMIT_INGEST_LOCK_TTL", 30),
		},

		CloudMetrics: CloudMetricsConfig{
			Enabled:   getenvBool("CLOUD_METRICS_ENABLED", false),
			Exporter:  strings.ToLower(getenv("CLOUD_METRICS_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("CLOUD_METRICS_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("CLOUD_METRICS_AUTH_TOKEN", "")),
			TenantTag: strings.TrimSpace(getenv("CLOUD_METRICS_TENANT_TAG", "")),
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
