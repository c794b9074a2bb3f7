package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewMeteringConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	Lock      LockConfig
	Dedupe    DedupeConfig
	Pricing   PricingConfig
	RateLimit RateLimitConfig
	Reconcile ReconcileConfig
	Auth      AuthConfig

	CORSAllowedOrigins []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type LockConfig struct {
	Backend string
	TTL     time.Duration
	Wait    time.Duration
}

type DedupeConfig struct {
	Backend    string
	Retention  time.Duration
	MaxEntries int
}

type PricingConfig struct {
	SnapshotTTL           time.Duration
	CatalogPath           string
	BootstrapExchangeRate string
}

type RateLimitConfig struct {
	Enabled              bool
	UsageIngestUserRate  float64
	UsageIngestUserBurst int
}

type ReconcileConfig struct {
	Interval  time.Duration
	BatchSize int
	Timeout   time.Duration
}

type AuthConfig struct {
	Enabled        bool
	BootstrapKey   string
	BootstrapRole  string
	BootstrapLabel string
}

const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "tokenledger"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tokenledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "tokenledger.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Lock: LockConfig{
			Backend: normalizeBackend(getenv("ACCOUNT_LOCK_BACKEND", BackendLocal), BackendLocal),
			TTL:     getenvDuration("ACCOUNT_LOCK_TTL", 10*time.Second),
			Wait:    getenvDuration("ACCOUNT_LOCK_WAIT", 5*time.Second),
		},
		Dedupe: DedupeConfig{
			Backend:    normalizeBackend(getenv("DEDUPE_BACKEND", BackendMemory), BackendMemory),
			Retention:  getenvDuration("DEDUPE_RETENTION", 24*time.Hour),
			MaxEntries: getenvInt("DEDUPE_MAX_ENTRIES", 100_000),
		},
		Pricing: PricingConfig{
			SnapshotTTL:           getenvDuration("PRICING_SNAPSHOT_TTL", 5*time.Minute),
			CatalogPath:           strings.TrimSpace(getenv("PRICING_CATALOG_PATH", "")),
			BootstrapExchangeRate: strings.TrimSpace(getenv("BOOTSTRAP_EXCHANGE_RATE", "")),
		},
		RateLimit: RateLimitConfig{
			Enabled:              getenvBool("RATE_LIMIT_ENABLED", false),
			UsageIngestUserRate:  getenvFloat("RATE_LIMIT_USAGE_USER_RATE", 20),
			UsageIngestUserBurst: getenvInt("RATE_LIMIT_USAGE_USER_BURST", 40),
		},
		Reconcile: ReconcileConfig{
			Interval:  getenvDuration("BILLING_RECONCILE_INTERVAL", time.Minute),
			BatchSize: getenvInt("BILLING_RECONCILE_BATCH_SIZE", 200),
			Timeout:   getenvDuration("BILLING_RECONCILE_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			Enabled:        getenvBool("API_AUTH_ENABLED", true),
			BootstrapKey:   strings.TrimSpace(getenv("API_BOOTSTRAP_KEY", "")),
			BootstrapRole:  strings.TrimSpace(getenv("API_BOOTSTRAP_ROLE", "admin")),
			BootstrapLabel: strings.TrimSpace(getenv("API_BOOTSTRAP_NAME", "bootstrap")),
		},
		CORSAllowedOrigins: parseList(getenv("CORS_ALLOWED_ORIGINS", "")),
	}

	return cfg
}

// IsProduction reports whether the service runs in a production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeBackend(raw, def string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case BackendLocal, BackendMemory, BackendRedis:
		return value
	default:
		return def
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
