package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env      string
	HTTPAddr string

	DBDriver string
	DBDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TokenIssuer        string
	SessionTokenSecret string
	SessionTTL         time.Duration
	SessionRetention   time.Duration
	CleanupInterval    time.Duration
	StoreTimeout       time.Duration
	NegativeCacheTTL   time.Duration

	APIRateLimitRPM  int
	AuthRateLimitRPM int
	CORSOrigins      []string

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

// Load reads configuration from the environment, applies defaults, and
// validates the result. The session token secret is held in memory only;
// it is never logged and never serialized back out.
func Load() (*Config, error) {
	cfg := &Config{
		Env:      getString("APP_ENV", "development"),
		HTTPAddr: getString("HTTP_ADDR", ":8080"),

		DBDriver: getString("DB_DRIVER", "sqlite"),
		DBDSN:    getString("DB_DSN", "file:edagent_auth.db?_pragma=busy_timeout(5000)"),

		RedisAddr:     getString("REDIS_ADDR", ""),
		RedisPassword: getString("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		TokenIssuer:        getString("TOKEN_ISSUER", "edagent-auth"),
		SessionTokenSecret: getString("SESSION_TOKEN_SECRET", ""),
		SessionTTL:         getDuration("SESSION_TTL", 24*time.Hour),
		SessionRetention:   getDuration("SESSION_RETENTION", 30*24*time.Hour),
		CleanupInterval:    getDuration("CLEANUP_INTERVAL", time.Hour),
		StoreTimeout:       getDuration("STORE_TIMEOUT", 3*time.Second),
		NegativeCacheTTL:   getDuration("NEGATIVE_CACHE_TTL", 30*time.Second),

		APIRateLimitRPM:  getInt("API_RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 60),
		CORSOrigins:      getStringList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		OTELServiceName:           getString("OTEL_SERVICE_NAME", "edagent-auth"),
		OTELEnvironment:           getString("OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint:  getString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        getBool("OTEL_METRICS_ENABLED", false),
		OTELTracesEnabled:         getBool("OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:           getBool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: getDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),

		ShutdownTimeout:              getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		ShutdownHTTPDrainTimeout:     getDuration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 5*time.Second),
		ShutdownObservabilityTimeout: getDuration("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second),
	}

	if err := cfg.validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Env, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Env, "success", "none")
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if len(c.SessionTokenSecret) < 32 {
		problems = append(problems, "SESSION_TOKEN_SECRET must be at least 32 characters")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not supported (sqlite, postgres)", c.DBDriver))
	}
	if c.SessionTTL <= 0 {
		problems = append(problems, "SESSION_TTL must be positive")
	}
	if c.SessionRetention <= 0 {
		problems = append(problems, "SESSION_RETENTION must be positive")
	}
	if c.StoreTimeout <= 0 {
		problems = append(problems, "STORE_TIMEOUT must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction gates behavior that should never be relaxed outside
// development, such as permissive CORS.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getStringList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}
