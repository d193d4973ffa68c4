package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Monitor      MonitorConfig
	Classifier   ClassifierConfig
	Worker       WorkerConfig
	Tracing      TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
// File enables a rotating log file next to stdout.
type LoggerConfig struct {
	Level      string
	Encoding   string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig routes push and email notifications.
// With no brokers configured notifications are only logged.
type NotificationConfig struct {
	KafkaBrokers []string
	PushTopic    string
	EmailTopic   string
	EmailFrom    string
}

// MonitorConfig drives the two SLA scans.
type MonitorConfig struct {
	WarningLead       time.Duration
	WarningSchedule   string
	ViolationSchedule string
	DedupBucket       time.Duration
	WarningDedupTTL   time.Duration
	ViolationDedupTTL time.Duration
}

// ClassifierConfig configures the text classification collaborator.
type ClassifierConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	RequestsPerSecond float64
	Burst             int
}

// WorkerConfig sizes the background pool.
type WorkerConfig struct {
	PoolSize int
}

// TracingConfig toggles the OpenTelemetry SDK.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	warningLead := getEnvAsDuration("SLA_WARNING_LEAD", 30*time.Minute)
	bucket := getEnvAsDuration("SLA_DEDUP_BUCKET", time.Hour)

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-sla"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Encoding:   getEnv("LOG_ENCODING", "json"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvAsInt("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_FILE_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_FILE_MAX_AGE_DAYS", 14),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			KafkaBrokers: getEnvAsList("NOTIFY_KAFKA_BROKERS"),
			PushTopic:    getEnv("NOTIFY_PUSH_TOPIC", "sla.push"),
			EmailTopic:   getEnv("NOTIFY_EMAIL_TOPIC", "sla.email"),
			EmailFrom:    getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
		},
		Monitor: MonitorConfig{
			WarningLead:       warningLead,
			WarningSchedule:   getEnv("SLA_WARNING_SCHEDULE", "@every 15m"),
			ViolationSchedule: getEnv("SLA_VIOLATION_SCHEDULE", "@every 30m"),
			DedupBucket:       bucket,
			WarningDedupTTL:   getEnvAsDuration("SLA_WARNING_DEDUP_TTL", maxDuration(warningLead, bucket)),
			ViolationDedupTTL: getEnvAsDuration("SLA_VIOLATION_DEDUP_TTL", bucket),
		},
		Classifier: ClassifierConfig{
			APIKey:            os.Getenv("CLASSIFIER_API_KEY"),
			BaseURL:           os.Getenv("CLASSIFIER_BASE_URL"),
			Model:             getEnv("CLASSIFIER_MODEL", "gpt-4o-mini"),
			RequestsPerSecond: getEnvAsFloat("CLASSIFIER_RPS", 2),
			Burst:             getEnvAsInt("CLASSIFIER_BURST", 4),
		},
		Worker: WorkerConfig{
			PoolSize: getEnvAsInt("WORKER_POOL_SIZE", 8),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("TRACING_ENABLED", false),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "ticket-sla"),
		},
	}

	if err := cfg.Monitor.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects monitor settings that would break deduplication windows.
func (m MonitorConfig) Validate() error {
	var errs []error
	if m.WarningLead <= 0 {
		errs = append(errs, errors.New("SLA_WARNING_LEAD must be positive"))
	}
	if m.DedupBucket <= 0 {
		errs = append(errs, errors.New("SLA_DEDUP_BUCKET must be positive"))
	}
	if m.WarningDedupTTL < m.WarningLead {
		errs = append(errs, errors.New("SLA_WARNING_DEDUP_TTL must be at least SLA_WARNING_LEAD"))
	}
	if m.ViolationDedupTTL <= 0 {
		errs = append(errs, errors.New("SLA_VIOLATION_DEDUP_TTL must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid monitor config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsDuration accepts Go duration strings ("90s", "1h") or bare seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(val); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
