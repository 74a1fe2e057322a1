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

type Config struct {
	Port        string
	MetricsPort string
	Environment string

	PostgresURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnLifetime time.Duration
	MigrationsPath string

	JWTSecret             string
	JWTAudience           string
	PaymentCallbackSecret string

	RedisURL     string
	RoleCacheTTL time.Duration

	KafkaBrokers  []string
	ConsumerGroup string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	Locale string

	OTLPEndpoint     string
	TraceSampleRatio float64

	RelayInterval    time.Duration
	RelayBatchSize   int
	RelayMaxAttempts int
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Values already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	p := parser{}
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		PostgresURL:    os.Getenv("POSTGRES_URL"),
		DBMaxOpenConns: p.int("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns: p.int("DB_MAX_IDLE_CONNS", 5),
		DBConnLifetime: p.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),

		JWTSecret:             os.Getenv("JWT_SECRET"),
		JWTAudience:           os.Getenv("JWT_AUDIENCE"),
		PaymentCallbackSecret: os.Getenv("PAYMENT_CALLBACK_SECRET"),

		RedisURL:     os.Getenv("REDIS_URL"),
		RoleCacheTTL: p.duration("ROLE_CACHE_TTL", time.Minute),

		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "storefront-email-worker"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     p.int("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@storefront.local"),

		Locale: getEnv("SHIPPING_LOCALE", "en"),

		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio: p.float("OTEL_TRACES_SAMPLE_RATIO", 1),

		RelayInterval:    p.duration("OUTBOX_POLL_INTERVAL", time.Second),
		RelayBatchSize:   p.int("OUTBOX_BATCH_SIZE", 100),
		RelayMaxAttempts: p.int("OUTBOX_MAX_ATTEMPTS", 10),
	}

	if p.err != nil {
		return nil, p.err
	}

	if cfg.PostgresURL == "" {
		return nil, errors.New("POSTGRES_URL environment variable is required")
	}

	return cfg, nil
}

// ValidateAPI checks the settings only the HTTP API needs.
func (c *Config) ValidateAPI() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.PaymentCallbackSecret == "" {
		errs = append(errs, errors.New("PAYMENT_CALLBACK_SECRET environment variable is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) ValidateKafka() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS environment variable is required")
	}
	return nil
}

// ValidateRelay checks the outbox relay settings. All of them must be
// positive.
func (c *Config) ValidateRelay() error {
	var errs []error
	if c.RelayInterval <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", c.RelayInterval))
	}
	if c.RelayBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.RelayBatchSize))
	}
	if c.RelayMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be positive, got %d", c.RelayMaxAttempts))
	}
	return errors.Join(errs...)
}

func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}
