package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Email     EmailConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string   `env:"PORT" envDefault:"8080"`
	ReadTimeout        int      `env:"READ_TIMEOUT_SEC" envDefault:"30"`
	WriteTimeout       int      `env:"WRITE_TIMEOUT_SEC" envDefault:"30"`
	ShutdownTimeout    int      `env:"SHUTDOWN_TIMEOUT_SEC" envDefault:"10"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3001"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"postgres"`
	URL             string        `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/events?sslmode=disable"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"data/events.db"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	ConnectAttempts int           `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
}

// RedisConfig holds Redis connection settings. An empty Addr disables the queue and
// the distributed lock.
type RedisConfig struct {
	Addr             string `env:"REDIS_ADDR"`
	Password         string `env:"REDIS_PASSWORD"`
	DB               int    `env:"REDIS_DB" envDefault:"0"`
	EventLockEnabled bool   `env:"EVENT_LOCK_ENABLED" envDefault:"false"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// AWSConfig holds AWS credentials and the roster export bucket.
type AWSConfig struct {
	Region               string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID          string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey      string `env:"AWS_SECRET_ACCESS_KEY"`
	ExportsBucket        string `env:"AWS_S3_EXPORTS_BUCKET"`
	Endpoint             string `env:"AWS_S3_ENDPOINT"`
	PresignExpireMinutes int    `env:"AWS_PRESIGN_EXPIRE_MINUTES" envDefault:"15"`
}

// EmailConfig for SMTP confirmations.
type EmailConfig struct {
	FromAddress      string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@example.com"`
	FromName         string `env:"EMAIL_FROM_NAME" envDefault:"Aura Events"`
	SMTPHost         string `env:"SMTP_HOST"`
	SMTPPort         int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser         string `env:"SMTP_USER"`
	SMTPPass         string `env:"SMTP_PASS"`
	NotifyTimeoutSec int    `env:"NOTIFY_TIMEOUT_SEC" envDefault:"30"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled       bool    `env:"OTEL_ENABLED" envDefault:"false"`
	ServiceName   string  `env:"OTEL_SERVICE_NAME" envDefault:"aura-events"`
	Environment   string  `env:"APP_ENV" envDefault:"development"`
	CollectorAddr string  `env:"OTEL_COLLECTOR_ADDR" envDefault:"localhost:4317"`
	SampleRatio   float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1.0"`
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseEnv fills target from environment variables using its env tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Redis.EventLockEnabled && !c.Redis.Enabled() {
		return fmt.Errorf("EVENT_LOCK_ENABLED requires REDIS_ADDR")
	}
	return nil
}

// NotifyTimeout returns the confirmation send timeout.
func (c EmailConfig) NotifyTimeout() time.Duration {
	if c.NotifyTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NotifyTimeoutSec) * time.Second
}
