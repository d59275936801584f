// Package bootstrap holds process setup shared by the server and the worker.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-events/backend/config"
	"github.com/aura-events/backend/internal/notify"
	"github.com/aura-events/backend/internal/store"
	"github.com/aura-events/backend/internal/store/postgres"
	"github.com/aura-events/backend/internal/store/sqlite"
	"github.com/aura-events/backend/pkg/database"
	"github.com/aura-events/backend/pkg/telemetry"
)

// NewLogger builds the production zap logger.
func NewLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

// OpenStore connects to the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		logger.Info("SQLite store opened", zap.String("path", cfg.SQLitePath))
		return st, nil
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, database.PoolConfig{
			DSN:             cfg.URL,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
			ConnectAttempts: cfg.ConnectAttempts,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return postgres.New(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewNotifier builds the SMTP notifier wrapped with email log recording.
func NewNotifier(cfg config.EmailConfig, logs notify.LogWriter, logger *zap.Logger) notify.Notifier {
	smtp := notify.NewSMTP(notify.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPass,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
	}, logger)
	if !smtp.Configured() {
		logger.Warn("SMTP is not configured; confirmations will be recorded as failed")
	}
	return notify.NewRecorder(smtp, logs, logger)
}

// InitTelemetry starts OpenTelemetry for serviceName.
func InitTelemetry(ctx context.Context, cfg config.TelemetryConfig, serviceName string) (*telemetry.Telemetry, error) {
	return telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		CollectorAddr:  cfg.CollectorAddr,
		SampleRatio:    cfg.SampleRatio,
	})
}
