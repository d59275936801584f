// Package main runs the event registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aura-events/backend/config"
	"github.com/aura-events/backend/internal/bootstrap"
	"github.com/aura-events/backend/internal/emaillogs"
	"github.com/aura-events/backend/internal/events"
	"github.com/aura-events/backend/internal/exports"
	"github.com/aura-events/backend/internal/registrations"
	"github.com/aura-events/backend/internal/server"
	"github.com/aura-events/backend/internal/worker"
	"github.com/aura-events/backend/pkg/lock"
	"github.com/aura-events/backend/pkg/queue"
	"github.com/aura-events/backend/pkg/redis"
	"github.com/aura-events/backend/pkg/storage"
)

func main() {
	logger := bootstrap.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	tel, err := bootstrap.InitTelemetry(ctx, cfg.Telemetry, cfg.Telemetry.ServiceName)
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}

	st, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer st.Close()

	notifier := bootstrap.NewNotifier(cfg.Email, st, logger)

	// Redis is optional: it backs the resend queue and the distributed event lock.
	var (
		jobQueue  *queue.Queue
		locker    *lock.Locker
		processor *worker.EmailProcessor
	)
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		jobQueue = queue.NewQueue(rdb.Client, logger)
		processor = worker.NewEmailProcessor(st, notifier, jobQueue, logger)
		if cfg.Redis.EventLockEnabled {
			locker = lock.NewLocker(rdb.Client, lock.DefaultOptions, logger)
		}
	}

	var exportSvc *exports.Service
	if s3Cfg := s3Config(cfg.AWS); s3Cfg.Configured() {
		s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		exportSvc = exports.NewService(st, s3Client, logger)
	} else {
		logger.Warn("S3 exports bucket not configured; roster export disabled")
	}

	regOpts := []registrations.Option{registrations.WithNotifyTimeout(cfg.Email.NotifyTimeout())}
	var eventLocker events.EventLocker
	if locker != nil {
		regOpts = append(regOpts, registrations.WithLocker(locker))
		eventLocker = locker
	}

	var enqueuer emaillogs.Enqueuer
	if jobQueue != nil {
		enqueuer = jobQueue
	}

	router := server.NewRouter(server.Deps{
		ServiceName:   cfg.Telemetry.ServiceName,
		CORSOrigins:   cfg.Server.CORSAllowedOrigins,
		Health:        st,
		Events:        events.NewHandler(events.NewService(st, eventLocker, logger), logger),
		Registrations: registrations.NewHandler(registrations.NewService(st, notifier, logger, regOpts...), logger),
		EmailLogs:     emaillogs.NewHandler(emaillogs.NewService(st, enqueuer, notifier, logger)),
		Exports:       exports.NewHandler(exportSvc),
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process email worker when Redis is available.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if processor != nil {
		go func() {
			defer close(workerDone)
			processor.Run(workerCtx)
		}()
		logger.Info("email worker started")
	} else {
		close(workerDone)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	workerCancel()
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("email worker did not stop before shutdown timeout")
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func s3Config(c config.AWSConfig) storage.S3Config {
	return storage.S3Config{
		Region:               c.Region,
		AccessKeyID:          c.AccessKeyID,
		SecretAccessKey:      c.SecretAccessKey,
		ExportsBucket:        c.ExportsBucket,
		Endpoint:             c.Endpoint,
		PresignExpireMinutes: c.PresignExpireMinutes,
	}
}
