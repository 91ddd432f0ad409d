// Package main runs the outbound webhook delivery worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/issuedesk/backend/config"
	"github.com/issuedesk/backend/internal/webhooks"
	"github.com/issuedesk/backend/internal/worker"
	"github.com/issuedesk/backend/pkg/database"
	"github.com/issuedesk/backend/pkg/queue"
	"github.com/issuedesk/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	webhookRepo := webhooks.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	deliverer := worker.NewWebhookDeliverer(webhookRepo, jobQueue,
		time.Duration(cfg.Webhook.DeliveryTimeoutSeconds)*time.Second, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go deliverer.Run(workerCtx)
	logger.Info("webhook worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
