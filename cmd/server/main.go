// Package main runs the issue tracker HTTP API with WebSocket push and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/issuedesk/backend/config"
	"github.com/issuedesk/backend/internal/activity"
	"github.com/issuedesk/backend/internal/attachments"
	"github.com/issuedesk/backend/internal/auth"
	"github.com/issuedesk/backend/internal/comments"
	"github.com/issuedesk/backend/internal/events"
	"github.com/issuedesk/backend/internal/issues"
	"github.com/issuedesk/backend/internal/middleware"
	"github.com/issuedesk/backend/internal/models"
	"github.com/issuedesk/backend/internal/organizations"
	"github.com/issuedesk/backend/internal/realtime"
	"github.com/issuedesk/backend/internal/users"
	"github.com/issuedesk/backend/internal/webhooks"
	"github.com/issuedesk/backend/pkg/database"
	"github.com/issuedesk/backend/pkg/queue"
	"github.com/issuedesk/backend/pkg/redis"
	"github.com/issuedesk/backend/pkg/response"
	"github.com/issuedesk/backend/pkg/storage"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.AttachmentsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AttachmentsBucket:    cfg.AWS.AttachmentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("attachments disabled", zap.Error(err))
		}
	}

	tickets := auth.NewTicketService(cfg.Realtime.TicketSecret, cfg.Realtime.TicketTTLSeconds)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Organizations and users (tenant bootstrap surface)
	orgRepo := organizations.NewRepository(pool)
	orgHandler := organizations.NewHandler(orgRepo)
	userRepo := users.NewRepository(pool)
	userHandler := users.NewHandler(userRepo)

	// Webhook subscriptions feed the event dispatcher's fan-out.
	webhookRepo := webhooks.NewRepository(pool)
	webhookHandler := webhooks.NewHandler(webhookRepo)
	dispatcher := events.NewDispatcher(hub, jobQueue, webhookRepo, logger)

	// Issues with diff-based activity logging
	issueRepo := issues.NewRepository(pool)
	activityRepo := activity.NewRepository(pool)
	issueSvc := issues.NewService(issueRepo, userRepo, activityRepo, dispatcher, logger)
	issueHandler := issues.NewHandler(issueSvc)

	// Comments
	commentRepo := comments.NewRepository(pool)
	commentHandler := comments.NewHandler(commentRepo, issueRepo, activityRepo, dispatcher, logger)

	// Attachments; objectStore stays nil when S3 is not configured so the
	// endpoints answer 503 instead of wrapping a nil client.
	attachmentRepo := attachments.NewRepository(pool)
	var objectStore attachments.ObjectStore
	if s3Client != nil {
		objectStore = s3Client
	}
	attachmentHandler := attachments.NewHandler(attachmentRepo, issueRepo, objectStore, logger)

	authHandler := auth.NewHandler(tickets)

	gin.EnableJsonDecoderDisallowUnknownFields()
	issues.RegisterValidators()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health (public): liveness plus a DB ping
	router.GET("/health", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			response.ServiceUnavailable(c, "database unreachable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Public bootstrap: a fresh deployment needs its first tenant before any
	// identity headers can reference one.
	router.POST("/organizations", orgHandler.Create)

	// Everything else requires the gateway identity headers.
	api := router.Group("")
	api.Use(middleware.Identity())
	{
		api.GET("/organizations/:id", orgHandler.GetByID)

		// Users
		api.POST("/users", middleware.RequireRole(models.RoleAdmin), userHandler.Create)
		api.GET("/users", userHandler.List)
		api.GET("/users/:id", userHandler.GetByID)

		// Issues
		api.POST("/issues", issueHandler.Create)
		api.GET("/issues", issueHandler.List)
		api.GET("/issues/stats", issueHandler.Stats)
		api.GET("/issues/:id", issueHandler.GetByID)
		api.PATCH("/issues/:id", middleware.RequireRole(models.RoleAdmin), issueHandler.Update)
		api.DELETE("/issues/:id", middleware.RequireRole(models.RoleAdmin), issueHandler.Delete)

		// Comments
		api.POST("/issues/:id/comments", commentHandler.Create)
		api.GET("/issues/:id/comments", commentHandler.List)
		api.DELETE("/comments/:id", commentHandler.Delete)

		// Attachments (503 when no bucket is configured)
		api.POST("/issues/:id/attachments/upload-url", attachmentHandler.UploadURL)
		api.POST("/issues/:id/attachments/upload", attachmentHandler.Upload)
		api.POST("/issues/:id/attachments", attachmentHandler.Register)
		api.GET("/issues/:id/attachments", attachmentHandler.List)
		api.DELETE("/attachments/:id", attachmentHandler.Delete)

		// Webhook subscriptions (admin only)
		api.POST("/webhooks", middleware.RequireRole(models.RoleAdmin), webhookHandler.Create)
		api.GET("/webhooks", middleware.RequireRole(models.RoleAdmin), webhookHandler.List)
		api.DELETE("/webhooks/:id", middleware.RequireRole(models.RoleAdmin), webhookHandler.Delete)

		// Realtime ticket for the websocket upgrade
		api.GET("/realtime/ticket", authHandler.MintTicket)
	}

	// WebSocket (ticket in query; no identity headers on upgrade)
	router.GET("/ws", realtime.ServeWs(hub, tickets, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
