// Package main runs the bot: Discord gateway intake, the admin HTTP server and the
// background processor, with graceful shutdown.
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

	"github.com/squadron-ops/eventbot/config"
	"github.com/squadron-ops/eventbot/internal/app"
	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/internal/events"
	"github.com/squadron-ops/eventbot/internal/middleware"
	"github.com/squadron-ops/eventbot/pkg/database"
	"github.com/squadron-ops/eventbot/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	if err := database.Migrate(ctx, a.Pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Peers drop their cached copy when this instance changes an event.
	unsubscribe, err := a.Bus.Subscribe(bgCtx, a.Cache)
	if err != nil {
		logger.Fatal("cache invalidation subscribe", zap.Error(err))
	}
	defer unsubscribe()
	go a.Cache.Run(bgCtx, cfg.Cache.Refresh())

	removeHandler := chat.RegisterAttendanceHandler(a.Session, a.PressSink(), cfg.Discord.ChatTimeout(), logger)
	defer removeHandler()
	if err := a.Session.Open(); err != nil {
		logger.Fatal("discord gateway", zap.Error(err))
	}
	logger.Info("discord gateway connected", zap.Bool("queue_presses", cfg.Discord.QueuePresses))

	go a.Processor.Run(bgCtx)

	handler := events.NewHandler(a.Service, a.Events, logger)
	if a.Archive != nil {
		handler.SetArchiveLinker(a.Archive)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		if err := a.Pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "cached_events": a.Cache.Len()})
	})
	handler.Register(router)

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

	bgCancel()
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
