// Package main runs a background worker: the reminder/publication processor and the
// interaction queue consumer. Any number of workers may run beside the server.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/squadron-ops/eventbot/config"
	"github.com/squadron-ops/eventbot/internal/app"
	"github.com/squadron-ops/eventbot/internal/worker"
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

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The reconciler resolves presses through the cache, so keep it coherent with peers.
	unsubscribe, err := a.Bus.Subscribe(workerCtx, a.Cache)
	if err != nil {
		logger.Fatal("cache invalidation subscribe", zap.Error(err))
	}
	defer unsubscribe()

	consumer := worker.NewInteractionConsumer(a.Queue, a.Reconciler, logger)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); a.Cache.Run(workerCtx, cfg.Cache.Refresh()) }()
	go func() { defer wg.Done(); a.Processor.Run(workerCtx) }()
	go func() { defer wg.Done(); consumer.Run(workerCtx) }()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
