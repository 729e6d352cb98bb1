package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-meal-plan-api/internal/api"
	"ai-meal-plan-api/internal/app"
	"ai-meal-plan-api/internal/config"
	"ai-meal-plan-api/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLog := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer zapLog.Sync()

	ctx := context.Background()
	application, err := app.New(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	server := api.NewServer(application.Planner, application.HealthSources(), zapLog)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// a 7-day plan with fallbacks can take several minutes
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLog.Info("starting server",
			zap.String("app", cfg.AppName),
			zap.String("version", cfg.AppVersion),
			zap.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLog.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLog.Error("server forced to shutdown", zap.Error(err))
	}
	zapLog.Info("server exiting")
}
