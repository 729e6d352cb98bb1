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

	"ai-meal-plan-api/internal/app"
	"ai-meal-plan-api/internal/config"
	"ai-meal-plan-api/internal/logger"
	"ai-meal-plan-api/internal/telegram"

	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.TelegramBotToken == "" || cfg.TelegramWebhookURL == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN and TELEGRAM_WEBHOOK_URL are required")
	}

	zapLog := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer zapLog.Sync()

	// 2. Initialize the planner and its stores
	ctx := context.Background()
	application, err := app.New(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	// 3. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, application.Planner, application.Plans, application.HealthSources(), zapLog)
	if err != nil {
		zapLog.Fatal("failed to initialize telegram bot", zap.Error(err))
	}

	// 4. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           bot.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLog.Info("telegram bot server listening", zap.String("addr", srv.Addr))
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
	// let in-flight plan requests finish replying
	bot.Wait()
	zapLog.Info("server exiting")
}
