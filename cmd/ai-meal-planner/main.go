package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"ai-meal-plan-api/internal/app"
	"ai-meal-plan-api/internal/config"
	"ai-meal-plan-api/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// stdout carries plan JSON; logs go to stderr
	zapLog := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer zapLog.Sync()

	ctx := context.Background()
	application, err := app.New(ctx, cfg, zapLog)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	switch os.Args[1] {
	case "plan":
		request := strings.TrimSpace(strings.Join(os.Args[2:], " "))
		if request == "" {
			log.Fatal("Usage: ai-meal-planner plan <request>")
		}
		if err := application.GenerateMealPlan(ctx, request, os.Stdout); err != nil {
			log.Fatalf("Plan generation failed: %v", err)
		}
	case "cache-clear":
		if err := application.ClearCache(ctx); err != nil {
			log.Fatalf("Cache clear failed: %v", err)
		}
		fmt.Println("Cache cleared.")
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(os.Args[2:])

		affected, err := application.CleanupMetrics(ctx, *days)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
	case "usage":
		usageCmd := flag.NewFlagSet("usage", flag.ExitOnError)
		days := usageCmd.Int("days", 7, "Show the last N days")
		usageCmd.Parse(os.Args[2:])

		if err := application.PrintUsage(ctx, *days, os.Stdout); err != nil {
			log.Fatalf("Usage report failed: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ai-meal-planner <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  plan <request>     Generate a meal plan and print it as JSON")
	fmt.Println("  cache-clear        Remove every cached meal plan")
	fmt.Println("  metrics-cleanup    Remove old usage records (-days N)")
	fmt.Println("  usage              Show daily token usage (-days N)")
}
