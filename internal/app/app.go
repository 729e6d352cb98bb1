package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ai-meal-plan-api/internal/cache"
	"ai-meal-plan-api/internal/config"
	"ai-meal-plan-api/internal/database"
	"ai-meal-plan-api/internal/llm"
	"ai-meal-plan-api/internal/metrics"
	"ai-meal-plan-api/internal/planner"
	"ai-meal-plan-api/internal/query"
	"ai-meal-plan-api/internal/storage"

	"go.uber.org/zap"
)

// App holds the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Planner *planner.Planner
	Cache   *cache.PlanCache
	// Usage and Plans are nil when the usage ledger is disabled.
	Usage *metrics.Store
	Plans *planner.PlanRepository

	closers []func() error
}

// New builds every component from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s cache store: %w", cfg.CacheBackend, err)
	}
	a.closers = append(a.closers, closeStore)
	a.Cache = cache.New(store, cfg.EnableCache, logger)

	var ledger planner.UsageRecorder
	if cfg.EnableUsageLedger {
		db, err := database.NewDB(cfg.MetricsDBPath, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Usage = metrics.NewStore(db.SQL)
		a.Plans = planner.NewPlanRepository(db.SQL)
		ledger = a.Usage
	}

	gen, closeGen, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.LLMProvider, err)
	}
	a.closers = append(a.closers, closeGen)
	if gen == nil {
		logger.Warn("no model credential configured, meals will be placeholders", zap.String("provider", cfg.LLMProvider))
	}

	var validator *query.Validator
	if cfg.EnableLLMValidation && gen != nil {
		validator = query.NewValidator(gen, logger)
	}
	var dumper *query.Dumper
	if cfg.EnableQueryDump {
		dumper = query.NewDumper(cfg.QueryDumpDir, logger)
	}

	a.Planner = planner.NewPlanner(
		query.NewParser(validator, dumper, logger),
		planner.NewDayGenerator(gen, logger),
		a.Cache,
		ledger,
		logger,
	)

	logger.Info("application initialized",
		zap.String("provider", cfg.LLMProvider),
		zap.String("model", cfg.Model()),
		zap.Bool("model_configured", gen != nil),
		zap.Bool("llm_validation", validator != nil),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Bool("cache_enabled", cfg.EnableCache),
		zap.Bool("usage_ledger", cfg.EnableUsageLedger),
	)
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		client, err := storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, noop, err
		}
		return storage.NewRedisStore(client, "", 0), client.Close, nil
	case config.CacheBackendMemory:
		store, err := storage.NewMemoryStore(cfg.MemoryCacheSize)
		return store, noop, err
	default:
		store, err := storage.NewFileStore(cfg.CacheDir)
		return store, noop, err
	}
}

// Close releases every resource opened by New, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// GenerateMealPlan creates a meal plan for request and writes it to w as JSON.
func (a *App) GenerateMealPlan(ctx context.Context, request string, w io.Writer) error {
	plan, err := a.Planner.GeneratePlan(ctx, request)
	if err != nil {
		return err
	}
	if a.Plans != nil {
		if err := a.Plans.Save(ctx, "cli", plan); err != nil {
			a.logger.Warn("failed to save meal plan to history", zap.Error(err))
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

// HealthSources returns what health snapshots read from.
func (a *App) HealthSources() metrics.HealthSources {
	return metrics.HealthSources{
		DataPath: a.cfg.DataDir(),
		Cache:    a.Cache,
		Usage:    a.Usage,
	}
}

// ClearCache drops every cached plan.
func (a *App) ClearCache(ctx context.Context) error {
	return a.Planner.ClearCache(ctx)
}

// CleanupMetrics removes ledger rows older than days.
func (a *App) CleanupMetrics(ctx context.Context, days int) (int64, error) {
	if a.Usage == nil {
		return 0, errors.New("usage ledger is disabled")
	}
	return a.Usage.Cleanup(ctx, days)
}

// PrintUsage writes the daily token usage of the last days to w.
func (a *App) PrintUsage(ctx context.Context, days int, w io.Writer) error {
	if a.Usage == nil {
		return errors.New("usage ledger is disabled")
	}
	usage, err := a.Usage.GetDailyUsage(ctx, days)
	if err != nil {
		return err
	}
	if len(usage) == 0 {
		fmt.Fprintln(w, "No usage recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-12s %10s %12s %8s\n", "DATE", "PROMPT", "COMPLETION", "CALLS")
	for _, d := range usage {
		fmt.Fprintf(w, "%-12s %10d %12d %8d\n", d.Date, d.TotalPrompt, d.TotalCompletion, d.TotalExecution)
	}
	return nil
}
