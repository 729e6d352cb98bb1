package app

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"ai-meal-plan-api/internal/config"
	"ai-meal-plan-api/internal/metrics"
	"ai-meal-plan-api/internal/planner"
	"ai-meal-plan-api/internal/query"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		LLMProvider:       config.ProviderGemini,
		LLMTimeout:        time.Second,
		EnableCache:       true,
		CacheBackend:      config.CacheBackendFile,
		CacheDir:          filepath.Join(dir, "meals_store"),
		MemoryCacheSize:   8,
		MetricsDBPath:     filepath.Join(dir, "data", "metrics.db"),
		EnableUsageLedger: true,
		QueryDumpDir:      filepath.Join(dir, "dumps"),
	}
}

func TestNewWithoutModel(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.EnableQueryDump = true

	a, err := New(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Usage)
	require.NotNil(t, a.Plans)

	var out bytes.Buffer
	require.NoError(t, a.GenerateMealPlan(ctx, "2 days of keto meals", &out))

	var plan planner.MealPlanResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &plan))
	assert.Equal(t, 2, plan.DurationDays)
	assert.Equal(t, 7, plan.Summary.TotalMeals)
	assert.Equal(t, planner.SourcePlaceholder, plan.MealPlan[0].Meals[0].Source)

	history, err := a.Plans.ListRecentByUserID(ctx, "cli", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, plan.MealPlanID, history[0].PlanID)

	dumps, err := filepath.Glob(filepath.Join(cfg.QueryDumpDir, "query_dump_*.json"))
	require.NoError(t, err)
	assert.Len(t, dumps, 1)

	err = a.GenerateMealPlan(ctx, "vegan and pescatarian for 3 days", &out)
	var extractionErr *query.ExtractionError
	assert.ErrorAs(t, err, &extractionErr)
}

func TestMaintenanceCommands(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	var out bytes.Buffer
	require.NoError(t, a.PrintUsage(ctx, 7, &out))
	assert.Contains(t, out.String(), "No usage recorded.")

	require.NoError(t, a.Usage.Record(ctx, metrics.ExecutionMetric{AgentName: "DayPlanner", PromptTokens: 12, CompletionTokens: 3}))
	require.NoError(t, a.Usage.Record(ctx, metrics.ExecutionMetric{
		AgentName:    "DayPlanner",
		PromptTokens: 1,
		Timestamp:    time.Now().AddDate(0, 0, -90),
	}))

	out.Reset()
	require.NoError(t, a.PrintUsage(ctx, 7, &out))
	assert.Contains(t, out.String(), "DATE")
	assert.Contains(t, out.String(), time.Now().UTC().Format("2006-01-02"))

	health := metrics.GetSysHealth(ctx, a.HealthSources())
	assert.Zero(t, health.CachedPlans)
	require.NotNil(t, health.ModelCallsToday)
	assert.Equal(t, 1, *health.ModelCallsToday)
	assert.Equal(t, 15, *health.TokensToday)

	removed, err := a.CleanupMetrics(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	assert.NoError(t, a.ClearCache(ctx))
}

func TestLedgerDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.EnableUsageLedger = false
	cfg.CacheBackend = config.CacheBackendMemory

	a, err := New(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Usage)
	assert.Nil(t, a.Plans)
	_, err = a.CleanupMetrics(ctx, 30)
	assert.Error(t, err)
	assert.Error(t, a.PrintUsage(ctx, 7, &bytes.Buffer{}))

	_, err = a.Planner.GeneratePlan(ctx, "1 day of paleo meals")
	assert.NoError(t, err)

	health := metrics.GetSysHealth(ctx, a.HealthSources())
	assert.Zero(t, health.CachedPlans, "placeholder plans are not cached")
	assert.Nil(t, health.ModelCallsToday)
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.CacheBackend = config.CacheBackendRedis
	cfg.RedisAddr = mr.Addr()

	a, err := New(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, a.ClearCache(ctx))
	assert.True(t, mr.Exists("mealplan:mapper.json"))
	require.NoError(t, a.Close())

	cfg.RedisAddr = "127.0.0.1:1"
	_, err = New(ctx, cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
