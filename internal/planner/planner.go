package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-meal-plan-api/internal/cache"
	"ai-meal-plan-api/internal/metrics"
	"ai-meal-plan-api/internal/query"
	"ai-meal-plan-api/internal/shared"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrGeneration wraps every failure that is not the caller's fault.
var ErrGeneration = errors.New("failed to generate meal plan")

// UsageRecorder persists per-call token usage.
type UsageRecorder interface {
	RecordMeta(ctx context.Context, meta shared.AgentMeta) error
}

// Planner turns a free-text request into a meal plan.
type Planner struct {
	parser *query.Parser
	days   *DayGenerator
	cache  *cache.PlanCache
	ledger UsageRecorder
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewPlanner wires a Planner. cache and ledger may be nil.
func NewPlanner(parser *query.Parser, days *DayGenerator, planCache *cache.PlanCache, ledger UsageRecorder, logger *zap.Logger) *Planner {
	return &Planner{
		parser: parser,
		days:   days,
		cache:  planCache,
		ledger: ledger,
		logger: logger.Named("planner"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// GeneratePlan parses q, serves the plan from cache when the same
// constraints were planned before, and otherwise generates it day by day.
// A rejected query returns the *query.ExtractionError; anything else
// unexpected is wrapped in ErrGeneration.
func (p *Planner) GeneratePlan(ctx context.Context, q string) (*MealPlanResponse, error) {
	params, err := p.parser.Parse(ctx, q)
	if err != nil {
		var extractionErr *query.ExtractionError
		if errors.As(err, &extractionErr) {
			metrics.PlanRequestsFailed.WithLabelValues("invalid_request").Inc()
			return nil, err
		}
		metrics.PlanRequestsFailed.WithLabelValues("internal").Inc()
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if params.Usage.Enabled {
		p.record(ctx, params.Meta)
	}

	constraints := cache.Constraints{
		DietaryRestrictions: params.DietaryRestrictions,
		Preferences:         params.Preferences,
		SpecialRequirements: params.SpecialRequirements,
		DurationDays:        params.DurationDays,
	}
	key := cache.Key(constraints)

	if resp, ok := p.fromCache(ctx, key, params); ok {
		metrics.PlansGenerated.WithLabelValues("cache").Inc()
		return resp, nil
	}

	resp, err := p.generate(ctx, params)
	if err != nil {
		metrics.PlanRequestsFailed.WithLabelValues("internal").Inc()
		return nil, err
	}
	metrics.PlansGenerated.WithLabelValues("generated").Inc()

	if allPlaceholders(resp.MealPlan) {
		p.logger.Warn("plan has no generated meals, not caching it", zap.String("meal_plan_id", resp.MealPlanID))
		return resp, nil
	}
	body, err := json.Marshal(resp)
	if err != nil {
		p.logger.Error("failed to encode plan for cache", zap.Error(err))
		return resp, nil
	}
	p.cache.Put(ctx, key, constraints, body)
	return resp, nil
}

// ClearCache drops every cached plan.
func (p *Planner) ClearCache(ctx context.Context) error {
	return p.cache.Clear(ctx)
}

// fromCache returns the stored plan with this request's validation usage.
func (p *Planner) fromCache(ctx context.Context, key string, params *query.Params) (*MealPlanResponse, bool) {
	body, ok := p.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var resp MealPlanResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		p.logger.Warn("cached plan is unreadable, regenerating", zap.Error(err))
		return nil, false
	}

	validation := params.Usage
	total := shared.Combine(validation, resp.MealGenerationLLMLogging)
	resp.QueryValidationLLMLogging = &validation
	resp.TotalLLMLogging = &total
	if resp.Warnings == nil {
		resp.Warnings = []query.Warning{}
	}

	p.logger.Info("serving cached plan", zap.String("meal_plan_id", resp.MealPlanID), zap.Int("duration_days", resp.DurationDays))
	return &resp, true
}

func (p *Planner) generate(ctx context.Context, params *query.Params) (*MealPlanResponse, error) {
	start := time.Now()
	today := p.now().UTC()
	history := &MealHistory{}
	generation := shared.GenerationUsage{PerDay: make([]shared.DayUsage, 0, params.DurationDays)}
	days := make([]DayMealPlan, 0, params.DurationDays)

	for d := 1; d <= params.DurationDays; d++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
		}

		res := p.days.GenerateDay(ctx, DayRequest{
			Day:                 d,
			Date:                today.AddDate(0, 0, d-1).Format("2006-01-02"),
			Restrictions:        params.DietaryRestrictions,
			Preferences:         params.Preferences,
			SpecialRequirements: params.SpecialRequirements,
			History:             history,
		})

		days = append(days, res.Plan)
		history.Append(res.Plan)
		generation.UsageMetrics = generation.UsageMetrics.Plus(shared.UsageMetrics{
			TokensPrompt:     res.Usage.TokensPrompt,
			TokensCompletion: res.Usage.TokensCompletion,
			TokensTotal:      res.Usage.TokensTotal,
			LLMLatencyMS:     res.Usage.LLMLatencyMS,
		})
		generation.PerDay = append(generation.PerDay, res.Usage)
		for _, meta := range res.Metas {
			p.record(ctx, meta)
		}
	}

	// A cancelled request degrades every day to placeholders; do not return
	// or cache that as if it were a real plan.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	generation.DaysGenerated = len(days)
	generation.TotalDurationMS = time.Since(start).Milliseconds()
	validation := params.Usage
	total := shared.Combine(validation, &generation)

	resp := &MealPlanResponse{
		MealPlanID:                p.newID(),
		DurationDays:              params.DurationDays,
		GeneratedAt:               p.now().UTC().Format(time.RFC3339),
		MealPlan:                  days,
		Summary:                   Summarize(days, params),
		Warnings:                  params.Warnings,
		QueryValidationLLMLogging: &validation,
		MealGenerationLLMLogging:  &generation,
		TotalLLMLogging:           &total,
	}
	if resp.Warnings == nil {
		resp.Warnings = []query.Warning{}
	}

	p.logger.Info("plan generated",
		zap.String("meal_plan_id", resp.MealPlanID),
		zap.Int("duration_days", resp.DurationDays),
		zap.Int("total_meals", resp.Summary.TotalMeals),
		zap.Int("tokens_total", total.TokensTotal),
		zap.Int64("duration_ms", generation.TotalDurationMS),
	)
	return resp, nil
}

func (p *Planner) record(ctx context.Context, meta shared.AgentMeta) {
	metrics.LLMTokens.WithLabelValues(meta.AgentName).Add(float64(meta.Usage.TotalTokens))
	if p.ledger == nil {
		return
	}
	if err := p.ledger.RecordMeta(ctx, meta); err != nil {
		p.logger.Warn("failed to record llm usage", zap.String("agent", meta.AgentName), zap.Error(err))
	}
}

func allPlaceholders(days []DayMealPlan) bool {
	for _, d := range days {
		for _, m := range d.Meals {
			if m.Source != SourcePlaceholder {
				return false
			}
		}
	}
	return true
}
