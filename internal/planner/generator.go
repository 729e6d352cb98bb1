package planner

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"ai-meal-plan-api/internal/llm"
	"ai-meal-plan-api/internal/metrics"
	"ai-meal-plan-api/internal/shared"

	"go.uber.org/zap"
)

//go:embed day_prompt.md
var dayPrompt string

//go:embed meal_prompt.md
var mealPrompt string

var (
	dayTemplate  = template.Must(template.New("day").Parse(dayPrompt))
	mealTemplate = template.Must(template.New("meal").Parse(mealPrompt))
)

const (
	daySystemPrompt  = "You generate diverse, restriction-compliant recipes. Respond ONLY with valid JSON."
	mealSystemPrompt = "You are a professional chef. Generate a single, restriction-compliant recipe in JSON format."
	dayTemperature   = 0.6
	mealTemperature  = 0.7

	DayAgentName  = "DayPlanner"
	MealAgentName = "MealChef"
)

// Fallback tiers, as reported in DayUsage.Fallback and the fallbacks metric.
// A day reports the deepest tier any of its meals needed.
const (
	FallbackSingleMeal  = "single_meal"
	FallbackPlaceholder = "placeholder"
)

// DayRequest is everything needed to generate one day.
type DayRequest struct {
	Day                 int
	Date                string
	Restrictions        []string
	Preferences         []string
	SpecialRequirements []string
	History             *MealHistory
}

// DayResult is a generated day plus what it cost.
type DayResult struct {
	Plan  DayMealPlan
	Usage shared.DayUsage
	Metas []shared.AgentMeta
}

// DayGenerator produces one day of meals. It tries a single call for the
// whole day, regenerates missing or broken meals one at a time, and finally
// fills any slot still empty with a placeholder. It never fails.
type DayGenerator struct {
	gen    llm.StructuredGenerator
	logger *zap.Logger
}

// NewDayGenerator creates a DayGenerator. With a nil generator every meal is a placeholder.
func NewDayGenerator(gen llm.StructuredGenerator, logger *zap.Logger) *DayGenerator {
	return &DayGenerator{gen: gen, logger: logger.Named("day_generator")}
}

// GenerateDay returns the meals of req.Day in MealTypesForDay order.
func (g *DayGenerator) GenerateDay(ctx context.Context, req DayRequest) DayResult {
	start := time.Now()
	types := MealTypesForDay(req.Day)
	res := DayResult{Usage: shared.DayUsage{Day: req.Day}}
	logger := g.logger.With(zap.Int("day", req.Day))

	required := make(map[MealType]bool, len(types))
	for _, t := range types {
		required[t] = true
	}

	accepted := make(map[MealType]Meal, len(types))
	meals, err := g.generateDayMeals(ctx, req, types, &res)
	if err != nil {
		logger.Warn("day generation failed, generating meals one by one", zap.Error(err))
	}
	for _, m := range meals {
		if !required[m.MealType] {
			logger.Debug("dropping meal of an unrequested type", zap.String("meal_type", string(m.MealType)))
			continue
		}
		if _, dup := accepted[m.MealType]; dup {
			logger.Debug("dropping duplicate meal", zap.String("meal_type", string(m.MealType)))
			continue
		}
		accepted[m.MealType] = m
	}

	plan := DayMealPlan{Day: req.Day, Date: req.Date, Meals: make([]Meal, 0, len(types))}
	for _, t := range types {
		if m, ok := accepted[t]; ok {
			plan.Meals = append(plan.Meals, m)
			continue
		}

		m, err := g.generateMeal(ctx, req, t, &res)
		if err != nil {
			logger.Warn("meal generation failed, using placeholder", zap.String("meal_type", string(t)), zap.Error(err))
			m = placeholderMeal(t)
			metrics.Fallbacks.WithLabelValues(FallbackPlaceholder).Inc()
			res.Usage.Fallback = FallbackPlaceholder
		} else {
			metrics.Fallbacks.WithLabelValues(FallbackSingleMeal).Inc()
			if res.Usage.Fallback == "" {
				res.Usage.Fallback = FallbackSingleMeal
			}
		}
		plan.Meals = append(plan.Meals, m)
	}

	elapsed := time.Since(start)
	res.Usage.TotalDurationMS = elapsed.Milliseconds()
	res.Plan = plan
	metrics.DayGenerationDuration.Observe(elapsed.Seconds())

	logger.Info("day generated",
		zap.Int("meals", len(plan.Meals)),
		zap.Int("model_calls", res.Usage.ModelCalls),
		zap.Int("tokens_total", res.Usage.TokensTotal),
		zap.String("fallback", res.Usage.Fallback),
		zap.Int64("duration_ms", res.Usage.TotalDurationMS),
	)
	return res
}

// generateDayMeals asks for the whole day at once. Meals that fail
// validation are skipped, so the result may be partial even without an error.
func (g *DayGenerator) generateDayMeals(ctx context.Context, req DayRequest, types []MealType, res *DayResult) ([]Meal, error) {
	prompt, err := buildDayPrompt(req, types)
	if err != nil {
		return nil, err
	}

	content, err := g.call(ctx, DayAgentName, llm.Request{
		SystemPrompt: daySystemPrompt,
		UserPrompt:   prompt,
		Schema:       dayRequestSchema,
		SchemaName:   "day_meal_plan",
		Temperature:  dayTemperature,
	}, res)
	if err != nil {
		return nil, err
	}

	var env dayEnvelope
	if err := llm.Decode(dayEnvelopeSchema, content, &env); err != nil {
		return nil, err
	}

	meals := make([]Meal, 0, len(env.Meals))
	for i, raw := range env.Meals {
		m, err := parseMeal(raw)
		if err != nil {
			g.logger.Warn("skipping invalid meal", zap.Int("day", req.Day), zap.Int("position", i), zap.Error(err))
			continue
		}
		meals = append(meals, m)
	}
	return meals, nil
}

// generateMeal asks for a single meal of type t.
func (g *DayGenerator) generateMeal(ctx context.Context, req DayRequest, t MealType, res *DayResult) (Meal, error) {
	prompt, err := buildMealPrompt(req, t)
	if err != nil {
		return Meal{}, err
	}

	content, err := g.call(ctx, MealAgentName, llm.Request{
		SystemPrompt: mealSystemPrompt,
		UserPrompt:   prompt,
		Schema:       mealSchema,
		SchemaName:   "meal",
		Temperature:  mealTemperature,
	}, res)
	if err != nil {
		return Meal{}, err
	}

	var raw json.RawMessage
	if err := llm.Decode(nil, content, &raw); err != nil {
		return Meal{}, err
	}
	m, err := parseMeal(raw)
	if err != nil {
		return Meal{}, err
	}
	m.MealType = t
	return m, nil
}

func (g *DayGenerator) call(ctx context.Context, agent string, req llm.Request, res *DayResult) (string, error) {
	if g.gen == nil {
		return "", llm.ErrNotConfigured
	}

	start := time.Now()
	resp, err := g.gen.CompleteStructured(ctx, req)
	latency := time.Since(start)

	res.Usage.ModelCalls++
	res.Usage.Record(resp.Usage, latency)
	res.Metas = append(res.Metas, shared.AgentMeta{
		AgentName: agent,
		Usage:     resp.Usage,
		Latency:   latency,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

type dayPromptData struct {
	Day                 int
	Date                string
	MealTypes           string
	Restrictions        string
	Preferences         string
	SpecialRequirements string
	PreviousMeals       string
	PreviousNutrition   string
}

func buildDayPrompt(req DayRequest, types []MealType) (string, error) {
	names, err := json.Marshal(types)
	if err != nil {
		return "", err
	}
	return render(dayTemplate, dayPromptData{
		Day:                 req.Day,
		Date:                req.Date,
		MealTypes:           string(names),
		Restrictions:        listOrNone(req.Restrictions),
		Preferences:         listOrNone(req.Preferences),
		SpecialRequirements: listOrNone(req.SpecialRequirements),
		PreviousMeals:       req.History.PreviousMeals(),
		PreviousNutrition:   req.History.Nutrition(),
	})
}

type mealPromptData struct {
	MealType            string
	Restrictions        string
	Preferences         string
	SpecialRequirements string
	PreviousMealNames   string
}

func buildMealPrompt(req DayRequest, t MealType) (string, error) {
	return render(mealTemplate, mealPromptData{
		MealType:            string(t),
		Restrictions:        listOrNone(req.Restrictions),
		Preferences:         listOrNone(req.Preferences),
		SpecialRequirements: listOrNone(req.SpecialRequirements),
		PreviousMealNames:   req.History.PreviousMealNames(),
	})
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
