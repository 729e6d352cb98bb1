package planner

import (
	"strings"

	"ai-meal-plan-api/internal/query"
	"ai-meal-plan-api/internal/shared"
)

// MealType is the slot a meal fills in a day.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
	Snack     MealType = "snack"
)

// Title is the capitalised meal type, e.g. "Breakfast".
func (m MealType) Title() string {
	s := string(m)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// MealTypesForDay returns the slots of a 1-based day: breakfast, lunch and
// dinner every day, plus a snack on even days.
func MealTypesForDay(day int) []MealType {
	types := []MealType{Breakfast, Lunch, Dinner}
	if day%2 == 0 {
		types = append(types, Snack)
	}
	return types
}

// NutritionalInfo is per serving; macros are grams.
type NutritionalInfo struct {
	Calories int     `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
}

// Meal is one recipe in a day.
type Meal struct {
	MealType        MealType        `json:"meal_type"`
	RecipeName      string          `json:"recipe_name"`
	Description     string          `json:"description"`
	Ingredients     []string        `json:"ingredients"`
	NutritionalInfo NutritionalInfo `json:"nutritional_info"`
	PreparationTime string          `json:"preparation_time"`
	Instructions    string          `json:"instructions"`
	Source          string          `json:"source"`
}

// DayMealPlan represents the plan for a single day.
type DayMealPlan struct {
	Day   int    `json:"day"`
	Date  string `json:"date"`
	Meals []Meal `json:"meals"`
}

// Summary is derived from the days of a plan.
type Summary struct {
	TotalMeals        int      `json:"total_meals"`
	DietaryCompliance []string `json:"dietary_compliance"`
	EstimatedCost     string   `json:"estimated_cost"`
	AvgPrepTime       string   `json:"avg_prep_time"`
}

// MealPlanResponse is the full result of a plan request. It is also the
// body stored in the plan cache.
type MealPlanResponse struct {
	MealPlanID   string          `json:"meal_plan_id"`
	DurationDays int             `json:"duration_days"`
	GeneratedAt  string          `json:"generated_at"`
	MealPlan     []DayMealPlan   `json:"meal_plan"`
	Summary      Summary         `json:"summary"`
	Warnings     []query.Warning `json:"warnings"`

	QueryValidationLLMLogging *shared.ValidationUsage `json:"query_validation_llm_logging,omitempty"`
	MealGenerationLLMLogging  *shared.GenerationUsage `json:"meal_generation_llm_logging,omitempty"`
	TotalLLMLogging           *shared.TotalUsage      `json:"total_llm_logging,omitempty"`
}
