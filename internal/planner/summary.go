package planner

import (
	"fmt"
	"regexp"
	"strconv"

	"ai-meal-plan-api/internal/query"
)

const defaultAvgPrepTime = "25 mins"

var firstNumber = regexp.MustCompile(`\d+`)

// Summarize derives the plan summary from its days and constraints.
func Summarize(days []DayMealPlan, params *query.Params) Summary {
	total := 0
	prepSum, prepCount := 0, 0
	for _, d := range days {
		total += len(d.Meals)
		for _, m := range d.Meals {
			if n, ok := prepMinutes(m.PreparationTime); ok {
				prepSum += n
				prepCount++
			}
		}
	}

	avgPrep := defaultAvgPrepTime
	if prepCount > 0 {
		avgPrep = fmt.Sprintf("%d mins", prepSum/prepCount)
	}

	compliance := make([]string, 0, len(params.DietaryRestrictions)+len(params.Preferences))
	compliance = append(compliance, params.DietaryRestrictions...)
	compliance = append(compliance, params.Preferences...)

	return Summary{
		TotalMeals:        total,
		DietaryCompliance: compliance,
		EstimatedCost:     estimateCost(total, params.SpecialRequirements),
		AvgPrepTime:       avgPrep,
	}
}

func prepMinutes(s string) (int, bool) {
	match := firstNumber.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// estimateCost is a per-meal band in dollars, cheaper for budget plans.
func estimateCost(meals int, special []string) string {
	base := 3.5
	for _, s := range special {
		if s == query.BudgetFriendly {
			base = 2.0
			break
		}
	}
	low := int(float64(meals) * base)
	high := int(float64(meals) * (base + 1.5))
	return fmt.Sprintf("$%d-%d", low, high)
}
