package planner

import (
	"fmt"
	"strings"
)

// MealHistory is what later days are told about earlier ones, so the model
// can avoid repeats and balance nutrition across the plan.
type MealHistory struct {
	meals []Meal
	days  int
}

// Append records a finished day.
func (h *MealHistory) Append(day DayMealPlan) {
	h.meals = append(h.meals, day.Meals...)
	h.days++
}

// Days is the number of days recorded so far.
func (h *MealHistory) Days() int {
	if h == nil {
		return 0
	}
	return h.days
}

// PreviousMeals lists every earlier meal with its description.
func (h *MealHistory) PreviousMeals() string {
	if h.Days() == 0 {
		return "None (Day 1)"
	}
	lines := make([]string, 0, len(h.meals))
	for _, m := range h.meals {
		lines = append(lines, fmt.Sprintf("- %s: %s (%s)", m.MealType, m.RecipeName, m.Description))
	}
	return strings.Join(lines, "\n")
}

// PreviousMealNames lists earlier recipe names only.
func (h *MealHistory) PreviousMealNames() string {
	if h.Days() == 0 {
		return "None"
	}
	names := make([]string, 0, len(h.meals))
	for _, m := range h.meals {
		names = append(names, m.RecipeName)
	}
	return strings.Join(names, ", ")
}

// Nutrition renders totals over the recorded days and the per-day average.
func (h *MealHistory) Nutrition() string {
	if h.Days() == 0 {
		return "None (Day 1)"
	}
	var calories int
	var protein, carbs, fat float64
	for _, m := range h.meals {
		calories += m.NutritionalInfo.Calories
		protein += m.NutritionalInfo.Protein
		carbs += m.NutritionalInfo.Carbs
		fat += m.NutritionalInfo.Fat
	}
	n := float64(h.days)

	var b strings.Builder
	fmt.Fprintf(&b, "Previous %d day(s) totals:\n", h.days)
	fmt.Fprintf(&b, "- Calories: %d (%.0f avg/day)\n", calories, float64(calories)/n)
	fmt.Fprintf(&b, "- Protein: %.1fg (%.1fg avg/day)\n", protein, protein/n)
	fmt.Fprintf(&b, "- Carbs: %.1fg (%.1fg avg/day)\n", carbs, carbs/n)
	fmt.Fprintf(&b, "- Fat: %.1fg (%.1fg avg/day)", fat, fat/n)
	return b.String()
}
