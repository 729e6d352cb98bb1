package telegram

import (
	"fmt"
	"strings"

	"ai-meal-plan-api/internal/planner"
)

// FormatPlan renders a plan as plain text for a chat message.
func FormatPlan(plan *planner.MealPlanResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 Your %d-day meal plan\n\n", plan.DurationDays)

	for _, day := range plan.MealPlan {
		fmt.Fprintf(&b, "Day %d (%s)\n", day.Day, day.Date)
		for _, m := range day.Meals {
			fmt.Fprintf(&b, "• %s: %s", m.MealType.Title(), m.RecipeName)
			if m.PreparationTime != "" {
				fmt.Fprintf(&b, " (%s, %d kcal)", m.PreparationTime, m.NutritionalInfo.Calories)
			}
			b.WriteString("\n")
			if m.Description != "" {
				fmt.Fprintf(&b, "  %s\n", m.Description)
			}
		}
		b.WriteString("\n")
	}

	s := plan.Summary
	b.WriteString("📋 Summary\n")
	fmt.Fprintf(&b, "• Total meals: %d\n", s.TotalMeals)
	fmt.Fprintf(&b, "• Avg prep time: %s\n", s.AvgPrepTime)
	fmt.Fprintf(&b, "• Estimated cost: %s\n", s.EstimatedCost)
	if len(s.DietaryCompliance) > 0 {
		fmt.Fprintf(&b, "• Diet: %s\n", strings.Join(s.DietaryCompliance, ", "))
	}

	if len(plan.Warnings) > 0 {
		b.WriteString("\n⚠️ Notes\n")
		for _, w := range plan.Warnings {
			fmt.Fprintf(&b, "• %s\n", w.Value)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// to cut at blank lines, then at line ends.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(text[:limit], "\n")
		}
		if cut <= 0 {
			cut = limit
			// do not split a multi-byte rune
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" || len(chunks) == 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
