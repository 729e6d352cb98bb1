package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func categories(ws []Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Category)
	}
	return out
}

func TestExtractDuration(t *testing.T) {
	cases := []struct {
		query    string
		days     int
		explicit bool
		capped   bool
	}{
		{"Create a 5-day meal plan, 1800 calories/day, gluten-free", 5, true, false},
		{"3 days of keto meals", 3, true, false},
		{"meals for 4days", 4, true, false},
		{"2 weeks of dinners", 7, true, true},
		{"1 week please", 7, true, false},
		{"plan my meals for next week", 7, true, false},
		{"a week of lunches", 7, true, false},
		{"plan over 6 days", 6, true, false},
		{"10 days of meals", 7, true, true},
		{"exactly 7 days", 7, true, false},
		{"plan my meals", 7, false, false},
	}

	ex := NewExtractor()
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			got, err := ex.Extract(tc.query)
			require.NoError(t, err)

			assert.Equal(t, tc.days, got.DurationDays)
			assert.Equal(t, tc.explicit, got.DurationExplicit)
			cats := categories(got.Warnings)
			if tc.explicit {
				assert.NotContains(t, cats, WarnDaysUnspecified)
			} else {
				assert.Contains(t, cats, WarnDaysUnspecified)
			}
			if tc.capped {
				assert.Contains(t, cats, WarnDaysCapped)
			} else {
				assert.NotContains(t, cats, WarnDaysCapped)
			}
		})
	}
}

func TestExtractCapWarningText(t *testing.T) {
	got, err := NewExtractor().Extract("I need 10 days of food")
	require.NoError(t, err)
	assert.Contains(t, got.Warnings, Warning{
		Category: WarnDaysCapped,
		Value:    "Requested 10 days. Limited to 7 days maximum.",
	})
}

func TestExtractVocabulary(t *testing.T) {
	ex := NewExtractor()

	t.Run("hyphen and space are interchangeable", func(t *testing.T) {
		got, err := ex.Extract("3 days, Gluten Free and dairy-free, high protein and LOW-CARB")
		require.NoError(t, err)
		assert.Equal(t, []string{"gluten-free", "dairy-free"}, got.DietaryRestrictions)
		assert.Equal(t, []string{"low-carb", "high-protein"}, got.Preferences)
	})

	t.Run("word boundaries", func(t *testing.T) {
		got, err := ex.Extract("veganism dashboard ketone")
		require.NoError(t, err)
		assert.Empty(t, got.DietaryRestrictions)
	})

	t.Run("special requirements", func(t *testing.T) {
		got, err := ex.Extract("cheap, quick and simple but wholesome meals")
		require.NoError(t, err)
		assert.Equal(t, []string{"budget-friendly", "quick", "easy", "healthy"}, got.SpecialRequirements)
	})

	t.Run("low cost and under N minutes", func(t *testing.T) {
		got, err := ex.Extract("low-cost dinners under 20 min")
		require.NoError(t, err)
		assert.Equal(t, []string{"budget-friendly", "quick"}, got.SpecialRequirements)
	})
}

func TestExtractNoConstraints(t *testing.T) {
	got, err := NewExtractor().Extract("plan my meals")
	require.NoError(t, err)

	assert.Equal(t, 7, got.DurationDays)
	assert.Equal(t, []string{
		WarnDaysUnspecified,
		WarnDietaryRestrictionsUnspecified,
		WarnPreferencesUnspecified,
		WarnSpecialRequirementsUnspecified,
	}, categories(got.Warnings))
	assert.NotNil(t, got.DietaryRestrictions)
	assert.NotNil(t, got.Preferences)
	assert.NotNil(t, got.SpecialRequirements)
}

func TestExtractConflicts(t *testing.T) {
	cases := []struct {
		query   string
		message string
	}{
		{"vegan and vegetarian for a week", "Vegan and vegetarian are conflicting - please choose one. Vegan excludes all animal products, vegetarian excludes meat but allows dairy/eggs"},
		{"vegan pescatarian meals", "Vegan and pescatarian are conflicting - vegan excludes all animal products including fish"},
		{"pescatarian or vegetarian dinners", "Pescatarian and vegetarian are conflicting - pescatarian includes fish, vegetarian does not. Please choose one"},
	}

	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			_, err := NewExtractor().Extract(tc.query)
			require.Error(t, err)

			var exErr *ExtractionError
			require.True(t, errors.As(err, &exErr))
			assert.Equal(t, tc.message, exErr.Message)
			assert.Contains(t, categories(exErr.Warnings), WarnConflictingRestrictions)
		})
	}
}
