package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ai-meal-plan-api/internal/llm"
	"ai-meal-plan-api/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockGenerator struct {
	content  string
	err      error
	requests []llm.Request
}

func (m *mockGenerator) CompleteStructured(_ context.Context, req llm.Request) (llm.ContentResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{
		Content: m.content,
		Usage:   shared.TokenUsage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160, Model: "mock"},
	}, nil
}

func TestValidatorPassthroughWithoutModel(t *testing.T) {
	v := NewValidator(nil, zaptest.NewLogger(t))
	initial, err := NewExtractor().Extract("3 days vegan")
	require.NoError(t, err)

	res := v.ValidateAndEnhance(context.Background(), "3 days vegan", initial)

	assert.Equal(t, initial, res.Final)
	assert.False(t, res.Usage.Enabled)
	assert.Zero(t, res.Usage.TokensTotal)
	assert.Empty(t, res.AdditionalWarnings)
}

func TestValidatorMerge(t *testing.T) {
	gen := &mockGenerator{content: `{
		"validated": {
			"duration_days": 5,
			"dietary_restrictions": ["vegan", "Nut-Free"],
			"preferences": [],
			"special_requirements": ["quick"]
		},
		"additional_warnings": [
			{"category": "synonym_inference", "value": "plant-based mapped to vegan"},
			{"category": "special_requirements_unspecified", "value": "duplicate of a regex warning"}
		]
	}`}
	v := NewValidator(gen, zaptest.NewLogger(t))

	query := "3 days plant-based, vegan, high protein, no nuts"
	initial, err := NewExtractor().Extract(query)
	require.NoError(t, err)
	require.Equal(t, []string{"high-protein"}, initial.Preferences)

	res := v.ValidateAndEnhance(context.Background(), query, initial)

	// in-range regex duration wins over the model's
	assert.Equal(t, 3, res.Final.DurationDays)
	assert.Equal(t, []string{"vegan", "nut-free"}, res.Final.DietaryRestrictions)
	// model omitted high-protein; it is kept
	assert.Equal(t, []string{"high-protein"}, res.Final.Preferences)
	assert.Equal(t, []string{"quick"}, res.Final.SpecialRequirements)

	require.Len(t, res.AdditionalWarnings, 1)
	assert.Equal(t, WarnSynonymInference, res.AdditionalWarnings[0].Category)

	assert.True(t, res.Usage.Enabled)
	assert.Equal(t, 160, res.Usage.TokensTotal)
	assert.Empty(t, res.Usage.Error)
	assert.Equal(t, []string{"nut-free"}, res.Usage.ChangesMade["dietary_restrictions"].Added)
	assert.Equal(t, []string{"quick"}, res.Usage.ChangesMade["special_requirements"].Added)
	assert.NotContains(t, res.Usage.ChangesMade, "duration_days")

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.InDelta(t, 0.3, req.Temperature, 0.0001)
	assert.NotNil(t, req.Schema)
	assert.Contains(t, req.UserPrompt, query)
	assert.Contains(t, req.UserPrompt, `"duration_days": 3`)
	assert.Contains(t, req.UserPrompt, "gluten-free")
}

func TestMergeDurationGate(t *testing.T) {
	cases := []struct {
		name     string
		initial  int
		model    int
		expected int
	}{
		{"in range kept", 4, 6, 4},
		{"zero corrected", 0, 2, 2},
		{"model out of range ignored", 0, 9, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			final, _ := merge(Extraction{DurationDays: tc.initial}, validatedParams{DurationDays: tc.model}, nil)
			assert.Equal(t, tc.expected, final.DurationDays)
		})
	}
}

func TestMergeNeverRemoves(t *testing.T) {
	initial := Extraction{
		DurationDays:        3,
		DietaryRestrictions: []string{"keto", "halal"},
		Preferences:         []string{"low-fat"},
		SpecialRequirements: []string{"easy"},
	}
	outputs := []validatedParams{
		{},
		{DietaryRestrictions: []string{"halal"}},
		{DietaryRestrictions: []string{"kosher", "keto"}, Preferences: []string{"low-sodium"}},
	}
	for _, out := range outputs {
		final, _ := merge(initial, out, nil)
		assert.Subset(t, final.DietaryRestrictions, initial.DietaryRestrictions)
		assert.Subset(t, final.Preferences, initial.Preferences)
		assert.Subset(t, final.SpecialRequirements, initial.SpecialRequirements)
		assert.Equal(t, initial.DietaryRestrictions, final.DietaryRestrictions[:2])
	}
}

func TestValidatorFailuresDegrade(t *testing.T) {
	cases := []struct {
		name string
		gen  *mockGenerator
	}{
		{"transport error", &mockGenerator{err: errors.New("connection reset")}},
		{"not json", &mockGenerator{content: "Sure! Here is the validation."}},
		{"schema violation", &mockGenerator{content: `{"validated": {"duration_days": 12}, "additional_warnings": []}`}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			initial, err := NewExtractor().Extract("4 days keto")
			require.NoError(t, err)

			res := NewValidator(tc.gen, zaptest.NewLogger(t)).ValidateAndEnhance(context.Background(), "4 days keto", initial)

			assert.Equal(t, initial, res.Final)
			assert.True(t, res.Usage.Enabled)
			assert.NotEmpty(t, res.Usage.Error)
		})
	}
}

func TestParser(t *testing.T) {
	t.Run("conflict is returned as extraction error", func(t *testing.T) {
		gen := &mockGenerator{}
		p := NewParser(NewValidator(gen, zaptest.NewLogger(t)), nil, zaptest.NewLogger(t))

		_, err := p.Parse(context.Background(), "vegan and vegetarian for a week")

		var exErr *ExtractionError
		assert.True(t, errors.As(err, &exErr))
		assert.Empty(t, gen.requests, "no model call after a conflict")
	})

	t.Run("zero days is raised to one", func(t *testing.T) {
		p := NewParser(nil, nil, zaptest.NewLogger(t))

		params, err := p.Parse(context.Background(), "0 days of meals")
		require.NoError(t, err)

		assert.Equal(t, 1, params.DurationDays)
		assert.Contains(t, categories(params.Warnings), WarnDaysRaised)
		assert.False(t, params.Usage.Enabled)
	})

	t.Run("dump is written", func(t *testing.T) {
		dir := t.TempDir()
		gen := &mockGenerator{content: `{
			"validated": {"duration_days": 2, "dietary_restrictions": ["paleo"], "preferences": [], "special_requirements": []},
			"additional_warnings": []
		}`}
		p := NewParser(NewValidator(gen, zaptest.NewLogger(t)), NewDumper(dir, zaptest.NewLogger(t)), zaptest.NewLogger(t))

		params, err := p.Parse(context.Background(), "2 days paleo")
		require.NoError(t, err)
		assert.Equal(t, []string{"paleo"}, params.DietaryRestrictions)
		assert.Equal(t, 160, params.Usage.TokensTotal)

		matches, err := filepath.Glob(filepath.Join(dir, "query_dump_*.json"))
		require.NoError(t, err)
		require.Len(t, matches, 1)

		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		for _, key := range []string{`"query": "2 days paleo"`, `"initial_extraction"`, `"final_extraction"`, `"llm_logging"`} {
			assert.True(t, strings.Contains(string(data), key), "missing %s", key)
		}
	})
}
