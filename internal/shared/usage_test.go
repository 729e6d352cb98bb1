package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsageMetricsRecord(t *testing.T) {
	var m UsageMetrics
	m.Record(TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, 120*time.Millisecond)
	m.Record(TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}, 30*time.Millisecond)

	assert.Equal(t, 11, m.TokensPrompt)
	assert.Equal(t, 7, m.TokensCompletion)
	assert.Equal(t, 18, m.TokensTotal)
	assert.Equal(t, int64(150), m.LLMLatencyMS)
}

func TestCombine(t *testing.T) {
	validation := ValidationUsage{
		UsageMetrics: UsageMetrics{TokensPrompt: 100, TokensCompletion: 20, TokensTotal: 120, LLMLatencyMS: 400, TotalDurationMS: 410},
		Enabled:      true,
	}
	generation := &GenerationUsage{
		UsageMetrics:  UsageMetrics{TokensPrompt: 1000, TokensCompletion: 800, TokensTotal: 1800, LLMLatencyMS: 9000, TotalDurationMS: 9100},
		DaysGenerated: 3,
	}

	total := Combine(validation, generation)

	assert.Equal(t, 1100, total.TokensPrompt)
	assert.Equal(t, 820, total.TokensCompletion)
	assert.Equal(t, 1920, total.TokensTotal)
	assert.Equal(t, int64(9400), total.LLMLatencyMS)
	assert.Equal(t, int64(9510), total.TotalDurationMS)
	assert.Equal(t, 120, total.QueryValidationTokens)
	assert.Equal(t, 1800, total.MealGenerationTokens)
	assert.Equal(t, int64(410), total.QueryValidationTimeMS)
	assert.Equal(t, int64(9100), total.MealGenerationTimeMS)

	t.Run("without generation", func(t *testing.T) {
		total := Combine(validation, nil)
		assert.Equal(t, 120, total.TokensTotal)
		assert.Equal(t, 0, total.MealGenerationTokens)
	})
}

func TestTokenUsageAdd(t *testing.T) {
	a := TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	b := TokenUsage{PromptTokens: 4, CompletionTokens: 5, TotalTokens: 9, Model: "gemini-2.0-flash"}

	sum := a.Add(b)
	assert.Equal(t, TokenUsage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12, Model: "gemini-2.0-flash"}, sum)
}
