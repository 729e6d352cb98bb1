package shared

import "time"

// UsageMetrics is the token and latency record attached to every phase of a
// plan request. Zero values are meaningful: a phase that never called a model
// reports zeros rather than omitting the record.
type UsageMetrics struct {
	TokensPrompt     int   `json:"tokens_prompt"`
	TokensCompletion int   `json:"tokens_completion"`
	TokensTotal      int   `json:"tokens_total"`
	LLMLatencyMS     int64 `json:"llm_latency_ms"`
	TotalDurationMS  int64 `json:"total_duration_ms"`
}

// Record adds one model call to the metrics.
func (m *UsageMetrics) Record(usage TokenUsage, latency time.Duration) {
	m.TokensPrompt += usage.PromptTokens
	m.TokensCompletion += usage.CompletionTokens
	m.TokensTotal += usage.TotalTokens
	m.LLMLatencyMS += latency.Milliseconds()
}

// Plus returns the element-wise sum of m and other.
func (m UsageMetrics) Plus(other UsageMetrics) UsageMetrics {
	return UsageMetrics{
		TokensPrompt:     m.TokensPrompt + other.TokensPrompt,
		TokensCompletion: m.TokensCompletion + other.TokensCompletion,
		TokensTotal:      m.TokensTotal + other.TokensTotal,
		LLMLatencyMS:     m.LLMLatencyMS + other.LLMLatencyMS,
		TotalDurationMS:  m.TotalDurationMS + other.TotalDurationMS,
	}
}

// FieldChange describes what the validation pass changed in one field.
type FieldChange struct {
	From    *int     `json:"from,omitempty"`
	To      *int     `json:"to,omitempty"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// ValidationUsage is the usage record of the query parsing phase.
type ValidationUsage struct {
	UsageMetrics
	RegexLatencyMS int64                  `json:"regex_latency_ms"`
	Enabled        bool                   `json:"enabled"`
	Error          string                 `json:"error,omitempty"`
	ChangesMade    map[string]FieldChange `json:"changes_made,omitempty"`
}

// DayUsage is the usage of a single generated day.
type DayUsage struct {
	Day int `json:"day"`
	UsageMetrics
	ModelCalls int    `json:"model_calls"`
	Fallback   string `json:"fallback,omitempty"`
}

// GenerationUsage is the usage record of the meal generation phase.
type GenerationUsage struct {
	UsageMetrics
	DaysGenerated int        `json:"days_generated"`
	PerDay        []DayUsage `json:"per_day_logging"`
}

// TotalUsage sums both phases and keeps the per-phase totals.
type TotalUsage struct {
	UsageMetrics
	QueryValidationTokens int   `json:"query_validation_tokens"`
	MealGenerationTokens  int   `json:"meal_generation_tokens"`
	QueryValidationTimeMS int64 `json:"query_validation_time_ms"`
	MealGenerationTimeMS  int64 `json:"meal_generation_time_ms"`
}

// Combine builds the total record for a request.
func Combine(validation ValidationUsage, generation *GenerationUsage) TotalUsage {
	gen := UsageMetrics{}
	if generation != nil {
		gen = generation.UsageMetrics
	}
	sum := validation.UsageMetrics.Plus(gen)
	return TotalUsage{
		UsageMetrics:          sum,
		QueryValidationTokens: validation.TokensTotal,
		MealGenerationTokens:  gen.TokensTotal,
		QueryValidationTimeMS: validation.TotalDurationMS,
		MealGenerationTimeMS:  gen.TotalDurationMS,
	}
}
