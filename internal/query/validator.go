package query

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"ai-meal-plan-api/internal/llm"
	"ai-meal-plan-api/internal/shared"

	"go.uber.org/zap"
)

//go:embed validation_prompt.md
var validationPrompt string

var validationTemplate = template.Must(template.New("validation").Parse(validationPrompt))

const (
	validationSystemPrompt = "You are a precise query validation assistant. Always return valid JSON matching the exact schema."
	validationTemperature  = 0.3
	validatorAgentName     = "QueryValidator"
)

var stringArray = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}

var validationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"validated": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"duration_days":        map[string]any{"type": "integer", "minimum": 1, "maximum": MaxDays},
				"dietary_restrictions": stringArray,
				"preferences":          stringArray,
				"special_requirements": stringArray,
			},
			"required": []string{"duration_days", "dietary_restrictions", "preferences", "special_requirements"},
		},
		"additional_warnings": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category": map[string]any{"type": "string"},
					"value":    map[string]any{"type": "string"},
				},
				"required": []string{"category", "value"},
			},
		},
	},
	"required": []string{"validated", "additional_warnings"},
}

type validatedParams struct {
	DurationDays        int      `json:"duration_days"`
	DietaryRestrictions []string `json:"dietary_restrictions"`
	Preferences         []string `json:"preferences"`
	SpecialRequirements []string `json:"special_requirements"`
}

type rawValidation struct {
	Validated          validatedParams `json:"validated"`
	AdditionalWarnings []Warning       `json:"additional_warnings"`
}

type validationPromptData struct {
	Query                    string
	InitialExtraction        string
	KnownDietaryRestrictions string
	KnownPreferences         string
	KnownSpecialRequirements string
}

// ValidationResult is the outcome of the model pass. On failure Final is
// the initial extraction and Usage.Error says why.
type ValidationResult struct {
	Final              Extraction
	AdditionalWarnings []Warning
	Usage              shared.ValidationUsage
	Meta               shared.AgentMeta
}

// Validator asks a model to double check an extraction. It can only add
// items, and only fixes the duration when the extracted one is out of range.
type Validator struct {
	gen    llm.StructuredGenerator
	logger *zap.Logger
}

// NewValidator creates a Validator. A nil generator makes it a passthrough.
func NewValidator(gen llm.StructuredGenerator, logger *zap.Logger) *Validator {
	return &Validator{gen: gen, logger: logger.Named("validator")}
}

// ValidateAndEnhance never fails: any model problem degrades to the initial extraction.
func (v *Validator) ValidateAndEnhance(ctx context.Context, query string, initial Extraction) ValidationResult {
	result := ValidationResult{
		Final:              initial,
		AdditionalWarnings: []Warning{},
		Meta:               shared.AgentMeta{AgentName: validatorAgentName},
	}
	if v == nil || v.gen == nil {
		return result
	}
	result.Usage.Enabled = true

	prompt, err := buildValidationPrompt(query, initial)
	if err != nil {
		v.logger.Error("failed to build validation prompt", zap.Error(err))
		result.Usage.Error = err.Error()
		return result
	}

	start := time.Now()
	resp, err := v.gen.CompleteStructured(ctx, llm.Request{
		SystemPrompt: validationSystemPrompt,
		UserPrompt:   prompt,
		Schema:       validationSchema,
		SchemaName:   "query_validation",
		Temperature:  validationTemperature,
	})
	latency := time.Since(start)
	result.Usage.Record(resp.Usage, latency)
	result.Meta.Usage = resp.Usage
	result.Meta.Latency = latency
	if err != nil {
		v.logger.Warn("query validation call failed, keeping regex extraction", zap.Error(err))
		result.Usage.Error = err.Error()
		return result
	}

	var raw rawValidation
	if err := llm.Decode(validationSchema, resp.Content, &raw); err != nil {
		v.logger.Warn("query validation returned unusable output, keeping regex extraction",
			zap.Error(err),
			zap.String("response", truncate(resp.Content, 200)),
		)
		result.Usage.Error = err.Error()
		return result
	}

	final, added := merge(initial, raw.Validated, raw.AdditionalWarnings)
	result.Final = final
	result.AdditionalWarnings = added
	result.Usage.ChangesMade = detectChanges(initial, final)

	v.logger.Info("query validated",
		zap.Int("tokens_total", resp.Usage.TotalTokens),
		zap.Int64("llm_latency_ms", latency.Milliseconds()),
		zap.Int("changes", len(result.Usage.ChangesMade)),
		zap.Int("additional_warnings", len(added)),
	)
	return result
}

// merge applies the model's output to the initial extraction. Items found
// by the extractor are never dropped; the duration is only replaced when the
// extracted value is outside 1..MaxDays; model warnings whose category the
// extractor already raised are discarded. It returns the merged extraction
// and the warnings that were added.
func merge(initial Extraction, validated validatedParams, modelWarnings []Warning) (Extraction, []Warning) {
	final := Extraction{
		DurationDays:        initial.DurationDays,
		DurationExplicit:    initial.DurationExplicit,
		DietaryRestrictions: addOnly(initial.DietaryRestrictions, validated.DietaryRestrictions),
		Preferences:         addOnly(initial.Preferences, validated.Preferences),
		SpecialRequirements: addOnly(initial.SpecialRequirements, validated.SpecialRequirements),
	}

	if initial.DurationDays < 1 || initial.DurationDays > MaxDays {
		if validated.DurationDays >= 1 && validated.DurationDays <= MaxDays {
			final.DurationDays = validated.DurationDays
		}
	}

	seen := make(map[string]bool, len(initial.Warnings))
	for _, w := range initial.Warnings {
		seen[w.Category] = true
	}
	added := []Warning{}
	for _, w := range modelWarnings {
		if w.Category == "" || seen[w.Category] {
			continue
		}
		seen[w.Category] = true
		added = append(added, w)
	}

	final.Warnings = make([]Warning, 0, len(initial.Warnings)+len(added))
	final.Warnings = append(final.Warnings, initial.Warnings...)
	final.Warnings = append(final.Warnings, added...)
	return final, added
}

// addOnly keeps base in order and appends the new items of extra.
func addOnly(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, item := range base {
		out = append(out, item)
		seen[item] = true
	}
	for _, item := range extra {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func detectChanges(initial, final Extraction) map[string]shared.FieldChange {
	changes := map[string]shared.FieldChange{}
	if initial.DurationDays != final.DurationDays {
		from, to := initial.DurationDays, final.DurationDays
		changes["duration_days"] = shared.FieldChange{From: &from, To: &to}
	}
	fields := []struct {
		name          string
		before, after []string
	}{
		{"dietary_restrictions", initial.DietaryRestrictions, final.DietaryRestrictions},
		{"preferences", initial.Preferences, final.Preferences},
		{"special_requirements", initial.SpecialRequirements, final.SpecialRequirements},
	}
	for _, f := range fields {
		added, removed := diff(f.before, f.after), diff(f.after, f.before)
		if len(added) > 0 || len(removed) > 0 {
			changes[f.name] = shared.FieldChange{Added: added, Removed: removed}
		}
	}
	return changes
}

// diff returns the items of b that are not in a.
func diff(a, b []string) []string {
	in := make(map[string]bool, len(a))
	for _, item := range a {
		in[item] = true
	}
	var out []string
	for _, item := range b {
		if !in[item] {
			out = append(out, item)
		}
	}
	return out
}

func buildValidationPrompt(query string, initial Extraction) (string, error) {
	initialJSON, err := json.MarshalIndent(map[string]any{
		"duration_days":        initial.DurationDays,
		"dietary_restrictions": initial.DietaryRestrictions,
		"preferences":          initial.Preferences,
		"special_requirements": initial.SpecialRequirements,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = validationTemplate.Execute(&buf, validationPromptData{
		Query:                    query,
		InitialExtraction:        string(initialJSON),
		KnownDietaryRestrictions: strings.Join(DietaryRestrictions, ", "),
		KnownPreferences:         strings.Join(Preferences, ", "),
		KnownSpecialRequirements: strings.Join(SpecialRequirements, ", "),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
