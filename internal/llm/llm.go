package llm

import (
	"context"
	"errors"

	"ai-meal-plan-api/internal/shared"
)

var (
	// ErrNotConfigured is returned when no model credential is available.
	ErrNotConfigured = errors.New("llm service not configured")
	// ErrEmptyResponse is returned when the provider produced no candidate text.
	ErrEmptyResponse = errors.New("no content generated")
	// ErrInvalidJSON is returned when the model output is not a JSON document.
	ErrInvalidJSON = errors.New("invalid JSON response from LLM")
	// ErrSchemaViolation is returned when the model output does not match the requested schema.
	ErrSchemaViolation = errors.New("LLM response does not match schema")
)

// Request is a single structured completion call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	// Schema is a JSON schema the provider is asked to honour. When nil the
	// provider is only asked for a JSON object.
	Schema      map[string]any
	SchemaName  string
	Temperature float32
}

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// StructuredGenerator produces JSON completions.
type StructuredGenerator interface {
	CompleteStructured(ctx context.Context, req Request) (ContentResponse, error)
}
