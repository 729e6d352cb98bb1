package llm

import (
	"context"
	"fmt"
	"strings"

	"ai-meal-plan-api/internal/shared"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient is a structured completion client for the Google Gemini API.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a new Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelName: model}, nil
}

// CompleteStructured sends the request with a JSON response MIME type and,
// when given, the schema translated to Gemini's schema dialect.
func (c *GeminiClient) CompleteStructured(ctx context.Context, req Request) (ContentResponse, error) {
	// A fresh model handle per call keeps concurrent requests from sharing generation config.
	model := c.client.GenerativeModel(c.modelName)
	model.SetTemperature(req.Temperature)
	model.ResponseMIMEType = "application/json"
	if req.Schema != nil {
		model.ResponseSchema = toGeminiSchema(req.Schema)
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemPrompt))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.UserPrompt))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ContentResponse{}, ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return ContentResponse{}, fmt.Errorf("generated content is not text")
	}

	usage := shared.TokenUsage{Model: c.modelName}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return ContentResponse{Content: sb.String(), Usage: usage}, nil
}

// Close closes the underlying Gemini client.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// toGeminiSchema converts the subset of JSON schema used by this service.
// Keywords Gemini does not understand (minimum, maximum, additionalProperties)
// are dropped; union types collapse to their first member, together with
// the keywords that only apply to the other members.
func toGeminiSchema(s map[string]any) *genai.Schema {
	out := &genai.Schema{}

	switch t := s["type"].(type) {
	case string:
		out.Type = geminiType(t)
	case []any:
		if len(t) > 0 {
			if first, ok := t[0].(string); ok {
				out.Type = geminiType(first)
			}
		}
	case []string:
		if len(t) > 0 {
			out.Type = geminiType(t[0])
		}
	}

	if desc, ok := s["description"].(string); ok {
		out.Description = desc
	}

	switch enum := s["enum"].(type) {
	case []string:
		out.Enum = append(out.Enum, enum...)
	case []any:
		for _, e := range enum {
			if str, ok := e.(string); ok {
				out.Enum = append(out.Enum, str)
			}
		}
	}

	// Gemini rejects items on non-arrays and properties on non-objects, which
	// a collapsed union type would otherwise carry over.
	if items, ok := s["items"].(map[string]any); ok && out.Type == genai.TypeArray {
		out.Items = toGeminiSchema(items)
	}
	if out.Type != genai.TypeObject {
		return out
	}

	if props, ok := s["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if ps, ok := p.(map[string]any); ok {
				out.Properties[name] = toGeminiSchema(ps)
			}
		}
	}

	switch req := s["required"].(type) {
	case []string:
		out.Required = append(out.Required, req...)
	case []any:
		for _, r := range req {
			if str, ok := r.(string); ok {
				out.Required = append(out.Required, str)
			}
		}
	}

	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}
