package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-meal-plan-api/internal/config"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var durationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"duration_days": map[string]any{"type": "integer", "minimum": 1, "maximum": 7},
		"tags":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []string{"duration_days"},
}

func TestValidateJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateJSON(durationSchema, []byte(`{"duration_days": 3, "tags": ["a"]}`)))
	})

	t.Run("not json", func(t *testing.T) {
		err := ValidateJSON(durationSchema, []byte(`here is your plan`))
		assert.ErrorIs(t, err, ErrInvalidJSON)
	})

	t.Run("out of range", func(t *testing.T) {
		err := ValidateJSON(durationSchema, []byte(`{"duration_days": 9}`))
		assert.ErrorIs(t, err, ErrSchemaViolation)
	})

	t.Run("missing field", func(t *testing.T) {
		err := ValidateJSON(durationSchema, []byte(`{"tags": []}`))
		assert.ErrorIs(t, err, ErrSchemaViolation)
		assert.Contains(t, err.Error(), "duration_days")
	})

	t.Run("nil schema only checks syntax", func(t *testing.T) {
		assert.NoError(t, ValidateJSON(nil, []byte(`{"anything": true}`)))
	})
}

func TestDecode(t *testing.T) {
	var out struct {
		DurationDays int      `json:"duration_days"`
		Tags         []string `json:"tags"`
	}
	require.NoError(t, Decode(durationSchema, "  {\"duration_days\": 5, \"tags\": [\"x\"]}\n", &out))
	assert.Equal(t, 5, out.DurationDays)
	assert.Equal(t, []string{"x"}, out.Tags)

	require.NoError(t, Decode(durationSchema, "```json\n{\"duration_days\": 2}\n```", &out))
	assert.Equal(t, 2, out.DurationDays)

	assert.ErrorIs(t, Decode(durationSchema, "```\nnot json\n```", &out), ErrInvalidJSON)
}

func TestChatClient(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var received chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"choices": [{"message": {"content": "{\"duration_days\": 2}"}}],
				"usage": {"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18}
			}`))
		}))
		defer srv.Close()

		client := NewChatClient(srv.URL, "secret", "test-model")
		resp, err := client.CompleteStructured(context.Background(), Request{
			SystemPrompt: "system",
			UserPrompt:   "user",
			Schema:       durationSchema,
			SchemaName:   "duration",
			Temperature:  0.3,
		})
		require.NoError(t, err)

		assert.Equal(t, `{"duration_days": 2}`, resp.Content)
		assert.Equal(t, 11, resp.Usage.PromptTokens)
		assert.Equal(t, 7, resp.Usage.CompletionTokens)
		assert.Equal(t, 18, resp.Usage.TotalTokens)
		assert.Equal(t, "test-model", resp.Usage.Model)

		assert.Equal(t, "test-model", received.Model)
		require.Len(t, received.Messages, 2)
		assert.Equal(t, "system", received.Messages[0].Role)
		assert.Equal(t, "user", received.Messages[1].Content)
		assert.InDelta(t, 0.3, received.Temperature, 0.001)
		assert.Equal(t, "json_schema", received.ResponseFormat["type"])
	})

	t.Run("json object mode without schema", func(t *testing.T) {
		format := NewOpenAIClient("k", "m").responseFormat(Request{})
		assert.Equal(t, "json_object", format["type"])
	})

	t.Run("groq sends json object even with a schema", func(t *testing.T) {
		var received chatRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{\"duration_days\": 1}"}}]}`))
		}))
		defer srv.Close()

		client := NewGroqClient("secret", "llama-3.3-70b-versatile")
		client.endpoint = srv.URL
		_, err := client.CompleteStructured(context.Background(), Request{
			UserPrompt: "user",
			Schema:     durationSchema,
			SchemaName: "duration",
		})
		require.NoError(t, err)

		assert.Equal(t, "json_object", received.ResponseFormat["type"])
		assert.NotContains(t, received.ResponseFormat, "json_schema")
	})

	t.Run("openai sends json schema", func(t *testing.T) {
		format := NewOpenAIClient("k", "m").responseFormat(Request{Schema: durationSchema, SchemaName: "duration"})
		assert.Equal(t, "json_schema", format["type"])
		inner, ok := format["json_schema"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "duration", inner["name"])
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewChatClient(srv.URL, "secret", "m").CompleteStructured(context.Background(), Request{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status=429")
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		}))
		defer srv.Close()

		_, err := NewChatClient(srv.URL, "secret", "m").CompleteStructured(context.Background(), Request{UserPrompt: "x"})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewChatClient("http://unused", "", "m").CompleteStructured(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}

type blockingGenerator struct{}

func (blockingGenerator) CompleteStructured(ctx context.Context, _ Request) (ContentResponse, error) {
	<-ctx.Done()
	return ContentResponse{}, ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	gen := WithTimeout(blockingGenerator{}, 20*time.Millisecond)

	start := time.Now()
	_, err := gen.CompleteStructured(context.Background(), Request{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)

	t.Run("zero disables", func(t *testing.T) {
		inner := blockingGenerator{}
		assert.Equal(t, StructuredGenerator(inner), WithTimeout(inner, 0))
	})
}

func TestToGeminiSchema(t *testing.T) {
	s := toGeminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"meal_type":    map[string]any{"type": "string", "enum": []string{"breakfast", "lunch"}},
			"instructions": map[string]any{"type": []any{"string", "array"}},
			"ingredients":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"calories":     map[string]any{"type": "number", "minimum": 0},
		},
		"required": []any{"meal_type"},
	})

	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"meal_type"}, s.Required)
	assert.Equal(t, []string{"breakfast", "lunch"}, s.Properties["meal_type"].Enum)
	assert.Equal(t, genai.TypeString, s.Properties["instructions"].Type)
	assert.Equal(t, genai.TypeArray, s.Properties["ingredients"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["ingredients"].Items.Type)
	assert.Equal(t, genai.TypeNumber, s.Properties["calories"].Type)

	t.Run("union keeps only keywords of the chosen type", func(t *testing.T) {
		s := toGeminiSchema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"instructions": map[string]any{
					"type":  []string{"string", "array"},
					"items": map[string]any{"type": "string"},
				},
				"preparation_time": map[string]any{"type": []string{"string", "number"}},
				"notes": map[string]any{
					"type":       []any{"string", "object"},
					"properties": map[string]any{"text": map[string]any{"type": "string"}},
					"required":   []string{"text"},
				},
			},
		})

		instructions := s.Properties["instructions"]
		require.NotNil(t, instructions)
		assert.Equal(t, genai.TypeString, instructions.Type)
		assert.Nil(t, instructions.Items)

		assert.Equal(t, genai.TypeString, s.Properties["preparation_time"].Type)

		notes := s.Properties["notes"]
		require.NotNil(t, notes)
		assert.Equal(t, genai.TypeString, notes.Type)
		assert.Nil(t, notes.Properties)
		assert.Nil(t, notes.Required)
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		gen, closeFn, err := NewFromConfig(context.Background(), &config.Config{LLMProvider: config.ProviderGroq})
		require.NoError(t, err)
		assert.Nil(t, gen)
		assert.NoError(t, closeFn())
	})

	t.Run("groq", func(t *testing.T) {
		gen, _, err := NewFromConfig(context.Background(), &config.Config{
			LLMProvider: config.ProviderGroq,
			GroqAPIKey:  "k",
			GroqModel:   "m",
			LLMTimeout:  time.Second,
		})
		require.NoError(t, err)
		assert.NotNil(t, gen)
	})

	t.Run("openai compatible endpoint", func(t *testing.T) {
		var path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}],"usage":{"total_tokens":3}}`))
		}))
		defer srv.Close()

		gen, _, err := NewFromConfig(context.Background(), &config.Config{
			LLMProvider:   config.ProviderOpenAI,
			OpenAIAPIKey:  "k",
			OpenAIModel:   "m",
			OpenAIBaseURL: srv.URL + "/v1/",
			LLMTimeout:    time.Second,
		})
		require.NoError(t, err)

		resp, err := gen.CompleteStructured(context.Background(), Request{UserPrompt: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "/v1/chat/completions", path)
		assert.Equal(t, 3, resp.Usage.TotalTokens)
	})
}
