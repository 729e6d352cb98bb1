package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ai-meal-plan-api/internal/shared"
)

const (
	groqAPIURL   = "https://api.groq.com/openai/v1/chat/completions"
	openAIAPIURL = "https://api.openai.com/v1/chat/completions"
)

// ChatClient talks to any OpenAI compatible chat completions endpoint
// (Groq, OpenAI).
type ChatClient struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	// jsonSchema sends the request schema as a json_schema response format.
	// Groq models only accept json_object.
	jsonSchema bool
}

// NewGroqClient creates a new Groq API client.
func NewGroqClient(apiKey, model string) *ChatClient {
	c := NewChatClient(groqAPIURL, apiKey, model)
	c.jsonSchema = false
	return c
}

// NewOpenAIClient creates a new OpenAI API client.
func NewOpenAIClient(apiKey, model string) *ChatClient {
	return NewChatClient(openAIAPIURL, apiKey, model)
}

// NewChatClient creates a client for an arbitrary chat completions endpoint.
func NewChatClient(endpoint, apiKey, model string) *ChatClient {
	return &ChatClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		jsonSchema: true,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float32        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// CompleteStructured sends the prompt pair and returns the JSON content.
func (c *ChatClient) CompleteStructured(ctx context.Context, req Request) (ContentResponse, error) {
	if c.apiKey == "" {
		return ContentResponse{}, ErrNotConfigured
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body := chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    req.Temperature,
		ResponseFormat: c.responseFormat(req),
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ContentResponse{}, fmt.Errorf("chat completions api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return ContentResponse{}, ErrEmptyResponse
	}

	return ContentResponse{
		Content: chatResp.Choices[0].Message.Content,
		Usage: shared.TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
			Model:            c.model,
		},
	}, nil
}

func (c *ChatClient) responseFormat(req Request) map[string]any {
	if req.Schema == nil || !c.jsonSchema {
		return map[string]any{"type": "json_object"}
	}
	name := req.SchemaName
	if name == "" {
		name = "response"
	}
	return map[string]any{
		"type": "json_schema",
		"json_schema": map[string]any{
			"name":   name,
			"schema": req.Schema,
		},
	}
}
