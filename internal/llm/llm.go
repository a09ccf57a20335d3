// Package llm contains the clients used to reach a text generation model.
// The grading core only sees the Completer interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// Completer sends a prompt to a language model and returns its raw text
// response.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ErrNoChoices is returned when the API answers without any completion.
var ErrNoChoices = errors.New("LLM returned no choices")

// OpenAI talks to an OpenAI-compatible chat completion API.
type OpenAI struct {
	api         *openai.Client
	model       string
	temperature float32
	jsonMode    bool
}

// OpenAIOption configures an OpenAI client.
type OpenAIOption func(*OpenAI)

// WithTemperature sets the sampling temperature (default 0.1).
func WithTemperature(t float32) OpenAIOption {
	return func(c *OpenAI) { c.temperature = t }
}

// WithJSONMode asks the API for a JSON object response. Useful for grading
// and analysis, wrong for quiz generation.
func WithJSONMode(on bool) OpenAIOption {
	return func(c *OpenAI) { c.jsonMode = on }
}

// NewOpenAI creates a client. An empty baseURL uses the OpenAI endpoint.
func NewOpenAI(baseURL, apiKey, modelName string, opts ...OpenAIOption) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	c := &OpenAI{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		temperature: 0.1,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the model identifier.
func (c *OpenAI) Model() string { return c.model }

// WithOptions returns a copy of c sharing its HTTP client.
func (c *OpenAI) WithOptions(opts ...OpenAIOption) *OpenAI {
	cp := *c
	for _, o := range opts {
		o(&cp)
	}
	return &cp
}

// Complete sends prompt as a single user message.
func (c *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "raw", raw)
	return raw, nil
}
