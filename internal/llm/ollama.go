package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Langchain completes prompts through a langchaingo model, usually a local
// model served by Ollama.
type Langchain struct {
	model       llms.Model
	temperature float64
}

// NewOllama connects to an Ollama server.
func NewOllama(serverURL, modelName string, httpClient *http.Client) (*Langchain, error) {
	opts := []ollama.Option{ollama.WithModel(modelName)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	if httpClient != nil {
		opts = append(opts, ollama.WithHTTPClient(httpClient))
	}
	m, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return NewLangchain(m), nil
}

// NewLangchain wraps any langchaingo model.
func NewLangchain(m llms.Model) *Langchain {
	return &Langchain{model: m, temperature: 0.1}
}

// Complete sends prompt as a single human message.
func (o *Langchain) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, o.model, prompt, llms.WithTemperature(o.temperature))
	if err != nil {
		return "", fmt.Errorf("ollama call: %w", err)
	}
	return out, nil
}
