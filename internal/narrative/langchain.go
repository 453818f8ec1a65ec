package narrative

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaLLM runs prompts against a local Ollama model through langchaingo.
type OllamaLLM struct {
	model  *ollama.LLM
	config LLMConfig
}

// NewOllamaLLM creates an Ollama-backed LLM. BaseURL defaults to the
// Ollama client's own default host.
func NewOllamaLLM(config LLMConfig) (*OllamaLLM, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("%w: missing model name", ErrInvalidConfig)
	}

	opts := []ollama.Option{ollama.WithModel(config.Model)}
	if config.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(config.BaseURL))
	}

	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &OllamaLLM{model: model, config: config}, nil
}

// Generate sends the prompt as a single user message.
func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt cannot be empty", ErrInvalidConfig)
	}

	var opts []llms.CallOption
	if o.config.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(float64(o.config.Temperature)))
	}
	if o.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(o.config.MaxTokens))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, o.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLLMFailed, err)
	}
	return text, nil
}
