// Package narrative turns assembled prompts into answers. It defines a
// provider-agnostic LLM interface with implementations for OpenAI, Ollama
// (through langchaingo) and a deterministic mock for testing, plus the
// prompt templates used when answering course questions.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrLLMFailed     = errors.New("LLM request failed")
	ErrInvalidConfig = errors.New("invalid LLM configuration")
)

// LLM providers accepted by NewLLM.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// LLM defines the interface for interacting with language models.
// Implementations must be stateless and thread-safe.
type LLM interface {
	// Generate produces text from a prompt using the configured model.
	// Returns the generated text or an error if generation fails.
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMConfig holds common configuration options for LLM providers.
type LLMConfig struct {
	// Provider selects the backend ("openai" or "ollama")
	Provider string

	// Model specifies the model identifier (e.g., "gpt-4o-mini", "llama3.1")
	Model string

	// Temperature controls randomness (0.0 = provider default)
	Temperature float32

	// MaxTokens limits the response length (0 = use provider default)
	MaxTokens int

	// APIKey is the authentication key for the provider
	APIKey string

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways, Ollama host)
	BaseURL string

	// Timeout bounds a single generation call
	Timeout time.Duration
}

// DefaultLLMConfig returns sensible defaults for answering course questions.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0, // model default
		MaxTokens:   1000,
		Timeout:     60 * time.Second,
	}
}

// NewLLM builds the LLM named by config.Provider.
func NewLLM(config LLMConfig) (LLM, error) {
	switch config.Provider {
	case ProviderOpenAI, "":
		return NewOpenAILLM(config)
	case ProviderOllama:
		return NewOllamaLLM(config)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, config.Provider)
	}
}
