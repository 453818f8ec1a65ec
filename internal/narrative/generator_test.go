package narrative

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestGenerator_Generate_Success(t *testing.T) {
	mockLLM := NewMockLLM("Goroutines are multiplexed onto OS threads.")
	config := DefaultLLMConfig()
	config.Model = "test-model"

	gen := NewGenerator(mockLLM, config)

	prompt := GroundedPrompt([]string{"The runtime schedules goroutines."}, VideoQuestion("Goroutines 101", "how are goroutines scheduled?"))

	completion, err := gen.Generate(context.Background(), prompt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if completion == nil {
		t.Fatal("completion is nil")
	}

	if completion.Text != "Goroutines are multiplexed onto OS threads." {
		t.Errorf("unexpected text: %s", completion.Text)
	}

	if completion.Model != "test-model" {
		t.Errorf("expected model test-model, got %s", completion.Model)
	}

	if completion.GeneratedAt.IsZero() {
		t.Error("generated timestamp is zero")
	}

	// Verify mock received the prompt
	if mockLLM.LastPrompt() != prompt {
		t.Error("mock LLM did not receive the prompt")
	}
	if mockLLM.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", mockLLM.Calls())
	}
}

func TestGenerator_Generate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		llm    LLM
		prompt string
	}{
		{name: "nil llm", llm: nil, prompt: "question"},
		{name: "empty prompt", llm: NewMockLLM("test"), prompt: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewGenerator(tt.llm, DefaultLLMConfig())
			_, err := gen.Generate(context.Background(), tt.prompt)
			if !errors.Is(err, ErrGenerationFailed) {
				t.Errorf("expected ErrGenerationFailed, got %v", err)
			}
		})
	}
}

func TestGenerator_Generate_LLMError(t *testing.T) {
	llmErr := errors.New("API rate limit exceeded")
	gen := NewGenerator(NewMockLLMWithError(llmErr), DefaultLLMConfig())

	_, err := gen.Generate(context.Background(), "some prompt")
	if err == nil {
		t.Fatal("expected error from LLM")
	}

	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
	if !errors.Is(err, llmErr) {
		t.Errorf("expected cause to be preserved, got %v", err)
	}
	if errors.Is(err, ErrGenerationTimeout) {
		t.Error("plain failure reported as timeout")
	}
}

func TestGenerator_Generate_Timeout(t *testing.T) {
	mockLLM := &MockLLM{Response: "too late", Delay: time.Second}
	config := DefaultLLMConfig()
	config.Timeout = 20 * time.Millisecond

	_, err := NewGenerator(mockLLM, config).Generate(context.Background(), "slow prompt")
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
}

// blockingLLM ignores cancellation until released.
type blockingLLM struct {
	release chan struct{}
}

func (b *blockingLLM) Generate(ctx context.Context, prompt string) (string, error) {
	<-b.release
	return "late", nil
}

func TestGenerator_Generate_TimeoutIgnoredByBackend(t *testing.T) {
	llm := &blockingLLM{release: make(chan struct{})}
	defer close(llm.release)

	config := DefaultLLMConfig()
	config.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := NewGenerator(llm, config).Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("generation was not bounded: %s", elapsed)
	}
}

func TestGenerator_Generate_CallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mockLLM := &MockLLM{Response: "never", Delay: time.Second}
	_, err := NewGenerator(mockLLM, DefaultLLMConfig()).Generate(ctx, "prompt")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("expected ErrGenerationFailed, got %v", err)
	}
	if errors.Is(err, ErrGenerationTimeout) {
		t.Error("caller cancellation reported as timeout")
	}
}

func TestMockLLM_Generate(t *testing.T) {
	tests := []struct {
		name     string
		mock     *MockLLM
		prompt   string
		wantErr  bool
		wantText string
	}{
		{
			name:     "fixed response",
			mock:     NewMockLLM("Fixed answer text"),
			prompt:   "Any prompt",
			wantText: "Fixed answer text",
		},
		{
			name:    "error response",
			mock:    NewMockLLMWithError(errors.New("mock error")),
			prompt:  "Any prompt",
			wantErr: true,
		},
		{
			name:     "echoes grounded question",
			mock:     &MockLLM{},
			prompt:   GroundedPrompt([]string{"ctx"}, "what is a mutex?"),
			wantText: "what is a mutex?",
		},
		{
			name:     "echoes general question",
			mock:     &MockLLM{},
			prompt:   GeneralPrompt("what is a channel?"),
			wantText: "what is a channel?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := tt.mock.Generate(context.Background(), tt.prompt)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if tt.wantText != "" && !strings.Contains(text, tt.wantText) {
				t.Errorf("expected text to contain %q, got %q", tt.wantText, text)
			}

			if tt.mock.LastPrompt() != tt.prompt {
				t.Errorf("expected LastPrompt to be %q, got %q", tt.prompt, tt.mock.LastPrompt())
			}
		})
	}
}

func TestNewGenerator(t *testing.T) {
	mockLLM := NewMockLLM("test")
	config := LLMConfig{
		Model:       "gpt-4o",
		Temperature: 0.5,
		MaxTokens:   1000,
	}

	gen := NewGenerator(mockLLM, config)

	if gen == nil {
		t.Fatal("generator is nil")
	}

	if gen.llm != mockLLM {
		t.Error("LLM not set correctly")
	}

	if gen.Model() != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", gen.Model())
	}
}

func TestNewLLM(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	tests := []struct {
		name    string
		config  LLMConfig
		wantErr bool
	}{
		{name: "openai without key", config: LLMConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}, wantErr: true},
		{name: "openai with key", config: LLMConfig{Provider: ProviderOpenAI, Model: "gpt-4o-mini", APIKey: "sk-test"}},
		{name: "openai without model", config: LLMConfig{Provider: ProviderOpenAI, APIKey: "sk-test"}, wantErr: true},
		{name: "ollama", config: LLMConfig{Provider: ProviderOllama, Model: "llama3.1", BaseURL: "http://localhost:11434"}},
		{name: "ollama without model", config: LLMConfig{Provider: ProviderOllama}, wantErr: true},
		{name: "unknown", config: LLMConfig{Provider: "gemini", Model: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm, err := NewLLM(tt.config)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if llm == nil {
				t.Fatal("llm is nil")
			}
		})
	}
}

func TestOpenAILLM_Generate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	llm, err := NewOpenAILLM(DefaultLLMConfig())
	if err != nil {
		t.Fatalf("failed to create LLM: %v", err)
	}

	text, err := llm.Generate(context.Background(), GeneralPrompt("Reply with the single word: pong"))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if strings.TrimSpace(text) == "" {
		t.Error("expected non-empty response")
	}
}
