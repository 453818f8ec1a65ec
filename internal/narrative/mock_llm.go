package narrative

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockLLM is a deterministic LLM implementation for testing.
// It returns predictable responses based on prompt content.
type MockLLM struct {
	// Response is the fixed text returned by Generate.
	// If empty, a default response is generated from the prompt.
	Response string

	// Error, if set, is returned by Generate instead of a response.
	Error error

	// Delay, if set, is waited out (or cancelled) before responding.
	Delay time.Duration

	mu         sync.Mutex
	lastPrompt string
	calls      int
}

// NewMockLLM creates a mock LLM with the given fixed response.
func NewMockLLM(response string) *MockLLM {
	return &MockLLM{Response: response}
}

// NewMockLLMWithError creates a mock LLM that always returns an error.
func NewMockLLMWithError(err error) *MockLLM {
	return &MockLLM{Error: err}
}

// Generate returns the configured response or generates a deterministic one.
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.lastPrompt = prompt
	m.calls++
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Error != nil {
		return "", m.Error
	}

	if m.Response != "" {
		return m.Response, nil
	}

	return generateMockResponse(prompt), nil
}

// LastPrompt returns the most recent prompt passed to Generate.
func (m *MockLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// Calls returns how many times Generate was invoked.
func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// generateMockResponse echoes the question found in the prompt.
func generateMockResponse(prompt string) string {
	question := ""
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		for _, label := range []string{"QUESTION:", "Question:"} {
			if rest, ok := strings.CutPrefix(line, label); ok {
				question = strings.TrimSpace(rest)
			}
		}
	}
	if question == "" {
		return fmt.Sprintf("Mock answer for a %d-character prompt.", len(prompt))
	}
	return fmt.Sprintf("Mock answer to: %s", question)
}
