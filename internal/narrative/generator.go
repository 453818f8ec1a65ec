package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yates-Labs/lectern/internal/observability"
)

var (
	ErrGenerationFailed  = errors.New("answer generation failed")
	ErrGenerationTimeout = errors.New("answer generation timed out")
)

// Completion is the generated text for one prompt.
type Completion struct {
	// Text is the generated answer
	Text string `json:"text"`

	// Model is the LLM model used to generate this answer
	Model string `json:"model"`

	// GeneratedAt is when generation finished
	GeneratedAt time.Time `json:"generated_at"`

	// Duration is how long the backend took
	Duration time.Duration `json:"duration"`
}

// Generator invokes an LLM on an already-assembled prompt under the
// configured timeout.
type Generator struct {
	llm    LLM
	config LLMConfig
}

// NewGenerator creates a generator with the given LLM implementation.
func NewGenerator(llm LLM, config LLMConfig) *Generator {
	return &Generator{
		llm:    llm,
		config: config,
	}
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	return g.config.Model
}

type generation struct {
	text string
	err  error
}

// Generate runs the prompt. It must not perform retrieval or prompt
// construction. A call exceeding the timeout fails with ErrGenerationTimeout
// even when the backend ignores cancellation.
func (g *Generator) Generate(ctx context.Context, prompt string) (_ *Completion, err error) {
	if g.llm == nil {
		return nil, fmt.Errorf("%w: LLM is required", ErrGenerationFailed)
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrGenerationFailed)
	}

	ctx, span := observability.StartLLMSpan(ctx, g.config.Model)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	started := time.Now()
	done := make(chan generation, 1)
	go func() {
		text, err := g.llm.Generate(ctx, prompt)
		done <- generation{text: text, err: err}
	}()

	var res generation
	select {
	case res = <-done:
	case <-ctx.Done():
		res = generation{err: ctx.Err()}
	}

	if res.err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w after %s: %w", ErrGenerationFailed, ErrGenerationTimeout, g.config.Timeout, res.err)
		}
		return nil, fmt.Errorf("%w: LLM invocation failed: %w", ErrGenerationFailed, res.err)
	}

	return &Completion{
		Text:        res.text,
		Model:       g.config.Model,
		GeneratedAt: time.Now(),
		Duration:    time.Since(started),
	}, nil
}
