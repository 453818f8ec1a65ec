package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaEmbedder embeds text with a local Ollama model through langchaingo.
type OllamaEmbedder struct {
	embedder  *embeddings.EmbedderImpl
	model     string
	dimension int
}

// NewOllamaEmbedder connects to the Ollama server at config.BaseURL.
func NewOllamaEmbedder(config EmbedderConfig) (*OllamaEmbedder, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("%w: ollama model is required", ErrEmbeddingFailed)
	}

	opts := []ollama.Option{ollama.WithModel(config.Model)}
	if config.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(config.BaseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
	}

	return &OllamaEmbedder{
		embedder:  embedder,
		model:     config.Model,
		dimension: config.Dimension,
	}, nil
}

func (e *OllamaEmbedder) GetModel() string  { return e.model }
func (e *OllamaEmbedder) GetDimension() int { return e.dimension }

// Embed embeds texts in one request.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([]EmbeddingRecord, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, len(texts), len(vectors))
	}

	records := make([]EmbeddingRecord, len(vectors))
	for i, v := range vectors {
		records[i] = EmbeddingRecord{
			Text:      texts[i],
			Embedding: v,
			Index:     i,
			Model:     e.model,
		}
	}
	return records, nil
}
