package rag

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Common errors for embedding operations
var (
	ErrEmptyTexts      = errors.New("no texts provided for embedding")
	ErrMissingAPIKey   = errors.New("OPENAI_API_KEY environment variable not set")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
	ErrUnknownProvider = errors.New("unknown embedding provider")
)

// Embedding providers accepted by NewEmbedder.
const (
	ProviderOpenAI  = "openai"
	ProviderOllama  = "ollama"
	ProviderHashing = "hashing"
)

// EmbeddingRecord represents a single text embedding with metadata
type EmbeddingRecord struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
	Model     string    `json:"model"`
}

// Embedder defines the interface for generating text embeddings
type Embedder interface {
	// Embed generates embeddings for the provided texts
	Embed(ctx context.Context, texts []string) ([]EmbeddingRecord, error)

	// GetModel returns the embedding model identifier
	GetModel() string

	// GetDimension returns the embedding vector dimension, or 0 when the
	// provider only reports it with the first response
	GetDimension() int
}

// EmbedderConfig selects and configures an embedding provider.
type EmbedderConfig struct {
	Provider  string
	Model     string
	Dimension int
	APIKey    string
	BaseURL   string
}

// DefaultEmbedderConfig returns the OpenAI small embedding model.
func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Provider:  ProviderOpenAI,
		Model:     "text-embedding-3-small",
		Dimension: 1536,
	}
}

// NewEmbedder builds the embedder named by config.Provider.
func NewEmbedder(config EmbedderConfig) (Embedder, error) {
	switch config.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIEmbedder(config)
	case ProviderOllama:
		return NewOllamaEmbedder(config)
	case ProviderHashing:
		return NewHashingEmbedder(config.Dimension)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, config.Provider)
	}
}

// OpenAIEmbedder implements the Embedder interface using OpenAI's API
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates a new OpenAI embedder instance. The API key
// falls back to OPENAI_API_KEY.
func NewOpenAIEmbedder(config EmbedderConfig) (*OpenAIEmbedder, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     config.Model,
		dimension: config.Dimension,
	}, nil
}

// GetModel returns the embedding model identifier
func (e *OpenAIEmbedder) GetModel() string {
	return e.model
}

// GetDimension returns the embedding vector dimension
func (e *OpenAIEmbedder) GetDimension() int {
	return e.dimension
}

// Embed generates embeddings for the provided texts using OpenAI's API
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([]EmbeddingRecord, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, len(texts), len(resp.Data))
	}

	records := make([]EmbeddingRecord, len(resp.Data))
	for i, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingFailed, idx)
		}

		embedding := make([]float32, len(data.Embedding))
		for j, val := range data.Embedding {
			embedding[j] = float32(val)
		}

		records[i] = EmbeddingRecord{
			Text:      texts[idx],
			Embedding: embedding,
			Index:     idx,
			Model:     e.model,
		}
	}

	return records, nil
}
