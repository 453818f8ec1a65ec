package rag

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
)

func TestNewOpenAIEmbedder_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewOpenAIEmbedder(DefaultEmbedderConfig())
	if err != ErrMissingAPIKey {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewOpenAIEmbedder_ExplicitKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	config := DefaultEmbedderConfig()
	config.APIKey = "sk-test"
	config.BaseURL = "http://localhost:9999/v1"

	embedder, err := NewOpenAIEmbedder(config)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embedder.GetModel() != "text-embedding-3-small" {
		t.Errorf("unexpected model %s", embedder.GetModel())
	}
	if embedder.GetDimension() != 1536 {
		t.Errorf("unexpected dimension %d", embedder.GetDimension())
	}
}

func TestNewEmbedder_Providers(t *testing.T) {
	tests := []struct {
		name    string
		config  EmbedderConfig
		wantErr error
		model   string
	}{
		{
			name:   "hashing",
			config: EmbedderConfig{Provider: ProviderHashing, Dimension: 32},
			model:  "hashing-32",
		},
		{
			name:    "hashing without dimension",
			config:  EmbedderConfig{Provider: ProviderHashing},
			wantErr: ErrInvalidDimension,
		},
		{
			name:    "unknown provider",
			config:  EmbedderConfig{Provider: "word2vec"},
			wantErr: ErrUnknownProvider,
		},
		{
			name:   "ollama",
			config: EmbedderConfig{Provider: ProviderOllama, Model: "nomic-embed-text", BaseURL: "http://localhost:11434"},
			model:  "nomic-embed-text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder, err := NewEmbedder(tt.config)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if embedder.GetModel() != tt.model {
				t.Errorf("expected model %s, got %s", tt.model, embedder.GetModel())
			}
		})
	}
}

func TestHashingEmbedder_Embed(t *testing.T) {
	embedder, err := NewHashingEmbedder(128)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	ctx := context.Background()

	if _, err := embedder.Embed(ctx, nil); err != ErrEmptyTexts {
		t.Errorf("expected ErrEmptyTexts, got %v", err)
	}

	texts := []string{"Goroutines and channels", "goroutines AND channels!", "baking sourdough bread", ""}
	records, err := embedder.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(records) != len(texts) {
		t.Fatalf("expected %d records, got %d", len(texts), len(records))
	}

	for i, rec := range records {
		if rec.Index != i {
			t.Errorf("record %d has index %d", i, rec.Index)
		}
		if len(rec.Embedding) != 128 {
			t.Errorf("record %d has dimension %d", i, len(rec.Embedding))
		}
		var norm float64
		for _, x := range rec.Embedding {
			norm += float64(x) * float64(x)
		}
		if math.Abs(norm-1) > 1e-5 {
			t.Errorf("record %d not unit length: %f", i, norm)
		}
	}

	// Case and punctuation do not change the bag of words.
	if cosine(records[0].Embedding, records[1].Embedding) < 0.999 {
		t.Error("expected identical vectors for the same words")
	}
	if cosine(records[0].Embedding, records[2].Embedding) > 0.5 {
		t.Error("expected unrelated texts to be dissimilar")
	}

	again, _ := embedder.Embed(ctx, texts[:1])
	for i := range again[0].Embedding {
		if again[0].Embedding[i] != records[0].Embedding[i] {
			t.Fatal("hashing embedder is not deterministic")
		}
	}
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	embedder, err := NewOpenAIEmbedder(DefaultEmbedderConfig())
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	if _, err := embedder.Embed(context.Background(), []string{}); err != ErrEmptyTexts {
		t.Errorf("expected ErrEmptyTexts, got %v", err)
	}

	texts := []string{"what is a goroutine", "the scheduler multiplexes goroutines"}
	records, err := embedder.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(records) != len(texts) {
		t.Fatalf("expected %d records, got %d", len(texts), len(records))
	}
	for i, rec := range records {
		if rec.Text != texts[rec.Index] {
			t.Errorf("record %d: text does not match its index", i)
		}
		if len(rec.Embedding) != 1536 {
			t.Errorf("record %d: expected 1536 dimensions, got %d", i, len(rec.Embedding))
		}
	}
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
