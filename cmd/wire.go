package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Yates-Labs/lectern/internal/config"
	"github.com/Yates-Labs/lectern/internal/ingest"
	"github.com/Yates-Labs/lectern/internal/narrative"
	"github.com/Yates-Labs/lectern/internal/rag"
	"github.com/Yates-Labs/lectern/internal/router"
	"github.com/Yates-Labs/lectern/internal/transcript"
)

// app holds the long-lived components one command needs.
type app struct {
	index    *rag.Index
	ingester *ingest.Ingester

	// router is nil unless the app was built for answering.
	router *router.Router
}

func newApp(ctx context.Context, c *config.Config, logger zerolog.Logger, answering bool) (*app, error) {
	if answering {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	} else if err := c.ValidateIndex(); err != nil {
		return nil, err
	}

	embedder, err := rag.NewEmbedder(embedderConfig(c))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	backend, err := newBackend(ctx, c)
	if err != nil {
		return nil, err
	}
	index, err := rag.NewIndex(indexConfig(c), embedder, backend, logger)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	ingester, err := ingest.NewIngester(ingestConfig(c), index, logger)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to create ingester: %w", err)
	}

	a := &app{index: index, ingester: ingester}
	if !answering {
		return a, nil
	}

	llmConfig := llmConfig(c)
	llm, err := narrative.NewLLM(llmConfig)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to create LLM: %w", err)
	}
	r, err := router.NewRouter(router.IndexSource(index), narrative.NewGenerator(llm, llmConfig), routerConfig(c), logger)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	a.router = r
	return a, nil
}

func (a *app) Close() error {
	return a.index.Close()
}

func newBackend(ctx context.Context, c *config.Config) (rag.Backend, error) {
	switch c.Index.Engine {
	case rag.BackendChromem, "":
		return rag.NewChromemBackend(), nil
	case rag.BackendMilvus:
		backend, err := rag.NewMilvusBackend(ctx, milvusConfig(c))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Milvus: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("%w: unknown index engine %q", config.ErrConfiguration, c.Index.Engine)
	}
}

func embedderConfig(c *config.Config) rag.EmbedderConfig {
	return rag.EmbedderConfig{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		Dimension: c.Embedding.Dimension,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
	}
}

func indexConfig(c *config.Config) rag.IndexConfig {
	return rag.IndexConfig{
		Path:        c.Index.Path,
		LoadTimeout: c.Index.LoadTimeout,
		Options: rag.IndexOptions{
			BatchSize:         c.Embedding.BatchSize,
			Concurrency:       c.Embedding.Concurrency,
			RequestsPerSecond: c.Embedding.RequestsPerSecond,
		},
	}
}

func milvusConfig(c *config.Config) rag.MilvusConfig {
	return rag.MilvusConfig{
		Address:          c.Milvus.Address,
		CollectionPrefix: c.Milvus.CollectionPrefix,
		M:                c.Milvus.M,
		EfConstruction:   c.Milvus.EfConstruction,
		EfSearch:         c.Milvus.EfSearch,
	}
}

func ingestConfig(c *config.Config) ingest.Config {
	return ingest.Config{
		Corpus: transcript.LoaderConfig{
			Root:        c.Corpus.Root,
			SkipInvalid: !c.Corpus.Strict,
		},
		Catalog: c.Corpus.Catalog,
		Chunking: transcript.ChunkerConfig{
			ChunkSize:    c.Chunking.ChunkSize,
			ChunkOverlap: c.Chunking.ChunkOverlap,
		},
	}
}

func llmConfig(c *config.Config) narrative.LLMConfig {
	return narrative.LLMConfig{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Model,
		Temperature: float32(c.LLM.Temperature),
		MaxTokens:   c.LLM.MaxTokens,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Timeout:     c.LLM.Timeout,
	}
}

func routerConfig(c *config.Config) router.Config {
	return router.Config{
		RetrievalK:  c.Router.RetrievalK,
		ScanLimit:   c.Router.ScanLimit,
		TimePhrases: c.Router.TimePhrases,
	}
}

// loadSnapshot returns the built index or an error telling the user to ingest.
func loadSnapshot(ctx context.Context, index *rag.Index) (*rag.Snapshot, error) {
	snap, err := index.MustLoad(ctx)
	if errors.Is(err, rag.ErrIndexNotBuilt) {
		return nil, fmt.Errorf("%w: run 'lectern ingest' first", err)
	}
	return snap, err
}
