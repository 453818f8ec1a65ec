package rag

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

const (
	BackendChromem = "chromem"

	chromemCollection = "transcript_chunks"
)

var errNoEmbeddingFunc = errors.New("chromem collection only accepts precomputed embeddings")

// ChromemBackend keeps the similarity structure in process memory. The
// artifact already carries every vector, so Materialize and Attach both
// rebuild the collection from the chunks they are given.
type ChromemBackend struct{}

// NewChromemBackend creates the in-process backend.
func NewChromemBackend() *ChromemBackend {
	return &ChromemBackend{}
}

func (b *ChromemBackend) Name() string { return BackendChromem }

func (b *ChromemBackend) Materialize(ctx context.Context, manifest Manifest, chunks []EmbeddedChunk) (Engine, string, error) {
	engine, err := b.build(ctx, chunks)
	if err != nil {
		return nil, "", err
	}
	return engine, "", nil
}

func (b *ChromemBackend) Attach(ctx context.Context, manifest Manifest, chunks []EmbeddedChunk) (Engine, error) {
	return b.build(ctx, chunks)
}

func (b *ChromemBackend) Drop(ctx context.Context, ref string) error      { return nil }
func (b *ChromemBackend) Retire(ctx context.Context, keep ...string) error { return nil }
func (b *ChromemBackend) Close() error                                     { return nil }

func (b *ChromemBackend) build(ctx context.Context, chunks []EmbeddedChunk) (*chromemEngine, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection(chromemCollection, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ec := range chunks {
		// chromem may normalize the slice it is handed.
		vec := make([]float32, len(ec.Vector))
		copy(vec, ec.Vector)

		docs[i] = chromem.Document{
			ID:        ec.Chunk.ID,
			Metadata:  chunkMetadata(ec.Chunk),
			Embedding: vec,
			Content:   ec.Chunk.Text,
		}
	}

	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("failed to add documents to chromem: %w", err)
		}
	}

	return &chromemEngine{collection: collection}, nil
}

type chromemEngine struct {
	collection *chromem.Collection
}

func (e *chromemEngine) Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]ScoredID, error) {
	count := e.collection.Count()
	if count == 0 {
		return []ScoredID{}, nil
	}
	// chromem rejects nResults above the collection size.
	if k > count {
		k = count
	}

	var filter map[string]string
	if len(where) > 0 {
		filter = where
	}

	results, err := e.collection.QueryEmbedding(ctx, vector, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	ids := make([]ScoredID, len(results))
	for i, r := range results {
		ids[i] = ScoredID{ID: r.ID, Score: r.Similarity}
	}
	return ids, nil
}

// Stats reports the collection size.
func (e *chromemEngine) Stats(ctx context.Context) (map[string]string, error) {
	return map[string]string{
		"engine":    BackendChromem,
		"documents": strconv.Itoa(e.collection.Count()),
	}, nil
}
