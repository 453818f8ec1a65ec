package rag

import (
	"context"
	"time"

	"github.com/Yates-Labs/lectern/internal/transcript"
)

// EmbeddedChunk is a transcript chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk  transcript.Chunk `msgpack:"chunk"`
	Vector []float32        `msgpack:"vector"`
}

// Hit is one ranked search result.
type Hit struct {
	Chunk transcript.Chunk `json:"chunk"`
	Score float32          `json:"score"` // cosine similarity, higher is closer
}

// Manifest describes a built index.
type Manifest struct {
	FormatVersion  int       `msgpack:"format_version" json:"format_version"`
	EmbeddingModel string    `msgpack:"embedding_model" json:"embedding_model"`
	Dimension      int       `msgpack:"dimension" json:"dimension"`
	Engine         string    `msgpack:"engine" json:"engine"`
	EngineRef      string    `msgpack:"engine_ref" json:"engine_ref,omitempty"`
	ChunkCount     int       `msgpack:"chunk_count" json:"chunk_count"`
	VideoCount     int       `msgpack:"video_count" json:"video_count"`
	BuiltAt        time.Time `msgpack:"built_at" json:"built_at"`
	CorpusRevision string    `msgpack:"corpus_revision" json:"corpus_revision,omitempty"`
}

// ScoredID is an engine-level match, resolved to a chunk by the snapshot.
type ScoredID struct {
	ID    string
	Score float32
}

// Engine ranks stored vectors against a query vector. Implementations must
// be safe for concurrent use and are never mutated after creation.
type Engine interface {
	// Search returns up to k ids whose metadata equals every entry of where,
	// ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]ScoredID, error)
}

// Backend creates engines for built indexes.
type Backend interface {
	// Name identifies the backend in manifests ("chromem", "milvus").
	Name() string

	// Materialize creates a fresh engine for a new build and returns a
	// reference to persist in the manifest.
	Materialize(ctx context.Context, manifest Manifest, chunks []EmbeddedChunk) (Engine, string, error)

	// Attach opens the engine for a persisted index.
	Attach(ctx context.Context, manifest Manifest, chunks []EmbeddedChunk) (Engine, error)

	// Drop discards an engine created by Materialize that was never published.
	Drop(ctx context.Context, ref string) error

	// Retire removes engines other than the given references.
	Retire(ctx context.Context, keep ...string) error

	// Close releases backend connections.
	Close() error
}

// IndexOptions provides configuration for chunk embedding during builds
type IndexOptions struct {
	// BatchSize determines how many chunks to embed per request
	BatchSize int

	// Concurrency bounds in-flight embedding requests
	Concurrency int

	// RequestsPerSecond paces embedding requests; 0 disables pacing
	RequestsPerSecond float64
}

// DefaultIndexOptions returns conservative embedding settings.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		BatchSize:   64,
		Concurrency: 4,
	}
}
