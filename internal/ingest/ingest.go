// Package ingest rebuilds the transcript index from the corpus on disk.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yates-Labs/lectern/internal/ingest/git"
	"github.com/Yates-Labs/lectern/internal/rag"
	"github.com/Yates-Labs/lectern/internal/transcript"
)

// Config locates the corpus and controls chunking.
type Config struct {
	Corpus   transcript.LoaderConfig
	Catalog  string // optional course catalog YAML
	Chunking transcript.ChunkerConfig
}

// Builder persists and publishes a new index.
type Builder interface {
	Build(ctx context.Context, chunks []transcript.Chunk, opts rag.BuildOptions) (*rag.Manifest, error)
}

// Report summarizes one rebuild.
type Report struct {
	Videos   int
	Segments int
	Chunks   int
	Manifest *rag.Manifest
	Revision *git.Revision
	Duration time.Duration
}

// Ingester runs the load, chunk and build pipeline.
type Ingester struct {
	config  Config
	chunker *transcript.Chunker
	index   Builder
	logger  zerolog.Logger
}

// NewIngester validates the chunking configuration up front.
func NewIngester(config Config, index Builder, logger zerolog.Logger) (*Ingester, error) {
	if index == nil {
		return nil, fmt.Errorf("index cannot be nil")
	}
	chunker, err := transcript.NewChunker(config.Chunking)
	if err != nil {
		return nil, err
	}

	return &Ingester{
		config:  config,
		chunker: chunker,
		index:   index,
		logger:  logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// RebuildIndex rebuilds the index and returns the number of chunks indexed.
func (i *Ingester) RebuildIndex(ctx context.Context) (int, error) {
	report, err := i.Rebuild(ctx)
	if err != nil {
		return 0, err
	}
	return report.Chunks, nil
}

// Rebuild reads every transcript, chunks it and replaces the index. Files
// are visited in lexical order and chunk ids are content-derived, so running
// it twice over the same corpus yields the same chunks.
func (i *Ingester) Rebuild(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{}

	// Stage 1: read transcripts
	i.logger.Info().Int("stage", 1).Str("root", i.config.Corpus.Root).Msg("loading transcripts")
	videos, err := transcript.NewLoader(i.config.Corpus, i.logger).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	report.Videos = len(videos)

	// Stage 2: chunk
	i.logger.Info().Int("stage", 2).Int("videos", len(videos)).Msg("chunking transcripts")
	var chunks []transcript.Chunk
	for _, v := range videos {
		report.Segments += len(v.Segments)
		vc, err := i.chunker.Chunk(v)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk video %s: %w", v.ID, err)
		}
		chunks = append(chunks, vc...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", transcript.ErrEmptyCorpus, i.config.Corpus.Root)
	}
	report.Chunks = len(chunks)
	i.logger.Info().Int("segments", report.Segments).Int("chunks", len(chunks)).Msg("transcripts chunked")

	// Stage 3: catalog titles and corpus provenance
	i.logger.Info().Int("stage", 3).Msg("collecting titles and corpus revision")
	catalog, err := transcript.LoadCatalog(i.config.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	revision, err := git.ReadRevision(i.config.Corpus.Root)
	if err != nil {
		// Provenance is informational; a broken repository must not block a rebuild.
		i.logger.Warn().Err(err).Msg("could not read corpus revision")
	}
	report.Revision = revision
	if revision != nil {
		i.logger.Info().Str("revision", revision.String()).Str("subject", revision.Subject).Msg("corpus revision")
	}

	// Stage 4: embed, persist and publish
	i.logger.Info().Int("stage", 4).Int("chunks", len(chunks)).Msg("building index")
	manifest, err := i.index.Build(ctx, chunks, rag.BuildOptions{
		Titles:   catalog.Titles(),
		Revision: revision.String(),
	})
	if err != nil {
		return nil, err
	}
	report.Manifest = manifest
	report.Duration = time.Since(started)

	i.logger.Info().
		Int("videos", report.Videos).
		Int("chunks", report.Chunks).
		Str("model", manifest.EmbeddingModel).
		Dur("duration", report.Duration).
		Msg("index rebuilt")

	return report, nil
}
