package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Yates-Labs/lectern/internal/observability"
	"github.com/Yates-Labs/lectern/internal/transcript"
)

var (
	ErrIndexBuild        = errors.New("index build failed")
	ErrIndexLoad         = errors.New("index load failed")
	ErrIndexIncompatible = errors.New("index artifact is incompatible; rebuild required")
	ErrRebuildInProgress = errors.New("index rebuild already in progress")
	ErrIndexNotBuilt     = errors.New("index has not been built")
)

// IndexConfig locates the persisted index and tunes builds.
type IndexConfig struct {
	// Path is the artifact file.
	Path string

	// LoadTimeout bounds reading the artifact and attaching the engine.
	LoadTimeout time.Duration

	Options IndexOptions
}

// DefaultIndexConfig returns the default artifact location and build settings.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Path:        "data/index/lectern.idx",
		LoadTimeout: 30 * time.Second,
		Options:     DefaultIndexOptions(),
	}
}

// BuildOptions carries provenance recorded with a build.
type BuildOptions struct {
	Titles   map[string]string
	Revision string
}

// Index owns the loaded snapshot and is the only writer of the artifact.
// Queries read the current snapshot without locking; builds are serialized
// and a concurrent build is rejected.
type Index struct {
	config   IndexConfig
	embedder Embedder
	backend  Backend
	logger   zerolog.Logger

	current atomic.Pointer[Snapshot]
	loads   singleflight.Group
	buildMu sync.Mutex
}

// NewIndex creates an index resource. Nothing is loaded until Load or Build.
func NewIndex(config IndexConfig, embedder Embedder, backend Backend, logger zerolog.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if config.Path == "" {
		return nil, fmt.Errorf("index path cannot be empty")
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = DefaultIndexConfig().LoadTimeout
	}
	if config.Options.BatchSize <= 0 {
		config.Options.BatchSize = DefaultIndexOptions().BatchSize
	}
	if config.Options.Concurrency <= 0 {
		config.Options.Concurrency = 1
	}

	return &Index{
		config:   config,
		embedder: embedder,
		backend:  backend,
		logger:   logger.With().Str("component", "index").Logger(),
	}, nil
}

// Load returns the current snapshot, reading the artifact on first use.
// It returns (nil, nil) when no index has been built yet; that state is not
// remembered, so a later build by another process is picked up.
func (ix *Index) Load(ctx context.Context) (*Snapshot, error) {
	if s := ix.current.Load(); s != nil {
		return s, nil
	}

	ch := ix.loads.DoChan("load", func() (any, error) {
		if s := ix.current.Load(); s != nil {
			return s, nil
		}

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ix.config.LoadTimeout)
		defer cancel()

		s, err := ix.loadArtifact(lctx)
		if err != nil || s == nil {
			return s, err
		}
		// A build may have published while we were reading.
		if !ix.current.CompareAndSwap(nil, s) {
			return ix.current.Load(), nil
		}
		ix.logger.Info().
			Int("chunks", s.Len()).
			Str("model", s.manifest.EmbeddingModel).
			Str("engine", s.manifest.Engine).
			Msg("index loaded")
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		s, _ := res.Val.(*Snapshot)
		return s, nil
	}
}

// MustLoad is Load with absence reported as ErrIndexNotBuilt.
func (ix *Index) MustLoad(ctx context.Context) (*Snapshot, error) {
	s, err := ix.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrIndexNotBuilt
	}
	return s, nil
}

type loadResult struct {
	snapshot *Snapshot
	err      error
}

func (ix *Index) loadArtifact(ctx context.Context) (*Snapshot, error) {
	done := make(chan loadResult, 1)
	go func() {
		s, err := ix.readSnapshot(ctx)
		done <- loadResult{snapshot: s, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: timed out after %s: %w", ErrIndexLoad, ix.config.LoadTimeout, ctx.Err())
	case r := <-done:
		return r.snapshot, r.err
	}
}

func (ix *Index) readSnapshot(ctx context.Context) (*Snapshot, error) {
	a, err := readArtifact(ix.config.Path)
	if errors.Is(err, errArtifactMissing) {
		ix.logger.Debug().Str("path", ix.config.Path).Msg("no index artifact yet")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}

	m := a.Manifest
	if m.EmbeddingModel != ix.embedder.GetModel() {
		return nil, fmt.Errorf("%w: %w: built with %q, configured %q",
			ErrIndexLoad, ErrIndexIncompatible, m.EmbeddingModel, ix.embedder.GetModel())
	}
	if dim := ix.embedder.GetDimension(); dim > 0 && dim != m.Dimension {
		return nil, fmt.Errorf("%w: %w: built with dimension %d, configured %d",
			ErrIndexLoad, ErrIndexIncompatible, m.Dimension, dim)
	}
	if m.Engine != ix.backend.Name() {
		return nil, fmt.Errorf("%w: %w: built for engine %q, configured %q",
			ErrIndexLoad, ErrIndexIncompatible, m.Engine, ix.backend.Name())
	}

	engine, err := ix.backend.Attach(ctx, m, a.Chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}

	return newSnapshot(m, a.Chunks, a.Titles, ix.embedder, engine), nil
}

// Build embeds every chunk, persists a new artifact and then publishes it.
// Any failure leaves the previous artifact and snapshot untouched.
func (ix *Index) Build(ctx context.Context, chunks []transcript.Chunk, opts BuildOptions) (_ *Manifest, err error) {
	if !ix.buildMu.TryLock() {
		return nil, ErrRebuildInProgress
	}
	defer ix.buildMu.Unlock()

	ctx, span := observability.StartIndexBuildSpan(ctx, len(chunks))
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", ErrIndexBuild)
	}

	seen := make(map[string]bool, len(chunks))
	videos := make(map[string]bool)
	for _, c := range chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: chunk without id in video %s", ErrIndexBuild, c.VideoID)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("%w: duplicate chunk id %s", ErrIndexBuild, c.ID)
		}
		seen[c.ID] = true
		videos[c.VideoID] = true
	}

	started := time.Now()
	ix.logger.Info().Int("chunks", len(chunks)).Int("videos", len(videos)).Msg("embedding chunks")

	embedded, dim, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	manifest := Manifest{
		FormatVersion:  FormatVersion,
		EmbeddingModel: ix.embedder.GetModel(),
		Dimension:      dim,
		Engine:         ix.backend.Name(),
		ChunkCount:     len(embedded),
		VideoCount:     len(videos),
		BuiltAt:        time.Now().UTC(),
		CorpusRevision: opts.Revision,
	}

	engine, ref, err := ix.backend.Materialize(ctx, manifest, embedded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}
	manifest.EngineRef = ref

	titles := make(map[string]string, len(opts.Titles))
	for id, t := range opts.Titles {
		if videos[id] {
			titles[id] = t
		}
	}

	if err := writeArtifact(ix.config.Path, &artifact{Manifest: manifest, Titles: titles, Chunks: embedded}); err != nil {
		if derr := ix.backend.Drop(context.WithoutCancel(ctx), ref); derr != nil {
			ix.logger.Warn().Err(derr).Str("ref", ref).Msg("failed to discard unpublished engine")
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	prev := ix.current.Swap(newSnapshot(manifest, embedded, titles, ix.embedder, engine))

	keep := []string{ref}
	if prev != nil && prev.manifest.EngineRef != "" {
		keep = append(keep, prev.manifest.EngineRef)
	}
	if err := ix.backend.Retire(context.WithoutCancel(ctx), keep...); err != nil {
		ix.logger.Warn().Err(err).Msg("failed to retire old engines")
	}

	ix.logger.Info().
		Int("chunks", manifest.ChunkCount).
		Int("videos", manifest.VideoCount).
		Dur("duration", time.Since(started)).
		Str("path", ix.config.Path).
		Msg("index built")

	return &manifest, nil
}

// embedAll embeds chunks in batches with bounded concurrency. It returns the
// vectors in input order and the common dimension.
func (ix *Index) embedAll(ctx context.Context, chunks []transcript.Chunk) ([]EmbeddedChunk, int, error) {
	opts := ix.config.Options
	embedded := make([]EmbeddedChunk, len(chunks))

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for offset := 0; offset < len(chunks); offset += opts.BatchSize {
		end := min(offset+opts.BatchSize, len(chunks))

		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
			}

			texts := make([]string, end-offset)
			for i := range texts {
				texts[i] = chunks[offset+i].Text
			}

			records, err := ix.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("batch at %d: %w", offset, err)
			}
			if len(records) != len(texts) {
				return fmt.Errorf("batch at %d: expected %d embeddings, got %d", offset, len(texts), len(records))
			}

			for _, rec := range records {
				if rec.Index < 0 || rec.Index >= len(texts) {
					return fmt.Errorf("batch at %d: embedding index %d out of range", offset, rec.Index)
				}
				embedded[offset+rec.Index] = EmbeddedChunk{
					Chunk:  chunks[offset+rec.Index],
					Vector: rec.Embedding,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	dim := ix.embedder.GetDimension()
	if dim <= 0 {
		dim = len(embedded[0].Vector)
	}
	for i, ec := range embedded {
		if len(ec.Vector) == 0 {
			return nil, 0, fmt.Errorf("chunk %d received no embedding", i)
		}
		if len(ec.Vector) != dim {
			return nil, 0, fmt.Errorf("%w: chunk %d has %d, expected %d", ErrInvalidDimension, i, len(ec.Vector), dim)
		}
	}

	return embedded, dim, nil
}

// Invalidate drops the in-memory snapshot so the next Load reads the
// artifact again.
func (ix *Index) Invalidate() {
	ix.current.Store(nil)
	ix.logger.Info().Msg("index snapshot invalidated")
}

// Current returns the loaded snapshot without touching storage.
func (ix *Index) Current() *Snapshot {
	return ix.current.Load()
}

// Close releases backend resources.
func (ix *Index) Close() error {
	return ix.backend.Close()
}
