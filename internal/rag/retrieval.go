package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Yates-Labs/lectern/internal/observability"
	"github.com/Yates-Labs/lectern/internal/transcript"
)

var (
	ErrSearch      = errors.New("index search failed")
	ErrInvalidTopK = errors.New("k must be positive")
)

// Snapshot is an immutable loaded index. It is shared by concurrent queries
// without locking and replaced wholesale on rebuild.
type Snapshot struct {
	manifest Manifest
	chunks   []transcript.Chunk // ordered by video, start, ordinal
	byID     map[string]int
	byVideo  map[string][]int
	videos   []string
	titles   map[string]string
	embedder Embedder
	engine   Engine
}

func newSnapshot(manifest Manifest, embedded []EmbeddedChunk, titles map[string]string, embedder Embedder, engine Engine) *Snapshot {
	chunks := make([]transcript.Chunk, len(embedded))
	for i, ec := range embedded {
		chunks[i] = ec.Chunk
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.VideoID != b.VideoID {
			return a.VideoID < b.VideoID
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Ordinal < b.Ordinal
	})

	s := &Snapshot{
		manifest: manifest,
		chunks:   chunks,
		byID:     make(map[string]int, len(chunks)),
		byVideo:  make(map[string][]int),
		titles:   make(map[string]string, len(titles)),
		embedder: embedder,
		engine:   engine,
	}
	for i, c := range chunks {
		s.byID[c.ID] = i
		if _, ok := s.byVideo[c.VideoID]; !ok {
			s.videos = append(s.videos, c.VideoID)
		}
		s.byVideo[c.VideoID] = append(s.byVideo[c.VideoID], i)
	}
	for id, title := range titles {
		s.titles[id] = title
	}
	return s
}

// Manifest describes the build this snapshot was loaded from.
func (s *Snapshot) Manifest() Manifest {
	return s.manifest
}

// Title returns the catalog title recorded for a video, or "".
func (s *Snapshot) Title(videoID string) string {
	return s.titles[videoID]
}

// Videos lists indexed video ids in sorted order.
func (s *Snapshot) Videos() []string {
	out := make([]string, len(s.videos))
	copy(out, s.videos)
	return out
}

// Len returns the number of chunks.
func (s *Snapshot) Len() int {
	return len(s.chunks)
}

// Search returns up to k chunks most similar to queryText among those
// matching filter, ordered by descending similarity. An empty result is not
// an error.
func (s *Snapshot) Search(ctx context.Context, queryText string, k int, filter Filter) (_ []Hit, err error) {
	ctx, span := observability.StartSearchSpan(ctx, k, filter.String())
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	if k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidTopK, k)
	}
	where, err := filter.Normalize()
	if err != nil {
		return nil, err
	}

	records, err := s.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", ErrSearch, err)
	}
	if len(records) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query embedding, got %d", ErrSearch, len(records))
	}
	vector := records[0].Embedding
	if len(vector) != s.manifest.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", ErrSearch, len(vector), s.manifest.Dimension)
	}

	ids, err := s.engine.Search(ctx, vector, k, where)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}

	hits := make([]Hit, 0, len(ids))
	for _, id := range ids {
		pos, ok := s.byID[id.ID]
		if !ok {
			return nil, fmt.Errorf("%w: engine returned unknown chunk %s", ErrSearch, id.ID)
		}
		c := s.chunks[pos]
		// Engines filter already; a mismatch here would leak another video's text.
		if !matchesWhere(c, where) {
			continue
		}
		hits = append(hits, Hit{Chunk: c, Score: id.Score})
		if len(hits) == k {
			break
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits, nil
}

// SearchAll returns every chunk matching filter in natural (video, start)
// order. limit <= 0 means unbounded; truncated reports whether matches were
// dropped because of limit.
func (s *Snapshot) SearchAll(ctx context.Context, filter Filter, limit int) (chunks []transcript.Chunk, truncated bool, err error) {
	where, err := filter.Normalize()
	if err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrSearch, err)
	}

	candidates := s.allPositions()
	if videoID, ok := where[FieldVideoID]; ok {
		candidates = s.byVideo[videoID]
	}

	chunks = []transcript.Chunk{}
	for _, pos := range candidates {
		c := s.chunks[pos]
		if !matchesWhere(c, where) {
			continue
		}
		if limit > 0 && len(chunks) == limit {
			return chunks, true, nil
		}
		chunks = append(chunks, c)
	}
	return chunks, false, nil
}

// EngineStats reports backend statistics when the engine exposes them.
func (s *Snapshot) EngineStats(ctx context.Context) (map[string]string, error) {
	reporter, ok := s.engine.(interface {
		Stats(ctx context.Context) (map[string]string, error)
	})
	if !ok {
		return map[string]string{}, nil
	}
	return reporter.Stats(ctx)
}

func (s *Snapshot) allPositions() []int {
	positions := make([]int, len(s.chunks))
	for i := range positions {
		positions[i] = i
	}
	return positions
}
