// Package router answers course questions. For each request it picks one of
// three strategies: look up what is said at a specific moment of a video,
// answer from the video's most relevant transcript passages, or answer from
// general knowledge. It then calls the generation backend with the matching
// prompt.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yates-Labs/lectern/internal/narrative"
	"github.com/Yates-Labs/lectern/internal/observability"
	"github.com/Yates-Labs/lectern/internal/rag"
	"github.com/Yates-Labs/lectern/internal/timestamp"
	"github.com/Yates-Labs/lectern/internal/transcript"
)

// Branch names the answering strategy taken for a request.
type Branch string

const (
	BranchTimeAnchored      Branch = "time_anchored"
	BranchTimeAnchoredMiss  Branch = "time_anchored_miss"
	BranchFilteredRetrieval Branch = "filtered_retrieval"
	BranchGeneral           Branch = "general"
)

// Reasons recorded with the chosen branch.
const (
	ReasonNoIndex        = "index not built"
	ReasonNoVideo        = "no video context"
	ReasonNoMatches      = "no transcript matches for video"
	ReasonQueryTimestamp = "timestamp in query"
	ReasonDeixisPhrase   = "time-sensitive phrase"
	ReasonSemantic       = "video context without time reference"
	ReasonMomentNotFound = "no transcript chunk covers the moment"
)

// Retriever is the read side of a loaded index.
type Retriever interface {
	Search(ctx context.Context, query string, k int, filter rag.Filter) ([]rag.Hit, error)
	SearchAll(ctx context.Context, filter rag.Filter, limit int) ([]transcript.Chunk, bool, error)
	Title(videoID string) string
}

// IndexLoader returns the current index, or nil when none has been built.
type IndexLoader interface {
	Load(ctx context.Context) (Retriever, error)
}

// LoaderFunc adapts a function to IndexLoader.
type LoaderFunc func(ctx context.Context) (Retriever, error)

func (f LoaderFunc) Load(ctx context.Context) (Retriever, error) { return f(ctx) }

// IndexSource serves snapshots of ix.
func IndexSource(ix *rag.Index) IndexLoader {
	return LoaderFunc(func(ctx context.Context) (Retriever, error) {
		s, err := ix.Load(ctx)
		if err != nil || s == nil {
			return nil, err
		}
		return s, nil
	})
}

// Generator runs an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*narrative.Completion, error)
}

// Config tunes retrieval.
type Config struct {
	// RetrievalK is the number of passages fetched for a video question
	RetrievalK int

	// ScanLimit bounds how many chunks of one video are scanned for a moment
	ScanLimit int

	// TimePhrases extend the built-in time-sensitive phrases
	TimePhrases []string
}

// DefaultConfig returns the standard retrieval settings.
func DefaultConfig() Config {
	return Config{
		RetrievalK: 5,
		ScanLimit:  300,
	}
}

// Request is one question with its optional playback context.
type Request struct {
	Query      string
	VideoID    string
	VideoTitle string

	// Timestamp is the current playback position in seconds.
	Timestamp float64
}

// Result is an answer tagged with the branch that produced it.
type Result struct {
	Answer string
	Branch Branch
	Reason string

	TimeSensitive      bool
	QueryTimestamp     *float64
	EffectiveTimestamp float64

	// Sources are the transcript chunks the answer was grounded on.
	Sources []transcript.Chunk

	// Generated is false when the answer is fixed text.
	Generated bool
}

// Router is stateless per request and safe for concurrent use.
type Router struct {
	index     IndexLoader
	generator Generator
	detector  *timestamp.Detector
	config    Config
	logger    zerolog.Logger
}

// NewRouter creates a router over the given index and generation backend.
func NewRouter(index IndexLoader, generator Generator, config Config, logger zerolog.Logger) (*Router, error) {
	if index == nil {
		return nil, fmt.Errorf("index loader cannot be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if config.RetrievalK <= 0 {
		config.RetrievalK = DefaultConfig().RetrievalK
	}
	if config.ScanLimit <= 0 {
		config.ScanLimit = DefaultConfig().ScanLimit
	}

	return &Router{
		index:     index,
		generator: generator,
		detector:  timestamp.NewDetector(config.TimePhrases...),
		config:    config,
		logger:    logger.With().Str("component", "router").Logger(),
	}, nil
}

// Answer routes the request and returns the answer. Failures are returned
// as *RouterError.
func (r *Router) Answer(ctx context.Context, req Request) (_ *Result, err error) {
	ctx, span := observability.StartAnswerSpan(ctx, req.VideoID)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	started := time.Now()
	query := strings.TrimSpace(req.Query)
	videoID := strings.TrimSpace(req.VideoID)

	if err := validate(query, req.Timestamp); err != nil {
		return nil, newError("", ErrValidation, err)
	}

	analysis := r.detector.Analyze(query)
	res := &Result{
		TimeSensitive:      analysis.Sensitive,
		QueryTimestamp:     analysis.QueryTimestamp,
		EffectiveTimestamp: analysis.Effective(req.Timestamp),
	}

	defer func() {
		if err != nil {
			r.logger.Error().
				Err(err).
				Str("video_id", videoID).
				Float64("timestamp", req.Timestamp).
				Str("query", truncate(query, 80)).
				Dur("duration", time.Since(started)).
				Msg("answer failed")
			return
		}
		observability.RecordBranch(span, string(res.Branch), res.Reason, res.TimeSensitive)
		r.logger.Info().
			Str("branch", string(res.Branch)).
			Str("reason", res.Reason).
			Str("video_id", videoID).
			Bool("time_sensitive", res.TimeSensitive).
			Float64("effective_timestamp", res.EffectiveTimestamp).
			Int("sources", len(res.Sources)).
			Int("answer_len", len(res.Answer)).
			Dur("duration", time.Since(started)).
			Msg("question answered")
	}()

	intended := BranchGeneral
	if videoID != "" {
		intended = BranchFilteredRetrieval
		if analysis.Sensitive {
			intended = BranchTimeAnchored
		}
	}

	index, err := r.index.Load(ctx)
	if err != nil {
		return nil, newError(intended, ErrRetrieval, err)
	}
	if index == nil {
		return r.general(ctx, res, query, ReasonNoIndex)
	}

	switch intended {
	case BranchTimeAnchored:
		reason := ReasonQueryTimestamp
		if analysis.QueryTimestamp == nil {
			reason = fmt.Sprintf("%s %q", ReasonDeixisPhrase, analysis.Phrase)
		}
		return r.timeAnchored(ctx, index, res, query, videoID, req.VideoTitle, reason)
	case BranchFilteredRetrieval:
		return r.filteredRetrieval(ctx, index, res, query, videoID, req.VideoTitle)
	default:
		return r.general(ctx, res, query, ReasonNoVideo)
	}
}

func (r *Router) timeAnchored(ctx context.Context, index Retriever, res *Result, query, videoID, title, reason string) (*Result, error) {
	chunks, truncated, err := index.SearchAll(ctx, rag.VideoFilter(videoID), r.config.ScanLimit)
	if err != nil {
		return nil, newError(BranchTimeAnchored, ErrRetrieval, err)
	}
	if truncated {
		r.logger.Warn().
			Str("video_id", videoID).
			Int("scan_limit", r.config.ScanLimit).
			Msg("transcript scan truncated; later moments of this video are unreachable")
	}

	clock := timestamp.FormatClock(res.EffectiveTimestamp)

	var match *transcript.Chunk
	for i := range chunks {
		if chunks[i].Covers(res.EffectiveTimestamp) {
			match = &chunks[i]
			break
		}
	}
	if match == nil {
		res.Branch = BranchTimeAnchoredMiss
		res.Reason = ReasonMomentNotFound
		res.Answer = narrative.MomentNotFound(clock)
		return res, nil
	}

	prompt := narrative.TimeAnchoredPrompt(resolveTitle(index, title, videoID), clock, match.Text, query)
	completion, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, newError(BranchTimeAnchored, ErrGeneration, err)
	}

	res.Branch = BranchTimeAnchored
	res.Reason = reason
	res.Answer = completion.Text
	res.Sources = []transcript.Chunk{*match}
	res.Generated = true
	return res, nil
}

func (r *Router) filteredRetrieval(ctx context.Context, index Retriever, res *Result, query, videoID, title string) (*Result, error) {
	hits, err := index.Search(ctx, query, r.config.RetrievalK, rag.VideoFilter(videoID))
	if err != nil {
		return nil, newError(BranchFilteredRetrieval, ErrRetrieval, err)
	}
	if len(hits) == 0 {
		return r.general(ctx, res, query, ReasonNoMatches)
	}

	excerpts := make([]string, len(hits))
	sources := make([]transcript.Chunk, len(hits))
	for i, h := range hits {
		excerpts[i] = h.Chunk.Text
		sources[i] = h.Chunk
	}

	question := narrative.VideoQuestion(resolveTitle(index, title, videoID), query)
	completion, err := r.generator.Generate(ctx, narrative.GroundedPrompt(excerpts, question))
	if err != nil {
		return nil, newError(BranchFilteredRetrieval, ErrGeneration, err)
	}

	res.Branch = BranchFilteredRetrieval
	res.Reason = ReasonSemantic
	res.Answer = completion.Text
	res.Sources = sources
	res.Generated = true
	return res, nil
}

func (r *Router) general(ctx context.Context, res *Result, query, reason string) (*Result, error) {
	completion, err := r.generator.Generate(ctx, narrative.GeneralPrompt(query))
	if err != nil {
		return nil, newError(BranchGeneral, ErrGeneration, err)
	}

	res.Branch = BranchGeneral
	res.Reason = reason
	res.Answer = completion.Text
	res.Sources = nil
	res.Generated = true
	return res, nil
}

func validate(query string, ts float64) error {
	if query == "" {
		return errors.New("query is required")
	}
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
		return fmt.Errorf("timestamp must be a non-negative number of seconds, got %v", ts)
	}
	return nil
}

// resolveTitle prefers the caller's title, then the catalog title, then the id.
func resolveTitle(index Retriever, title, videoID string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if t := index.Title(videoID); t != "" {
		return t
	}
	return videoID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
