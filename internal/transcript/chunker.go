package transcript

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
)

var ErrInvalidChunkerConfig = errors.New("invalid chunker configuration")

// chunkNamespace seeds name-based chunk ids so rebuilds reproduce them.
var chunkNamespace = uuid.MustParse("6f1c2a52-8f0e-4b9c-9a57-3d3f0c1e7b21")

// ChunkerConfig sizes chunks in characters.
type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultChunkerConfig matches the recursive character splitter settings the
// index has always been built with.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Chunker splits a video's segments into chunks. Each segment maps to one
// chunk unless its text exceeds ChunkSize, in which case it is split and
// every piece inherits the segment's timing. Segments are never merged, so
// chunk timing stays exact for time-anchored lookup.
type Chunker struct {
	config   ChunkerConfig
	splitter textsplitter.RecursiveCharacter
}

// NewChunker validates the configuration and builds the splitter.
func NewChunker(config ChunkerConfig) (*Chunker, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", ErrInvalidChunkerConfig)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, chunk size)", ErrInvalidChunkerConfig)
	}

	return &Chunker{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
		),
	}, nil
}

// Chunk produces the chunks for one video, ordered by start time.
func (c *Chunker) Chunk(video Video) ([]Chunk, error) {
	segments := make([]Segment, len(video.Segments))
	copy(segments, video.Segments)
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	chunks := make([]Chunk, 0, len(segments))
	for _, seg := range segments {
		pieces := []string{seg.Text}
		if utf8.RuneCountInString(seg.Text) > c.config.ChunkSize {
			split, err := c.splitter.SplitText(seg.Text)
			if err != nil {
				return nil, fmt.Errorf("failed to split segment at %s in video %s: %w",
					FormatSeconds(seg.Start), video.ID, err)
			}
			pieces = split
		}

		for _, text := range pieces {
			if text == "" {
				continue
			}
			ordinal := len(chunks)
			chunks = append(chunks, Chunk{
				ID:         ChunkID(video.ID, ordinal, text),
				VideoID:    video.ID,
				CourseName: video.CourseName,
				Start:      seg.Start,
				End:        seg.End,
				Text:       text,
				Ordinal:    ordinal,
			})
		}
	}

	return chunks, nil
}

// ChunkID derives a stable id from the chunk's position and content.
func ChunkID(videoID string, ordinal int, text string) string {
	name := videoID + "\x00" + strconv.Itoa(ordinal) + "\x00" + text
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
