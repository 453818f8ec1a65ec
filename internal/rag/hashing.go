package rag

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingEmbedder is a deterministic bag-of-words embedder that needs no
// network. Texts sharing words land near each other, which is enough for
// offline development and tests.
type HashingEmbedder struct {
	dimension int
}

// NewHashingEmbedder creates a hashing embedder with the given dimension.
func NewHashingEmbedder(dimension int) (*HashingEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidDimension, dimension)
	}
	return &HashingEmbedder{dimension: dimension}, nil
}

func (e *HashingEmbedder) GetModel() string  { return fmt.Sprintf("hashing-%d", e.dimension) }
func (e *HashingEmbedder) GetDimension() int { return e.dimension }

// Embed hashes each lowercased word into a signed bucket and L2-normalizes.
func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([]EmbeddingRecord, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	records := make([]EmbeddingRecord, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records[i] = EmbeddingRecord{
			Text:      text,
			Embedding: e.vector(text),
			Index:     i,
			Model:     e.GetModel(),
		}
	}
	return records, nil
}

func (e *HashingEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		h.Write([]byte(w))
		sum := h.Sum64()
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		v[sum%uint64(e.dimension)] += sign
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// Cosine similarity is undefined for the zero vector.
		v[0] = 1
		return v
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
