package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/Yates-Labs/lectern/internal/transcript"
)

var ErrInvalidFilter = errors.New("invalid metadata filter")

// Filterable chunk metadata fields.
const (
	FieldVideoID    = "video_id"
	FieldCourseName = "course_name"
	FieldStart      = "start"
	FieldEnd        = "end"
)

// Filter is an equality predicate over chunk metadata. Values may be strings
// or numbers; they are compared in canonical string form, so a video id of
// 123 matches a stored "123".
type Filter map[string]any

// VideoFilter restricts results to one video.
func VideoFilter(videoID string) Filter {
	return Filter{FieldVideoID: videoID}
}

// Normalize validates keys and renders values canonically.
func (f Filter) Normalize() (map[string]string, error) {
	out := make(map[string]string, len(f))
	for key, value := range f {
		switch key {
		case FieldVideoID, FieldCourseName:
			s, err := stringValue(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, key, err)
			}
			out[key] = s
		case FieldStart, FieldEnd:
			v, err := numericValue(value)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, key, err)
			}
			out[key] = transcript.FormatSeconds(v)
		default:
			return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, key)
		}
	}
	return out, nil
}

// String renders the filter deterministically for logs.
func (f Filter) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, f[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func stringValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return formatFinite(float64(t))
	case float64:
		return formatFinite(t)
	case json.Number:
		return t.String(), nil
	case fmt.Stringer:
		return t.String(), nil
	case nil:
		return "", errors.New("value is nil")
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func numericValue(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", t)
		}
		f = parsed
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case float32:
		f = float64(t)
	case float64:
		f = t
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("value is not finite")
	}
	return f, nil
}

func formatFinite(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.New("value is not finite")
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// chunkMetadata is the stored metadata of a chunk, all string valued.
func chunkMetadata(c transcript.Chunk) map[string]string {
	return map[string]string{
		FieldVideoID:    c.VideoID,
		FieldCourseName: c.CourseName,
		FieldStart:      transcript.FormatSeconds(c.Start),
		FieldEnd:        c.EndString(),
	}
}

func matchesWhere(c transcript.Chunk, where map[string]string) bool {
	for key, want := range where {
		var got string
		switch key {
		case FieldVideoID:
			got = c.VideoID
		case FieldCourseName:
			got = c.CourseName
		case FieldStart:
			got = transcript.FormatSeconds(c.Start)
		case FieldEnd:
			got = c.EndString()
		}
		if got != want {
			return false
		}
	}
	return true
}
