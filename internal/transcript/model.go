// Package transcript reads per-video timestamped transcript files, attaches
// video and course metadata to each segment, and splits segments into
// retrieval chunks.
package transcript

import "strconv"

// Segment is one timed line of a transcript file.
type Segment struct {
	VideoID    string
	CourseName string
	Start      float64
	End        *float64 // nil when the source row carries no end time
	Text       string
}

// Video groups the segments of a single transcript file.
type Video struct {
	ID         string
	CourseName string
	Path       string
	Segments   []Segment
}

// Chunk is a bounded span of transcript text with timing metadata. It is the
// unit of embedding and retrieval and is never mutated once embedded.
type Chunk struct {
	ID         string   `json:"id" msgpack:"id"`
	VideoID    string   `json:"video_id" msgpack:"video_id"`
	CourseName string   `json:"course_name" msgpack:"course_name"`
	Start      float64  `json:"start" msgpack:"start"`
	End        *float64 `json:"end,omitempty" msgpack:"end"`
	Text       string   `json:"text" msgpack:"text"`
	Ordinal    int      `json:"ordinal" msgpack:"ordinal"`
}

// Covers reports whether the chunk spans t, using start <= t < end.
// A chunk without an end time covers nothing.
func (c Chunk) Covers(t float64) bool {
	if c.End == nil {
		return false
	}
	return c.Start <= t && t < *c.End
}

// EndString renders the end time canonically, or "" when absent.
func (c Chunk) EndString() string {
	if c.End == nil {
		return ""
	}
	return FormatSeconds(*c.End)
}

// FormatSeconds renders a time offset in its shortest decimal form, so 30,
// 30.0 and "30" all compare equal once stored as metadata.
func FormatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Seconds returns a pointer to v, for building optional end times.
func Seconds(v float64) *float64 {
	return &v
}
