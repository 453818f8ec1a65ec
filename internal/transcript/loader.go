package transcript

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrCorpusNotFound      = errors.New("transcript corpus not found")
	ErrMalformedTranscript = errors.New("malformed transcript file")
	ErrEmptyCorpus         = errors.New("transcript corpus contains no segments")
)

const transcriptExt = ".csv"

// LoaderConfig controls how the corpus directory is read.
type LoaderConfig struct {
	// Root is laid out as <root>/<course>/<video_id>.csv.
	Root string

	// SkipInvalid logs and skips malformed files instead of failing the load.
	SkipInvalid bool
}

// Loader reads every transcript file under a corpus root.
type Loader struct {
	config LoaderConfig
	logger zerolog.Logger
}

// NewLoader creates a corpus loader.
func NewLoader(config LoaderConfig, logger zerolog.Logger) *Loader {
	return &Loader{
		config: config,
		logger: logger.With().Str("component", "transcript_loader").Logger(),
	}
}

// Load reads all transcript files in deterministic (lexical) order. Course
// directories become the course name; files directly under the root get an
// empty course name.
func (l *Loader) Load(ctx context.Context) ([]Video, error) {
	info, err := os.Stat(l.config.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpusNotFound, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrCorpusNotFound, l.config.Root)
	}

	entries, err := os.ReadDir(l.config.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorpusNotFound, err)
	}

	var videos []Video
	seen := make(map[string]string)

	add := func(course, path string) error {
		v, err := l.loadFile(path, course)
		if err != nil {
			if l.config.SkipInvalid {
				l.logger.Warn().Err(err).Str("path", path).Msg("skipping transcript")
				return nil
			}
			return err
		}
		// video_id is the filter key, so only the first file for an id is kept.
		if prev, dup := seen[v.ID]; dup {
			l.logger.Warn().Str("video_id", v.ID).Str("path", path).Str("kept", prev).
				Msg("skipping duplicate video id")
			return nil
		}
		seen[v.ID] = path
		videos = append(videos, *v)
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Skips .git and other hidden entries.
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(l.config.Root, entry.Name())

		if !entry.IsDir() {
			if isTranscriptFile(entry.Name()) {
				if err := add("", path); err != nil {
					return nil, err
				}
			}
			continue
		}

		files, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read course directory %s: %w", path, err)
		}
		for _, f := range files {
			if f.IsDir() || !isTranscriptFile(f.Name()) {
				continue
			}
			if err := add(entry.Name(), filepath.Join(path, f.Name())); err != nil {
				return nil, err
			}
		}
	}

	l.logger.Debug().Int("videos", len(videos)).Str("root", l.config.Root).Msg("corpus loaded")
	return videos, nil
}

func (l *Loader) loadFile(path, course string) (*Video, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript %s: %w", path, err)
	}
	defer f.Close()

	videoID := VideoIDFromPath(path)
	segments, err := ParseSegments(f, videoID, course)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Video{
		ID:         videoID,
		CourseName: course,
		Path:       path,
		Segments:   segments,
	}, nil
}

// VideoIDFromPath derives the video id from a transcript file name: the part
// before the first dot, without a trailing "_transcript".
func VideoIDFromPath(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSuffix(name, "_transcript")
}

func isTranscriptFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), transcriptExt) && !strings.HasPrefix(name, ".")
}

// columns records where each field lives in a headed transcript file.
type columns struct {
	start, end, duration, text int
}

// ParseSegments reads transcript rows. Two layouts are accepted:
//
//	start[-end],text...          positional, the remainder of the row is text
//	start,duration,text          headed; recognized names are start, end, duration, text
//
// Rows with empty text are skipped.
func ParseSegments(r io.Reader, videoID, course string) ([]Segment, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		segments []Segment
		cols     *columns
		line     int
	)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTranscript, err)
		}
		line++

		if line == 1 {
			if c, ok := detectHeader(record); ok {
				cols = c
				continue
			}
		}

		var seg Segment
		if cols != nil {
			seg, err = parseHeadedRow(record, cols)
		} else {
			seg, err = parsePositionalRow(record)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTranscript, line, err)
		}
		if seg.Text == "" {
			continue
		}

		seg.VideoID = videoID
		seg.CourseName = course
		segments = append(segments, seg)
	}

	return segments, nil
}

func detectHeader(record []string) (*columns, bool) {
	c := &columns{start: -1, end: -1, duration: -1, text: -1}
	for i, field := range record {
		switch strings.ToLower(strings.TrimSpace(field)) {
		case "start":
			c.start = i
		case "end":
			c.end = i
		case "duration":
			c.duration = i
		case "text":
			c.text = i
		}
	}
	if c.start < 0 || c.text < 0 {
		return nil, false
	}
	return c, true
}

func parseHeadedRow(record []string, c *columns) (Segment, error) {
	if c.start >= len(record) || c.text >= len(record) {
		return Segment{}, fmt.Errorf("expected at least %d fields, got %d", max(c.start, c.text)+1, len(record))
	}

	start, err := parseSeconds(record[c.start])
	if err != nil {
		return Segment{}, fmt.Errorf("invalid start: %w", err)
	}

	var end *float64
	switch {
	case c.end >= 0 && c.end < len(record) && strings.TrimSpace(record[c.end]) != "":
		v, err := parseSeconds(record[c.end])
		if err != nil {
			return Segment{}, fmt.Errorf("invalid end: %w", err)
		}
		end = &v
	case c.duration >= 0 && c.duration < len(record) && strings.TrimSpace(record[c.duration]) != "":
		d, err := parseSeconds(record[c.duration])
		if err != nil {
			return Segment{}, fmt.Errorf("invalid duration: %w", err)
		}
		v := start + d
		end = &v
	}

	// Text is the last column in practice; unquoted commas spill into extra fields.
	text := record[c.text]
	if c.text == maxColumn(c) && len(record) > c.text+1 {
		text = strings.Join(record[c.text:], ",")
	}

	return newSegment(start, end, text)
}

func parsePositionalRow(record []string) (Segment, error) {
	if len(record) < 2 {
		return Segment{}, fmt.Errorf("expected start and text fields, got %d field(s)", len(record))
	}

	startField, endField, hasEnd := strings.Cut(strings.TrimSpace(record[0]), "-")
	start, err := parseSeconds(startField)
	if err != nil {
		return Segment{}, fmt.Errorf("invalid start: %w", err)
	}

	var end *float64
	if hasEnd {
		v, err := parseSeconds(endField)
		if err != nil {
			return Segment{}, fmt.Errorf("invalid end: %w", err)
		}
		end = &v
	}

	return newSegment(start, end, strings.Join(record[1:], ","))
}

func newSegment(start float64, end *float64, text string) (Segment, error) {
	if start < 0 {
		return Segment{}, fmt.Errorf("start %v is negative", start)
	}
	if end != nil && *end < start {
		return Segment{}, fmt.Errorf("end %v precedes start %v", *end, start)
	}
	return Segment{
		Start: start,
		End:   end,
		Text:  strings.TrimSpace(text),
	}, nil
}

// parseSeconds accepts plain seconds ("12.5") or a clock ("1:02", "01:02:03.5").
func parseSeconds(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time value")
	}

	if !strings.Contains(s, ":") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("time value %q is not finite", s)
		}
		return v, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("time value %q has too many components", s)
	}
	var total float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid time value %q", s)
		}
		if i == len(parts)-1 {
			total = total*60 + v
		} else {
			total = total*60 + math.Trunc(v)
		}
	}
	return total, nil
}

func maxColumn(c *columns) int {
	return max(c.start, c.end, c.duration, c.text)
}
