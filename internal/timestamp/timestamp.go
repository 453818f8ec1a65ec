// Package timestamp finds explicit playback times in free-text questions and
// recognizes phrasing that refers to the current playback moment.
package timestamp

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// clockRun matches a maximal run of digits and colons; candidates are
// validated afterwards so that "1:2:3:4" or "123:45" are rejected whole
// instead of yielding an embedded match.
var clockRun = regexp.MustCompile(`[0-9:]+`)

// DefaultPhrases are lowercase phrases that mark a question as being about
// the moment currently playing.
var DefaultPhrases = []string{
	"at this moment",
	"right now",
	"at this time",
	"what is he saying",
	"what is she saying",
	"what does this mean",
	"at this point",
	"just said",
}

// Extract returns the first valid HH:MM:SS or MM:SS time in query, in
// seconds. A zero result is reported as absent.
func Extract(query string) (float64, bool) {
	for _, run := range clockRun.FindAllString(query, -1) {
		seconds, ok := parseClock(strings.Trim(run, ":"))
		if !ok {
			continue
		}
		if seconds <= 0 {
			return 0, false
		}
		return seconds, true
	}
	return 0, false
}

func parseClock(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	values := make([]int, len(parts))
	for i, p := range parts {
		if len(p) < 1 || len(p) > 2 {
			return 0, false
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		values[i] = v
	}

	// Seconds (and minutes when hours are present) must be below 60.
	if values[len(values)-1] >= 60 {
		return 0, false
	}
	if len(values) == 3 {
		if values[1] >= 60 {
			return 0, false
		}
		return float64(values[0]*3600 + values[1]*60 + values[2]), true
	}
	return float64(values[0]*60 + values[1]), true
}

// Detector decides whether a question is time-sensitive.
type Detector struct {
	phrases []string
}

// NewDetector builds a detector over DefaultPhrases plus extra.
func NewDetector(extra ...string) *Detector {
	phrases := make([]string, 0, len(DefaultPhrases)+len(extra))
	phrases = append(phrases, DefaultPhrases...)
	for _, p := range extra {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Detector{phrases: phrases}
}

// Analysis is the time reading of one question.
type Analysis struct {
	// QueryTimestamp is the time parsed from the question text, if any.
	QueryTimestamp *float64

	// Phrase is the matched deixis phrase, if any.
	Phrase string

	// Sensitive is true when either a timestamp or a phrase was found.
	Sensitive bool
}

// Analyze extracts an explicit timestamp and looks for deixis phrases.
func (d *Detector) Analyze(query string) Analysis {
	var a Analysis
	if ts, ok := Extract(query); ok {
		a.QueryTimestamp = &ts
		a.Sensitive = true
	}

	lowered := strings.ToLower(query)
	for _, p := range d.phrases {
		if strings.Contains(lowered, p) {
			a.Phrase = p
			a.Sensitive = true
			break
		}
	}
	return a
}

// Effective returns the query timestamp when present, else fallback.
func (a Analysis) Effective(fallback float64) float64 {
	if a.QueryTimestamp != nil {
		return *a.QueryTimestamp
	}
	return fallback
}

// FormatClock renders seconds as M:SS with unbounded minutes.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
