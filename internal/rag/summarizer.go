package rag

import (
	"fmt"
	"strings"

	"github.com/Yates-Labs/lectern/internal/timestamp"
	"github.com/Yates-Labs/lectern/internal/transcript"
)

/*
Video v42 — Goroutines 101
Course: go-concurrency
Chunks: 18
Time range: 0:00 → 12:40

Opening:
- [0:00] Welcome back, today we look at goroutines
- [0:12] A goroutine is a lightweight thread
*/

// previewLines caps the opening lines shown in a summary.
const previewLines = 3

// previewWidth caps each preview line in runes.
const previewWidth = 80

// VideoSummary describes one indexed video for operators.
type VideoSummary struct {
	VideoID    string
	Title      string
	CourseName string
	ChunkCount int
	Start      float64
	End        float64
	Summary    string
}

// BuildVideoSummary summarizes an indexed video. ok is false when the
// snapshot holds no chunks for videoID.
func BuildVideoSummary(s *Snapshot, videoID string) (summary VideoSummary, ok bool) {
	if s == nil {
		return VideoSummary{}, false
	}
	positions := s.byVideo[videoID]
	if len(positions) == 0 {
		return VideoSummary{}, false
	}

	chunks := make([]transcript.Chunk, len(positions))
	for i, pos := range positions {
		chunks[i] = s.chunks[pos]
	}

	start, end := timeRange(chunks)
	summary = VideoSummary{
		VideoID:    videoID,
		Title:      generateTitle(s, videoID, chunks),
		CourseName: chunks[0].CourseName,
		ChunkCount: len(chunks),
		Start:      start,
		End:        end,
	}
	summary.Summary = buildSummaryText(summary, chunks)
	return summary, true
}

// generateTitle prefers the catalog title, then the opening line.
func generateTitle(s *Snapshot, videoID string, chunks []transcript.Chunk) string {
	if title := s.Title(videoID); title != "" {
		return title
	}
	if first := strings.TrimSpace(chunks[0].Text); first != "" {
		return truncate(first, previewWidth)
	}
	return fmt.Sprintf("Video %s", videoID)
}

func buildSummaryText(summary VideoSummary, chunks []transcript.Chunk) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Video %s — %s", summary.VideoID, summary.Title))
	if summary.CourseName != "" {
		parts = append(parts, fmt.Sprintf("Course: %s", summary.CourseName))
	}
	parts = append(parts, fmt.Sprintf("Chunks: %d", summary.ChunkCount))
	parts = append(parts, fmt.Sprintf("Time range: %s", formatTimeRange(summary.Start, summary.End)))

	lines := []string{"\nOpening:"}
	for i, c := range chunks {
		if i == previewLines {
			break
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", timestamp.FormatClock(c.Start), truncate(c.Text, previewWidth)))
	}
	parts = append(parts, strings.Join(lines, "\n"))

	return strings.Join(parts, "\n")
}

func timeRange(chunks []transcript.Chunk) (float64, float64) {
	start, end := chunks[0].Start, chunks[0].Start
	for _, c := range chunks {
		if c.Start < start {
			start = c.Start
		}
		if c.Start > end {
			end = c.Start
		}
		if c.End != nil && *c.End > end {
			end = *c.End
		}
	}
	return start, end
}

func formatTimeRange(start, end float64) string {
	if start == end {
		return timestamp.FormatClock(start)
	}
	return fmt.Sprintf("%s → %s", timestamp.FormatClock(start), timestamp.FormatClock(end))
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
