package rag

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Yates-Labs/lectern/internal/timestamp"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// VideoExport is an indexed video with its chunks, for diagnosing what the
// router will see for that video.
type VideoExport struct {
	VideoID    string        `json:"video_id" yaml:"video_id"`
	Title      string        `json:"title" yaml:"title"`
	CourseName string        `json:"course_name,omitempty" yaml:"course_name,omitempty"`
	ChunkCount int           `json:"chunk_count" yaml:"chunk_count"`
	Start      string        `json:"start" yaml:"start"`
	End        string        `json:"end" yaml:"end"`
	Chunks     []ChunkExport `json:"chunks" yaml:"chunks"`
}

// ChunkExport is one chunk with its times in both seconds and clock form.
type ChunkExport struct {
	Ordinal      int      `json:"ordinal" yaml:"ordinal"`
	StartSeconds float64  `json:"start_seconds" yaml:"start_seconds"`
	EndSeconds   *float64 `json:"end_seconds,omitempty" yaml:"end_seconds,omitempty"`
	Clock        string   `json:"clock" yaml:"clock"`
	Text         string   `json:"text" yaml:"text"`
}

// ExportVideo writes one video's chunks in the given format.
func ExportVideo(s *Snapshot, videoID, format string, writer io.Writer) error {
	exportFormat := ExportFormat(strings.ToLower(format))
	if exportFormat != FormatJSON && exportFormat != FormatYAML {
		return fmt.Errorf("unsupported export format: %s (supported: json, yaml)", format)
	}

	summary, ok := BuildVideoSummary(s, videoID)
	if !ok {
		return fmt.Errorf("video %q is not in the index", videoID)
	}

	export := VideoExport{
		VideoID:    summary.VideoID,
		Title:      summary.Title,
		CourseName: summary.CourseName,
		ChunkCount: summary.ChunkCount,
		Start:      timestamp.FormatClock(summary.Start),
		End:        timestamp.FormatClock(summary.End),
		Chunks:     make([]ChunkExport, 0, summary.ChunkCount),
	}
	for _, pos := range s.byVideo[videoID] {
		c := s.chunks[pos]
		export.Chunks = append(export.Chunks, ChunkExport{
			Ordinal:      c.Ordinal,
			StartSeconds: c.Start,
			EndSeconds:   c.End,
			Clock:        timestamp.FormatClock(c.Start),
			Text:         c.Text,
		})
	}

	if exportFormat == FormatYAML {
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(export); err != nil {
			return err
		}
		return encoder.Close()
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
