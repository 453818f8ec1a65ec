package transcript

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidCatalog = errors.New("invalid course catalog")

// Catalog lists courses and their videos. It only supplies display titles;
// transcripts are discovered from the corpus directory.
type Catalog struct {
	Courses []Course `yaml:"courses"`
}

// Course is one catalog entry.
type Course struct {
	ID          string         `yaml:"course_id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description,omitempty"`
	Videos      []CatalogVideo `yaml:"videos"`
}

// CatalogVideo maps a video id to its title.
type CatalogVideo struct {
	ID    string `yaml:"video_id"`
	Title string `yaml:"title"`
}

// LoadCatalog reads a YAML catalog. An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	for i, course := range catalog.Courses {
		for j, v := range course.Videos {
			if v.ID == "" {
				return nil, fmt.Errorf("%w: course %d video %d has no video_id", ErrInvalidCatalog, i, j)
			}
		}
	}

	return &catalog, nil
}

// Titles returns video id to title. Later entries win on duplicates.
func (c *Catalog) Titles() map[string]string {
	titles := make(map[string]string)
	if c == nil {
		return titles
	}
	for _, course := range c.Courses {
		for _, v := range course.Videos {
			if v.Title != "" {
				titles[v.ID] = v.Title
			}
		}
	}
	return titles
}
