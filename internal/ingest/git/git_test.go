package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
)

// initCorpusRepo creates a repository with one committed transcript.
func initCorpusRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}

	course := filepath.Join(dir, "go")
	if err := os.MkdirAll(course, 0o755); err != nil {
		t.Fatalf("Failed to create course dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(course, "v1.csv"), []byte("0-5,hello\n"), 0o644); err != nil {
		t.Fatalf("Failed to write transcript: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to open worktree: %v", err)
	}
	if _, err := wt.Add("go/v1.csv"); err != nil {
		t.Fatalf("Failed to stage transcript: %v", err)
	}

	hash, err := wt.Commit("Add first lecture\n\nRecorded in studio B", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Alice",
			Email: "alice@example.com",
			When:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	return dir, hash.String()
}

func TestReadRevision(t *testing.T) {
	dir, hash := initCorpusRepo(t)

	rev, err := ReadRevision(dir)
	if err != nil {
		t.Fatalf("Failed to read revision: %v", err)
	}
	if rev == nil {
		t.Fatal("Revision is nil")
	}

	if rev.Hash != hash {
		t.Errorf("Expected hash %s, got %s", hash, rev.Hash)
	}
	if rev.ShortHash != hash[:8] {
		t.Errorf("Expected short hash %s, got %s", hash[:8], rev.ShortHash)
	}
	if rev.Subject != "Add first lecture" {
		t.Errorf("Expected subject 'Add first lecture', got %q", rev.Subject)
	}
	if rev.Author.Name != "Alice" {
		t.Errorf("Expected author Alice, got %s", rev.Author.Name)
	}
	if rev.Dirty {
		t.Error("Fresh commit should not be dirty")
	}
	if rev.String() != hash[:8] {
		t.Errorf("Expected String() %s, got %s", hash[:8], rev.String())
	}
}

func TestReadRevision_Subdirectory(t *testing.T) {
	dir, hash := initCorpusRepo(t)

	rev, err := ReadRevision(filepath.Join(dir, "go"))
	if err != nil {
		t.Fatalf("Failed to read revision: %v", err)
	}
	if rev == nil || rev.Hash != hash {
		t.Fatalf("Expected revision %s from subdirectory, got %+v", hash, rev)
	}
}

func TestReadRevision_Dirty(t *testing.T) {
	dir, hash := initCorpusRepo(t)

	if err := os.WriteFile(filepath.Join(dir, "go", "v1.csv"), []byte("0-5,changed\n"), 0o644); err != nil {
		t.Fatalf("Failed to modify transcript: %v", err)
	}

	rev, err := ReadRevision(dir)
	if err != nil {
		t.Fatalf("Failed to read revision: %v", err)
	}
	if !rev.Dirty {
		t.Error("Expected dirty worktree")
	}
	if rev.String() != hash[:8]+"-dirty" {
		t.Errorf("Expected dirty marker, got %s", rev.String())
	}
}

func TestReadRevision_NotARepository(t *testing.T) {
	rev, err := ReadRevision(t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error outside a repository, got %v", err)
	}
	if rev != nil {
		t.Errorf("Expected nil revision, got %+v", rev)
	}
	if rev.String() != "" {
		t.Error("Nil revision should render empty")
	}
}

func TestReadRevision_NoCommits(t *testing.T) {
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}

	rev, err := ReadRevision(dir)
	if err != nil {
		t.Fatalf("Expected no error for empty repository, got %v", err)
	}
	if rev != nil {
		t.Errorf("Expected nil revision, got %+v", rev)
	}
}

func TestParseSubject(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Add lecture", "Add lecture"},
		{"  Fix typo in v3  \n\nbody", "Fix typo in v3"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := parseSubject(tt.message); got != tt.want {
			t.Errorf("parseSubject(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}
