package git

import "time"

// Author represents Git author information
type Author struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	When  time.Time `json:"when"`
}

// Revision identifies the state of a transcript corpus kept under Git.
// It is recorded in the index manifest so a build can be traced back to
// the exact transcripts it was made from.
type Revision struct {
	Hash        string    `json:"hash"`
	ShortHash   string    `json:"short_hash"` // First 8 chars for display
	Branch      string    `json:"branch,omitempty"`
	Subject     string    `json:"subject"` // First line of the HEAD commit message
	Author      Author    `json:"author"`
	CommittedAt time.Time `json:"committed_at"`
	Dirty       bool      `json:"dirty"` // Uncommitted changes in the worktree
	RemoteURL   string    `json:"remote_url,omitempty"`
}

// String renders the revision for the manifest, marking dirty worktrees.
func (r *Revision) String() string {
	if r == nil {
		return ""
	}
	if r.Dirty {
		return r.ShortHash + "-dirty"
	}
	return r.ShortHash
}
