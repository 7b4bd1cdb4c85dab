package git

import (
	"errors"
	"time"

	"github.com/go-git/go-git/v5"
)

// ErrFileNotFound is returned when a path does not exist at the requested revision.
var ErrFileNotFound = errors.New("file not found")

// ErrRevisionNotFound is returned when a branch, tag or hash cannot be resolved.
var ErrRevisionNotFound = errors.New("revision not found")

// OpenConfig contains configuration for opening a repository
type OpenConfig struct {
	// Path is a directory inside the working copy
	Path string

	// Branch is the revision used when callers do not name one
	Branch string
}

// RepositoryInfo contains information about an opened repository
type RepositoryInfo struct {
	// Repository is the go-git repository instance
	Repository *git.Repository

	// Path is the directory the repository was opened from
	Path string

	// Branch is the default revision for file reads
	Branch string
}

// LogOptions selects commits for Commits
type LogOptions struct {
	// Ref starts the walk at a branch, tag or hash. Empty walks every ref.
	Ref string

	// Since and Until bound the committer time, inclusive. Nil means unbounded.
	Since *time.Time
	Until *time.Time
}

// TagRef is a tag peeled to the commit it points at
type TagRef struct {
	Name       string
	CommitHash string
}

// BranchRef is a local branch and its head commit
type BranchRef struct {
	Name     string
	HeadHash string
}

// FileChange is the difference in one file between two revisions
type FileChange struct {
	OldPath string
	NewPath string
	NewFile bool
	Deleted bool
	// Patch is a unified diff, empty for binary files
	Patch  string
	Binary bool
}
