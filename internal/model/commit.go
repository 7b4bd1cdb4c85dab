// Package model holds the provider-independent entities returned by every
// data source adapter. Adapters build fresh values on each retrieval, so
// callers own what they receive.
package model

import (
	"slices"
	"time"
)

// Identity is a person as seen by a provider. Username is empty for
// sources that only record a name and email, such as git history.
type Identity struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// Key returns the most specific identifier available.
func (i Identity) Key() string {
	switch {
	case i.Username != "":
		return i.Username
	case i.Email != "":
		return i.Email
	default:
		return i.Name
	}
}

// Commit is a single commit. Its identity is Hash.
type Commit struct {
	Hash         string    `json:"hash"`
	ShortHash    string    `json:"short_hash"`
	Author       Identity  `json:"author"`
	Committer    Identity  `json:"committer"`
	AuthoredAt   time.Time `json:"authored_at"`
	CommittedAt  time.Time `json:"committed_at"`
	Message      string    `json:"message"`
	ParentHashes []string  `json:"parent_hashes"`
	ChangedFiles []string  `json:"changed_files,omitempty"`
	URL          string    `json:"url,omitempty"`
	Comments     []Comment `json:"comments,omitempty"`
}

// IsMerge reports whether the commit has more than one parent.
func (c *Commit) IsMerge() bool {
	return len(c.ParentHashes) > 1
}

// Title returns the first line of the commit message.
func (c *Commit) Title() string {
	for i, r := range c.Message {
		if r == '\n' {
			return c.Message[:i]
		}
	}
	return c.Message
}

// Clone returns a deep copy.
func (c *Commit) Clone() *Commit {
	if c == nil {
		return nil
	}
	out := *c
	out.ParentHashes = slices.Clone(c.ParentHashes)
	out.ChangedFiles = slices.Clone(c.ChangedFiles)
	out.Comments = slices.Clone(c.Comments)
	return &out
}

// CloneCommits deep-copies a commit list.
func CloneCommits(commits []*Commit) []*Commit {
	if commits == nil {
		return nil
	}
	out := make([]*Commit, len(commits))
	for i, c := range commits {
		out[i] = c.Clone()
	}
	return out
}

// ShortHash abbreviates a full hash the way git does by default.
func ShortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// Branch is a named ref. HeadHash is a weak reference, resolve it with
// CommitSource.GetCommit.
type Branch struct {
	Name      string `json:"name"`
	HeadHash  string `json:"head_hash"`
	Protected bool   `json:"protected"`
	URL       string `json:"url,omitempty"`
}

// Tag is a named pointer to a commit.
type Tag struct {
	Name       string `json:"name"`
	CommitHash string `json:"commit_hash"`
}

// Push event actions.
const (
	EventPushedNew = "pushed new"
	EventPushedTo  = "pushed to"
	EventDeleted   = "deleted"
)

// Event is a push to a hosted repository. RefType is "branch" or "tag"
// and CommitHash is the commit the ref pointed at after the push, or
// before it for deletions.
type Event struct {
	CreatedAt   time.Time `json:"created_at"`
	Action      string    `json:"action"`
	RefType     string    `json:"ref_type,omitempty"`
	RefName     string    `json:"ref_name,omitempty"`
	CommitHash  string    `json:"commit_hash,omitempty"`
	CommitCount int       `json:"commit_count,omitempty"`
}

// TagsAt reconstructs the tags that existed at deadline from the current
// tags and the push events since. Tags deleted after deadline come back
// and tags pushed after deadline are dropped.
func TagsAt(deadline time.Time, tags []Tag, events []Event) []Tag {
	out := slices.Clone(tags)
	for _, e := range events {
		if !e.CreatedAt.After(deadline) || e.RefType != "tag" {
			continue
		}
		switch e.Action {
		case EventDeleted:
			out = append(out, Tag{Name: e.RefName, CommitHash: e.CommitHash})
		case EventPushedNew, EventPushedTo:
			out = slices.DeleteFunc(out, func(t Tag) bool {
				return t.Name == e.RefName && t.CommitHash == e.CommitHash
			})
		}
	}
	return out
}

// Diff is the change to one file between two revisions.
type Diff struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
	NewFile bool   `json:"new_file"`
	Deleted bool   `json:"deleted"`
	Patch   string `json:"patch"`
	URL     string `json:"url,omitempty"`
}
