package model

import (
	"slices"
	"time"
)

// State values shared by issues and merge requests.
const (
	StateOpen   = "open"
	StateClosed = "closed"
	StateMerged = "merged"
)

// Comment is a note on an issue, merge request or commit. System comments
// are generated by the provider, e.g. state changes.
type Comment struct {
	Author    Identity   `json:"author"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	System    bool       `json:"system,omitempty"`
}

// SortComments orders comments oldest first. Ties keep their input order.
func SortComments(comments []Comment) {
	slices.SortStableFunc(comments, func(a, b Comment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// Issue is a tracked issue. ID is provider-global, Number is project-scoped.
type Issue struct {
	ID          int64      `json:"id"`
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Author      Identity   `json:"author"`
	Assignees   []Identity `json:"assignees,omitempty"`
	State       string     `json:"state"`
	Labels      []string   `json:"labels,omitempty"`
	Milestone   string     `json:"milestone,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	// TimeEstimate is the provider's estimate, zero when unset
	TimeEstimate time.Duration `json:"time_estimate,omitempty"`
	TimeSpent    time.Duration `json:"time_spent,omitempty"`
	URL          string        `json:"url,omitempty"`
	Comments     []Comment     `json:"comments,omitempty"`
}

// IsOpen reports whether the issue is open.
func (i *Issue) IsOpen() bool {
	return i.State == StateOpen
}

// MergeRequest is a GitLab merge request or GitHub pull request.
type MergeRequest struct {
	ID           int64      `json:"id"`
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	SourceBranch string     `json:"source_branch"`
	TargetBranch string     `json:"target_branch"`
	State        string     `json:"state"`
	Author       Identity   `json:"author"`
	Reviewers    []Identity `json:"reviewers,omitempty"`
	// CommitHashes are weak references in the order the provider lists them
	CommitHashes []string   `json:"commit_hashes,omitempty"`
	Approved     bool       `json:"approved"`
	CreatedAt    time.Time  `json:"created_at"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	URL          string     `json:"url,omitempty"`
	Comments     []Comment  `json:"comments,omitempty"`
}

// WikiPage is a page from a project wiki. Path is the page slug.
type WikiPage struct {
	Path         string     `json:"path"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Format       string     `json:"format,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Author       *Identity  `json:"author,omitempty"`
	URL          string     `json:"url,omitempty"`
}
