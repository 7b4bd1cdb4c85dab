package sources

import (
	"context"
	"time"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/model"
)

// Adapter is a constructed data source. It implements any subset of the
// capability interfaces below; callers discover them by type assertion.
type Adapter interface {
	// Descriptor returns the settings the adapter was built from
	Descriptor() config.DataSourceDescriptor
}

// CommitQuery selects commits. A zero time leaves that side unbounded and an
// empty Branch covers every branch.
type CommitQuery struct {
	Since  time.Time
	Until  time.Time
	Branch string
}

// CommitSource reads version control history.
type CommitSource interface {
	// GetCommits returns commits matching the query, newest first
	GetCommits(ctx context.Context, query CommitQuery) ([]*model.Commit, error)

	// GetCommit returns a single commit by hash or ref
	GetCommit(ctx context.Context, hash string) (*model.Commit, error)

	// GetBranches lists branches
	GetBranches(ctx context.Context) ([]model.Branch, error)

	// GetTags lists tags
	GetTags(ctx context.Context) ([]model.Tag, error)

	// ListFiles lists file paths in the tree at ref; empty ref means the configured branch
	ListFiles(ctx context.Context, ref string) ([]string, error)

	// Compare returns per-file diffs between two refs
	Compare(ctx context.Context, from, to string) ([]model.Diff, error)
}

// EventSource reads the push history of a hosted repository.
type EventSource interface {
	// GetEvents returns push events, newest first
	GetEvents(ctx context.Context) ([]model.Event, error)
}

// FileSource reads single files.
type FileSource interface {
	// GetFile returns the content of path. Missing files yield an error
	// matching ErrNotFound.
	GetFile(ctx context.Context, path string) ([]byte, error)
}

// IssueQuery selects issues. Empty fields do not filter.
type IssueQuery struct {
	// State is model.StateOpen, model.StateClosed or empty for all
	State     string
	Since     time.Time
	Until     time.Time
	Milestone string
}

// IssueSource reads an issue tracker.
type IssueSource interface {
	GetIssues(ctx context.Context, query IssueQuery) ([]*model.Issue, error)
}

// MergeRequestQuery selects merge requests by state and creation time.
type MergeRequestQuery struct {
	// State is model.StateOpen, model.StateMerged, model.StateClosed or empty
	State string
	Since time.Time
	Until time.Time
}

// MergeRequestSource reads merge or pull requests.
type MergeRequestSource interface {
	GetMergeRequests(ctx context.Context, query MergeRequestQuery) ([]*model.MergeRequest, error)
}

// TeamSource reads the members of the hosted project.
type TeamSource interface {
	GetTeamMembers(ctx context.Context) ([]model.TeamMember, error)
}

// WikiSource reads project wiki pages.
type WikiSource interface {
	GetWikiPages(ctx context.Context) ([]model.WikiPage, error)
}

// CIBuildSource reads CI jobs and builds.
type CIBuildSource interface {
	// GetJobs lists every job below the configured folder
	GetJobs(ctx context.Context) ([]*model.CIJob, error)

	// GetBuilds returns the builds of one job, newest first
	GetBuilds(ctx context.Context, jobName string) ([]*model.CIBuild, error)

	// GetTestResults returns the latest completed test report of one job
	GetTestResults(ctx context.Context, jobName string) ([]model.TestResult, error)

	// GetPackageCoverage returns the instruction coverage of one package in
	// the latest completed build, nil when no report covers it
	GetPackageCoverage(ctx context.Context, jobName, pkg string) (*model.Coverage, error)
}

// RecordSource reads attendance records.
type RecordSource interface {
	GetAttendance(ctx context.Context) ([]model.AttendanceRecord, error)
}

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks github.com/uom-robota/robota-core/internal/sources AdapterFactory

// AdapterFactory builds adapters from descriptors.
type AdapterFactory interface {
	// CreateAdapter builds an adapter without contacting the source
	CreateAdapter(desc config.DataSourceDescriptor) (Adapter, error)
}
