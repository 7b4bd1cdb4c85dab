package model

import (
	"context"
	"fmt"
	"time"
)

// BuildStatus is the normalised outcome of a CI build.
type BuildStatus string

// Build statuses.
const (
	BuildPending  BuildStatus = "pending"
	BuildRunning  BuildStatus = "running"
	BuildSuccess  BuildStatus = "success"
	BuildFailure  BuildStatus = "failure"
	BuildUnstable BuildStatus = "unstable"
	BuildAborted  BuildStatus = "aborted"
	// BuildGitLabTimeout marks a build that failed because Jenkins could not
	// reach GitLab to check out the code
	BuildGitLabTimeout BuildStatus = "gitlab_timeout"
)

// Finished reports whether the build has a final result.
func (s BuildStatus) Finished() bool {
	return s != BuildPending && s != BuildRunning
}

// LogFetcher downloads a build's console output.
type LogFetcher func(ctx context.Context) (string, error)

// ConsoleLog is a handle on a build's console output. Nothing is fetched
// until Read is called, and every Read fetches again.
type ConsoleLog struct {
	URL   string
	fetch LogFetcher
}

// NewConsoleLog returns a handle that calls fetch on Read.
func NewConsoleLog(url string, fetch LogFetcher) ConsoleLog {
	return ConsoleLog{URL: url, fetch: fetch}
}

// Read fetches the console output.
func (l ConsoleLog) Read(ctx context.Context) (string, error) {
	if l.fetch == nil {
		return "", fmt.Errorf("no console log available")
	}
	return l.fetch(ctx)
}

// Available reports whether the handle can fetch anything.
func (l ConsoleLog) Available() bool {
	return l.fetch != nil
}

// CIBuild is one run of a CI job.
type CIBuild struct {
	JobName    string      `json:"job_name"`
	Number     int         `json:"number"`
	CommitHash string      `json:"commit_hash,omitempty"`
	BranchName string      `json:"branch_name,omitempty"`
	Status     BuildStatus `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	// FinishedAt is nil while the build is pending or running
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	URL        string     `json:"url,omitempty"`
	// InstructionCoverage is the JaCoCo instruction coverage, nil when the
	// build published no coverage report
	InstructionCoverage *Coverage  `json:"instruction_coverage,omitempty"`
	Log                 ConsoleLog `json:"-"`
}

// Coverage is a covered/total counter from a coverage report.
type Coverage struct {
	Covered    int     `json:"covered"`
	Missed     int     `json:"missed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Clone returns a copy sharing only the console log handle.
func (b *CIBuild) Clone() *CIBuild {
	if b == nil {
		return nil
	}
	out := *b
	if b.FinishedAt != nil {
		finished := *b.FinishedAt
		out.FinishedAt = &finished
	}
	if b.InstructionCoverage != nil {
		coverage := *b.InstructionCoverage
		out.InstructionCoverage = &coverage
	}
	return &out
}

// CloneBuilds deep-copies a build list.
func CloneBuilds(builds []*CIBuild) []*CIBuild {
	if builds == nil {
		return nil
	}
	out := make([]*CIBuild, len(builds))
	for i, b := range builds {
		out[i] = b.Clone()
	}
	return out
}

// CIJob is a CI job and its build history, newest build first.
type CIJob struct {
	// Name is relative to the configured project folder, e.g. "exercise1/main"
	Name                string     `json:"name"`
	ShortName           string     `json:"short_name"`
	URL                 string     `json:"url,omitempty"`
	LastBuildNumber     int        `json:"last_build_number,omitempty"`
	LastCompletedBuild  int        `json:"last_completed_build,omitempty"`
	LastSuccessfulBuild int        `json:"last_successful_build,omitempty"`
	Builds              []*CIBuild `json:"builds,omitempty"`
}

// Clone returns a deep copy, builds included.
func (j *CIJob) Clone() *CIJob {
	if j == nil {
		return nil
	}
	out := *j
	out.Builds = CloneBuilds(j.Builds)
	return &out
}

// CloneJobs deep-copies a job list.
func CloneJobs(jobs []*CIJob) []*CIJob {
	if jobs == nil {
		return nil
	}
	out := make([]*CIJob, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}

// TestResult is one test case from a CI test report.
type TestResult struct {
	Suite     string     `json:"suite,omitempty"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Passed reports whether the case passed or was fixed in this run.
func (r TestResult) Passed() bool {
	return r.Status == "PASSED" || r.Status == "FIXED"
}
