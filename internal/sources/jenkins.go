package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/httpclient"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/model"
)

const (
	// jenkinsBuildFields selects the build attributes read from the JSON API
	jenkinsBuildFields = "number,result,timestamp,duration,building,url," +
		"actions[_class,lastBuiltRevision[SHA1,branch[name]],foundFailureCauses[name]," +
		"instructionCoverage[covered,missed,total,percentageFloat]]"

	// jenkinsJobTree selects the jobs of a folder together with their builds
	jenkinsJobTree = "jobs[_class,name,fullName,url,lastBuild[number],lastCompletedBuild[number]," +
		"lastSuccessfulBuild[number],builds[" + jenkinsBuildFields + "]]"

	// jenkinsTestTree selects the cases of a test report
	jenkinsTestTree = "suites[name,timestamp,cases[name,status]]"

	// jenkinsCoverageTree selects the instruction counter of a JaCoCo report
	jenkinsCoverageTree = "instructionCoverage[covered,missed,total,percentageFloat]"

	// jenkinsGitLabTimeoutCause is the failure cause name the build failure
	// analyzer records when checkout from GitLab timed out
	jenkinsGitLabTimeoutCause = "Connection time-out while accessing GitLab"

	// jenkinsSuiteTimeLayout is the zone-less format of test suite timestamps
	jenkinsSuiteTimeLayout = "2006-01-02T15:04:05"
)

// JenkinsOption configures the Jenkins adapter
type JenkinsOption func(*jenkinsAdapter)

// WithJenkinsHTTPClient replaces the HTTP client.
func WithJenkinsHTTPClient(client httpclient.Client) JenkinsOption {
	return func(a *jenkinsAdapter) {
		a.httpClient = client
	}
}

// jenkinsAdapter reads jobs below job/<project_name>/job/<folder_name>
type jenkinsAdapter struct {
	desc       config.DataSourceDescriptor
	httpClient httpclient.Client
	baseURL    string
	// prefix is stripped from Jenkins full job names
	prefix string

	mu   sync.Mutex
	jobs []*model.CIJob
}

var (
	_ Adapter       = (*jenkinsAdapter)(nil)
	_ CIBuildSource = (*jenkinsAdapter)(nil)
)

// NewJenkinsAdapter creates an adapter for the configured Jenkins folder
func NewJenkinsAdapter(desc config.DataSourceDescriptor, opts ...JenkinsOption) (Adapter, error) {
	if desc.URL == "" {
		return nil, &config.MissingConfigKeyError{Section: "data_sources." + desc.Name, Key: "url"}
	}
	a := &jenkinsAdapter{
		desc:       desc,
		httpClient: httpclient.NewDefaultClient(0),
		baseURL: fmt.Sprintf("%s/job/%s/job/%s/", strings.TrimSuffix(desc.URL, "/"),
			url.PathEscape(desc.ProjectName), url.PathEscape(desc.FolderName)),
		prefix: desc.ProjectName + "/" + desc.FolderName + "/",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Descriptor returns the settings the adapter was built from
func (a *jenkinsAdapter) Descriptor() config.DataSourceDescriptor {
	return a.desc
}

// GetJobs lists every job below the folder, descending into sub-folders.
// The listing is fetched once per adapter and callers get copies.
func (a *jenkinsAdapter) GetJobs(ctx context.Context) ([]*model.CIJob, error) {
	jobs, err := a.jobList(ctx)
	if err != nil {
		return nil, err
	}
	return model.CloneJobs(jobs), nil
}

func (a *jenkinsAdapter) jobList(ctx context.Context) ([]*model.CIJob, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.jobs == nil {
		jobs, err := a.listFolder(ctx, a.baseURL)
		if err != nil {
			return nil, err
		}
		logger.Debugf("Fetched %d Jenkins jobs from %s", len(jobs), a.baseURL)
		a.jobs = jobs
	}
	return a.jobs, nil
}

func (a *jenkinsAdapter) listFolder(ctx context.Context, folderURL string) ([]*model.CIJob, error) {
	body, err := a.get(ctx, "list jobs", folderURL+"api/json?tree="+url.QueryEscape(jenkinsJobTree))
	if err != nil {
		return nil, err
	}

	jobs := []*model.CIJob{}
	for _, j := range gjson.GetBytes(body, "jobs").Array() {
		if strings.HasSuffix(j.Get("_class").String(), "Folder") {
			children, err := a.listFolder(ctx, ensureSlash(j.Get("url").String()))
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, children...)
			continue
		}
		jobs = append(jobs, a.parseJob(j))
	}
	return jobs, nil
}

func (a *jenkinsAdapter) parseJob(j gjson.Result) *model.CIJob {
	name := strings.TrimPrefix(j.Get("fullName").String(), a.prefix)
	if name == "" {
		name = j.Get("name").String()
	}
	job := &model.CIJob{
		Name:                name,
		ShortName:           j.Get("name").String(),
		URL:                 ensureSlash(j.Get("url").String()),
		LastBuildNumber:     int(j.Get("lastBuild.number").Int()),
		LastCompletedBuild:  int(j.Get("lastCompletedBuild.number").Int()),
		LastSuccessfulBuild: int(j.Get("lastSuccessfulBuild.number").Int()),
	}
	for _, b := range j.Get("builds").Array() {
		job.Builds = append(job.Builds, a.parseBuild(job.Name, b))
	}
	return job
}

func (a *jenkinsAdapter) parseBuild(jobName string, b gjson.Result) *model.CIBuild {
	build := &model.CIBuild{
		JobName:   jobName,
		Number:    int(b.Get("number").Int()),
		Status:    jenkinsStatus(b.Get("result"), b.Get("building").Bool()),
		StartedAt: time.UnixMilli(b.Get("timestamp").Int()).UTC(),
		URL:       ensureSlash(b.Get("url").String()),
	}
	if build.Status.Finished() {
		finished := build.StartedAt.Add(time.Duration(b.Get("duration").Int()) * time.Millisecond)
		build.FinishedAt = &finished
	}

	for _, action := range b.Get("actions").Array() {
		if rev := action.Get("lastBuiltRevision"); rev.Exists() && build.CommitHash == "" {
			build.CommitHash = rev.Get("SHA1").String()
			build.BranchName = trimRemoteBranch(rev.Get("branch.0.name").String())
		}
		if cov := action.Get("instructionCoverage"); cov.Exists() {
			build.InstructionCoverage = parseCoverage(cov)
		}
		for _, cause := range action.Get("foundFailureCauses").Array() {
			if cause.Get("name").String() == jenkinsGitLabTimeoutCause {
				build.Status = model.BuildGitLabTimeout
			}
		}
	}

	if build.URL != "" {
		logURL := build.URL + "consoleText"
		build.Log = model.NewConsoleLog(logURL, func(ctx context.Context) (string, error) {
			data, err := a.get(ctx, "read console log", logURL, httpclient.WithAccept("text/plain"))
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
	}
	return build
}

// GetBuilds returns the builds of jobName, newest first
func (a *jenkinsAdapter) GetBuilds(ctx context.Context, jobName string) ([]*model.CIBuild, error) {
	job, err := a.job(ctx, jobName)
	if err != nil {
		return nil, err
	}
	return model.CloneBuilds(job.Builds), nil
}

// GetTestResults reads the test report of the job's last completed build.
// A job without a report yields no results.
func (a *jenkinsAdapter) GetTestResults(ctx context.Context, jobName string) ([]model.TestResult, error) {
	job, err := a.job(ctx, jobName)
	if err != nil {
		return nil, err
	}

	reportURL := job.URL + "lastCompletedBuild/testReport/api/json?tree=" + url.QueryEscape(jenkinsTestTree)
	body, err := a.get(ctx, "read test report", reportURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debugf("Jenkins job %s has no test report", jobName)
			return []model.TestResult{}, nil
		}
		return nil, err
	}

	results := []model.TestResult{}
	for _, suite := range gjson.GetBytes(body, "suites").Array() {
		var stamp *time.Time
		if ts, err := time.Parse(jenkinsSuiteTimeLayout, suite.Get("timestamp").String()); err == nil {
			stamp = &ts
		}
		for _, c := range suite.Get("cases").Array() {
			results = append(results, model.TestResult{
				Suite:     suite.Get("name").String(),
				Name:      c.Get("name").String(),
				Status:    c.Get("status").String(),
				Timestamp: stamp,
			})
		}
	}
	return results, nil
}

// GetPackageCoverage reads the JaCoCo instruction coverage of one package
// in the job's last completed build. A build without a coverage report,
// or a package it does not cover, yields nil.
func (a *jenkinsAdapter) GetPackageCoverage(ctx context.Context, jobName, pkg string) (*model.Coverage, error) {
	job, err := a.job(ctx, jobName)
	if err != nil {
		return nil, err
	}

	coverageURL := job.URL + "lastCompletedBuild/jacoco/" + url.PathEscape(pkg) +
		"/api/json?tree=" + url.QueryEscape(jenkinsCoverageTree)
	body, err := a.get(ctx, "read coverage report", coverageURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debugf("Jenkins job %s has no coverage for package %s", jobName, pkg)
			return nil, nil
		}
		return nil, err
	}

	cov := gjson.GetBytes(body, "instructionCoverage")
	if !cov.Exists() {
		return nil, nil
	}
	return parseCoverage(cov), nil
}

// job returns the memoized job. Callers must not hand it out.
func (a *jenkinsAdapter) job(ctx context.Context, name string) (*model.CIJob, error) {
	jobs, err := a.jobList(ctx)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.Name == name {
			return j, nil
		}
	}
	return nil, &TransportError{
		Source:    a.desc.Name,
		Operation: "get job",
		Kind:      KindNotFound,
		Err:       fmt.Errorf("no job %q below %s", name, a.baseURL),
	}
}

func (a *jenkinsAdapter) get(ctx context.Context, operation, rawURL string, opts ...httpclient.RequestOption) ([]byte, error) {
	opts = append([]httpclient.RequestOption{httpclient.WithBasicAuth(a.desc.Username, a.desc.Token)}, opts...)
	body, err := a.httpClient.Get(ctx, rawURL, opts...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, newTransportError(a.desc.Name, operation, httpclient.StatusCode(err), err)
	}
	return body, nil
}

// jenkinsStatus maps a Jenkins result to a build status. A null result
// means the build is queued or still running.
func jenkinsStatus(result gjson.Result, building bool) model.BuildStatus {
	if building {
		return model.BuildRunning
	}
	switch result.String() {
	case "SUCCESS":
		return model.BuildSuccess
	case "UNSTABLE":
		return model.BuildUnstable
	case "FAILURE", "NOT_BUILT":
		return model.BuildFailure
	case "ABORTED":
		return model.BuildAborted
	default:
		return model.BuildPending
	}
}

func parseCoverage(cov gjson.Result) *model.Coverage {
	return &model.Coverage{
		Covered:    int(cov.Get("covered").Int()),
		Missed:     int(cov.Get("missed").Int()),
		Total:      int(cov.Get("total").Int()),
		Percentage: cov.Get("percentageFloat").Float(),
	}
}

func trimRemoteBranch(name string) string {
	name = strings.TrimPrefix(name, "refs/remotes/")
	return strings.TrimPrefix(name, "origin/")
}

func ensureSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
