package dispatch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/model"
	"github.com/uom-robota/robota-core/internal/otel"
	"github.com/uom-robota/robota-core/internal/sources"
	"github.com/uom-robota/robota-core/internal/telemetry"
)

// Handle is a data type bound to its source's adapter. Operations the data
// type does not expose, or the adapter does not implement, fail with
// *sources.CapabilityNotSupportedError before any I/O.
type Handle struct {
	spec    DataTypeSpec
	binding config.DataTypeBinding
	desc    config.DataSourceDescriptor
	adapter sources.Adapter
	tracer  trace.Tracer
	metrics *telemetry.DispatchMetrics
}

// DataType returns the handled data type.
func (h *Handle) DataType() string { return h.spec.Name }

// SourceName returns the name of the bound data source.
func (h *Handle) SourceName() string { return h.desc.Name }

// SourceType returns the type of the bound data source.
func (h *Handle) SourceType() string { return h.desc.Type }

// Extra returns a data type option, falling back to an extra key of the
// data source.
func (h *Handle) Extra(key string) (string, bool) {
	if v, ok := h.binding.Options[key]; ok {
		return v, true
	}
	return h.desc.Get(key)
}

// capability returns the adapter as T when the data type exposes c.
func capability[T any](h *Handle, c Capability, operation string) (T, error) {
	var zero T
	if !h.spec.Exposes(c) {
		return zero, h.unsupported(operation)
	}
	impl, ok := h.adapter.(T)
	if !ok {
		return zero, h.unsupported(operation)
	}
	return impl, nil
}

func (h *Handle) unsupported(operation string) error {
	return &sources.CapabilityNotSupportedError{
		DataType:   h.spec.Name,
		SourceType: h.desc.Type,
		Operation:  operation,
	}
}

// call is one traced and measured Handle operation
type call struct {
	h         *Handle
	operation string
	span      trace.Span
	start     time.Time
}

func (h *Handle) begin(ctx context.Context, operation string) (context.Context, *call) {
	ctx, span := otel.StartSpan(ctx, h.tracer, "dispatch."+operation,
		trace.WithAttributes(
			otel.AttrDataType.String(h.spec.Name),
			otel.AttrSourceName.String(h.desc.Name),
			otel.AttrSourceType.String(h.desc.Type),
		))
	return ctx, &call{h: h, operation: operation, span: span, start: time.Now()}
}

func (c *call) end(ctx context.Context, count int, err error) {
	if err != nil {
		otel.RecordError(c.span, err)
	} else {
		otel.RecordCount(c.span, count)
	}
	c.span.End()
	c.h.metrics.RecordOperation(ctx, c.h.spec.Name, c.h.desc.Type, c.operation, time.Since(c.start), err == nil)
}

// GetCommits returns commits matching query, newest first.
func (h *Handle) GetCommits(ctx context.Context, query sources.CommitQuery) (commits []*model.Commit, err error) {
	src, err := capability[sources.CommitSource](h, CapCommits, "GetCommits")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetCommits")
	defer func() { c.end(ctx, len(commits), err) }()

	return src.GetCommits(ctx, query)
}

// GetCommit returns one commit by hash or ref.
func (h *Handle) GetCommit(ctx context.Context, hash string) (commit *model.Commit, err error) {
	src, err := capability[sources.CommitSource](h, CapCommits, "GetCommit")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetCommit")
	defer func() { c.end(ctx, 1, err) }()

	return src.GetCommit(ctx, hash)
}

// GetBranches lists branches.
func (h *Handle) GetBranches(ctx context.Context) (branches []model.Branch, err error) {
	src, err := capability[sources.CommitSource](h, CapCommits, "GetBranches")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetBranches")
	defer func() { c.end(ctx, len(branches), err) }()

	return src.GetBranches(ctx)
}

// GetTags lists tags.
func (h *Handle) GetTags(ctx context.Context) (tags []model.Tag, err error) {
	src, err := capability[sources.CommitSource](h, CapCommits, "GetTags")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetTags")
	defer func() { c.end(ctx, len(tags), err) }()

	return src.GetTags(ctx)
}

// GetTag returns the tag called name, or nil when there is none. A
// non-zero deadline resolves the tag as it stood then, which needs the
// push events of the source.
func (h *Handle) GetTag(ctx context.Context, name string, deadline time.Time) (tag *model.Tag, err error) {
	src, err := capability[sources.CommitSource](h, CapCommits, "GetTag")
	if err != nil {
		return nil, err
	}
	var events sources.EventSource
	if !deadline.IsZero() {
		if events, err = capability[sources.EventSource](h, CapCommits, "GetTag"); err != nil {
			return nil, err
		}
	}
	ctx, c := h.begin(ctx, "GetTag")
	defer func() {
		found := 0
		if tag != nil {
			found = 1
		}
		c.end(ctx, found, err)
	}()

	tags, err := src.GetTags(ctx)
	if err != nil {
		return nil, err
	}
	if events != nil {
		history, err := events.GetEvents(ctx)
		if err != nil {
			return nil, err
		}
		tags = model.TagsAt(deadline, tags, history)
	}
	for _, t := range tags {
		if t.Name == name {
			return &t, nil
		}
	}
	return nil, nil
}

// GetEvents lists push events, newest first.
func (h *Handle) GetEvents(ctx context.Context) (events []model.Event, err error) {
	src, err := capability[sources.EventSource](h, CapCommits, "GetEvents")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetEvents")
	defer func() { c.end(ctx, len(events), err) }()

	return src.GetEvents(ctx)
}

// ListFiles lists file paths at ref, or at the configured branch when empty.
func (h *Handle) ListFiles(ctx context.Context, ref string) (files []string, err error) {
	src, err := capability[sources.CommitSource](h, CapCommits, "ListFiles")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "ListFiles")
	defer func() { c.end(ctx, len(files), err) }()

	return src.ListFiles(ctx, ref)
}

// Compare returns per-file diffs between two refs.
func (h *Handle) Compare(ctx context.Context, from, to string) (diffs []model.Diff, err error) {
	src, err := capability[sources.CommitSource](h, CapCommits, "Compare")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "Compare")
	defer func() { c.end(ctx, len(diffs), err) }()

	return src.Compare(ctx, from, to)
}

// GetFile reads one file. Missing files match sources.ErrNotFound.
func (h *Handle) GetFile(ctx context.Context, path string) (data []byte, err error) {
	src, err := capability[sources.FileSource](h, CapFiles, "GetFile")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetFile")
	defer func() { c.end(ctx, len(data), err) }()

	return src.GetFile(ctx, path)
}

// GetIssues lists issues matching query.
func (h *Handle) GetIssues(ctx context.Context, query sources.IssueQuery) (issues []*model.Issue, err error) {
	src, err := capability[sources.IssueSource](h, CapIssues, "GetIssues")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetIssues")
	defer func() { c.end(ctx, len(issues), err) }()

	return src.GetIssues(ctx, query)
}

// GetMergeRequests lists merge or pull requests matching query.
func (h *Handle) GetMergeRequests(
	ctx context.Context, query sources.MergeRequestQuery,
) (mrs []*model.MergeRequest, err error) {
	src, err := capability[sources.MergeRequestSource](h, CapMergeRequests, "GetMergeRequests")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetMergeRequests")
	defer func() { c.end(ctx, len(mrs), err) }()

	return src.GetMergeRequests(ctx, query)
}

// GetTeamMembers lists project members.
func (h *Handle) GetTeamMembers(ctx context.Context) (members []model.TeamMember, err error) {
	src, err := capability[sources.TeamSource](h, CapTeamMembers, "GetTeamMembers")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetTeamMembers")
	defer func() { c.end(ctx, len(members), err) }()

	return src.GetTeamMembers(ctx)
}

// GetWikiPages lists wiki pages.
func (h *Handle) GetWikiPages(ctx context.Context) (pages []model.WikiPage, err error) {
	src, err := capability[sources.WikiSource](h, CapWiki, "GetWikiPages")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetWikiPages")
	defer func() { c.end(ctx, len(pages), err) }()

	return src.GetWikiPages(ctx)
}

// GetJobs lists CI jobs.
func (h *Handle) GetJobs(ctx context.Context) (jobs []*model.CIJob, err error) {
	src, err := capability[sources.CIBuildSource](h, CapBuilds, "GetJobs")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetJobs")
	defer func() { c.end(ctx, len(jobs), err) }()

	return src.GetJobs(ctx)
}

// GetBuilds lists the builds of one job, newest first.
func (h *Handle) GetBuilds(ctx context.Context, jobName string) (builds []*model.CIBuild, err error) {
	src, err := capability[sources.CIBuildSource](h, CapBuilds, "GetBuilds")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetBuilds")
	defer func() { c.end(ctx, len(builds), err) }()

	return src.GetBuilds(ctx, jobName)
}

// GetTestResults returns the latest test report of one job.
func (h *Handle) GetTestResults(ctx context.Context, jobName string) (results []model.TestResult, err error) {
	src, err := capability[sources.CIBuildSource](h, CapBuilds, "GetTestResults")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetTestResults")
	defer func() { c.end(ctx, len(results), err) }()

	return src.GetTestResults(ctx, jobName)
}

// GetPackageCoverage returns the instruction coverage of pkg in the latest
// completed build of one job, nil when there is no report.
func (h *Handle) GetPackageCoverage(ctx context.Context, jobName, pkg string) (coverage *model.Coverage, err error) {
	src, err := capability[sources.CIBuildSource](h, CapBuilds, "GetPackageCoverage")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetPackageCoverage")
	defer func() { c.end(ctx, 1, err) }()

	return src.GetPackageCoverage(ctx, jobName, pkg)
}

// GetAttendance returns one record per student per session.
func (h *Handle) GetAttendance(ctx context.Context) (records []model.AttendanceRecord, err error) {
	src, err := capability[sources.RecordSource](h, CapRecords, "GetAttendance")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetAttendance")
	defer func() { c.end(ctx, len(records), err) }()

	return src.GetAttendance(ctx)
}

// GetStudentRecords reads a CSV or YAML student list at path.
func (h *Handle) GetStudentRecords(ctx context.Context, path string) (records []model.StudentRecord, err error) {
	if !h.spec.Exposes(CapStudentRecords) {
		return nil, h.unsupported("GetStudentRecords")
	}
	src, err := capability[sources.FileSource](h, CapFiles, "GetStudentRecords")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "GetStudentRecords")
	defer func() { c.end(ctx, len(records), err) }()

	data, err := src.GetFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return config.DecodeStudentRecords(path, data)
}

// ReadConfigFiles reads and parses each named YAML or CSV file. A file
// that does not exist maps to nil; any other failure aborts.
func (h *Handle) ReadConfigFiles(ctx context.Context, names ...string) (files map[string]any, err error) {
	src, err := capability[sources.FileSource](h, CapFiles, "ReadConfigFiles")
	if err != nil {
		return nil, err
	}
	ctx, c := h.begin(ctx, "ReadConfigFiles")
	defer func() { c.end(ctx, len(files), err) }()

	files = make(map[string]any, len(names))
	for _, name := range names {
		data, err := src.GetFile(ctx, name)
		if errors.Is(err, sources.ErrNotFound) {
			logger.Warnf("Config file %s not found in %s", name, h.desc.Name)
			files[name] = nil
			continue
		}
		if err != nil {
			return nil, err
		}

		parsed, err := config.ParseConfigFile(name, data)
		if err != nil {
			return nil, err
		}
		files[name] = parsed
	}
	return files, nil
}
