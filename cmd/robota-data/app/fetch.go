package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/uom-robota/robota-core/internal/dispatch"
	"github.com/uom-robota/robota-core/internal/model"
	"github.com/uom-robota/robota-core/internal/sources"
)

// queryFlags are the filters shared by the listing operations
type queryFlags struct {
	since     string
	until     string
	branch    string
	state     string
	milestone string
}

type query struct {
	since     time.Time
	until     time.Time
	branch    string
	state     string
	milestone string
}

// operation is one fetch operation. args is the number of positional
// arguments after the operation name; a negative value means at least -args.
type operation struct {
	args  int
	usage string
	run   func(ctx context.Context, h *dispatch.Handle, q query, args []string) (any, error)
}

// rawOutput is written to stdout as is instead of as JSON
type rawOutput []byte

var operations = map[string]operation{
	"commits": {run: func(ctx context.Context, h *dispatch.Handle, q query, _ []string) (any, error) {
		return h.GetCommits(ctx, sources.CommitQuery{Since: q.since, Until: q.until, Branch: q.branch})
	}},
	"commit": {args: 1, usage: "<hash>", run: func(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
		return h.GetCommit(ctx, args[0])
	}},
	"branches": {run: func(ctx context.Context, h *dispatch.Handle, _ query, _ []string) (any, error) {
		return h.GetBranches(ctx)
	}},
	"tags": {run: func(ctx context.Context, h *dispatch.Handle, _ query, _ []string) (any, error) {
		return h.GetTags(ctx)
	}},
	"tag": {args: 1, usage: "<name> [--until <deadline>]", run: func(ctx context.Context, h *dispatch.Handle, q query, args []string) (any, error) {
		tag, err := h.GetTag(ctx, args[0], q.until)
		if err == nil && tag == nil {
			err = fmt.Errorf("no tag %q: %w", args[0], sources.ErrNotFound)
		}
		return tag, err
	}},
	"events": {run: func(ctx context.Context, h *dispatch.Handle, _ query, _ []string) (any, error) {
		return h.GetEvents(ctx)
	}},
	"files": {run: func(ctx context.Context, h *dispatch.Handle, q query, _ []string) (any, error) {
		return h.ListFiles(ctx, q.branch)
	}},
	"compare": {args: 2, usage: "<from> <to>", run: func(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
		return h.Compare(ctx, args[0], args[1])
	}},
	"file": {args: 1, usage: "<path>", run: func(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
		data, err := h.GetFile(ctx, args[0])
		return rawOutput(data), err
	}},
	"issues": {run: func(ctx context.Context, h *dispatch.Handle, q query, _ []string) (any, error) {
		return h.GetIssues(ctx, sources.IssueQuery{State: q.state, Since: q.since, Until: q.until, Milestone: q.milestone})
	}},
	"merge-requests": {run: func(ctx context.Context, h *dispatch.Handle, q query, _ []string) (any, error) {
		return h.GetMergeRequests(ctx, sources.MergeRequestQuery{State: q.state, Since: q.since, Until: q.until})
	}},
	"members": {run: func(ctx context.Context, h *dispatch.Handle, _ query, _ []string) (any, error) {
		return h.GetTeamMembers(ctx)
	}},
	"wiki": {run: func(ctx context.Context, h *dispatch.Handle, _ query, _ []string) (any, error) {
		return h.GetWikiPages(ctx)
	}},
	"jobs": {run: func(ctx context.Context, h *dispatch.Handle, _ query, _ []string) (any, error) {
		return h.GetJobs(ctx)
	}},
	"builds": {args: 1, usage: "<job>", run: func(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
		return h.GetBuilds(ctx, args[0])
	}},
	"tests": {args: 1, usage: "<job>", run: func(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
		return h.GetTestResults(ctx, args[0])
	}},
	"coverage": {args: 2, usage: "<job> <package>", run: func(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
		return h.GetPackageCoverage(ctx, args[0], args[1])
	}},
	"log": {args: 2, usage: "<job> <build-number>", run: fetchLog},
	"attendance": {run: func(ctx context.Context, h *dispatch.Handle, _ query, _ []string) (any, error) {
		return h.GetAttendance(ctx)
	}},
	"attendance-summary": {run: fetchAttendanceSummary},
	"students": {args: 1, usage: "<path>", run: func(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
		return h.GetStudentRecords(ctx, args[0])
	}},
	"config-files": {args: -1, usage: "<name>...", run: func(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
		return h.ReadConfigFiles(ctx, args...)
	}},
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	flags := &queryFlags{}
	filters := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "fetch <data-type> <operation> [args...]",
		Short: "Fetch data for one data type and print it as JSON",
		Long: fmt.Sprintf(`Fetch data for one data type from the source it is bound to and print
it as JSON. The file and log operations print raw content instead.

Data types: %s
Operations: %s`,
			strings.Join(dispatch.DataTypes(), ", "), strings.Join(operationNames(), ", ")),
		Args: cobra.MinimumNArgs(2),
		RunE: opts.run(func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, flags, filters, args)
		}),
	}

	cmd.Flags().StringVar(&flags.since, "since", "", "Only include items created after this time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.until, "until", "", "Only include items created before this time (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.branch, "branch", "", "Branch or ref for commits and files")
	cmd.Flags().StringVar(&flags.state, "state", "", "Issue or merge request state (open, closed, merged)")
	cmd.Flags().StringVar(&flags.milestone, "milestone", "", "Issue milestone title")
	// arrays, not slices: glob alternations like {a,b} contain commas
	cmd.Flags().StringArrayVar(&filters.include, "include", nil,
		"Only keep items whose name, path or title matches this glob pattern (repeatable)")
	cmd.Flags().StringArrayVar(&filters.exclude, "exclude", nil,
		"Drop items whose name, path or title matches this glob pattern (repeatable)")
	cmd.Flags().StringSliceVar(&filters.label, "label", nil, "Only keep issues carrying one of these labels")
	cmd.Flags().StringSliceVar(&filters.excludeLabel, "exclude-label", nil, "Drop issues carrying one of these labels")
	return cmd
}

func runFetch(cmd *cobra.Command, opts *rootOptions, flags *queryFlags, filters *filterFlags, args []string) error {
	dataType, name, rest := args[0], args[1], args[2:]
	op, ok := operations[name]
	if !ok {
		return fmt.Errorf("unknown operation %q, expected one of: %s", name, strings.Join(operationNames(), ", "))
	}
	if err := op.checkArgs(name, rest); err != nil {
		return err
	}

	q, err := flags.parse()
	if err != nil {
		return err
	}
	filter, err := filters.config()
	if err != nil {
		return err
	}

	d, err := opts.dispatcher()
	if err != nil {
		return err
	}
	h, err := d.Handle(cmd.Context(), dataType)
	if err != nil {
		return err
	}

	result, err := op.run(cmd.Context(), h, q, rest)
	if err != nil {
		return err
	}
	if result, err = applyFilters(name, result, filter); err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), result)
}

func (op operation) checkArgs(name string, args []string) error {
	switch {
	case op.args >= 0 && len(args) != op.args:
		return fmt.Errorf("operation %s takes %d arguments: %s %s", name, op.args, name, op.usage)
	case op.args < 0 && len(args) < -op.args:
		return fmt.Errorf("operation %s takes at least %d arguments: %s %s", name, -op.args, name, op.usage)
	}
	return nil
}

func (f *queryFlags) parse() (query, error) {
	since, err := parseTime("since", f.since)
	if err != nil {
		return query{}, err
	}
	until, err := parseTime("until", f.until)
	if err != nil {
		return query{}, err
	}
	state := strings.ToLower(f.state)
	if state != "" && !slices.Contains([]string{model.StateOpen, model.StateClosed, model.StateMerged}, state) {
		return query{}, fmt.Errorf("invalid --state %q", f.state)
	}
	return query{since: since, until: until, branch: f.branch, state: state, milestone: f.milestone}, nil
}

func parseTime(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: expected RFC 3339 or YYYY-MM-DD", flag, value)
	}
	return t, nil
}

func fetchLog(ctx context.Context, h *dispatch.Handle, _ query, args []string) (any, error) {
	number, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid build number %q", args[1])
	}
	builds, err := h.GetBuilds(ctx, args[0])
	if err != nil {
		return nil, err
	}
	for _, b := range builds {
		if b.Number != number {
			continue
		}
		text, err := b.Log.Read(ctx)
		if err != nil {
			return nil, err
		}
		return rawOutput(text), nil
	}
	return nil, fmt.Errorf("job %s has no build %d: %w", args[0], number, sources.ErrNotFound)
}

func fetchAttendanceSummary(ctx context.Context, h *dispatch.Handle, _ query, _ []string) (any, error) {
	records, err := h.GetAttendance(ctx)
	if err != nil {
		return nil, err
	}
	summaries := model.SummarizeAttendance(records, time.Now())
	out := make([]model.AttendanceSummary, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func writeResult(w io.Writer, result any) error {
	if raw, ok := result.(rawOutput); ok {
		_, err := w.Write(raw)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result as JSON: %w", err)
	}
	return nil
}
