package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xanzy/go-gitlab"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/model"
)

const (
	// remotePageSize is the page size requested from hosting provider APIs
	remotePageSize = 100

	// commitCacheSize bounds the memoized commit listings per adapter
	commitCacheSize = 64
)

// gitLabAdapter reads a GitLab project
type gitLabAdapter struct {
	desc    config.DataSourceDescriptor
	client  *gitlab.Client
	pid     string
	commits *lru.Cache[string, []*model.Commit]

	mu     sync.Mutex
	webURL string
}

var (
	_ Adapter            = (*gitLabAdapter)(nil)
	_ CommitSource       = (*gitLabAdapter)(nil)
	_ EventSource        = (*gitLabAdapter)(nil)
	_ FileSource         = (*gitLabAdapter)(nil)
	_ IssueSource        = (*gitLabAdapter)(nil)
	_ MergeRequestSource = (*gitLabAdapter)(nil)
	_ TeamSource         = (*gitLabAdapter)(nil)
	_ WikiSource         = (*gitLabAdapter)(nil)
)

// NewGitLabAdapter creates an adapter for desc.Project on desc.URL. No
// request is made until the first retrieval.
func NewGitLabAdapter(desc config.DataSourceDescriptor) (Adapter, error) {
	client, err := gitlab.NewClient(desc.Token, gitlab.WithBaseURL(desc.URL), gitlab.WithoutRetries())
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client for %s: %w", desc.Name, err)
	}
	commits, err := lru.New[string, []*model.Commit](commitCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit cache: %w", err)
	}
	return &gitLabAdapter{
		desc:    desc,
		client:  client,
		pid:     desc.Project,
		commits: commits,
	}, nil
}

// Descriptor returns the settings the adapter was built from
func (a *gitLabAdapter) Descriptor() config.DataSourceDescriptor {
	return a.desc
}

// GetCommits lists commits on query.Branch, or every branch when empty
func (a *gitLabAdapter) GetCommits(ctx context.Context, query CommitQuery) ([]*model.Commit, error) {
	key := commitCacheKey(query)
	if cached, ok := a.commits.Get(key); ok {
		return model.CloneCommits(cached), nil
	}

	opt := &gitlab.ListCommitsOptions{ListOptions: gitlab.ListOptions{PerPage: remotePageSize}}
	if query.Branch == "" {
		opt.All = gitlab.Ptr(true)
	} else {
		opt.RefName = gitlab.Ptr(query.Branch)
	}
	if !query.Since.IsZero() {
		opt.Since = gitlab.Ptr(query.Since)
	}
	if !query.Until.IsZero() {
		opt.Until = gitlab.Ptr(query.Until)
	}

	var result []*model.Commit
	for {
		commits, resp, err := a.client.Commits.ListCommits(a.pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list commits", resp, err)
		}
		for _, c := range commits {
			result = append(result, convertGitLabCommit(c))
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	logger.Debugf("Fetched %d commits from GitLab project %s", len(result), a.pid)
	a.commits.Add(key, result)
	return model.CloneCommits(result), nil
}

// GetCommit returns one commit with its changed files
func (a *gitLabAdapter) GetCommit(ctx context.Context, hash string) (*model.Commit, error) {
	opt := &gitlab.ListCommitsOptions{
		ListOptions: gitlab.ListOptions{PerPage: 1},
		RefName:     gitlab.Ptr(hash),
	}
	commits, resp, err := a.client.Commits.ListCommits(a.pid, opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, a.transportError("get commit", resp, err)
	}
	if len(commits) == 0 {
		return nil, &TransportError{Source: a.desc.Name, Operation: "get commit", Kind: KindNotFound,
			Err: fmt.Errorf("commit %s not found", hash)}
	}
	commit := convertGitLabCommit(commits[0])

	diffOpt := &gitlab.GetCommitDiffOptions{ListOptions: gitlab.ListOptions{PerPage: remotePageSize}}
	for {
		diffs, resp, err := a.client.Commits.GetCommitDiff(a.pid, commit.Hash, diffOpt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("get commit diff", resp, err)
		}
		for _, d := range diffs {
			commit.ChangedFiles = append(commit.ChangedFiles, d.NewPath)
		}
		if resp.NextPage == 0 {
			break
		}
		diffOpt.Page = resp.NextPage
	}
	return commit, nil
}

// GetBranches lists the project's branches
func (a *gitLabAdapter) GetBranches(ctx context.Context) ([]model.Branch, error) {
	opt := &gitlab.ListBranchesOptions{ListOptions: gitlab.ListOptions{PerPage: remotePageSize}}
	var result []model.Branch
	for {
		branches, resp, err := a.client.Branches.ListBranches(a.pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list branches", resp, err)
		}
		for _, b := range branches {
			branch := model.Branch{Name: b.Name, Protected: b.Protected, URL: b.WebURL}
			if b.Commit != nil {
				branch.HeadHash = b.Commit.ID
			}
			result = append(result, branch)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return result, nil
}

// GetTags lists the project's tags
func (a *gitLabAdapter) GetTags(ctx context.Context) ([]model.Tag, error) {
	opt := &gitlab.ListTagsOptions{ListOptions: gitlab.ListOptions{PerPage: remotePageSize}}
	var result []model.Tag
	for {
		tags, resp, err := a.client.Tags.ListTags(a.pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list tags", resp, err)
		}
		for _, t := range tags {
			tag := model.Tag{Name: t.Name}
			if t.Commit != nil {
				tag.CommitHash = t.Commit.ID
			}
			result = append(result, tag)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return result, nil
}

// GetEvents lists the project's push events, newest first
func (a *gitLabAdapter) GetEvents(ctx context.Context) ([]model.Event, error) {
	opt := &gitlab.ListProjectVisibleEventsOptions{
		ListOptions: gitlab.ListOptions{PerPage: remotePageSize},
		Action:      gitlab.Ptr(gitlab.PushedEventType),
	}
	result := []model.Event{}
	for {
		events, resp, err := a.client.Events.ListProjectVisibleEvents(a.pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list events", resp, err)
		}
		for _, e := range events {
			result = append(result, convertGitLabEvent(e))
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return result, nil
}

// ListFiles lists blob paths in the repository tree at ref
func (a *gitLabAdapter) ListFiles(ctx context.Context, ref string) ([]string, error) {
	if ref == "" {
		ref = a.desc.Branch
	}
	opt := &gitlab.ListTreeOptions{
		ListOptions: gitlab.ListOptions{PerPage: remotePageSize},
		Ref:         gitlab.Ptr(ref),
		Recursive:   gitlab.Ptr(true),
	}
	var result []string
	for {
		nodes, resp, err := a.client.Repositories.ListTree(a.pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list files", resp, err)
		}
		for _, n := range nodes {
			if n.Type == "blob" {
				result = append(result, n.Path)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return result, nil
}

// Compare returns the per-file diffs between two refs
func (a *gitLabAdapter) Compare(ctx context.Context, from, to string) ([]model.Diff, error) {
	opt := &gitlab.CompareOptions{From: gitlab.Ptr(from), To: gitlab.Ptr(to)}
	cmp, resp, err := a.client.Repositories.Compare(a.pid, opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, a.transportError("compare", resp, err)
	}

	compareURL := ""
	if base := a.projectURL(ctx); base != "" {
		compareURL = fmt.Sprintf("%s/-/compare/%s...%s", base, from, to)
	}

	diffs := make([]model.Diff, 0, len(cmp.Diffs))
	for _, d := range cmp.Diffs {
		diffs = append(diffs, model.Diff{
			OldPath: d.OldPath,
			NewPath: d.NewPath,
			NewFile: d.NewFile,
			Deleted: d.DeletedFile,
			Patch:   d.Diff,
			URL:     compareURL,
		})
	}
	return diffs, nil
}

// GetFile reads a raw file at the configured branch
func (a *gitLabAdapter) GetFile(ctx context.Context, path string) ([]byte, error) {
	opt := &gitlab.GetRawFileOptions{Ref: gitlab.Ptr(a.desc.Branch)}
	data, resp, err := a.client.RepositoryFiles.GetRawFile(a.pid, path, opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, a.transportError("get file "+path, resp, err)
	}
	return data, nil
}

// GetIssues lists issues with their notes and state changes as comments
func (a *gitLabAdapter) GetIssues(ctx context.Context, query IssueQuery) ([]*model.Issue, error) {
	opt := &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{PerPage: remotePageSize},
		State:       gitlab.Ptr(gitLabState(query.State)),
	}
	if query.Milestone != "" {
		opt.Milestone = gitlab.Ptr(query.Milestone)
	}
	if !query.Since.IsZero() {
		opt.CreatedAfter = gitlab.Ptr(query.Since)
	}
	if !query.Until.IsZero() {
		opt.CreatedBefore = gitlab.Ptr(query.Until)
	}

	var result []*model.Issue
	for {
		issues, resp, err := a.client.Issues.ListProjectIssues(a.pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list issues", resp, err)
		}
		for _, i := range issues {
			issue := convertGitLabIssue(i)
			comments, err := a.issueComments(ctx, i.IID)
			if err != nil {
				return nil, err
			}
			issue.Comments = comments
			result = append(result, issue)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return result, nil
}

func (a *gitLabAdapter) issueComments(ctx context.Context, iid int) ([]model.Comment, error) {
	var comments []model.Comment

	noteOpt := &gitlab.ListIssueNotesOptions{ListOptions: gitlab.ListOptions{PerPage: remotePageSize}}
	for {
		notes, resp, err := a.client.Notes.ListIssueNotes(a.pid, iid, noteOpt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list issue notes", resp, err)
		}
		for _, n := range notes {
			comments = append(comments, convertGitLabNote(n))
		}
		if resp.NextPage == 0 {
			break
		}
		noteOpt.Page = resp.NextPage
	}

	eventOpt := &gitlab.ListStateEventsOptions{ListOptions: gitlab.ListOptions{PerPage: remotePageSize}}
	for {
		events, resp, err := a.client.ResourceStateEvents.ListIssueStateEvents(a.pid, iid, eventOpt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list issue state events", resp, err)
		}
		for _, e := range events {
			comment := model.Comment{Body: string(e.State), System: true}
			if e.User != nil {
				comment.Author = model.Identity{Name: e.User.Name, Username: e.User.Username}
			}
			if e.CreatedAt != nil {
				comment.CreatedAt = *e.CreatedAt
			}
			comments = append(comments, comment)
		}
		if resp.NextPage == 0 {
			break
		}
		eventOpt.Page = resp.NextPage
	}

	model.SortComments(comments)
	return comments, nil
}

// GetMergeRequests lists merge requests with commits, approval and notes
func (a *gitLabAdapter) GetMergeRequests(ctx context.Context, query MergeRequestQuery) ([]*model.MergeRequest, error) {
	opt := &gitlab.ListProjectMergeRequestsOptions{
		ListOptions: gitlab.ListOptions{PerPage: remotePageSize},
		State:       gitlab.Ptr(gitLabState(query.State)),
	}
	if !query.Since.IsZero() {
		opt.CreatedAfter = gitlab.Ptr(query.Since)
	}
	if !query.Until.IsZero() {
		opt.CreatedBefore = gitlab.Ptr(query.Until)
	}

	var result []*model.MergeRequest
	for {
		mrs, resp, err := a.client.MergeRequests.ListProjectMergeRequests(a.pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list merge requests", resp, err)
		}
		for _, m := range mrs {
			mr := &model.MergeRequest{
				ID:           int64(m.ID),
				Number:       m.IID,
				Title:        m.Title,
				Description:  m.Description,
				SourceBranch: m.SourceBranch,
				TargetBranch: m.TargetBranch,
				State:        normalizeState(m.State),
				URL:          m.WebURL,
				MergedAt:     m.MergedAt,
				ClosedAt:     m.ClosedAt,
			}
			if m.Author != nil {
				mr.Author = model.Identity{Name: m.Author.Name, Username: m.Author.Username}
			}
			for _, r := range m.Reviewers {
				mr.Reviewers = append(mr.Reviewers, model.Identity{Name: r.Name, Username: r.Username})
			}
			if m.CreatedAt != nil {
				mr.CreatedAt = *m.CreatedAt
			}
			if err := a.fillMergeRequest(ctx, mr); err != nil {
				return nil, err
			}
			result = append(result, mr)
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return result, nil
}

func (a *gitLabAdapter) fillMergeRequest(ctx context.Context, mr *model.MergeRequest) error {
	commitOpt := &gitlab.GetMergeRequestCommitsOptions{PerPage: remotePageSize}
	for {
		commits, resp, err := a.client.MergeRequests.GetMergeRequestCommits(a.pid, mr.Number, commitOpt, gitlab.WithContext(ctx))
		if err != nil {
			return a.transportError("list merge request commits", resp, err)
		}
		for _, c := range commits {
			mr.CommitHashes = append(mr.CommitHashes, c.ID)
		}
		if resp.NextPage == 0 {
			break
		}
		commitOpt.Page = resp.NextPage
	}

	approvals, resp, err := a.client.MergeRequestApprovals.GetConfiguration(a.pid, mr.Number, gitlab.WithContext(ctx))
	if err != nil {
		return a.transportError("get merge request approvals", resp, err)
	}
	mr.Approved = approvals.Approved && len(approvals.ApprovedBy) > 0

	noteOpt := &gitlab.ListMergeRequestNotesOptions{ListOptions: gitlab.ListOptions{PerPage: remotePageSize}}
	for {
		notes, resp, err := a.client.Notes.ListMergeRequestNotes(a.pid, mr.Number, noteOpt, gitlab.WithContext(ctx))
		if err != nil {
			return a.transportError("list merge request notes", resp, err)
		}
		for _, n := range notes {
			mr.Comments = append(mr.Comments, convertGitLabNote(n))
		}
		if resp.NextPage == 0 {
			break
		}
		noteOpt.Page = resp.NextPage
	}
	model.SortComments(mr.Comments)
	return nil
}

// GetTeamMembers lists project members including inherited ones
func (a *gitLabAdapter) GetTeamMembers(ctx context.Context) ([]model.TeamMember, error) {
	opt := &gitlab.ListProjectMembersOptions{ListOptions: gitlab.ListOptions{PerPage: remotePageSize}}
	var result []model.TeamMember
	for {
		members, resp, err := a.client.ProjectMembers.ListAllProjectMembers(a.pid, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, a.transportError("list members", resp, err)
		}
		for _, m := range members {
			result = append(result, model.TeamMember{
				Username:    m.Username,
				DisplayName: m.Name,
				Email:       m.Email,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return result, nil
}

// GetWikiPages lists wiki pages with their content
func (a *gitLabAdapter) GetWikiPages(ctx context.Context) ([]model.WikiPage, error) {
	opt := &gitlab.ListWikisOptions{WithContent: gitlab.Ptr(true)}
	wikis, resp, err := a.client.Wikis.ListWikis(a.pid, opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, a.transportError("list wiki pages", resp, err)
	}

	base := a.projectURL(ctx)
	pages := make([]model.WikiPage, 0, len(wikis))
	for _, w := range wikis {
		page := model.WikiPage{
			Path:    w.Slug,
			Title:   w.Title,
			Content: w.Content,
			Format:  string(w.Format),
		}
		if base != "" {
			page.URL = base + "/-/wikis/" + w.Slug
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// projectURL returns the project's web URL, fetched once. Failures are
// logged and yield an empty URL since links are informational.
func (a *gitLabAdapter) projectURL(ctx context.Context) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.webURL != "" {
		return a.webURL
	}
	project, _, err := a.client.Projects.GetProject(a.pid, nil, gitlab.WithContext(ctx))
	if err != nil {
		logger.Warnf("Failed to resolve web URL of GitLab project %s: %v", a.pid, err)
		return ""
	}
	a.webURL = strings.TrimSuffix(project.WebURL, "/")
	return a.webURL
}

func (a *gitLabAdapter) transportError(operation string, resp *gitlab.Response, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	var errResp *gitlab.ErrorResponse
	if status == 0 && errors.As(err, &errResp) && errResp.Response != nil {
		status = errResp.Response.StatusCode
	}
	return newTransportError(a.desc.Name, operation, status, err)
}

func convertGitLabCommit(c *gitlab.Commit) *model.Commit {
	commit := &model.Commit{
		Hash:         c.ID,
		ShortHash:    c.ShortID,
		Author:       model.Identity{Name: c.AuthorName, Email: c.AuthorEmail},
		Committer:    model.Identity{Name: c.CommitterName, Email: c.CommitterEmail},
		Message:      c.Message,
		ParentHashes: append([]string(nil), c.ParentIDs...),
		URL:          c.WebURL,
	}
	if commit.ShortHash == "" {
		commit.ShortHash = model.ShortHash(c.ID)
	}
	if c.AuthoredDate != nil {
		commit.AuthoredAt = c.AuthoredDate.UTC()
	}
	if c.CommittedDate != nil {
		commit.CommittedAt = c.CommittedDate.UTC()
	}
	return commit
}

func convertGitLabEvent(e *gitlab.ProjectEvent) model.Event {
	event := model.Event{
		Action:      e.ActionName,
		RefType:     e.PushData.RefType,
		RefName:     e.PushData.Ref,
		CommitHash:  e.PushData.CommitTo,
		CommitCount: e.PushData.CommitCount,
	}
	if e.ActionName == model.EventDeleted {
		event.CommitHash = e.PushData.CommitFrom
	}
	if created, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
		event.CreatedAt = created.UTC()
	} else {
		logger.Debugf("Unparseable GitLab event time %q: %v", e.CreatedAt, err)
	}
	return event
}

func convertGitLabIssue(i *gitlab.Issue) *model.Issue {
	issue := &model.Issue{
		ID:          int64(i.ID),
		Number:      i.IID,
		Title:       i.Title,
		Description: i.Description,
		State:       normalizeState(i.State),
		Labels:      append([]string(nil), i.Labels...),
		URL:         i.WebURL,
		UpdatedAt:   i.UpdatedAt,
		ClosedAt:    i.ClosedAt,
	}
	if i.Author != nil {
		issue.Author = model.Identity{Name: i.Author.Name, Username: i.Author.Username}
	}
	for _, as := range i.Assignees {
		issue.Assignees = append(issue.Assignees, model.Identity{Name: as.Name, Username: as.Username})
	}
	if i.Milestone != nil {
		issue.Milestone = i.Milestone.Title
	}
	if i.CreatedAt != nil {
		issue.CreatedAt = *i.CreatedAt
	}
	if i.DueDate != nil {
		due := time.Time(*i.DueDate)
		issue.DueDate = &due
	}
	if i.TimeStats != nil {
		issue.TimeEstimate = time.Duration(i.TimeStats.TimeEstimate) * time.Second
		issue.TimeSpent = time.Duration(i.TimeStats.TotalTimeSpent) * time.Second
	}
	return issue
}

func convertGitLabNote(n *gitlab.Note) model.Comment {
	comment := model.Comment{
		Author:    model.Identity{Name: n.Author.Name, Email: n.Author.Email, Username: n.Author.Username},
		Body:      n.Body,
		UpdatedAt: n.UpdatedAt,
		System:    n.System,
	}
	if n.CreatedAt != nil {
		comment.CreatedAt = *n.CreatedAt
	}
	return comment
}

// gitLabState maps a model state filter to GitLab's vocabulary
func gitLabState(state string) string {
	switch state {
	case model.StateOpen:
		return "opened"
	case "":
		return "all"
	default:
		return state
	}
}

// normalizeState maps provider states to model states
func normalizeState(state string) string {
	switch state {
	case "opened", "open", "reopened":
		return model.StateOpen
	case "locked":
		return model.StateClosed
	default:
		return state
	}
}

func commitCacheKey(q CommitQuery) string {
	return fmt.Sprintf("%s|%s|%s", q.Branch, formatTime(q.Since), formatTime(q.Until))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
