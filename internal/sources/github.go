package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/oauth2"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/model"
)

// gitHubAdapter reads a GitHub repository. GitHub has no project wiki API,
// so WikiSource is not implemented.
type gitHubAdapter struct {
	desc    config.DataSourceDescriptor
	client  *github.Client
	owner   string
	repo    string
	commits *lru.Cache[string, []*model.Commit]
}

var (
	_ Adapter            = (*gitHubAdapter)(nil)
	_ CommitSource       = (*gitHubAdapter)(nil)
	_ FileSource         = (*gitHubAdapter)(nil)
	_ IssueSource        = (*gitHubAdapter)(nil)
	_ MergeRequestSource = (*gitHubAdapter)(nil)
	_ TeamSource         = (*gitHubAdapter)(nil)
)

// NewGitHubAdapter creates an adapter for the "owner/repo" in desc.Project.
// URLs other than github.com are treated as GitHub Enterprise servers.
func NewGitHubAdapter(desc config.DataSourceDescriptor) (Adapter, error) {
	owner, repo, ok := strings.Cut(strings.Trim(desc.Project, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, &config.InvalidConfigValueError{
			Section: "data_sources." + desc.Name,
			Key:     "project",
			Reason:  fmt.Sprintf("expected owner/repository, got %q", desc.Project),
		}
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: desc.Token})
	client := github.NewClient(oauth2.NewClient(context.Background(), tokenSource))
	if !isPublicGitHub(desc.URL) {
		enterprise, err := client.WithEnterpriseURLs(desc.URL, desc.URL)
		if err != nil {
			return nil, &config.InvalidConfigValueError{
				Section: "data_sources." + desc.Name,
				Key:     "url",
				Reason:  err.Error(),
			}
		}
		client = enterprise
	}

	commits, err := lru.New[string, []*model.Commit](commitCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit cache: %w", err)
	}
	return &gitHubAdapter{
		desc:    desc,
		client:  client,
		owner:   owner,
		repo:    repo,
		commits: commits,
	}, nil
}

func isPublicGitHub(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL == ""
	}
	host := strings.ToLower(u.Hostname())
	return host == "github.com" || host == "api.github.com" || host == "www.github.com"
}

// Descriptor returns the settings the adapter was built from
func (a *gitHubAdapter) Descriptor() config.DataSourceDescriptor {
	return a.desc
}

// GetCommits lists commits reachable from query.Branch, or the default
// branch when empty since GitHub has no all-refs listing.
func (a *gitHubAdapter) GetCommits(ctx context.Context, query CommitQuery) ([]*model.Commit, error) {
	key := commitCacheKey(query)
	if cached, ok := a.commits.Get(key); ok {
		return model.CloneCommits(cached), nil
	}

	opts := &github.CommitsListOptions{
		SHA:         query.Branch,
		Since:       query.Since,
		Until:       query.Until,
		ListOptions: github.ListOptions{PerPage: remotePageSize},
	}

	var result []*model.Commit
	for {
		commits, resp, err := a.client.Repositories.ListCommits(ctx, a.owner, a.repo, opts)
		if err != nil {
			return nil, a.transportError("list commits", resp, err)
		}
		for _, c := range commits {
			result = append(result, convertGitHubCommit(c))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	logger.Debugf("Fetched %d commits from GitHub repository %s/%s", len(result), a.owner, a.repo)
	a.commits.Add(key, result)
	return model.CloneCommits(result), nil
}

// GetCommit returns one commit with its changed files
func (a *gitHubAdapter) GetCommit(ctx context.Context, hash string) (*model.Commit, error) {
	c, resp, err := a.client.Repositories.GetCommit(ctx, a.owner, a.repo, hash, nil)
	if err != nil {
		return nil, a.transportError("get commit", resp, err)
	}
	commit := convertGitHubCommit(c)
	for _, f := range c.Files {
		commit.ChangedFiles = append(commit.ChangedFiles, f.GetFilename())
	}
	return commit, nil
}

// GetBranches lists the repository's branches
func (a *gitHubAdapter) GetBranches(ctx context.Context) ([]model.Branch, error) {
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: remotePageSize}}
	var result []model.Branch
	for {
		branches, resp, err := a.client.Repositories.ListBranches(ctx, a.owner, a.repo, opts)
		if err != nil {
			return nil, a.transportError("list branches", resp, err)
		}
		for _, b := range branches {
			result = append(result, model.Branch{
				Name:      b.GetName(),
				HeadHash:  b.GetCommit().GetSHA(),
				Protected: b.GetProtected(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// GetTags lists the repository's tags
func (a *gitHubAdapter) GetTags(ctx context.Context) ([]model.Tag, error) {
	opts := &github.ListOptions{PerPage: remotePageSize}
	var result []model.Tag
	for {
		tags, resp, err := a.client.Repositories.ListTags(ctx, a.owner, a.repo, opts)
		if err != nil {
			return nil, a.transportError("list tags", resp, err)
		}
		for _, t := range tags {
			result = append(result, model.Tag{Name: t.GetName(), CommitHash: t.GetCommit().GetSHA()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// ListFiles lists blob paths of the recursive tree at ref
func (a *gitHubAdapter) ListFiles(ctx context.Context, ref string) ([]string, error) {
	if ref == "" {
		ref = a.desc.Branch
	}
	tree, resp, err := a.client.Git.GetTree(ctx, a.owner, a.repo, ref, true)
	if err != nil {
		return nil, a.transportError("list files", resp, err)
	}
	if tree.GetTruncated() {
		logger.Warnf("GitHub truncated the tree of %s/%s at %s; the file list is incomplete", a.owner, a.repo, ref)
	}

	var result []string
	for _, e := range tree.Entries {
		if e.GetType() == "blob" {
			result = append(result, e.GetPath())
		}
	}
	return result, nil
}

// Compare returns the per-file diffs between two refs
func (a *gitHubAdapter) Compare(ctx context.Context, from, to string) ([]model.Diff, error) {
	cmp, resp, err := a.client.Repositories.CompareCommits(ctx, a.owner, a.repo, from, to, nil)
	if err != nil {
		return nil, a.transportError("compare", resp, err)
	}

	diffs := make([]model.Diff, 0, len(cmp.Files))
	for _, f := range cmp.Files {
		d := model.Diff{
			OldPath: f.GetPreviousFilename(),
			NewPath: f.GetFilename(),
			NewFile: f.GetStatus() == "added",
			Deleted: f.GetStatus() == "removed",
			Patch:   f.GetPatch(),
			URL:     cmp.GetHTMLURL(),
		}
		if d.OldPath == "" {
			d.OldPath = d.NewPath
		}
		diffs = append(diffs, d)
	}
	return diffs, nil
}

// GetFile reads a file at the configured branch
func (a *gitHubAdapter) GetFile(ctx context.Context, path string) ([]byte, error) {
	opts := &github.RepositoryContentGetOptions{Ref: a.desc.Branch}
	file, _, resp, err := a.client.Repositories.GetContents(ctx, a.owner, a.repo, path, opts)
	if err != nil {
		return nil, a.transportError("get file "+path, resp, err)
	}
	if file == nil {
		return nil, &TransportError{Source: a.desc.Name, Operation: "get file " + path, Kind: KindNotFound,
			Err: fmt.Errorf("%s is a directory", path)}
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return []byte(content), nil
}

// GetIssues lists issues, excluding pull requests, with their comments
func (a *gitHubAdapter) GetIssues(ctx context.Context, query IssueQuery) ([]*model.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       gitHubState(query.State),
		ListOptions: github.ListOptions{PerPage: remotePageSize},
	}
	if query.Milestone != "" {
		number, err := a.milestoneNumber(ctx, query.Milestone)
		if err != nil {
			return nil, err
		}
		if number == 0 {
			return nil, nil
		}
		opts.Milestone = strconv.Itoa(number)
	}

	var result []*model.Issue
	for {
		issues, resp, err := a.client.Issues.ListByRepo(ctx, a.owner, a.repo, opts)
		if err != nil {
			return nil, a.transportError("list issues", resp, err)
		}
		for _, i := range issues {
			if i.IsPullRequest() || !inRange(i.GetCreatedAt().Time, query.Since, query.Until) {
				continue
			}
			issue := convertGitHubIssue(i)
			comments, err := a.issueComments(ctx, i.GetNumber())
			if err != nil {
				return nil, err
			}
			issue.Comments = comments
			result = append(result, issue)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}
	return result, nil
}

// milestoneNumber resolves a milestone title, returning 0 when absent
func (a *gitHubAdapter) milestoneNumber(ctx context.Context, title string) (int, error) {
	opts := &github.MilestoneListOptions{State: "all", ListOptions: github.ListOptions{PerPage: remotePageSize}}
	for {
		milestones, resp, err := a.client.Issues.ListMilestones(ctx, a.owner, a.repo, opts)
		if err != nil {
			return 0, a.transportError("list milestones", resp, err)
		}
		for _, m := range milestones {
			if m.GetTitle() == title {
				return m.GetNumber(), nil
			}
		}
		if resp.NextPage == 0 {
			return 0, nil
		}
		opts.Page = resp.NextPage
	}
}

func (a *gitHubAdapter) issueComments(ctx context.Context, number int) ([]model.Comment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: remotePageSize}}
	var comments []model.Comment
	for {
		page, resp, err := a.client.Issues.ListComments(ctx, a.owner, a.repo, number, opts)
		if err != nil {
			return nil, a.transportError("list comments", resp, err)
		}
		for _, c := range page {
			comment := model.Comment{
				Author:    gitHubIdentity(c.GetUser()),
				Body:      c.GetBody(),
				CreatedAt: c.GetCreatedAt().Time,
			}
			if c.UpdatedAt != nil {
				updated := c.GetUpdatedAt().Time
				comment.UpdatedAt = &updated
			}
			comments = append(comments, comment)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	model.SortComments(comments)
	return comments, nil
}

// GetMergeRequests lists pull requests with commits, approval and comments
func (a *gitHubAdapter) GetMergeRequests(ctx context.Context, query MergeRequestQuery) ([]*model.MergeRequest, error) {
	state := gitHubState(query.State)
	if query.State == model.StateMerged {
		state = "closed"
	}
	opts := &github.PullRequestListOptions{State: state, ListOptions: github.ListOptions{PerPage: remotePageSize}}

	var result []*model.MergeRequest
	for {
		prs, resp, err := a.client.PullRequests.List(ctx, a.owner, a.repo, opts)
		if err != nil {
			return nil, a.transportError("list pull requests", resp, err)
		}
		for _, pr := range prs {
			mr := convertGitHubPullRequest(pr)
			if query.State != "" && mr.State != query.State {
				continue
			}
			if !inRange(mr.CreatedAt, query.Since, query.Until) {
				continue
			}
			if err := a.fillPullRequest(ctx, mr); err != nil {
				return nil, err
			}
			result = append(result, mr)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

func (a *gitHubAdapter) fillPullRequest(ctx context.Context, mr *model.MergeRequest) error {
	opts := &github.ListOptions{PerPage: remotePageSize}
	for {
		commits, resp, err := a.client.PullRequests.ListCommits(ctx, a.owner, a.repo, mr.Number, opts)
		if err != nil {
			return a.transportError("list pull request commits", resp, err)
		}
		for _, c := range commits {
			mr.CommitHashes = append(mr.CommitHashes, c.GetSHA())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	reviewOpts := &github.ListOptions{PerPage: remotePageSize}
	for {
		reviews, resp, err := a.client.PullRequests.ListReviews(ctx, a.owner, a.repo, mr.Number, reviewOpts)
		if err != nil {
			return a.transportError("list pull request reviews", resp, err)
		}
		for _, r := range reviews {
			if r.GetState() == "APPROVED" {
				mr.Approved = true
			}
		}
		if resp.NextPage == 0 {
			break
		}
		reviewOpts.Page = resp.NextPage
	}

	comments, err := a.issueComments(ctx, mr.Number)
	if err != nil {
		return err
	}
	mr.Comments = comments
	return nil
}

// GetTeamMembers lists repository collaborators
func (a *gitHubAdapter) GetTeamMembers(ctx context.Context) ([]model.TeamMember, error) {
	opts := &github.ListCollaboratorsOptions{ListOptions: github.ListOptions{PerPage: remotePageSize}}
	var result []model.TeamMember
	for {
		users, resp, err := a.client.Repositories.ListCollaborators(ctx, a.owner, a.repo, opts)
		if err != nil {
			return nil, a.transportError("list collaborators", resp, err)
		}
		for _, u := range users {
			result = append(result, model.TeamMember{
				Username:    u.GetLogin(),
				DisplayName: u.GetName(),
				Email:       u.GetEmail(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

func (a *gitHubAdapter) transportError(operation string, resp *github.Response, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		status := 0
		if resp != nil && resp.Response != nil {
			status = resp.StatusCode
		}
		return &TransportError{Source: a.desc.Name, Operation: operation, Kind: KindRateLimit, StatusCode: status, Err: err}
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	var errResp *github.ErrorResponse
	if status == 0 && errors.As(err, &errResp) && errResp.Response != nil {
		status = errResp.Response.StatusCode
	}
	return newTransportError(a.desc.Name, operation, status, err)
}

func convertGitHubCommit(c *github.RepositoryCommit) *model.Commit {
	inner := c.GetCommit()
	commit := &model.Commit{
		Hash:        c.GetSHA(),
		ShortHash:   model.ShortHash(c.GetSHA()),
		Author:      commitIdentity(inner.GetAuthor(), c.GetAuthor()),
		Committer:   commitIdentity(inner.GetCommitter(), c.GetCommitter()),
		AuthoredAt:  inner.GetAuthor().GetDate().UTC(),
		CommittedAt: inner.GetCommitter().GetDate().UTC(),
		Message:     inner.GetMessage(),
		URL:         c.GetHTMLURL(),
	}
	for _, p := range c.Parents {
		commit.ParentHashes = append(commit.ParentHashes, p.GetSHA())
	}
	return commit
}

func commitIdentity(author *github.CommitAuthor, user *github.User) model.Identity {
	return model.Identity{
		Name:     author.GetName(),
		Email:    author.GetEmail(),
		Username: user.GetLogin(),
	}
}

func gitHubIdentity(u *github.User) model.Identity {
	return model.Identity{Name: u.GetName(), Email: u.GetEmail(), Username: u.GetLogin()}
}

func convertGitHubIssue(i *github.Issue) *model.Issue {
	issue := &model.Issue{
		ID:          i.GetID(),
		Number:      i.GetNumber(),
		Title:       i.GetTitle(),
		Description: i.GetBody(),
		Author:      gitHubIdentity(i.GetUser()),
		State:       normalizeState(i.GetState()),
		Milestone:   i.GetMilestone().GetTitle(),
		CreatedAt:   i.GetCreatedAt().Time,
		URL:         i.GetHTMLURL(),
	}
	for _, as := range i.Assignees {
		issue.Assignees = append(issue.Assignees, gitHubIdentity(as))
	}
	for _, l := range i.Labels {
		issue.Labels = append(issue.Labels, l.GetName())
	}
	issue.UpdatedAt = timestampPtr(i.UpdatedAt)
	issue.ClosedAt = timestampPtr(i.ClosedAt)
	if m := i.GetMilestone(); m != nil {
		issue.DueDate = timestampPtr(m.DueOn)
	}
	return issue
}

func convertGitHubPullRequest(pr *github.PullRequest) *model.MergeRequest {
	mr := &model.MergeRequest{
		ID:           pr.GetID(),
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Description:  pr.GetBody(),
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		State:        normalizeState(pr.GetState()),
		Author:       gitHubIdentity(pr.GetUser()),
		CreatedAt:    pr.GetCreatedAt().Time,
		MergedAt:     timestampPtr(pr.MergedAt),
		ClosedAt:     timestampPtr(pr.ClosedAt),
		URL:          pr.GetHTMLURL(),
	}
	if mr.MergedAt != nil {
		mr.State = model.StateMerged
	}
	for _, r := range pr.RequestedReviewers {
		mr.Reviewers = append(mr.Reviewers, gitHubIdentity(r))
	}
	return mr
}

func timestampPtr(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.UTC()
	return &t
}

// gitHubState maps a model state filter to GitHub's vocabulary
func gitHubState(state string) string {
	switch state {
	case model.StateOpen, model.StateClosed:
		return state
	default:
		return "all"
	}
}

// inRange reports whether t lies within [since, until], zero bounds open
func inRange(t, since, until time.Time) bool {
	if !since.IsZero() && t.Before(since) {
		return false
	}
	if !until.IsZero() && t.After(until) {
		return false
	}
	return true
}
