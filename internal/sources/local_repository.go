package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/git"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/model"
)

// localRepositoryAdapter reads a git working copy on disk. There is no
// hosting provider behind it, so it offers commits and files only.
type localRepositoryAdapter struct {
	desc      config.DataSourceDescriptor
	gitClient git.Client

	mu       sync.Mutex
	repoInfo *git.RepositoryInfo
}

var (
	_ Adapter      = (*localRepositoryAdapter)(nil)
	_ CommitSource = (*localRepositoryAdapter)(nil)
	_ FileSource   = (*localRepositoryAdapter)(nil)
)

// NewLocalRepositoryAdapter creates an adapter for the working copy at
// desc.Path. The repository is opened on first use.
func NewLocalRepositoryAdapter(desc config.DataSourceDescriptor) (Adapter, error) {
	if desc.Path == "" {
		return nil, &config.MissingConfigKeyError{Section: "data_sources." + desc.Name, Key: "path"}
	}
	return &localRepositoryAdapter{
		desc:      desc,
		gitClient: git.NewDefaultGitClient(),
	}, nil
}

// Descriptor returns the settings the adapter was built from
func (a *localRepositoryAdapter) Descriptor() config.DataSourceDescriptor {
	return a.desc
}

func (a *localRepositoryAdapter) open(ctx context.Context) (*git.RepositoryInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.repoInfo != nil {
		return a.repoInfo, nil
	}
	repoInfo, err := a.gitClient.Open(ctx, &git.OpenConfig{Path: a.desc.Path, Branch: a.desc.Branch})
	if err != nil {
		return nil, a.localError("open", a.desc.Path, err)
	}
	a.repoInfo = repoInfo
	return repoInfo, nil
}

// GetCommits walks the configured working copy
func (a *localRepositoryAdapter) GetCommits(ctx context.Context, query CommitQuery) ([]*model.Commit, error) {
	repoInfo, err := a.open(ctx)
	if err != nil {
		return nil, err
	}

	opts := git.LogOptions{Ref: query.Branch}
	if !query.Since.IsZero() {
		opts.Since = &query.Since
	}
	if !query.Until.IsZero() {
		opts.Until = &query.Until
	}

	commits, err := a.gitClient.Commits(ctx, repoInfo, opts)
	if err != nil {
		return nil, a.localError("log", query.Branch, err)
	}

	result := make([]*model.Commit, 0, len(commits))
	for _, c := range commits {
		mc, err := convertGitCommit(c)
		if err != nil {
			return nil, a.localError("stats", c.Hash.String(), err)
		}
		result = append(result, mc)
	}
	// ref walks are not globally ordered when every branch is included
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CommittedAt.After(result[j].CommittedAt)
	})

	logger.Debugf("Read %d commits from %s", len(result), a.desc.Path)
	return result, nil
}

// GetCommit resolves a hash or ref
func (a *localRepositoryAdapter) GetCommit(ctx context.Context, hash string) (*model.Commit, error) {
	repoInfo, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	c, err := a.gitClient.CommitObject(repoInfo, hash)
	if err != nil {
		return nil, a.localError("resolve", hash, err)
	}
	mc, err := convertGitCommit(c)
	if err != nil {
		return nil, a.localError("stats", hash, err)
	}
	return mc, nil
}

// GetBranches lists local branches
func (a *localRepositoryAdapter) GetBranches(ctx context.Context) ([]model.Branch, error) {
	repoInfo, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := a.gitClient.Branches(repoInfo)
	if err != nil {
		return nil, a.localError("branches", a.desc.Path, err)
	}
	branches := make([]model.Branch, 0, len(refs))
	for _, ref := range refs {
		branches = append(branches, model.Branch{Name: ref.Name, HeadHash: ref.HeadHash})
	}
	return branches, nil
}

// GetTags lists tags peeled to commits
func (a *localRepositoryAdapter) GetTags(ctx context.Context) ([]model.Tag, error) {
	repoInfo, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := a.gitClient.Tags(repoInfo)
	if err != nil {
		return nil, a.localError("tags", a.desc.Path, err)
	}
	tags := make([]model.Tag, 0, len(refs))
	for _, ref := range refs {
		tags = append(tags, model.Tag{Name: ref.Name, CommitHash: ref.CommitHash})
	}
	return tags, nil
}

// ListFiles lists the tree at ref
func (a *localRepositoryAdapter) ListFiles(ctx context.Context, ref string) ([]string, error) {
	repoInfo, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	files, err := a.gitClient.ListFiles(repoInfo, ref)
	if err != nil {
		return nil, a.localError("list files", ref, err)
	}
	return files, nil
}

// Compare diffs two refs
func (a *localRepositoryAdapter) Compare(ctx context.Context, from, to string) ([]model.Diff, error) {
	repoInfo, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	changes, err := a.gitClient.Diff(ctx, repoInfo, from, to)
	if err != nil {
		return nil, a.localError("compare", from+".."+to, err)
	}
	diffs := make([]model.Diff, 0, len(changes))
	for _, c := range changes {
		diffs = append(diffs, model.Diff{
			OldPath: c.OldPath,
			NewPath: c.NewPath,
			NewFile: c.NewFile,
			Deleted: c.Deleted,
			Patch:   c.Patch,
		})
	}
	return diffs, nil
}

// GetFile reads path at the configured branch
func (a *localRepositoryAdapter) GetFile(ctx context.Context, path string) ([]byte, error) {
	repoInfo, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	data, err := a.gitClient.GetFileContent(repoInfo, a.desc.Branch, path)
	if err != nil {
		return nil, a.localError("read", path, err)
	}
	return data, nil
}

func (a *localRepositoryAdapter) localError(operation, path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &LocalError{
		Source:    a.desc.Name,
		Operation: operation,
		Path:      path,
		Err:       err,
		notFound:  errors.Is(err, git.ErrFileNotFound) || errors.Is(err, git.ErrRevisionNotFound),
	}
}

func convertGitCommit(c *object.Commit) (*model.Commit, error) {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}

	stats, err := c.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to compute changed files: %w", err)
	}
	changed := make([]string, 0, len(stats))
	for _, s := range stats {
		changed = append(changed, s.Name)
	}

	hash := c.Hash.String()
	return &model.Commit{
		Hash:         hash,
		ShortHash:    model.ShortHash(hash),
		Author:       model.Identity{Name: c.Author.Name, Email: c.Author.Email},
		Committer:    model.Identity{Name: c.Committer.Name, Email: c.Committer.Email},
		AuthoredAt:   c.Author.When.In(time.UTC),
		CommittedAt:  c.Committer.When.In(time.UTC),
		Message:      c.Message,
		ParentHashes: parents,
		ChangedFiles: changed,
	}, nil
}
