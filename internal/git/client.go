package git

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/uom-robota/robota-core/internal/logger"
)

// diffContextLines matches git's default unified context
const diffContextLines = 3

// Client defines the interface for Git operations
type Client interface {
	// Open opens the repository containing the configured path
	Open(ctx context.Context, config *OpenConfig) (*RepositoryInfo, error)

	// Commits walks history newest first
	Commits(ctx context.Context, repoInfo *RepositoryInfo, opts LogOptions) ([]*object.Commit, error)

	// CommitObject resolves a revision to its commit
	CommitObject(repoInfo *RepositoryInfo, rev string) (*object.Commit, error)

	// Branches lists local branches sorted by name
	Branches(repoInfo *RepositoryInfo) ([]BranchRef, error)

	// Tags lists tags sorted by name, annotated tags peeled to their commit
	Tags(repoInfo *RepositoryInfo) ([]TagRef, error)

	// GetFileContent retrieves the content of a file at a revision
	GetFileContent(repoInfo *RepositoryInfo, rev, path string) ([]byte, error)

	// ListFiles lists every file path in the tree at a revision
	ListFiles(repoInfo *RepositoryInfo, rev string) ([]string, error)

	// Diff compares the trees of two revisions
	Diff(ctx context.Context, repoInfo *RepositoryInfo, from, to string) ([]FileChange, error)
}

// defaultGitClient implements Client using go-git
type defaultGitClient struct{}

// NewDefaultGitClient creates a new defaultGitClient
func NewDefaultGitClient() Client {
	return &defaultGitClient{}
}

// Open opens the repository containing config.Path
func (*defaultGitClient) Open(_ context.Context, config *OpenConfig) (*RepositoryInfo, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("repository path is required")
	}

	repo, err := git.PlainOpenWithOptions(config.Path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", config.Path, err)
	}

	logger.Debugf("Opened git repository at %s (branch %s)", config.Path, config.Branch)
	return &RepositoryInfo{
		Repository: repo,
		Path:       config.Path,
		Branch:     config.Branch,
	}, nil
}

// Commits walks history newest first by committer time
func (c *defaultGitClient) Commits(
	ctx context.Context, repoInfo *RepositoryInfo, opts LogOptions,
) ([]*object.Commit, error) {
	if err := checkRepo(repoInfo); err != nil {
		return nil, err
	}

	logOpts := &git.LogOptions{
		Order: git.LogOrderCommitterTime,
		Since: opts.Since,
		Until: opts.Until,
	}
	if opts.Ref == "" {
		logOpts.All = true
	} else {
		hash, err := c.resolve(repoInfo, opts.Ref)
		if err != nil {
			return nil, err
		}
		logOpts.From = hash
	}

	iter, err := repoInfo.Repository.Log(logOpts)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// empty repository
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	defer iter.Close()

	var commits []*object.Commit
	err = iter.ForEach(func(commit *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, commit)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk commits: %w", err)
	}
	return commits, nil
}

// CommitObject resolves a revision to its commit
func (c *defaultGitClient) CommitObject(repoInfo *RepositoryInfo, rev string) (*object.Commit, error) {
	if err := checkRepo(repoInfo); err != nil {
		return nil, err
	}

	hash, err := c.resolve(repoInfo, rev)
	if err != nil {
		return nil, err
	}

	commit, err := repoInfo.Repository.CommitObject(hash)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, rev)
		}
		return nil, fmt.Errorf("failed to get commit object: %w", err)
	}
	return commit, nil
}

// Branches lists local branches sorted by name
func (*defaultGitClient) Branches(repoInfo *RepositoryInfo) ([]BranchRef, error) {
	if err := checkRepo(repoInfo); err != nil {
		return nil, err
	}

	iter, err := repoInfo.Repository.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer iter.Close()

	var branches []BranchRef
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		branches = append(branches, BranchRef{Name: ref.Name().Short(), HeadHash: ref.Hash().String()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// Tags lists tags sorted by name
func (*defaultGitClient) Tags(repoInfo *RepositoryInfo) ([]TagRef, error) {
	if err := checkRepo(repoInfo); err != nil {
		return nil, err
	}

	iter, err := repoInfo.Repository.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer iter.Close()

	var tags []TagRef
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		hash := ref.Hash()
		// annotated tags point at a tag object, not the commit
		tagObj, err := repoInfo.Repository.TagObject(hash)
		switch {
		case err == nil:
			commit, err := tagObj.Commit()
			if err != nil {
				return fmt.Errorf("failed to peel tag %s: %w", ref.Name().Short(), err)
			}
			hash = commit.Hash
		case !errors.Is(err, plumbing.ErrObjectNotFound):
			return fmt.Errorf("failed to read tag %s: %w", ref.Name().Short(), err)
		}
		tags = append(tags, TagRef{Name: ref.Name().Short(), CommitHash: hash.String()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// GetFileContent retrieves the content of a file at a revision
func (c *defaultGitClient) GetFileContent(repoInfo *RepositoryInfo, rev, path string) ([]byte, error) {
	tree, err := c.tree(repoInfo, rev)
	if err != nil {
		return nil, err
	}

	file, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s at %s", ErrFileNotFound, path, rev)
		}
		return nil, fmt.Errorf("failed to get file %s: %w", path, err)
	}

	content, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}

	return []byte(content), nil
}

// ListFiles lists every file path in the tree at a revision
func (c *defaultGitClient) ListFiles(repoInfo *RepositoryInfo, rev string) ([]string, error) {
	tree, err := c.tree(repoInfo, rev)
	if err != nil {
		return nil, err
	}

	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Diff compares the trees of two revisions
func (c *defaultGitClient) Diff(ctx context.Context, repoInfo *RepositoryInfo, from, to string) ([]FileChange, error) {
	fromTree, err := c.tree(repoInfo, from)
	if err != nil {
		return nil, err
	}
	toTree, err := c.tree(repoInfo, to)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", from, to, err)
	}

	result := make([]FileChange, 0, len(changes))
	for _, change := range changes {
		fc, err := fileChange(change)
		if err != nil {
			return nil, err
		}
		result = append(result, fc)
	}
	return result, nil
}

func fileChange(change *object.Change) (FileChange, error) {
	action, err := change.Action()
	if err != nil {
		return FileChange{}, fmt.Errorf("failed to classify change: %w", err)
	}

	fc := FileChange{
		OldPath: change.From.Name,
		NewPath: change.To.Name,
		NewFile: action == merkletrie.Insert,
		Deleted: action == merkletrie.Delete,
	}
	if fc.OldPath == "" {
		fc.OldPath = fc.NewPath
	}
	if fc.NewPath == "" {
		fc.NewPath = fc.OldPath
	}

	fromFile, toFile, err := change.Files()
	if err != nil {
		return FileChange{}, fmt.Errorf("failed to read changed files: %w", err)
	}

	before, binFrom, err := fileText(fromFile)
	if err != nil {
		return FileChange{}, err
	}
	after, binTo, err := fileText(toFile)
	if err != nil {
		return FileChange{}, err
	}
	if binFrom || binTo {
		fc.Binary = true
		return fc, nil
	}

	patch, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + fc.OldPath,
		ToFile:   "b/" + fc.NewPath,
		Context:  diffContextLines,
	})
	if err != nil {
		return FileChange{}, fmt.Errorf("failed to render diff for %s: %w", fc.NewPath, err)
	}
	fc.Patch = patch
	return fc, nil
}

func fileText(f *object.File) (string, bool, error) {
	if f == nil {
		return "", false, nil
	}
	binary, err := f.IsBinary()
	if err != nil {
		return "", false, fmt.Errorf("failed to inspect %s: %w", f.Name, err)
	}
	if binary {
		return "", true, nil
	}
	content, err := f.Contents()
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return content, false, nil
}

func (c *defaultGitClient) tree(repoInfo *RepositoryInfo, rev string) (*object.Tree, error) {
	commit, err := c.CommitObject(repoInfo, rev)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	return tree, nil
}

func (*defaultGitClient) resolve(repoInfo *RepositoryInfo, rev string) (plumbing.Hash, error) {
	if rev == "" {
		rev = repoInfo.Branch
	}
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := repoInfo.Repository.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRevisionNotFound, rev)
		}
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	return *hash, nil
}

func checkRepo(repoInfo *RepositoryInfo) error {
	if repoInfo == nil || repoInfo.Repository == nil {
		return fmt.Errorf("repository is nil")
	}
	return nil
}
