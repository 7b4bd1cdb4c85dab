package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// TestCommit describes one commit created by CreateTestRepo
type TestCommit struct {
	Files   map[string]string // Map of filename to content
	Remove  []string          // Files deleted in this commit
	Message string            // Defaults to "Commit <n>"
	Author  *object.Signature // Author for the commit (uses default if nil)
	// Branch checks out (creating if needed) this branch before committing
	Branch string
	// Tag tags the new commit; AnnotatedTag makes it an annotated tag
	Tag          string
	AnnotatedTag bool
}

// DefaultTestAuthor is used for commits without an explicit author
func DefaultTestAuthor(when time.Time) *object.Signature {
	return &object.Signature{
		Name:  "Test Author",
		Email: "test@example.com",
		When:  when,
	}
}

// CreateTestRepo creates a repository in a test temp directory and applies
// the commits in order on the master branch unless a commit names another
// branch. Commits without an author are dated one hour apart starting
// 2024-01-01 UTC. Returns the repository path and commit hashes.
func CreateTestRepo(t *testing.T, commits ...TestCommit) (string, []plumbing.Hash) {
	t.Helper()

	repoDir := t.TempDir()

	repo, err := git.PlainInit(repoDir, false)
	if err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}

	workTree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var hashes []plumbing.Hash

	for i, commit := range commits {
		if commit.Branch != "" && len(hashes) > 0 {
			checkoutBranch(t, repo, workTree, commit.Branch)
		}

		for filename, content := range commit.Files {
			filePath := filepath.Join(repoDir, filename)
			if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
				t.Fatalf("Failed to create directory for %s: %v", filename, err)
			}
			if err := os.WriteFile(filePath, []byte(content), 0600); err != nil {
				t.Fatalf("Failed to write file %s: %v", filename, err)
			}
			if _, err := workTree.Add(filename); err != nil {
				t.Fatalf("Failed to add file %s: %v", filename, err)
			}
		}
		for _, filename := range commit.Remove {
			if _, err := workTree.Remove(filename); err != nil {
				t.Fatalf("Failed to remove file %s: %v", filename, err)
			}
		}

		author := commit.Author
		if author == nil {
			author = DefaultTestAuthor(base.Add(time.Duration(i) * time.Hour))
		}
		message := commit.Message
		if message == "" {
			message = "Commit " + string(rune('A'+i))
		}

		hash, err := workTree.Commit(message, &git.CommitOptions{
			Author:            author,
			Committer:         author,
			AllowEmptyCommits: true,
		})
		if err != nil {
			t.Fatalf("Failed to commit: %v", err)
		}
		hashes = append(hashes, hash)

		if commit.Tag != "" {
			var opts *git.CreateTagOptions
			if commit.AnnotatedTag {
				opts = &git.CreateTagOptions{Tagger: author, Message: "Release " + commit.Tag}
			}
			if _, err := repo.CreateTag(commit.Tag, hash, opts); err != nil {
				t.Fatalf("Failed to create tag %s: %v", commit.Tag, err)
			}
		}
	}

	return repoDir, hashes
}

func checkoutBranch(t *testing.T, repo *git.Repository, workTree *git.Worktree, branch string) {
	t.Helper()

	branchRef := plumbing.NewBranchReferenceName(branch)
	_, err := repo.Reference(branchRef, false)
	create := err != nil

	err = workTree.Checkout(&git.CheckoutOptions{
		Branch: branchRef,
		Create: create,
	})
	if err != nil {
		t.Fatalf("Failed to checkout branch %s: %v", branch, err)
	}
}
