// Package git provides read-only operations on a local git working copy.
//
// It is a thin wrapper around go-git used by the local_repository data
// source. Nothing in this package fetches, checks out or writes.
//
// # Client Interface
//
// The Client interface defines the core operations:
//   - Open: open the repository containing a directory
//   - Commits: walk history with optional ref and time window
//   - Branches, Tags: list refs with their target commits
//   - GetFileContent, ListFiles: read the tree at any revision
//   - Diff: compare two revisions file by file
//
// # Example Usage
//
//	client := git.NewDefaultGitClient()
//	repoInfo, err := client.Open(ctx, &git.OpenConfig{Path: "/srv/team07"})
//	if err != nil {
//	    return err
//	}
//
//	content, err := client.GetFileContent(repoInfo, "master", "README.md")
//	if err != nil {
//	    return err
//	}
package git
