package git

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func openTestRepo(t *testing.T, commits ...TestCommit) (Client, *RepositoryInfo, []string) {
	t.Helper()

	repoDir, hashes := CreateTestRepo(t, commits...)
	client := NewDefaultGitClient()
	repoInfo, err := client.Open(t.Context(), &OpenConfig{Path: repoDir, Branch: "master"})
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}

	ids := make([]string, len(hashes))
	for i, h := range hashes {
		ids[i] = h.String()
	}
	return client, repoInfo, ids
}

func TestNewDefaultGitClient(t *testing.T) {
	t.Parallel()
	client := NewDefaultGitClient()
	if _, ok := client.(*defaultGitClient); !ok {
		t.Fatal("NewDefaultGitClient() did not return *defaultGitClient")
	}
}

func TestDefaultGitClient_Open_Errors(t *testing.T) {
	t.Parallel()
	client := NewDefaultGitClient()

	if _, err := client.Open(t.Context(), nil); err == nil {
		t.Error("Expected error for nil config")
	}
	if _, err := client.Open(t.Context(), &OpenConfig{Path: t.TempDir()}); err == nil {
		t.Error("Expected error for directory that is not a repository")
	}
}

func TestDefaultGitClient_Commits(t *testing.T) {
	t.Parallel()

	client, repoInfo, ids := openTestRepo(t,
		TestCommit{Files: map[string]string{"README.md": "v1"}},
		TestCommit{Files: map[string]string{"README.md": "v2"}},
		TestCommit{Files: map[string]string{"feature.txt": "x"}, Branch: "feature"},
	)

	tests := []struct {
		name string
		opts LogOptions
		want []string
	}{
		{
			name: "all refs newest first",
			opts: LogOptions{},
			want: []string{ids[2], ids[1], ids[0]},
		},
		{
			name: "master only",
			opts: LogOptions{Ref: "master"},
			want: []string{ids[1], ids[0]},
		},
		{
			name: "since bound is inclusive",
			opts: LogOptions{Since: ptr(time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC))},
			want: []string{ids[2], ids[1]},
		},
		{
			name: "until bound is inclusive",
			opts: LogOptions{Until: ptr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))},
			want: []string{ids[0]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			commits, err := client.Commits(t.Context(), repoInfo, tt.opts)
			if err != nil {
				t.Fatalf("Commits() error = %v", err)
			}
			got := make([]string, len(commits))
			for i, c := range commits {
				got[i] = c.Hash.String()
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Commits() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultGitClient_Commits_UnknownRef(t *testing.T) {
	t.Parallel()

	client, repoInfo, _ := openTestRepo(t, TestCommit{Files: map[string]string{"a.txt": "a"}})

	_, err := client.Commits(t.Context(), repoInfo, LogOptions{Ref: "does-not-exist"})
	if !errors.Is(err, ErrRevisionNotFound) {
		t.Errorf("Expected ErrRevisionNotFound, got %v", err)
	}
}

func TestDefaultGitClient_BranchesAndTags(t *testing.T) {
	t.Parallel()

	client, repoInfo, ids := openTestRepo(t,
		TestCommit{Files: map[string]string{"a.txt": "a"}, Tag: "v1.0"},
		TestCommit{Files: map[string]string{"a.txt": "b"}, Tag: "v2.0", AnnotatedTag: true},
		TestCommit{Files: map[string]string{"b.txt": "b"}, Branch: "develop"},
	)

	branches, err := client.Branches(repoInfo)
	if err != nil {
		t.Fatalf("Branches() error = %v", err)
	}
	if len(branches) != 2 || branches[0].Name != "develop" || branches[1].Name != "master" {
		t.Fatalf("Branches() = %+v", branches)
	}
	if branches[0].HeadHash != ids[2] || branches[1].HeadHash != ids[1] {
		t.Errorf("unexpected branch heads: %+v", branches)
	}

	tags, err := client.Tags(repoInfo)
	if err != nil {
		t.Fatalf("Tags() error = %v", err)
	}
	want := []TagRef{{Name: "v1.0", CommitHash: ids[0]}, {Name: "v2.0", CommitHash: ids[1]}}
	if len(tags) != len(want) {
		t.Fatalf("Tags() = %+v, want %+v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("Tags()[%d] = %+v, want %+v", i, tags[i], want[i])
		}
	}
}

func TestDefaultGitClient_GetFileContent(t *testing.T) {
	t.Parallel()

	client, repoInfo, ids := openTestRepo(t,
		TestCommit{Files: map[string]string{"config/course.yaml": "name: v1"}},
		TestCommit{Files: map[string]string{"config/course.yaml": "name: v2"}},
	)

	tests := []struct {
		name    string
		rev     string
		path    string
		want    string
		wantErr error
	}{
		{name: "default branch", rev: "", path: "config/course.yaml", want: "name: v2"},
		{name: "by hash", rev: ids[0], path: "config/course.yaml", want: "name: v1"},
		{name: "missing file", rev: "master", path: "nope.txt", wantErr: ErrFileNotFound},
		{name: "missing branch", rev: "nope", path: "config/course.yaml", wantErr: ErrRevisionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			content, err := client.GetFileContent(repoInfo, tt.rev, tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("GetFileContent() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetFileContent() error = %v", err)
			}
			if string(content) != tt.want {
				t.Errorf("GetFileContent() = %q, want %q", content, tt.want)
			}
		})
	}
}

func TestDefaultGitClient_ListFiles(t *testing.T) {
	t.Parallel()

	client, repoInfo, _ := openTestRepo(t,
		TestCommit{Files: map[string]string{"b.txt": "b", "src/a.go": "package a"}},
	)

	files, err := client.ListFiles(repoInfo, "master")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if strings.Join(files, ",") != "b.txt,src/a.go" {
		t.Errorf("ListFiles() = %v", files)
	}
}

func TestDefaultGitClient_Diff(t *testing.T) {
	t.Parallel()

	client, repoInfo, ids := openTestRepo(t,
		TestCommit{Files: map[string]string{"keep.txt": "one\ntwo\n", "gone.txt": "bye\n"}},
		TestCommit{Files: map[string]string{"keep.txt": "one\nthree\n", "new.txt": "hi\n"}, Remove: []string{"gone.txt"}},
	)

	changes, err := client.Diff(t.Context(), repoInfo, ids[0], ids[1])
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}

	byPath := map[string]FileChange{}
	for _, c := range changes {
		byPath[c.NewPath] = c
	}
	if len(byPath) != 3 {
		t.Fatalf("Diff() returned %d changes: %+v", len(changes), changes)
	}
	if !byPath["new.txt"].NewFile {
		t.Error("new.txt should be marked as a new file")
	}
	if !byPath["gone.txt"].Deleted {
		t.Error("gone.txt should be marked as deleted")
	}
	patch := byPath["keep.txt"].Patch
	if !strings.Contains(patch, "-two") || !strings.Contains(patch, "+three") {
		t.Errorf("unexpected patch for keep.txt:\n%s", patch)
	}
}

func ptr[T any](v T) *T {
	return &v
}
