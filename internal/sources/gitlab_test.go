package sources_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/model"
	"github.com/uom-robota/robota-core/internal/sources"
)

const gitLabProjectPath = "/api/v4/projects/42"

func newGitLabAdapter(t *testing.T, handler http.Handler) sources.Adapter {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	adapter, err := sources.NewGitLabAdapter(config.DataSourceDescriptor{
		Name:    "gitlab_repo",
		Type:    config.SourceTypeGitLab,
		URL:     server.URL,
		Project: "42",
		Token:   "secret-token",
		Branch:  "master",
	})
	require.NoError(t, err)
	return adapter
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestGitLabAdapter_GetCommits(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(gitLabProjectPath+"/repository/commits", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "secret-token", r.Header.Get("Private-Token"))
		assert.Equal(t, "true", r.URL.Query().Get("all"))

		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, `[{"id": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "short_id": "bbbbbbbb",
				"author_name": "Bob", "author_email": "bob@example.com",
				"committed_date": "2024-01-01T09:00:00Z", "message": "Start", "parent_ids": []}]`)
			return
		}
		w.Header().Set("X-Next-Page", "2")
		writeJSON(w, `[{"id": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "short_id": "aaaaaaaa",
			"author_name": "Alice", "author_email": "alice@example.com",
			"authored_date": "2024-01-02T10:00:00Z", "committed_date": "2024-01-02T10:00:00Z",
			"message": "Add feature", "parent_ids": ["bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"],
			"web_url": "https://gitlab.example.com/c/aaaa"}]`)
	})

	repo := newGitLabAdapter(t, mux).(sources.CommitSource)

	commits, err := repo.GetCommits(t.Context(), sources.CommitQuery{})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "Alice", commits[0].Author.Name)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), commits[0].CommittedAt)
	assert.Equal(t, []string{"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}, commits[0].ParentHashes)
	assert.Equal(t, "https://gitlab.example.com/c/aaaa", commits[0].URL)
	assert.Equal(t, int32(2), requests.Load())

	// identical queries are served from memory and return independent copies
	commits[0].Message = "changed by caller"
	again, err := repo.GetCommits(t.Context(), sources.CommitQuery{})
	require.NoError(t, err)
	assert.Equal(t, "Add feature", again[0].Message)
	assert.Equal(t, int32(2), requests.Load())
}

func TestGitLabAdapter_GetCommitRepeatable(t *testing.T) {
	t.Parallel()

	const hash = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	mux := http.NewServeMux()
	mux.HandleFunc(gitLabProjectPath+"/repository/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, hash, r.URL.Query().Get("ref_name"))
		writeJSON(w, `[{"id": "`+hash+`", "short_id": "aaaaaaaa",
			"author_name": "Alice", "author_email": "alice@example.com",
			"authored_date": "2024-01-02T10:00:00Z", "committed_date": "2024-01-02T10:00:00Z",
			"message": "Add feature\n\nWith tests.", "parent_ids": ["bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"]}]`)
	})
	mux.HandleFunc(gitLabProjectPath+"/repository/commits/"+hash+"/diff", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[{"old_path": "calc.go", "new_path": "calc.go"}, {"new_path": "calc_test.go", "new_file": true}]`)
	})

	repo := newGitLabAdapter(t, mux).(sources.CommitSource)

	first, err := repo.GetCommit(t.Context(), hash)
	require.NoError(t, err)
	second, err := repo.GetCommit(t.Context(), hash)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second retrieval differs (-first +second):\n%s", diff)
	}
	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"calc.go", "calc_test.go"}, first.ChangedFiles)
	assert.Equal(t, "Add feature", first.Title())
}

func TestGitLabAdapter_GetEvents(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(gitLabProjectPath+"/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pushed", r.URL.Query().Get("action"))
		writeJSON(w, `[
			{"action_name": "deleted", "created_at": "2024-03-02T10:00:00.000Z",
			 "push_data": {"commit_count": 0, "ref_type": "tag", "ref": "lab2",
			  "commit_from": "cccccccc", "commit_to": null}},
			{"action_name": "pushed new", "created_at": "2024-03-01T10:00:00.000Z",
			 "push_data": {"commit_count": 0, "ref_type": "tag", "ref": "lab1",
			  "commit_from": null, "commit_to": "aaaaaaaa"}},
			{"action_name": "pushed to", "created_at": "2024-02-28T09:30:00.000Z",
			 "push_data": {"commit_count": 3, "ref_type": "branch", "ref": "master",
			  "commit_from": "99999999", "commit_to": "bbbbbbbb"}}
		]`)
	})

	events, err := newGitLabAdapter(t, mux).(sources.EventSource).GetEvents(t.Context())
	require.NoError(t, err)

	want := []model.Event{
		{CreatedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), Action: model.EventDeleted,
			RefType: "tag", RefName: "lab2", CommitHash: "cccccccc"},
		{CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Action: model.EventPushedNew,
			RefType: "tag", RefName: "lab1", CommitHash: "aaaaaaaa"},
		{CreatedAt: time.Date(2024, 2, 28, 9, 30, 0, 0, time.UTC), Action: model.EventPushedTo,
			RefType: "branch", RefName: "master", CommitHash: "bbbbbbbb", CommitCount: 3},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestGitLabAdapter_GetFile(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(gitLabProjectPath+"/repository/files/course.yaml/raw", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "master", r.URL.Query().Get("ref"))
		_, _ = w.Write([]byte("name: COMP101\n"))
	})
	mux.HandleFunc(gitLabProjectPath+"/repository/files/missing.yaml/raw", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, `{"message": "404 File Not Found"}`)
	})

	files := newGitLabAdapter(t, mux).(sources.FileSource)

	data, err := files.GetFile(t.Context(), "course.yaml")
	require.NoError(t, err)
	assert.Equal(t, "name: COMP101\n", string(data))

	_, err = files.GetFile(t.Context(), "missing.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, sources.ErrNotFound)
	assert.ErrorIs(t, err, sources.ErrTransport)
}

func TestGitLabAdapter_GetIssues(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(gitLabProjectPath+"/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "opened", r.URL.Query().Get("state"))
		assert.Equal(t, "Sprint 1", r.URL.Query().Get("milestone"))
		writeJSON(w, `[{"id": 100, "iid": 7, "title": "Fix login", "state": "opened",
			"author": {"username": "alice", "name": "Alice"},
			"assignees": [{"username": "bob", "name": "Bob"}],
			"labels": ["bug"], "milestone": {"title": "Sprint 1"},
			"created_at": "2024-02-01T09:00:00Z",
			"time_stats": {"time_estimate": 7200, "total_time_spent": 1800},
			"web_url": "https://gitlab.example.com/i/7"}]`)
	})
	mux.HandleFunc(gitLabProjectPath+"/issues/7/notes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[{"id": 2, "body": "Looking into it", "system": false,
			"author": {"username": "bob", "name": "Bob"},
			"created_at": "2024-02-03T09:00:00Z"}]`)
	})
	mux.HandleFunc(gitLabProjectPath+"/issues/7/resource_state_events", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[{"id": 3, "state": "reopened",
			"user": {"username": "alice", "name": "Alice"},
			"created_at": "2024-02-02T09:00:00Z"}]`)
	})

	tracker := newGitLabAdapter(t, mux).(sources.IssueSource)

	issues, err := tracker.GetIssues(t.Context(), sources.IssueQuery{State: model.StateOpen, Milestone: "Sprint 1"})
	require.NoError(t, err)
	require.Len(t, issues, 1)

	issue := issues[0]
	assert.Equal(t, 7, issue.Number)
	assert.Equal(t, model.StateOpen, issue.State)
	assert.True(t, issue.IsOpen())
	assert.Equal(t, "alice", issue.Author.Username)
	assert.Equal(t, []string{"bug"}, issue.Labels)
	assert.Equal(t, "Sprint 1", issue.Milestone)
	assert.Equal(t, 2*time.Hour, issue.TimeEstimate)
	assert.Equal(t, 30*time.Minute, issue.TimeSpent)

	require.Len(t, issue.Comments, 2)
	assert.True(t, issue.Comments[0].System, "state change happened first")
	assert.Equal(t, "reopened", issue.Comments[0].Body)
	assert.Equal(t, "Looking into it", issue.Comments[1].Body)
}

func TestGitLabAdapter_TransportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		wantKind sources.TransportErrorKind
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: sources.KindAuthentication},
		{name: "forbidden", status: http.StatusForbidden, wantKind: sources.KindAuthentication},
		{name: "rate limited", status: http.StatusTooManyRequests, wantKind: sources.KindRateLimit},
		{name: "server error", status: http.StatusInternalServerError, wantKind: sources.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var requests atomic.Int32
			adapter := newGitLabAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				requests.Add(1)
				w.WriteHeader(tt.status)
				writeJSON(w, fmt.Sprintf(`{"message": "%d"}`, tt.status))
			}))

			_, err := adapter.(sources.TeamSource).GetTeamMembers(t.Context())
			require.Error(t, err)
			assert.ErrorIs(t, err, sources.ErrTransport)
			assert.Equal(t, tt.wantKind, transportKind(err))
			assert.Equal(t, int32(1), requests.Load(), "requests must not be retried")
		})
	}
}

func TestGitLabAdapter_Connectivity(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	adapter, err := sources.NewGitLabAdapter(config.DataSourceDescriptor{
		Name: "gitlab_repo", URL: url, Project: "42", Token: "t", Branch: "master",
	})
	require.NoError(t, err, "construction must not contact the server")

	_, err = adapter.(sources.CommitSource).GetBranches(t.Context())
	require.Error(t, err)
	assert.Equal(t, sources.KindConnectivity, transportKind(err))
}

func TestGitLabAdapter_MergeRequestsAndWiki(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc(gitLabProjectPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"id": 42, "web_url": "https://gitlab.example.com/team/project"}`)
	})
	mux.HandleFunc(gitLabProjectPath+"/merge_requests", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[{"id": 500, "iid": 3, "title": "Add parser", "state": "merged",
			"source_branch": "parser", "target_branch": "master",
			"author": {"username": "carol", "name": "Carol"},
			"created_at": "2024-03-01T12:00:00Z", "merged_at": "2024-03-02T12:00:00Z"}]`)
	})
	mux.HandleFunc(gitLabProjectPath+"/merge_requests/3/commits", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[{"id": "cccccccccccccccccccccccccccccccccccccccc"}]`)
	})
	mux.HandleFunc(gitLabProjectPath+"/merge_requests/3/approvals", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `{"approved": true, "approved_by": [{"user": {"username": "dave"}}]}`)
	})
	mux.HandleFunc(gitLabProjectPath+"/merge_requests/3/notes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, `[]`)
	})
	mux.HandleFunc(gitLabProjectPath+"/wikis", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("with_content"))
		writeJSON(w, `[{"slug": "home", "title": "Home", "content": "Welcome", "format": "markdown"}]`)
	})

	adapter := newGitLabAdapter(t, mux)

	mrs, err := adapter.(sources.MergeRequestSource).GetMergeRequests(t.Context(), sources.MergeRequestQuery{})
	require.NoError(t, err)
	require.Len(t, mrs, 1)
	assert.Equal(t, model.StateMerged, mrs[0].State)
	assert.Equal(t, "parser", mrs[0].SourceBranch)
	assert.Equal(t, []string{"cccccccccccccccccccccccccccccccccccccccc"}, mrs[0].CommitHashes)
	assert.True(t, mrs[0].Approved)
	require.NotNil(t, mrs[0].MergedAt)

	pages, err := adapter.(sources.WikiSource).GetWikiPages(t.Context())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Welcome", pages[0].Content)
	assert.Equal(t, "https://gitlab.example.com/team/project/-/wikis/home", pages[0].URL)
}
