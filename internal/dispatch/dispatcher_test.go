package dispatch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/dispatch"
	"github.com/uom-robota/robota-core/internal/git"
	"github.com/uom-robota/robota-core/internal/sources"
	"github.com/uom-robota/robota-core/internal/sources/mocks"
)

func loadConfig(t *testing.T, yaml string, vars map[string]string) *config.Config {
	t.Helper()

	cfg, err := config.LoadConfig(config.WithConfigData([]byte(yaml)), config.WithVariables(vars))
	require.NoError(t, err)
	return cfg
}

// fileAdapter is a FileSource backed by a map
type fileAdapter struct {
	desc  config.DataSourceDescriptor
	files map[string]string
}

func (a *fileAdapter) Descriptor() config.DataSourceDescriptor { return a.desc }

func (a *fileAdapter) GetFile(_ context.Context, path string) ([]byte, error) {
	content, ok := a.files[path]
	if !ok {
		return nil, &sources.TransportError{Source: a.desc.Name, Operation: "get file", Kind: sources.KindNotFound}
	}
	return []byte(content), nil
}

func TestNew_IncompatibleSource(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, `
data_types:
  ci: course_gitlab
data_sources:
  course_gitlab:
    type: gitlab
    url: https://gitlab.example.com
    project: team/project
    token: secret
`, nil)

	_, err := dispatch.New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	var incompatible *config.IncompatibleSourceError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "ci", incompatible.DataType)
	assert.Equal(t, "gitlab", incompatible.SourceType)
	assert.Equal(t, []string{"jenkins"}, incompatible.Allowed)
}

func TestNew_UnknownDataTypeIgnored(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, `
data_types:
  marking_config: files
  lecture_slides: files
data_sources:
  files:
    type: local_path
    path: /srv/course
`, nil)

	d, err := dispatch.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"marking_config"}, d.Configured())
	assert.True(t, d.Has("marking_config"))
	assert.False(t, d.Has("lecture_slides"))

	_, err = d.Handle(t.Context(), "lecture_slides")
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()

	_, err := dispatch.New(nil)
	require.Error(t, err)
}

func TestDispatcher_AdapterBuiltOncePerSource(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, `
data_types:
  student_details: course_files
  ta_marks: course_files
  marking_config: course_files
data_sources:
  course_files:
    type: local_path
    path: /srv/course
`, nil)

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockAdapterFactory(ctrl)
	factory.EXPECT().
		CreateAdapter(gomock.Any()).
		DoAndReturn(func(desc config.DataSourceDescriptor) (sources.Adapter, error) {
			return &fileAdapter{desc: desc}, nil
		}).
		Times(1)

	d, err := dispatch.New(cfg, dispatch.WithFactory(factory))
	require.NoError(t, err)

	var wg sync.WaitGroup
	handles := make([]*dispatch.Handle, 12)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dataType := d.Configured()[i%3]
			h, err := d.Handle(context.Background(), dataType)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		require.NotNil(t, h)
		assert.Equal(t, "course_files", h.SourceName())
		assert.Equal(t, config.SourceTypeLocalPath, h.SourceType())
	}
}

func TestDispatcher_FactoryErrorNotCached(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, `
data_types:
  marking_config: files
data_sources:
  files:
    type: local_path
    path: /srv/course
`, nil)

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockAdapterFactory(ctrl)
	gomock.InOrder(
		factory.EXPECT().CreateAdapter(gomock.Any()).Return(nil, fmt.Errorf("disk on fire")),
		factory.EXPECT().CreateAdapter(gomock.Any()).DoAndReturn(
			func(desc config.DataSourceDescriptor) (sources.Adapter, error) {
				return &fileAdapter{desc: desc}, nil
			}),
	)

	d, err := dispatch.New(cfg, dispatch.WithFactory(factory))
	require.NoError(t, err)

	_, err = d.Handle(t.Context(), "marking_config")
	require.ErrorContains(t, err, "disk on fire")

	_, err = d.Handle(t.Context(), "marking_config")
	require.NoError(t, err)
}

func TestDispatcher_LocalRepositoryDefaultsToMaster(t *testing.T) {
	t.Parallel()

	dir, _ := git.CreateTestRepo(t,
		git.TestCommit{Files: map[string]string{"README.md": "hello"}},
		git.TestCommit{Files: map[string]string{"topic.txt": "wip"}, Branch: "topic"},
	)

	cfg := loadConfig(t, `
data_types:
  repository: working_copy
data_sources:
  working_copy:
    type: local_repository
    path: "{repo_dir}"
`, map[string]string{"repo_dir": dir})

	desc, ok := cfg.Sources.Get("working_copy")
	require.True(t, ok)
	assert.Equal(t, "master", desc.Branch)

	d, err := dispatch.New(cfg)
	require.NoError(t, err)
	h, err := d.Handle(t.Context(), "repository")
	require.NoError(t, err)

	files, err := h.ListFiles(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md"}, files, "the topic branch is not the configured branch")

	content, err := h.GetFile(t.Context(), "README.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestHandle_CapabilityNotSupported(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, `
data_types:
  repository: working_copy
  remote_provider: hub
data_sources:
  working_copy:
    type: local_repository
    path: /does/not/exist
  hub:
    type: github
    url: https://github.com
    project: uom/robota
    token: secret
`, nil)

	d, err := dispatch.New(cfg)
	require.NoError(t, err)

	repo, err := d.Handle(t.Context(), "repository")
	require.NoError(t, err)
	remote, err := d.Handle(t.Context(), "remote_provider")
	require.NoError(t, err)

	tests := []struct {
		name       string
		call       func(ctx context.Context) error
		dataType   string
		sourceType string
		operation  string
	}{
		{
			name: "repository has no merge requests",
			call: func(ctx context.Context) error {
				_, err := repo.GetMergeRequests(ctx, sources.MergeRequestQuery{})
				return err
			},
			dataType: "repository", sourceType: "local_repository", operation: "GetMergeRequests",
		},
		{
			name: "repository has no issues",
			call: func(ctx context.Context) error {
				_, err := repo.GetIssues(ctx, sources.IssueQuery{})
				return err
			},
			dataType: "repository", sourceType: "local_repository", operation: "GetIssues",
		},
		{
			name: "github has no wiki",
			call: func(ctx context.Context) error {
				_, err := remote.GetWikiPages(ctx)
				return err
			},
			dataType: "remote_provider", sourceType: "github", operation: "GetWikiPages",
		},
		{
			name: "remote provider does not expose commits",
			call: func(ctx context.Context) error {
				_, err := remote.GetCommits(ctx, sources.CommitQuery{})
				return err
			},
			dataType: "remote_provider", sourceType: "github", operation: "GetCommits",
		},
		{
			name: "local repository has no push events",
			call: func(ctx context.Context) error {
				_, err := repo.GetEvents(ctx)
				return err
			},
			dataType: "repository", sourceType: "local_repository", operation: "GetEvents",
		},
		{
			name: "tag at a deadline needs push events",
			call: func(ctx context.Context) error {
				_, err := repo.GetTag(ctx, "v1", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
				return err
			},
			dataType: "repository", sourceType: "local_repository", operation: "GetTag",
		},
		{
			name: "repository does not decode student lists",
			call: func(ctx context.Context) error {
				_, err := repo.GetStudentRecords(ctx, "students.csv")
				return err
			},
			dataType: "repository", sourceType: "local_repository", operation: "GetStudentRecords",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.call(t.Context())
			require.Error(t, err)
			assert.ErrorIs(t, err, sources.ErrCapabilityNotSupported)
			assert.NotErrorIs(t, err, sources.ErrTransport)
			assert.NotErrorIs(t, err, sources.ErrLocal)

			var unsupported *sources.CapabilityNotSupportedError
			require.ErrorAs(t, err, &unsupported)
			assert.Equal(t, tt.dataType, unsupported.DataType)
			assert.Equal(t, tt.sourceType, unsupported.SourceType)
			assert.Equal(t, tt.operation, unsupported.Operation)
		})
	}
}

func TestHandle_ReadConfigFilesAndStudents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	write("course.yaml", "course: COMP101\ntitle: ${course} marking\n")
	write("weights.csv", "tests,40\nreport,60\n")
	write("students.csv", "username,name,email,team\nalice,Alice A,alice@example.com,07\nbob,Bob B,bob@example.com,07\n")

	cfg := loadConfig(t, `
data_types:
  marking_config:
    data_source: course_files
    course_config_file: course.yaml
  student_details: course_files
data_sources:
  course_files:
    type: local_path
    path: "{dir}"
`, map[string]string{"dir": dir})

	d, err := dispatch.New(cfg)
	require.NoError(t, err)

	marking, err := d.Handle(t.Context(), "marking_config")
	require.NoError(t, err)

	configFile, ok := marking.Extra("course_config_file")
	require.True(t, ok)

	files, err := marking.ReadConfigFiles(t.Context(), configFile, "weights.csv", "absent.yaml")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, map[string]any{"course": "COMP101", "title": "COMP101 marking"}, files["course.yaml"])
	assert.Equal(t, map[string]string{"tests": "40", "report": "60"}, files["weights.csv"])
	assert.Nil(t, files["absent.yaml"])

	_, err = marking.GetStudentRecords(t.Context(), "students.csv")
	assert.ErrorIs(t, err, sources.ErrCapabilityNotSupported, "marking_config does not decode student lists")

	students, err := d.Handle(t.Context(), "student_details")
	require.NoError(t, err)
	records, err := students.GetStudentRecords(t.Context(), "students.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alice", records[0].Username)
	assert.Equal(t, "Alice A", records[0].DisplayName)
	assert.Equal(t, "07", records[1].Team)
}

func TestHandle_ReadConfigFilesUnsupportedType(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, `
data_types:
  marking_config: course_files
data_sources:
  course_files:
    type: local_path
    path: /srv/course
`, nil)

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockAdapterFactory(ctrl)
	factory.EXPECT().CreateAdapter(gomock.Any()).DoAndReturn(
		func(desc config.DataSourceDescriptor) (sources.Adapter, error) {
			return &fileAdapter{desc: desc, files: map[string]string{"notes.txt": "hi"}}, nil
		})

	d, err := dispatch.New(cfg, dispatch.WithFactory(factory))
	require.NoError(t, err)
	h, err := d.Handle(t.Context(), "marking_config")
	require.NoError(t, err)

	_, err = h.ReadConfigFiles(t.Context(), "notes.txt")
	assert.ErrorIs(t, err, config.ErrUnsupportedFileType)
}

func TestHandle_Cancelled(t *testing.T) {
	t.Parallel()

	cfg := loadConfig(t, `
data_types:
  marking_config: course_files
data_sources:
  course_files:
    type: local_path
    path: /srv/course
`, nil)

	d, err := dispatch.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = d.Handle(ctx, "marking_config")
	assert.ErrorIs(t, err, context.Canceled)
}
