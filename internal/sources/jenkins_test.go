package sources_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/model"
	"github.com/uom-robota/robota-core/internal/sources"
)

// jenkinsServer serves a COMP101/team01 folder holding one pipeline and a
// sub-folder with a second pipeline.
type jenkinsServer struct {
	*httptest.Server
	listings atomic.Int32
}

func newJenkinsServer(t *testing.T) *jenkinsServer {
	t.Helper()

	js := &jenkinsServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/job/COMP101/job/team01/api/json", func(w http.ResponseWriter, r *http.Request) {
		js.listings.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "marker" || pass != "api-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.True(t, strings.HasPrefix(r.URL.Query().Get("tree"), "jobs["))
		base := js.URL + "/job/COMP101/job/team01/"
		writeJSON(w, fmt.Sprintf(`{"jobs": [
			{"_class": "org.jenkinsci.plugins.workflow.job.WorkflowJob", "name": "build",
			 "fullName": "COMP101/team01/build", "url": "%[1]sjob/build/",
			 "lastBuild": {"number": 3}, "lastCompletedBuild": {"number": 2},
			 "lastSuccessfulBuild": {"number": 1},
			 "builds": [
				{"number": 3, "result": null, "building": true, "timestamp": 1704103200000,
				 "duration": 0, "url": "%[1]sjob/build/3/", "actions": []},
				{"number": 2, "result": "FAILURE", "building": false, "timestamp": 1704099600000,
				 "duration": 60000, "url": "%[1]sjob/build/2/",
				 "actions": [{}, {"_class": "hudson.plugins.git.util.BuildData",
				  "lastBuiltRevision": {"SHA1": "abc123", "branch": [{"name": "origin/master"}]}},
				  {"_class": "hudson.plugins.jacoco.JacocoBuildAction",
				  "instructionCoverage": {"covered": 75, "missed": 25, "total": 100, "percentageFloat": 75.0}}]},
				{"number": 1, "result": "SUCCESS", "building": false, "timestamp": 1704096000000,
				 "duration": 30000, "url": "%[1]sjob/build/1/", "actions": []}
			 ]},
			{"_class": "com.cloudbees.hudson.plugins.folder.Folder", "name": "exercises",
			 "fullName": "COMP101/team01/exercises", "url": "%[1]sjob/exercises/"}
		]}`, base))
	})
	mux.HandleFunc("/job/COMP101/job/team01/job/exercises/api/json", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, fmt.Sprintf(`{"jobs": [
			{"_class": "hudson.model.FreeStyleProject", "name": "ex1",
			 "fullName": "COMP101/team01/exercises/ex1", "url": "%sjob/COMP101/job/team01/job/exercises/job/ex1/",
			 "builds": [
				{"number": 2, "result": "FAILURE", "building": false, "timestamp": 1704099600000,
				 "duration": 1000, "actions": [{"_class": "com.sonyericsson.jenkins.plugins.bfa.model.FailureCauseBuildAction",
				  "foundFailureCauses": [{"name": "Connection time-out while accessing GitLab"}]}]},
				{"number": 1, "result": "ABORTED", "building": false, "timestamp": 1704096000000,
				 "duration": 1000, "actions": []}
			 ]}
		]}`, js.URL+"/"))
	})
	mux.HandleFunc("/job/COMP101/job/team01/job/build/lastCompletedBuild/testReport/api/json",
		func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, `{"suites": [{"name": "unit", "timestamp": "2024-01-01T09:00:00",
				"cases": [{"name": "testAdd", "status": "PASSED"}, {"name": "testSub", "status": "REGRESSION"}]}]}`)
		})
	mux.HandleFunc("/job/COMP101/job/team01/job/build/lastCompletedBuild/jacoco/uk.ac.man.calc/api/json",
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "instructionCoverage[covered,missed,total,percentageFloat]", r.URL.Query().Get("tree"))
			writeJSON(w, `{"instructionCoverage": {"covered": 40, "missed": 10, "total": 50, "percentageFloat": 80.0}}`)
		})
	mux.HandleFunc("/job/COMP101/job/team01/job/build/2/consoleText", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Started by user marker\nFinished: FAILURE\n"))
	})

	js.Server = httptest.NewServer(mux)
	t.Cleanup(js.Close)
	return js
}

func newJenkinsAdapter(t *testing.T, serverURL, token string) sources.CIBuildSource {
	t.Helper()

	adapter, err := sources.NewJenkinsAdapter(config.DataSourceDescriptor{
		Name:        "ci",
		Type:        config.SourceTypeJenkins,
		URL:         serverURL + "/",
		Username:    "marker",
		Token:       token,
		ProjectName: "COMP101",
		FolderName:  "team01",
	})
	require.NoError(t, err)
	return adapter.(sources.CIBuildSource)
}

func TestJenkinsAdapter_GetJobs(t *testing.T) {
	t.Parallel()

	server := newJenkinsServer(t)
	ci := newJenkinsAdapter(t, server.URL, "api-token")

	jobs, err := ci.GetJobs(t.Context())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "build", jobs[0].Name)
	assert.Equal(t, 3, jobs[0].LastBuildNumber)
	assert.Equal(t, 2, jobs[0].LastCompletedBuild)
	assert.Equal(t, 1, jobs[0].LastSuccessfulBuild)
	assert.Equal(t, "exercises/ex1", jobs[1].Name)
	assert.Equal(t, "ex1", jobs[1].ShortName)

	_, err = ci.GetJobs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(1), server.listings.Load(), "the job listing is fetched once")
}

func TestJenkinsAdapter_GetBuilds(t *testing.T) {
	t.Parallel()

	server := newJenkinsServer(t)
	ci := newJenkinsAdapter(t, server.URL, "api-token")

	builds, err := ci.GetBuilds(t.Context(), "build")
	require.NoError(t, err)
	require.Len(t, builds, 3)

	running, failed, passed := builds[0], builds[1], builds[2]
	assert.Equal(t, model.BuildRunning, running.Status)
	assert.Nil(t, running.FinishedAt)

	assert.Equal(t, model.BuildFailure, failed.Status)
	assert.Equal(t, "abc123", failed.CommitHash)
	assert.Equal(t, "master", failed.BranchName)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), failed.StartedAt)
	require.NotNil(t, failed.FinishedAt)
	assert.Equal(t, time.Minute, failed.FinishedAt.Sub(failed.StartedAt))

	require.NotNil(t, failed.InstructionCoverage)
	assert.Equal(t, model.Coverage{Covered: 75, Missed: 25, Total: 100, Percentage: 75}, *failed.InstructionCoverage)

	assert.Equal(t, model.BuildSuccess, passed.Status)
	assert.Nil(t, passed.InstructionCoverage)

	require.True(t, failed.Log.Available())
	log, err := failed.Log.Read(t.Context())
	require.NoError(t, err)
	assert.Contains(t, log, "Finished: FAILURE")

	nested, err := ci.GetBuilds(t.Context(), "exercises/ex1")
	require.NoError(t, err)
	require.Len(t, nested, 2)
	assert.Equal(t, model.BuildGitLabTimeout, nested[0].Status)
	assert.NotNil(t, nested[0].FinishedAt)
	assert.Equal(t, model.BuildAborted, nested[1].Status)
}

func TestJenkinsAdapter_CallersOwnResults(t *testing.T) {
	t.Parallel()

	server := newJenkinsServer(t)
	ci := newJenkinsAdapter(t, server.URL, "api-token")

	builds, err := ci.GetBuilds(t.Context(), "build")
	require.NoError(t, err)
	require.Len(t, builds, 3)
	builds[1].Status = model.BuildSuccess
	builds[1].CommitHash = "tampered"
	builds[1].InstructionCoverage.Covered = 0

	jobs, err := ci.GetJobs(t.Context())
	require.NoError(t, err)
	jobs[0].Name = "renamed"
	jobs[0].Builds = nil

	again, err := ci.GetBuilds(t.Context(), "build")
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.NotSame(t, builds[1], again[1])
	assert.Equal(t, model.BuildFailure, again[1].Status)
	assert.Equal(t, "abc123", again[1].CommitHash)
	assert.Equal(t, 75, again[1].InstructionCoverage.Covered)

	jobs, err = ci.GetJobs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "build", jobs[0].Name)
	assert.Len(t, jobs[0].Builds, 3)
	assert.Equal(t, int32(1), server.listings.Load())
}

func TestJenkinsAdapter_GetPackageCoverage(t *testing.T) {
	t.Parallel()

	server := newJenkinsServer(t)
	ci := newJenkinsAdapter(t, server.URL, "api-token")

	coverage, err := ci.GetPackageCoverage(t.Context(), "build", "uk.ac.man.calc")
	require.NoError(t, err)
	require.NotNil(t, coverage)
	assert.Equal(t, model.Coverage{Covered: 40, Missed: 10, Total: 50, Percentage: 80}, *coverage)

	// no report for the package
	coverage, err = ci.GetPackageCoverage(t.Context(), "build", "uk.ac.man.other")
	require.NoError(t, err)
	assert.Nil(t, coverage)

	_, err = ci.GetPackageCoverage(t.Context(), "no-such-job", "uk.ac.man.calc")
	assert.ErrorIs(t, err, sources.ErrNotFound)
}

func TestJenkinsAdapter_GetTestResults(t *testing.T) {
	t.Parallel()

	server := newJenkinsServer(t)
	ci := newJenkinsAdapter(t, server.URL, "api-token")

	results, err := ci.GetTestResults(t.Context(), "build")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "unit", results[0].Suite)
	assert.True(t, results[0].Passed())
	assert.False(t, results[1].Passed())
	require.NotNil(t, results[0].Timestamp)

	// the nested job has no test report
	results, err = ci.GetTestResults(t.Context(), "exercises/ex1")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestJenkinsAdapter_Errors(t *testing.T) {
	t.Parallel()

	server := newJenkinsServer(t)

	_, err := newJenkinsAdapter(t, server.URL, "api-token").GetBuilds(t.Context(), "no-such-job")
	require.Error(t, err)
	assert.ErrorIs(t, err, sources.ErrNotFound)
	assert.ErrorIs(t, err, sources.ErrTransport)
	var terr *sources.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "ci", terr.Source)
	assert.Equal(t, "get job", terr.Operation)
	assert.Equal(t, sources.KindNotFound, terr.Kind)

	_, err = newJenkinsAdapter(t, server.URL, "wrong-token").GetJobs(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, sources.ErrTransport)
	assert.Equal(t, sources.KindAuthentication, transportKind(err))
}
