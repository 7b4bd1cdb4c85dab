package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/uom-robota/robota-core/internal/dispatch"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/sources"
)

// fetchAllResult is the outcome of the default operation of one data type
type fetchAllResult struct {
	DataType  string `json:"data_type"`
	Source    string `json:"source"`
	Operation string `json:"operation"`
	Count     int    `json:"count"`
	Skipped   string `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// countFunc runs the default operation of a data type and counts the items
type countFunc func(ctx context.Context, h *dispatch.Handle) (string, int, error)

var defaultOperations = map[string]countFunc{
	dispatch.DataTypeRepository: func(ctx context.Context, h *dispatch.Handle) (string, int, error) {
		commits, err := h.GetCommits(ctx, sources.CommitQuery{})
		return "commits", len(commits), err
	},
	dispatch.DataTypeIssues: func(ctx context.Context, h *dispatch.Handle) (string, int, error) {
		issues, err := h.GetIssues(ctx, sources.IssueQuery{})
		return "issues", len(issues), err
	},
	dispatch.DataTypeCI: func(ctx context.Context, h *dispatch.Handle) (string, int, error) {
		jobs, err := h.GetJobs(ctx)
		return "jobs", len(jobs), err
	},
	dispatch.DataTypeRemoteProvider: func(ctx context.Context, h *dispatch.Handle) (string, int, error) {
		mrs, err := h.GetMergeRequests(ctx, sources.MergeRequestQuery{})
		return "merge-requests", len(mrs), err
	},
	dispatch.DataTypeAttendance: func(ctx context.Context, h *dispatch.Handle) (string, int, error) {
		records, err := h.GetAttendance(ctx)
		return "attendance", len(records), err
	},
	dispatch.DataTypeMarkingConfig: func(ctx context.Context, h *dispatch.Handle) (string, int, error) {
		name, ok := h.Extra("course_config_file")
		if !ok {
			return "config-files", 0, errNoDefault
		}
		files, err := h.ReadConfigFiles(ctx, strings.Split(name, ",")...)
		return "config-files", len(files), err
	},
	dispatch.DataTypeStudentDetails: countStudents,
	dispatch.DataTypeStudentEmails:  countStudents,
	dispatch.DataTypeTAMarks:        countStudents,
}

// errNoDefault marks data types without enough options to fetch anything
var errNoDefault = errors.New("no file configured")

func countStudents(ctx context.Context, h *dispatch.Handle) (string, int, error) {
	path, ok := h.Extra("file")
	if !ok {
		return "students", 0, errNoDefault
	}
	records, err := h.GetStudentRecords(ctx, path)
	return "students", len(records), err
}

func newFetchAllCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch-all",
		Short: "Run the default operation of every configured data type",
		Long: `Run the default listing operation of every configured data type and
print how many items each returned. Data types bound to the same source run
one after another; different sources are queried concurrently.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(cmd *cobra.Command, _ []string) error {
			failFast, err := cmd.Flags().GetBool("fail-fast")
			if err != nil {
				return err
			}
			return runFetchAll(cmd, opts, failFast)
		}),
	}
	cmd.Flags().Bool("fail-fast", false, "Stop at the first failing data type")
	return cmd
}

func runFetchAll(cmd *cobra.Command, opts *rootOptions, failFast bool) error {
	d, err := opts.dispatcher()
	if err != nil {
		return err
	}

	// one group per source so an adapter is never called concurrently
	var order []string
	groups := map[string][]string{}
	for _, dataType := range d.Configured() {
		desc, _ := d.Source(dataType)
		if _, ok := groups[desc.Name]; !ok {
			order = append(order, desc.Name)
		}
		groups[desc.Name] = append(groups[desc.Name], dataType)
	}

	var (
		mu      sync.Mutex
		results = make(map[string]fetchAllResult, len(d.Configured()))
	)
	g, ctx := errgroup.WithContext(cmd.Context())
	for _, source := range order {
		dataTypes := groups[source]
		g.Go(func() error {
			for _, dataType := range dataTypes {
				res, err := fetchDefault(ctx, d, dataType)
				mu.Lock()
				results[dataType] = res
				mu.Unlock()
				if err != nil && failFast {
					return fmt.Errorf("%s: %w", dataType, err)
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
			return nil
		})
	}
	waitErr := g.Wait()

	out := make([]fetchAllResult, 0, len(results))
	failed := 0
	for _, dataType := range d.Configured() {
		res, ok := results[dataType]
		if !ok {
			continue
		}
		if res.Error != "" {
			failed++
		}
		out = append(out, res)
	}
	if err := writeResult(cmd.OutOrStdout(), out); err != nil {
		return err
	}

	if waitErr != nil {
		return waitErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d data types failed", failed, len(out))
	}
	return nil
}

func fetchDefault(ctx context.Context, d *dispatch.Dispatcher, dataType string) (fetchAllResult, error) {
	desc, _ := d.Source(dataType)
	res := fetchAllResult{DataType: dataType, Source: desc.Name}

	run, ok := defaultOperations[dataType]
	if !ok {
		res.Skipped = "no default operation"
		return res, nil
	}

	h, err := d.Handle(ctx, dataType)
	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	res.Operation, res.Count, err = run(ctx, h)
	switch {
	case errors.Is(err, errNoDefault):
		res.Skipped = err.Error()
		return res, nil
	case err != nil:
		logger.Warnf("Fetching %s from %s failed: %v", dataType, desc.Name, err)
		res.Error = err.Error()
		return res, err
	}
	logger.Debugf("Fetched %d items for %s from %s", res.Count, dataType, desc.Name)
	return res, nil
}
