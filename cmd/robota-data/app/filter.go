package app

import (
	"fmt"

	"github.com/uom-robota/robota-core/internal/filtering"
	"github.com/uom-robota/robota-core/internal/model"
)

// filterFlags select listed items by name and label
type filterFlags struct {
	include      []string
	exclude      []string
	label        []string
	excludeLabel []string
}

func (f *filterFlags) config() (filtering.Config, error) {
	cfg := filtering.Config{
		Names:  filtering.Rules{Include: f.include, Exclude: f.exclude},
		Labels: filtering.Rules{Include: f.label, Exclude: f.excludeLabel},
	}
	if err := cfg.Validate(); err != nil {
		return filtering.Config{}, err
	}
	return cfg, nil
}

func pathOf(p string) string { return p }

func issueTitle(i *model.Issue) string { return i.Title }

func issueLabels(i *model.Issue) []string { return i.Labels }

// applyFilters narrows a listing result. Items are matched by name, path or
// title; only issues carry labels.
func applyFilters(operation string, result any, cfg filtering.Config) (any, error) {
	if cfg.Empty() {
		return result, nil
	}

	svc := filtering.NewDefaultService()
	labeled := false
	switch list := result.(type) {
	case []string:
		result = filtering.Apply(svc, list, cfg, pathOf, nil)
	case []model.Branch:
		result = filtering.Apply(svc, list, cfg, func(b model.Branch) string { return b.Name }, nil)
	case []model.Tag:
		result = filtering.Apply(svc, list, cfg, func(t model.Tag) string { return t.Name }, nil)
	case []model.Event:
		result = filtering.Apply(svc, list, cfg, func(e model.Event) string { return e.RefName }, nil)
	case []model.Diff:
		result = filtering.Apply(svc, list, cfg, func(d model.Diff) string { return d.NewPath }, nil)
	case []*model.CIJob:
		result = filtering.Apply(svc, list, cfg, func(j *model.CIJob) string { return j.Name }, nil)
	case []model.TestResult:
		result = filtering.Apply(svc, list, cfg, func(r model.TestResult) string { return r.Name }, nil)
	case []model.WikiPage:
		result = filtering.Apply(svc, list, cfg, func(p model.WikiPage) string { return p.Path }, nil)
	case []*model.MergeRequest:
		result = filtering.Apply(svc, list, cfg, func(mr *model.MergeRequest) string { return mr.Title }, nil)
	case []*model.Issue:
		labeled = true
		result = filtering.Apply(svc, list, cfg, issueTitle, issueLabels)
	default:
		return nil, fmt.Errorf("operation %s does not support name or label filters", operation)
	}

	if !labeled && (len(cfg.Labels.Include) > 0 || len(cfg.Labels.Exclude) > 0) {
		return nil, fmt.Errorf("operation %s does not support label filters", operation)
	}
	return result, nil
}
