package filtering

import (
	"fmt"
	"slices"
)

// LabelFilter handles label-based filtering using exact string matching
type LabelFilter interface {
	// ShouldInclude determines if an item with given labels should be included
	// Returns (shouldInclude bool, reason string)
	ShouldInclude(labels []string, include, exclude []string) (bool, string)
}

// DefaultLabelFilter implements label filtering using exact string matching
type DefaultLabelFilter struct{}

// NewDefaultLabelFilter creates a new DefaultLabelFilter
func NewDefaultLabelFilter() *DefaultLabelFilter {
	return &DefaultLabelFilter{}
}

// ShouldInclude applies the package precedence rules to one label set.
func (*DefaultLabelFilter) ShouldInclude(labels []string, include, exclude []string) (bool, string) {
	for _, label := range labels {
		if slices.Contains(exclude, label) {
			return false, fmt.Sprintf("excluded by label '%s'", label)
		}
	}

	if len(include) > 0 {
		for _, label := range labels {
			if slices.Contains(include, label) {
				return true, fmt.Sprintf("included by label '%s'", label)
			}
		}
		return false, fmt.Sprintf("no matching labels found in include list %v (labels: %v)", include, labels)
	}

	if len(exclude) > 0 {
		return true, fmt.Sprintf("no matching labels in exclude list %v (labels: %v)", exclude, labels)
	}
	return true, "no label filters specified"
}
