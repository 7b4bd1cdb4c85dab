package filtering

import (
	"errors"
	"fmt"
	"slices"

	"github.com/uom-robota/robota-core/internal/logger"
)

// Rules is an include/exclude pair
type Rules struct {
	Include []string
	Exclude []string
}

// empty reports whether the rules filter nothing
func (r Rules) empty() bool {
	return len(r.Include) == 0 && len(r.Exclude) == 0
}

// Config selects items by name patterns and labels
type Config struct {
	Names  Rules
	Labels Rules
}

// Empty reports whether cfg keeps every item.
func (c Config) Empty() bool {
	return c.Names.empty() && c.Labels.empty()
}

// Validate compiles every name pattern.
func (c Config) Validate() error {
	var errs []error
	for _, pattern := range slices.Concat(c.Names.Include, c.Names.Exclude) {
		if _, err := compilePattern(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid name pattern '%s': %w", pattern, err))
		}
	}
	return errors.Join(errs...)
}

// Service coordinates name and label filtering
type Service struct {
	nameFilter  NameFilter
	labelFilter LabelFilter
}

// NewDefaultService creates a Service with the default filter implementations
func NewDefaultService() *Service {
	return &Service{
		nameFilter:  NewGlobFilter(),
		labelFilter: NewDefaultLabelFilter(),
	}
}

// NewService creates a Service with custom filter implementations
func NewService(nameFilter NameFilter, labelFilter LabelFilter) *Service {
	return &Service{
		nameFilter:  nameFilter,
		labelFilter: labelFilter,
	}
}

// ShouldInclude reports whether an item with this name and labels passes
// both filters.
func (s *Service) ShouldInclude(name string, labels []string, cfg Config) bool {
	include, reason := s.nameFilter.ShouldInclude(name, cfg.Names.Include, cfg.Names.Exclude)
	if !include {
		logger.Debugf("Filtered out %s: %s", name, reason)
		return false
	}
	if cfg.Labels.empty() {
		return true
	}
	include, reason = s.labelFilter.ShouldInclude(labels, cfg.Labels.Include, cfg.Labels.Exclude)
	if !include {
		logger.Debugf("Filtered out %s: %s", name, reason)
	}
	return include
}

// Apply returns the items of list that pass cfg, in order. labels may be
// nil for items without labels. An empty cfg returns list unchanged.
func Apply[T any](s *Service, list []T, cfg Config, name func(T) string, labels func(T) []string) []T {
	if cfg.Empty() {
		return list
	}

	kept := make([]T, 0, len(list))
	for _, item := range list {
		var itemLabels []string
		if labels != nil {
			itemLabels = labels(item)
		}
		if s.ShouldInclude(name(item), itemLabels, cfg) {
			kept = append(kept, item)
		}
	}
	logger.Debugf("Filtering kept %d of %d items", len(kept), len(list))
	return kept
}
