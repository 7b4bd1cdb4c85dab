// Package filtering narrows retrieved lists by name and label.
//
// Names are matched against glob patterns (gobwas/glob, so '*' also
// matches across '/'), labels by exact string. Both follow the same
// precedence rules:
//
//  1. If exclude patterns/labels are specified and match -> exclude (precedence)
//  2. If include patterns/labels are specified and match -> include
//  3. If include patterns/labels are specified but no match -> exclude
//  4. If only exclude patterns/labels specified and no match -> include
//  5. If no filters specified -> include (default behavior)
//
// An item is kept only if it passes BOTH the name and the label filter.
//
// # Usage Example
//
//	cfg := filtering.Config{
//		Names:  filtering.Rules{Include: []string{"exercise*/*"}, Exclude: []string{"*/scratch"}},
//		Labels: filtering.Rules{Exclude: []string{"wontfix"}},
//	}
//	jobs = filtering.Apply(filtering.NewDefaultService(), jobs, cfg,
//		func(j *model.CIJob) string { return j.Name }, nil)
package filtering
