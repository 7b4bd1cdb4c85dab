package config

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// SourceTypeLocalPath reads files below a local directory
	SourceTypeLocalPath = "local_path"

	// SourceTypeGitLab talks to a GitLab instance over its REST API
	SourceTypeGitLab = "gitlab"

	// SourceTypeGitHub talks to github.com or a GitHub Enterprise server
	SourceTypeGitHub = "github"

	// SourceTypeLocalRepository reads a git working copy on disk
	SourceTypeLocalRepository = "local_repository"

	// SourceTypeJenkins reads build results from a Jenkins folder
	SourceTypeJenkins = "jenkins"

	// SourceTypeBenchmark reads attendance from the Benchmark student records service
	SourceTypeBenchmark = "benchmark"
)

// DefaultBranch is applied to gitlab, github and local_repository sources
// that do not name a branch.
const DefaultBranch = "master"

// sourceRule lists the keys a source type requires and whether it takes a branch.
type sourceRule struct {
	required  []string
	hasBranch bool
}

var sourceRules = map[string]sourceRule{
	SourceTypeLocalPath:       {required: []string{"path"}},
	SourceTypeGitLab:          {required: []string{"url", "project", "token"}, hasBranch: true},
	SourceTypeGitHub:          {required: []string{"url", "project", "token"}, hasBranch: true},
	SourceTypeLocalRepository: {required: []string{"path"}, hasBranch: true},
	SourceTypeJenkins:         {required: []string{"url", "username", "token", "project_name", "folder_name"}},
	SourceTypeBenchmark:       {required: []string{"url", "token"}},
}

// SourceTypes returns the recognised source types, sorted.
func SourceTypes() []string {
	types := make([]string, 0, len(sourceRules))
	for t := range sourceRules {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DataSourceDescriptor is the resolved settings of one named data source.
// Adapters are constructed from a descriptor alone.
type DataSourceDescriptor struct {
	// Name is the user-chosen key under data_sources
	Name string
	// Type is one of the SourceType constants
	Type string

	URL     string
	Project string
	Token   string
	// Branch is defaulted to DefaultBranch for source types that take one
	Branch string
	// Path is a local directory (local_path) or working copy (local_repository)
	Path string

	// Jenkins settings
	Username    string
	ProjectName string
	FolderName  string

	// Extra holds any keys not listed above, stringified
	Extra map[string]string
}

// Get returns an extra key's value.
func (d DataSourceDescriptor) Get(key string) (string, bool) {
	v, ok := d.Extra[key]
	return v, ok
}

func (d DataSourceDescriptor) clone() DataSourceDescriptor {
	out := d
	if d.Extra != nil {
		out.Extra = make(map[string]string, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// String hides the token.
func (d DataSourceDescriptor) String() string {
	return fmt.Sprintf("%s(%s)", d.Name, d.Type)
}

// DescriptorTable maps source names to descriptors. It has no mutators and
// is safe for concurrent reads.
type DescriptorTable struct {
	entries map[string]DataSourceDescriptor
}

// NewDescriptorTable validates the substituted data_sources section. Entries
// are processed in name order, so the reported error is deterministic.
func NewDescriptorTable(sources map[string]any) (*DescriptorTable, error) {
	table := &DescriptorTable{entries: make(map[string]DataSourceDescriptor, len(sources))}

	for _, name := range sortedKeys(sources) {
		section := DataSourcesKey + "." + name
		raw, ok := sources[name].(map[string]any)
		if !ok {
			return nil, &InvalidConfigValueError{Section: DataSourcesKey, Key: name, Reason: "must be a mapping"}
		}

		desc, err := newDescriptor(name, section, raw)
		if err != nil {
			return nil, err
		}
		table.entries[name] = desc
	}

	return table, nil
}

func newDescriptor(name, section string, raw map[string]any) (DataSourceDescriptor, error) {
	values := make(map[string]string, len(raw))
	for _, key := range sortedKeys(raw) {
		s, err := scalarString(raw[key])
		if err != nil {
			return DataSourceDescriptor{}, &InvalidConfigValueError{Section: section, Key: key, Reason: err.Error()}
		}
		values[key] = s
	}

	sourceType := values["type"]
	if sourceType == "" {
		return DataSourceDescriptor{}, &MissingConfigKeyError{Section: section, Key: "type"}
	}
	rule, ok := sourceRules[sourceType]
	if !ok {
		return DataSourceDescriptor{}, &UnknownSourceTypeError{Source: name, Type: sourceType}
	}

	for _, key := range rule.required {
		if strings.TrimSpace(values[key]) == "" {
			return DataSourceDescriptor{}, &MissingConfigKeyError{Section: section, Key: key}
		}
	}

	if rule.hasBranch && values["branch"] == "" {
		values["branch"] = DefaultBranch
	}

	desc := DataSourceDescriptor{
		Name:        name,
		Type:        sourceType,
		URL:         values["url"],
		Project:     values["project"],
		Token:       values["token"],
		Branch:      values["branch"],
		Path:        values["path"],
		Username:    values["username"],
		ProjectName: values["project_name"],
		FolderName:  values["folder_name"],
	}

	for key, value := range values {
		switch key {
		case "type", "url", "project", "token", "branch", "path", "username", "project_name", "folder_name":
			continue
		}
		if desc.Extra == nil {
			desc.Extra = map[string]string{}
		}
		desc.Extra[key] = value
	}

	return desc, nil
}

// Get returns a copy of the named descriptor.
func (t *DescriptorTable) Get(name string) (DataSourceDescriptor, bool) {
	d, ok := t.entries[name]
	if !ok {
		return DataSourceDescriptor{}, false
	}
	return d.clone(), true
}

// Names returns all source names, sorted.
func (t *DescriptorTable) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of descriptors.
func (t *DescriptorTable) Len() int {
	return len(t.entries)
}

// scalarString stringifies YAML scalars. Nested structures are rejected.
func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case map[string]any, []any:
		return "", fmt.Errorf("must be a scalar value")
	default:
		return fmt.Sprint(x), nil
	}
}
