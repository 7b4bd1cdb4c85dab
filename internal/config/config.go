// Package config loads robota data source configuration: the data_types
// bindings, the data_sources descriptor table and the {variable}
// substitution applied between the two.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix is the prefix for environment variables read by the CLI
	EnvPrefix = "ROBOTA"

	// DataSourceKey names the source a data type is bound to
	DataSourceKey = "data_source"

	// DataTypesKey is the top-level section binding data types to sources
	DataTypesKey = "data_types"

	// DataSourcesKey is the top-level section describing data sources
	DataSourcesKey = "data_sources"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
	data []byte
	vars map[string]string
}

// WithConfigPath loads the configuration from a YAML file.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks before validating the path.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithConfigData loads the configuration from in-memory YAML.
func WithConfigData(data []byte) Option {
	return func(cfg *loaderConfig) error {
		if len(data) == 0 {
			return fmt.Errorf("configuration data is empty")
		}
		cfg.data = data
		return nil
	}
}

// WithVariables supplies values for {variable} tokens. Later calls add to
// and override earlier ones.
func WithVariables(vars map[string]string) Option {
	return func(cfg *loaderConfig) error {
		if cfg.vars == nil {
			cfg.vars = make(map[string]string, len(vars))
		}
		for k, v := range vars {
			cfg.vars[k] = v
		}
		return nil
	}
}

// DataTypeBinding binds a logical data type to a named data source.
type DataTypeBinding struct {
	// DataType is the key under data_types, e.g. "repository"
	DataType string
	// Source is the data source name the type reads from
	Source string
	// Options holds the remaining keys of the data type section,
	// e.g. course_config_file for marking_config
	Options map[string]string
}

// Config is a fully substituted and validated configuration.
type Config struct {
	// Sources is the immutable descriptor table built from data_sources
	Sources *DescriptorTable
	// DataTypes maps each configured data type to its binding
	DataTypes map[string]DataTypeBinding
}

// DataTypeNames returns the configured data types, sorted.
func (c *Config) DataTypeNames() []string {
	names := make([]string, 0, len(c.DataTypes))
	for name := range c.DataTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Template is a parsed configuration that may still contain {variable}
// tokens. One template can be resolved many times, e.g. once per team.
type Template struct {
	tree map[string]any
}

// ParseTemplate parses YAML configuration text without substituting it.
func ParseTemplate(data []byte) (*Template, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return &Template{tree: tree}, nil
}

// LoadTemplate reads a template using the given options. Variables passed
// through WithVariables are ignored here; pass them to Resolve.
func LoadTemplate(opts ...Option) (*Template, error) {
	loaderCfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return loaderCfg.template()
}

// Variables lists the variable names the template references.
func (t *Template) Variables() []string {
	return Variables(t.tree)
}

// Resolve substitutes vars into the template and validates the result.
// The template itself is left untouched.
func (t *Template) Resolve(vars map[string]string) (*Config, error) {
	resolved, err := Substitute(t.tree, vars)
	if err != nil {
		return nil, err
	}
	return build(resolved.(map[string]any))
}

// LoadConfig reads, substitutes and validates a configuration.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	tmpl, err := loaderCfg.template()
	if err != nil {
		return nil, err
	}

	cfg, err := tmpl.Resolve(loaderCfg.vars)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyOptions(opts []Option) (*loaderConfig, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}
	if loaderCfg.path == "" && loaderCfg.data == nil {
		return nil, fmt.Errorf("path is required")
	}
	return loaderCfg, nil
}

func (l *loaderConfig) template() (*Template, error) {
	data := l.data
	if data == nil {
		var err error
		data, err = os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return ParseTemplate(data)
}

func build(tree map[string]any) (*Config, error) {
	sources, err := section(tree, DataSourcesKey)
	if err != nil {
		return nil, err
	}
	types, err := section(tree, DataTypesKey)
	if err != nil {
		return nil, err
	}

	table, err := NewDescriptorTable(sources)
	if err != nil {
		return nil, err
	}

	bindings := make(map[string]DataTypeBinding, len(types))
	for _, dataType := range sortedKeys(types) {
		binding, err := newBinding(dataType, types[dataType])
		if err != nil {
			return nil, err
		}
		if _, ok := table.Get(binding.Source); !ok {
			return nil, &MissingConfigKeyError{Section: DataSourcesKey, Key: binding.Source}
		}
		bindings[dataType] = binding
	}

	return &Config{Sources: table, DataTypes: bindings}, nil
}

func section(tree map[string]any, name string) (map[string]any, error) {
	raw, ok := tree[name]
	if !ok || raw == nil {
		return nil, &MissingConfigKeyError{Key: name}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &InvalidConfigValueError{Key: name, Reason: "must be a mapping"}
	}
	return m, nil
}

// newBinding accepts either `type: source_name` or a mapping with a
// data_source key plus type-specific options.
func newBinding(dataType string, raw any) (DataTypeBinding, error) {
	sectionName := DataTypesKey + "." + dataType
	binding := DataTypeBinding{DataType: dataType}

	switch v := raw.(type) {
	case string:
		binding.Source = v
	case map[string]any:
		for _, key := range sortedKeys(v) {
			s, err := scalarString(v[key])
			if err != nil {
				return DataTypeBinding{}, &InvalidConfigValueError{Section: sectionName, Key: key, Reason: err.Error()}
			}
			if key == DataSourceKey {
				binding.Source = s
				continue
			}
			if binding.Options == nil {
				binding.Options = map[string]string{}
			}
			binding.Options[key] = s
		}
	case nil:
	default:
		return DataTypeBinding{}, &InvalidConfigValueError{Section: DataTypesKey, Key: dataType,
			Reason: "must be a source name or a mapping"}
	}

	if binding.Source == "" {
		return DataTypeBinding{}, &MissingConfigKeyError{Section: sectionName, Key: DataSourceKey}
	}
	return binding, nil
}
