package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration matches every error raised while loading, substituting
// or validating configuration. These are detected before any external call.
var ErrConfiguration = errors.New("configuration error")

// UnknownSourceTypeError reports a data source whose type is not recognised.
type UnknownSourceTypeError struct {
	Source string
	Type   string
}

func (e *UnknownSourceTypeError) Error() string {
	return fmt.Sprintf("data_sources.%s: unknown source type %q (expected one of %s)",
		e.Source, e.Type, strings.Join(SourceTypes(), ", "))
}

// Is reports whether target is ErrConfiguration.
func (*UnknownSourceTypeError) Is(target error) bool { return target == ErrConfiguration }

// MissingConfigKeyError reports a required key that is absent or empty.
type MissingConfigKeyError struct {
	// Section is the dotted path of the enclosing section, e.g. "data_sources.ci".
	Section string
	Key     string
}

func (e *MissingConfigKeyError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("%s is required", e.Key)
	}
	return fmt.Sprintf("%s: %s is required", e.Section, e.Key)
}

// Is reports whether target is ErrConfiguration.
func (*MissingConfigKeyError) Is(target error) bool { return target == ErrConfiguration }

// IncompatibleSourceError reports a data type bound to a source whose type
// cannot serve it.
type IncompatibleSourceError struct {
	DataType   string
	Source     string
	SourceType string
	Allowed    []string
}

func (e *IncompatibleSourceError) Error() string {
	return fmt.Sprintf("data type %q cannot use source %q of type %q (allowed: %s)",
		e.DataType, e.Source, e.SourceType, strings.Join(e.Allowed, ", "))
}

// Is reports whether target is ErrConfiguration.
func (*IncompatibleSourceError) Is(target error) bool { return target == ErrConfiguration }

// MissingSubstitutionError reports a {variable} token with no value supplied.
type MissingSubstitutionError struct {
	Variable string
	// Path locates the string leaf holding the token, e.g. "data_sources.repo.project".
	Path string
}

func (e *MissingSubstitutionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("no value supplied for variable {%s}", e.Variable)
	}
	return fmt.Sprintf("%s: no value supplied for variable {%s}", e.Path, e.Variable)
}

// Is reports whether target is ErrConfiguration.
func (*MissingSubstitutionError) Is(target error) bool { return target == ErrConfiguration }

// InvalidConfigValueError reports a key whose value has the wrong shape.
type InvalidConfigValueError struct {
	Section string
	Key     string
	Reason  string
}

func (e *InvalidConfigValueError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("%s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Section, e.Key, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (*InvalidConfigValueError) Is(target error) bool { return target == ErrConfiguration }
