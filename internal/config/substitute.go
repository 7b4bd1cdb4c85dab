package config

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// variablePattern matches {name} tokens. Names are identifier-like so that
// literal braces in free text (JSON snippets, regexes) are left untouched.
var variablePattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Substitute returns a deep copy of tree with every {name} token inside a
// string leaf replaced by vars[name]. Mapping keys and non-string scalars
// are never rewritten, and ${name} tokens are left for file-level
// processing. Replaced text is not rescanned.
func Substitute(tree any, vars map[string]string) (any, error) {
	return substituteNode(tree, vars, "")
}

// SubstituteString applies the same token replacement to a single string.
func SubstituteString(s string, vars map[string]string) (string, error) {
	return substituteLeaf(s, vars, "")
}

// Variables lists the distinct variable names referenced by tree, sorted.
func Variables(tree any) []string {
	seen := map[string]struct{}{}
	collectVariables(tree, seen)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func substituteNode(node any, vars map[string]string, path string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		// sorted so the first reported failure is stable
		for _, key := range sortedKeys(v) {
			child, err := substituteNode(v[key], vars, joinPath(path, key))
			if err != nil {
				return nil, err
			}
			out[key] = child
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			child, err := substituteNode(item, vars, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	case string:
		return substituteLeaf(v, vars, path)
	default:
		return v, nil
	}
}

func substituteLeaf(s string, vars map[string]string, path string) (string, error) {
	matches := variablePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && s[start-1] == '$' {
			continue
		}
		name := s[m[2]:m[3]]
		value, ok := vars[name]
		if !ok {
			return "", &MissingSubstitutionError{Variable: name, Path: path}
		}
		b.WriteString(s[last:start])
		b.WriteString(value)
		last = end
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func collectVariables(node any, seen map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		for _, child := range v {
			collectVariables(child, seen)
		}
	case []any:
		for _, child := range v {
			collectVariables(child, seen)
		}
	case string:
		for _, m := range variablePattern.FindAllStringSubmatchIndex(v, -1) {
			if m[0] > 0 && v[m[0]-1] == '$' {
				continue
			}
			seen[v[m[2]:m[3]]] = struct{}{}
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
