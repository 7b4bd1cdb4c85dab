package config

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/uom-robota/robota-core/internal/model"
)

// ErrUnsupportedFileType is returned for config files that are not YAML, JSON or CSV.
var ErrUnsupportedFileType = errors.New("unsupported config file type")

// rootKeyPattern matches ${key} references to root-level scalars.
var rootKeyPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// ParseConfigFile decodes a course config file fetched from a FileSource.
// YAML and JSON files yield a tree with ${key} references resolved. JSON may
// carry comments and trailing commas. CSV files yield a map of first column
// to second column.
func ParseConfigFile(name string, data []byte) (any, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse YAML file %s: %w", name, err)
		}
		return ProcessYAML(tree), nil
	case ".json":
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON file %s: %w", name, err)
		}
		var tree any
		if err := json.Unmarshal(std, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse JSON file %s: %w", name, err)
		}
		return ProcessYAML(tree), nil
	case ".csv":
		pairs, err := ReadCSVPairs(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV file %s: %w", name, err)
		}
		return pairs, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, name)
	}
}

// ProcessYAML replaces ${key} in nested strings with the value of the
// root-level scalar key. Unknown keys are left as written. Non-mapping
// documents are returned unchanged.
func ProcessYAML(tree any) any {
	root, ok := tree.(map[string]any)
	if !ok {
		return tree
	}

	scalars := map[string]string{}
	for key, value := range root {
		switch value.(type) {
		case map[string]any, []any:
		default:
			scalars[key] = fmt.Sprint(value)
		}
	}

	out := make(map[string]any, len(root))
	for key, value := range root {
		out[key] = expandRootKeys(value, scalars)
	}
	return out
}

func expandRootKeys(node any, scalars map[string]string) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = expandRootKeys(child, scalars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = expandRootKeys(child, scalars)
		}
		return out
	case string:
		return rootKeyPattern.ReplaceAllStringFunc(v, func(token string) string {
			name := token[2 : len(token)-1]
			if value, ok := scalars[name]; ok {
				return value
			}
			return token
		})
	default:
		return v
	}
}

// ReadCSVPairs parses a two column CSV file. Blank rows are skipped and later
// rows override earlier ones with the same key.
func ReadCSVPairs(data []byte) (map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	pairs := map[string]string{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}
		if len(row) < 2 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected two columns, got %d", line, len(row))
		}
		pairs[row[0]] = row[1]
	}
	return pairs, nil
}

// studentColumns maps accepted header spellings to record fields.
var studentColumns = map[string]string{
	"username":     "username",
	"user":         "username",
	"login":        "username",
	"name":         "name",
	"display_name": "name",
	"full_name":    "name",
	"email":        "email",
	"student_id":   "student_id",
	"id":           "student_id",
	"team":         "team",
	"group":        "team",
}

// DecodeStudentRecords decodes a student list. CSV files need a header row
// naming at least a username column. YAML files hold a list of mappings
// using the same keys.
func DecodeStudentRecords(name string, data []byte) ([]model.StudentRecord, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return decodeStudentCSV(name, data)
	case ".yaml", ".yml":
		return decodeStudentYAML(name, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, name)
	}
}

func decodeStudentCSV(name string, data []byte) ([]model.StudentRecord, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV file %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := make([]string, len(rows[0]))
	hasUsername := false
	for i, header := range rows[0] {
		field := studentColumns[strings.ToLower(strings.TrimSpace(header))]
		columns[i] = field
		hasUsername = hasUsername || field == "username"
	}
	if !hasUsername {
		return nil, fmt.Errorf("%s: header row must contain a username column", name)
	}

	records := make([]model.StudentRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		fields := map[string]string{}
		for i, value := range row {
			if columns[i] != "" {
				fields[columns[i]] = strings.TrimSpace(value)
			}
		}
		if fields["username"] == "" {
			continue
		}
		records = append(records, studentRecord(fields))
	}
	return records, nil
}

func decodeStudentYAML(name string, data []byte) ([]model.StudentRecord, error) {
	var entries []map[string]any
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse YAML file %s: %w", name, err)
	}

	records := make([]model.StudentRecord, 0, len(entries))
	for _, entry := range entries {
		fields := map[string]string{}
		for key, value := range entry {
			if field, ok := studentColumns[strings.ToLower(key)]; ok {
				fields[field] = strings.TrimSpace(fmt.Sprint(value))
			}
		}
		if fields["username"] == "" {
			continue
		}
		records = append(records, studentRecord(fields))
	}
	return records, nil
}

func studentRecord(fields map[string]string) model.StudentRecord {
	return model.StudentRecord{
		Username:    fields["username"],
		DisplayName: fields["name"],
		Email:       fields["email"],
		StudentID:   fields["student_id"],
		Team:        fields["team"],
	}
}
