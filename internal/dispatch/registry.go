// Package dispatch routes requests for logical data types to the adapter
// of the data source each type is bound to.
//
// The registry below fixes, per data type, which source types may serve it
// and which capabilities callers may use through it. A Dispatcher validates
// a resolved configuration against the registry once and then hands out
// Handles whose methods either reach the adapter or fail with
// *sources.CapabilityNotSupportedError.
package dispatch

import (
	"slices"
	"sort"

	"github.com/uom-robota/robota-core/internal/config"
)

// Data types understood by the dispatcher.
const (
	DataTypeRepository     = "repository"
	DataTypeIssues         = "issues"
	DataTypeCI             = "ci"
	DataTypeRemoteProvider = "remote_provider"
	DataTypeMarkingConfig  = "marking_config"
	DataTypeAttendance     = "attendance"
	DataTypeStudentDetails = "student_details"
	DataTypeStudentEmails  = "student_emails"
	DataTypeTAMarks        = "ta_marks"
)

// Capability is a group of Handle operations.
type Capability string

// Capabilities exposed through data types.
const (
	CapCommits        Capability = "commits"
	CapFiles          Capability = "files"
	CapIssues         Capability = "issues"
	CapMergeRequests  Capability = "merge_requests"
	CapTeamMembers    Capability = "team_members"
	CapWiki           Capability = "wiki"
	CapBuilds         Capability = "builds"
	CapRecords        Capability = "records"
	CapStudentRecords Capability = "student_records"
)

// DataTypeSpec is the registry entry of one data type.
type DataTypeSpec struct {
	Name         string
	SourceTypes  []string
	Capabilities []Capability
}

// Allows reports whether sourceType may back the data type.
func (s DataTypeSpec) Allows(sourceType string) bool {
	return slices.Contains(s.SourceTypes, sourceType)
}

// Exposes reports whether the data type offers c.
func (s DataTypeSpec) Exposes(c Capability) bool {
	return slices.Contains(s.Capabilities, c)
}

var hostedRepository = []string{config.SourceTypeGitLab, config.SourceTypeGitHub}

var studentFiles = []string{config.SourceTypeGitLab, config.SourceTypeLocalPath}

var registry = map[string]DataTypeSpec{
	DataTypeRepository: {
		SourceTypes:  []string{config.SourceTypeGitLab, config.SourceTypeGitHub, config.SourceTypeLocalRepository},
		Capabilities: []Capability{CapCommits, CapFiles},
	},
	DataTypeIssues: {
		SourceTypes:  hostedRepository,
		Capabilities: []Capability{CapIssues},
	},
	DataTypeCI: {
		SourceTypes:  []string{config.SourceTypeJenkins},
		Capabilities: []Capability{CapBuilds},
	},
	DataTypeRemoteProvider: {
		SourceTypes:  hostedRepository,
		Capabilities: []Capability{CapMergeRequests, CapTeamMembers, CapWiki},
	},
	DataTypeMarkingConfig: {
		SourceTypes:  []string{config.SourceTypeLocalPath, config.SourceTypeGitLab},
		Capabilities: []Capability{CapFiles},
	},
	DataTypeAttendance: {
		SourceTypes:  []string{config.SourceTypeBenchmark},
		Capabilities: []Capability{CapRecords},
	},
	DataTypeStudentDetails: {
		SourceTypes:  studentFiles,
		Capabilities: []Capability{CapFiles, CapStudentRecords},
	},
	DataTypeStudentEmails: {
		SourceTypes:  studentFiles,
		Capabilities: []Capability{CapFiles, CapStudentRecords},
	},
	DataTypeTAMarks: {
		SourceTypes:  studentFiles,
		Capabilities: []Capability{CapFiles, CapStudentRecords},
	},
}

// Lookup returns the registry entry for dataType.
func Lookup(dataType string) (DataTypeSpec, bool) {
	spec, ok := registry[dataType]
	if !ok {
		return DataTypeSpec{}, false
	}
	spec.Name = dataType
	spec.SourceTypes = slices.Clone(spec.SourceTypes)
	spec.Capabilities = slices.Clone(spec.Capabilities)
	return spec, true
}

// DataTypes returns every registered data type, sorted.
func DataTypes() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
