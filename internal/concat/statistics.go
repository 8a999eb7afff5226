package concat

import (
	"fmt"

	"github.com/efebarandurmaz/hoist/internal/ir"
)

// rejection names the rule that refused a candidate.
type rejection string

const (
	rejectInvalidModule             rejection = "invalid module"
	rejectIncorrectChunks           rejection = "incorrect chunks"
	rejectIncorrectDependency       rejection = "incorrect dependency"
	rejectIncorrectChunksOfImporter rejection = "incorrect chunks of importer"
	rejectIncorrectModuleDependency rejection = "incorrect module dependency"
	rejectIncorrectRuntimeCondition rejection = "incorrect runtime condition"
)

// Statistics counts the outcomes of candidate admission during a pass.
type Statistics struct {
	Cached                    int `json:"cached"`
	AlreadyInConfig           int `json:"already_in_config"`
	InvalidModule             int `json:"invalid_module"`
	IncorrectChunks           int `json:"incorrect_chunks"`
	IncorrectDependency       int `json:"incorrect_dependency"`
	IncorrectChunksOfImporter int `json:"incorrect_chunks_of_importer"`
	IncorrectModuleDependency int `json:"incorrect_module_dependency"`
	IncorrectRuntimeCondition int `json:"incorrect_runtime_condition"`
	ImporterFailed            int `json:"importer_failed"`
	CacheHit                  int `json:"cache_hit"`
	Added                     int `json:"added"`

	// Candidates is the number of distinct candidates drained from root
	// worklists.
	Candidates          int `json:"candidates"`
	Configurations      int `json:"configurations"`
	EmptyConfigurations int `json:"empty_configurations"`
	// ConfigurationModules is the summed size of the non-empty
	// configurations found before resolution.
	ConfigurationModules int `json:"configuration_modules"`
	// Rebuilt is the number of configurations rebuilt during resolution
	// because they overlapped a larger one. Admissions of a rebuild are
	// not part of the counters above.
	Rebuilt int `json:"rebuilt"`

	Visits map[ir.ModuleID]int `json:"visits,omitempty"`
}

func newStatistics() *Statistics {
	return &Statistics{Visits: make(map[ir.ModuleID]int)}
}

func (s *Statistics) visit(id ir.ModuleID) { s.Visits[id]++ }

func (s *Statistics) record(r rejection) {
	switch r {
	case rejectInvalidModule:
		s.InvalidModule++
	case rejectIncorrectChunks:
		s.IncorrectChunks++
	case rejectIncorrectDependency:
		s.IncorrectDependency++
	case rejectIncorrectChunksOfImporter:
		s.IncorrectChunksOfImporter++
	case rejectIncorrectModuleDependency:
		s.IncorrectModuleDependency++
	case rejectIncorrectRuntimeCondition:
		s.IncorrectRuntimeCondition++
	}
}

// AverageSize returns the mean member count of the non-empty
// configurations.
func (s *Statistics) AverageSize() float64 {
	if s.Configurations == 0 {
		return 0
	}
	return float64(s.ConfigurationModules) / float64(s.Configurations)
}

// Outcome is a labelled admission counter.
type Outcome struct {
	Label string
	Count int
}

// Outcomes lists the admission counters in reporting order.
func (s *Statistics) Outcomes() []Outcome {
	return []Outcome{
		{"cached failure", s.Cached},
		{"already in config", s.AlreadyInConfig},
		{string(rejectInvalidModule), s.InvalidModule},
		{string(rejectIncorrectChunks), s.IncorrectChunks},
		{string(rejectIncorrectDependency), s.IncorrectDependency},
		{string(rejectIncorrectChunksOfImporter), s.IncorrectChunksOfImporter},
		{string(rejectIncorrectModuleDependency), s.IncorrectModuleDependency},
		{string(rejectIncorrectRuntimeCondition), s.IncorrectRuntimeCondition},
		{"importer failed", s.ImporterFailed},
		{"cache hit", s.CacheHit},
		{"added", s.Added},
	}
}

// Summary renders the admission counters as one line.
func (s *Statistics) Summary() string {
	return fmt.Sprintf(
		"%d candidates were considered for adding (%d cached failure, %d already in config, %d invalid module, %d incorrect chunks, %d incorrect dependency, %d incorrect chunks of importer, %d incorrect module dependency, %d incorrect runtime condition, %d importer failed, %d added)",
		s.Candidates, s.Cached, s.AlreadyInConfig, s.InvalidModule, s.IncorrectChunks,
		s.IncorrectDependency, s.IncorrectChunksOfImporter, s.IncorrectModuleDependency,
		s.IncorrectRuntimeCondition, s.ImporterFailed, s.Added,
	)
}
