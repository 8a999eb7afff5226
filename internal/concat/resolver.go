package concat

import (
	"slices"

	"github.com/efebarandurmaz/hoist/internal/ir"
)

// sortConfigurations orders configurations by descending size, then by root
// id.
func sortConfigurations(configs []*Configuration) {
	slices.SortStableFunc(configs, func(a, b *Configuration) int {
		if a.Len() != b.Len() {
			return b.Len() - a.Len()
		}
		switch {
		case a.Root < b.Root:
			return -1
		case a.Root > b.Root:
			return 1
		}
		return 0
	})
}

// resolution is the outcome of resolving overlapping configurations.
type resolution struct {
	applied []*Configuration
	// dropped configurations lost every inner member to larger ones.
	dropped []*Configuration
	// skipped configurations had their root absorbed by a larger one.
	skipped []*Configuration
}

// resolve picks a pairwise disjoint subset of configs, larger ones first.
// A configuration that overlaps modules claimed earlier is rebuilt without
// them instead of being applied partially.
func (s *search) resolve(configs []*Configuration) (*resolution, error) {
	sortConfigurations(configs)

	res := &resolution{}
	claimed := make(map[ir.ModuleID]ir.ModuleID)
	for _, config := range configs {
		if _, ok := claimed[config.Root]; ok {
			res.skipped = append(res.skipped, config)
			continue
		}
		if overlaps(config, claimed) {
			rebuilt, err := s.without(claimed).buildConfiguration(config.Root)
			if err != nil {
				return nil, err
			}
			s.stats.Rebuilt++
			if rebuilt.IsEmpty() {
				res.dropped = append(res.dropped, rebuilt)
				continue
			}
			config = rebuilt
		}
		for _, id := range config.Modules() {
			claimed[id] = config.Root
		}
		res.applied = append(res.applied, config)
	}
	return res, nil
}

func overlaps(config *Configuration, claimed map[ir.ModuleID]ir.ModuleID) bool {
	for _, id := range config.Modules() {
		if _, ok := claimed[id]; ok {
			return true
		}
	}
	return false
}
