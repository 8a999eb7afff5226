package concat

import (
	"slices"

	"github.com/efebarandurmaz/hoist/internal/ir"
)

// diagnoseStandalone explains why eligible inner modules that no applied
// configuration absorbed stayed on their own. Each one is checked against
// the incoming-reference rules relative to its own chunks and runtime, and
// the first problem found is returned per module.
func (s *search) diagnoseStandalone(applied []*Configuration) (map[ir.ModuleID]Warning, error) {
	absorbed := make(map[ir.ModuleID]struct{})
	for _, c := range applied {
		for _, id := range c.Modules() {
			absorbed[id] = struct{}{}
		}
	}

	ids := make([]ir.ModuleID, 0, len(s.candidates.inners))
	for id := range s.candidates.inners {
		if _, ok := absorbed[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make(map[ir.ModuleID]Warning)
	for _, id := range ids {
		f, ok := s.facts[id]
		if !ok || !hasModuleOrigin(f) {
			continue
		}
		_, ref, err := s.incomingModules(s.cg.ModuleChunks(id), f.runtime, id)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			out[id] = ref.warning
		}
	}
	return out, nil
}

func hasModuleOrigin(f *moduleFacts) bool {
	for origin := range f.incoming {
		if origin != "" {
			return true
		}
	}
	return false
}
