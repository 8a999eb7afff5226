package concat

import (
	"errors"

	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// activeRuntime narrows the union runtime of root to the runtimes its
// exports are used in. It returns nil when they are used in none.
func (s *search) activeRuntime(root ir.ModuleID) *runtimespec.Spec {
	runtime := s.facts[root].runtime
	exports := s.mg.ExportsInfo(root)
	cond := runtimespec.Filter(runtime, exports.IsUsed)
	switch {
	case cond.IsTrue():
		return runtime.Clone()
	case cond.IsFalse():
		return nil
	}
	return cond.Spec().Clone()
}

// buildConfiguration grows the largest configuration it can around root by
// draining its import candidates breadth first.
func (s *search) buildConfiguration(root ir.ModuleID) (*Configuration, error) {
	f, ok := s.facts[root]
	if !ok {
		return nil, &InvariantError{Op: "build configuration", Root: root, Err: ir.ErrModuleNotFound}
	}
	active := s.activeRuntime(root)
	config := NewConfiguration(root, active)
	a := s.newAdmission(config, f.runtime)

	queue := append([]ir.ModuleID(nil), importsOf(s.facts, s.imports, root, active)...)
	visited := make(map[ir.ModuleID]struct{})
	for len(queue) > 0 {
		candidate := queue[0]
		queue = queue[1:]
		if _, ok := visited[candidate]; ok {
			continue
		}
		visited[candidate] = struct{}{}
		s.stats.Candidates++

		found := newModuleSet()
		w, err := s.tryToAdd(a, candidate, found, true)
		if err != nil {
			var ie *InvariantError
			if errors.As(err, &ie) && ie.Root == "" {
				ie.Root = root
			}
			return nil, err
		}
		if w != nil {
			a.failures[candidate] = *w
			config.AddWarning(candidate, *w)
			continue
		}
		queue = append(queue, found.order...)
	}
	return config, nil
}

// findConfigurations builds a configuration for every root that has not
// been absorbed by an earlier one. Roots must already be sorted. It returns
// the non-empty configurations and the empty ones separately.
func (s *search) findConfigurations(roots []ir.ModuleID) (accepted, empty []*Configuration, err error) {
	usedAsInner := make(map[ir.ModuleID]struct{})
	for _, root := range roots {
		if _, ok := usedAsInner[root]; ok {
			continue
		}
		config, err := s.buildConfiguration(root)
		if err != nil {
			return nil, nil, err
		}
		if config.IsEmpty() {
			s.stats.EmptyConfigurations++
			empty = append(empty, config)
			continue
		}
		for _, id := range config.Modules() {
			if id != root {
				usedAsInner[id] = struct{}{}
			}
		}
		s.stats.Configurations++
		s.stats.ConfigurationModules += config.Len()
		accepted = append(accepted, config)
	}
	return accepted, empty, nil
}
