package concat

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// esmConnection is an outgoing ESM-like connection of a module, with the
// facts needed to decide whether its target is an import candidate.
type esmConnection struct {
	conn         *ir.Connection
	namedImports bool
	// active is the activation of the connection for the owning module's
	// union runtime.
	active bool
}

// moduleFacts are the runtime-independent facts about one module that the
// admission search reads over and over.
type moduleFacts struct {
	runtime            *runtimespec.Spec
	providedNamesKnown bool
	connections        []esmConnection
	// incoming groups incoming connections by origin; references from
	// outside the graph use the "" key.
	incoming map[ir.ModuleID][]*ir.Connection
}

// factCache maps module ids to their facts. It is read-only once built.
type factCache map[ir.ModuleID]*moduleFacts

// buildFactCache computes the facts of ids in parallel, bounded by workers.
func buildFactCache(ctx context.Context, mg ir.GraphReader, cg ir.ChunkReader, ids []ir.ModuleID, workers int) (factCache, error) {
	results := make([]*moduleFacts, len(ids))
	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, id := range ids {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, err := computeFacts(mg, cg, id)
			if err != nil {
				return err
			}
			results[i] = f
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	cache := make(factCache, len(ids))
	for i, id := range ids {
		cache[id] = results[i]
	}
	return cache, nil
}

func computeFacts(mg ir.GraphReader, cg ir.ChunkReader, id ir.ModuleID) (*moduleFacts, error) {
	m, err := mg.Module(id)
	if err != nil {
		return nil, invariant("build fact cache", id, err)
	}
	facts := &moduleFacts{
		runtime:            cg.ModuleRuntime(id),
		providedNamesKnown: mg.ExportsInfo(id).ProvidedNamesKnown(),
		incoming:           mg.IncomingConnectionsByOrigin(id),
	}
	for _, depID := range m.Dependencies {
		dep, err := mg.Dependency(depID)
		if err != nil {
			return nil, invariant("build fact cache", id, err)
		}
		if !dep.Kind.IsESMLike() {
			continue
		}
		conn, ok := mg.ConnectionByDependency(depID)
		if !ok {
			continue
		}
		facts.connections = append(facts.connections, esmConnection{
			conn:         conn,
			namedImports: dep.HasNamedImports(),
			active:       conn.IsTargetActive(facts.runtime),
		})
	}
	return facts, nil
}

// moduleSet is an insertion-ordered set of module ids.
type moduleSet struct {
	order []ir.ModuleID
	index map[ir.ModuleID]struct{}
}

func newModuleSet() *moduleSet {
	return &moduleSet{index: make(map[ir.ModuleID]struct{})}
}

// add inserts id and reports whether it was new.
func (s *moduleSet) add(id ir.ModuleID) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *moduleSet) has(id ir.ModuleID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *moduleSet) len() int { return len(s.order) }

// runtimeKey identifies a value computed for a module under a runtime.
type runtimeKey struct {
	module  ir.ModuleID
	runtime string
}

func keyOf(id ir.ModuleID, runtime *runtimespec.Spec) runtimeKey {
	return runtimeKey{module: id, runtime: runtime.Key()}
}

// runtimeCache memoizes per-(module, runtime) results of the search. It is
// owned by the caller and passed explicitly into the search.
type runtimeCache[T any] struct {
	entries map[runtimeKey]T
}

func newRuntimeCache[T any]() *runtimeCache[T] {
	return &runtimeCache[T]{entries: make(map[runtimeKey]T)}
}

func (c *runtimeCache[T]) get(id ir.ModuleID, runtime *runtimespec.Spec) (T, bool) {
	v, ok := c.entries[keyOf(id, runtime)]
	return v, ok
}

func (c *runtimeCache[T]) put(id ir.ModuleID, runtime *runtimespec.Spec, v T) {
	c.entries[keyOf(id, runtime)] = v
}

// importsOf returns the modules id imports through active ESM-like
// connections for runtime, memoized in cache.
func importsOf(facts factCache, cache *runtimeCache[[]ir.ModuleID], id ir.ModuleID, runtime *runtimespec.Spec) []ir.ModuleID {
	if v, ok := cache.get(id, runtime); ok {
		return v
	}
	f, ok := facts[id]
	if !ok {
		return nil
	}
	set := newModuleSet()
	for _, c := range f.connections {
		if !connectionActiveFor(f.runtime, c, runtime) {
			continue
		}
		if c.namedImports || f.providedNamesKnown {
			set.add(c.conn.Target)
		}
	}
	cache.put(id, runtime, set.order)
	return set.order
}

// connectionActiveFor decides activation for runtime, reusing the cached
// activation for the module's union runtime when set inclusion allows.
func connectionActiveFor(union *runtimespec.Spec, c esmConnection, runtime *runtimespec.Spec) bool {
	switch {
	case union.Equal(runtime):
		return c.active
	case c.active && union.IsSubset(runtime):
		return true
	case !c.active && runtime != nil && union.IsSuperset(runtime):
		return false
	}
	return c.conn.IsTargetActive(runtime)
}
