package concat

import (
	"slices"
	"strings"

	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// search holds the read-only inputs shared by every configuration search of
// a pass. It never mutates the graphs.
type search struct {
	mg         ir.GraphReader
	cg         ir.ChunkReader
	facts      factCache
	candidates *candidates
	// claimed maps modules that may not join any configuration to the
	// root of the configuration that owns them.
	claimed map[ir.ModuleID]ir.ModuleID
	imports *runtimeCache[[]ir.ModuleID]
	stats   *Statistics
}

func (s *search) isInner(id ir.ModuleID) bool {
	if _, ok := s.claimed[id]; ok {
		return false
	}
	return s.candidates.isInner(id)
}

// without returns a search that also treats claimed as ineligible. It
// counts admissions separately so a rebuild does not inflate the pass
// statistics.
func (s *search) without(claimed map[ir.ModuleID]ir.ModuleID) *search {
	out := *s
	out.claimed = claimed
	out.stats = newStatistics()
	return &out
}

// admission is the state of growing one configuration. The caches are owned
// by the scheduler and live as long as the search for one root.
type admission struct {
	config     *Configuration
	runtime    *runtimespec.Spec
	rootChunks []ir.ChunkID
	failures   map[ir.ModuleID]Warning
	successes  *runtimeCache[[]ir.ModuleID]
}

func (s *search) newAdmission(config *Configuration, runtime *runtimespec.Spec) *admission {
	return &admission{
		config:     config,
		runtime:    runtime,
		rootChunks: s.cg.ModuleChunks(config.Root),
		failures:   make(map[ir.ModuleID]Warning),
		successes:  newRuntimeCache[[]ir.ModuleID](),
	}
}

// refusal is a failed incoming-reference check.
type refusal struct {
	reason  rejection
	warning Warning
}

func refuse(r rejection, problem string) *refusal {
	return &refusal{reason: r, warning: problemWarning(problem)}
}

// tryToAdd attempts to absorb id and every module that must come with it.
// On success the imports of id are added to found. A nil warning means
// success. With avoidMutate the configuration is rolled back when a
// required importer cannot be added.
func (s *search) tryToAdd(a *admission, id ir.ModuleID, found *moduleSet, avoidMutate bool) (*Warning, error) {
	s.stats.visit(id)

	if w, ok := a.failures[id]; ok {
		s.stats.Cached++
		return &w, nil
	}
	if a.config.Has(id) {
		s.stats.AlreadyInConfig++
		return nil, nil
	}

	incoming, ok := a.successes.get(id, a.runtime)
	if ok {
		s.stats.CacheHit++
	} else {
		if !s.isInner(id) {
			s.stats.record(rejectInvalidModule)
			w, err := s.ineligible(id)
			if err != nil {
				return nil, err
			}
			a.failures[id] = w
			return &w, nil
		}
		var (
			ref *refusal
			err error
		)
		incoming, ref, err = s.incomingModules(a.rootChunks, a.runtime, id)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			s.stats.record(ref.reason)
			a.failures[id] = ref.warning
			return &ref.warning, nil
		}
		a.successes.put(id, a.runtime, incoming)
	}

	snapshot := a.config.Snapshot()
	a.config.Add(id)

	for _, origin := range incoming {
		w, err := s.tryToAdd(a, origin, found, false)
		if err != nil {
			return nil, err
		}
		if w != nil {
			if avoidMutate {
				a.config.Rollback(snapshot)
			}
			s.stats.ImporterFailed++
			a.failures[id] = *w
			return w, nil
		}
	}

	for _, imp := range importsOf(s.facts, s.imports, id, a.runtime) {
		found.add(imp)
	}
	s.stats.Added++
	return nil, nil
}

// ineligible explains why id may not be an inner module.
func (s *search) ineligible(id ir.ModuleID) (Warning, error) {
	owner, ok := s.claimed[id]
	if !ok {
		return blockedBy(id), nil
	}
	name, err := s.readable(id)
	if err != nil {
		return Warning{}, err
	}
	root, err := s.readable(owner)
	if err != nil {
		return Warning{}, err
	}
	return problemWarning("Module " + name + " is already concatenated into " + root), nil
}

// incomingModules checks the references into id and returns the origin
// modules that must be absorbed together with it, sorted by id.
func (s *search) incomingModules(rootChunks []ir.ChunkID, runtime *runtimespec.Spec, id ir.ModuleID) ([]ir.ModuleID, *refusal, error) {
	name, err := s.readable(id)
	if err != nil {
		return nil, nil, err
	}

	var missing []ir.ChunkID
	for _, chunk := range rootChunks {
		if !s.cg.IsModuleInChunk(id, chunk) {
			missing = append(missing, chunk)
		}
	}
	if len(missing) > 0 {
		expected, err := s.chunkNames(missing)
		if err != nil {
			return nil, nil, err
		}
		actual, err := s.chunkNames(s.cg.ModuleChunks(id))
		if err != nil {
			return nil, nil, err
		}
		return nil, refuse(rejectIncorrectChunks,
			"Module "+name+" is not in the same chunk(s) (expected in chunk(s) "+
				strings.Join(expected, ", ")+", module is in chunk(s) "+strings.Join(actual, ", ")+")"), nil
	}

	f, ok := s.facts[id]
	if !ok {
		return nil, nil, invariant("check incoming references", id, ir.ErrModuleNotFound)
	}

	for _, c := range f.incoming[""] {
		if c.IsActive(runtime) {
			return nil, refuse(rejectIncorrectDependency,
				"Module "+name+" is referenced from outside the module graph"), nil
		}
	}

	origins := make([]ir.ModuleID, 0, len(f.incoming))
	for origin := range f.incoming {
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	slices.Sort(origins)

	active := make(map[ir.ModuleID][]*ir.Connection)
	var incoming []ir.ModuleID
	for _, origin := range origins {
		if s.cg.NumberOfModuleChunks(origin) == 0 {
			continue
		}
		if !runtime.Intersects(s.cg.ModuleRuntime(origin)) {
			continue
		}
		var conns []*ir.Connection
		for _, c := range f.incoming[origin] {
			if c.IsActive(runtime) {
				conns = append(conns, c)
			}
		}
		if len(conns) > 0 {
			active[origin] = conns
			incoming = append(incoming, origin)
		}
	}

	var otherChunks []string
	for _, origin := range incoming {
		for _, chunk := range rootChunks {
			if !s.cg.IsModuleInChunk(origin, chunk) {
				n, err := s.readable(origin)
				if err != nil {
					return nil, nil, err
				}
				otherChunks = append(otherChunks, n)
				break
			}
		}
	}
	if len(otherChunks) > 0 {
		slices.Sort(otherChunks)
		return nil, refuse(rejectIncorrectChunksOfImporter,
			"Module "+name+" is referenced from different chunks by these modules: "+strings.Join(otherChunks, ", ")), nil
	}

	var unsupported []string
	for _, origin := range incoming {
		var kinds []string
		nonESM := false
		for _, c := range active[origin] {
			dep, err := s.mg.Dependency(c.Dependency)
			if err != nil {
				return nil, nil, invariant("check incoming references", origin, err)
			}
			kinds = append(kinds, dep.Kind.String())
			if !dep.Kind.IsESMLike() {
				nonESM = true
			}
		}
		if !nonESM {
			continue
		}
		n, err := s.readable(origin)
		if err != nil {
			return nil, nil, err
		}
		slices.Sort(kinds)
		unsupported = append(unsupported, n+" (referenced with "+strings.Join(kinds, ",")+")")
	}
	if len(unsupported) > 0 {
		slices.Sort(unsupported)
		return nil, refuse(rejectIncorrectModuleDependency,
			"Module "+name+" is referenced from these modules with unsupported syntax: "+strings.Join(unsupported, ", ")), nil
	}

	if runtime.Len() > 1 {
		var partial []string
	next:
		for _, origin := range incoming {
			cond := runtimespec.False
			for _, c := range active[origin] {
				held := runtimespec.Filter(runtime, c.IsTargetActive)
				if held.IsTrue() {
					continue next
				}
				cond = cond.Merge(held)
			}
			if cond.IsFalse() {
				continue
			}
			n, err := s.readable(origin)
			if err != nil {
				return nil, nil, err
			}
			partial = append(partial, n+" (expected runtime "+runtime.String()+
				", module is only referenced in "+cond.Spec().String()+")")
		}
		if len(partial) > 0 {
			slices.Sort(partial)
			return nil, refuse(rejectIncorrectRuntimeCondition,
				"Module "+name+" is runtime-dependent referenced by these modules: "+strings.Join(partial, ", ")), nil
		}
	}

	return incoming, nil, nil
}

func (s *search) readable(id ir.ModuleID) (string, error) {
	m, err := s.mg.Module(id)
	if err != nil {
		return "", invariant("read module", id, err)
	}
	return m.ReadableIdentifier(), nil
}

func (s *search) chunkNames(ids []ir.ChunkID) ([]string, error) {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		c, err := s.cg.Chunk(id)
		if err != nil {
			return nil, &InvariantError{Op: "read chunk", Chunk: id, Err: err}
		}
		names = append(names, c.DisplayName())
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}
