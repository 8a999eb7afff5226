package ir

import (
	"fmt"
	"slices"
	"sort"

	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// ModuleGraph owns modules, dependencies and the connections between them.
//
// A ModuleGraph is not safe for concurrent mutation. Concurrent readers are
// fine as long as no goroutine mutates it.
type ModuleGraph struct {
	modules  map[ModuleID]*Module
	exports  map[ModuleID]*ExportsInfo
	deps     map[DependencyID]*Dependency
	conns    map[ConnectionID]*Connection
	depConn  map[DependencyID]ConnectionID
	incoming map[ModuleID][]ConnectionID
	outgoing map[ModuleID][]ConnectionID
	depth    map[ModuleID]int
	async    map[ModuleID]bool
	bailouts map[ModuleID][]string
	nextConn ConnectionID
}

// NewModuleGraph returns an empty graph.
func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		modules:  make(map[ModuleID]*Module),
		exports:  make(map[ModuleID]*ExportsInfo),
		deps:     make(map[DependencyID]*Dependency),
		conns:    make(map[ConnectionID]*Connection),
		depConn:  make(map[DependencyID]ConnectionID),
		incoming: make(map[ModuleID][]ConnectionID),
		outgoing: make(map[ModuleID][]ConnectionID),
		depth:    make(map[ModuleID]int),
		async:    make(map[ModuleID]bool),
		bailouts: make(map[ModuleID][]string),
	}
}

// AddModule inserts a module. A module without exports info gets an empty
// one that can be replaced with SetExportsInfo.
func (g *ModuleGraph) AddModule(m *Module) error {
	if _, ok := g.modules[m.ID]; ok {
		return fmt.Errorf("add module %s: %w", m.ID, ErrDuplicateModule)
	}
	g.modules[m.ID] = m
	if _, ok := g.exports[m.ID]; !ok {
		g.exports[m.ID] = &ExportsInfo{}
	}
	return nil
}

// Module returns the module with the given id.
func (g *ModuleGraph) Module(id ModuleID) (*Module, error) {
	m, ok := g.modules[id]
	if !ok {
		return nil, fmt.Errorf("module %s: %w", id, ErrModuleNotFound)
	}
	return m, nil
}

// HasModule reports whether the module exists.
func (g *ModuleGraph) HasModule(id ModuleID) bool {
	_, ok := g.modules[id]
	return ok
}

// ModuleIDs returns every module id in ascending order.
func (g *ModuleGraph) ModuleIDs() []ModuleID {
	ids := make([]ModuleID, 0, len(g.modules))
	for id := range g.modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SetExportsInfo replaces the exports info of a module. Two modules may share
// one *ExportsInfo.
func (g *ModuleGraph) SetExportsInfo(id ModuleID, info *ExportsInfo) {
	g.exports[id] = info
}

// ExportsInfo returns the exports info of a module, or nil.
func (g *ModuleGraph) ExportsInfo(id ModuleID) *ExportsInfo {
	return g.exports[id]
}

// AddDependency registers a dependency and appends it to its parent's
// dependency list. Dependency ids are unique within a graph.
func (g *ModuleGraph) AddDependency(d *Dependency) error {
	if _, ok := g.deps[d.ID]; ok {
		return fmt.Errorf("add dependency %s: %w", d.ID, ErrDuplicateDependency)
	}
	if d.Parent != "" {
		parent, err := g.Module(d.Parent)
		if err != nil {
			return fmt.Errorf("add dependency %s: %w", d.ID, err)
		}
		parent.Dependencies = append(parent.Dependencies, d.ID)
	}
	g.deps[d.ID] = d
	return nil
}

// Dependency returns the dependency with the given id.
func (g *ModuleGraph) Dependency(id DependencyID) (*Dependency, error) {
	d, ok := g.deps[id]
	if !ok {
		return nil, fmt.Errorf("dependency %s: %w", id, ErrDependencyNotFound)
	}
	return d, nil
}

// Connect adds the connection produced by a dependency. The connection
// starts at the dependency's parent and is always active unless an option
// says otherwise.
func (g *ModuleGraph) Connect(dep DependencyID, target ModuleID, opts ...ConnectOption) (*Connection, error) {
	d, err := g.Dependency(dep)
	if err != nil {
		return nil, err
	}
	if !g.HasModule(target) {
		return nil, fmt.Errorf("connect %s: target %s: %w", dep, target, ErrModuleNotFound)
	}
	c := g.addConnection(dep, d.Parent, target)
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := g.depConn[dep]; !ok {
		g.depConn[dep] = c.ID
	}
	return c, nil
}

// ConnectOption configures a new connection.
type ConnectOption func(*Connection)

// WithCondition sets the runtime condition under which the connection is
// active.
func WithCondition(cond runtimespec.Condition) ConnectOption {
	return func(c *Connection) { c.Condition = cond }
}

func (g *ModuleGraph) addConnection(dep DependencyID, origin, target ModuleID) *Connection {
	g.nextConn++
	c := &Connection{ID: g.nextConn, Dependency: dep, Origin: origin, Target: target}
	g.conns[c.ID] = c
	g.incoming[target] = append(g.incoming[target], c.ID)
	if origin != "" {
		g.outgoing[origin] = append(g.outgoing[origin], c.ID)
	}
	return c
}

// Connection returns the connection with the given id.
func (g *ModuleGraph) Connection(id ConnectionID) (*Connection, error) {
	c, ok := g.conns[id]
	if !ok {
		return nil, fmt.Errorf("connection %d: %w", id, ErrConnectionNotFound)
	}
	return c, nil
}

// ConnectionByDependency returns the connection a dependency resolved to.
func (g *ModuleGraph) ConnectionByDependency(dep DependencyID) (*Connection, bool) {
	id, ok := g.depConn[dep]
	if !ok {
		return nil, false
	}
	c, ok := g.conns[id]
	return c, ok
}

// OutgoingConnections returns the connections starting at a module in
// insertion order.
func (g *ModuleGraph) OutgoingConnections(id ModuleID) []*Connection {
	return g.collect(g.outgoing[id])
}

// IncomingConnections returns the connections ending at a module in
// insertion order.
func (g *ModuleGraph) IncomingConnections(id ModuleID) []*Connection {
	return g.collect(g.incoming[id])
}

func (g *ModuleGraph) collect(ids []ConnectionID) []*Connection {
	out := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.conns[id])
	}
	return out
}

// IncomingConnectionsByOrigin groups the incoming connections of a module by
// origin module. Connections without an origin are keyed by "".
func (g *ModuleGraph) IncomingConnectionsByOrigin(id ModuleID) map[ModuleID][]*Connection {
	out := make(map[ModuleID][]*Connection)
	for _, c := range g.IncomingConnections(id) {
		out[c.Origin] = append(out[c.Origin], c)
	}
	return out
}

// SetDepth records the distance of a module from the nearest entry.
func (g *ModuleGraph) SetDepth(id ModuleID, depth int) { g.depth[id] = depth }

// Depth returns the recorded depth of a module.
func (g *ModuleGraph) Depth(id ModuleID) (int, bool) {
	d, ok := g.depth[id]
	return d, ok
}

// SetAsync marks a module as asynchronous.
func (g *ModuleGraph) SetAsync(id ModuleID, async bool) {
	if async {
		g.async[id] = true
		return
	}
	delete(g.async, id)
}

// IsAsync reports whether a module is asynchronous.
func (g *ModuleGraph) IsAsync(id ModuleID) bool { return g.async[id] }

// AddBailout appends an optimization bailout diagnostic to a module.
func (g *ModuleGraph) AddBailout(id ModuleID, reason string) {
	g.bailouts[id] = append(g.bailouts[id], reason)
}

// Bailouts returns the optimization bailout diagnostics of a module.
func (g *ModuleGraph) Bailouts(id ModuleID) []string {
	return slices.Clone(g.bailouts[id])
}

// ModulesWithBailouts returns the ids of modules that have diagnostics, in
// ascending order.
func (g *ModuleGraph) ModulesWithBailouts() []ModuleID {
	ids := make([]ModuleID, 0, len(g.bailouts))
	for id, reasons := range g.bailouts {
		if len(reasons) > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// CloneModuleAttributes copies graph-level attributes (depth, async flag)
// from one module to another.
func (g *ModuleGraph) CloneModuleAttributes(from, to ModuleID) {
	if d, ok := g.depth[from]; ok {
		g.depth[to] = d
	}
	g.SetAsync(to, g.async[from])
}

// ConnectionFilter selects connections for copy and move operations.
type ConnectionFilter func(c *Connection, dep *Dependency) bool

// CopyOutgoingConnections duplicates the outgoing connections of from that
// pass filter so that they start at to.
func (g *ModuleGraph) CopyOutgoingConnections(from, to ModuleID, filter ConnectionFilter) error {
	for _, c := range g.OutgoingConnections(from) {
		dep, err := g.Dependency(c.Dependency)
		if err != nil {
			return fmt.Errorf("copy connections of %s: %w", from, err)
		}
		if !filter(c, dep) {
			continue
		}
		nc := g.addConnection(c.Dependency, to, c.Target)
		nc.Condition = c.Condition
	}
	return nil
}

// MoveModuleConnections re-points the connections of from that pass filter
// to to: outgoing connections start at to, incoming connections end at to.
func (g *ModuleGraph) MoveModuleConnections(from, to ModuleID, filter ConnectionFilter) error {
	if from == to {
		return nil
	}
	var keepOut []ConnectionID
	for _, id := range g.outgoing[from] {
		c := g.conns[id]
		dep, err := g.Dependency(c.Dependency)
		if err != nil {
			return fmt.Errorf("move connections of %s: %w", from, err)
		}
		if !filter(c, dep) {
			keepOut = append(keepOut, id)
			continue
		}
		c.Origin = to
		g.outgoing[to] = append(g.outgoing[to], id)
	}
	g.outgoing[from] = keepOut

	var keepIn []ConnectionID
	for _, id := range g.incoming[from] {
		c := g.conns[id]
		dep, err := g.Dependency(c.Dependency)
		if err != nil {
			return fmt.Errorf("move connections of %s: %w", from, err)
		}
		if !filter(c, dep) {
			keepIn = append(keepIn, id)
			continue
		}
		c.Target = to
		g.incoming[to] = append(g.incoming[to], id)
	}
	g.incoming[from] = keepIn
	return nil
}

// Stats summarizes the graph.
type Stats struct {
	Modules      int
	Dependencies int
	Connections  int
	Concatenated int
}

// Stats returns counts of the graph's nodes and edges.
func (g *ModuleGraph) Stats() Stats {
	s := Stats{Modules: len(g.modules), Dependencies: len(g.deps), Connections: len(g.conns)}
	for _, m := range g.modules {
		if m.Concatenated != nil {
			s.Concatenated++
		}
	}
	return s
}

// SortByDepth orders module ids by ascending depth, then id. Modules without
// a depth sort last.
func (g *ModuleGraph) SortByDepth(ids []ModuleID) {
	key := func(id ModuleID) int {
		if d, ok := g.depth[id]; ok {
			return d
		}
		return int(^uint(0) >> 1)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		di, dj := key(ids[i]), key(ids[j])
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})
}

// Connections returns every connection ordered by id.
func (g *ModuleGraph) Connections() []*Connection {
	ids := make([]ConnectionID, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return g.collect(ids)
}
