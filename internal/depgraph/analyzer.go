package depgraph

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/efebarandurmaz/hoist/internal/ir"
)

// Analyze builds an exportable graph from a module graph and its chunk
// assignment. Merged modules become groups holding the modules they
// absorbed.
func Analyze(mg *ir.ModuleGraph, cg *ir.ChunkGraph) (*Graph, error) {
	g := &Graph{}

	// 1. Collect merged groups so members can be tagged
	groupOf := make(map[ir.ModuleID]ir.ModuleID)
	ids := mg.ModuleIDs()
	for _, id := range ids {
		m, err := mg.Module(id)
		if err != nil {
			return nil, err
		}
		if m.Concatenated == nil {
			continue
		}
		members := m.Concatenated.Members()
		grp := Group{Merged: string(id), Root: string(m.Concatenated.Root.ID)}
		for _, member := range members {
			grp.Members = append(grp.Members, string(member))
			groupOf[member] = id
		}
		g.Groups = append(g.Groups, grp)
	}

	// 2. Add module nodes
	for _, id := range ids {
		m, err := mg.Module(id)
		if err != nil {
			return nil, err
		}
		n := Node{
			ID:    string(id),
			Name:  m.ReadableIdentifier(),
			Kind:  NodeModule,
			Entry: cg.IsEntryModule(id),
			Metadata: map[string]string{
				"type": string(m.Type),
				"size": strconv.FormatFloat(m.Size, 'f', -1, 64),
			},
		}
		for _, c := range cg.ModuleChunks(id) {
			n.Chunks = append(n.Chunks, string(c))
		}
		switch {
		case m.Concatenated != nil:
			n.Kind = NodeConcatenated
			n.Group = string(id)
		case groupOf[id] != "":
			n.Kind = NodeInner
			n.Group = string(groupOf[id])
		}
		if b := mg.Bailouts(id); len(b) > 0 {
			n.Metadata["bailouts"] = strconv.Itoa(len(b))
		}
		if mg.IsAsync(id) {
			n.Metadata["async"] = "true"
		}
		g.Nodes = append(g.Nodes, n)
	}

	// 3. Add dependency edges; references from outside the graph are
	// represented by the entry flag
	for _, c := range mg.Connections() {
		if c.Origin == "" {
			continue
		}
		dep, err := mg.Dependency(c.Dependency)
		if err != nil {
			return nil, fmt.Errorf("connection %d: %w", c.ID, err)
		}
		e := Edge{From: string(c.Origin), To: string(c.Target), Kind: EdgeDynamic, Label: dep.Kind.String()}
		if dep.Kind.IsESMLike() {
			e.Kind = EdgeStatic
		}
		if !c.Condition.IsTrue() {
			e.Label += " (" + c.Condition.String() + ")"
		}
		g.Edges = append(g.Edges, e)
	}

	// 4. Add contains edges
	for _, grp := range g.Groups {
		for _, member := range grp.Members {
			g.Edges = append(g.Edges, Edge{From: grp.Merged, To: member, Kind: EdgeContains})
		}
	}

	// 5. Compute stats
	g.computeStats(mg, cg)

	return g, nil
}

// computeStats computes graph metrics
func (g *Graph) computeStats(mg *ir.ModuleGraph, cg *ir.ChunkGraph) {
	g.Stats.TotalNodes = len(g.Nodes)
	g.Stats.TotalEdges = len(g.Edges)

	fanOut := make(map[string]int)
	fanIn := make(map[string]int)
	g.Stats.ChunkModules = make(map[string]int)

	for _, n := range g.Nodes {
		switch n.Kind {
		case NodeModule:
			g.Stats.ModuleCount++
		case NodeConcatenated:
			g.Stats.ConcatenatedCount++
		case NodeInner:
			g.Stats.InnerCount++
		}
		if n.Entry {
			g.Stats.EntryCount++
		}
		if _, ok := n.Metadata["bailouts"]; ok {
			g.Stats.BailoutCount++
		}
	}
	for _, c := range cg.ChunkIDs() {
		g.Stats.ChunkModules[string(c)] = len(cg.ChunkModules(c))
	}

	for _, e := range g.Edges {
		if e.Kind == EdgeContains {
			continue
		}
		fanOut[e.From]++
		fanIn[e.To]++
	}

	// Iterate in node order so ties pick the same hotspot every run
	for _, n := range g.Nodes {
		if count := fanOut[n.ID]; count > g.Stats.MaxFanOut {
			g.Stats.MaxFanOut = count
			g.Stats.HotspotNode = n.ID
		}
		if count := fanIn[n.ID]; count > g.Stats.MaxFanIn {
			g.Stats.MaxFanIn = count
		}
	}

	// Detect connected components using union-find
	g.Stats.ConnectedComponents = g.countComponents()

	// Detect cycles
	g.Stats.CyclicDeps = g.detectCycles()
}

// countComponents counts connected components via union-find
func (g *Graph) countComponents() int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		fa, fb := find(a), find(b)
		if fa != fb {
			parent[fa] = fb
		}
	}

	for _, n := range g.Nodes {
		find(n.ID)
	}
	for _, e := range g.Edges {
		union(e.From, e.To)
	}

	roots := make(map[string]bool)
	for _, n := range g.Nodes {
		roots[find(n.ID)] = true
	}
	return len(roots)
}

// detectCycles finds cycles using DFS on module dependency edges
func (g *Graph) detectCycles() [][]string {
	adj := make(map[string][]string)
	modules := make(map[string]bool)

	for _, e := range g.Edges {
		if e.Kind == EdgeContains {
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
		modules[e.From] = true
		modules[e.To] = true
	}

	var cycles [][]string
	visited := make(map[string]int) // 0=unvisited, 1=in-progress, 2=done
	path := make([]string, 0)

	var dfs func(node string)
	dfs = func(node string) {
		if visited[node] == 2 {
			return
		}
		if visited[node] == 1 {
			// Found cycle - extract it
			cycle := make([]string, 0)
			for i := len(path) - 1; i >= 0; i-- {
				cycle = append(cycle, path[i])
				if path[i] == node {
					break
				}
			}
			// Reverse the cycle
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			cycles = append(cycles, cycle)
			return
		}
		visited[node] = 1
		path = append(path, node)
		for _, next := range adj[node] {
			dfs(next)
		}
		path = path[:len(path)-1]
		visited[node] = 2
	}

	// Sort modules for deterministic output
	sortedModules := make([]string, 0, len(modules))
	for m := range modules {
		sortedModules = append(sortedModules, m)
	}
	sort.Strings(sortedModules)

	for _, m := range sortedModules {
		if visited[m] == 0 {
			dfs(m)
		}
	}

	return cycles
}
