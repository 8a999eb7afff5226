package ir

// ComputeDepths assigns every module reachable from an entry its shortest
// distance to one. Entry targets (connections without origin) have depth 0.
// Connections that are never active are not followed.
func ComputeDepths(g *ModuleGraph) {
	clear(g.depth)
	var queue []ModuleID
	for _, c := range g.Connections() {
		if c.Origin != "" || c.Condition.IsFalse() {
			continue
		}
		if _, seen := g.depth[c.Target]; seen {
			continue
		}
		g.depth[c.Target] = 0
		queue = append(queue, c.Target)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		next := g.depth[id] + 1
		for _, c := range g.OutgoingConnections(id) {
			if c.Condition.IsFalse() {
				continue
			}
			if _, seen := g.depth[c.Target]; seen {
				continue
			}
			g.depth[c.Target] = next
			queue = append(queue, c.Target)
		}
	}
}

// InferAsync marks modules with top-level await as async, then every module
// that statically imports an async module.
func InferAsync(g *ModuleGraph) {
	clear(g.async)
	var queue []ModuleID
	for _, id := range g.ModuleIDs() {
		if g.modules[id].BuildInfo.TopLevelAwait {
			g.async[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range g.IncomingConnections(id) {
			if c.Origin == "" || g.async[c.Origin] || c.Condition.IsFalse() {
				continue
			}
			dep, ok := g.deps[c.Dependency]
			if !ok || !dep.Kind.IsESMLike() {
				continue
			}
			g.async[c.Origin] = true
			queue = append(queue, c.Origin)
		}
	}
}

// ResolveExportTarget follows a re-export to the module that finally
// provides it. It reports false when the export is not a re-export, when a
// module on the way is unknown, or when the chain loops.
func ResolveExportTarget(g GraphReader, info *ExportInfo) (ExportTarget, bool) {
	if info == nil || info.Reexport == nil {
		return ExportTarget{}, false
	}
	seen := make(map[*ExportInfo]bool)
	current := info
	for {
		if seen[current] {
			return ExportTarget{}, false
		}
		seen[current] = true
		target := *current.Reexport
		if target.Module == "" {
			return ExportTarget{}, false
		}
		if _, err := g.Module(target.Module); err != nil {
			return ExportTarget{}, false
		}
		if len(target.Export) == 0 {
			return target, true
		}
		next := g.ExportsInfo(target.Module).Export(target.Export[0])
		if next == nil || next.Reexport == nil {
			return target, true
		}
		current = next
	}
}
