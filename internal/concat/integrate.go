package concat

import (
	"github.com/efebarandurmaz/hoist/internal/ir"
)

// AppliedConfiguration describes a merged module created by a pass.
type AppliedConfiguration struct {
	Root    ir.ModuleID   `json:"root"`
	Merged  ir.ModuleID   `json:"merged"`
	Members []ir.ModuleID `json:"members"`
	Runtime []string      `json:"runtime,omitempty"`
}

// integrator applies resolved configurations to the graphs. It is the only
// part of a pass that mutates them.
type integrator struct {
	mg      *ir.ModuleGraph
	cg      *ir.ChunkGraph
	reasons *reasonStore
}

// apply replaces the members of config with one merged module.
func (in *integrator) apply(config *Configuration) (AppliedConfiguration, error) {
	fail := func(op string, module ir.ModuleID, err error) (AppliedConfiguration, error) {
		return AppliedConfiguration{}, &InvariantError{Op: op, Module: module, Root: config.Root, Err: err}
	}

	members := config.Modules()
	modules := make([]*ir.Module, 0, len(members))
	inners := make([]ir.InnerModule, 0, len(members))
	inGroup := make(map[ir.ModuleID]struct{}, len(members))
	for _, id := range members {
		m, err := in.mg.Module(id)
		if err != nil {
			return fail("integrate configuration", id, err)
		}
		modules = append(modules, m)
		inners = append(inners, ir.NewInnerModule(m))
		inGroup[id] = struct{}{}
	}
	root := modules[0]
	rootIsAsset := root.HasSourceType(ir.SourceAsset)
	rootChunks := in.cg.ModuleChunks(root.ID)

	merged := ir.NewConcatenatedModule(ir.NewRootContext(root), inners, config.Runtime)
	merged.Build()
	if err := in.mg.AddModule(merged); err != nil {
		return fail("add merged module", merged.ID, err)
	}
	in.mg.SetExportsInfo(merged.ID, in.mg.ExportsInfo(root.ID))
	in.mg.CloneModuleAttributes(root.ID, merged.ID)

	for _, m := range modules[1:] {
		err := in.mg.CopyOutgoingConnections(m.ID, merged.ID, func(c *ir.Connection, dep *ir.Dependency) bool {
			if c.Origin != m.ID {
				return false
			}
			_, internal := inGroup[c.Target]
			return !(dep.Kind.IsESMLike() && internal)
		})
		if err != nil {
			return fail("copy outgoing connections", m.ID, err)
		}
		for _, chunk := range rootChunks {
			types := in.cg.ChunkModuleSourceTypes(chunk, m)
			if len(types) == 1 {
				in.cg.DisconnectChunkAndModule(chunk, m.ID)
				continue
			}
			in.cg.SetChunkModuleSourceTypes(chunk, m.ID, withoutJavaScript(types))
		}
	}

	in.cg.ReplaceModule(root.ID, merged.ID)
	if rootIsAsset {
		// The root keeps emitting its asset from the chunks of the merged
		// module.
		in.cg.AddModule(root.ID)
		for _, chunk := range in.cg.ModuleChunks(merged.ID) {
			in.cg.SetChunkModuleSourceTypes(chunk, root.ID, withoutJavaScript(in.cg.ChunkModuleSourceTypes(chunk, root)))
			if err := in.cg.ConnectChunkAndModule(chunk, root.ID); err != nil {
				return AppliedConfiguration{}, &InvariantError{Op: "reconnect asset root", Module: root.ID, Chunk: chunk, Root: config.Root, Err: err}
			}
		}
	}

	err := in.mg.MoveModuleConnections(root.ID, merged.ID, func(c *ir.Connection, dep *ir.Dependency) bool {
		other := c.Target
		if c.Target == root.ID {
			other = c.Origin
		}
		if other == "" || !dep.Kind.IsESMLike() {
			return true
		}
		_, internal := inGroup[other]
		return !internal
	})
	if err != nil {
		return fail("move root connections", root.ID, err)
	}

	for _, w := range config.Warnings() {
		in.mg.AddBailout(merged.ID, in.reasons.format(w.Module, w.Warning))
	}

	return AppliedConfiguration{
		Root:    root.ID,
		Merged:  merged.ID,
		Members: members,
		Runtime: config.Runtime.Names(),
	}, nil
}

func withoutJavaScript(types []ir.SourceType) []ir.SourceType {
	out := make([]ir.SourceType, 0, len(types))
	for _, t := range types {
		if t != ir.SourceJavaScript {
			out = append(out, t)
		}
	}
	return out
}
