package ir

import (
	"fmt"
	"slices"

	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// ChunkID identifies an output chunk.
type ChunkID string

// Chunk is an output file grouping modules for emission.
type Chunk struct {
	ID   ChunkID
	Name string
	// Runtime is the set of runtimes the chunk is loaded in.
	Runtime *runtimespec.Spec
}

// DisplayName returns the chunk name, or a placeholder for unnamed chunks.
func (c *Chunk) DisplayName() string {
	if c.Name == "" {
		return "unnamed chunk(s)"
	}
	return c.Name
}

// ChunkGraph records which chunks contain which modules.
type ChunkGraph struct {
	chunks       map[ChunkID]*Chunk
	moduleChunks map[ModuleID]map[ChunkID]struct{}
	chunkModules map[ChunkID]map[ModuleID]struct{}
	sourceTypes  map[ChunkID]map[ModuleID][]SourceType
	entries      map[ChunkID][]ModuleID
}

// NewChunkGraph returns an empty chunk graph.
func NewChunkGraph() *ChunkGraph {
	return &ChunkGraph{
		chunks:       make(map[ChunkID]*Chunk),
		moduleChunks: make(map[ModuleID]map[ChunkID]struct{}),
		chunkModules: make(map[ChunkID]map[ModuleID]struct{}),
		sourceTypes:  make(map[ChunkID]map[ModuleID][]SourceType),
		entries:      make(map[ChunkID][]ModuleID),
	}
}

// AddChunk registers a chunk.
func (g *ChunkGraph) AddChunk(c *Chunk) {
	g.chunks[c.ID] = c
	if _, ok := g.chunkModules[c.ID]; !ok {
		g.chunkModules[c.ID] = make(map[ModuleID]struct{})
	}
}

// Chunk returns the chunk with the given id.
func (g *ChunkGraph) Chunk(id ChunkID) (*Chunk, error) {
	c, ok := g.chunks[id]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrChunkNotFound)
	}
	return c, nil
}

// ChunkIDs returns every chunk id in ascending order.
func (g *ChunkGraph) ChunkIDs() []ChunkID {
	ids := make([]ChunkID, 0, len(g.chunks))
	for id := range g.chunks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ConnectChunkAndModule places a module in a chunk.
func (g *ChunkGraph) ConnectChunkAndModule(chunk ChunkID, m ModuleID) error {
	if _, ok := g.chunks[chunk]; !ok {
		return fmt.Errorf("connect %s to chunk %s: %w", m, chunk, ErrChunkNotFound)
	}
	if g.moduleChunks[m] == nil {
		g.moduleChunks[m] = make(map[ChunkID]struct{})
	}
	g.moduleChunks[m][chunk] = struct{}{}
	g.chunkModules[chunk][m] = struct{}{}
	return nil
}

// DisconnectChunkAndModule removes a module from a chunk along with any
// source-type override it had there.
func (g *ChunkGraph) DisconnectChunkAndModule(chunk ChunkID, m ModuleID) {
	delete(g.moduleChunks[m], chunk)
	delete(g.chunkModules[chunk], m)
	delete(g.sourceTypes[chunk], m)
}

// AddModule makes sure the module has chunk-graph state, even with no
// chunks.
func (g *ChunkGraph) AddModule(m ModuleID) {
	if g.moduleChunks[m] == nil {
		g.moduleChunks[m] = make(map[ChunkID]struct{})
	}
}

// ModuleChunks returns the chunks containing a module in ascending order.
func (g *ChunkGraph) ModuleChunks(m ModuleID) []ChunkID {
	ids := make([]ChunkID, 0, len(g.moduleChunks[m]))
	for id := range g.moduleChunks[m] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ChunkModules returns the modules of a chunk in ascending order.
func (g *ChunkGraph) ChunkModules(chunk ChunkID) []ModuleID {
	ids := make([]ModuleID, 0, len(g.chunkModules[chunk]))
	for id := range g.chunkModules[chunk] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NumberOfModuleChunks returns how many chunks contain a module.
func (g *ChunkGraph) NumberOfModuleChunks(m ModuleID) int {
	return len(g.moduleChunks[m])
}

// IsModuleInChunk reports whether a chunk contains a module.
func (g *ChunkGraph) IsModuleInChunk(m ModuleID, chunk ChunkID) bool {
	_, ok := g.moduleChunks[m][chunk]
	return ok
}

// ModuleRuntime returns the union of the runtimes of every chunk containing
// a module. A module in no chunk has an empty runtime.
func (g *ChunkGraph) ModuleRuntime(m ModuleID) *runtimespec.Spec {
	rt := runtimespec.New()
	for id := range g.moduleChunks[m] {
		rt.Extend(g.chunks[id].Runtime)
	}
	return rt
}

// AddEntryModule marks a module as an entry of a chunk and places it there.
func (g *ChunkGraph) AddEntryModule(chunk ChunkID, m ModuleID) error {
	if err := g.ConnectChunkAndModule(chunk, m); err != nil {
		return err
	}
	if !slices.Contains(g.entries[chunk], m) {
		g.entries[chunk] = append(g.entries[chunk], m)
	}
	return nil
}

// IsEntryModule reports whether a module is the entry of any chunk.
func (g *ChunkGraph) IsEntryModule(m ModuleID) bool {
	for _, mods := range g.entries {
		if slices.Contains(mods, m) {
			return true
		}
	}
	return false
}

// EntryModules returns the entry modules of a chunk.
func (g *ChunkGraph) EntryModules(chunk ChunkID) []ModuleID {
	return slices.Clone(g.entries[chunk])
}

// ChunkModuleSourceTypes returns the output types a module contributes to a
// chunk: the per-chunk override when one is set, the module's own types
// otherwise.
func (g *ChunkGraph) ChunkModuleSourceTypes(chunk ChunkID, m *Module) []SourceType {
	if types, ok := g.sourceTypes[chunk][m.ID]; ok {
		return slices.Clone(types)
	}
	return slices.Clone(m.SourceTypes)
}

// SetChunkModuleSourceTypes overrides the output types a module contributes
// to a chunk.
func (g *ChunkGraph) SetChunkModuleSourceTypes(chunk ChunkID, m ModuleID, types []SourceType) {
	if g.sourceTypes[chunk] == nil {
		g.sourceTypes[chunk] = make(map[ModuleID][]SourceType)
	}
	g.sourceTypes[chunk][m] = slices.Clone(types)
}

// ReplaceModule moves every chunk membership and entry role of old to
// replacement. Source-type overrides of old are dropped.
func (g *ChunkGraph) ReplaceModule(old, replacement ModuleID) {
	for chunk := range g.moduleChunks[old] {
		delete(g.chunkModules[chunk], old)
		delete(g.sourceTypes[chunk], old)
		g.chunkModules[chunk][replacement] = struct{}{}
		if g.moduleChunks[replacement] == nil {
			g.moduleChunks[replacement] = make(map[ChunkID]struct{})
		}
		g.moduleChunks[replacement][chunk] = struct{}{}
	}
	delete(g.moduleChunks, old)
	for chunk, mods := range g.entries {
		for i, m := range mods {
			if m == old {
				mods[i] = replacement
			}
		}
		g.entries[chunk] = mods
	}
}
