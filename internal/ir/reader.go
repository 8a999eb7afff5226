package ir

import "github.com/efebarandurmaz/hoist/internal/runtimespec"

// GraphReader is the read-only view of a module graph used while searching
// for concatenation groups.
type GraphReader interface {
	Module(id ModuleID) (*Module, error)
	ModuleIDs() []ModuleID
	Dependency(id DependencyID) (*Dependency, error)
	ConnectionByDependency(dep DependencyID) (*Connection, bool)
	IncomingConnectionsByOrigin(id ModuleID) map[ModuleID][]*Connection
	ExportsInfo(id ModuleID) *ExportsInfo
	Depth(id ModuleID) (int, bool)
	IsAsync(id ModuleID) bool
}

// ChunkReader is the read-only view of a chunk graph used while searching
// for concatenation groups.
type ChunkReader interface {
	Chunk(id ChunkID) (*Chunk, error)
	ModuleChunks(m ModuleID) []ChunkID
	NumberOfModuleChunks(m ModuleID) int
	IsModuleInChunk(m ModuleID, chunk ChunkID) bool
	IsEntryModule(m ModuleID) bool
	ModuleRuntime(m ModuleID) *runtimespec.Spec
}

var (
	_ GraphReader = (*ModuleGraph)(nil)
	_ ChunkReader = (*ChunkGraph)(nil)
)
