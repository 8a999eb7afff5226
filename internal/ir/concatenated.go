package ir

import (
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// RootContext carries the identity of the module that hosts a merged scope.
type RootContext struct {
	ID                         ModuleID
	Readable                   string
	NameForCondition           string
	LibIdent                   string
	Layer                      string
	ResolveOptions             map[string]string
	CodeGenerationDependencies []DependencyID
	PresentationalDependencies []string
	SideEffectState            ConnectionState
	FactoryMeta                FactoryMeta
	BuildMeta                  BuildMeta
	ModuleArgument             string
	ExportsArgument            string
}

// InnerModule describes one member of a merged module.
type InnerModule struct {
	ID         ModuleID
	Size       float64
	ShortID    string
	HasHash    bool
	SourceHash uint64
}

// ConcatenationInfo is attached to merged modules.
type ConcatenationInfo struct {
	Root    RootContext
	Modules []InnerModule
	Runtime *runtimespec.Spec
}

// Members returns the ids of the merged modules, root first.
func (c *ConcatenationInfo) Members() []ModuleID {
	out := make([]ModuleID, 0, len(c.Modules))
	for _, m := range c.Modules {
		out = append(out, m.ID)
	}
	return out
}

// NewInnerModule describes m as a member of a merged module.
func NewInnerModule(m *Module) InnerModule {
	inner := InnerModule{ID: m.ID, Size: m.Size, ShortID: m.ReadableIdentifier()}
	if m.Source != "" {
		inner.HasHash = true
		inner.SourceHash = xxhash.Sum64String(m.Source)
	}
	return inner
}

// NewRootContext captures the identity of root.
func NewRootContext(root *Module) RootContext {
	return RootContext{
		ID:                         root.ID,
		Readable:                   root.ReadableIdentifier(),
		NameForCondition:           root.NameForCondition,
		LibIdent:                   root.LibIdent,
		Layer:                      root.Layer,
		ResolveOptions:             root.ResolveOptions,
		CodeGenerationDependencies: slices.Clone(root.CodeGenerationDependencies),
		PresentationalDependencies: slices.Clone(root.PresentationalDependencies),
		SideEffectState:            root.SideEffectState(),
		FactoryMeta:                root.FactoryMeta,
		BuildMeta:                  root.BuildMeta,
		ModuleArgument:             root.ModuleArgument,
		ExportsArgument:            root.ExportsArgument,
	}
}

// ConcatenatedModuleID derives the id of a merged module from its root and
// the ids of its members.
func ConcatenatedModuleID(root ModuleID, members []ModuleID) ModuleID {
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	d := xxhash.New()
	for _, m := range sorted {
		_, _ = d.WriteString(string(m))
		_, _ = d.Write([]byte{0})
	}
	return ModuleID(string(root) + "|" + strconv.FormatUint(d.Sum64(), 16))
}

// NewConcatenatedModule creates the merged module for a group. Call Build
// before adding it to a graph.
func NewConcatenatedModule(root RootContext, inners []InnerModule, runtime *runtimespec.Spec) *Module {
	info := &ConcatenationInfo{Root: root, Modules: slices.Clone(inners), Runtime: runtime.Clone()}
	return &Module{
		ID:                         ConcatenatedModuleID(root.ID, info.Members()),
		Readable:                   root.Readable + " + " + strconv.Itoa(len(inners)-1) + " modules",
		NameForCondition:           root.NameForCondition,
		LibIdent:                   root.LibIdent,
		Layer:                      root.Layer,
		Type:                       ModuleTypeESM,
		ResolveOptions:             root.ResolveOptions,
		CodeGenerationDependencies: root.CodeGenerationDependencies,
		PresentationalDependencies: root.PresentationalDependencies,
		BuildMeta:                  root.BuildMeta,
		FactoryMeta:                root.FactoryMeta,
		ModuleArgument:             root.ModuleArgument,
		ExportsArgument:            root.ExportsArgument,
		Concatenated:               info,
	}
}

// Build finalizes a merged module: its size is the sum of the member sizes
// and it only emits JavaScript.
func (m *Module) Build() {
	if m.Concatenated == nil {
		return
	}
	var size float64
	for _, inner := range m.Concatenated.Modules {
		size += inner.Size
	}
	m.Size = size
	m.SourceTypes = []SourceType{SourceJavaScript}
	m.BuildInfo = BuildInfo{Strict: true}
}
