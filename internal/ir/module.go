package ir

import "slices"

// ModuleID is the stable identity of a module node in the module graph.
type ModuleID string

// ModuleType describes how a module was parsed.
type ModuleType string

const (
	ModuleTypeESM     ModuleType = "javascript/esm"
	ModuleTypeAuto    ModuleType = "javascript/auto"
	ModuleTypeDynamic ModuleType = "javascript/dynamic"
	ModuleTypeAsset   ModuleType = "asset"
	ModuleTypeCSS     ModuleType = "css"
)

// SourceType is a kind of output a module contributes to a chunk.
type SourceType string

const (
	SourceJavaScript SourceType = "javascript"
	SourceAsset      SourceType = "asset"
	SourceCSS        SourceType = "css"
)

// ExportsType is the interop shape of a module's exports object.
type ExportsType string

const (
	ExportsNamespace   ExportsType = "namespace"
	ExportsDefault     ExportsType = "default"
	ExportsFlagged     ExportsType = "flagged"
	ExportsDynamicType ExportsType = "dynamic"
)

// BuildInfo holds facts produced by parsing the module.
type BuildInfo struct {
	Strict        bool
	TopLevelAwait bool
	// ConcatBailout is a parser-reported reason the module cannot be
	// concatenated, for example use of eval().
	ConcatBailout string
}

// BuildMeta holds module metadata that survives into code generation.
type BuildMeta struct {
	ExportsType    ExportsType
	DefaultObject  string
	SideEffectFree bool
}

// FactoryMeta holds facts set by the module factory.
type FactoryMeta struct {
	SideEffectFree *bool
}

// Module is a node of the module graph.
type Module struct {
	ID               ModuleID
	Readable         string
	NameForCondition string
	LibIdent         string
	Layer            string
	Type             ModuleType
	SourceTypes      []SourceType
	Size             float64
	Source           string

	// Dependencies lists the module's dependencies in source order.
	Dependencies               []DependencyID
	CodeGenerationDependencies []DependencyID
	PresentationalDependencies []string
	ResolveOptions             map[string]string

	BuildInfo   BuildInfo
	BuildMeta   BuildMeta
	FactoryMeta FactoryMeta

	ModuleArgument  string
	ExportsArgument string

	// Concatenated is set on merged modules created by scope hoisting.
	Concatenated *ConcatenationInfo
}

// ReadableIdentifier returns the human-readable name of the module.
func (m *Module) ReadableIdentifier() string {
	if m.Readable != "" {
		return m.Readable
	}
	return string(m.ID)
}

// HasSourceType reports whether the module emits the given output type.
func (m *Module) HasSourceType(t SourceType) bool {
	return slices.Contains(m.SourceTypes, t)
}

// ConcatenationBailoutReason returns the module-kind-specific reason the
// module cannot take part in concatenation, or "" when it can.
func (m *Module) ConcatenationBailoutReason() string {
	switch {
	case m.Concatenated != nil:
		return "Module is already concatenated"
	case m.BuildInfo.ConcatBailout != "":
		return m.BuildInfo.ConcatBailout
	case m.BuildMeta.ExportsType != ExportsNamespace:
		return "Module is not an ECMAScript module"
	}
	return ""
}

// SideEffectState reports whether evaluating the module has observable side
// effects.
func (m *Module) SideEffectState() ConnectionState {
	if m.FactoryMeta.SideEffectFree != nil && *m.FactoryMeta.SideEffectFree {
		return ConnectionInactive
	}
	if m.BuildMeta.SideEffectFree {
		return ConnectionInactive
	}
	return ConnectionActive
}

// ConnectionState is the activity of a connection or a module's side effects.
type ConnectionState string

const (
	ConnectionActive   ConnectionState = "active"
	ConnectionInactive ConnectionState = "inactive"
)
