package ir

import (
	"fmt"

	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// DependencyID identifies a dependency.
type DependencyID string

// ConnectionID identifies a connection in the module graph.
type ConnectionID int

// DependencyKind is the closed set of dependency kinds the optimizer
// distinguishes.
type DependencyKind uint8

const (
	DepESMImport DependencyKind = iota + 1
	DepESMImportSpecifier
	DepESMExportImportSpecifier
	DepESMAccept
	DepCommonJSRequire
	DepDynamicImport
	DepRequireContext
	DepModuleDecorator
	DepEntry
	DepURL
	DepWorker
)

var dependencyKindNames = map[DependencyKind]string{
	DepESMImport:                "esm import",
	DepESMImportSpecifier:       "esm import specifier",
	DepESMExportImportSpecifier: "esm export import specifier",
	DepESMAccept:                "esm accept",
	DepCommonJSRequire:          "cjs require",
	DepDynamicImport:            "dynamic import",
	DepRequireContext:           "require.context",
	DepModuleDecorator:          "module decorator",
	DepEntry:                    "entry",
	DepURL:                      "new URL()",
	DepWorker:                   "new Worker()",
}

func (k DependencyKind) String() string {
	if n, ok := dependencyKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("dependency(%d)", uint8(k))
}

// IsESMLike reports whether the dependency keeps static import semantics,
// which is required for both ends to share one scope.
func (k DependencyKind) IsESMLike() bool {
	switch k {
	case DepESMImport, DepESMImportSpecifier, DepESMExportImportSpecifier, DepESMAccept:
		return true
	}
	return false
}

// ParseDependencyKind maps the display name of a kind back to the kind.
func ParseDependencyKind(s string) (DependencyKind, error) {
	for k, n := range dependencyKindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown dependency kind %q", s)
}

// Dependency is a reference from a module (or from outside the graph) to a
// request that resolved to a module.
type Dependency struct {
	ID     DependencyID
	Kind   DependencyKind
	Parent ModuleID
	// ReferencedExports lists the export paths the dependency reads. An
	// empty path stands for the whole namespace object.
	ReferencedExports [][]string
}

// HasNamedImports reports whether every referenced export is a named path.
func (d *Dependency) HasNamedImports() bool {
	for _, path := range d.ReferencedExports {
		if len(path) == 0 {
			return false
		}
	}
	return true
}

// Connection is a directed edge of the module graph.
type Connection struct {
	ID         ConnectionID
	Dependency DependencyID
	// Origin is the module the edge starts from; empty for references from
	// outside the graph such as entries.
	Origin    ModuleID
	Target    ModuleID
	Condition runtimespec.Condition
}

// IsActive reports whether the edge is live for runtime.
func (c *Connection) IsActive(runtime *runtimespec.Spec) bool {
	return c.Condition.Holds(runtime)
}

// IsTargetActive reports whether the target is reached for runtime. The
// graph does not track weak targets, so this matches IsActive.
func (c *Connection) IsTargetActive(runtime *runtimespec.Spec) bool {
	return c.IsActive(runtime)
}
