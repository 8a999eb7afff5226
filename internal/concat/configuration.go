package concat

import (
	"slices"

	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// Configuration is a group of modules that can share the scope of Root.
// Members keep insertion order and Root is always the first member.
type Configuration struct {
	Root ir.ModuleID
	// Runtime is the set of runtimes the root is used in; nil when it is
	// used in none.
	Runtime *runtimespec.Spec

	modules  []ir.ModuleID
	index    map[ir.ModuleID]struct{}
	warnings map[ir.ModuleID]Warning
}

// NewConfiguration starts a configuration holding only root.
func NewConfiguration(root ir.ModuleID, runtime *runtimespec.Spec) *Configuration {
	return &Configuration{
		Root:     root,
		Runtime:  runtime,
		modules:  []ir.ModuleID{root},
		index:    map[ir.ModuleID]struct{}{root: {}},
		warnings: make(map[ir.ModuleID]Warning),
	}
}

// Add appends a module. Adding a member twice is a no-op.
func (c *Configuration) Add(id ir.ModuleID) {
	if _, ok := c.index[id]; ok {
		return
	}
	c.index[id] = struct{}{}
	c.modules = append(c.modules, id)
}

// Has reports whether id is a member.
func (c *Configuration) Has(id ir.ModuleID) bool {
	_, ok := c.index[id]
	return ok
}

// IsEmpty reports whether the configuration holds nothing but its root.
func (c *Configuration) IsEmpty() bool { return len(c.modules) == 1 }

// Len returns the number of members including the root.
func (c *Configuration) Len() int { return len(c.modules) }

// Modules returns the members in insertion order.
func (c *Configuration) Modules() []ir.ModuleID { return slices.Clone(c.modules) }

// Snapshot returns a marker to roll back to.
func (c *Configuration) Snapshot() int { return len(c.modules) }

// Rollback drops every member added after snapshot was taken.
func (c *Configuration) Rollback(snapshot int) {
	if snapshot < 1 || snapshot >= len(c.modules) {
		return
	}
	for _, id := range c.modules[snapshot:] {
		delete(c.index, id)
	}
	c.modules = c.modules[:snapshot]
}

// AddWarning records why a module could not be added.
func (c *Configuration) AddWarning(id ir.ModuleID, w Warning) {
	c.warnings[id] = w
}

// ModuleWarning pairs a module with the warning recorded for it.
type ModuleWarning struct {
	Module  ir.ModuleID
	Warning Warning
}

// Warnings returns the recorded warnings ordered by module id.
func (c *Configuration) Warnings() []ModuleWarning {
	out := make([]ModuleWarning, 0, len(c.warnings))
	for id, w := range c.warnings {
		out = append(out, ModuleWarning{Module: id, Warning: w})
	}
	slices.SortFunc(out, func(a, b ModuleWarning) int {
		switch {
		case a.Module < b.Module:
			return -1
		case a.Module > b.Module:
			return 1
		}
		return 0
	})
	return out
}
