package ir

import "github.com/efebarandurmaz/hoist/internal/runtimespec"

// Provision records whether an export is known to be provided.
type Provision string

const (
	ProvisionUnknown     Provision = ""
	ProvisionProvided    Provision = "provided"
	ProvisionNotProvided Provision = "not_provided"
	ProvisionMaybe       Provision = "maybe"
)

// Info renders the provision the way bailout reasons quote it.
func (p Provision) Info() string {
	switch p {
	case ProvisionProvided:
		return "provided"
	case ProvisionNotProvided:
		return "not provided"
	case ProvisionMaybe:
		return "maybe provided (runtime-defined)"
	}
	return "no provided info"
}

// UsageState records how an export is used.
type UsageState string

const (
	UsageNoInfo             UsageState = ""
	UsageUnused             UsageState = "unused"
	UsageUsed               UsageState = "used"
	UsageOnlyPropertiesUsed UsageState = "only_properties"
	UsageUnknown            UsageState = "unknown"
)

// Info renders the usage the way bailout reasons quote it.
func (u UsageState) Info() string {
	switch u {
	case UsageUnused:
		return "unused"
	case UsageUsed:
		return "used"
	case UsageOnlyPropertiesUsed:
		return "only properties used"
	case UsageUnknown:
		return "maybe used (runtime-defined)"
	}
	return "no usage info"
}

// ExportTarget is the module and export path a re-export points at.
type ExportTarget struct {
	Module ModuleID
	Export []string
}

// ExportInfo describes one named export of a module.
type ExportInfo struct {
	Name     string
	Provided Provision
	Used     UsageState
	// Reexport is non-nil when the export forwards another module's export.
	// An empty Module means the target could not be determined statically.
	Reexport *ExportTarget
}

// DisplayName returns the export name, or "other exports" for the catch-all
// entry.
func (e *ExportInfo) DisplayName() string {
	if e.Name == "" {
		return "other exports"
	}
	return e.Name
}

func (e *ExportInfo) relevant() bool {
	return e.Used != UsageUnused && e.Provided != ProvisionNotProvided
}

// ExportsInfo holds the export facts of a module.
type ExportsInfo struct {
	Exports []*ExportInfo
	// Other stands for every export not listed in Exports.
	Other ExportInfo
	// UsedIn is the set of runtimes the module is used in; nil means all.
	UsedIn *runtimespec.Spec
}

// NewClosedExportsInfo returns exports info for a module that provides
// exactly the given names, all of them used.
func NewClosedExportsInfo(names ...string) *ExportsInfo {
	info := &ExportsInfo{
		Other: ExportInfo{Provided: ProvisionNotProvided, Used: UsageUnused},
	}
	for _, n := range names {
		info.Exports = append(info.Exports, &ExportInfo{
			Name:     n,
			Provided: ProvisionProvided,
			Used:     UsageUsed,
		})
	}
	return info
}

// Export returns the named export, or nil.
func (e *ExportsInfo) Export(name string) *ExportInfo {
	if e == nil {
		return nil
	}
	for _, info := range e.Exports {
		if info.Name == name {
			return info
		}
	}
	return nil
}

// RelevantExports returns the exports that are neither unused nor known to
// be absent. The catch-all entry is included last when it is relevant.
func (e *ExportsInfo) RelevantExports() []*ExportInfo {
	if e == nil {
		return nil
	}
	var out []*ExportInfo
	for _, info := range e.Exports {
		if info.relevant() {
			out = append(out, info)
		}
	}
	if e.Other.relevant() {
		out = append(out, &e.Other)
	}
	return out
}

// ProvidedNamesKnown reports whether the module's export list is a closed,
// enumerable set.
func (e *ExportsInfo) ProvidedNamesKnown() bool {
	return e != nil && e.Other.Provided == ProvisionNotProvided
}

// ProvidedNames returns the names of exports known to be provided.
func (e *ExportsInfo) ProvidedNames() []string {
	if e == nil {
		return nil
	}
	var out []string
	for _, info := range e.Exports {
		if info.Provided == ProvisionProvided {
			out = append(out, info.Name)
		}
	}
	return out
}

// IsUsed reports whether the module's exports are used in runtime. A nil
// UsedIn means the module is used in every runtime.
func (e *ExportsInfo) IsUsed(runtime *runtimespec.Spec) bool {
	if e == nil || e.UsedIn == nil {
		return true
	}
	if runtime == nil {
		return e.UsedIn.Len() > 0
	}
	return e.UsedIn.Intersects(runtime)
}
