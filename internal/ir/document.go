package ir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// Document is the serialized form of a module graph with its chunk
// assignment.
type Document struct {
	Modules      []ModuleDoc     `json:"modules" yaml:"modules"`
	Dependencies []DependencyDoc `json:"dependencies" yaml:"dependencies"`
	Chunks       []ChunkDoc      `json:"chunks" yaml:"chunks"`
}

// ModuleDoc describes one module.
type ModuleDoc struct {
	ID            string     `json:"id" yaml:"id"`
	Name          string     `json:"name,omitempty" yaml:"name,omitempty"`
	Layer         string     `json:"layer,omitempty" yaml:"layer,omitempty"`
	Type          string     `json:"type,omitempty" yaml:"type,omitempty"`
	SourceTypes   []string   `json:"source_types,omitempty" yaml:"source_types,omitempty"`
	Size          float64    `json:"size,omitempty" yaml:"size,omitempty"`
	Source        string     `json:"source,omitempty" yaml:"source,omitempty"`
	Strict        *bool      `json:"strict,omitempty" yaml:"strict,omitempty"`
	TopLevelAwait bool       `json:"top_level_await,omitempty" yaml:"top_level_await,omitempty"`
	Bailout       string     `json:"bailout,omitempty" yaml:"bailout,omitempty"`
	ExportsType   string     `json:"exports_type,omitempty" yaml:"exports_type,omitempty"`
	SideEffects   *bool      `json:"side_effects,omitempty" yaml:"side_effects,omitempty"`
	Exports       ExportsDoc `json:"exports" yaml:"exports"`
}

// ExportsDoc describes a module's exports.
type ExportsDoc struct {
	Provided []string `json:"provided,omitempty" yaml:"provided,omitempty"`
	Unused   []string `json:"unused,omitempty" yaml:"unused,omitempty"`
	// Dynamic marks an export list that is not fully known.
	Dynamic   bool          `json:"dynamic,omitempty" yaml:"dynamic,omitempty"`
	Reexports []ReexportDoc `json:"reexports,omitempty" yaml:"reexports,omitempty"`
	// UsedIn restricts the runtimes the module is used in.
	UsedIn []string `json:"used_in,omitempty" yaml:"used_in,omitempty"`
	// ModuleUnused marks a module whose exports are used in no runtime.
	ModuleUnused bool `json:"module_unused,omitempty" yaml:"module_unused,omitempty"`
}

// ReexportDoc describes an export forwarded from another module. An empty
// From means the target is not statically known.
type ReexportDoc struct {
	Name   string `json:"name" yaml:"name"`
	From   string `json:"from,omitempty" yaml:"from,omitempty"`
	Export string `json:"export,omitempty" yaml:"export,omitempty"`
}

// DependencyDoc describes a dependency and the connection it resolved to.
type DependencyDoc struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Kind string `json:"kind" yaml:"kind"`
	// From is empty for references from outside the graph.
	From      string                 `json:"from,omitempty" yaml:"from,omitempty"`
	To        string                 `json:"to" yaml:"to"`
	Imports   [][]string             `json:"imports,omitempty" yaml:"imports,omitempty"`
	Condition *runtimespec.Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ChunkDoc describes a chunk.
type ChunkDoc struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Runtime []string `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	Modules []string `json:"modules,omitempty" yaml:"modules,omitempty"`
	Entries []string `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// LoadDocument reads a JSON or YAML document from path and builds the
// graphs it describes.
func LoadDocument(path string) (*ModuleGraph, *ChunkGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read graph document: %w", err)
	}
	doc, err := ParseDocument(data, filepath.Ext(path))
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc.Build()
}

// ParseDocument decodes a document. ext selects YAML for ".yaml"/".yml" and
// JSON otherwise.
func ParseDocument(data []byte, ext string) (*Document, error) {
	var doc Document
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// Build creates the module and chunk graphs. Entry modules of chunks get an
// entry connection from outside the graph unless the document already has
// one. Depths and async flags are computed.
func (d *Document) Build() (*ModuleGraph, *ChunkGraph, error) {
	mg := NewModuleGraph()
	cg := NewChunkGraph()

	for _, md := range d.Modules {
		m := md.module()
		if err := mg.AddModule(m); err != nil {
			return nil, nil, err
		}
		mg.SetExportsInfo(m.ID, md.Exports.exportsInfo())
		cg.AddModule(m.ID)
	}

	hasEntryDep := make(map[ModuleID]bool)
	for i, dd := range d.Dependencies {
		kind, err := ParseDependencyKind(dd.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("dependency %d: %w", i, err)
		}
		id := DependencyID(dd.ID)
		if id == "" {
			id = DependencyID(fmt.Sprintf("%s#%d", dd.From, i))
		}
		dep := &Dependency{ID: id, Kind: kind, Parent: ModuleID(dd.From), ReferencedExports: dd.Imports}
		if err := mg.AddDependency(dep); err != nil {
			return nil, nil, err
		}
		var opts []ConnectOption
		if dd.Condition != nil {
			opts = append(opts, WithCondition(*dd.Condition))
		}
		if _, err := mg.Connect(id, ModuleID(dd.To), opts...); err != nil {
			return nil, nil, err
		}
		if dd.From == "" {
			hasEntryDep[ModuleID(dd.To)] = true
		}
	}

	for _, chd := range d.Chunks {
		chunk := &Chunk{ID: ChunkID(chd.ID), Name: chd.Name}
		if len(chd.Runtime) > 0 {
			chunk.Runtime = runtimespec.New(chd.Runtime...)
		} else {
			chunk.Runtime = runtimespec.New(chd.ID)
		}
		cg.AddChunk(chunk)
		for _, m := range chd.Modules {
			if !mg.HasModule(ModuleID(m)) {
				return nil, nil, fmt.Errorf("chunk %s: module %s: %w", chd.ID, m, ErrModuleNotFound)
			}
			if err := cg.ConnectChunkAndModule(chunk.ID, ModuleID(m)); err != nil {
				return nil, nil, err
			}
		}
		for _, e := range chd.Entries {
			entry := ModuleID(e)
			if !mg.HasModule(entry) {
				return nil, nil, fmt.Errorf("chunk %s: entry %s: %w", chd.ID, e, ErrModuleNotFound)
			}
			if err := cg.AddEntryModule(chunk.ID, entry); err != nil {
				return nil, nil, err
			}
			if hasEntryDep[entry] {
				continue
			}
			dep := &Dependency{ID: DependencyID("entry:" + chd.ID + ":" + e), Kind: DepEntry}
			if err := mg.AddDependency(dep); err != nil {
				return nil, nil, err
			}
			if _, err := mg.Connect(dep.ID, entry); err != nil {
				return nil, nil, err
			}
			hasEntryDep[entry] = true
		}
	}

	ComputeDepths(mg)
	InferAsync(mg)
	return mg, cg, nil
}

func (md ModuleDoc) module() *Module {
	m := &Module{
		ID:              ModuleID(md.ID),
		Readable:        md.Name,
		Layer:           md.Layer,
		Type:            ModuleType(md.Type),
		Size:            md.Size,
		Source:          md.Source,
		ModuleArgument:  "module",
		ExportsArgument: "exports",
		BuildInfo: BuildInfo{
			Strict:        md.Strict == nil || *md.Strict,
			TopLevelAwait: md.TopLevelAwait,
			ConcatBailout: md.Bailout,
		},
		BuildMeta: BuildMeta{ExportsType: ExportsType(md.ExportsType)},
	}
	if m.Type == "" {
		m.Type = ModuleTypeESM
	}
	if m.BuildMeta.ExportsType == "" {
		m.BuildMeta.ExportsType = ExportsNamespace
	}
	if md.SideEffects != nil && !*md.SideEffects {
		m.BuildMeta.SideEffectFree = true
	}
	if len(md.SourceTypes) == 0 {
		m.SourceTypes = []SourceType{SourceJavaScript}
	}
	for _, t := range md.SourceTypes {
		m.SourceTypes = append(m.SourceTypes, SourceType(t))
	}
	return m
}

func (ed ExportsDoc) exportsInfo() *ExportsInfo {
	info := NewClosedExportsInfo(ed.Provided...)
	for _, name := range ed.Unused {
		info.Exports = append(info.Exports, &ExportInfo{Name: name, Provided: ProvisionProvided, Used: UsageUnused})
	}
	for _, r := range ed.Reexports {
		target := &ExportTarget{Module: ModuleID(r.From)}
		if r.Export != "" {
			target.Export = []string{r.Export}
		}
		info.Exports = append(info.Exports, &ExportInfo{
			Name:     r.Name,
			Provided: ProvisionProvided,
			Used:     UsageUsed,
			Reexport: target,
		})
	}
	if ed.Dynamic {
		info.Other = ExportInfo{Provided: ProvisionUnknown, Used: UsageUnknown}
	}
	switch {
	case ed.ModuleUnused:
		info.UsedIn = runtimespec.New()
	case len(ed.UsedIn) > 0:
		info.UsedIn = runtimespec.New(ed.UsedIn...)
	}
	return info
}
