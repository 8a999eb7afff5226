package concat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/runtimespec"
)

// fixture assembles a module graph and a chunk graph for a test.
type fixture struct {
	t    *testing.T
	mg   *ir.ModuleGraph
	cg   *ir.ChunkGraph
	deps int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, mg: ir.NewModuleGraph(), cg: ir.NewChunkGraph()}
}

// chunk adds a chunk. Without runtimes the chunk runs in a runtime named
// after itself.
func (f *fixture) chunk(id ir.ChunkID, runtimes ...string) {
	if len(runtimes) == 0 {
		runtimes = []string{string(id)}
	}
	f.cg.AddChunk(&ir.Chunk{ID: id, Name: string(id), Runtime: runtimespec.New(runtimes...)})
}

// module adds a strict ESM module with a closed export list and places it
// in chunks.
func (f *fixture) module(id ir.ModuleID, chunks ...ir.ChunkID) *ir.Module {
	f.t.Helper()
	m := &ir.Module{
		ID:          id,
		Type:        ir.ModuleTypeESM,
		SourceTypes: []ir.SourceType{ir.SourceJavaScript},
		Size:        10,
		Source:      "export default " + string(id),
		BuildInfo:   ir.BuildInfo{Strict: true},
		BuildMeta:   ir.BuildMeta{ExportsType: ir.ExportsNamespace},
	}
	if err := f.mg.AddModule(m); err != nil {
		f.t.Fatalf("add module %s: %v", id, err)
	}
	f.mg.SetExportsInfo(id, ir.NewClosedExportsInfo("default"))
	f.cg.AddModule(id)
	for _, c := range chunks {
		if err := f.cg.ConnectChunkAndModule(c, id); err != nil {
			f.t.Fatalf("place %s in %s: %v", id, c, err)
		}
	}
	return m
}

// entry makes id an entry of chunk, referenced from outside the graph.
func (f *fixture) entry(chunk ir.ChunkID, id ir.ModuleID) {
	f.t.Helper()
	if err := f.cg.AddEntryModule(chunk, id); err != nil {
		f.t.Fatalf("add entry %s: %v", id, err)
	}
	dep := &ir.Dependency{ID: ir.DependencyID("entry:" + string(chunk) + ":" + string(id)), Kind: ir.DepEntry}
	if err := f.mg.AddDependency(dep); err != nil {
		f.t.Fatalf("add entry dependency: %v", err)
	}
	if _, err := f.mg.Connect(dep.ID, id); err != nil {
		f.t.Fatalf("connect entry %s: %v", id, err)
	}
}

// link adds a dependency of the given kind from one module to another.
func (f *fixture) link(kind ir.DependencyKind, from, to ir.ModuleID, opts ...ir.ConnectOption) *ir.Connection {
	f.t.Helper()
	f.deps++
	dep := &ir.Dependency{
		ID:                ir.DependencyID(fmt.Sprintf("%s->%s#%d", from, to, f.deps)),
		Kind:              kind,
		Parent:            from,
		ReferencedExports: [][]string{{"default"}},
	}
	if err := f.mg.AddDependency(dep); err != nil {
		f.t.Fatalf("add dependency: %v", err)
	}
	c, err := f.mg.Connect(dep.ID, to, opts...)
	if err != nil {
		f.t.Fatalf("connect %s: %v", dep.ID, err)
	}
	return c
}

func (f *fixture) esm(from, to ir.ModuleID, opts ...ir.ConnectOption) *ir.Connection {
	f.t.Helper()
	return f.link(ir.DepESMImportSpecifier, from, to, opts...)
}

// analyze computes depths and async flags the way a loaded document does.
func (f *fixture) analyze() {
	ir.ComputeDepths(f.mg)
	ir.InferAsync(f.mg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (f *fixture) optimize() *Result {
	f.t.Helper()
	res, err := NewOptimizer(&OptimizerConfig{
		Workers:           2,
		ExplainStandalone: true,
		Logger:            quietLogger(),
	}).Optimize(context.Background(), f.mg, f.cg)
	if err != nil {
		f.t.Fatalf("optimize: %v", err)
	}
	return res
}

func (f *fixture) bailouts(id ir.ModuleID) []string {
	return f.mg.Bailouts(id)
}
