package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/efebarandurmaz/hoist/internal/concat"
	"github.com/efebarandurmaz/hoist/internal/depgraph"
	"github.com/efebarandurmaz/hoist/internal/ir"
)

const doc = `{
  "modules": [
    {"id": "./index.js", "size": 10, "exports": {"provided": ["default"]}},
    {"id": "./util.js", "size": 5, "exports": {"provided": ["x"]}}
  ],
  "dependencies": [
    {"kind": "esm import", "from": "./index.js", "to": "./util.js", "imports": [["x"]]}
  ],
  "chunks": [
    {"id": "main", "name": "main", "modules": ["./index.js", "./util.js"], "entries": ["./index.js"]}
  ]
}`

type fakeRepository struct {
	passID string
	graph  *depgraph.Graph
	err    error
}

func (f *fakeRepository) StoreGraph(_ context.Context, passID string, g *depgraph.Graph) error {
	f.passID, f.graph = passID, g
	return f.err
}

func (f *fakeRepository) LoadGroups(context.Context, string) ([]depgraph.Group, error) {
	if f.graph == nil {
		return nil, nil
	}
	return f.graph.Groups, nil
}

func (f *fakeRepository) QueryImporters(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeRepository) Close(context.Context) error { return nil }

func newRunner(repo *fakeRepository) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := &Runner{
		Optimizer: concat.NewOptimizer(&concat.OptimizerConfig{Workers: 1, Logger: logger}),
		Logger:    logger,
	}
	if repo != nil {
		r.Repository = repo
	}
	return r
}

func load(t *testing.T) (*ir.ModuleGraph, *ir.ChunkGraph) {
	t.Helper()
	d, err := ir.ParseDocument([]byte(doc), ".json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mg, cg, err := d.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return mg, cg
}

func stepNames(out *Output) []string {
	var names []string
	for _, s := range out.Report.Steps {
		names = append(names, s.Name)
	}
	return names
}

func TestRun_FullPipeline(t *testing.T) {
	repo := &fakeRepository{}
	mg, cg := load(t)

	out, err := newRunner(repo).Run(context.Background(), mg, cg, Options{
		Source:      "graph.json",
		Concatenate: true,
		Export:      depgraph.FormatMermaid,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out.Result == nil || len(out.Result.Configurations) != 1 {
		t.Fatalf("expected one merged module, got %+v", out.Result)
	}
	if diff := cmp.Diff([]string{"concatenate", "analyze", "export", "store"}, stepNames(out)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(string(out.Export), "graph LR") {
		t.Errorf("expected a Mermaid export, got %q", out.Export)
	}
	if repo.passID != out.Result.PassID || len(repo.graph.Groups) != 1 {
		t.Errorf("graph not stored under the pass id: %q %+v", repo.passID, repo.graph)
	}
	if out.Report.Pass.MergedModules != 2 || out.Report.Input.Path != "graph.json" {
		t.Errorf("unexpected report %+v", out.Report.Pass)
	}
}

func TestRun_ConcatenationDisabled(t *testing.T) {
	repo := &fakeRepository{}
	mg, cg := load(t)

	out, err := newRunner(repo).Run(context.Background(), mg, cg, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Result != nil {
		t.Error("no pass should run when concatenation is disabled")
	}
	if out.Graph.Stats.ConcatenatedCount != 0 || out.Report.Output.Modules != 2 {
		t.Errorf("graph should be untouched, got %+v", out.Graph.Stats)
	}
	if repo.graph != nil {
		t.Error("nothing should be stored without a pass")
	}
	if diff := cmp.Diff([]string{"analyze"}, stepNames(out)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_StoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	mg, cg := load(t)

	_, err := newRunner(&fakeRepository{err: boom}).Run(context.Background(), mg, cg, Options{Concatenate: true})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the store error, got %v", err)
	}
}

func TestRun_UnknownExport(t *testing.T) {
	mg, cg := load(t)
	if _, err := newRunner(nil).Run(context.Background(), mg, cg, Options{Export: "svg"}); err == nil {
		t.Error("expected an error for an unknown export format")
	}
}
