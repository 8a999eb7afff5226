package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const graphYAML = `
modules:
  - id: ./index.js
    exports: {provided: [default]}
  - id: ./util.js
    exports: {provided: [x]}
  - id: ./legacy.js
    exports_type: dynamic
    exports: {dynamic: true}
dependencies:
  - kind: esm import
    from: ./index.js
    to: ./util.js
    imports: [[x]]
  - kind: cjs require
    from: ./util.js
    to: ./legacy.js
chunks:
  - id: main
    modules: [./index.js, ./util.js, ./legacy.js]
    entries: [./index.js]
`

func writeGraph(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	if err := os.WriteFile(path, []byte(graphYAML), 0o644); err != nil {
		t.Fatalf("write graph: %v", err)
	}
	return path
}

func TestRunOptimize_JSONReport(t *testing.T) {
	input := writeGraph(t)
	metricsPath := filepath.Join(t.TempDir(), "metrics.prom")

	var out bytes.Buffer
	err := runOptimize(context.Background(), "", optimizeOptions{
		input:      input,
		report:     "json",
		metricsOut: metricsPath,
	}, &out)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}

	var report struct {
		Pass struct {
			Configurations int `json:"configurations"`
			MergedModules  int `json:"merged_modules"`
		} `json:"pass"`
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out.String())
	}
	if report.Pass.Configurations != 1 || report.Pass.MergedModules != 2 {
		t.Errorf("unexpected pass %+v", report.Pass)
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), "hoist_concat_merged_modules 2") {
		t.Errorf("metrics file missing merged module gauge:\n%s", data)
	}
}

func TestRunExplain(t *testing.T) {
	input := writeGraph(t)

	var out bytes.Buffer
	if err := runExplain(context.Background(), "", input, "./legacy.js", &out); err != nil {
		t.Fatalf("explain: %v", err)
	}
	want := "./legacy.js\n  - ModuleConcatenation bailout: Module is not an ECMAScript module\n"
	if out.String() != want {
		t.Errorf("explain output = %q, want %q", out.String(), want)
	}

	out.Reset()
	if err := runExplain(context.Background(), "", input, "./util.js", &out); err != nil {
		t.Fatalf("explain: %v", err)
	}
	if !strings.Contains(out.String(), "concatenated into ./index.js|") || !strings.Contains(out.String(), "no bailouts") {
		t.Errorf("unexpected explain output %q", out.String())
	}

	if err := runExplain(context.Background(), "", input, "./missing.js", &out); err == nil {
		t.Error("expected an error for an unknown module")
	}
}

func TestRunExport(t *testing.T) {
	input := writeGraph(t)
	output := filepath.Join(t.TempDir(), "graph.mmd")

	var out bytes.Buffer
	if err := runExport(context.Background(), "", input, "mermaid", output, &out); err != nil {
		t.Fatalf("export: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be written to stdout, got %q", out.String())
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.HasPrefix(string(data), "graph LR") || strings.Contains(string(data), "subgraph") {
		t.Errorf("expected an unoptimized Mermaid graph, got:\n%s", data)
	}

	if err := runExport(context.Background(), "", input, "svg", "", &out); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
