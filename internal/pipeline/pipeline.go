// Package pipeline runs the steps shared by the hoist commands and the
// optimization service: concatenation, analysis, export and persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/hoist/internal/concat"
	"github.com/efebarandurmaz/hoist/internal/depgraph"
	"github.com/efebarandurmaz/hoist/internal/graph"
	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/metrics"
	"github.com/efebarandurmaz/hoist/internal/observability"
)

// Runner holds the collaborators of a run. Optimizer is required; the rest
// are optional.
type Runner struct {
	Optimizer  *concat.Optimizer
	Repository graph.Repository
	Audit      *observability.AuditLogger
	Logger     *slog.Logger
}

// Options selects the steps of a run.
type Options struct {
	Source      string // Shown in the report
	Concatenate bool
	Export      string // "dot", "mermaid", "json" or empty for none
	ExportPath  string // Where the caller writes the export, for the audit log
}

// Output is everything a run produced.
type Output struct {
	// Result is nil when concatenation was disabled.
	Result *concat.Result
	Report *metrics.PassReport
	Graph  *depgraph.Graph
	Export []byte
}

// Run processes a loaded graph. The graphs are modified in place.
func (r *Runner) Run(ctx context.Context, mg *ir.ModuleGraph, cg *ir.ChunkGraph, opts Options) (*Output, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := r.Audit
	if audit == nil {
		audit = observability.Audit()
	}

	out := &Output{Report: metrics.New()}
	out.Report.CollectInput(opts.Source, mg, cg)

	if opts.Concatenate {
		start := time.Now()
		res, err := r.Optimizer.Optimize(ctx, mg, cg)
		if err != nil {
			out.Report.AddStep("concatenate", time.Since(start), 1)
			return nil, fmt.Errorf("concatenate: %w", err)
		}
		out.Report.AddStep("concatenate", time.Since(start), 0)
		out.Report.CollectResult(res, mg, cg)
		out.Result = res
	} else {
		out.Report.Output = metrics.CollectGraph("", mg, cg)
		out.Report.Diagnostics = append(out.Report.Diagnostics, "module concatenation is disabled")
	}

	start := time.Now()
	g, err := depgraph.Analyze(mg, cg)
	if err != nil {
		return nil, fmt.Errorf("analyze graph: %w", err)
	}
	out.Graph = g
	out.Report.AddStep("analyze", time.Since(start), 0)

	if opts.Export != "" {
		start = time.Now()
		_, span := observability.StartExportSpan(ctx, opts.Export)
		data, err := depgraph.Export(g, opts.Export)
		span.End()
		if err != nil {
			return nil, err
		}
		out.Export = data
		out.Report.AddStep("export", time.Since(start), 0)
		audit.LogGraphExport(ctx, opts.Export, opts.ExportPath, len(data))
	}

	if r.Repository != nil && out.Result != nil {
		start = time.Now()
		err := r.Repository.StoreGraph(ctx, out.Result.PassID, g)
		audit.LogGraphStore(ctx, out.Result.PassID, len(g.Nodes), err)
		if err != nil {
			out.Report.AddStep("store", time.Since(start), 1)
			return nil, fmt.Errorf("store graph: %w", err)
		}
		out.Report.AddStep("store", time.Since(start), 0)
		logger.Info("graph stored", "pass_id", out.Result.PassID, "modules", len(g.Nodes), "groups", len(g.Groups))
	}

	out.Report.Finish(nil)
	return out, nil
}
