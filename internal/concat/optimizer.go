package concat

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/observability"
)

// Phase names, as they appear in logs and span names.
const (
	PhaseSelect    = "select relevant modules"
	PhaseSort      = "sort relevant modules"
	PhaseFind      = "find modules to concatenate"
	PhaseResolve   = "sort concat configurations"
	PhaseIntegrate = "integrate configurations"
)

// Recorder receives the counters of a pass.
type Recorder interface {
	ObserveAdmission(outcome string, n int)
	ObservePass(applied, empty, dropped, merged int, duration time.Duration)
}

// Auditor receives the lifecycle events of a pass.
type Auditor interface {
	LogPassStart(ctx context.Context, passID string, moduleCount, chunkCount int)
	LogPassComplete(ctx context.Context, passID string, duration time.Duration, applied, empty, dropped int)
	LogPassError(ctx context.Context, passID string, err error)
	LogConfigurationApplied(ctx context.Context, passID, root, merged string, members []string)
	LogConfigurationEmpty(ctx context.Context, passID, root string, warnings int)
}

var (
	_ Recorder = (*observability.Metrics)(nil)
	_ Auditor  = (*observability.AuditLogger)(nil)
)

// OptimizerConfig configures an Optimizer.
type OptimizerConfig struct {
	Workers           int          // Parallelism of classification; <= 0 means GOMAXPROCS
	ExplainStandalone bool         // Record why unabsorbed inner modules stayed alone
	Logger            *slog.Logger // Defaults to slog.Default()
	Metrics           Recorder     // Optional
	Audit             Auditor      // Defaults to the global audit logger
}

// Optimizer runs module concatenation passes.
type Optimizer struct {
	config *OptimizerConfig
	logger *slog.Logger
	audit  Auditor
}

// NewOptimizer creates an optimizer. A nil config uses the defaults.
func NewOptimizer(cfg *OptimizerConfig) *Optimizer {
	if cfg == nil {
		cfg = &OptimizerConfig{ExplainStandalone: true}
	}
	c := *cfg
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := c.Audit
	if audit == nil {
		audit = observability.Audit()
	}
	return &Optimizer{config: &c, logger: logger.WithGroup("concat"), audit: audit}
}

// Result is the outcome of one pass.
type Result struct {
	PassID         string                 `json:"pass_id"`
	Configurations []AppliedConfiguration `json:"configurations"`
	// Dropped lists roots whose configuration lost every inner module to a
	// larger configuration.
	Dropped     []ir.ModuleID `json:"dropped,omitempty"`
	Statistics  *Statistics   `json:"statistics"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// MergedModules returns the number of modules absorbed into merged modules.
func (r *Result) MergedModules() int {
	n := 0
	for _, c := range r.Configurations {
		n += len(c.Members)
	}
	return n
}

// Optimize merges every group of modules that can share one scope. Graph
// invariant violations abort the pass with an *InvariantError; modules that
// cannot be merged only get bailout diagnostics.
func (o *Optimizer) Optimize(ctx context.Context, mg *ir.ModuleGraph, cg *ir.ChunkGraph) (*Result, error) {
	start := time.Now()
	passID := uuid.NewString()
	moduleCount, chunkCount := len(mg.ModuleIDs()), len(cg.ChunkIDs())

	ctx, span := observability.StartPassSpan(ctx, passID, moduleCount, chunkCount)
	defer span.End()
	o.audit.LogPassStart(ctx, passID, moduleCount, chunkCount)

	res, err := o.run(ctx, passID, mg, cg)
	if err != nil {
		observability.RecordError(span, err)
		o.audit.LogPassError(ctx, passID, err)
		return nil, err
	}
	res.Duration = time.Since(start)

	observability.RecordPassResult(span, len(res.Configurations), res.Statistics.EmptyConfigurations, res.Statistics.Candidates, res.Duration)
	if m := o.config.Metrics; m != nil {
		for _, oc := range res.Statistics.Outcomes() {
			m.ObserveAdmission(oc.Label, oc.Count)
		}
		m.ObservePass(len(res.Configurations), res.Statistics.EmptyConfigurations, len(res.Dropped), res.MergedModules(), res.Duration)
	}
	o.audit.LogPassComplete(ctx, passID, res.Duration, len(res.Configurations), res.Statistics.EmptyConfigurations, len(res.Dropped))
	o.logger.Info("pass complete",
		"pass_id", passID,
		"configurations", len(res.Configurations),
		"merged_modules", res.MergedModules(),
		"duration", res.Duration,
	)
	return res, nil
}

func (o *Optimizer) run(ctx context.Context, passID string, mg *ir.ModuleGraph, cg *ir.ChunkGraph) (*Result, error) {
	res := &Result{PassID: passID, Statistics: newStatistics()}
	reasons := newReasonStore()

	var cands *candidates
	err := o.phase(ctx, PhaseSelect, func(ctx context.Context) error {
		var err error
		cands, err = classifyModules(ctx, mg, cg, reasons, o.config.Workers)
		return err
	})
	if err != nil {
		return nil, err
	}

	_ = o.phase(ctx, PhaseSort, func(context.Context) error {
		mg.SortByDepth(cands.roots)
		return nil
	})

	s := &search{
		mg:         mg,
		cg:         cg,
		candidates: cands,
		imports:    newRuntimeCache[[]ir.ModuleID](),
		stats:      res.Statistics,
	}

	var accepted, empty []*Configuration
	err = o.phase(ctx, PhaseFind, func(ctx context.Context) error {
		facts, err := buildFactCache(ctx, mg, cg, relevantModules(cands), o.config.Workers)
		if err != nil {
			return err
		}
		s.facts = facts
		accepted, empty, err = s.findConfigurations(cands.roots)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, c := range empty {
		o.bailOutRoot(mg, reasons, c)
		o.audit.LogConfigurationEmpty(ctx, passID, string(c.Root), len(c.Warnings()))
	}
	if n := res.Statistics.Configurations; n > 0 {
		o.logger.Debug(fmt.Sprintf("%d successful concat configurations (avg size: %.0f), %d bailed out completely",
			n, res.Statistics.AverageSize(), res.Statistics.EmptyConfigurations))
	}
	o.logger.Debug(res.Statistics.Summary())

	var resolved *resolution
	err = o.phase(ctx, PhaseResolve, func(context.Context) error {
		var err error
		resolved, err = s.resolve(accepted)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, c := range resolved.dropped {
		o.bailOutRoot(mg, reasons, c)
		res.Dropped = append(res.Dropped, c.Root)
		res.Diagnostics = append(res.Diagnostics,
			fmt.Sprintf("configuration rooted at %s was dropped: its inner modules belong to larger configurations", c.Root))
	}

	if o.config.ExplainStandalone {
		standalone, err := s.diagnoseStandalone(resolved.applied)
		if err != nil {
			return nil, err
		}
		ids := make([]ir.ModuleID, 0, len(standalone))
		for id := range standalone {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			mg.AddBailout(id, reasons.format(id, standalone[id]))
		}
	}

	err = o.phase(ctx, PhaseIntegrate, func(ctx context.Context) error {
		in := &integrator{mg: mg, cg: cg, reasons: reasons}
		for _, c := range resolved.applied {
			applied, err := o.integrate(ctx, in, c)
			if err != nil {
				return err
			}
			res.Configurations = append(res.Configurations, applied)
			o.audit.LogConfigurationApplied(ctx, passID, string(applied.Root), string(applied.Merged), idStrings(applied.Members))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(res.Configurations) > 0 {
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf(
			"%d modules were concatenated into %d merged modules: module hashes, module ids, chunk ids, chunk runtime requirements and chunk hashes must be recomputed",
			res.MergedModules(), len(res.Configurations)))
	}
	return res, nil
}

func (o *Optimizer) integrate(ctx context.Context, in *integrator, c *Configuration) (AppliedConfiguration, error) {
	_, span := observability.StartIntegrateSpan(ctx, string(c.Root), c.Len())
	defer span.End()
	applied, err := in.apply(c)
	if err != nil {
		observability.RecordError(span, err)
	}
	return applied, err
}

// phase runs fn inside a span and logs its duration.
func (o *Optimizer) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := observability.StartPhaseSpan(ctx, name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	if err != nil {
		observability.RecordError(span, err)
	}
	o.logger.Debug("phase finished", "phase", name, "duration", time.Since(start))
	return err
}

// bailOutRoot records the warnings of a configuration that will not be
// applied on its root.
func (o *Optimizer) bailOutRoot(mg *ir.ModuleGraph, reasons *reasonStore, c *Configuration) {
	for _, w := range c.Warnings() {
		mg.AddBailout(c.Root, reasons.format(w.Module, w.Warning))
	}
}

func relevantModules(c *candidates) []ir.ModuleID {
	seen := make(map[ir.ModuleID]struct{}, len(c.roots)+len(c.inners))
	ids := make([]ir.ModuleID, 0, len(c.roots)+len(c.inners))
	for _, id := range c.roots {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for id := range c.inners {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func idStrings(ids []ir.ModuleID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
