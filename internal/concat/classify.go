package concat

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/hoist/internal/ir"
)

// eligibility is the outcome of classifying one module.
type eligibility struct {
	canBeRoot  bool
	canBeInner bool
	reasons    []string
}

func disqualified(reason string) eligibility {
	return eligibility{reasons: []string{reason}}
}

// candidates are the modules that may host or join a merged scope.
type candidates struct {
	roots  []ir.ModuleID
	inners map[ir.ModuleID]struct{}
}

func (c *candidates) isInner(id ir.ModuleID) bool {
	_, ok := c.inners[id]
	return ok
}

// classifyModules decides for every module whether it can be a root and
// whether it can be an inner member. Modules are classified in parallel;
// reasons are recorded on the graph afterwards in id order.
func classifyModules(ctx context.Context, mg *ir.ModuleGraph, cg ir.ChunkReader, reasons *reasonStore, workers int) (*candidates, error) {
	ids := mg.ModuleIDs()
	results := make([]eligibility, len(ids))

	eg, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		eg.SetLimit(workers)
	}
	for i, id := range ids {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := classify(mg, cg, id)
			if err != nil {
				return err
			}
			if len(e.reasons) > 0 {
				reasons.set(id, e.reasons[len(e.reasons)-1])
			}
			results[i] = e
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := &candidates{inners: make(map[ir.ModuleID]struct{})}
	for i, id := range ids {
		e := results[i]
		for _, r := range e.reasons {
			mg.AddBailout(id, formatBailoutReason(r))
		}
		if e.canBeRoot {
			out.roots = append(out.roots, id)
		}
		if e.canBeInner {
			out.inners[id] = struct{}{}
		}
	}
	return out, nil
}

func classify(mg ir.GraphReader, cg ir.ChunkReader, id ir.ModuleID) (eligibility, error) {
	m, err := mg.Module(id)
	if err != nil {
		return eligibility{}, invariant("classify module", id, err)
	}
	if reason := m.ConcatenationBailoutReason(); reason != "" {
		return disqualified(reason), nil
	}
	if mg.IsAsync(id) {
		return disqualified("Module is async"), nil
	}
	if !m.BuildInfo.Strict {
		return disqualified("Module is not in strict mode"), nil
	}
	if cg.NumberOfModuleChunks(id) == 0 {
		return disqualified("Module is not in any chunk"), nil
	}

	relevant := mg.ExportsInfo(id).RelevantExports()

	var unknownTargets []string
	for _, info := range relevant {
		if info.Reexport == nil {
			continue
		}
		if _, ok := ir.ResolveExportTarget(mg, info); !ok {
			unknownTargets = append(unknownTargets, info.DisplayName()+" : "+info.Used.Info())
		}
	}
	if len(unknownTargets) > 0 {
		return disqualified("Reexports in this module do not have a static target (" + strings.Join(unknownTargets, ", ") + ")"), nil
	}

	e := eligibility{canBeRoot: true, canBeInner: true}

	var dynamic []string
	for _, info := range relevant {
		if info.Provided != ir.ProvisionProvided {
			dynamic = append(dynamic, info.DisplayName()+" : "+info.Provided.Info()+" and "+info.Used.Info())
		}
	}
	if len(dynamic) > 0 {
		e.canBeRoot = false
		e.reasons = append(e.reasons, "List of module exports is dynamic ("+strings.Join(dynamic, ", ")+")")
	}

	if cg.IsEntryModule(id) {
		e.canBeInner = false
		e.reasons = append(e.reasons, "Module is an entry point")
	}
	return e, nil
}
