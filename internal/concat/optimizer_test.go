package concat

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/efebarandurmaz/hoist/internal/ir"
)

func chain(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.chunk("main")
	f.module("./entry.js", "main")
	f.module("./b.js", "main")
	f.module("./c.js", "main")
	f.entry("main", "./entry.js")
	f.esm("./entry.js", "./b.js")
	return f
}

func TestOptimize_ESMChain(t *testing.T) {
	f := chain(t)
	f.esm("./b.js", "./c.js")
	f.analyze()

	res := f.optimize()

	if len(res.Configurations) != 1 {
		t.Fatalf("expected 1 configuration, got %d", len(res.Configurations))
	}
	applied := res.Configurations[0]
	want := []ir.ModuleID{"./entry.js", "./b.js", "./c.js"}
	if diff := cmp.Diff(want, applied.Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}

	merged, err := f.mg.Module(applied.Merged)
	if err != nil {
		t.Fatalf("merged module missing: %v", err)
	}
	if merged.Concatenated == nil || merged.Size != 30 {
		t.Errorf("unexpected merged module %+v", merged)
	}
	if f.mg.ExportsInfo(applied.Merged) != f.mg.ExportsInfo("./entry.js") {
		t.Error("merged module must share the root's exports info")
	}
	if diff := cmp.Diff([]ir.ModuleID{applied.Merged}, f.cg.ChunkModules("main")); diff != "" {
		t.Errorf("chunk modules mismatch (-want +got):\n%s", diff)
	}
	if !f.cg.IsEntryModule(applied.Merged) {
		t.Error("merged module should take over the entry role")
	}
	if len(res.Diagnostics) == 0 {
		t.Error("expected the recompute notice in diagnostics")
	}
}

func TestOptimize_CommonJSEdgeStaysOutside(t *testing.T) {
	f := chain(t)
	f.link(ir.DepCommonJSRequire, "./b.js", "./c.js")
	f.analyze()

	res := f.optimize()

	if len(res.Configurations) != 1 {
		t.Fatalf("expected 1 configuration, got %d", len(res.Configurations))
	}
	applied := res.Configurations[0]
	if diff := cmp.Diff([]ir.ModuleID{"./entry.js", "./b.js"}, applied.Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"ModuleConcatenation bailout: Cannot concat with ./c.js: Module ./c.js is referenced from these modules with unsupported syntax: ./b.js (referenced with cjs require)",
	}
	if diff := cmp.Diff(want, f.bailouts("./c.js")); diff != "" {
		t.Errorf("bailouts of c mismatch (-want +got):\n%s", diff)
	}

	if !f.cg.IsModuleInChunk("./c.js", "main") {
		t.Error("c must stay in its chunk")
	}
	var fromMerged bool
	for _, c := range f.mg.OutgoingConnections(applied.Merged) {
		if c.Target == "./c.js" {
			fromMerged = true
		}
	}
	if !fromMerged {
		t.Error("the require of c should now start at the merged module")
	}
}

func TestOptimize_SharedModuleInDifferentChunks(t *testing.T) {
	f := newFixture(t)
	f.chunk("a", "main")
	f.chunk("b", "main")
	f.module("./entry-a.js", "a")
	f.module("./entry-b.js", "b")
	f.module("./d.js", "a", "b")
	f.entry("a", "./entry-a.js")
	f.entry("b", "./entry-b.js")
	f.esm("./entry-a.js", "./d.js")
	f.esm("./entry-b.js", "./d.js")
	f.analyze()

	res := f.optimize()

	if len(res.Configurations) != 0 {
		t.Fatalf("expected no configuration, got %+v", res.Configurations)
	}
	wantD := []string{
		"ModuleConcatenation bailout: Cannot concat with ./d.js: Module ./d.js is referenced from different chunks by these modules: ./entry-a.js, ./entry-b.js",
	}
	if diff := cmp.Diff(wantD, f.bailouts("./d.js")); diff != "" {
		t.Errorf("bailouts of d mismatch (-want +got):\n%s", diff)
	}
	wantA := []string{
		"ModuleConcatenation bailout: Module is an entry point",
		"ModuleConcatenation bailout: Cannot concat with ./d.js: Module ./d.js is referenced from different chunks by these modules: ./entry-b.js",
	}
	if diff := cmp.Diff(wantA, f.bailouts("./entry-a.js")); diff != "" {
		t.Errorf("bailouts of entry-a mismatch (-want +got):\n%s", diff)
	}
	if res.Statistics.IncorrectChunksOfImporter != 2 {
		t.Errorf("expected 2 importer chunk rejections, got %d", res.Statistics.IncorrectChunksOfImporter)
	}
}

func TestOptimize_IndependentChains(t *testing.T) {
	f := newFixture(t)
	f.chunk("one")
	f.chunk("two")
	f.module("./one.js", "one")
	f.module("./one-dep.js", "one")
	f.module("./two.js", "two")
	f.module("./two-dep.js", "two")
	f.entry("one", "./one.js")
	f.entry("two", "./two.js")
	f.esm("./one.js", "./one-dep.js")
	f.esm("./two.js", "./two-dep.js")
	f.analyze()

	res := f.optimize()

	if len(res.Configurations) != 2 {
		t.Fatalf("expected 2 configurations, got %d", len(res.Configurations))
	}
	assertDisjoint(t, res)
	for _, applied := range res.Configurations {
		chunks := f.cg.ModuleChunks(applied.Merged)
		if len(chunks) != 1 {
			t.Errorf("merged %s in chunks %v", applied.Merged, chunks)
		}
	}
}

func TestOptimize_LargerConfigurationWins(t *testing.T) {
	f := newFixture(t)
	f.chunk("main")
	for _, id := range []ir.ModuleID{"./r1.js", "./r2.js", "./e.js", "./f.js", "./g.js"} {
		f.module(id, "main")
	}
	f.entry("main", "./r2.js")
	f.esm("./r2.js", "./r1.js")
	f.esm("./r2.js", "./g.js")
	f.esm("./r1.js", "./e.js")
	f.esm("./r1.js", "./f.js")
	// r1 is explored as a root before r2.
	f.mg.SetDepth("./r1.js", 0)
	f.mg.SetDepth("./r2.js", 1)
	for _, id := range []ir.ModuleID{"./e.js", "./f.js", "./g.js"} {
		f.mg.SetDepth(id, 2)
	}

	res := f.optimize()

	if res.Statistics.Configurations != 2 {
		t.Fatalf("expected both roots to form a configuration, got %d", res.Statistics.Configurations)
	}
	if len(res.Configurations) != 1 {
		t.Fatalf("expected 1 applied configuration, got %d", len(res.Configurations))
	}
	want := []ir.ModuleID{"./r2.js", "./r1.js", "./g.js", "./e.js", "./f.js"}
	if diff := cmp.Diff(want, res.Configurations[0].Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestOptimize_OverlapIsRebuilt(t *testing.T) {
	f := newFixture(t)
	f.chunk("c1", "r1")
	f.chunk("c2", "r2")
	f.module("./x.js", "c1")
	f.module("./y.js", "c2")
	f.module("./s.js", "c1", "c2")
	f.module("./u.js", "c1")
	f.module("./t.js", "c2")
	f.module("./v.js", "c2")
	f.entry("c1", "./x.js")
	f.entry("c2", "./y.js")
	f.esm("./x.js", "./s.js")
	f.esm("./x.js", "./u.js")
	f.esm("./y.js", "./s.js")
	f.esm("./y.js", "./t.js")
	f.esm("./y.js", "./v.js")
	f.analyze()

	res := f.optimize()

	if len(res.Configurations) != 2 {
		t.Fatalf("expected 2 configurations, got %d", len(res.Configurations))
	}
	assertDisjoint(t, res)
	if diff := cmp.Diff([]ir.ModuleID{"./y.js", "./s.js", "./t.js", "./v.js"}, res.Configurations[0].Members); diff != "" {
		t.Errorf("first configuration mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ir.ModuleID{"./x.js", "./u.js"}, res.Configurations[1].Members); diff != "" {
		t.Errorf("rebuilt configuration mismatch (-want +got):\n%s", diff)
	}
	want := "ModuleConcatenation bailout: Cannot concat with ./s.js: Module ./s.js is already concatenated into ./y.js"
	if got := f.bailouts(res.Configurations[1].Merged); !slices.Contains(got, want) {
		t.Errorf("expected %q in %v", want, got)
	}
	st := res.Statistics
	if st.Rebuilt != 1 || st.Candidates != 5 || st.Added != 5 || st.InvalidModule != 0 {
		t.Errorf("rebuild leaked into statistics: %+v", st)
	}
}

func TestOptimize_OverlapDropsEmptyRebuild(t *testing.T) {
	f := newFixture(t)
	f.chunk("c1", "r1")
	f.chunk("c2", "r2")
	f.module("./x.js", "c1")
	f.module("./y.js", "c2")
	f.module("./s.js", "c1", "c2")
	f.module("./t.js", "c2")
	f.entry("c1", "./x.js")
	f.entry("c2", "./y.js")
	f.esm("./x.js", "./s.js")
	f.esm("./y.js", "./s.js")
	f.esm("./y.js", "./t.js")
	f.analyze()

	res := f.optimize()

	if len(res.Configurations) != 1 || res.Configurations[0].Root != "./y.js" {
		t.Fatalf("expected only y to be applied, got %+v", res.Configurations)
	}
	if diff := cmp.Diff([]ir.ModuleID{"./x.js"}, res.Dropped); diff != "" {
		t.Errorf("dropped mismatch (-want +got):\n%s", diff)
	}
	want := "ModuleConcatenation bailout: Cannot concat with ./s.js: Module ./s.js is already concatenated into ./y.js"
	if got := f.bailouts("./x.js"); !slices.Contains(got, want) {
		t.Errorf("expected %q in %v", want, got)
	}
}

func TestOptimize_Idempotent(t *testing.T) {
	f := chain(t)
	f.esm("./b.js", "./c.js")
	f.analyze()

	first := f.optimize()
	if len(first.Configurations) != 1 {
		t.Fatalf("expected 1 configuration, got %d", len(first.Configurations))
	}
	second := f.optimize()
	if len(second.Configurations) != 0 {
		t.Fatalf("second pass produced %+v", second.Configurations)
	}
	merged := first.Configurations[0].Merged
	if !slices.Contains(f.bailouts(merged), "ModuleConcatenation bailout: Module is already concatenated") {
		t.Errorf("expected merged module to report it is already concatenated, got %v", f.bailouts(merged))
	}
}

func TestOptimize_InvariantViolation(t *testing.T) {
	f := chain(t)
	m, _ := f.mg.Module("./b.js")
	m.Dependencies = append(m.Dependencies, "missing")
	f.analyze()

	_, err := NewOptimizer(&OptimizerConfig{Logger: quietLogger()}).Optimize(context.Background(), f.mg, f.cg)
	if err == nil {
		t.Fatal("expected an error")
	}
	var ie *InvariantError
	if !errors.As(err, &ie) {
		t.Fatalf("expected *InvariantError, got %T: %v", err, err)
	}
	if ie.Module != "./b.js" {
		t.Errorf("expected module context ./b.js, got %q", ie.Module)
	}
	if !errors.Is(err, ir.ErrDependencyNotFound) {
		t.Errorf("expected wrapped ErrDependencyNotFound, got %v", err)
	}
}

func assertDisjoint(t *testing.T, res *Result) {
	t.Helper()
	owner := make(map[ir.ModuleID]ir.ModuleID)
	for _, c := range res.Configurations {
		for _, m := range c.Members {
			if prev, ok := owner[m]; ok {
				t.Errorf("%s belongs to both %s and %s", m, prev, c.Root)
			}
			owner[m] = c.Root
		}
	}
}
