package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/efebarandurmaz/hoist/internal/concat"
	"github.com/efebarandurmaz/hoist/internal/ir"
)

// PassReport collects statistics for one optimize run.
type PassReport struct {
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at,omitempty"`
	Duration    time.Duration      `json:"duration_ms,omitempty"`
	Input       GraphMetrics       `json:"input"`
	Output      GraphMetrics       `json:"output"`
	Pass        PassMetrics        `json:"pass"`
	Steps       []StepMetrics      `json:"steps"`
	Statistics  *concat.Statistics `json:"statistics,omitempty"`
	Diagnostics []string           `json:"diagnostics,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
	Groups      []GroupMetrics     `json:"groups,omitempty"`
}

type GraphMetrics struct {
	Path         string `json:"path,omitempty"`
	Modules      int    `json:"modules"`
	Dependencies int    `json:"dependencies"`
	Connections  int    `json:"connections"`
	Chunks       int    `json:"chunks"`
	Concatenated int    `json:"concatenated"`
}

type PassMetrics struct {
	ID             string `json:"id"`
	Configurations int    `json:"configurations"`
	Dropped        int    `json:"dropped"`
	MergedModules  int    `json:"merged_modules"`
}

type StepMetrics struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Errors   int           `json:"errors"`
}

// GroupMetrics describes one merged module.
type GroupMetrics struct {
	Root    ir.ModuleID `json:"root"`
	Merged  ir.ModuleID `json:"merged"`
	Members int         `json:"members"`
	Size    float64     `json:"size"`
}

// New starts tracking a run.
func New() *PassReport {
	return &PassReport{StartedAt: time.Now()}
}

// CollectGraph computes graph metrics.
func CollectGraph(path string, mg *ir.ModuleGraph, cg *ir.ChunkGraph) GraphMetrics {
	s := mg.Stats()
	return GraphMetrics{
		Path:         path,
		Modules:      s.Modules,
		Dependencies: s.Dependencies,
		Connections:  s.Connections,
		Chunks:       len(cg.ChunkIDs()),
		Concatenated: s.Concatenated,
	}
}

// CollectInput records the graph before optimization.
func (r *PassReport) CollectInput(path string, mg *ir.ModuleGraph, cg *ir.ChunkGraph) {
	r.Input = CollectGraph(path, mg, cg)
}

// CollectResult records the outcome of a pass and the graph it left behind.
func (r *PassReport) CollectResult(res *concat.Result, mg *ir.ModuleGraph, cg *ir.ChunkGraph) {
	r.Output = CollectGraph("", mg, cg)
	r.Pass = PassMetrics{
		ID:             res.PassID,
		Configurations: len(res.Configurations),
		Dropped:        len(res.Dropped),
		MergedModules:  res.MergedModules(),
	}
	r.Statistics = res.Statistics
	r.Diagnostics = append(r.Diagnostics, res.Diagnostics...)
	for _, c := range res.Configurations {
		g := GroupMetrics{Root: c.Root, Merged: c.Merged, Members: len(c.Members)}
		if m, err := mg.Module(c.Merged); err == nil {
			g.Size = m.Size
		}
		r.Groups = append(r.Groups, g)
	}
}

// AddStep records a single step's timing and status.
func (r *PassReport) AddStep(name string, d time.Duration, errCount int) {
	r.Steps = append(r.Steps, StepMetrics{Name: name, Duration: d, Errors: errCount})
}

// Finish marks the run as complete.
func (r *PassReport) Finish(errs []string) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	r.Errors = errs
}

// PrintSummary writes a human-readable summary.
func (r *PassReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║      HOIST CONCATENATION REPORT      ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Duration:    %-23s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Pass:        %-23s║\n", shorten(r.Pass.ID, 23))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ INPUT %s\n", r.Input.Path)
	fmt.Fprintf(w, "║   Modules:      %d\n", r.Input.Modules)
	fmt.Fprintf(w, "║   Connections:  %d\n", r.Input.Connections)
	fmt.Fprintf(w, "║   Chunks:       %d\n", r.Input.Chunks)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ CONCATENATION\n")
	fmt.Fprintf(w, "║   Merged modules: %d\n", r.Pass.Configurations)
	fmt.Fprintf(w, "║   Absorbed:       %d\n", r.Pass.MergedModules)
	fmt.Fprintf(w, "║   Dropped:        %d\n", r.Pass.Dropped)
	if s := r.Statistics; s != nil {
		fmt.Fprintf(w, "║   Candidates:     %d\n", s.Candidates)
		fmt.Fprintf(w, "║   Empty:          %d\n", s.EmptyConfigurations)
		fmt.Fprintf(w, "║   Average size:   %.1f\n", s.AverageSize())
		if s.Rebuilt > 0 {
			fmt.Fprintf(w, "║   Rebuilt:        %d\n", s.Rebuilt)
		}
		for _, oc := range s.Outcomes() {
			if oc.Count > 0 {
				fmt.Fprintf(w, "║     %-28s %d\n", oc.Label, oc.Count)
			}
		}
	}
	if len(r.Groups) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ GROUPS\n")
		for _, g := range r.Groups {
			fmt.Fprintf(w, "║   %s (%d modules, %s)\n", g.Root, g.Members, formatSize(g.Size))
		}
	}
	if len(r.Steps) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ STEPS\n")
		for _, st := range r.Steps {
			status := "OK"
			if st.Errors > 0 {
				status = fmt.Sprintf("%d errors", st.Errors)
			}
			fmt.Fprintf(w, "║   %-14s %8s  %s\n", st.Name, st.Duration.Round(time.Millisecond), status)
		}
	}
	if len(r.Diagnostics) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ NOTES\n")
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "║   • %s\n", d)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *PassReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Write renders the report in the given format: "json" or "text".
func (r *PassReport) Write(w io.Writer, format string) error {
	switch format {
	case "json":
		data, err := r.JSON()
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case "text", "":
		r.PrintSummary(w)
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func formatSize(b float64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", b/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", b/float64(1<<10))
	default:
		return fmt.Sprintf("%.0f B", b)
	}
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
