package depgraph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Formats accepted by Export.
const (
	FormatDOT     = "dot"
	FormatMermaid = "mermaid"
	FormatJSON    = "json"
)

// Formats lists the accepted export formats.
var Formats = []string{FormatDOT, FormatMermaid, FormatJSON}

// Export renders the graph in the given format.
func Export(g *Graph, format string) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(ExportDOT(g)), nil
	case FormatMermaid:
		return []byte(ExportMermaid(g)), nil
	case FormatJSON:
		return ExportJSON(g)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// ExportDOT generates a Graphviz DOT representation of the graph.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph modules {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	// Merged groups become clusters
	groups, loose := groupNodes(g)
	for i, grp := range g.Groups {
		b.WriteString(fmt.Sprintf("  subgraph cluster_%d {\n", i))
		b.WriteString(fmt.Sprintf("    label=%s;\n", dotQuote(grp.Root)))
		b.WriteString("    style=dashed;\n")
		b.WriteString("    color=\"#58a6ff\";\n")
		for _, n := range groups[grp.Merged] {
			writeDOTNode(&b, "    ", n)
		}
		b.WriteString("  }\n\n")
	}
	for _, n := range loose {
		writeDOTNode(&b, "  ", n)
	}
	if len(loose) > 0 {
		b.WriteString("\n")
	}

	// Add edges
	for _, e := range g.Edges {
		label := ""
		if e.Label != "" {
			label = " label=" + dotQuote(e.Label)
		}
		b.WriteString(fmt.Sprintf("  %s -> %s [style=%s color=\"%s\"%s];\n",
			dotQuote(e.From), dotQuote(e.To), edgeStyle(e.Kind), edgeColor(e.Kind), label))
	}

	b.WriteString("}\n")
	return b.String()
}

func writeDOTNode(b *strings.Builder, indent string, n Node) {
	peripheries := ""
	if n.Entry {
		peripheries = " peripheries=2"
	}
	b.WriteString(fmt.Sprintf("%s%s [label=%s shape=%s style=filled fillcolor=\"%s\"%s];\n",
		indent, dotQuote(n.ID), dotQuote(n.Name), nodeShape(n.Kind), nodeColor(n.Kind), peripheries))
}

// ExportMermaid generates a Mermaid diagram of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	ids := mermaidIDs(g)
	groups, loose := groupNodes(g)
	for i, grp := range g.Groups {
		b.WriteString(fmt.Sprintf("  subgraph group%d[\"%s\"]\n", i, mermaidLabel(grp.Root)))
		for _, n := range groups[grp.Merged] {
			b.WriteString(fmt.Sprintf("    %s%s\n", ids[n.ID], mermaidNodeShape(n)))
		}
		b.WriteString("  end\n")
	}
	for _, n := range loose {
		b.WriteString(fmt.Sprintf("  %s%s\n", ids[n.ID], mermaidNodeShape(n)))
	}

	// Add edges
	for _, e := range g.Edges {
		label := ""
		if e.Label != "" {
			label = "|" + mermaidLabel(e.Label) + "|"
		}
		b.WriteString(fmt.Sprintf("  %s %s%s %s\n", ids[e.From], mermaidArrow(e.Kind), label, ids[e.To]))
	}

	return b.String()
}

// ExportJSON serializes the graph to JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// FormatStats returns a human-readable summary of graph statistics.
func FormatStats(g *Graph) string {
	var b strings.Builder
	b.WriteString("Module Graph Statistics\n")
	b.WriteString("=======================\n\n")
	b.WriteString(fmt.Sprintf("Nodes:          %d total\n", g.Stats.TotalNodes))
	b.WriteString(fmt.Sprintf("  Modules:      %d\n", g.Stats.ModuleCount))
	b.WriteString(fmt.Sprintf("  Concatenated: %d\n", g.Stats.ConcatenatedCount))
	b.WriteString(fmt.Sprintf("  Inner:        %d\n", g.Stats.InnerCount))
	b.WriteString(fmt.Sprintf("  Entries:      %d\n", g.Stats.EntryCount))
	b.WriteString(fmt.Sprintf("  Bailed out:   %d\n", g.Stats.BailoutCount))
	b.WriteString(fmt.Sprintf("Edges:          %d total\n", g.Stats.TotalEdges))
	b.WriteString(fmt.Sprintf("Max Fan-Out:    %d (%s)\n", g.Stats.MaxFanOut, g.Stats.HotspotNode))
	b.WriteString(fmt.Sprintf("Max Fan-In:     %d\n", g.Stats.MaxFanIn))
	b.WriteString(fmt.Sprintf("Components:     %d\n", g.Stats.ConnectedComponents))

	if len(g.Stats.CyclicDeps) > 0 {
		b.WriteString(fmt.Sprintf("\nCyclic Dependencies: %d\n", len(g.Stats.CyclicDeps)))
		for i, cycle := range g.Stats.CyclicDeps {
			b.WriteString(fmt.Sprintf("  %d: %s\n", i+1, strings.Join(cycle, " -> ")))
		}
	}

	if len(g.Stats.ChunkModules) > 0 {
		b.WriteString("\nChunks:\n")
		chunks := make([]string, 0, len(g.Stats.ChunkModules))
		for c := range g.Stats.ChunkModules {
			chunks = append(chunks, c)
		}
		sort.Strings(chunks)
		for _, c := range chunks {
			b.WriteString(fmt.Sprintf("  %s: %d modules\n", c, g.Stats.ChunkModules[c]))
		}
	}

	return b.String()
}

// groupNodes splits nodes into merged groups and the rest, keeping node
// order.
func groupNodes(g *Graph) (map[string][]Node, []Node) {
	groups := make(map[string][]Node, len(g.Groups))
	var loose []Node
	for _, n := range g.Nodes {
		if n.Group != "" {
			groups[n.Group] = append(groups[n.Group], n)
			continue
		}
		loose = append(loose, n)
	}
	return groups, loose
}

func dotQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// mermaidIDs assigns each node a stable identifier Mermaid accepts. Module
// ids contain path separators and can collide once sanitized, so the node
// index is appended.
func mermaidIDs(g *Graph) map[string]string {
	ids := make(map[string]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[n.ID] = fmt.Sprintf("%s_%d", sanitizeMermaidID(n.Name), i)
	}
	return ids
}

func sanitizeMermaidID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func mermaidLabel(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "|", "#124;").Replace(s)
}

func nodeShape(kind NodeKind) string {
	switch kind {
	case NodeConcatenated:
		return "box3d"
	case NodeInner:
		return "ellipse"
	default:
		return "box"
	}
}

func nodeColor(kind NodeKind) string {
	switch kind {
	case NodeConcatenated:
		return "#1f6feb"
	case NodeInner:
		return "#8957e5"
	default:
		return "#238636"
	}
}

func edgeStyle(kind EdgeKind) string {
	switch kind {
	case EdgeDynamic:
		return "dotted"
	case EdgeContains:
		return "dashed"
	default:
		return "solid"
	}
}

func edgeColor(kind EdgeKind) string {
	switch kind {
	case EdgeStatic:
		return "#3fb950"
	case EdgeDynamic:
		return "#d29922"
	case EdgeContains:
		return "#8b949e"
	default:
		return "#c9d1d9"
	}
}

func mermaidNodeShape(n Node) string {
	label := mermaidLabel(n.Name)
	switch n.Kind {
	case NodeConcatenated:
		return fmt.Sprintf("[[\"%s\"]]", label)
	case NodeInner:
		return fmt.Sprintf("([\"%s\"])", label)
	default:
		return fmt.Sprintf("[\"%s\"]", label)
	}
}

func mermaidArrow(kind EdgeKind) string {
	switch kind {
	case EdgeDynamic:
		return "-.->"
	case EdgeContains:
		return "==>"
	default:
		return "-->"
	}
}
