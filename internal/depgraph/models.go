package depgraph

// Node represents a module in the exported graph
type Node struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Kind     NodeKind          `json:"kind"`            // module, concatenated, inner
	Group    string            `json:"group,omitempty"` // merged module the node belongs to
	Chunks   []string          `json:"chunks,omitempty"`
	Entry    bool              `json:"entry,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NodeKind classifies graph nodes
type NodeKind string

const (
	NodeModule       NodeKind = "module"
	NodeConcatenated NodeKind = "concatenated"
	NodeInner        NodeKind = "inner"
)

// Edge represents a directed edge between two nodes
type Edge struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Kind  EdgeKind `json:"kind"`
	Label string   `json:"label,omitempty"`
}

// EdgeKind classifies relationships
type EdgeKind string

const (
	EdgeStatic   EdgeKind = "static"   // ESM import or export
	EdgeDynamic  EdgeKind = "dynamic"  // require, import() and the like
	EdgeContains EdgeKind = "contains" // merged module contains member
)

// Graph is the exported module graph
type Graph struct {
	Nodes  []Node     `json:"nodes"`
	Edges  []Edge     `json:"edges"`
	Groups []Group    `json:"groups,omitempty"`
	Stats  GraphStats `json:"stats"`
}

// Group is a merged module and the modules it absorbed, root first.
type Group struct {
	Merged  string   `json:"merged"`
	Root    string   `json:"root"`
	Members []string `json:"members"`
}

// GraphStats holds computed metrics about the graph
type GraphStats struct {
	TotalNodes          int            `json:"total_nodes"`
	TotalEdges          int            `json:"total_edges"`
	ModuleCount         int            `json:"module_count"`
	ConcatenatedCount   int            `json:"concatenated_count"`
	InnerCount          int            `json:"inner_count"`
	EntryCount          int            `json:"entry_count"`
	BailoutCount        int            `json:"bailout_count"` // modules with at least one bailout
	MaxFanOut           int            `json:"max_fan_out"`   // most outgoing edges
	MaxFanIn            int            `json:"max_fan_in"`    // most incoming edges
	HotspotNode         string         `json:"hotspot_node"`  // node with most outgoing edges
	ConnectedComponents int            `json:"connected_components"`
	CyclicDeps          [][]string     `json:"cyclic_deps,omitempty"`
	ChunkModules        map[string]int `json:"chunk_modules"` // per-chunk module count
}
