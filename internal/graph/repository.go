package graph

import (
	"context"

	"github.com/efebarandurmaz/hoist/internal/depgraph"
)

// Repository provides storage for optimized module graphs. Every stored
// graph is keyed by the id of the pass that produced it.
type Repository interface {
	// StoreGraph persists the modules, connections and merged groups of a
	// graph.
	StoreGraph(ctx context.Context, passID string, g *depgraph.Graph) error
	// LoadGroups retrieves the merged groups stored for a pass, members in
	// root-first order.
	LoadGroups(ctx context.Context, passID string) ([]depgraph.Group, error)
	// QueryImporters returns the modules that import the given module.
	QueryImporters(ctx context.Context, passID, moduleID string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}
