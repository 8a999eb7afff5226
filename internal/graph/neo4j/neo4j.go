package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/efebarandurmaz/hoist/internal/depgraph"
	"github.com/efebarandurmaz/hoist/internal/graph"
)

const (
	storeModules = "MERGE (p:Pass {id: $pass}) " +
		"WITH p UNWIND $nodes AS n " +
		"MERGE (m:Module {id: n.id, pass: $pass}) " +
		"SET m.name = n.name, m.kind = n.kind, m.chunks = n.chunks, m.entry = n.entry " +
		"MERGE (p)-[:PRODUCED]->(m)"
	storeConnections = "UNWIND $edges AS e " +
		"MATCH (a:Module {id: e.from, pass: $pass}), (b:Module {id: e.to, pass: $pass}) " +
		"MERGE (a)-[r:IMPORTS {kind: e.kind}]->(b) SET r.label = e.label"
	storeGroups = "UNWIND $groups AS grp " +
		"MATCH (g:Module {id: grp.merged, pass: $pass}) SET g.root = grp.root " +
		"WITH g, grp UNWIND range(0, size(grp.members) - 1) AS i " +
		"MATCH (m:Module {id: grp.members[i], pass: $pass}) " +
		"MERGE (g)-[:CONTAINS {position: i}]->(m)"
	loadGroups = "MATCH (g:Module {pass: $pass})-[r:CONTAINS]->(m:Module) " +
		"WITH g, r, m ORDER BY r.position " +
		"RETURN g.id AS merged, g.root AS root, collect(m.id) AS members ORDER BY merged"
	queryImporters = "MATCH (a:Module {pass: $pass})-[:IMPORTS]->(:Module {id: $id, pass: $pass}) " +
		"RETURN DISTINCT a.id AS id ORDER BY id"
)

// Neo4jRepository implements graph.Repository using Neo4j.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j creates a Neo4j-backed repository. An empty database uses the
// server default.
func NewNeo4j(ctx context.Context, uri, username, password, database string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver, database: database}, nil
}

func (r *Neo4jRepository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: r.database})
}

func (r *Neo4jRepository) StoreGraph(ctx context.Context, passID string, g *depgraph.Graph) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	params := graphParams(passID, g)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, q := range []string{storeModules, storeConnections, storeGroups} {
			if _, err := tx.Run(ctx, q, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store graph of pass %s: %w", passID, err)
	}
	return nil
}

// graphParams flattens a graph into the parameters of the store queries.
// Contains edges are stored through the groups.
func graphParams(passID string, g *depgraph.Graph) map[string]any {
	nodes := make([]any, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		chunks := make([]any, 0, len(n.Chunks))
		for _, c := range n.Chunks {
			chunks = append(chunks, c)
		}
		nodes = append(nodes, map[string]any{
			"id":     n.ID,
			"name":   n.Name,
			"kind":   string(n.Kind),
			"chunks": chunks,
			"entry":  n.Entry,
		})
	}
	edges := make([]any, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e.Kind == depgraph.EdgeContains {
			continue
		}
		edges = append(edges, map[string]any{
			"from":  e.From,
			"to":    e.To,
			"kind":  string(e.Kind),
			"label": e.Label,
		})
	}
	groups := make([]any, 0, len(g.Groups))
	for _, grp := range g.Groups {
		members := make([]any, 0, len(grp.Members))
		for _, m := range grp.Members {
			members = append(members, m)
		}
		groups = append(groups, map[string]any{
			"merged":  grp.Merged,
			"root":    grp.Root,
			"members": members,
		})
	}
	return map[string]any{"pass": passID, "nodes": nodes, "edges": edges, "groups": groups}
}

func (r *Neo4jRepository) LoadGroups(ctx context.Context, passID string) ([]depgraph.Group, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, loadGroups, map[string]any{"pass": passID})
		if err != nil {
			return nil, err
		}
		var groups []depgraph.Group
		for records.Next(ctx) {
			rec := records.Record()
			merged, _ := rec.Get("merged")
			root, _ := rec.Get("root")
			members, _ := rec.Get("members")

			grp := depgraph.Group{Merged: merged.(string)}
			if root != nil {
				grp.Root = root.(string)
			}
			for _, m := range members.([]any) {
				if id, ok := m.(string); ok {
					grp.Members = append(grp.Members, id)
				}
			}
			groups = append(groups, grp)
		}
		return groups, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load groups of pass %s: %w", passID, err)
	}
	return result.([]depgraph.Group), nil
}

func (r *Neo4jRepository) QueryImporters(ctx context.Context, passID, moduleID string) ([]string, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, queryImporters, map[string]any{"pass": passID, "id": moduleID})
		if err != nil {
			return nil, err
		}
		var ids []string
		for records.Next(ctx) {
			id, _ := records.Record().Get("id")
			ids = append(ids, id.(string))
		}
		return ids, records.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Ping checks that the server is reachable.
func (r *Neo4jRepository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

var _ graph.Repository = (*Neo4jRepository)(nil)
