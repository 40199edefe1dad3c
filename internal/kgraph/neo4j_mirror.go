package kgraph

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/neo4jdb"
)

// SyncToNeo4j mirrors the catalog into Neo4j for offline analysis and
// cross-learner queries. Best effort: the in-memory graph stays the source
// of truth and the tutoring loop never reads Neo4j on the hot path.
func SyncToNeo4j(ctx context.Context, client *neo4jdb.Client, g *Graph, log *logger.Logger) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)

	nodes := make([]map[string]any, 0, g.Len())
	var prereqs []map[string]any
	for _, c := range g.All() {
		nodes = append(nodes, map[string]any{
			"id":              c.ID,
			"name":            c.Name,
			"description":     c.Description,
			"base_difficulty": c.BaseDifficulty,
			"synced_at":       now,
		})
		for _, p := range c.Prerequisites {
			prereqs = append(prereqs, map[string]any{"from_id": p, "to_id": c.ID, "synced_at": now})
		}
	}
	var transfers []map[string]any
	for _, c := range g.All() {
		for _, e := range g.TransferEdgesFrom(c.ID) {
			transfers = append(transfers, map[string]any{
				"from_id":   e.From,
				"to_id":     e.To,
				"weight":    e.Weight,
				"synced_at": now,
			})
		}
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Schema helpers are best-effort; restricted users may not be allowed.
	if res, err := session.Run(ctx, `CREATE CONSTRAINT concept_id_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`, nil); err != nil {
		if log != nil {
			log.Warn("neo4j schema init failed (continuing)", "error", err)
		}
	} else {
		_, _ = res.Consume(ctx)
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (c:Concept {id: n.id})
SET c += n
`, map[string]any{"nodes": nodes})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(prereqs) > 0 {
			res, err = tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Concept {id: r.from_id})
MATCH (b:Concept {id: r.to_id})
MERGE (a)-[e:PREREQ_OF]->(b)
SET e.synced_at = r.synced_at
`, map[string]any{"rels": prereqs})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		if len(transfers) > 0 {
			res, err = tx.Run(ctx, `
UNWIND $rels AS r
MATCH (a:Concept {id: r.from_id})
MATCH (b:Concept {id: r.to_id})
MERGE (a)-[e:TRANSFERS_TO]->(b)
SET e.weight = r.weight,
    e.synced_at = r.synced_at
`, map[string]any{"rels": transfers})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
