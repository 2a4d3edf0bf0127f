package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphStore owns the Neo4j driver and every read/write path against the
// Entity/REL knowledge graph.
type GraphStore struct {
	driver neo4j.DriverWithContext
}

func New(driver neo4j.DriverWithContext) *GraphStore {
	return &GraphStore{driver: driver}
}

// SaveEntity upserts a node by id: unknown ids are created, known ids have
// their mutable fields overwritten.
func (g *GraphStore) SaveEntity(ctx context.Context, e Entity) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (n:Entity {id: $id})
			SET n.type = $type, n.name = $name, n.aliases = $aliases, n += $props
		`, map[string]any{
			"id":      e.ID,
			"type":    e.Type,
			"name":    e.Name,
			"aliases": e.Aliases,
			"props":   prefixedProps(e.Properties),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graphstore: save entity %s: %w", e.ID, err)
	}
	return nil
}

var relTypeSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// sanitizeRelType normalizes a relationship kind for safe interpolation into
// Cypher; the relationship TYPE cannot be parameterized, only its properties
// can, so this must run before any SaveRel or SaveBatch query is built.
func sanitizeRelType(relType string) string {
	s := strings.ToUpper(relTypeSanitizer.ReplaceAllString(relType, "_"))
	if s == "" {
		return "REL"
	}
	return s
}

// SaveRel upserts a REL relationship between two existing entities,
// overwriting its evidence payload and storing the semantic relationship
// kind as a property since Neo4j gives every relationship written here the
// same literal type, REL.
func (g *GraphStore) SaveRel(ctx context.Context, e Edge) error {
	evidence, err := json.Marshal(e.Evidence)
	if err != nil {
		return fmt.Errorf("graphstore: marshal edge evidence: %w", err)
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (a:Entity {id: $source}), (b:Entity {id: $target})
			MERGE (a)-[r:REL {relType: $relType}]->(b)
			SET r.evidence = $evidence
		`, map[string]any{
			"source":   e.Source,
			"target":   e.Target,
			"relType":  sanitizeRelType(e.RelType),
			"evidence": string(evidence),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graphstore: save edge %s->%s: %w", e.Source, e.Target, err)
	}
	return nil
}

// SaveBatch upserts a batch of entities and edges in one transaction, used
// by the youtube_kg ingestion stage after it has merged a chunk's extracted
// graph fragment into a deduplicated node/edge set.
func (g *GraphStore) SaveBatch(ctx context.Context, entities []Entity, edges []Edge) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range entities {
			if _, err := tx.Run(ctx, `
				MERGE (n:Entity {id: $id})
				SET n.type = $type, n.name = $name, n.aliases = $aliases, n += $props
			`, map[string]any{
				"id":      e.ID,
				"type":    e.Type,
				"name":    e.Name,
				"aliases": e.Aliases,
				"props":   prefixedProps(e.Properties),
			}); err != nil {
				return nil, fmt.Errorf("entity %s: %w", e.ID, err)
			}
		}
		for _, e := range edges {
			evidence, err := json.Marshal(e.Evidence)
			if err != nil {
				return nil, fmt.Errorf("marshal edge evidence %s->%s: %w", e.Source, e.Target, err)
			}
			if _, err := tx.Run(ctx, `
				MATCH (a:Entity {id: $source}), (b:Entity {id: $target})
				MERGE (a)-[r:REL {relType: $relType}]->(b)
				SET r.evidence = $evidence
			`, map[string]any{
				"source":   e.Source,
				"target":   e.Target,
				"relType":  sanitizeRelType(e.RelType),
				"evidence": string(evidence),
			}); err != nil {
				return nil, fmt.Errorf("edge %s->%s: %w", e.Source, e.Target, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graphstore: save batch: %w", err)
	}
	return nil
}

// Get fetches a single entity by id.
func (g *GraphStore) Get(ctx context.Context, id string) (Entity, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Entity {id: $id}) RETURN n LIMIT 1`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		node, _ := record.Get("n")
		return entityFromNode(node.(neo4j.Node)), nil
	})
	if err != nil {
		return Entity{}, fmt.Errorf("graphstore: get entity %s: %w", id, err)
	}
	return result.(Entity), nil
}

// FindByType returns every entity of a given type, e.g. "itinerary" or
// "poi".
func (g *GraphStore) FindByType(ctx context.Context, entityType string) ([]Entity, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Entity {type: $type}) RETURN n`, map[string]any{"type": entityType})
		if err != nil {
			return nil, err
		}
		return collectEntities(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: find by type %s: %w", entityType, err)
	}
	return result.([]Entity), nil
}

// FindByKeyword returns every entity whose name or alias list contains the
// keyword, case-insensitively. Used to seed a subgraph query from the
// nouns in a user's question.
func (g *GraphStore) FindByKeyword(ctx context.Context, keyword string, limit int) ([]Entity, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity)
			WHERE toLower(n.name) CONTAINS toLower($kw)
			   OR any(a IN n.aliases WHERE toLower(a) CONTAINS toLower($kw))
			RETURN n LIMIT $limit
		`, map[string]any{"kw": keyword, "limit": limit})
		if err != nil {
			return nil, err
		}
		return collectEntities(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: find by keyword %q: %w", keyword, err)
	}
	return result.([]Entity), nil
}

// Neighbors returns entities reachable from id within depth REL hops, in
// either direction.
func (g *GraphStore) Neighbors(ctx context.Context, id string, depth int) ([]Entity, error) {
	if depth < 1 {
		depth = 1
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
			MATCH (a:Entity {id: $id})-[:REL*1..%d]-(n:Entity)
			RETURN DISTINCT n
		`, depth), map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return collectEntities(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: neighbors of %s: %w", id, err)
	}
	return result.([]Entity), nil
}

// ItineraryPaths finds itinerary -> day plan -> point of interest chains
// rooted at an itinerary whose name mentions destination, used by the
// graph retrieval service to answer day-by-day planning questions.
func (g *GraphStore) ItineraryPaths(ctx context.Context, destination string, limit int) ([]Path, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (i:Entity {type: 'itinerary'})-[r1:REL]->(d:Entity {type: 'dayplan'})-[r2:REL]->(p:Entity {type: 'poi'})
			WHERE toLower(i.name) CONTAINS toLower($destination)
			RETURN i, r1, d, r2, p
			ORDER BY d.name
			LIMIT $limit
		`, map[string]any{"destination": destination, "limit": limit})
		if err != nil {
			return nil, err
		}

		var paths []Path
		for res.Next(ctx) {
			rec := res.Record()
			i, _ := rec.Get("i")
			d, _ := rec.Get("d")
			p, _ := rec.Get("p")
			r1, _ := rec.Get("r1")
			r2, _ := rec.Get("r2")

			iNode := entityFromNode(i.(neo4j.Node))
			dNode := entityFromNode(d.(neo4j.Node))
			pNode := entityFromNode(p.(neo4j.Node))

			var evidence []EvidenceItem
			evidence = append(evidence, evidenceFromRel(r1.(neo4j.Relationship))...)
			evidence = append(evidence, evidenceFromRel(r2.(neo4j.Relationship))...)

			paths = append(paths, Path{
				Label:    dNode.Name,
				NodeIDs:  []string{iNode.ID, dNode.ID, pNode.ID},
				Evidence: evidence,
			})
		}
		return paths, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: itinerary paths for %s: %w", destination, err)
	}
	return result.([]Path), nil
}

func collectEntities(ctx context.Context, res neo4j.ResultWithContext) ([]Entity, error) {
	var entities []Entity
	for res.Next(ctx) {
		node, _ := res.Record().Get("n")
		entities = append(entities, entityFromNode(node.(neo4j.Node)))
	}
	return entities, res.Err()
}

func entityFromNode(n neo4j.Node) Entity {
	props := n.Props
	e := Entity{
		ID:         strProp(props, "id"),
		Type:       strProp(props, "type"),
		Name:       strProp(props, "name"),
		Properties: map[string]string{},
	}
	if aliases, ok := props["aliases"].([]any); ok {
		for _, a := range aliases {
			if s, ok := a.(string); ok {
				e.Aliases = append(e.Aliases, s)
			}
		}
	}
	for k, v := range props {
		if strings.HasPrefix(k, propPrefix) {
			if s, ok := v.(string); ok {
				e.Properties[strings.TrimPrefix(k, propPrefix)] = s
			}
		}
	}
	return e
}

func evidenceFromRel(r neo4j.Relationship) []EvidenceItem {
	raw, ok := r.Props["evidence"].(string)
	if !ok || raw == "" {
		return nil
	}
	var items []EvidenceItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

const propPrefix = "prop_"

// prefixedProps flattens Properties onto the node under a prop_ prefix so
// arbitrary domain properties never collide with id/type/name/aliases.
func prefixedProps(properties map[string]string) map[string]any {
	out := make(map[string]any, len(properties))
	for k, v := range properties {
		out[propPrefix+k] = v
	}
	return out
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
