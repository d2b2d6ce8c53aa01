package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/pkg/models"
)

// EdgeService projects relationships into graph edges. Edge ids are carried
// as an id property so upserts are idempotent; inverse and symmetric edges
// get their own suffixed ids and live independently of the forward edge.
type EdgeService struct {
	client *Client
	logger ectologger.Logger
}

// NewEdgeService creates a new EdgeService
func NewEdgeService(client *Client, logger ectologger.Logger) *EdgeService {
	return &EdgeService{
		client: client,
		logger: logger,
	}
}

// EdgeInput is one edge to write.
type EdgeInput struct {
	EdgeID    string
	Type      string // UPPER_SNAKE_CASE relationship type
	SubjectID string
	ObjectID  string
	Props     map[string]any
}

// Edge is a graph edge as read back from the store.
type Edge struct {
	EdgeID    string
	Type      string
	SubjectID string
	ObjectID  string
	Props     map[string]any
}

// Upsert creates or updates one edge. Both endpoint nodes must already
// exist; a missing endpoint is a NotFoundError.
func (s *EdgeService) Upsert(ctx context.Context, edge EdgeInput) error {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.Upsert")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"edge_id":   edge.EdgeID,
		"edge_type": edge.Type,
		"subject":   edge.SubjectID,
		"object":    edge.ObjectID,
	})

	cypher := fmt.Sprintf(`
		MATCH (from:Entity {id: $subject_id})
		MATCH (to:Entity {id: $object_id})
		MERGE (from)-[r:%s {id: $edge_id}]->(to)
		SET r = $props
		SET r.id = $edge_id
		RETURN r
	`, sanitizeLabel(edge.Type))

	result, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"subject_id": edge.SubjectID,
			"object_id":  edge.ObjectID,
			"edge_id":    edge.EdgeID,
			"props":      edge.Props,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		log.WithError(err).Error("Failed to upsert edge")
		return models.NewTransientStoreError("graph", "upsert edge", err)
	}

	if summary, ok := result.(neo4j.ResultSummary); ok {
		counters := summary.Counters()
		if counters.RelationshipsCreated() == 0 && counters.PropertiesSet() == 0 {
			return models.NewNotFoundError("graph node", edge.SubjectID+" or "+edge.ObjectID)
		}
	}

	log.Debug("Upserted edge")
	return nil
}

// BatchUpsert writes a batch of edges in one transaction. Edges whose
// endpoint nodes are missing are silently skipped; the consistency checker
// surfaces them as drift.
func (s *EdgeService) BatchUpsert(ctx context.Context, edges []EdgeInput) error {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.BatchUpsert")
	defer span.End()

	if len(edges) == 0 {
		return nil
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(edges),
	})

	// Edges of one type share a Cypher statement.
	byType := make(map[string][]map[string]any)
	for _, edge := range edges {
		byType[edge.Type] = append(byType[edge.Type], map[string]any{
			"edge_id":    edge.EdgeID,
			"subject_id": edge.SubjectID,
			"object_id":  edge.ObjectID,
			"props":      edge.Props,
		})
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for edgeType, batch := range byType {
			cypher := fmt.Sprintf(`
				UNWIND $batch AS data
				MATCH (from:Entity {id: data.subject_id})
				MATCH (to:Entity {id: data.object_id})
				MERGE (from)-[r:%s {id: data.edge_id}]->(to)
				SET r = data.props
				SET r.id = data.edge_id
			`, sanitizeLabel(edgeType))

			if _, err := tx.Run(ctx, cypher, map[string]any{"batch": batch}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to batch upsert edges")
		return models.NewTransientStoreError("graph", "batch upsert edges", err)
	}

	log.Debug("Batch upserted edges")
	return nil
}

// Delete removes the edge with the given edge id.
func (s *EdgeService) Delete(ctx context.Context, edgeID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.Delete")
	defer span.End()

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH ()-[r {id: $edge_id}]->()
			DELETE r
		`, map[string]any{"edge_id": edgeID})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"edge_id": edgeID,
		}).Error("Failed to delete edge")
		return models.NewTransientStoreError("graph", "delete edge", err)
	}
	return nil
}

// Exists reports whether an edge of the given type already connects subject
// to object, regardless of edge id.
func (s *EdgeService) Exists(ctx context.Context, subjectID, objectID, edgeType string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.Exists")
	defer span.End()

	cypher := fmt.Sprintf(`
		MATCH (:Entity {id: $subject_id})-[r:%s]->(:Entity {id: $object_id})
		RETURN count(r) AS total
	`, sanitizeLabel(edgeType))

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"subject_id": subjectID,
			"object_id":  objectID,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		total, _ := record.Get("total")
		return total, nil
	})
	if err != nil {
		return false, models.NewTransientStoreError("graph", "edge exists", err)
	}
	return result.(int64) > 0, nil
}

// ListTouching returns every edge with the given node as either endpoint.
func (s *EdgeService) ListTouching(ctx context.Context, nodeID string) ([]Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.ListTouching")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (from:Entity)-[r]->(to:Entity)
			WHERE from.id = $id OR to.id = $id
			RETURN r.id AS edge_id, type(r) AS edge_type, from.id AS subject_id, to.id AS object_id, properties(r) AS props
		`, map[string]any{"id": nodeID})
		if err != nil {
			return nil, err
		}
		return collectEdges(ctx, res)
	})
	if err != nil {
		return nil, models.NewTransientStoreError("graph", "list touching edges", err)
	}
	return result.([]Edge), nil
}

// GetByIDs returns edges by edge id, keyed by id.
func (s *EdgeService) GetByIDs(ctx context.Context, edgeIDs []string) (map[string]Edge, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.GetByIDs")
	defer span.End()

	if len(edgeIDs) == 0 {
		return map[string]Edge{}, nil
	}

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (from:Entity)-[r]->(to:Entity)
			WHERE r.id IN $ids
			RETURN r.id AS edge_id, type(r) AS edge_type, from.id AS subject_id, to.id AS object_id, properties(r) AS props
		`, map[string]any{"ids": edgeIDs})
		if err != nil {
			return nil, err
		}
		edges, err := collectEdges(ctx, res)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]Edge, len(edges))
		for _, edge := range edges {
			byID[edge.EdgeID] = edge
		}
		return byID, nil
	})
	if err != nil {
		return nil, models.NewTransientStoreError("graph", "get edges by ids", err)
	}
	return result.(map[string]Edge), nil
}

// Count returns the number of edges between entity nodes.
func (s *EdgeService) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.Count")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (:Entity)-[r]->(:Entity) RETURN count(r) AS total`, nil)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		total, _ := record.Get("total")
		return total, nil
	})
	if err != nil {
		return 0, models.NewTransientStoreError("graph", "count edges", err)
	}
	return int(result.(int64)), nil
}

// ListIDs returns every edge id.
func (s *EdgeService) ListIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.EdgeService.ListIDs")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (:Entity)-[r]->(:Entity) RETURN r.id AS id ORDER BY id`, nil)
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			if id, ok := res.Record().Get("id"); ok {
				if str, ok := id.(string); ok {
					ids = append(ids, str)
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, models.NewTransientStoreError("graph", "list edge ids", err)
	}
	return result.([]string), nil
}

func collectEdges(ctx context.Context, res neo4j.ResultWithContext) ([]Edge, error) {
	var edges []Edge
	for res.Next(ctx) {
		record := res.Record()
		edge := Edge{Props: map[string]any{}}
		if v, ok := record.Get("edge_id"); ok {
			edge.EdgeID, _ = v.(string)
		}
		if v, ok := record.Get("edge_type"); ok {
			edge.Type, _ = v.(string)
		}
		if v, ok := record.Get("subject_id"); ok {
			edge.SubjectID, _ = v.(string)
		}
		if v, ok := record.Get("object_id"); ok {
			edge.ObjectID, _ = v.(string)
		}
		if v, ok := record.Get("props"); ok {
			if props, ok := v.(map[string]any); ok {
				edge.Props = props
			}
		}
		edges = append(edges, edge)
	}
	return edges, res.Err()
}
