package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/pkg/graphmap"
	"github.com/khandro-archive/namthar/pkg/models"
)

// NodeService projects entities into graph nodes. All writes are
// merge-by-id: re-running an upsert converges on the same node state.
type NodeService struct {
	client *Client
	logger ectologger.Logger
}

// NewNodeService creates a new NodeService
func NewNodeService(client *Client, logger ectologger.Logger) *NodeService {
	return &NodeService{
		client: client,
		logger: logger,
	}
}

// Node is a graph node as read back from the store.
type Node struct {
	Labels []string
	Props  map[string]any
}

// Upsert creates or updates the node for one entity.
func (s *NodeService) Upsert(ctx context.Context, entity *models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.Upsert")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_id":   entity.ID,
		"entity_type": entity.Type,
	})

	props, err := graphmap.EntityToNode(entity)
	if err != nil {
		return err
	}

	cypher := fmt.Sprintf(`
		MERGE (e:Entity {id: $id})
		SET e = $props
		SET e:%s
		RETURN e
	`, sanitizeLabel(graphmap.TypeLabel(entity.Type)))

	_, err = s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":    entity.ID,
			"props": props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		log.WithError(err).Error("Failed to upsert entity node")
		return models.NewTransientStoreError("graph", "upsert node", err)
	}

	log.Debug("Upserted entity node")
	return nil
}

// BatchUpsert creates or updates nodes for a batch of entities in one write
// transaction.
func (s *NodeService) BatchUpsert(ctx context.Context, entities []models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.BatchUpsert")
	defer span.End()

	if len(entities) == 0 {
		return nil
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(entities),
	})

	// Nodes of one type share a Cypher statement.
	byType := make(map[models.EntityType][]map[string]any)
	for i := range entities {
		props, err := graphmap.EntityToNode(&entities[i])
		if err != nil {
			return err
		}
		byType[entities[i].Type] = append(byType[entities[i].Type], props)
	}

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for entityType, batch := range byType {
			cypher := fmt.Sprintf(`
				UNWIND $batch AS props
				MERGE (e:Entity {id: props.id})
				SET e = props
				SET e:%s
			`, sanitizeLabel(graphmap.TypeLabel(entityType)))

			if _, err := tx.Run(ctx, cypher, map[string]any{"batch": batch}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to batch upsert entity nodes")
		return models.NewTransientStoreError("graph", "batch upsert nodes", err)
	}

	log.Debug("Batch upserted entity nodes")
	return nil
}

// Get returns the node for an entity id, or nil when absent.
func (s *NodeService) Get(ctx context.Context, id string) (*Node, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.Get")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity {id: $id})
			RETURN labels(e) AS labels, properties(e) AS props
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, nil // no match
		}
		return recordToNode(record), nil
	})
	if err != nil {
		return nil, models.NewTransientStoreError("graph", "get node", err)
	}
	if result == nil {
		return nil, nil
	}
	return result.(*Node), nil
}

// GetByIDs returns the nodes for a set of ids, keyed by id. Absent ids are
// simply missing from the map.
func (s *NodeService) GetByIDs(ctx context.Context, ids []string) (map[string]*Node, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return map[string]*Node{}, nil
	}

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Entity)
			WHERE e.id IN $ids
			RETURN labels(e) AS labels, properties(e) AS props
		`, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}

		nodes := map[string]*Node{}
		for res.Next(ctx) {
			node := recordToNode(res.Record())
			if id, ok := node.Props["id"].(string); ok {
				nodes[id] = node
			}
		}
		return nodes, res.Err()
	})
	if err != nil {
		return nil, models.NewTransientStoreError("graph", "get nodes by ids", err)
	}
	return result.(map[string]*Node), nil
}

// Delete removes the node and every edge touching it.
func (s *NodeService) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.Delete")
	defer span.End()

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (e:Entity {id: $id})
			DETACH DELETE e
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_id": id,
		}).Error("Failed to delete entity node")
		return models.NewTransientStoreError("graph", "delete node", err)
	}
	return nil
}

// Count returns the number of entity nodes.
func (s *NodeService) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.Count")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity) RETURN count(e) AS total`, nil)
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
		return 0, models.NewTransientStoreError("graph", "count nodes", err)
	}
	return int(result.(int64)), nil
}

// ListIDs returns every entity node id.
func (s *NodeService) ListIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.ListIDs")
	defer span.End()

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity) RETURN e.id AS id ORDER BY id`, nil)
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
		return nil, models.NewTransientStoreError("graph", "list node ids", err)
	}
	return result.([]string), nil
}

// Clear removes every entity node and edge. Used by full sync with
// clear_existing set.
func (s *NodeService) Clear(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "graph.NodeService.Clear")
	defer span.End()

	s.logger.WithContext(ctx).Warn("Clearing graph store")

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `MATCH (e:Entity) DETACH DELETE e`, nil)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return models.NewTransientStoreError("graph", "clear", err)
	}
	return nil
}

func recordToNode(record *neo4j.Record) *Node {
	node := &Node{Props: map[string]any{}}
	if raw, ok := record.Get("labels"); ok {
		if labels, ok := raw.([]any); ok {
			for _, label := range labels {
				if str, ok := label.(string); ok {
					node.Labels = append(node.Labels, str)
				}
			}
		}
	}
	if raw, ok := record.Get("props"); ok {
		if props, ok := raw.(map[string]any); ok {
			node.Props = props
		}
	}
	return node
}

// sanitizeLabel ensures the label is safe for Cypher
func sanitizeLabel(label string) string {
	result := ""
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result += string(c)
		}
	}
	if result == "" {
		return "Entity"
	}
	return result
}
