package models

import "time"

// PropertyMismatch is a node/row disagreement found during a consistency check.
type PropertyMismatch struct {
	EntityID      string `json:"entity_id"`
	Property      string `json:"property"`
	DatabaseValue any    `json:"database_value"`
	GraphValue    any    `json:"graph_value"`
}

// OrphanedEdge is a graph edge whose endpoint node is missing or tombstoned.
type OrphanedEdge struct {
	RelationshipID string `json:"relationship_id"`
	MissingNodeID  string `json:"missing_node_id"`
}

// ConsistencyReport describes drift between the relational store and the
// graph at the time of the check. It is observational only; nothing is
// repaired.
type ConsistencyReport struct {
	CheckedAt time.Time `json:"checked_at"`

	DatabaseEntityCount       int `json:"database_entity_count"`
	GraphEntityCount          int `json:"graph_entity_count"`
	DatabaseRelationshipCount int `json:"database_relationship_count"`
	GraphRelationshipCount    int `json:"graph_relationship_count"`

	EntitiesMissingInGraph         []string `json:"entities_missing_in_graph,omitempty"`
	EntitiesMissingInDatabase      []string `json:"entities_missing_in_database,omitempty"`
	RelationshipsMissingInGraph    []string `json:"relationships_missing_in_graph,omitempty"`
	RelationshipsMissingInDatabase []string `json:"relationships_missing_in_database,omitempty"`

	PropertyMismatches []PropertyMismatch `json:"property_mismatches,omitempty"`
	OrphanedEdges      []OrphanedEdge     `json:"orphaned_edges,omitempty"`

	// Truncated is set when a missing-id list hit the report cap.
	Truncated bool `json:"truncated,omitempty"`

	Consistent bool   `json:"consistent"`
	Summary    string `json:"summary"`
}
