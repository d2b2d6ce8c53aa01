package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/khandro-archive/namthar/pkg/kafka"
	"github.com/khandro-archive/namthar/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	// Merge lifecycle
	EventTypeEntityMerged      EventType = "entity.merged"
	EventTypeEntityMergeUndone EventType = "entity.merge_undone"

	// Dedup review
	EventTypeDuplicateCandidate EventType = "duplicate.candidate"

	// Operational
	EventTypeSyncCompleted      EventType = "sync.completed"
	EventTypeConsistencyChecked EventType = "consistency.checked"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: kafka.SchemaVersion,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}

// EntityMergedEvent is emitted after a merge commits.
type EntityMergedEvent struct {
	BaseEvent
	HistoryID              string                  `json:"history_id"`
	PrimaryID              string                  `json:"primary_id"`
	DuplicateID            string                  `json:"duplicate_id"`
	EntityType             string                  `json:"entity_type"`
	Strategy               models.ConflictStrategy `json:"strategy"`
	MergedBy               string                  `json:"merged_by,omitempty"`
	Conflicts              []models.MergeConflict  `json:"conflicts,omitempty"`
	RelationshipsRewritten int                     `json:"relationships_rewritten"`
	RollbackPossible       bool                    `json:"rollback_possible"`
}

// EntityMergeUndoneEvent is emitted after a merge is rolled back.
type EntityMergeUndoneEvent struct {
	BaseEvent
	HistoryID   string `json:"history_id"`
	PrimaryID   string `json:"primary_id"`
	DuplicateID string `json:"duplicate_id"`
	EntityType  string `json:"entity_type"`
}

// DuplicateCandidateEvent is emitted when a scan records a new pending pair.
type DuplicateCandidateEvent struct {
	BaseEvent
	PairID     string              `json:"pair_id"`
	EntityID1  string              `json:"entity_id_1"`
	EntityID2  string              `json:"entity_id_2"`
	Overall    float64             `json:"overall"`
	Signals    models.SignalScores `json:"signals"`
	Confidence string              `json:"confidence"`
}

// SyncCompletedEvent is emitted after a sync run finishes.
type SyncCompletedEvent struct {
	BaseEvent
	EntitiesSynced      int   `json:"entities_synced"`
	RelationshipsSynced int   `json:"relationships_synced"`
	Failures            int   `json:"failures"`
	DurationMs          int64 `json:"duration_ms"`
}

// ConsistencyCheckedEvent is emitted after a consistency check.
type ConsistencyCheckedEvent struct {
	BaseEvent
	Consistent                bool   `json:"consistent"`
	DatabaseEntityCount       int    `json:"database_entity_count"`
	GraphEntityCount          int    `json:"graph_entity_count"`
	DatabaseRelationshipCount int    `json:"database_relationship_count"`
	GraphRelationshipCount    int    `json:"graph_relationship_count"`
	PropertyMismatches        int    `json:"property_mismatches"`
	OrphanedEdges             int    `json:"orphaned_edges"`
	Summary                   string `json:"summary"`
}
