package models

import "time"

// ConflictStrategy selects how attribute conflicts are resolved during a merge.
type ConflictStrategy string

const (
	// StrategyHighestConfidence keeps the value from the entity with higher confidence
	StrategyHighestConfidence ConflictStrategy = "highest_confidence"
	// StrategyMostRecent keeps the value from the most recently updated entity
	StrategyMostRecent ConflictStrategy = "most_recent"
	// StrategyManual resolves each conflicting field from the supplied resolutions
	StrategyManual ConflictStrategy = "manual"
)

// Conflict severity classes. Temporal fields are high, closed categorical
// fields medium, everything else low.
const (
	ConflictSeverityHigh   = "high"
	ConflictSeverityMedium = "medium"
	ConflictSeverityLow    = "low"
)

// MergeOptions controls a single merge operation.
type MergeOptions struct {
	Strategy ConflictStrategy `json:"strategy"`
	// Resolutions supplies the chosen value per conflicting field when
	// Strategy is manual.
	Resolutions map[string]any `json:"resolutions,omitempty"`
	// SoftDelete keeps the duplicate row as a tombstone. Hard deletes make
	// the merge irreversible.
	SoftDelete *bool  `json:"soft_delete,omitempty"`
	MergedBy   string `json:"merged_by,omitempty"`
}

// WantsSoftDelete defaults to true when unset.
func (o MergeOptions) WantsSoftDelete() bool {
	return o.SoftDelete == nil || *o.SoftDelete
}

// MergeConflict records one contested field and how it was settled.
type MergeConflict struct {
	Field          string `json:"field"`
	PrimaryValue   any    `json:"primary_value"`
	DuplicateValue any    `json:"duplicate_value"`
	Severity       string `json:"severity"`
	Resolution     string `json:"resolution"`
	ResolvedValue  any    `json:"resolved_value"`
}

// MergeHistory is the permanent audit record of a merge. Rows are never
// deleted; undo flips RollbackPossible off instead.
type MergeHistory struct {
	ID                       string           `json:"id" db:"id"`
	PrimaryID                string           `json:"primary_id" db:"primary_id"`
	DuplicateID              string           `json:"duplicate_id" db:"duplicate_id"`
	Strategy                 ConflictStrategy `json:"strategy" db:"strategy"`
	MergedBy                 string           `json:"merged_by" db:"merged_by"`
	PrimarySnapshot          Entity           `json:"primary_snapshot" db:"primary_snapshot"`
	DuplicateSnapshot        Entity           `json:"duplicate_snapshot" db:"duplicate_snapshot"`
	Conflicts                []MergeConflict  `json:"conflicts" db:"conflicts"`
	RelationshipsRewritten   int              `json:"relationships_rewritten" db:"relationships_rewritten"`
	RewrittenRelationshipIDs []string         `json:"rewritten_relationship_ids" db:"rewritten_relationship_ids"`
	// RemovedRelationships snapshots the rows between the pair that a rewrite
	// would have collapsed into self-loops. Undo re-inserts them.
	RemovedRelationships []Relationship `json:"removed_relationships,omitempty" db:"removed_relationships"`
	RollbackPossible         bool             `json:"rollback_possible" db:"rollback_possible"`
	MergedAt                 time.Time        `json:"merged_at" db:"merged_at"`
	RolledBackAt             *time.Time       `json:"rolled_back_at,omitempty" db:"rolled_back_at"`
}

// MergeResult contains the result of a completed merge operation
type MergeResult struct {
	HistoryID              string          `json:"history_id"`
	Merged                 Entity          `json:"merged"`
	Conflicts              []MergeConflict `json:"conflicts"`
	RelationshipsRewritten int             `json:"relationships_rewritten"`
	RelationshipsRemoved   int             `json:"relationships_removed"`
}

// MergeQuality summarizes the combined record a preview would produce.
type MergeQuality struct {
	Completeness      float64 `json:"completeness"`
	Consistency       float64 `json:"consistency"`
	SourceReliability float64 `json:"source_reliability"`
}

// MergePreview is a dry-run merge. Nothing is persisted.
type MergePreview struct {
	Merged    Entity          `json:"merged"`
	Conflicts []MergeConflict `json:"conflicts"`
	Quality   MergeQuality    `json:"quality"`
}

// MergeRequest is the API shape for executing or previewing a merge.
type MergeRequest struct {
	PrimaryID   string           `json:"primary_id" validate:"required"`
	DuplicateID string           `json:"duplicate_id" validate:"required"`
	Strategy    ConflictStrategy `json:"strategy,omitempty"`
	Resolutions map[string]any   `json:"resolutions,omitempty"`
	SoftDelete  *bool            `json:"soft_delete,omitempty"`
	MergedBy    string           `json:"merged_by,omitempty"`
}

// Options converts the request into engine options.
func (r MergeRequest) Options() MergeOptions {
	strategy := r.Strategy
	if strategy == "" {
		strategy = StrategyHighestConfidence
	}
	return MergeOptions{
		Strategy:    strategy,
		Resolutions: r.Resolutions,
		SoftDelete:  r.SoftDelete,
		MergedBy:    r.MergedBy,
	}
}
