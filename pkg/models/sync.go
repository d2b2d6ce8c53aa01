package models

import "time"

// Sync phases reported through progress callbacks.
const (
	SyncPhaseClearing      = "clearing"
	SyncPhaseEntities      = "entities"
	SyncPhaseRelationships = "relationships"
	SyncPhaseDone          = "done"
)

// SyncProgress is emitted after each completed batch.
type SyncProgress struct {
	Phase      string  `json:"phase"`
	Processed  int     `json:"processed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// SyncFailure records a batch or record that exhausted its retries.
type SyncFailure struct {
	Phase    string `json:"phase"`
	RecordID string `json:"record_id,omitempty"`
	Batch    int    `json:"batch"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// SyncResult summarizes a sync run.
type SyncResult struct {
	EntitiesSynced      int           `json:"entities_synced"`
	RelationshipsSynced int           `json:"relationships_synced"`
	Failures            []SyncFailure `json:"failures,omitempty"`
	StartedAt           time.Time     `json:"started_at"`
	FinishedAt          time.Time     `json:"finished_at"`
}
