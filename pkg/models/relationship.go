package models

import "time"

// Relationship is a directed edge between two entities, stored relationally
// and mirrored into the graph.
type Relationship struct {
	ID         string         `json:"id" db:"id"`
	SubjectID  string         `json:"subject_id" db:"subject_id"`
	Predicate  string         `json:"predicate" db:"predicate"`
	ObjectID   string         `json:"object_id" db:"object_id"`
	Properties map[string]any `json:"properties,omitempty" db:"properties"`
	Confidence float64        `json:"confidence" db:"confidence"`
	Verified   bool           `json:"verified" db:"verified"`
	Provenance Provenance     `json:"provenance" db:"provenance"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// CreateRelationshipRequest is the intake shape for a new relationship.
type CreateRelationshipRequest struct {
	ID         string         `json:"id,omitempty"`
	SubjectID  string         `json:"subject_id" validate:"required"`
	Predicate  string         `json:"predicate" validate:"required"`
	ObjectID   string         `json:"object_id" validate:"required"`
	Properties map[string]any `json:"properties,omitempty"`
	Confidence float64        `json:"confidence" validate:"gte=0,lte=1"`
	Provenance Provenance     `json:"provenance"`
}

// RelationshipListResponse is the response for listing relationships
type RelationshipListResponse struct {
	Items      []Relationship `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
