package models

import (
	"encoding/json"
	"time"
)

// EntityType enumerates the kinds of records the archive tracks.
type EntityType string

const (
	EntityTypePerson      EntityType = "person"
	EntityTypePlace       EntityType = "place"
	EntityTypeText        EntityType = "text"
	EntityTypeEvent       EntityType = "event"
	EntityTypeLineage     EntityType = "lineage"
	EntityTypeConcept     EntityType = "concept"
	EntityTypeInstitution EntityType = "institution"
	EntityTypeDeity       EntityType = "deity"
)

// ValidEntityTypes is the closed set accepted on intake.
var ValidEntityTypes = map[EntityType]bool{
	EntityTypePerson:      true,
	EntityTypePlace:       true,
	EntityTypeText:        true,
	EntityTypeEvent:       true,
	EntityTypeLineage:     true,
	EntityTypeConcept:     true,
	EntityTypeInstitution: true,
	EntityTypeDeity:       true,
}

// Merge status values. A merged entity is a tombstone: it stays readable for
// provenance but is excluded from queries, scans, and graph sync.
const (
	MergeStatusActive = "active"
	MergeStatusMerged = "merged"
)

// NameVariants holds the entity's names grouped by script or romanization
// scheme. Order within each list is preserved; the first entry is the
// preferred form for that scheme.
type NameVariants struct {
	Tibetan   []string `json:"tibetan,omitempty"`
	English   []string `json:"english,omitempty"`
	Wylie     []string `json:"wylie,omitempty"`
	Phonetic  []string `json:"phonetic,omitempty"`
	Sanskrit  []string `json:"sanskrit,omitempty"`
	Chinese   []string `json:"chinese,omitempty"`
	Mongolian []string `json:"mongolian,omitempty"`
}

// All returns every name variant across schemes, canonical order.
func (n NameVariants) All() []string {
	out := make([]string, 0, len(n.Tibetan)+len(n.English)+len(n.Wylie)+len(n.Phonetic)+len(n.Sanskrit)+len(n.Chinese)+len(n.Mongolian))
	out = append(out, n.Tibetan...)
	out = append(out, n.English...)
	out = append(out, n.Wylie...)
	out = append(out, n.Phonetic...)
	out = append(out, n.Sanskrit...)
	out = append(out, n.Chinese...)
	out = append(out, n.Mongolian...)
	return out
}

// DatePrecision orders from most to least certain.
type DatePrecision string

const (
	DatePrecisionExact     DatePrecision = "exact"
	DatePrecisionCirca     DatePrecision = "circa"
	DatePrecisionEstimated DatePrecision = "estimated"
	DatePrecisionDisputed  DatePrecision = "disputed"
	DatePrecisionUnknown   DatePrecision = "unknown"
)

var datePrecisionRank = map[DatePrecision]int{
	DatePrecisionExact:     4,
	DatePrecisionCirca:     3,
	DatePrecisionEstimated: 2,
	DatePrecisionDisputed:  1,
	DatePrecisionUnknown:   0,
}

// Rank returns the precision's position in the certainty ordering. Higher is
// more certain.
func (p DatePrecision) Rank() int {
	return datePrecisionRank[p]
}

// DateInfo is a historical date. Year may be absent when only the native
// calendar fields are known.
type DateInfo struct {
	Year       *int          `json:"year,omitempty"`
	Precision  DatePrecision `json:"precision"`
	Confidence float64       `json:"confidence"`

	// Tibetan calendar fields, when the source recorded them.
	RabjungCycle *int   `json:"rabjung_cycle,omitempty"`
	Element      string `json:"element,omitempty"`
	Animal       string `json:"animal,omitempty"`
}

// Provenance records where a piece of data came from.
type Provenance struct {
	SourceDocumentID string `json:"source_document_id,omitempty"`
	SourcePage       string `json:"source_page,omitempty"`
	SourceQuote      string `json:"source_quote,omitempty"`
}

// Entity is a row in the system of record. The graph store holds a derived
// node for every active entity; the row always wins on conflict.
type Entity struct {
	ID            string              `json:"id" db:"id"`
	Type          EntityType          `json:"type" db:"type"`
	CanonicalName string              `json:"canonical_name" db:"canonical_name"`
	Names         NameVariants        `json:"names" db:"names"`
	Attributes    map[string]any      `json:"attributes,omitempty" db:"attributes"`
	Dates         map[string]DateInfo `json:"dates,omitempty" db:"dates"`
	Confidence    float64             `json:"confidence" db:"confidence"`
	Verified      bool                `json:"verified" db:"verified"`
	MergeStatus   string              `json:"merge_status" db:"merge_status"`
	MergedInto    *string             `json:"merged_into,omitempty" db:"merged_into"`
	Provenance    Provenance          `json:"provenance" db:"provenance"`
	CreatedBy     string              `json:"created_by,omitempty" db:"created_by"`
	VerifiedBy    *string             `json:"verified_by,omitempty" db:"verified_by"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at" db:"updated_at"`
	VerifiedAt    *time.Time          `json:"verified_at,omitempty" db:"verified_at"`
}

// IsActive reports whether the entity is live (not a merge tombstone).
func (e *Entity) IsActive() bool {
	return e.MergeStatus == MergeStatusActive || e.MergeStatus == ""
}

// Completeness counts the entity's populated fields. Used to break canonical
// ties inside a duplicate cluster.
func (e *Entity) Completeness() int {
	count := 0
	if e.CanonicalName != "" {
		count++
	}
	count += len(e.Names.All())
	count += len(e.Attributes)
	count += len(e.Dates)
	if e.Provenance.SourceDocumentID != "" {
		count++
	}
	if e.Verified {
		count++
	}
	return count
}

// CreateEntityRequest is the intake shape for a new entity.
type CreateEntityRequest struct {
	ID            string              `json:"id,omitempty"`
	Type          EntityType          `json:"type" validate:"required"`
	CanonicalName string              `json:"canonical_name" validate:"required"`
	Names         NameVariants        `json:"names"`
	Attributes    map[string]any      `json:"attributes,omitempty"`
	Dates         map[string]DateInfo `json:"dates,omitempty"`
	Confidence    float64             `json:"confidence" validate:"gte=0,lte=1"`
	Provenance    Provenance          `json:"provenance"`
	CreatedBy     string              `json:"created_by,omitempty"`
}

// EntityListResponse is the response for listing entities
type EntityListResponse struct {
	Items      []Entity `json:"items"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// RawAttributes returns the attributes map as raw JSON for storage.
func (e *Entity) RawAttributes() (json.RawMessage, error) {
	if e.Attributes == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(e.Attributes)
}
