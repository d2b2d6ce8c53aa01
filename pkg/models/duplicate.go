package models

import "time"

// Confidence labels for a duplicate score.
const (
	ConfidenceVeryHigh = "very_high" // >= 0.90
	ConfidenceHigh     = "high"      // >= 0.80
	ConfidenceMedium   = "medium"    // >= 0.70
	ConfidenceLow      = "low"
)

// Recommended handling for a scored pair.
const (
	RecommendationAutoMerge = "auto_merge"
	RecommendationReview    = "review"
	RecommendationManual    = "manual"
	RecommendationNone      = "none"
)

// DuplicatePair review statuses.
const (
	PairStatusPending  = "pending"
	PairStatusMerged   = "merged"
	PairStatusRejected = "rejected"
	PairStatusFlagged  = "flagged"
)

// SignalScores is the per-signal breakdown behind an overall duplicate score.
type SignalScores struct {
	Name         float64 `json:"name"`
	Date         float64 `json:"date"`
	Location     float64 `json:"location"`
	Relationship float64 `json:"relationship"`
	Attribute    float64 `json:"attribute"`
}

// DuplicateScore is the scorer's verdict on a single pair of entities.
type DuplicateScore struct {
	EntityID1      string       `json:"entity_id_1"`
	EntityID2      string       `json:"entity_id_2"`
	Overall        float64      `json:"overall"`
	Signals        SignalScores `json:"signals"`
	Confidence     string       `json:"confidence"`
	Recommendation string       `json:"recommendation"`
	Warnings       []string     `json:"warnings,omitempty"`
}

// DuplicatePair is a persisted review-queue row for a scored pair.
type DuplicatePair struct {
	ID         string       `json:"id" db:"id"`
	EntityID1  string       `json:"entity_id_1" db:"entity_id_1"`
	EntityID2  string       `json:"entity_id_2" db:"entity_id_2"`
	Overall    float64      `json:"overall" db:"overall"`
	Signals    SignalScores `json:"signals" db:"signals"`
	Confidence string       `json:"confidence" db:"confidence"`
	Status     string       `json:"status" db:"status"`
	ReviewedBy *string      `json:"reviewed_by,omitempty" db:"reviewed_by"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
	ReviewedAt *time.Time   `json:"reviewed_at,omitempty" db:"reviewed_at"`
}

// DuplicatePairListResponse is the response for listing the review queue
type DuplicatePairListResponse struct {
	Items      []DuplicatePair `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}

// EntityCluster is a connected component of pairwise duplicates. Canonical is
// the member the others should merge into.
type EntityCluster struct {
	MemberIDs   []string `json:"member_ids"`
	CanonicalID string   `json:"canonical_id"`
}

// ConfidenceLabel buckets an overall score into a confidence label.
func ConfidenceLabel(overall float64) string {
	switch {
	case overall >= 0.90:
		return ConfidenceVeryHigh
	case overall >= 0.80:
		return ConfidenceHigh
	case overall >= 0.70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
