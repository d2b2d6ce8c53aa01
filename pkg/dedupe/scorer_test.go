package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/pkg/models"
)

func intPtr(v int) *int { return &v }

func person(id, name string) *models.Entity {
	return &models.Entity{
		ID:            id,
		Type:          models.EntityTypePerson,
		CanonicalName: name,
		MergeStatus:   models.MergeStatusActive,
	}
}

func TestScorer_Score_RejectsCrossType(t *testing.T) {
	scorer := NewScorer(nil)

	place := &models.Entity{ID: "p1", Type: models.EntityTypePlace, CanonicalName: "Lhasa"}
	_, err := scorer.Score(context.Background(), person("e1", "Marpa"), place)

	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestScorer_Score_RejectsSelfComparison(t *testing.T) {
	scorer := NewScorer(nil)

	_, err := scorer.Score(context.Background(), person("e1", "Marpa"), person("e1", "Marpa"))
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}

func TestScorer_Score_IdenticalEntities(t *testing.T) {
	scorer := NewScorer(nil)

	a := person("e1", "Tsongkhapa")
	a.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1357)}}
	a.Attributes = map[string]any{"gender": "male"}
	b := person("e2", "Tsongkhapa")
	b.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1357)}}
	b.Attributes = map[string]any{"gender": "male"}

	score, err := scorer.Score(context.Background(), a, b)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, score.Overall, 0.95)
	assert.Equal(t, models.ConfidenceVeryHigh, score.Confidence)
	assert.Equal(t, models.RecommendationAutoMerge, score.Recommendation)
}

func TestScorer_Score_SpellingVariantsOnNameAlone(t *testing.T) {
	scorer := NewScorer(nil)

	a := person("e1", "Marpa")
	a.Confidence = 0.95
	b := person("e2", "Mar-pa")
	b.Confidence = 0.85

	score, err := scorer.Score(context.Background(), a, b)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, score.Overall, 0.90)
	assert.Equal(t, models.ConfidenceVeryHigh, score.Confidence)
	assert.Contains(t, score.Warnings, WarnInsufficientData)
}

func TestScorer_Score_BestPairwiseAcrossVariants(t *testing.T) {
	scorer := NewScorer(nil)

	a := person("e1", "Jetsun Milarepa")
	a.Names = models.NameVariants{Wylie: []string{"mi la ras pa"}}
	b := person("e2", "mi la ras pa")

	score, err := scorer.Score(context.Background(), a, b)
	require.NoError(t, err)

	// The wylie variant matches exactly even though the canonical names differ.
	assert.Equal(t, 1.0, score.Signals.Name)
}

func TestScorer_Score_Symmetric(t *testing.T) {
	scorer := NewScorer(nil)

	a := person("e1", "Marpa Lotsawa")
	a.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1012)}}
	b := person("e2", "Mar-pa")
	b.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1020)}}

	forward, err := scorer.Score(context.Background(), a, b)
	require.NoError(t, err)
	backward, err := scorer.Score(context.Background(), b, a)
	require.NoError(t, err)

	assert.Equal(t, forward.Overall, backward.Overall)
	assert.Equal(t, forward.Signals, backward.Signals)
}

func TestScorer_Score_DateBuckets(t *testing.T) {
	scorer := NewScorer(nil)

	tests := []struct {
		name     string
		yearA    int
		yearB    int
		expected float64
	}{
		{"same year", 1357, 1357, 1.0},
		{"within five years", 1357, 1361, 0.85},
		{"within ten years", 1357, 1365, 0.70},
		{"within twenty years", 1357, 1375, 0.50},
		{"beyond twenty years", 1357, 1400, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := person("e1", "Tsongkhapa")
			a.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(tt.yearA)}}
			b := person("e2", "Tsongkhapa")
			b.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(tt.yearB)}}

			score, err := scorer.Score(context.Background(), a, b)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, score.Signals.Date)
		})
	}
}

func TestScorer_Score_MissingDateIsNeutral(t *testing.T) {
	scorer := NewScorer(nil)

	a := person("e1", "Gampopa")
	a.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1079)}}
	b := person("e2", "Gampopa")

	score, err := scorer.Score(context.Background(), a, b)
	require.NoError(t, err)

	assert.Equal(t, neutralScore, score.Signals.Date)
	// Neutral data never drops the pair below the name evidence alone.
	assert.GreaterOrEqual(t, score.Overall, 0.85)
}

func TestScorer_Score_ReincarnationWarning(t *testing.T) {
	scorer := NewScorer(nil)

	a := person("e1", "Karmapa")
	a.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1110)}}
	b := person("e2", "Karmapa")
	b.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1204)}}

	score, err := scorer.Score(context.Background(), a, b)
	require.NoError(t, err)

	assert.Zero(t, score.Signals.Date)
	assert.Contains(t, score.Warnings, WarnReincarnation)
}

func TestScorer_Score_HomonymWarning(t *testing.T) {
	scorer := NewScorer(nil)

	a := person("e1", "Tashi")
	a.Attributes = map[string]any{"affiliations": []any{"Sera"}}
	b := person("e2", "Tashi")
	b.Attributes = map[string]any{"affiliations": []any{"Drepung"}}

	score, err := scorer.Score(context.Background(), a, b)
	require.NoError(t, err)

	assert.Zero(t, score.Signals.Location)
	assert.Contains(t, score.Warnings, WarnHomonym)
}

func TestScorer_Score_PlaceHierarchy(t *testing.T) {
	scorer := NewScorer(nil)

	makePlace := func(id, region, country string) *models.Entity {
		e := &models.Entity{ID: id, Type: models.EntityTypePlace, CanonicalName: "Samye"}
		e.Attributes = map[string]any{}
		if region != "" {
			e.Attributes["region"] = region
		}
		if country != "" {
			e.Attributes["country"] = country
		}
		return e
	}

	t.Run("same region", func(t *testing.T) {
		score, err := scorer.Score(context.Background(), makePlace("p1", "U-Tsang", "Tibet"), makePlace("p2", "U-Tsang", "Tibet"))
		require.NoError(t, err)
		assert.Equal(t, 0.8, score.Signals.Location)
	})

	t.Run("same country only", func(t *testing.T) {
		score, err := scorer.Score(context.Background(), makePlace("p1", "U-Tsang", "Tibet"), makePlace("p2", "Kham", "Tibet"))
		require.NoError(t, err)
		assert.Equal(t, 0.6, score.Signals.Location)
	})

	t.Run("no overlap", func(t *testing.T) {
		score, err := scorer.Score(context.Background(), makePlace("p1", "U-Tsang", "Tibet"), makePlace("p2", "Kathmandu", "Nepal"))
		require.NoError(t, err)
		assert.Zero(t, score.Signals.Location)
	})
}

type staticConnections struct {
	byID map[string][]string
}

func (s *staticConnections) ListConnectionIDs(_ context.Context, entityID string) ([]string, error) {
	return s.byID[entityID], nil
}

func TestScorer_Score_RelationshipSignal(t *testing.T) {
	connections := &staticConnections{byID: map[string][]string{
		"e1": {"x", "y", "z"},
		"e2": {"x", "y", "w"},
	}}
	scorer := NewScorer(connections)

	score, err := scorer.Score(context.Background(), person("e1", "Marpa"), person("e2", "Mar-pa"))
	require.NoError(t, err)

	// Jaccard of {x,y,z} and {x,y,w} is 2/4.
	assert.Equal(t, 0.5, score.Signals.Relationship)
}
