package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/pkg/models"
)

func pair(a, b string, overall float64) models.DuplicateScore {
	return models.DuplicateScore{EntityID1: a, EntityID2: b, Overall: overall}
}

func TestClusterBuilder_Build_TransitiveClosure(t *testing.T) {
	builder := NewClusterBuilder(0.70)

	// a-b and b-c connect; a-c never scored directly.
	scores := []models.DuplicateScore{
		pair("a", "b", 0.92),
		pair("b", "c", 0.75),
	}
	entities := map[string]*models.Entity{
		"a": {ID: "a", Confidence: 0.9},
		"b": {ID: "b", Confidence: 0.8},
		"c": {ID: "c", Confidence: 0.7},
	}

	clusters := builder.Build(scores, entities)
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"a", "b", "c"}, clusters[0].MemberIDs)
	assert.Equal(t, "a", clusters[0].CanonicalID)
}

func TestClusterBuilder_Build_ThresholdExcludesWeakEdges(t *testing.T) {
	builder := NewClusterBuilder(0.70)

	scores := []models.DuplicateScore{
		pair("a", "b", 0.95),
		pair("b", "c", 0.69), // below threshold, c stays out
		pair("d", "e", 0.71),
	}
	entities := map[string]*models.Entity{
		"a": {ID: "a", Confidence: 0.5},
		"b": {ID: "b", Confidence: 0.5},
		"d": {ID: "d", Confidence: 0.5},
		"e": {ID: "e", Confidence: 0.5},
	}

	clusters := builder.Build(scores, entities)
	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"a", "b"}, clusters[0].MemberIDs)
	assert.Equal(t, []string{"d", "e"}, clusters[1].MemberIDs)
}

func TestClusterBuilder_Build_CanonicalElection(t *testing.T) {
	builder := NewClusterBuilder(0.70)
	scores := []models.DuplicateScore{pair("a", "b", 0.9), pair("b", "c", 0.9)}

	t.Run("highest confidence wins", func(t *testing.T) {
		entities := map[string]*models.Entity{
			"a": {ID: "a", Confidence: 0.6},
			"b": {ID: "b", Confidence: 0.9},
			"c": {ID: "c", Confidence: 0.7},
		}
		clusters := builder.Build(scores, entities)
		require.Len(t, clusters, 1)
		assert.Equal(t, "b", clusters[0].CanonicalID)
	})

	t.Run("completeness breaks confidence ties", func(t *testing.T) {
		entities := map[string]*models.Entity{
			"a": {ID: "a", Confidence: 0.8},
			"b": {ID: "b", Confidence: 0.8, CanonicalName: "Marpa", Verified: true},
			"c": {ID: "c", Confidence: 0.8},
		}
		clusters := builder.Build(scores, entities)
		require.Len(t, clusters, 1)
		assert.Equal(t, "b", clusters[0].CanonicalID)
	})

	t.Run("lowest id breaks full ties", func(t *testing.T) {
		entities := map[string]*models.Entity{
			"a": {ID: "a", Confidence: 0.8},
			"b": {ID: "b", Confidence: 0.8},
			"c": {ID: "c", Confidence: 0.8},
		}
		clusters := builder.Build(scores, entities)
		require.Len(t, clusters, 1)
		assert.Equal(t, "a", clusters[0].CanonicalID)
	})
}

func TestClusterBuilder_Build_Deterministic(t *testing.T) {
	builder := NewClusterBuilder(0.70)

	entities := map[string]*models.Entity{
		"a": {ID: "a", Confidence: 0.9},
		"b": {ID: "b", Confidence: 0.8},
		"c": {ID: "c", Confidence: 0.7},
		"d": {ID: "d", Confidence: 0.9},
		"e": {ID: "e", Confidence: 0.8},
	}
	forward := []models.DuplicateScore{
		pair("a", "b", 0.9),
		pair("b", "c", 0.8),
		pair("d", "e", 0.85),
	}
	reversed := []models.DuplicateScore{
		pair("e", "d", 0.85),
		pair("c", "b", 0.8),
		pair("b", "a", 0.9),
	}

	assert.Equal(t, builder.Build(forward, entities), builder.Build(reversed, entities))
}

func TestClusterBuilder_Build_NoEdges(t *testing.T) {
	builder := NewClusterBuilder(0.70)
	assert.Empty(t, builder.Build(nil, nil))
	assert.Empty(t, builder.Build([]models.DuplicateScore{pair("a", "b", 0.1)}, nil))
}
