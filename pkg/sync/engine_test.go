package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/pkg/models"
)

func testRelationship(id, subject, predicate, object string) *models.Relationship {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Relationship{
		ID:         id,
		SubjectID:  subject,
		Predicate:  predicate,
		ObjectID:   object,
		Confidence: 0.9,
		Provenance: models.Provenance{SourceDocumentID: "doc-1"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestBuildEdges(t *testing.T) {
	t.Run("forward edge only when not bidirectional", func(t *testing.T) {
		edges, err := BuildEdges(testRelationship("rel-1", "marpa", "teacher_of", "milarepa"), false)
		require.NoError(t, err)
		require.Len(t, edges, 1)

		assert.Equal(t, "rel-1", edges[0].EdgeID)
		assert.Equal(t, "TEACHER_OF", edges[0].Type)
		assert.Equal(t, "marpa", edges[0].SubjectID)
		assert.Equal(t, "milarepa", edges[0].ObjectID)
		assert.Equal(t, "rel-1", edges[0].Props["id"])
	})

	t.Run("inverse edge carries suffixed id and swapped endpoints", func(t *testing.T) {
		edges, err := BuildEdges(testRelationship("rel-1", "marpa", "teacher_of", "milarepa"), true)
		require.NoError(t, err)
		require.Len(t, edges, 2)

		derived := edges[1]
		assert.Equal(t, "rel-1_inverse", derived.EdgeID)
		assert.Equal(t, "STUDENT_OF", derived.Type)
		assert.Equal(t, "milarepa", derived.SubjectID)
		assert.Equal(t, "marpa", derived.ObjectID)
		assert.Equal(t, "rel-1_inverse", derived.Props["id"])
		assert.Equal(t, "milarepa", derived.Props["subject_id"])
		assert.Equal(t, "marpa", derived.Props["object_id"])
	})

	t.Run("symmetric predicate yields same type with symmetric suffix", func(t *testing.T) {
		edges, err := BuildEdges(testRelationship("rel-2", "gampopa", "sibling_of", "chopa"), true)
		require.NoError(t, err)
		require.Len(t, edges, 2)

		assert.Equal(t, "SIBLING_OF", edges[0].Type)
		assert.Equal(t, "rel-2_symmetric", edges[1].EdgeID)
		assert.Equal(t, "SIBLING_OF", edges[1].Type)
		assert.Equal(t, "chopa", edges[1].SubjectID)
		assert.Equal(t, "gampopa", edges[1].ObjectID)
	})

	t.Run("predicate without inverse stays unidirectional", func(t *testing.T) {
		edges, err := BuildEdges(testRelationship("rel-3", "marpa", "visited", "lhasa"), true)
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})

	t.Run("forward props are not mutated by the derived edge", func(t *testing.T) {
		edges, err := BuildEdges(testRelationship("rel-4", "marpa", "teacher_of", "milarepa"), true)
		require.NoError(t, err)
		require.Len(t, edges, 2)

		assert.Equal(t, "marpa", edges[0].Props["subject_id"])
		assert.Equal(t, "milarepa", edges[0].Props["object_id"])
	})
}

func TestDerivedEdgeIDs(t *testing.T) {
	tests := []struct {
		id      string
		derived bool
		forward string
	}{
		{"rel-1", false, "rel-1"},
		{"rel-1_inverse", true, "rel-1"},
		{"rel-2_symmetric", true, "rel-2"},
		{"_inverse", false, "_inverse"},
		{"inverse", false, "inverse"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.derived, IsDerivedEdgeID(tt.id))
			assert.Equal(t, tt.forward, ForwardEdgeID(tt.id))
		})
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		engine := &Engine{cfg: Config{MaxRetries: 3, RetryDelay: time.Millisecond}.withDefaults()}

		calls := 0
		err := engine.withRetry(t.Context(), func() error {
			calls++
			if calls < 3 {
				return assert.AnError
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("reports exhaustion with the last error", func(t *testing.T) {
		engine := &Engine{cfg: Config{MaxRetries: 2, RetryDelay: time.Millisecond}.withDefaults()}

		calls := 0
		err := engine.withRetry(t.Context(), func() error {
			calls++
			return assert.AnError
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "exhausted 2 retries")
	})
}

func TestPercentage(t *testing.T) {
	assert.InDelta(t, 100.0, percentage(0, 0), 1e-9)
	assert.InDelta(t, 0.0, percentage(0, 10), 1e-9)
	assert.InDelta(t, 50.0, percentage(5, 10), 1e-9)
	assert.InDelta(t, 100.0, percentage(10, 10), 1e-9)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 4, cfg.Concurrency)

	tuned := Config{BatchSize: 100, MaxRetries: 0, RetryDelay: time.Second, Concurrency: 2}.withDefaults()
	assert.Equal(t, 100, tuned.BatchSize)
	assert.Equal(t, 0, tuned.MaxRetries)
	assert.Equal(t, 2, tuned.Concurrency)
}
