package graphmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/pkg/models"
)

func intPtr(v int) *int          { return &v }
func strPtr(v string) *string    { return &v }
func timePtr(v time.Time) *time.Time { return &v }

func TestLabels(t *testing.T) {
	assert.Equal(t, []string{"Entity", "Person"}, Labels(models.EntityTypePerson))
	assert.Equal(t, []string{"Entity", "Institution"}, Labels(models.EntityTypeInstitution))
}

func TestTypeFromLabels(t *testing.T) {
	t.Run("recovers type regardless of label order", func(t *testing.T) {
		got, err := TypeFromLabels([]string{"Person", "Entity"})
		require.NoError(t, err)
		assert.Equal(t, models.EntityTypePerson, got)
	})

	t.Run("rejects label sets without a known type", func(t *testing.T) {
		_, err := TypeFromLabels([]string{"Entity"})
		assert.Error(t, err)
	})

	t.Run("round-trips every valid type", func(t *testing.T) {
		for entityType := range models.ValidEntityTypes {
			got, err := TypeFromLabels(Labels(entityType))
			require.NoError(t, err)
			assert.Equal(t, entityType, got)
		}
	})
}

func TestPredicateRelTypeRoundTrip(t *testing.T) {
	assert.Equal(t, "TEACHER_OF", PredicateToRelType("teacher_of"))
	assert.Equal(t, "teacher_of", RelTypeToPredicate("TEACHER_OF"))

	for _, predicate := range []string{"teacher_of", "wrote", "incarnation_of", "debated_with"} {
		assert.Equal(t, predicate, RelTypeToPredicate(PredicateToRelType(predicate)))
	}
}

func TestInversePredicate(t *testing.T) {
	tests := []struct {
		predicate string
		inverse   string
	}{
		{"teacher_of", "student_of"},
		{"student_of", "teacher_of"},
		{"wrote", "written_by"},
		{"born_in", "birthplace_of"},
		{"incarnation_of", "preincarnation_of"},
		{"located_in", "contains"},
	}
	for _, tt := range tests {
		inverse, ok := InversePredicate(tt.predicate)
		require.True(t, ok, tt.predicate)
		assert.Equal(t, tt.inverse, inverse)
	}

	t.Run("symmetric predicates invert to themselves", func(t *testing.T) {
		for _, predicate := range []string{"sibling_of", "spouse_of", "near", "contemporary_with", "debated_with"} {
			inverse, ok := InversePredicate(predicate)
			require.True(t, ok, predicate)
			assert.Equal(t, predicate, inverse)
			assert.True(t, IsSymmetric(predicate))
		}
	})

	t.Run("unknown predicates have no inverse", func(t *testing.T) {
		_, ok := InversePredicate("mentioned_in")
		assert.False(t, ok)
		assert.False(t, IsSymmetric("teacher_of"))
	})
}

func fullEntity() *models.Entity {
	return &models.Entity{
		ID:            "ent-1",
		Type:          models.EntityTypePerson,
		CanonicalName: "Marpa",
		Names: models.NameVariants{
			Tibetan:  []string{"མར་པ་"},
			Wylie:    []string{"mar pa"},
			Phonetic: []string{"Marpa"},
		},
		Attributes: map[string]any{
			"gender":       "male",
			"affiliations": []any{"Kagyu"},
		},
		Dates: map[string]models.DateInfo{
			"birth": {Year: intPtr(1012), Precision: models.DatePrecisionCirca, Confidence: 0.8},
		},
		Confidence:  0.9375,
		Verified:    true,
		MergeStatus: models.MergeStatusActive,
		Provenance: models.Provenance{
			SourceDocumentID: "doc-7",
			SourcePage:       "12",
			SourceQuote:      "mar pa lo tsā ba",
		},
		CreatedBy:  "importer",
		VerifiedBy: strPtr("curator"),
		CreatedAt:  time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2026, 2, 1, 18, 0, 0, 500, time.UTC),
		VerifiedAt: timePtr(time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)),
	}
}

func TestEntityNodeRoundTrip(t *testing.T) {
	t.Run("fully populated entity", func(t *testing.T) {
		original := fullEntity()

		props, err := EntityToNode(original)
		require.NoError(t, err)
		restored, err := NodeToEntity(props)
		require.NoError(t, err)

		assert.Equal(t, original, restored)
	})

	t.Run("sparse entity keeps nils", func(t *testing.T) {
		original := &models.Entity{
			ID:            "ent-2",
			Type:          models.EntityTypePlace,
			CanonicalName: "Samye",
			MergeStatus:   models.MergeStatusActive,
			CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			UpdatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		props, err := EntityToNode(original)
		require.NoError(t, err)
		restored, err := NodeToEntity(props)
		require.NoError(t, err)

		assert.Equal(t, original, restored)
		assert.Nil(t, restored.Attributes)
		assert.Nil(t, restored.MergedInto)
	})

	t.Run("tombstoned entity keeps merge pointer", func(t *testing.T) {
		original := fullEntity()
		original.MergeStatus = models.MergeStatusMerged
		original.MergedInto = strPtr("ent-9")

		props, err := EntityToNode(original)
		require.NoError(t, err)
		restored, err := NodeToEntity(props)
		require.NoError(t, err)

		assert.Equal(t, original, restored)
	})
}

func TestEntityNodePropertyShapes(t *testing.T) {
	props, err := EntityToNode(fullEntity())
	require.NoError(t, err)

	// The graph store only sees flat primitives.
	assert.IsType(t, "", props["names"])
	assert.IsType(t, "", props["attributes"])
	assert.IsType(t, "", props["dates"])
	assert.Equal(t, "0.9375", props["confidence"])
	assert.Equal(t, int64(1), props["verified"])
	assert.Equal(t, "2026-01-15T09:30:00Z", props["created_at"])
}

func TestRelationshipEdgeRoundTrip(t *testing.T) {
	original := &models.Relationship{
		ID:        "rel-1",
		SubjectID: "ent-1",
		Predicate: "teacher_of",
		ObjectID:  "ent-2",
		Properties: map[string]any{
			"place": "Lhodrak",
		},
		Confidence: 0.85,
		Verified:   false,
		Provenance: models.Provenance{SourceDocumentID: "doc-3"},
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	props, err := RelationshipToEdge(original)
	require.NoError(t, err)
	restored, err := EdgeToRelationship(PredicateToRelType(original.Predicate), props)
	require.NoError(t, err)

	assert.Equal(t, original, restored)
}
