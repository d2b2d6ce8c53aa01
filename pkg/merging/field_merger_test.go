package merging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/pkg/models"
)

func intPtr(v int) *int { return &v }

func testPair() (*models.Entity, *models.Entity) {
	primary := &models.Entity{
		ID:            "primary",
		Type:          models.EntityTypePerson,
		CanonicalName: "Marpa",
		Names:         models.NameVariants{Wylie: []string{"mar pa"}},
		Confidence:    0.9,
		MergeStatus:   models.MergeStatusActive,
		UpdatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	duplicate := &models.Entity{
		ID:            "duplicate",
		Type:          models.EntityTypePerson,
		CanonicalName: "Mar-pa",
		Names:         models.NameVariants{Phonetic: []string{"Marpa Lotsawa"}},
		Confidence:    0.5,
		MergeStatus:   models.MergeStatusActive,
		UpdatedAt:     time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	return primary, duplicate
}

func TestCombineEntities_HighestConfidenceKeepsPrimaryScalar(t *testing.T) {
	primary, duplicate := testPair()
	primary.Attributes = map[string]any{"gender": "male"}
	duplicate.Attributes = map[string]any{"gender": "female"}

	merged, conflicts, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	assert.Equal(t, "male", merged.Attributes["gender"])
	require.Len(t, conflicts, 1)
	assert.Equal(t, "gender", conflicts[0].Field)
	assert.Equal(t, "male", conflicts[0].PrimaryValue)
	assert.Equal(t, "female", conflicts[0].DuplicateValue)
	assert.Equal(t, "primary", conflicts[0].Resolution)
	assert.Equal(t, models.ConflictSeverityMedium, conflicts[0].Severity)
}

func TestCombineEntities_HighestConfidencePrefersDuplicateWhenStronger(t *testing.T) {
	primary, duplicate := testPair()
	primary.Confidence = 0.4
	duplicate.Confidence = 0.8
	primary.Attributes = map[string]any{"role": "translator"}
	duplicate.Attributes = map[string]any{"role": "teacher"}

	merged, conflicts, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	assert.Equal(t, "teacher", merged.Attributes["role"])
	require.Len(t, conflicts, 1)
	assert.Equal(t, "duplicate", conflicts[0].Resolution)
}

func TestCombineEntities_MostRecent(t *testing.T) {
	primary, duplicate := testPair()
	primary.Attributes = map[string]any{"role": "translator"}
	duplicate.Attributes = map[string]any{"role": "teacher"}

	// The duplicate was updated later.
	merged, conflicts, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyMostRecent})
	require.NoError(t, err)

	assert.Equal(t, "teacher", merged.Attributes["role"])
	require.Len(t, conflicts, 1)
	assert.Equal(t, "duplicate", conflicts[0].Resolution)
}

func TestCombineEntities_ManualStrategy(t *testing.T) {
	primary, duplicate := testPair()
	primary.Attributes = map[string]any{"role": "translator"}
	duplicate.Attributes = map[string]any{"role": "teacher"}

	t.Run("uses supplied resolution", func(t *testing.T) {
		merged, conflicts, err := combineEntities(primary, duplicate, models.MergeOptions{
			Strategy:    models.StrategyManual,
			Resolutions: map[string]any{"role": "translator and teacher"},
		})
		require.NoError(t, err)
		assert.Equal(t, "translator and teacher", merged.Attributes["role"])
		require.Len(t, conflicts, 1)
		assert.Equal(t, "manual", conflicts[0].Resolution)
	})

	t.Run("missing resolution is a validation error", func(t *testing.T) {
		_, _, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyManual})
		require.Error(t, err)
		assert.True(t, models.IsValidationError(err))
	})
}

func TestCombineEntities_ArraysUnionSilently(t *testing.T) {
	primary, duplicate := testPair()
	primary.Attributes = map[string]any{"affiliations": []any{"Kagyu", "Sakya"}}
	duplicate.Attributes = map[string]any{"affiliations": []any{"Kagyu", "Nyingma"}}

	merged, conflicts, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	assert.Empty(t, conflicts)
	assert.Equal(t, []any{"Kagyu", "Sakya", "Nyingma"}, merged.Attributes["affiliations"])
}

func TestCombineEntities_OneSidedValuesPassThrough(t *testing.T) {
	primary, duplicate := testPair()
	primary.Attributes = map[string]any{"role": "translator"}
	duplicate.Attributes = map[string]any{"gender": "male"}

	merged, conflicts, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	assert.Empty(t, conflicts)
	assert.Equal(t, "translator", merged.Attributes["role"])
	assert.Equal(t, "male", merged.Attributes["gender"])
}

func TestCombineEntities_NameUnion(t *testing.T) {
	primary, duplicate := testPair()
	duplicate.Names.Wylie = []string{"mar pa", "mar pa lo tsa ba"}

	merged, _, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	assert.Equal(t, []string{"mar pa", "mar pa lo tsa ba"}, merged.Names.Wylie)
	// The duplicate's canonical name survives as a variant.
	assert.Contains(t, merged.Names.Phonetic, "Mar-pa")
	assert.Contains(t, merged.Names.Phonetic, "Marpa Lotsawa")
	assert.Equal(t, "Marpa", merged.CanonicalName)
}

func TestCombineEntities_DatePrecision(t *testing.T) {
	primary, duplicate := testPair()
	primary.Dates = map[string]models.DateInfo{
		"birth": {Year: intPtr(1012), Precision: models.DatePrecisionCirca, Confidence: 0.7},
		"death": {Year: intPtr(1097), Precision: models.DatePrecisionExact, Confidence: 0.9},
	}
	duplicate.Dates = map[string]models.DateInfo{
		"birth": {Year: intPtr(1012), Precision: models.DatePrecisionExact, Confidence: 0.6},
		"death": {Year: intPtr(1099), Precision: models.DatePrecisionEstimated, Confidence: 0.95},
	}

	merged, _, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	// Exact beats circa regardless of confidence.
	assert.Equal(t, models.DatePrecisionExact, merged.Dates["birth"].Precision)
	assert.Equal(t, 0.6, merged.Dates["birth"].Confidence)
	// Primary's exact death date survives the duplicate's estimate.
	assert.Equal(t, intPtr(1097), merged.Dates["death"].Year)
}

func TestCombineEntities_DateConfidenceBreaksPrecisionTies(t *testing.T) {
	primary, duplicate := testPair()
	primary.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1012), Precision: models.DatePrecisionCirca, Confidence: 0.5}}
	duplicate.Dates = map[string]models.DateInfo{"birth": {Year: intPtr(1010), Precision: models.DatePrecisionCirca, Confidence: 0.8}}

	merged, _, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	assert.Equal(t, intPtr(1010), merged.Dates["birth"].Year)
}

func TestCombineEntities_ConfidenceAndVerification(t *testing.T) {
	primary, duplicate := testPair()
	verifiedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	curator := "curator"
	duplicate.Verified = true
	duplicate.VerifiedBy = &curator
	duplicate.VerifiedAt = &verifiedAt

	merged, _, err := combineEntities(primary, duplicate, models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	assert.InDelta(t, 0.6*0.9+0.4*0.5, merged.Confidence, 1e-9)
	assert.True(t, merged.Verified)
	assert.Equal(t, &curator, merged.VerifiedBy)
	assert.Equal(t, &verifiedAt, merged.VerifiedAt)
}

func TestConflictSeverity(t *testing.T) {
	assert.Equal(t, models.ConflictSeverityHigh, conflictSeverity("birth_date"))
	assert.Equal(t, models.ConflictSeverityHigh, conflictSeverity("reign_years"))
	assert.Equal(t, models.ConflictSeverityMedium, conflictSeverity("gender"))
	assert.Equal(t, models.ConflictSeverityMedium, conflictSeverity("tradition"))
	assert.Equal(t, models.ConflictSeverityLow, conflictSeverity("epithet"))
}

func TestAssessQuality(t *testing.T) {
	entity := &models.Entity{
		CanonicalName: "Marpa",
		Names:         models.NameVariants{Wylie: []string{"mar pa"}},
		Confidence:    0.74,
	}

	t.Run("consistency drops per conflict", func(t *testing.T) {
		quality := assessQuality(entity, 3)
		assert.InDelta(t, 0.7, quality.Consistency, 1e-9)
		assert.Equal(t, 0.74, quality.SourceReliability)
	})

	t.Run("consistency clamps at zero", func(t *testing.T) {
		quality := assessQuality(entity, 15)
		assert.Zero(t, quality.Consistency)
	})
}
