package consistency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/pkg/models"
)

func TestDiffIDs(t *testing.T) {
	t.Run("reports ids absent from the second set", func(t *testing.T) {
		missing := diffIDs([]string{"a", "b", "c"}, []string{"b"})
		assert.Equal(t, []string{"a", "c"}, missing)
	})

	t.Run("equal sets produce nothing", func(t *testing.T) {
		assert.Empty(t, diffIDs([]string{"a", "b"}, []string{"b", "a"}))
	})

	t.Run("output is sorted regardless of input order", func(t *testing.T) {
		missing := diffIDs([]string{"z", "a", "m"}, nil)
		assert.Equal(t, []string{"a", "m", "z"}, missing)
	})
}

func TestCapped(t *testing.T) {
	checker := &Checker{cfg: Config{MaxReported: 2}.withDefaults()}

	t.Run("short lists pass through", func(t *testing.T) {
		report := &models.ConsistencyReport{}
		assert.Equal(t, []string{"a"}, checker.capped([]string{"a"}, report))
		assert.False(t, report.Truncated)
	})

	t.Run("long lists are cut and flagged", func(t *testing.T) {
		report := &models.ConsistencyReport{}
		assert.Equal(t, []string{"a", "b"}, checker.capped([]string{"a", "b", "c"}, report))
		assert.True(t, report.Truncated)
	})
}

func TestCompareEntityProps(t *testing.T) {
	row := &models.Entity{
		ID:            "marpa",
		CanonicalName: "Marpa Chokyi Lodro",
		Confidence:    0.9375,
		Verified:      true,
	}

	matching := map[string]any{
		"canonical_name": "Marpa Chokyi Lodro",
		"confidence":     "0.9375",
		"verified":       int64(1),
	}

	t.Run("matching props produce no mismatches", func(t *testing.T) {
		assert.Empty(t, compareEntityProps(row, matching))
	})

	t.Run("confidence within tolerance passes", func(t *testing.T) {
		props := map[string]any{
			"canonical_name": "Marpa Chokyi Lodro",
			"confidence":     "0.94",
			"verified":       int64(1),
		}
		assert.Empty(t, compareEntityProps(row, props))
	})

	t.Run("each drifted property is reported", func(t *testing.T) {
		props := map[string]any{
			"canonical_name": "Mar-pa",
			"confidence":     "0.5",
			"verified":       int64(0),
		}
		mismatches := compareEntityProps(row, props)
		require.Len(t, mismatches, 3)

		byProperty := map[string]models.PropertyMismatch{}
		for _, m := range mismatches {
			byProperty[m.Property] = m
		}
		assert.Equal(t, "Marpa Chokyi Lodro", byProperty["canonical_name"].DatabaseValue)
		assert.Equal(t, "Mar-pa", byProperty["canonical_name"].GraphValue)
		assert.Equal(t, 0.9375, byProperty["confidence"].DatabaseValue)
		assert.Equal(t, true, byProperty["verified"].DatabaseValue)
	})

	t.Run("unparseable confidence is a mismatch", func(t *testing.T) {
		props := map[string]any{
			"canonical_name": "Marpa Chokyi Lodro",
			"confidence":     "not-a-number",
			"verified":       int64(1),
		}
		mismatches := compareEntityProps(row, props)
		require.Len(t, mismatches, 1)
		assert.Equal(t, "confidence", mismatches[0].Property)
	})
}

func TestSummarize(t *testing.T) {
	t.Run("consistent stores", func(t *testing.T) {
		report := &models.ConsistencyReport{
			DatabaseEntityCount:       12,
			GraphEntityCount:          12,
			DatabaseRelationshipCount: 30,
			GraphRelationshipCount:    30,
			Consistent:                true,
		}
		assert.Equal(t, "consistent: 12 entities, 30 relationships", summarize(report))
	})

	t.Run("drift includes counts and truncation", func(t *testing.T) {
		report := &models.ConsistencyReport{
			DatabaseEntityCount:    12,
			GraphEntityCount:       10,
			EntitiesMissingInGraph: []string{"a", "b"},
			Truncated:              true,
		}
		s := summarize(report)
		assert.Contains(t, s, "drift detected")
		assert.Contains(t, s, "missing in graph: 2")
		assert.Contains(t, s, "(lists truncated)")
	})
}

func TestPropCoercion(t *testing.T) {
	t.Run("floats", func(t *testing.T) {
		f, ok := parseFloatProp("0.9375")
		require.True(t, ok)
		assert.Equal(t, 0.9375, f)

		f, ok = parseFloatProp(float64(0.5))
		require.True(t, ok)
		assert.Equal(t, 0.5, f)

		_, ok = parseFloatProp(nil)
		assert.False(t, ok)
	})

	t.Run("bools", func(t *testing.T) {
		assert.True(t, boolProp(int64(1)))
		assert.False(t, boolProp(int64(0)))
		assert.True(t, boolProp(true))
		assert.False(t, boolProp(nil))
	})
}
