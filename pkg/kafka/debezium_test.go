package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/pkg/models"
)

func TestIsDebeziumMessage(t *testing.T) {
	t.Run("detects cdc envelope by payload op", func(t *testing.T) {
		value := []byte(`{"payload": {"op": "c", "after": {"id": "ent-1"}}}`)
		assert.True(t, IsDebeziumMessage(value))
	})

	t.Run("plain intake message is not cdc", func(t *testing.T) {
		value := []byte(`{"kind": "entity", "entity": {"id": "ent-1"}}`)
		assert.False(t, IsDebeziumMessage(value))
	})

	t.Run("invalid json is not cdc", func(t *testing.T) {
		assert.False(t, IsDebeziumMessage([]byte("not json")))
	})
}

func TestParseDebeziumMessage(t *testing.T) {
	value := []byte(`{
		"payload": {
			"op": "c",
			"ts_ms": 1700000000000,
			"source": {"connector": "postgresql", "table": "extracted_entities"},
			"after": {
				"id": "ent-1",
				"entity_type": "person",
				"canonical_name": "Marpa Lotsawa",
				"names": "{\"tibetan\": [\"མར་པ་\"], \"wylie\": [\"mar pa\"]}",
				"confidence": 0.85
			}
		}
	}`)

	envelope, err := ParseDebeziumMessage(value)
	require.NoError(t, err)

	assert.True(t, envelope.Payload.IsCreate())
	assert.False(t, envelope.Payload.IsDelete())
	assert.Equal(t, "extracted_entities", envelope.Payload.Source.Table)
	assert.Equal(t, int64(1700000000000), envelope.Payload.Timestamp().UnixMilli())

	row, err := envelope.Payload.ParseEntityRow()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "ent-1", row.ID)
	assert.False(t, row.IsDeleted())

	// string-encoded JSON columns unwrap during conversion
	req, err := row.ToCreateRequest()
	require.NoError(t, err)
	assert.Equal(t, models.EntityType("person"), req.Type)
	assert.Equal(t, "Marpa Lotsawa", req.CanonicalName)
	assert.Equal(t, []string{"mar pa"}, req.Names.Wylie)
	assert.Equal(t, 0.85, req.Confidence)
}

func TestParseEntityRow(t *testing.T) {
	t.Run("delete payload has no after state", func(t *testing.T) {
		envelope, err := ParseDebeziumMessage([]byte(`{"payload": {"op": "d", "before": {"id": "ent-1"}, "after": null}}`))
		require.NoError(t, err)
		assert.True(t, envelope.Payload.IsDelete())

		row, err := envelope.Payload.ParseEntityRow()
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("soft deleted row", func(t *testing.T) {
		deletedAt := "2024-01-01T00:00:00Z"
		row := ExtractedEntityRow{ID: "ent-1", DeletedAt: &deletedAt}
		assert.True(t, row.IsDeleted())
	})
}

func TestRelationshipRowToCreateRequest(t *testing.T) {
	envelope, err := ParseDebeziumMessage([]byte(`{
		"payload": {
			"op": "u",
			"source": {"table": "extracted_relationships"},
			"after": {
				"id": "rel-1",
				"subject_id": "ent-1",
				"predicate": "student_of",
				"object_id": "ent-2",
				"properties": {"lineage": "kagyu"},
				"confidence": 0.9
			}
		}
	}`))
	require.NoError(t, err)
	assert.True(t, envelope.Payload.IsUpdate())

	row, err := envelope.Payload.ParseRelationshipRow()
	require.NoError(t, err)
	require.NotNil(t, row)

	req, err := row.ToCreateRequest()
	require.NoError(t, err)
	assert.Equal(t, "ent-1", req.SubjectID)
	assert.Equal(t, "student_of", req.Predicate)
	assert.Equal(t, "ent-2", req.ObjectID)
	assert.Equal(t, map[string]any{"lineage": "kagyu"}, req.Properties)
}

func TestUnmarshalColumn(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		var out map[string]any
		require.NoError(t, unmarshalColumn([]byte(`{"a": 1}`), &out))
		assert.Equal(t, map[string]any{"a": float64(1)}, out)
	})

	t.Run("string encoded object", func(t *testing.T) {
		var out map[string]any
		require.NoError(t, unmarshalColumn([]byte(`"{\"a\": 1}"`), &out))
		assert.Equal(t, map[string]any{"a": float64(1)}, out)
	})

	t.Run("null and empty leave target untouched", func(t *testing.T) {
		var out map[string]any
		require.NoError(t, unmarshalColumn([]byte("null"), &out))
		require.NoError(t, unmarshalColumn(nil, &out))
		assert.Nil(t, out)
	})
}
