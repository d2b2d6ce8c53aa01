package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntake(t *testing.T) {
	t.Run("entity record", func(t *testing.T) {
		msg := &IncomingMessage{
			Key: "ent-1",
			Value: []byte(`{
				"kind": "entity",
				"entity": {"id": "ent-1", "type": "person", "canonical_name": "Milarepa", "confidence": 0.9},
				"source": {"document_id": "doc-42", "extractor_id": "llm-v2"}
			}`),
		}
		require.NoError(t, msg.ParseIntake())

		assert.True(t, msg.Intake.IsEntity())
		assert.False(t, msg.Intake.IsRelationship())
		assert.Equal(t, "doc-42", msg.GetDocumentID())
		assert.Equal(t, "ent-1", msg.GetRecordID())
	})

	t.Run("relationship record", func(t *testing.T) {
		msg := &IncomingMessage{
			Value: []byte(`{
				"kind": "relationship",
				"relationship": {"id": "rel-1", "subject_id": "ent-1", "predicate": "teacher_of", "object_id": "ent-2"}
			}`),
		}
		require.NoError(t, msg.ParseIntake())

		assert.True(t, msg.Intake.IsRelationship())
		assert.Equal(t, "rel-1", msg.GetRecordID())
	})

	t.Run("kind without matching record is neither", func(t *testing.T) {
		msg := &IncomingMessage{Key: "k-1", Value: []byte(`{"kind": "entity"}`)}
		require.NoError(t, msg.ParseIntake())

		assert.False(t, msg.Intake.IsEntity())
		assert.Equal(t, "k-1", msg.GetRecordID())
	})

	t.Run("invalid json errors", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte("not json")}
		assert.Error(t, msg.ParseIntake())
	})
}

func TestGetDocumentIDHeaderFallback(t *testing.T) {
	msg := &IncomingMessage{Headers: map[string]string{"document_id": "doc-7"}}
	assert.Equal(t, "doc-7", msg.GetDocumentID())
}
