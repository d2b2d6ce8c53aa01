package processor

import (
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/pkg/kafka"
	"github.com/khandro-archive/namthar/pkg/models"
)

func testProcessor() *Processor {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewProcessor(logger, nil, nil, nil)
}

func TestResolveIntake(t *testing.T) {
	p := testProcessor()

	t.Run("pre-parsed intake passes through", func(t *testing.T) {
		msg := &kafka.IncomingMessage{Intake: &kafka.IntakeMessage{Kind: kafka.IntakeKindEntity}}
		intake, err := p.resolveIntake(msg)
		require.NoError(t, err)
		assert.Same(t, msg.Intake, intake)
	})

	t.Run("cdc entity envelope unwraps", func(t *testing.T) {
		msg := &kafka.IncomingMessage{Value: []byte(`{
			"payload": {
				"op": "c",
				"source": {"table": "extracted_entities"},
				"after": {"id": "ent-1", "entity_type": "person", "canonical_name": "Gampopa", "confidence": 0.8}
			}
		}`)}
		intake, err := p.resolveIntake(msg)
		require.NoError(t, err)
		require.True(t, intake.IsEntity())
		assert.Equal(t, "Gampopa", intake.Entity.CanonicalName)
	})

	t.Run("cdc relationship envelope unwraps", func(t *testing.T) {
		msg := &kafka.IncomingMessage{Value: []byte(`{
			"payload": {
				"op": "c",
				"source": {"table": "extracted_relationships"},
				"after": {"id": "rel-1", "subject_id": "a", "predicate": "student_of", "object_id": "b", "confidence": 0.7}
			}
		}`)}
		intake, err := p.resolveIntake(msg)
		require.NoError(t, err)
		require.True(t, intake.IsRelationship())
		assert.Equal(t, "student_of", intake.Relationship.Predicate)
	})

	t.Run("delete op is rejected as validation error", func(t *testing.T) {
		msg := &kafka.IncomingMessage{Value: []byte(`{"payload": {"op": "d", "before": {"id": "ent-1"}}}`)}
		_, err := p.resolveIntake(msg)
		require.Error(t, err)
		assert.True(t, models.IsValidationError(err))
	})

	t.Run("garbage value is a validation error", func(t *testing.T) {
		msg := &kafka.IncomingMessage{Value: []byte("not json")}
		_, err := p.resolveIntake(msg)
		require.Error(t, err)
		assert.True(t, models.IsValidationError(err))
	})
}

func TestHandleMessageUnknownKind(t *testing.T) {
	p := testProcessor()
	msg := &kafka.IncomingMessage{Intake: &kafka.IntakeMessage{Kind: "document"}}

	err := p.HandleMessage(t.Context(), msg)
	require.Error(t, err)
	assert.True(t, models.IsValidationError(err))
}
