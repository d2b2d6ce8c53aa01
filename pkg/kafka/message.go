package kafka

import (
	"encoding/json"
	"time"

	"github.com/khandro-archive/namthar/pkg/models"
)

// Intake message kinds.
const (
	IntakeKindEntity       = "entity"
	IntakeKindRelationship = "relationship"
)

// IntakeMessage is the shape the extraction pipeline publishes: one record
// per message, entity or relationship, already validated upstream for JSON
// shape but not for domain rules.
type IntakeMessage struct {
	Kind         string                            `json:"kind"`
	Entity       *models.CreateEntityRequest       `json:"entity,omitempty"`
	Relationship *models.CreateRelationshipRequest `json:"relationship,omitempty"`
	Source       IntakeSource                      `json:"source"`
}

// IntakeSource identifies the extraction run that produced a record.
type IntakeSource struct {
	DocumentID  string    `json:"document_id"`
	ExtractorID string    `json:"extractor_id,omitempty"`
	ExtractedAt time.Time `json:"extracted_at,omitempty"`
}

// IsEntity reports whether the message carries an entity record.
func (m *IntakeMessage) IsEntity() bool {
	return m.Kind == IntakeKindEntity && m.Entity != nil
}

// IsRelationship reports whether the message carries a relationship record.
func (m *IntakeMessage) IsRelationship() bool {
	return m.Kind == IntakeKindRelationship && m.Relationship != nil
}

// IncomingMessage wraps a raw Kafka message with parsed headers.
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Intake *IntakeMessage
}

// ParseIntake parses the message value as an intake record.
func (m *IncomingMessage) ParseIntake() error {
	var msg IntakeMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	m.Intake = &msg
	return nil
}

// GetDocumentID returns the source document id, falling back to the header.
func (m *IncomingMessage) GetDocumentID() string {
	if m.Intake != nil && m.Intake.Source.DocumentID != "" {
		return m.Intake.Source.DocumentID
	}
	return m.Headers["document_id"]
}

// GetRecordID returns the id of the carried record, empty when absent.
func (m *IncomingMessage) GetRecordID() string {
	if m.Intake == nil {
		return m.Key
	}
	switch {
	case m.Intake.IsEntity():
		return m.Intake.Entity.ID
	case m.Intake.IsRelationship():
		return m.Intake.Relationship.ID
	}
	return m.Key
}
