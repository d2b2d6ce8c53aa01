package kafka

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/khandro-archive/namthar/pkg/models"
)

// DebeziumEnvelope is the standard Debezium CDC message format. Intake can
// be fed directly from change capture on an extraction staging database
// instead of the plain intake topic.
type DebeziumEnvelope struct {
	Schema  json.RawMessage `json:"schema,omitempty"`
	Payload DebeziumPayload `json:"payload"`
}

// DebeziumPayload contains the before/after state of a row
type DebeziumPayload struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Source DebeziumSource  `json:"source"`
	Op     string          `json:"op"` // c=create, u=update, d=delete, r=read (snapshot)
	TsMs   int64           `json:"ts_ms"`
}

// DebeziumSource contains metadata about the source of the change
type DebeziumSource struct {
	Version   string `json:"version"`
	Connector string `json:"connector"`
	Name      string `json:"name"`
	TsMs      int64  `json:"ts_ms"`
	Snapshot  string `json:"snapshot,omitempty"`
	Db        string `json:"db"`
	Schema    string `json:"schema"`
	Table     string `json:"table"`
	TxId      int64  `json:"txId,omitempty"`
	Lsn       int64  `json:"lsn,omitempty"`
}

// IsCreate returns true if this is a create operation
func (p *DebeziumPayload) IsCreate() bool {
	return p.Op == "c" || p.Op == "r"
}

// IsUpdate returns true if this is an update operation
func (p *DebeziumPayload) IsUpdate() bool {
	return p.Op == "u"
}

// IsDelete returns true if this is a delete operation
func (p *DebeziumPayload) IsDelete() bool {
	return p.Op == "d"
}

// Timestamp returns the event timestamp
func (p *DebeziumPayload) Timestamp() time.Time {
	return time.UnixMilli(p.TsMs)
}

// ExtractedEntityRow is a row from the extraction staging entities table.
// JSON columns arrive as embedded strings depending on connector config.
type ExtractedEntityRow struct {
	ID            string          `json:"id"`
	EntityType    string          `json:"entity_type"`
	CanonicalName string          `json:"canonical_name"`
	Names         json.RawMessage `json:"names"`
	Attributes    json.RawMessage `json:"attributes"`
	Dates         json.RawMessage `json:"dates"`
	Confidence    float64         `json:"confidence"`
	Provenance    json.RawMessage `json:"provenance"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
	DeletedAt     *string         `json:"deleted_at"`
}

// IsDeleted returns true if the row has been soft-deleted
func (r *ExtractedEntityRow) IsDeleted() bool {
	return r.DeletedAt != nil && *r.DeletedAt != ""
}

// ToCreateRequest converts the staging row to an intake entity record.
func (r *ExtractedEntityRow) ToCreateRequest() (*models.CreateEntityRequest, error) {
	req := &models.CreateEntityRequest{
		ID:            r.ID,
		Type:          models.EntityType(r.EntityType),
		CanonicalName: r.CanonicalName,
		Confidence:    r.Confidence,
	}
	if err := unmarshalColumn(r.Names, &req.Names); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(r.Attributes, &req.Attributes); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(r.Dates, &req.Dates); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(r.Provenance, &req.Provenance); err != nil {
		return nil, err
	}
	return req, nil
}

// ExtractedRelationshipRow is a row from the extraction staging
// relationships table.
type ExtractedRelationshipRow struct {
	ID         string          `json:"id"`
	SubjectID  string          `json:"subject_id"`
	Predicate  string          `json:"predicate"`
	ObjectID   string          `json:"object_id"`
	Properties json.RawMessage `json:"properties"`
	Confidence float64         `json:"confidence"`
	Provenance json.RawMessage `json:"provenance"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
	DeletedAt  *string         `json:"deleted_at"`
}

// IsDeleted returns true if the row has been soft-deleted
func (r *ExtractedRelationshipRow) IsDeleted() bool {
	return r.DeletedAt != nil && *r.DeletedAt != ""
}

// ToCreateRequest converts the staging row to an intake relationship record.
func (r *ExtractedRelationshipRow) ToCreateRequest() (*models.CreateRelationshipRequest, error) {
	req := &models.CreateRelationshipRequest{
		ID:         r.ID,
		SubjectID:  r.SubjectID,
		Predicate:  r.Predicate,
		ObjectID:   r.ObjectID,
		Confidence: r.Confidence,
	}
	if err := unmarshalColumn(r.Properties, &req.Properties); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(r.Provenance, &req.Provenance); err != nil {
		return nil, err
	}
	return req, nil
}

// ParseDebeziumMessage parses a raw Kafka message as a Debezium envelope
func ParseDebeziumMessage(data []byte) (*DebeziumEnvelope, error) {
	var envelope DebeziumEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// IsDebeziumMessage reports whether the raw value looks like a CDC envelope.
func IsDebeziumMessage(data []byte) bool {
	var probe struct {
		Payload struct {
			Op string `json:"op"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Payload.Op != ""
}

// ParseEntityRow parses the After payload as an ExtractedEntityRow
func (p *DebeziumPayload) ParseEntityRow() (*ExtractedEntityRow, error) {
	if len(p.After) == 0 || string(p.After) == "null" {
		return nil, nil
	}
	var row ExtractedEntityRow
	if err := json.Unmarshal(p.After, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// ParseRelationshipRow parses the After payload as an ExtractedRelationshipRow
func (p *DebeziumPayload) ParseRelationshipRow() (*ExtractedRelationshipRow, error) {
	if len(p.After) == 0 || string(p.After) == "null" {
		return nil, nil
	}
	var row ExtractedRelationshipRow
	if err := json.Unmarshal(p.After, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

// unmarshalColumn decodes a JSON column, unwrapping the string-encoded form
// some connector configs produce.
func unmarshalColumn(raw json.RawMessage, out any) error {
	raw = json.RawMessage(bytes.TrimSpace(raw))
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = json.RawMessage(s)
	}
	return json.Unmarshal(raw, out)
}
