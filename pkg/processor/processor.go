// Package processor is the extraction intake layer: validated entity and
// relationship records arrive on Kafka and land in the relational store.
// Graph projection and merging happen downstream.
package processor

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/internal/repositories/entity"
	"github.com/khandro-archive/namthar/internal/repositories/relationship"
	"github.com/khandro-archive/namthar/pkg/dedupe"
	"github.com/khandro-archive/namthar/pkg/kafka"
	"github.com/khandro-archive/namthar/pkg/models"
)

var validate = validator.New()

// Processor handles intake message processing.
type Processor struct {
	logger     ectologger.Logger
	entityRepo *entity.Repository
	relRepo    *relationship.Repository

	// scanner is optional; when set, every entity upsert triggers a
	// single-entity duplicate scan.
	scanner *dedupe.Service
}

// NewProcessor creates a new intake processor. scanner may be nil.
func NewProcessor(
	logger ectologger.Logger,
	entityRepo *entity.Repository,
	relRepo *relationship.Repository,
	scanner *dedupe.Service,
) *Processor {
	return &Processor{
		logger:     logger,
		entityRepo: entityRepo,
		relRepo:    relRepo,
		scanner:    scanner,
	}
}

// HandleMessage is the kafka consumer entrypoint. Validation failures return
// a ValidationError so the consumer commits and moves on; store failures
// propagate for redelivery.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	intake, err := p.resolveIntake(msg)
	if err != nil {
		return err
	}

	switch {
	case intake.IsEntity():
		return p.processEntity(ctx, intake.Entity)
	case intake.IsRelationship():
		return p.processRelationship(ctx, intake.Relationship)
	}
	return models.NewValidationError("kind", "unknown intake kind '%s'", intake.Kind)
}

// resolveIntake returns the parsed intake record, unwrapping CDC envelopes
// when the topic is fed by change capture.
func (p *Processor) resolveIntake(msg *kafka.IncomingMessage) (*kafka.IntakeMessage, error) {
	if msg.Intake != nil {
		return msg.Intake, nil
	}

	envelope, err := kafka.ParseDebeziumMessage(msg.Value)
	if err != nil {
		return nil, models.NewValidationError("", "unparseable intake message: %v", err)
	}
	if envelope.Payload.IsDelete() {
		return nil, models.NewValidationError("op", "delete ops are not consumed from intake")
	}

	switch envelope.Payload.Source.Table {
	case "extracted_relationships":
		row, err := envelope.Payload.ParseRelationshipRow()
		if err != nil || row == nil {
			return nil, models.NewValidationError("payload", "bad relationship row: %v", err)
		}
		req, err := row.ToCreateRequest()
		if err != nil {
			return nil, models.NewValidationError("payload", "bad relationship columns: %v", err)
		}
		return &kafka.IntakeMessage{Kind: kafka.IntakeKindRelationship, Relationship: req}, nil
	default:
		row, err := envelope.Payload.ParseEntityRow()
		if err != nil || row == nil {
			return nil, models.NewValidationError("payload", "bad entity row: %v", err)
		}
		req, err := row.ToCreateRequest()
		if err != nil {
			return nil, models.NewValidationError("payload", "bad entity columns: %v", err)
		}
		return &kafka.IntakeMessage{Kind: kafka.IntakeKindEntity, Entity: req}, nil
	}
}

func (p *Processor) processEntity(ctx context.Context, req *models.CreateEntityRequest) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.processEntity")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_id":   req.ID,
		"entity_type": req.Type,
	})

	if err := validate.Struct(req); err != nil {
		return models.NewValidationError("", "invalid entity record: %v", err)
	}
	if !models.ValidEntityTypes[req.Type] {
		return models.NewValidationError("type", "unknown entity type '%s'", req.Type)
	}

	created, err := p.upsertEntity(ctx, req)
	if err != nil {
		return err
	}

	if p.scanner != nil && created != nil {
		if _, err := p.scanner.ScanEntity(ctx, created.ID); err != nil {
			log.WithError(err).Warn("Post-intake duplicate scan failed")
		}
	}
	return nil
}

// upsertEntity creates the row, or refreshes content fields when the id is
// already present. Tombstoned rows are never resurrected by intake; the
// record is dropped.
func (p *Processor) upsertEntity(ctx context.Context, req *models.CreateEntityRequest) (*models.Entity, error) {
	if req.ID == "" {
		return p.entityRepo.Create(ctx, *req)
	}

	existing, err := p.entityRepo.Get(ctx, req.ID)
	if err != nil {
		if models.IsNotFoundError(err) {
			return p.entityRepo.Create(ctx, *req)
		}
		return nil, err
	}
	if !existing.IsActive() {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"entity_id":   req.ID,
			"merged_into": existing.MergedInto,
		}).Warn("Dropping intake record for merged entity")
		return nil, nil
	}

	updated := *existing
	updated.CanonicalName = req.CanonicalName
	updated.Names = req.Names
	updated.Attributes = req.Attributes
	updated.Dates = req.Dates
	updated.Confidence = req.Confidence
	updated.Provenance = req.Provenance
	updated.UpdatedAt = time.Now().UTC()

	if err := p.entityRepo.Update(ctx, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (p *Processor) processRelationship(ctx context.Context, req *models.CreateRelationshipRequest) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.processRelationship")
	defer span.End()

	if err := validate.Struct(req); err != nil {
		return models.NewValidationError("", "invalid relationship record: %v", err)
	}

	// Redelivered records are already stored.
	if req.ID != "" {
		if _, err := p.relRepo.Get(ctx, req.ID); err == nil {
			return nil
		} else if !models.IsNotFoundError(err) {
			return err
		}
	}

	// Endpoints follow merges: a reference to a merged duplicate resolves
	// to its surviving entity.
	subject, err := p.resolveEndpoint(ctx, "subject_id", req.SubjectID)
	if err != nil {
		return err
	}
	object, err := p.resolveEndpoint(ctx, "object_id", req.ObjectID)
	if err != nil {
		return err
	}
	if subject == object {
		return models.NewValidationError("object_id", "relationship endpoints collapse to the same entity '%s'", subject)
	}

	resolved := *req
	resolved.SubjectID = subject
	resolved.ObjectID = object

	_, err = p.relRepo.Create(ctx, resolved)
	return err
}

func (p *Processor) resolveEndpoint(ctx context.Context, field, id string) (string, error) {
	resolved, err := p.entityRepo.ResolveActive(ctx, id)
	if err != nil {
		if models.IsNotFoundError(err) {
			return "", models.NewValidationError(field, "unknown entity '%s'", id)
		}
		return "", err
	}
	return resolved.ID, nil
}
