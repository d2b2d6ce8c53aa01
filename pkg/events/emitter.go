// Package events publishes lifecycle events for merges, dedup scans, and
// store maintenance.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/pkg/kafka"
	"github.com/khandro-archive/namthar/pkg/models"
)

// Emitter builds and publishes namthar events. It satisfies the publisher
// hooks of the merge engine and the dedup scanner.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EntityMerged emits an entity.merged event after the relational commit.
func (e *Emitter) EntityMerged(ctx context.Context, history models.MergeHistory) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EntityMerged")
	defer span.End()

	event := EntityMergedEvent{
		BaseEvent:              NewBaseEvent(EventTypeEntityMerged),
		HistoryID:              history.ID,
		PrimaryID:              history.PrimaryID,
		DuplicateID:            history.DuplicateID,
		EntityType:             string(history.PrimarySnapshot.Type),
		Strategy:               history.Strategy,
		MergedBy:               history.MergedBy,
		Conflicts:              history.Conflicts,
		RelationshipsRewritten: history.RelationshipsRewritten,
		RollbackPossible:       history.RollbackPossible,
	}

	if err := e.producer.Publish(ctx, history.PrimaryID, string(EventTypeEntityMerged), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.merged event")
		return err
	}
	return nil
}

// MergeUndone emits an entity.merge_undone event after a rollback commits.
func (e *Emitter) MergeUndone(ctx context.Context, history models.MergeHistory) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.MergeUndone")
	defer span.End()

	event := EntityMergeUndoneEvent{
		BaseEvent:   NewBaseEvent(EventTypeEntityMergeUndone),
		HistoryID:   history.ID,
		PrimaryID:   history.PrimaryID,
		DuplicateID: history.DuplicateID,
		EntityType:  string(history.PrimarySnapshot.Type),
	}

	if err := e.producer.Publish(ctx, history.PrimaryID, string(EventTypeEntityMergeUndone), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.merge_undone event")
		return err
	}
	return nil
}

// NotifyDuplicate emits a duplicate.candidate event for a newly recorded
// pending pair.
func (e *Emitter) NotifyDuplicate(ctx context.Context, pair models.DuplicatePair) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.NotifyDuplicate")
	defer span.End()

	event := DuplicateCandidateEvent{
		BaseEvent:  NewBaseEvent(EventTypeDuplicateCandidate),
		PairID:     pair.ID,
		EntityID1:  pair.EntityID1,
		EntityID2:  pair.EntityID2,
		Overall:    pair.Overall,
		Signals:    pair.Signals,
		Confidence: pair.Confidence,
	}

	if err := e.producer.Publish(ctx, pair.ID, string(EventTypeDuplicateCandidate), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit duplicate.candidate event")
		return err
	}
	return nil
}

// SyncCompleted emits a sync.completed event.
func (e *Emitter) SyncCompleted(ctx context.Context, result models.SyncResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.SyncCompleted")
	defer span.End()

	event := SyncCompletedEvent{
		BaseEvent:           NewBaseEvent(EventTypeSyncCompleted),
		EntitiesSynced:      result.EntitiesSynced,
		RelationshipsSynced: result.RelationshipsSynced,
		Failures:            len(result.Failures),
		DurationMs:          result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	}

	if err := e.producer.Publish(ctx, event.CorrelationID, string(EventTypeSyncCompleted), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit sync.completed event")
		return err
	}
	return nil
}

// ConsistencyChecked emits a consistency.checked event.
func (e *Emitter) ConsistencyChecked(ctx context.Context, report models.ConsistencyReport) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ConsistencyChecked")
	defer span.End()

	event := ConsistencyCheckedEvent{
		BaseEvent:                 NewBaseEvent(EventTypeConsistencyChecked),
		Consistent:                report.Consistent,
		DatabaseEntityCount:       report.DatabaseEntityCount,
		GraphEntityCount:          report.GraphEntityCount,
		DatabaseRelationshipCount: report.DatabaseRelationshipCount,
		GraphRelationshipCount:    report.GraphRelationshipCount,
		PropertyMismatches:        len(report.PropertyMismatches),
		OrphanedEdges:             len(report.OrphanedEdges),
		Summary:                   report.Summary,
	}

	if err := e.producer.Publish(ctx, event.CorrelationID, string(EventTypeConsistencyChecked), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit consistency.checked event")
		return err
	}
	return nil
}
