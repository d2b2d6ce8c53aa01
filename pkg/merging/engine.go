// Package merging implements entity merge, preview, and undo against the
// relational system of record.
package merging

import (
	"context"
	"database/sql"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/khandro-archive/namthar/internal/platform/database"
	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/pkg/models"
)

// TxStarter opens the relational transaction a merge or undo runs inside.
// Satisfied by database.DB.
type TxStarter interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error)
}

// EntityStore is the slice of the entity repository a merge needs.
type EntityStore interface {
	Get(ctx context.Context, id string) (*models.Entity, error)
	Update(ctx context.Context, entity models.Entity) error
	Tombstone(ctx context.Context, id, mergedInto string) error
	HardDelete(ctx context.Context, id string) error
}

// RelationshipStore rewrites, removes, and restores relationship rows around
// a merge.
type RelationshipStore interface {
	DeleteBetween(ctx context.Context, entityID1, entityID2 string) ([]models.Relationship, error)
	RewriteEntityRefs(ctx context.Context, fromID, toID string) ([]string, error)
	RestoreEntityRefs(ctx context.Context, ids []string, fromID, toID string) error
	Restore(ctx context.Context, rels []models.Relationship) error
}

// HistoryStore is the merge audit trail.
type HistoryStore interface {
	Create(ctx context.Context, history models.MergeHistory) error
	Get(ctx context.Context, id string) (*models.MergeHistory, error)
	MarkRolledBack(ctx context.Context, id string) error
}

// PairStore closes out duplicate-pair rows when one of their entities is
// merged away.
type PairStore interface {
	MarkMergedByEntities(ctx context.Context, primaryID, duplicateID, mergedBy string) error
	DeleteByEntity(ctx context.Context, entityID string) error
}

// GraphPropagator pushes the graph-side consequence of a committed merge or
// undo. Propagation is post-commit and non-transactional: a failure leaves
// the graph stale until the next sync, never rolls back the merge.
type GraphPropagator interface {
	HandleEntityMerge(ctx context.Context, primaryID, duplicateID string) error
	SyncEntity(ctx context.Context, id string) error
}

// Publisher announces completed merges and undos. Optional.
type Publisher interface {
	EntityMerged(ctx context.Context, history models.MergeHistory) error
	MergeUndone(ctx context.Context, history models.MergeHistory) error
}

// Engine executes entity merges.
type Engine struct {
	logger      ectologger.Logger
	db          TxStarter
	entityRepo  EntityStore
	relRepo     RelationshipStore
	historyRepo HistoryStore
	pairRepo    PairStore
	graph       GraphPropagator
	publisher   Publisher
}

// NewEngine creates a merge engine. graph and publisher may be nil.
func NewEngine(
	logger ectologger.Logger,
	db TxStarter,
	entityRepo EntityStore,
	relRepo RelationshipStore,
	historyRepo HistoryStore,
	pairRepo PairStore,
	graph GraphPropagator,
	publisher Publisher,
) *Engine {
	return &Engine{
		logger:      logger,
		db:          db,
		entityRepo:  entityRepo,
		relRepo:     relRepo,
		historyRepo: historyRepo,
		pairRepo:    pairRepo,
		graph:       graph,
		publisher:   publisher,
	}
}

// loadPair fetches both entities and enforces merge preconditions.
func (e *Engine) loadPair(ctx context.Context, primaryID, duplicateID string) (*models.Entity, *models.Entity, error) {
	if primaryID == duplicateID {
		return nil, nil, models.NewMergeValidationError(primaryID, duplicateID, "cannot merge an entity into itself")
	}

	primary, err := e.entityRepo.Get(ctx, primaryID)
	if err != nil {
		return nil, nil, err
	}
	duplicate, err := e.entityRepo.Get(ctx, duplicateID)
	if err != nil {
		return nil, nil, err
	}

	if primary.Type != duplicate.Type {
		return nil, nil, models.NewMergeValidationError(primaryID, duplicateID, "type mismatch: %s vs %s", primary.Type, duplicate.Type)
	}
	if !primary.IsActive() {
		return nil, nil, models.NewMergeValidationError(primaryID, duplicateID, "primary entity is already merged")
	}
	if !duplicate.IsActive() {
		return nil, nil, models.NewMergeValidationError(primaryID, duplicateID, "duplicate entity is already merged")
	}
	return primary, duplicate, nil
}

// Merge combines the duplicate into the primary inside one relational
// transaction, then propagates to the graph store post-commit.
func (e *Engine) Merge(ctx context.Context, primaryID, duplicateID string, opts models.MergeOptions) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id":   primaryID,
		"duplicate_id": duplicateID,
		"strategy":     opts.Strategy,
	})

	primary, duplicate, err := e.loadPair(ctx, primaryID, duplicateID)
	if err != nil {
		return nil, err
	}

	primarySnapshot := *primary
	duplicateSnapshot := *duplicate

	merged, conflicts, err := combineEntities(primary, duplicate, opts)
	if err != nil {
		return nil, err
	}

	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	now := time.Now().UTC()
	merged.UpdatedAt = now
	if err := e.entityRepo.Update(ctxTx, merged); err != nil {
		return nil, err
	}

	// Rows running directly between the pair would collapse into self-loops
	// under the rewrite. They come out first, snapshotted for undo, so that
	// nothing references the duplicate after the merge commits.
	removed, err := e.relRepo.DeleteBetween(ctxTx, primaryID, duplicateID)
	if err != nil {
		return nil, err
	}

	rewrittenIDs, err := e.relRepo.RewriteEntityRefs(ctxTx, duplicateID, primaryID)
	if err != nil {
		return nil, err
	}

	softDelete := opts.WantsSoftDelete()
	history := models.MergeHistory{
		ID:                       uuid.NewString(),
		PrimaryID:                primaryID,
		DuplicateID:              duplicateID,
		Strategy:                 opts.Strategy,
		MergedBy:                 opts.MergedBy,
		PrimarySnapshot:          primarySnapshot,
		DuplicateSnapshot:        duplicateSnapshot,
		Conflicts:                conflicts,
		RelationshipsRewritten:   len(rewrittenIDs),
		RewrittenRelationshipIDs: rewrittenIDs,
		RemovedRelationships:     removed,
		RollbackPossible:         softDelete,
		MergedAt:                 now,
	}
	if err := e.historyRepo.Create(ctxTx, history); err != nil {
		return nil, err
	}

	if softDelete {
		if err := e.pairRepo.MarkMergedByEntities(ctxTx, primaryID, duplicateID, opts.MergedBy); err != nil {
			return nil, err
		}
		if err := e.entityRepo.Tombstone(ctxTx, duplicateID, primaryID); err != nil {
			return nil, err
		}
	} else {
		// Pair rows hold foreign keys onto the entity being hard-deleted.
		if err := e.pairRepo.DeleteByEntity(ctxTx, duplicateID); err != nil {
			return nil, err
		}
		if err := e.entityRepo.HardDelete(ctxTx, duplicateID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"history_id":              history.ID,
		"relationships_rewritten": len(rewrittenIDs),
		"relationships_removed":   len(removed),
		"conflicts":               len(conflicts),
	}).Info("Merged entities")

	e.propagateMerge(ctx, history)

	return &models.MergeResult{
		HistoryID:              history.ID,
		Merged:                 merged,
		Conflicts:              conflicts,
		RelationshipsRewritten: len(rewrittenIDs),
		RelationshipsRemoved:   len(removed),
	}, nil
}

// propagateMerge pushes post-commit side effects. Failures are logged, not
// returned: the relational store is already authoritative and the
// consistency checker will surface any drift.
func (e *Engine) propagateMerge(ctx context.Context, history models.MergeHistory) {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"history_id": history.ID,
	})

	if e.graph != nil {
		if err := e.graph.SyncEntity(ctx, history.PrimaryID); err != nil {
			log.WithError(err).Warn("Failed to sync merged entity to graph")
		}
		if err := e.graph.HandleEntityMerge(ctx, history.PrimaryID, history.DuplicateID); err != nil {
			log.WithError(err).Warn("Failed to propagate merge to graph")
		}
	}
	if e.publisher != nil {
		if err := e.publisher.EntityMerged(ctx, history); err != nil {
			log.WithError(err).Warn("Failed to publish merge event")
		}
	}
}

// Preview runs the pure half of a merge against copies and reports what a
// real merge would produce. Never writes.
func (e *Engine) Preview(ctx context.Context, primaryID, duplicateID string, opts models.MergeOptions) (*models.MergePreview, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Preview")
	defer span.End()

	primary, duplicate, err := e.loadPair(ctx, primaryID, duplicateID)
	if err != nil {
		return nil, err
	}

	merged, conflicts, err := combineEntities(primary, duplicate, opts)
	if err != nil {
		return nil, err
	}

	return &models.MergePreview{
		Merged:    merged,
		Conflicts: conflicts,
		Quality:   assessQuality(&merged, len(conflicts)),
	}, nil
}

// Undo restores both entities to their pre-merge snapshots and points the
// rewritten relationships back at the reactivated duplicate.
func (e *Engine) Undo(ctx context.Context, historyID, actor string) (*models.MergeHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Undo")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"history_id": historyID,
		"actor":      actor,
	})

	history, err := e.historyRepo.Get(ctx, historyID)
	if err != nil {
		return nil, err
	}
	if !history.RollbackPossible {
		return nil, models.NewRollbackError(historyID, "merge was performed with hard delete and cannot be undone")
	}
	if history.RolledBackAt != nil {
		return nil, models.NewRollbackError(historyID, "merge was already undone at %s", history.RolledBackAt.Format(time.RFC3339))
	}

	ctxTx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	now := time.Now().UTC()

	primarySnapshot := history.PrimarySnapshot
	primarySnapshot.UpdatedAt = now
	if err := e.entityRepo.Update(ctxTx, primarySnapshot); err != nil {
		return nil, err
	}

	duplicateSnapshot := history.DuplicateSnapshot
	duplicateSnapshot.MergeStatus = models.MergeStatusActive
	duplicateSnapshot.MergedInto = nil
	duplicateSnapshot.UpdatedAt = now
	if err := e.entityRepo.Update(ctxTx, duplicateSnapshot); err != nil {
		return nil, err
	}

	if len(history.RewrittenRelationshipIDs) > 0 {
		if err := e.relRepo.RestoreEntityRefs(ctxTx, history.RewrittenRelationshipIDs, history.PrimaryID, history.DuplicateID); err != nil {
			return nil, err
		}
	}

	// Both entities are active again, so the rows removed between them can
	// go back in.
	if len(history.RemovedRelationships) > 0 {
		if err := e.relRepo.Restore(ctxTx, history.RemovedRelationships); err != nil {
			return nil, err
		}
	}

	if err := e.historyRepo.MarkRolledBack(ctxTx, historyID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, err
	}

	log.Info("Undid merge")

	if e.graph != nil {
		for _, id := range []string{history.PrimaryID, history.DuplicateID} {
			if err := e.graph.SyncEntity(ctx, id); err != nil {
				log.WithError(err).WithFields(map[string]any{"entity_id": id}).Warn("Failed to sync restored entity to graph")
			}
		}
	}
	if e.publisher != nil {
		if err := e.publisher.MergeUndone(ctx, *history); err != nil {
			log.WithError(err).Warn("Failed to publish undo event")
		}
	}

	history.RolledBackAt = &now
	return history, nil
}
