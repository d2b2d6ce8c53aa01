package mergehistory

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/khandro-archive/namthar/internal/platform/database"
	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/pkg/models"
)

var columns = []string{
	"id", "primary_id", "duplicate_id", "strategy", "merged_by",
	"primary_snapshot", "duplicate_snapshot", "conflicts",
	"relationships_rewritten", "rewritten_relationship_ids",
	"removed_relationships", "rollback_possible", "merged_at", "rolled_back_at",
}

// Repository handles the merge audit trail. Rows are append-only; the only
// permitted mutation is flipping rollback_possible after an undo.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge history repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database for transaction scoping
func (r *Repository) DB() database.DB {
	return r.db
}

type row struct {
	ID                       string                                `db:"id"`
	PrimaryID                string                                `db:"primary_id"`
	DuplicateID              string                                `db:"duplicate_id"`
	Strategy                 string                                `db:"strategy"`
	MergedBy                 string                                `db:"merged_by"`
	PrimarySnapshot          database.JSONB[models.Entity]         `db:"primary_snapshot"`
	DuplicateSnapshot        database.JSONB[models.Entity]         `db:"duplicate_snapshot"`
	Conflicts                database.JSONB[[]models.MergeConflict] `db:"conflicts"`
	RelationshipsRewritten   int                                   `db:"relationships_rewritten"`
	RewrittenRelationshipIDs database.JSONB[[]string]              `db:"rewritten_relationship_ids"`
	RemovedRelationships     database.JSONB[[]models.Relationship] `db:"removed_relationships"`
	RollbackPossible         bool                                  `db:"rollback_possible"`
	MergedAt                 time.Time                             `db:"merged_at"`
	RolledBackAt             *time.Time                            `db:"rolled_back_at"`
}

func (h *row) toModel() models.MergeHistory {
	return models.MergeHistory{
		ID:                       h.ID,
		PrimaryID:                h.PrimaryID,
		DuplicateID:              h.DuplicateID,
		Strategy:                 models.ConflictStrategy(h.Strategy),
		MergedBy:                 h.MergedBy,
		PrimarySnapshot:          h.PrimarySnapshot.Data,
		DuplicateSnapshot:        h.DuplicateSnapshot.Data,
		Conflicts:                h.Conflicts.Data,
		RelationshipsRewritten:   h.RelationshipsRewritten,
		RewrittenRelationshipIDs: h.RewrittenRelationshipIDs.Data,
		RemovedRelationships:     h.RemovedRelationships.Data,
		RollbackPossible:         h.RollbackPossible,
		MergedAt:                 h.MergedAt,
		RolledBackAt:             h.RolledBackAt,
	}
}

// Create appends a merge history record.
func (r *Repository) Create(ctx context.Context, history models.MergeHistory) error {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.Create")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("merge_history")
	ib.Cols(columns...)
	ib.Values(
		history.ID, history.PrimaryID, history.DuplicateID, string(history.Strategy), history.MergedBy,
		database.JSONB[models.Entity]{Data: history.PrimarySnapshot},
		database.JSONB[models.Entity]{Data: history.DuplicateSnapshot},
		database.JSONB[[]models.MergeConflict]{Data: history.Conflicts},
		history.RelationshipsRewritten,
		database.JSONB[[]string]{Data: history.RewrittenRelationshipIDs},
		database.JSONB[[]models.Relationship]{Data: history.RemovedRelationships},
		history.RollbackPossible, history.MergedAt, history.RolledBackAt,
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": history.ID, "primary_id": history.PrimaryID, "duplicate_id": history.DuplicateID}).Error("Failed to create merge history")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge history")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": history.ID, "primary_id": history.PrimaryID, "duplicate_id": history.DuplicateID}).Info("Recorded merge")
	return nil
}

// Get retrieves a merge history record by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MergeHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_history")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, models.NewNotFoundError("merge history", id).ToHTTPError()
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get merge history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge history")
	}

	history := rec.toModel()
	return &history, nil
}

// ListByEntity returns merge records where the entity took part on either side,
// most recent first.
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.MergeHistory, error) {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_history")
	sb.Where(sb.Or(
		sb.Equal("primary_id", entityID),
		sb.Equal("duplicate_id", entityID),
	))
	sb.OrderBy("merged_at DESC")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list merge history")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge history")
	}

	histories := make([]models.MergeHistory, 0, len(rows))
	for i := range rows {
		histories = append(histories, rows[i].toModel())
	}
	return histories, nil
}

// MarkRolledBack flips rollback_possible off after a successful undo.
func (r *Repository) MarkRolledBack(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "mergehistory.Repository.MarkRolledBack")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("merge_history")
	ub.Set(
		ub.Assign("rollback_possible", false),
		ub.Assign("rolled_back_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("rollback_possible", true),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark merge rolled back")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update merge history")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.NewNotFoundError("merge history", id).ToHTTPError()
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Marked merge rolled back")
	return nil
}
