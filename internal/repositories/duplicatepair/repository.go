package duplicatepair

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/khandro-archive/namthar/internal/platform/database"
	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/pkg/models"
)

var columns = []string{
	"id", "entity_id_1", "entity_id_2", "overall", "signals", "confidence",
	"status", "reviewed_by", "created_at", "updated_at", "reviewed_at",
}

// Repository handles the duplicate review queue
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate pair repository
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
	ID         string                              `db:"id"`
	EntityID1  string                              `db:"entity_id_1"`
	EntityID2  string                              `db:"entity_id_2"`
	Overall    float64                             `db:"overall"`
	Signals    database.JSONB[models.SignalScores] `db:"signals"`
	Confidence string                              `db:"confidence"`
	Status     string                              `db:"status"`
	ReviewedBy *string                             `db:"reviewed_by"`
	CreatedAt  time.Time                           `db:"created_at"`
	UpdatedAt  time.Time                           `db:"updated_at"`
	ReviewedAt *time.Time                          `db:"reviewed_at"`
}

func (p *row) toModel() models.DuplicatePair {
	return models.DuplicatePair{
		ID:         p.ID,
		EntityID1:  p.EntityID1,
		EntityID2:  p.EntityID2,
		Overall:    p.Overall,
		Signals:    p.Signals.Data,
		Confidence: p.Confidence,
		Status:     p.Status,
		ReviewedBy: p.ReviewedBy,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		ReviewedAt: p.ReviewedAt,
	}
}

// Upsert records a scored pair in the review queue. The pair is keyed on the
// ordered id tuple; re-scoring a pending pair refreshes its scores without
// clobbering a completed review.
func (r *Repository) Upsert(ctx context.Context, score models.DuplicateScore) (*models.DuplicatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.Upsert")
	defer span.End()

	id1, id2 := score.EntityID1, score.EntityID2
	if id2 < id1 {
		id1, id2 = id2, id1
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO duplicate_pairs (
			id, entity_id_1, entity_id_2, overall, signals, confidence,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (entity_id_1, entity_id_2)
		DO UPDATE SET
			overall = EXCLUDED.overall,
			signals = EXCLUDED.signals,
			confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at
		WHERE duplicate_pairs.status = 'pending'
		RETURNING id, entity_id_1, entity_id_2, overall, signals, confidence,
			status, reviewed_by, created_at, updated_at, reviewed_at
	`

	var rec row
	err := r.db.GetContext(ctx, &rec, query,
		uuid.New().String(), id1, id2, score.Overall,
		database.JSONB[models.SignalScores]{Data: score.Signals},
		score.Confidence, models.PairStatusPending, now, now,
	)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			// Conflict on a reviewed pair; leave the review untouched.
			return r.GetByEntities(ctx, id1, id2)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id_1": id1, "entity_id_2": id2}).Error("Failed to upsert duplicate pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert duplicate pair")
	}

	pair := rec.toModel()
	return &pair, nil
}

// Get retrieves a duplicate pair by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.DuplicatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("duplicate_pairs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, models.NewNotFoundError("duplicate pair", id).ToHTTPError()
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get duplicate pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate pair")
	}

	pair := rec.toModel()
	return &pair, nil
}

// GetByEntities retrieves the pair row for an id tuple, order-insensitive.
func (r *Repository) GetByEntities(ctx context.Context, entityID1, entityID2 string) (*models.DuplicatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.GetByEntities")
	defer span.End()

	if entityID2 < entityID1 {
		entityID1, entityID2 = entityID2, entityID1
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("duplicate_pairs")
	sb.Where(
		sb.Equal("entity_id_1", entityID1),
		sb.Equal("entity_id_2", entityID2),
	)

	query, args := sb.Build()
	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id_1": entityID1, "entity_id_2": entityID2}).Error("Failed to get duplicate pair by entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate pair")
	}

	pair := rec.toModel()
	return &pair, nil
}

// List retrieves pairs filtered by status with pagination, highest score first.
func (r *Repository) List(ctx context.Context, status *string, page, pageSize int) (*models.DuplicatePairListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("duplicate_pairs")
	if status != nil {
		countSb.Where(countSb.Equal("status", *status))
	}

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": status}).Error("Failed to count duplicate pairs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count duplicate pairs")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("duplicate_pairs")
	if status != nil {
		sb.Where(sb.Equal("status", *status))
	}
	sb.OrderBy("overall DESC", "created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": status, "page": page, "page_size": pageSize}).Error("Failed to list duplicate pairs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate pairs")
	}

	pairs := make([]models.DuplicatePair, 0, len(rows))
	for i := range rows {
		pairs = append(pairs, rows[i].toModel())
	}

	return &models.DuplicatePairListResponse{
		Items:      pairs,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// UpdateStatus moves a pair through the review workflow.
func (r *Repository) UpdateStatus(ctx context.Context, id, status, reviewedBy string) error {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.UpdateStatus")
	defer span.End()

	switch status {
	case models.PairStatusPending, models.PairStatusMerged, models.PairStatusRejected, models.PairStatusFlagged:
	default:
		return models.NewValidationError("status", "unknown pair status '%s'", status).ToHTTPError()
	}

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("duplicate_pairs")
	assigns := []string{
		ub.Assign("status", status),
		ub.Assign("updated_at", now),
	}
	if status != models.PairStatusPending {
		assigns = append(assigns, ub.Assign("reviewed_by", reviewedBy), ub.Assign("reviewed_at", now))
	}
	ub.Set(assigns...)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "status": status}).Error("Failed to update duplicate pair status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update duplicate pair")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.NewNotFoundError("duplicate pair", id).ToHTTPError()
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "status": status}).Info("Updated duplicate pair status")
	return nil
}

// MarkMergedByEntities closes out any pair rows touching either entity after
// a merge commits.
func (r *Repository) MarkMergedByEntities(ctx context.Context, primaryID, duplicateID, mergedBy string) error {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.MarkMergedByEntities")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("duplicate_pairs")
	ub.Set(
		ub.Assign("status", models.PairStatusMerged),
		ub.Assign("reviewed_by", mergedBy),
		ub.Assign("reviewed_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("status", models.PairStatusPending),
		ub.Or(
			ub.Equal("entity_id_1", duplicateID),
			ub.Equal("entity_id_2", duplicateID),
		),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"primary_id": primaryID, "duplicate_id": duplicateID}).Error("Failed to close duplicate pairs after merge")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to close duplicate pairs")
	}
	return nil
}

// DeleteByEntity removes every pair row touching the entity. Pair rows carry
// foreign keys onto entities, so a hard delete purges them first.
func (r *Repository) DeleteByEntity(ctx context.Context, entityID string) error {
	ctx, span := tracing.StartSpan(ctx, "duplicatepair.Repository.DeleteByEntity")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom("duplicate_pairs")
	sb.Where(sb.Or(
		sb.Equal("entity_id_1", entityID),
		sb.Equal("entity_id_2", entityID),
	))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to delete duplicate pairs for entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete duplicate pairs")
	}
	return nil
}
