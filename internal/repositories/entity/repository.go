package entity

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

const maxMergeChainHops = 10

var columns = []string{
	"id", "type", "canonical_name", "names", "attributes", "dates",
	"confidence", "verified", "merge_status", "merged_into", "provenance",
	"created_by", "verified_by", "created_at", "updated_at", "verified_at",
}

// Repository handles entity persistence in the system of record
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity repository
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

// row is the scan target; jsonb columns go through the JSONB wrapper.
type row struct {
	ID            string                                     `db:"id"`
	Type          string                                     `db:"type"`
	CanonicalName string                                     `db:"canonical_name"`
	Names         database.JSONB[models.NameVariants]        `db:"names"`
	Attributes    database.JSONB[map[string]any]             `db:"attributes"`
	Dates         database.JSONB[map[string]models.DateInfo] `db:"dates"`
	Confidence    float64                                    `db:"confidence"`
	Verified      bool                                       `db:"verified"`
	MergeStatus   string                                     `db:"merge_status"`
	MergedInto    *string                                    `db:"merged_into"`
	Provenance    database.JSONB[models.Provenance]          `db:"provenance"`
	CreatedBy     string                                     `db:"created_by"`
	VerifiedBy    *string                                    `db:"verified_by"`
	CreatedAt     time.Time                                  `db:"created_at"`
	UpdatedAt     time.Time                                  `db:"updated_at"`
	VerifiedAt    *time.Time                                 `db:"verified_at"`
}

func (e *row) toModel() models.Entity {
	return models.Entity{
		ID:            e.ID,
		Type:          models.EntityType(e.Type),
		CanonicalName: e.CanonicalName,
		Names:         e.Names.Data,
		Attributes:    e.Attributes.Data,
		Dates:         e.Dates.Data,
		Confidence:    e.Confidence,
		Verified:      e.Verified,
		MergeStatus:   e.MergeStatus,
		MergedInto:    e.MergedInto,
		Provenance:    e.Provenance.Data,
		CreatedBy:     e.CreatedBy,
		VerifiedBy:    e.VerifiedBy,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
		VerifiedAt:    e.VerifiedAt,
	}
}

func toModels(rows []row) []models.Entity {
	entities := make([]models.Entity, 0, len(rows))
	for i := range rows {
		entities = append(entities, rows[i].toModel())
	}
	return entities
}

// Create inserts a new active entity.
func (r *Repository) Create(ctx context.Context, req models.CreateEntityRequest) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Create")
	defer span.End()

	if !models.ValidEntityTypes[req.Type] {
		return nil, models.NewValidationError("type", "unknown entity type '%s'", req.Type).ToHTTPError()
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	entity := models.Entity{
		ID:            id,
		Type:          req.Type,
		CanonicalName: req.CanonicalName,
		Names:         req.Names,
		Attributes:    req.Attributes,
		Dates:         req.Dates,
		Confidence:    req.Confidence,
		MergeStatus:   models.MergeStatusActive,
		Provenance:    req.Provenance,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("entities")
	ib.Cols(columns...)
	ib.Values(
		entity.ID, string(entity.Type), entity.CanonicalName,
		database.JSONB[models.NameVariants]{Data: entity.Names},
		database.JSONB[map[string]any]{Data: entity.Attributes},
		database.JSONB[map[string]models.DateInfo]{Data: entity.Dates},
		entity.Confidence, entity.Verified, entity.MergeStatus, entity.MergedInto,
		database.JSONB[models.Provenance]{Data: entity.Provenance},
		entity.CreatedBy, entity.VerifiedBy, entity.CreatedAt, entity.UpdatedAt, entity.VerifiedAt,
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "type": req.Type}).Error("Failed to create entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create entity")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "type": req.Type}).Info("Created entity")
	return &entity, nil
}

// Get retrieves an entity by ID, tombstones included.
func (r *Repository) Get(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entities")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, models.NewNotFoundError("entity", id).ToHTTPError()
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entity")
	}

	entity := rec.toModel()
	return &entity, nil
}

// GetByIDs retrieves entities by IDs, tombstones included.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entities")
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to get entities by IDs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get entities")
	}
	return toModels(rows), nil
}

// ResolveActive follows the merged_into chain from id to the active entity at
// its end. Errs when the chain exceeds the hop guard, which would indicate a
// cycle or runaway chain.
func (r *Repository) ResolveActive(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ResolveActive")
	defer span.End()

	current := id
	for hop := 0; hop < maxMergeChainHops; hop++ {
		entity, err := r.Get(ctx, current)
		if err != nil {
			return nil, err
		}
		if entity.IsActive() {
			return entity, nil
		}
		if entity.MergedInto == nil || *entity.MergedInto == entity.ID {
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "entity %s is merged but has no valid merge target", entity.ID)
		}
		current = *entity.MergedInto
	}

	return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "merge chain from entity %s exceeds %d hops", id, maxMergeChainHops)
}

// Update overwrites an entity row in place. Used inside merge transactions
// and by undo to restore a snapshot verbatim.
func (r *Repository) Update(ctx context.Context, entity models.Entity) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Update")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("type", string(entity.Type)),
		ub.Assign("canonical_name", entity.CanonicalName),
		ub.Assign("names", database.JSONB[models.NameVariants]{Data: entity.Names}),
		ub.Assign("attributes", database.JSONB[map[string]any]{Data: entity.Attributes}),
		ub.Assign("dates", database.JSONB[map[string]models.DateInfo]{Data: entity.Dates}),
		ub.Assign("confidence", entity.Confidence),
		ub.Assign("verified", entity.Verified),
		ub.Assign("merge_status", entity.MergeStatus),
		ub.Assign("merged_into", entity.MergedInto),
		ub.Assign("provenance", database.JSONB[models.Provenance]{Data: entity.Provenance}),
		ub.Assign("created_by", entity.CreatedBy),
		ub.Assign("verified_by", entity.VerifiedBy),
		ub.Assign("updated_at", entity.UpdatedAt),
		ub.Assign("verified_at", entity.VerifiedAt),
	)
	ub.Where(ub.Equal("id", entity.ID))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": entity.ID}).Error("Failed to update entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update entity")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.NewNotFoundError("entity", entity.ID).ToHTTPError()
	}
	return nil
}

// Tombstone retires the duplicate side of a merge: merge_status=merged and
// merged_into set. The row stays readable for provenance.
func (r *Repository) Tombstone(ctx context.Context, id, mergedInto string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Tombstone")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("entities")
	ub.Set(
		ub.Assign("merge_status", models.MergeStatusMerged),
		ub.Assign("merged_into", mergedInto),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("merge_status", models.MergeStatusActive),
	)

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "merged_into": mergedInto}).Error("Failed to tombstone entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone entity")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.NewNotFoundError("entity", id).ToHTTPError()
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "merged_into": mergedInto}).Info("Tombstoned entity")
	return nil
}

// HardDelete removes an entity row permanently.
func (r *Repository) HardDelete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.HardDelete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("entities")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to hard delete entity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete entity")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.NewNotFoundError("entity", id).ToHTTPError()
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Hard deleted entity")
	return nil
}

// List retrieves active entities with filtering and pagination
func (r *Repository) List(ctx context.Context, entityType *models.EntityType, page, pageSize int) (*models.EntityListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.List")
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
	countSb.From("entities")
	countWhere := []string{countSb.Equal("merge_status", models.MergeStatusActive)}
	if entityType != nil {
		countWhere = append(countWhere, countSb.Equal("type", string(*entityType)))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"type": entityType}).Error("Failed to count entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count entities")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entities")
	where := []string{sb.Equal("merge_status", models.MergeStatusActive)}
	if entityType != nil {
		where = append(where, sb.Equal("type", string(*entityType)))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"type": entityType, "page": page, "page_size": pageSize}).Error("Failed to list entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entities")
	}

	return &models.EntityListResponse{
		Items:      toModels(rows),
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// ListActivePage returns a stable page of active entities ordered by id.
// Used by the sync engine for batch pagination.
func (r *Repository) ListActivePage(ctx context.Context, limit, offset int) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListActivePage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entities")
	sb.Where(sb.Equal("merge_status", models.MergeStatusActive))
	sb.OrderBy("id")
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"limit": limit, "offset": offset}).Error("Failed to page active entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to page entities")
	}
	return toModels(rows), nil
}

// ListActiveByType returns every active entity of the given type. Used as the
// candidate pool for duplicate scans.
func (r *Repository) ListActiveByType(ctx context.Context, entityType models.EntityType) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListActiveByType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entities")
	sb.Where(
		sb.Equal("merge_status", models.MergeStatusActive),
		sb.Equal("type", string(entityType)),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"type": entityType}).Error("Failed to list entities by type")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entities")
	}
	return toModels(rows), nil
}

// ListUpdatedSincePage pages active entities with updated_at >= since.
func (r *Repository) ListUpdatedSincePage(ctx context.Context, since time.Time, limit, offset int) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListUpdatedSincePage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("entities")
	sb.Where(
		sb.Equal("merge_status", models.MergeStatusActive),
		sb.GreaterEqualThan("updated_at", since),
	)
	sb.OrderBy("id")
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"since": since, "limit": limit, "offset": offset}).Error("Failed to page updated entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to page entities")
	}
	return toModels(rows), nil
}

// CountActive counts active entities, optionally restricted to updated_at >= since.
func (r *Repository) CountActive(ctx context.Context, since *time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.CountActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("entities")
	where := []string{sb.Equal("merge_status", models.MergeStatusActive)}
	if since != nil {
		where = append(where, sb.GreaterEqualThan("updated_at", *since))
	}
	sb.Where(where...)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count active entities")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count entities")
	}
	return count, nil
}

// ListActiveIDs returns the ids of every active entity, ordered. Used by the
// consistency checker for set comparison against the graph.
func (r *Repository) ListActiveIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.ListActiveIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("entities")
	sb.Where(sb.Equal("merge_status", models.MergeStatusActive))
	sb.OrderBy("id")

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active entity ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entity ids")
	}
	return ids, nil
}
