package relationship

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/khandro-archive/namthar/internal/platform/database"
	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/pkg/models"
)

var columns = []string{
	"id", "subject_id", "predicate", "object_id", "properties",
	"confidence", "verified", "provenance", "created_at", "updated_at",
}

// Repository handles relationship persistence in the system of record
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relationship repository
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
	ID         string                            `db:"id"`
	SubjectID  string                            `db:"subject_id"`
	Predicate  string                            `db:"predicate"`
	ObjectID   string                            `db:"object_id"`
	Properties database.JSONB[map[string]any]    `db:"properties"`
	Confidence float64                           `db:"confidence"`
	Verified   bool                              `db:"verified"`
	Provenance database.JSONB[models.Provenance] `db:"provenance"`
	CreatedAt  time.Time                         `db:"created_at"`
	UpdatedAt  time.Time                         `db:"updated_at"`
}

func (rel *row) toModel() models.Relationship {
	return models.Relationship{
		ID:         rel.ID,
		SubjectID:  rel.SubjectID,
		Predicate:  rel.Predicate,
		ObjectID:   rel.ObjectID,
		Properties: rel.Properties.Data,
		Confidence: rel.Confidence,
		Verified:   rel.Verified,
		Provenance: rel.Provenance.Data,
		CreatedAt:  rel.CreatedAt,
		UpdatedAt:  rel.UpdatedAt,
	}
}

func toModels(rows []row) []models.Relationship {
	rels := make([]models.Relationship, 0, len(rows))
	for i := range rows {
		rels = append(rels, rows[i].toModel())
	}
	return rels
}

// Create inserts a new relationship. Self-referential edges are rejected.
func (r *Repository) Create(ctx context.Context, req models.CreateRelationshipRequest) (*models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Create")
	defer span.End()

	if req.SubjectID == req.ObjectID {
		return nil, models.NewValidationError("object_id", "relationship cannot reference the same entity on both ends").ToHTTPError()
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	rel := models.Relationship{
		ID:         id,
		SubjectID:  req.SubjectID,
		Predicate:  req.Predicate,
		ObjectID:   req.ObjectID,
		Properties: req.Properties,
		Confidence: req.Confidence,
		Provenance: req.Provenance,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("relationships")
	ib.Cols(columns...)
	ib.Values(
		rel.ID, rel.SubjectID, rel.Predicate, rel.ObjectID,
		database.JSONB[map[string]any]{Data: rel.Properties},
		rel.Confidence, rel.Verified,
		database.JSONB[models.Provenance]{Data: rel.Provenance},
		rel.CreatedAt, rel.UpdatedAt,
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id, "predicate": req.Predicate}).Error("Failed to create relationship")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create relationship")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id, "predicate": req.Predicate}).Info("Created relationship")
	return &rel, nil
}

// Get retrieves a relationship by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("relationships")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rec row
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, models.NewNotFoundError("relationship", id).ToHTTPError()
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get relationship")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get relationship")
	}

	rel := rec.toModel()
	return &rel, nil
}

// ListByEntity returns every relationship where the entity appears as
// subject or object.
func (r *Repository) ListByEntity(ctx context.Context, entityID string) ([]models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListByEntity")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("relationships")
	sb.Where(sb.Or(
		sb.Equal("subject_id", entityID),
		sb.Equal("object_id", entityID),
	))
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list relationships by entity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list relationships")
	}
	return toModels(rows), nil
}

// RewriteEntityRefs points every relationship that references fromID at toID
// instead and returns the ids of the rewritten rows. Rows whose other
// endpoint is toID are skipped: rewriting them would produce a self-loop.
func (r *Repository) RewriteEntityRefs(ctx context.Context, fromID, toID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.RewriteEntityRefs")
	defer span.End()

	now := time.Now().UTC()
	query := `
		UPDATE relationships
		SET subject_id = CASE WHEN subject_id = $1 THEN $2 ELSE subject_id END,
		    object_id  = CASE WHEN object_id  = $1 THEN $2 ELSE object_id  END,
		    updated_at = $3
		WHERE (subject_id = $1 AND object_id <> $2)
		   OR (object_id = $1 AND subject_id <> $2)
		RETURNING id
	`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, fromID, toID, now); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_id": fromID, "to_id": toID}).Error("Failed to rewrite relationship references")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to rewrite relationships")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"from_id": fromID, "to_id": toID, "count": len(ids)}).Info("Rewrote relationship references")
	return ids, nil
}

// DeleteBetween removes every relationship that runs directly between the two
// entities, in either direction, and returns the deleted rows. Merge uses it
// for rows a rewrite would collapse into self-loops; the snapshots let undo
// put them back.
func (r *Repository) DeleteBetween(ctx context.Context, entityID1, entityID2 string) ([]models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.DeleteBetween")
	defer span.End()

	query := `
		DELETE FROM relationships
		WHERE (subject_id = $1 AND object_id = $2)
		   OR (subject_id = $2 AND object_id = $1)
		RETURNING id, subject_id, predicate, object_id, properties,
		          confidence, verified, provenance, created_at, updated_at
	`

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, entityID1, entityID2); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id_1": entityID1, "entity_id_2": entityID2}).Error("Failed to delete relationships between entities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete relationships")
	}

	if len(rows) > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"entity_id_1": entityID1, "entity_id_2": entityID2, "count": len(rows)}).Info("Removed relationships between entities")
	}
	return toModels(rows), nil
}

// Restore re-inserts previously deleted rows exactly as snapshotted. Used by
// merge undo.
func (r *Repository) Restore(ctx context.Context, rels []models.Relationship) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Restore")
	defer span.End()

	if len(rels) == 0 {
		return nil
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("relationships")
	ib.Cols(columns...)
	for _, rel := range rels {
		ib.Values(
			rel.ID, rel.SubjectID, rel.Predicate, rel.ObjectID,
			database.JSONB[map[string]any]{Data: rel.Properties},
			rel.Confidence, rel.Verified,
			database.JSONB[models.Provenance]{Data: rel.Provenance},
			rel.CreatedAt, rel.UpdatedAt,
		)
	}

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(rels)}).Error("Failed to restore relationships")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to restore relationships")
	}
	return nil
}

// RestoreEntityRefs is the inverse of RewriteEntityRefs for a known id set:
// any endpoint on those rows currently equal to fromID is pointed back at
// toID. Used by merge undo.
func (r *Repository) RestoreEntityRefs(ctx context.Context, ids []string, fromID, toID string) error {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.RestoreEntityRefs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	query, args, err := sqlx.In(`
		UPDATE relationships
		SET subject_id = CASE WHEN subject_id = ? THEN ? ELSE subject_id END,
		    object_id  = CASE WHEN object_id  = ? THEN ? ELSE object_id  END,
		    updated_at = ?
		WHERE id IN (?)
	`, fromID, toID, fromID, toID, now, ids)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to build restore query")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to restore relationships")
	}
	query = r.db.Rebind(query)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"from_id": fromID, "to_id": toID, "count": len(ids)}).Error("Failed to restore relationship references")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to restore relationships")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"from_id": fromID, "to_id": toID, "count": len(ids)}).Info("Restored relationship references")
	return nil
}

// ListPage returns a stable page of relationships ordered by id.
func (r *Repository) ListPage(ctx context.Context, limit, offset int) ([]models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListPage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("relationships")
	sb.OrderBy("id")
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"limit": limit, "offset": offset}).Error("Failed to page relationships")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to page relationships")
	}
	return toModels(rows), nil
}

// ListUpdatedSincePage pages relationships with updated_at >= since.
func (r *Repository) ListUpdatedSincePage(ctx context.Context, since time.Time, limit, offset int) ([]models.Relationship, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListUpdatedSincePage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("relationships")
	sb.Where(sb.GreaterEqualThan("updated_at", since))
	sb.OrderBy("id")
	sb.Limit(limit).Offset(offset)

	query, args := sb.Build()
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"since": since}).Error("Failed to page updated relationships")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to page relationships")
	}
	return toModels(rows), nil
}

// Count counts relationships, optionally restricted to updated_at >= since.
func (r *Repository) Count(ctx context.Context, since *time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.Count")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("relationships")
	if since != nil {
		sb.Where(sb.GreaterEqualThan("updated_at", *since))
	}

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count relationships")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count relationships")
	}
	return count, nil
}

// ListConnectionIDs returns the distinct entities connected to entityID in
// either direction. Feeds the shared-connection duplicate signal.
func (r *Repository) ListConnectionIDs(ctx context.Context, entityID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListConnectionIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("subject_id", "object_id")
	sb.From("relationships")
	sb.Where(sb.Or(sb.Equal("subject_id", entityID), sb.Equal("object_id", entityID)))

	query, args := sb.Build()
	var rows []struct {
		SubjectID string `db:"subject_id"`
		ObjectID  string `db:"object_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list entity connections")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list entity connections")
	}

	seen := make(map[string]bool, len(rows))
	ids := make([]string, 0, len(rows))
	for _, rel := range rows {
		counterpart := rel.SubjectID
		if counterpart == entityID {
			counterpart = rel.ObjectID
		}
		if counterpart == entityID || seen[counterpart] {
			continue
		}
		seen[counterpart] = true
		ids = append(ids, counterpart)
	}
	return ids, nil
}

// ListIDs returns every relationship id, ordered. Used by the consistency
// checker for set comparison against the graph.
func (r *Repository) ListIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.ListIDs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("relationships")
	sb.OrderBy("id")

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list relationship ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list relationship ids")
	}
	return ids, nil
}
