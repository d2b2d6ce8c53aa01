package merging

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khandro-archive/namthar/internal/platform/database"
	"github.com/khandro-archive/namthar/pkg/models"
)

type memTx struct {
	committed  bool
	rolledBack bool
}

func (t *memTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *memTx) Commit(ctx context.Context) error { t.committed = true; return nil }
func (t *memTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}
func (t *memTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *memTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *memTx) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}
func (t *memTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}
func (t *memTx) Rebind(query string) string { return query }
func (t *memTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

type memDB struct {
	tx *memTx
}

func (d *memDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	d.tx = &memTx{}
	return ctx, d.tx, nil
}

// memStore is a relational stand-in shared by the store fakes. ops records
// every mutation in call order.
type memStore struct {
	entities  map[string]models.Entity
	rels      map[string]models.Relationship
	histories map[string]models.MergeHistory
	pairs     map[string]models.DuplicatePair
	ops       []string

	failHistoryCreate bool
}

func newMemStore() *memStore {
	return &memStore{
		entities:  map[string]models.Entity{},
		rels:      map[string]models.Relationship{},
		histories: map[string]models.MergeHistory{},
		pairs:     map[string]models.DuplicatePair{},
	}
}

type memEntityStore struct{ s *memStore }

func (f *memEntityStore) Get(ctx context.Context, id string) (*models.Entity, error) {
	ent, ok := f.s.entities[id]
	if !ok {
		return nil, models.NewNotFoundError("entity", id)
	}
	return &ent, nil
}

func (f *memEntityStore) Update(ctx context.Context, entity models.Entity) error {
	f.s.entities[entity.ID] = entity
	f.s.ops = append(f.s.ops, "entity.update:"+entity.ID)
	return nil
}

func (f *memEntityStore) Tombstone(ctx context.Context, id, mergedInto string) error {
	ent := f.s.entities[id]
	ent.MergeStatus = models.MergeStatusMerged
	ent.MergedInto = &mergedInto
	f.s.entities[id] = ent
	f.s.ops = append(f.s.ops, "entity.tombstone:"+id)
	return nil
}

func (f *memEntityStore) HardDelete(ctx context.Context, id string) error {
	// Mirrors the schema: pair rows hold foreign keys onto entities.
	for _, pair := range f.s.pairs {
		if pair.EntityID1 == id || pair.EntityID2 == id {
			return fmt.Errorf("foreign key violation: duplicate_pairs references entity %q", id)
		}
	}
	delete(f.s.entities, id)
	f.s.ops = append(f.s.ops, "entity.harddelete:"+id)
	return nil
}

type memRelStore struct{ s *memStore }

func (f *memRelStore) DeleteBetween(ctx context.Context, entityID1, entityID2 string) ([]models.Relationship, error) {
	var removed []models.Relationship
	for id, rel := range f.s.rels {
		between := (rel.SubjectID == entityID1 && rel.ObjectID == entityID2) ||
			(rel.SubjectID == entityID2 && rel.ObjectID == entityID1)
		if between {
			removed = append(removed, rel)
			delete(f.s.rels, id)
		}
	}
	f.s.ops = append(f.s.ops, "rel.deletebetween")
	return removed, nil
}

func (f *memRelStore) RewriteEntityRefs(ctx context.Context, fromID, toID string) ([]string, error) {
	var ids []string
	for id, rel := range f.s.rels {
		touched := false
		if rel.SubjectID == fromID && rel.ObjectID != toID {
			rel.SubjectID = toID
			touched = true
		}
		if rel.ObjectID == fromID && rel.SubjectID != toID {
			rel.ObjectID = toID
			touched = true
		}
		if touched {
			f.s.rels[id] = rel
			ids = append(ids, id)
		}
	}
	f.s.ops = append(f.s.ops, "rel.rewrite")
	return ids, nil
}

func (f *memRelStore) RestoreEntityRefs(ctx context.Context, ids []string, fromID, toID string) error {
	for _, id := range ids {
		rel, ok := f.s.rels[id]
		if !ok {
			continue
		}
		if rel.SubjectID == fromID {
			rel.SubjectID = toID
		}
		if rel.ObjectID == fromID {
			rel.ObjectID = toID
		}
		f.s.rels[id] = rel
	}
	f.s.ops = append(f.s.ops, "rel.restorerefs")
	return nil
}

func (f *memRelStore) Restore(ctx context.Context, rels []models.Relationship) error {
	for _, rel := range rels {
		f.s.rels[rel.ID] = rel
	}
	f.s.ops = append(f.s.ops, "rel.restore")
	return nil
}

type memHistoryStore struct{ s *memStore }

func (f *memHistoryStore) Create(ctx context.Context, history models.MergeHistory) error {
	if f.s.failHistoryCreate {
		return fmt.Errorf("insert failed")
	}
	f.s.histories[history.ID] = history
	f.s.ops = append(f.s.ops, "history.create")
	return nil
}

func (f *memHistoryStore) Get(ctx context.Context, id string) (*models.MergeHistory, error) {
	history, ok := f.s.histories[id]
	if !ok {
		return nil, models.NewNotFoundError("merge history", id)
	}
	return &history, nil
}

func (f *memHistoryStore) MarkRolledBack(ctx context.Context, id string) error {
	history := f.s.histories[id]
	history.RollbackPossible = false
	now := time.Now().UTC()
	history.RolledBackAt = &now
	f.s.histories[id] = history
	f.s.ops = append(f.s.ops, "history.rolledback")
	return nil
}

type memPairStore struct{ s *memStore }

func (f *memPairStore) MarkMergedByEntities(ctx context.Context, primaryID, duplicateID, mergedBy string) error {
	for id, pair := range f.s.pairs {
		if pair.Status != models.PairStatusPending {
			continue
		}
		if pair.EntityID1 == duplicateID || pair.EntityID2 == duplicateID {
			pair.Status = models.PairStatusMerged
			f.s.pairs[id] = pair
		}
	}
	f.s.ops = append(f.s.ops, "pair.markmerged")
	return nil
}

func (f *memPairStore) DeleteByEntity(ctx context.Context, entityID string) error {
	for id, pair := range f.s.pairs {
		if pair.EntityID1 == entityID || pair.EntityID2 == entityID {
			delete(f.s.pairs, id)
		}
	}
	f.s.ops = append(f.s.ops, "pair.deletebyentity:"+entityID)
	return nil
}

func testEngine(s *memStore) (*Engine, *memDB) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := &memDB{}
	engine := NewEngine(logger, db, &memEntityStore{s}, &memRelStore{s}, &memHistoryStore{s}, &memPairStore{s}, nil, nil)
	return engine, db
}

func seedMergePair(s *memStore) {
	primary, duplicate := testPair()
	s.entities[primary.ID] = *primary
	s.entities[duplicate.ID] = *duplicate
	s.entities["milarepa"] = models.Entity{
		ID:            "milarepa",
		Type:          models.EntityTypePerson,
		CanonicalName: "Milarepa",
		MergeStatus:   models.MergeStatusActive,
	}

	// Two rows the rewrite can repoint, and one in each direction between the
	// pair that it cannot.
	s.rels["r-out"] = models.Relationship{ID: "r-out", SubjectID: "duplicate", Predicate: "teacher_of", ObjectID: "milarepa"}
	s.rels["r-in"] = models.Relationship{ID: "r-in", SubjectID: "milarepa", Predicate: "student_of", ObjectID: "duplicate"}
	s.rels["r-between"] = models.Relationship{ID: "r-between", SubjectID: "duplicate", Predicate: "same_lineage_as", ObjectID: "primary"}
	s.rels["r-between-rev"] = models.Relationship{ID: "r-between-rev", SubjectID: "primary", Predicate: "same_lineage_as", ObjectID: "duplicate"}
}

func requireNoRefsTo(t *testing.T, s *memStore, entityID string) {
	t.Helper()
	for id, rel := range s.rels {
		require.NotEqual(t, entityID, rel.SubjectID, "relationship %s still references %s as subject", id, entityID)
		require.NotEqual(t, entityID, rel.ObjectID, "relationship %s still references %s as object", id, entityID)
	}
}

func TestEngineMergeSoftDelete(t *testing.T) {
	s := newMemStore()
	seedMergePair(s)
	engine, db := testEngine(s)

	result, err := engine.Merge(t.Context(), "primary", "duplicate", models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)
	require.True(t, db.tx.committed)

	t.Run("no relationship references the duplicate", func(t *testing.T) {
		requireNoRefsTo(t, s, "duplicate")
	})

	t.Run("rows between the pair are removed not rewritten", func(t *testing.T) {
		assert.NotContains(t, s.rels, "r-between")
		assert.NotContains(t, s.rels, "r-between-rev")
		assert.Equal(t, 2, result.RelationshipsRemoved)
	})

	t.Run("outside rows are repointed at the primary", func(t *testing.T) {
		assert.Equal(t, "primary", s.rels["r-out"].SubjectID)
		assert.Equal(t, "primary", s.rels["r-in"].ObjectID)
		assert.Equal(t, 2, result.RelationshipsRewritten)
	})

	t.Run("duplicate is tombstoned pointing at the primary", func(t *testing.T) {
		dup := s.entities["duplicate"]
		assert.Equal(t, models.MergeStatusMerged, dup.MergeStatus)
		require.NotNil(t, dup.MergedInto)
		assert.Equal(t, "primary", *dup.MergedInto)
	})

	t.Run("history snapshots the removed rows for undo", func(t *testing.T) {
		history := s.histories[result.HistoryID]
		assert.True(t, history.RollbackPossible)
		assert.ElementsMatch(t, []string{"r-out", "r-in"}, history.RewrittenRelationshipIDs)
		removedIDs := make([]string, 0, len(history.RemovedRelationships))
		for _, rel := range history.RemovedRelationships {
			removedIDs = append(removedIDs, rel.ID)
		}
		assert.ElementsMatch(t, []string{"r-between", "r-between-rev"}, removedIDs)
	})
}

func TestEngineMergeHardDelete(t *testing.T) {
	s := newMemStore()
	seedMergePair(s)
	s.pairs["pair-1"] = models.DuplicatePair{ID: "pair-1", EntityID1: "duplicate", EntityID2: "primary", Status: models.PairStatusPending}
	engine, db := testEngine(s)

	hard := false
	result, err := engine.Merge(t.Context(), "primary", "duplicate", models.MergeOptions{
		Strategy:   models.StrategyHighestConfidence,
		SoftDelete: &hard,
	})
	require.NoError(t, err)
	require.True(t, db.tx.committed)

	t.Run("duplicate row and its pair rows are gone", func(t *testing.T) {
		assert.NotContains(t, s.entities, "duplicate")
		assert.Empty(t, s.pairs)
		requireNoRefsTo(t, s, "duplicate")
	})

	t.Run("pair rows are purged before the entity delete", func(t *testing.T) {
		pairIdx, entityIdx := -1, -1
		for i, op := range s.ops {
			switch op {
			case "pair.deletebyentity:duplicate":
				pairIdx = i
			case "entity.harddelete:duplicate":
				entityIdx = i
			}
		}
		require.GreaterOrEqual(t, pairIdx, 0)
		require.GreaterOrEqual(t, entityIdx, 0)
		assert.Less(t, pairIdx, entityIdx)
	})

	t.Run("history survives the delete and blocks undo", func(t *testing.T) {
		history := s.histories[result.HistoryID]
		assert.False(t, history.RollbackPossible)

		_, err := engine.Undo(t.Context(), result.HistoryID, "curator")
		assert.True(t, models.IsRollbackError(err))
	})
}

func TestEngineMergeValidation(t *testing.T) {
	s := newMemStore()
	seedMergePair(s)
	s.entities["drak"] = models.Entity{ID: "drak", Type: models.EntityTypePlace, CanonicalName: "Drak Yerpa", MergeStatus: models.MergeStatusActive}
	engine, _ := testEngine(s)

	t.Run("self merge is rejected", func(t *testing.T) {
		_, err := engine.Merge(t.Context(), "primary", "primary", models.MergeOptions{})
		assert.True(t, models.IsMergeValidationError(err))
	})

	t.Run("type mismatch is rejected", func(t *testing.T) {
		_, err := engine.Merge(t.Context(), "primary", "drak", models.MergeOptions{})
		assert.True(t, models.IsMergeValidationError(err))
	})

	t.Run("tombstoned participant is rejected", func(t *testing.T) {
		ent := s.entities["duplicate"]
		ent.MergeStatus = models.MergeStatusMerged
		s.entities["duplicate"] = ent

		_, err := engine.Merge(t.Context(), "primary", "duplicate", models.MergeOptions{})
		assert.True(t, models.IsMergeValidationError(err))
	})
}

func TestEngineMergeRollsBackOnFailure(t *testing.T) {
	s := newMemStore()
	seedMergePair(s)
	s.failHistoryCreate = true
	engine, db := testEngine(s)

	_, err := engine.Merge(t.Context(), "primary", "duplicate", models.MergeOptions{})
	require.Error(t, err)
	assert.False(t, db.tx.committed)
	assert.True(t, db.tx.rolledBack)
}

func TestEngineUndo(t *testing.T) {
	s := newMemStore()
	seedMergePair(s)
	engine, _ := testEngine(s)

	result, err := engine.Merge(t.Context(), "primary", "duplicate", models.MergeOptions{Strategy: models.StrategyHighestConfidence})
	require.NoError(t, err)

	history, err := engine.Undo(t.Context(), result.HistoryID, "curator")
	require.NoError(t, err)
	require.NotNil(t, history.RolledBackAt)

	t.Run("duplicate is active again", func(t *testing.T) {
		dup := s.entities["duplicate"]
		assert.Equal(t, models.MergeStatusActive, dup.MergeStatus)
		assert.Nil(t, dup.MergedInto)
	})

	t.Run("rewritten rows point back at the duplicate", func(t *testing.T) {
		assert.Equal(t, "duplicate", s.rels["r-out"].SubjectID)
		assert.Equal(t, "duplicate", s.rels["r-in"].ObjectID)
	})

	t.Run("removed rows between the pair are re-inserted", func(t *testing.T) {
		require.Contains(t, s.rels, "r-between")
		require.Contains(t, s.rels, "r-between-rev")
		assert.Equal(t, "duplicate", s.rels["r-between"].SubjectID)
		assert.Equal(t, "primary", s.rels["r-between"].ObjectID)
	})

	t.Run("second undo is rejected", func(t *testing.T) {
		_, err := engine.Undo(t.Context(), result.HistoryID, "curator")
		assert.True(t, models.IsRollbackError(err))
	})
}
