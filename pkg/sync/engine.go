// Package sync projects the relational system of record into the graph
// store. All writes are idempotent merge-by-id upserts: re-running any sync
// converges on the same graph state.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/internal/repositories/entity"
	"github.com/khandro-archive/namthar/internal/repositories/relationship"
	"github.com/khandro-archive/namthar/pkg/graph"
	"github.com/khandro-archive/namthar/pkg/graphmap"
	"github.com/khandro-archive/namthar/pkg/models"
)

// Derived-edge id suffixes. Inverse and symmetric edges are materialized
// with their own ids so they can be updated or deleted independently of the
// forward edge.
const (
	InverseSuffix   = "_inverse"
	SymmetricSuffix = "_symmetric"
)

// Config contains sync engine tuning.
type Config struct {
	BatchSize   int           // rows per bulk upsert (default: 500)
	MaxRetries  int           // retries per failed batch (default: 3)
	RetryDelay  time.Duration // base backoff delay, doubled per attempt (default: 500ms)
	Concurrency int           // concurrent batch writes (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   500,
		MaxRetries:  3,
		RetryDelay:  500 * time.Millisecond,
		Concurrency: 4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}

// Options controls a single sync run.
type Options struct {
	ClearExisting       bool `json:"clear_existing,omitempty"`
	CreateBidirectional bool `json:"create_bidirectional,omitempty"`
	ContinueOnError     bool `json:"continue_on_error,omitempty"`
}

// ProgressFunc receives a progress report after each completed batch.
type ProgressFunc func(models.SyncProgress)

// Engine runs full, incremental, and single-record syncs.
type Engine struct {
	logger     ectologger.Logger
	entityRepo *entity.Repository
	relRepo    *relationship.Repository
	nodes      *graph.NodeService
	edges      *graph.EdgeService
	cfg        Config
}

// NewEngine creates a sync engine.
func NewEngine(
	logger ectologger.Logger,
	entityRepo *entity.Repository,
	relRepo *relationship.Repository,
	nodes *graph.NodeService,
	edges *graph.EdgeService,
	cfg Config,
) *Engine {
	return &Engine{
		logger:     logger,
		entityRepo: entityRepo,
		relRepo:    relRepo,
		nodes:      nodes,
		edges:      edges,
		cfg:        cfg.withDefaults(),
	}
}

// FullSync projects every active entity and relationship into the graph,
// optionally clearing it first. onProgress may be nil.
func (e *Engine) FullSync(ctx context.Context, opts Options, onProgress ProgressFunc) (*models.SyncResult, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Engine.FullSync")
	defer span.End()

	return e.run(ctx, nil, opts, onProgress)
}

// IncrementalSync restricts the projection to rows updated at or after
// since.
func (e *Engine) IncrementalSync(ctx context.Context, since time.Time, opts Options, onProgress ProgressFunc) (*models.SyncResult, error) {
	ctx, span := tracing.StartSpan(ctx, "sync.Engine.IncrementalSync")
	defer span.End()

	// Clearing only makes sense for a full projection.
	opts.ClearExisting = false
	return e.run(ctx, &since, opts, onProgress)
}

func (e *Engine) run(ctx context.Context, since *time.Time, opts Options, onProgress ProgressFunc) (*models.SyncResult, error) {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"clear_existing": opts.ClearExisting,
		"bidirectional":  opts.CreateBidirectional,
		"incremental":    since != nil,
	})
	log.Info("Starting sync")

	result := &models.SyncResult{StartedAt: time.Now().UTC()}
	report := func(phase string, processed, total int) {
		if onProgress != nil {
			onProgress(models.SyncProgress{
				Phase:      phase,
				Processed:  processed,
				Total:      total,
				Percentage: percentage(processed, total),
			})
		}
	}

	if opts.ClearExisting {
		report(models.SyncPhaseClearing, 0, 0)
		if err := e.nodes.Clear(ctx); err != nil {
			return nil, err
		}
	}

	if err := e.syncEntities(ctx, since, opts, result, report); err != nil {
		return nil, err
	}
	if err := e.syncRelationships(ctx, since, opts, result, report); err != nil {
		return nil, err
	}

	result.FinishedAt = time.Now().UTC()
	report(models.SyncPhaseDone, result.EntitiesSynced+result.RelationshipsSynced, result.EntitiesSynced+result.RelationshipsSynced)

	log.WithFields(map[string]any{
		"entities":      result.EntitiesSynced,
		"relationships": result.RelationshipsSynced,
		"failures":      len(result.Failures),
		"duration":      result.FinishedAt.Sub(result.StartedAt).String(),
	}).Info("Sync complete")

	return result, nil
}

func (e *Engine) syncEntities(ctx context.Context, since *time.Time, opts Options, result *models.SyncResult, report func(phase string, processed, total int)) error {
	total, err := e.entityRepo.CountActive(ctx, since)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	processed := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Concurrency)

	batchNum := 0
	for offset := 0; ; offset += e.cfg.BatchSize {
		var page []models.Entity
		if since != nil {
			page, err = e.entityRepo.ListUpdatedSincePage(ctx, *since, e.cfg.BatchSize, offset)
		} else {
			page, err = e.entityRepo.ListActivePage(ctx, e.cfg.BatchSize, offset)
		}
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		batch := page
		num := batchNum
		batchNum++

		group.Go(func() error {
			err := e.withRetry(groupCtx, func() error {
				return e.nodes.BatchUpsert(groupCtx, batch)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, models.SyncFailure{
					Phase:    models.SyncPhaseEntities,
					Batch:    num,
					Attempts: e.cfg.MaxRetries + 1,
					Error:    err.Error(),
				})
				if !opts.ContinueOnError {
					return err
				}
				return nil
			}
			result.EntitiesSynced += len(batch)
			processed += len(batch)
			report(models.SyncPhaseEntities, processed, total)
			return nil
		})
	}

	return group.Wait()
}

func (e *Engine) syncRelationships(ctx context.Context, since *time.Time, opts Options, result *models.SyncResult, report func(phase string, processed, total int)) error {
	total, err := e.relRepo.Count(ctx, since)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	processed := 0

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Concurrency)

	batchNum := 0
	for offset := 0; ; offset += e.cfg.BatchSize {
		var page []models.Relationship
		if since != nil {
			page, err = e.relRepo.ListUpdatedSincePage(ctx, *since, e.cfg.BatchSize, offset)
		} else {
			page, err = e.relRepo.ListPage(ctx, e.cfg.BatchSize, offset)
		}
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		batch := page
		num := batchNum
		batchNum++

		group.Go(func() error {
			edges, err := e.buildEdgeBatch(batch, opts.CreateBidirectional)
			if err == nil {
				err = e.withRetry(groupCtx, func() error {
					return e.edges.BatchUpsert(groupCtx, edges)
				})
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, models.SyncFailure{
					Phase:    models.SyncPhaseRelationships,
					Batch:    num,
					Attempts: e.cfg.MaxRetries + 1,
					Error:    err.Error(),
				})
				if !opts.ContinueOnError {
					return err
				}
				return nil
			}
			result.RelationshipsSynced += len(batch)
			processed += len(batch)
			report(models.SyncPhaseRelationships, processed, total)
			return nil
		})
	}

	return group.Wait()
}

// SyncEntity projects one entity. Tombstoned or missing entities converge to
// node deletion.
func (e *Engine) SyncEntity(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "sync.Engine.SyncEntity")
	defer span.End()

	record, err := e.entityRepo.Get(ctx, id)
	if err != nil {
		if models.IsNotFoundError(err) {
			return e.nodes.Delete(ctx, id)
		}
		return err
	}
	if !record.IsActive() {
		return e.nodes.Delete(ctx, id)
	}
	return e.nodes.Upsert(ctx, record)
}

// SyncRelationship projects one relationship, with derived edges when
// createBidirectional is set.
func (e *Engine) SyncRelationship(ctx context.Context, id string, opts Options) error {
	ctx, span := tracing.StartSpan(ctx, "sync.Engine.SyncRelationship")
	defer span.End()

	record, err := e.relRepo.Get(ctx, id)
	if err != nil {
		return err
	}

	edges, err := BuildEdges(record, opts.CreateBidirectional)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if err := e.edges.Upsert(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

// HandleEntityMerge is the graph-side half of an entity merge: every edge
// touching the duplicate node moves to the primary node, skipping edges that
// would duplicate an existing one or loop onto the primary, then the
// duplicate node is deleted. Invoked after the relational merge commits.
func (e *Engine) HandleEntityMerge(ctx context.Context, primaryID, duplicateID string) error {
	ctx, span := tracing.StartSpan(ctx, "sync.Engine.HandleEntityMerge")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id":   primaryID,
		"duplicate_id": duplicateID,
	})

	touching, err := e.edges.ListTouching(ctx, duplicateID)
	if err != nil {
		return err
	}

	transferred := 0
	for _, edge := range touching {
		subjectID := edge.SubjectID
		objectID := edge.ObjectID
		if subjectID == duplicateID {
			subjectID = primaryID
		}
		if objectID == duplicateID {
			objectID = primaryID
		}
		if subjectID == objectID {
			continue // would loop onto the primary
		}

		exists, err := e.edges.Exists(ctx, subjectID, objectID, edge.Type)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		props := edge.Props
		props["subject_id"] = subjectID
		props["object_id"] = objectID
		if err := e.edges.Upsert(ctx, graph.EdgeInput{
			EdgeID:    edge.EdgeID,
			Type:      edge.Type,
			SubjectID: subjectID,
			ObjectID:  objectID,
			Props:     props,
		}); err != nil {
			return err
		}
		transferred++
	}

	if err := e.nodes.Delete(ctx, duplicateID); err != nil {
		return err
	}

	log.WithFields(map[string]any{"edges_transferred": transferred}).Info("Propagated merge to graph")
	return nil
}

func (e *Engine) buildEdgeBatch(batch []models.Relationship, bidirectional bool) ([]graph.EdgeInput, error) {
	edges := make([]graph.EdgeInput, 0, len(batch))
	for i := range batch {
		mapped, err := BuildEdges(&batch[i], bidirectional)
		if err != nil {
			return nil, err
		}
		edges = append(edges, mapped...)
	}
	return edges, nil
}

// BuildEdges maps one relationship to its graph edges: the forward edge,
// plus a suffixed inverse or symmetric edge when requested and defined.
func BuildEdges(rel *models.Relationship, bidirectional bool) ([]graph.EdgeInput, error) {
	props, err := graphmap.RelationshipToEdge(rel)
	if err != nil {
		return nil, err
	}

	edges := []graph.EdgeInput{{
		EdgeID:    rel.ID,
		Type:      graphmap.PredicateToRelType(rel.Predicate),
		SubjectID: rel.SubjectID,
		ObjectID:  rel.ObjectID,
		Props:     props,
	}}

	if !bidirectional {
		return edges, nil
	}
	inverse, ok := graphmap.InversePredicate(rel.Predicate)
	if !ok {
		return edges, nil
	}

	suffix := InverseSuffix
	if graphmap.IsSymmetric(rel.Predicate) {
		suffix = SymmetricSuffix
	}

	derived := make(map[string]any, len(props))
	for k, v := range props {
		derived[k] = v
	}
	derived["id"] = rel.ID + suffix
	derived["subject_id"] = rel.ObjectID
	derived["object_id"] = rel.SubjectID

	edges = append(edges, graph.EdgeInput{
		EdgeID:    rel.ID + suffix,
		Type:      graphmap.PredicateToRelType(inverse),
		SubjectID: rel.ObjectID,
		ObjectID:  rel.SubjectID,
		Props:     derived,
	})
	return edges, nil
}

// IsDerivedEdgeID reports whether an edge id names a derived inverse or
// symmetric edge rather than a relational row.
func IsDerivedEdgeID(id string) bool {
	return len(id) > len(InverseSuffix) && id[len(id)-len(InverseSuffix):] == InverseSuffix ||
		len(id) > len(SymmetricSuffix) && id[len(id)-len(SymmetricSuffix):] == SymmetricSuffix
}

// ForwardEdgeID strips a derived suffix, returning the relational row id.
func ForwardEdgeID(id string) string {
	if len(id) > len(InverseSuffix) && id[len(id)-len(InverseSuffix):] == InverseSuffix {
		return id[:len(id)-len(InverseSuffix)]
	}
	if len(id) > len(SymmetricSuffix) && id[len(id)-len(SymmetricSuffix):] == SymmetricSuffix {
		return id[:len(id)-len(SymmetricSuffix)]
	}
	return id
}

// withRetry runs fn with exponential backoff: delay, 2x delay, 4x delay...
func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.cfg.RetryDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("exhausted %d retries: %w", e.cfg.MaxRetries, err)
}

func percentage(processed, total int) float64 {
	if total <= 0 {
		return 100.0
	}
	return 100.0 * float64(processed) / float64(total)
}
