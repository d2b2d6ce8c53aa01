// Package consistency audits drift between the relational system of record
// and the graph projection. The checker is read-only: it reports, a sync run
// repairs.
package consistency

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/internal/repositories/entity"
	"github.com/khandro-archive/namthar/internal/repositories/relationship"
	"github.com/khandro-archive/namthar/pkg/graph"
	"github.com/khandro-archive/namthar/pkg/models"
	gsync "github.com/khandro-archive/namthar/pkg/sync"
)

// confidenceTolerance absorbs float round-tripping through string props.
const confidenceTolerance = 0.01

// Config contains checker tuning.
type Config struct {
	SampleSize  int // entities sampled for property comparison (default: 100)
	MaxReported int // cap per missing-id list (default: 50)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{SampleSize: 100, MaxReported: 50}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleSize <= 0 {
		c.SampleSize = d.SampleSize
	}
	if c.MaxReported <= 0 {
		c.MaxReported = d.MaxReported
	}
	return c
}

// Checker compares the two stores.
type Checker struct {
	logger     ectologger.Logger
	entityRepo *entity.Repository
	relRepo    *relationship.Repository
	nodes      *graph.NodeService
	edges      *graph.EdgeService
	cfg        Config
}

// NewChecker creates a consistency checker.
func NewChecker(
	logger ectologger.Logger,
	entityRepo *entity.Repository,
	relRepo *relationship.Repository,
	nodes *graph.NodeService,
	edges *graph.EdgeService,
	cfg Config,
) *Checker {
	return &Checker{
		logger:     logger,
		entityRepo: entityRepo,
		relRepo:    relRepo,
		nodes:      nodes,
		edges:      edges,
		cfg:        cfg.withDefaults(),
	}
}

// Check runs the full audit and returns the report.
func (c *Checker) Check(ctx context.Context) (*models.ConsistencyReport, error) {
	ctx, span := tracing.StartSpan(ctx, "consistency.Checker.Check")
	defer span.End()

	report := &models.ConsistencyReport{CheckedAt: time.Now().UTC()}

	dbEntityIDs, err := c.entityRepo.ListActiveIDs(ctx)
	if err != nil {
		return nil, err
	}
	graphEntityIDs, err := c.nodes.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	dbRelIDs, err := c.relRepo.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	graphEdgeIDs, err := c.edges.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	// Derived inverse and symmetric edges have no relational row; compare
	// forward edges only.
	forwardEdgeIDs := make([]string, 0, len(graphEdgeIDs))
	for _, id := range graphEdgeIDs {
		if !gsync.IsDerivedEdgeID(id) {
			forwardEdgeIDs = append(forwardEdgeIDs, id)
		}
	}

	report.DatabaseEntityCount = len(dbEntityIDs)
	report.GraphEntityCount = len(graphEntityIDs)
	report.DatabaseRelationshipCount = len(dbRelIDs)
	report.GraphRelationshipCount = len(forwardEdgeIDs)

	report.EntitiesMissingInGraph = c.capped(diffIDs(dbEntityIDs, graphEntityIDs), report)
	report.EntitiesMissingInDatabase = c.capped(diffIDs(graphEntityIDs, dbEntityIDs), report)
	report.RelationshipsMissingInGraph = c.capped(diffIDs(dbRelIDs, forwardEdgeIDs), report)
	report.RelationshipsMissingInDatabase = c.capped(diffIDs(forwardEdgeIDs, dbRelIDs), report)

	if err := c.compareProperties(ctx, dbEntityIDs, report); err != nil {
		return nil, err
	}
	if err := c.findOrphanedEdges(ctx, graphEdgeIDs, dbEntityIDs, report); err != nil {
		return nil, err
	}

	report.Consistent = len(report.EntitiesMissingInGraph) == 0 &&
		len(report.EntitiesMissingInDatabase) == 0 &&
		len(report.RelationshipsMissingInGraph) == 0 &&
		len(report.RelationshipsMissingInDatabase) == 0 &&
		len(report.PropertyMismatches) == 0 &&
		len(report.OrphanedEdges) == 0
	report.Summary = summarize(report)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"consistent": report.Consistent,
		"summary":    report.Summary,
	}).Info("Consistency check complete")

	return report, nil
}

// compareProperties samples up to SampleSize entities present in both stores
// and diffs canonical_name, confidence, and verified.
func (c *Checker) compareProperties(ctx context.Context, dbEntityIDs []string, report *models.ConsistencyReport) error {
	sample := dbEntityIDs
	if len(sample) > c.cfg.SampleSize {
		// Deterministic sample: every nth id from the sorted list.
		step := len(dbEntityIDs) / c.cfg.SampleSize
		sample = make([]string, 0, c.cfg.SampleSize)
		for i := 0; i < len(dbEntityIDs) && len(sample) < c.cfg.SampleSize; i += step {
			sample = append(sample, dbEntityIDs[i])
		}
	}
	if len(sample) == 0 {
		return nil
	}

	rows, err := c.entityRepo.GetByIDs(ctx, sample)
	if err != nil {
		return err
	}
	nodes, err := c.nodes.GetByIDs(ctx, sample)
	if err != nil {
		return err
	}

	for i := range rows {
		row := &rows[i]
		node, ok := nodes[row.ID]
		if !ok {
			continue // already reported as missing
		}
		report.PropertyMismatches = append(report.PropertyMismatches, compareEntityProps(row, node.Props)...)
	}
	return nil
}

func compareEntityProps(row *models.Entity, props map[string]any) []models.PropertyMismatch {
	var mismatches []models.PropertyMismatch

	if name, _ := props["canonical_name"].(string); name != row.CanonicalName {
		mismatches = append(mismatches, models.PropertyMismatch{
			EntityID:      row.ID,
			Property:      "canonical_name",
			DatabaseValue: row.CanonicalName,
			GraphValue:    props["canonical_name"],
		})
	}

	graphConfidence, ok := parseFloatProp(props["confidence"])
	if !ok || math.Abs(graphConfidence-row.Confidence) > confidenceTolerance {
		mismatches = append(mismatches, models.PropertyMismatch{
			EntityID:      row.ID,
			Property:      "confidence",
			DatabaseValue: row.Confidence,
			GraphValue:    props["confidence"],
		})
	}

	if boolProp(props["verified"]) != row.Verified {
		mismatches = append(mismatches, models.PropertyMismatch{
			EntityID:      row.ID,
			Property:      "verified",
			DatabaseValue: row.Verified,
			GraphValue:    props["verified"],
		})
	}

	return mismatches
}

// findOrphanedEdges flags edges whose endpoint props name an id absent from
// the active entity set.
func (c *Checker) findOrphanedEdges(ctx context.Context, graphEdgeIDs, dbEntityIDs []string, report *models.ConsistencyReport) error {
	active := make(map[string]struct{}, len(dbEntityIDs))
	for _, id := range dbEntityIDs {
		active[id] = struct{}{}
	}

	edges, err := c.edges.GetByIDs(ctx, graphEdgeIDs)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		edge := edges[id]
		if _, ok := active[edge.SubjectID]; !ok {
			report.OrphanedEdges = append(report.OrphanedEdges, models.OrphanedEdge{
				RelationshipID: gsync.ForwardEdgeID(edge.EdgeID),
				MissingNodeID:  edge.SubjectID,
			})
		}
		if _, ok := active[edge.ObjectID]; !ok {
			report.OrphanedEdges = append(report.OrphanedEdges, models.OrphanedEdge{
				RelationshipID: gsync.ForwardEdgeID(edge.EdgeID),
				MissingNodeID:  edge.ObjectID,
			})
		}
	}
	return nil
}

func (c *Checker) capped(ids []string, report *models.ConsistencyReport) []string {
	if len(ids) > c.cfg.MaxReported {
		report.Truncated = true
		return ids[:c.cfg.MaxReported]
	}
	return ids
}

// diffIDs returns the sorted ids in a that are absent from b.
func diffIDs(a, b []string) []string {
	present := make(map[string]struct{}, len(b))
	for _, id := range b {
		present[id] = struct{}{}
	}
	var missing []string
	for _, id := range a {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}

func summarize(r *models.ConsistencyReport) string {
	if r.Consistent {
		return fmt.Sprintf("consistent: %d entities, %d relationships", r.DatabaseEntityCount, r.DatabaseRelationshipCount)
	}
	s := fmt.Sprintf(
		"drift detected: entities db=%d graph=%d (missing in graph: %d, missing in db: %d); relationships db=%d graph=%d (missing in graph: %d, missing in db: %d); property mismatches: %d; orphaned edges: %d",
		r.DatabaseEntityCount, r.GraphEntityCount,
		len(r.EntitiesMissingInGraph), len(r.EntitiesMissingInDatabase),
		r.DatabaseRelationshipCount, r.GraphRelationshipCount,
		len(r.RelationshipsMissingInGraph), len(r.RelationshipsMissingInDatabase),
		len(r.PropertyMismatches), len(r.OrphanedEdges),
	)
	if r.Truncated {
		s += " (lists truncated)"
	}
	return s
}

func parseFloatProp(v any) (float64, bool) {
	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func boolProp(v any) bool {
	switch x := v.(type) {
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	case bool:
		return x
	}
	return false
}
