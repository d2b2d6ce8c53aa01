package dedupe

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/internal/repositories/duplicatepair"
	"github.com/khandro-archive/namthar/internal/repositories/entity"
	"github.com/khandro-archive/namthar/pkg/models"
)

// Config contains configuration for duplicate scanning.
type Config struct {
	RecordThreshold  float64 // minimum score to persist a pair for review (default: 0.70)
	ClusterThreshold float64 // minimum score to join a cluster (default: 0.70)
	Concurrency      int     // concurrent type partitions (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecordThreshold:  0.70,
		ClusterThreshold: DefaultClusterThreshold,
		Concurrency:      4,
	}
}

// Notifier publishes newly recorded duplicate candidates. Optional.
type Notifier interface {
	NotifyDuplicate(ctx context.Context, pair models.DuplicatePair) error
}

// ScanResult summarizes one duplicate scan.
type ScanResult struct {
	EntitiesScanned int                    `json:"entities_scanned"`
	PairsScored     int                    `json:"pairs_scored"`
	PairsRecorded   int                    `json:"pairs_recorded"`
	Clusters        []models.EntityCluster `json:"clusters"`
}

// Service runs duplicate scans over the active entity pool and persists
// candidates for review.
type Service struct {
	logger     ectologger.Logger
	entityRepo *entity.Repository
	pairRepo   *duplicatepair.Repository
	scorer     *Scorer
	clusters   *ClusterBuilder
	notifier   Notifier
	cfg        Config
}

// NewService creates a scan service. notifier may be nil.
func NewService(
	logger ectologger.Logger,
	entityRepo *entity.Repository,
	pairRepo *duplicatepair.Repository,
	scorer *Scorer,
	notifier Notifier,
	cfg Config,
) *Service {
	if cfg.RecordThreshold <= 0 {
		cfg.RecordThreshold = 0.70
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Service{
		logger:     logger,
		entityRepo: entityRepo,
		pairRepo:   pairRepo,
		scorer:     scorer,
		clusters:   NewClusterBuilder(cfg.ClusterThreshold),
		notifier:   notifier,
		cfg:        cfg,
	}
}

// ScanAll scores every same-type pair of active entities. Types are
// independent pools and scan concurrently.
func (s *Service) ScanAll(ctx context.Context) (*ScanResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.ScanAll")
	defer span.End()

	log := s.logger.WithContext(ctx)
	log.Info("Starting duplicate scan")

	var mu sync.Mutex
	total := &ScanResult{}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Concurrency)

	for entityType := range models.ValidEntityTypes {
		group.Go(func() error {
			partial, err := s.scanType(groupCtx, entityType)
			if err != nil {
				return err
			}
			mu.Lock()
			total.EntitiesScanned += partial.EntitiesScanned
			total.PairsScored += partial.PairsScored
			total.PairsRecorded += partial.PairsRecorded
			total.Clusters = append(total.Clusters, partial.Clusters...)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		log.WithError(err).Error("Duplicate scan failed")
		return nil, err
	}

	log.WithFields(map[string]any{
		"entities_scanned": total.EntitiesScanned,
		"pairs_scored":     total.PairsScored,
		"pairs_recorded":   total.PairsRecorded,
		"clusters":         len(total.Clusters),
	}).Info("Duplicate scan complete")

	return total, nil
}

// scanType scores every pair within one entity type.
func (s *Service) scanType(ctx context.Context, entityType models.EntityType) (*ScanResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.scanType")
	defer span.End()

	pool, err := s.entityRepo.ListActiveByType(ctx, entityType)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{EntitiesScanned: len(pool)}
	if len(pool) < 2 {
		return result, nil
	}

	entities := make(map[string]*models.Entity, len(pool))
	var scores []models.DuplicateScore

	for i := range pool {
		entities[pool[i].ID] = &pool[i]
		for j := i + 1; j < len(pool); j++ {
			score, err := s.scorer.Score(ctx, &pool[i], &pool[j])
			if err != nil {
				return nil, err
			}
			result.PairsScored++

			if score.Overall >= s.cfg.RecordThreshold {
				if err := s.recordPair(ctx, *score); err != nil {
					return nil, err
				}
				result.PairsRecorded++
				scores = append(scores, *score)
			}
		}
	}

	result.Clusters = s.clusters.Build(scores, entities)
	return result, nil
}

// ScanEntity scores one entity against the rest of its type pool. Used on
// intake so new records surface duplicates immediately.
func (s *Service) ScanEntity(ctx context.Context, id string) (*ScanResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.ScanEntity")
	defer span.End()

	target, err := s.entityRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !target.IsActive() {
		return nil, models.NewValidationError("entity_id", "cannot scan a merged entity for duplicates")
	}

	pool, err := s.entityRepo.ListActiveByType(ctx, target.Type)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{EntitiesScanned: len(pool)}
	for i := range pool {
		if pool[i].ID == target.ID {
			continue
		}
		score, err := s.scorer.Score(ctx, target, &pool[i])
		if err != nil {
			return nil, err
		}
		result.PairsScored++

		if score.Overall >= s.cfg.RecordThreshold {
			if err := s.recordPair(ctx, *score); err != nil {
				return nil, err
			}
			result.PairsRecorded++
		}
	}
	return result, nil
}

// Compare scores an ad-hoc pair without recording it.
func (s *Service) Compare(ctx context.Context, id1, id2 string) (*models.DuplicateScore, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Service.Compare")
	defer span.End()

	a, err := s.entityRepo.Get(ctx, id1)
	if err != nil {
		return nil, err
	}
	b, err := s.entityRepo.Get(ctx, id2)
	if err != nil {
		return nil, err
	}
	return s.scorer.Score(ctx, a, b)
}

func (s *Service) recordPair(ctx context.Context, score models.DuplicateScore) error {
	pair, err := s.pairRepo.Upsert(ctx, score)
	if err != nil {
		return err
	}

	if s.notifier != nil && pair.Status == models.PairStatusPending {
		if err := s.notifier.NotifyDuplicate(ctx, *pair); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"pair_id": pair.ID,
			}).Warn("Failed to publish duplicate candidate")
		}
	}
	return nil
}
