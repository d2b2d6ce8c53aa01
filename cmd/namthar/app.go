package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"

	"github.com/khandro-archive/namthar/config"
	"github.com/khandro-archive/namthar/internal/platform/database"
	"github.com/khandro-archive/namthar/internal/platform/logging"
	duplicatepairrepo "github.com/khandro-archive/namthar/internal/repositories/duplicatepair"
	entityrepo "github.com/khandro-archive/namthar/internal/repositories/entity"
	mergehistoryrepo "github.com/khandro-archive/namthar/internal/repositories/mergehistory"
	relationshiprepo "github.com/khandro-archive/namthar/internal/repositories/relationship"
	"github.com/khandro-archive/namthar/pkg/consistency"
	"github.com/khandro-archive/namthar/pkg/dedupe"
	"github.com/khandro-archive/namthar/pkg/events"
	"github.com/khandro-archive/namthar/pkg/graph"
	"github.com/khandro-archive/namthar/pkg/kafka"
	"github.com/khandro-archive/namthar/pkg/merging"
	gsync "github.com/khandro-archive/namthar/pkg/sync"
)

// app holds every wired component. serve keeps the whole thing alive;
// the one-shot commands build it, run, and tear it down.
type app struct {
	cfg    config.Config
	logger ectologger.Logger
	flush  func()

	db    database.DB
	graph *graph.Client

	entityRepo  *entityrepo.Repository
	relRepo     *relationshiprepo.Repository
	pairRepo    *duplicatepairrepo.Repository
	historyRepo *mergehistoryrepo.Repository

	nodes *graph.NodeService
	edges *graph.EdgeService
	query *graph.QueryService

	producer *kafka.Producer
	emitter  *events.Emitter
	scanner  *dedupe.Service
	merger   *merging.Engine
	syncer   *gsync.Engine
	checker  *consistency.Checker
}

func loadConfig() (config.Config, error) {
	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newAppShell loads config and logging only. serve connects the stores
// through the startup loop; the one-shot commands use newApp.
func newAppShell() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, flush, err := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.PrettyLogs})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, flush: flush}, nil
}

// newApp loads config, connects both stores, runs migrations, and wires
// repositories, engines, and the event emitter.
func newApp(ctx context.Context) (*app, error) {
	a, err := newAppShell()
	if err != nil {
		return nil, err
	}

	if err := a.connectDB(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.connectGraph(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.wire()
	return a, nil
}

func (a *app) connectDB(_ context.Context) error {
	db, sqlxDB, err := database.Connect(a.logger, database.ConnectionConfig{
		Host:            a.cfg.DatabaseHost,
		Port:            a.cfg.DatabasePort,
		Username:        a.cfg.DatabaseUserName,
		Password:        a.cfg.DatabasePassword,
		Name:            a.cfg.DatabaseName,
		SSLMode:         a.cfg.DatabaseSSLMode,
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	a.db = db

	migrations := database.NewMigrationService(a.logger, a.cfg.DatabaseMigrationFolderPath)
	if err := migrations.Migrate(a.cfg.DatabaseName, sqlxDB); err != nil {
		return err
	}
	return nil
}

func (a *app) connectGraph(ctx context.Context) error {
	if !a.cfg.GraphDBEnabled {
		return nil
	}
	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph store unreachable: %w", err)
	}
	a.graph = client
	return nil
}

func (a *app) wire() {
	a.entityRepo = entityrepo.NewRepository(a.db, a.logger)
	a.relRepo = relationshiprepo.NewRepository(a.db, a.logger)
	a.pairRepo = duplicatepairrepo.NewRepository(a.db, a.logger)
	a.historyRepo = mergehistoryrepo.NewRepository(a.db, a.logger)

	if len(a.cfg.KafkaBrokers) > 0 && a.cfg.KafkaOutputTopic != "" {
		a.producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      a.cfg.KafkaBrokers,
			Topic:        a.cfg.KafkaOutputTopic,
			BatchSize:    a.cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: a.cfg.KafkaRequiredAcks,
			Compression:  a.cfg.KafkaCompression,
		}, a.logger)
		a.emitter = events.NewEmitter(a.producer, a.logger)
	}

	var notifier dedupe.Notifier
	if a.emitter != nil {
		notifier = a.emitter
	}
	scorer := dedupe.NewScorer(a.relRepo)
	a.scanner = dedupe.NewService(a.logger, a.entityRepo, a.pairRepo, scorer, notifier, dedupe.Config{
		RecordThreshold:  a.cfg.DedupeRecordThreshold,
		ClusterThreshold: a.cfg.DedupeClusterThreshold,
		Concurrency:      a.cfg.DedupeConcurrency,
	})

	if a.graph != nil {
		a.nodes = graph.NewNodeService(a.graph, a.logger)
		a.edges = graph.NewEdgeService(a.graph, a.logger)
		a.query = graph.NewQueryService(a.graph, a.logger)
		a.syncer = gsync.NewEngine(a.logger, a.entityRepo, a.relRepo, a.nodes, a.edges, gsync.Config{
			BatchSize:   a.cfg.SyncBatchSize,
			MaxRetries:  a.cfg.SyncMaxRetries,
			RetryDelay:  a.cfg.SyncRetryDelay,
			Concurrency: a.cfg.SyncConcurrency,
		})
		a.checker = consistency.NewChecker(a.logger, a.entityRepo, a.relRepo, a.nodes, a.edges, consistency.Config{
			SampleSize:  a.cfg.ConsistencySampleSize,
			MaxReported: a.cfg.ConsistencyMaxReported,
		})
	}

	var propagator merging.GraphPropagator
	if a.syncer != nil {
		propagator = a.syncer
	}
	var publisher merging.Publisher
	if a.emitter != nil {
		publisher = a.emitter
	}
	a.merger = merging.NewEngine(a.logger, a.db, a.entityRepo, a.relRepo, a.historyRepo, a.pairRepo, propagator, publisher)
}

// registerDependencies fills the default DI container the route handlers
// resolve from.
func (a *app) registerDependencies() error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	regs := []error{
		ectoinject.RegisterInstance[ectologger.Logger](container, a.logger),
		ectoinject.RegisterInstance[database.DB](container, a.db),
		ectoinject.RegisterInstance[*entityrepo.Repository](container, a.entityRepo),
		ectoinject.RegisterInstance[*relationshiprepo.Repository](container, a.relRepo),
		ectoinject.RegisterInstance[*duplicatepairrepo.Repository](container, a.pairRepo),
		ectoinject.RegisterInstance[*mergehistoryrepo.Repository](container, a.historyRepo),
		ectoinject.RegisterInstance[*dedupe.Service](container, a.scanner),
		ectoinject.RegisterInstance[*merging.Engine](container, a.merger),
	}
	if a.emitter != nil {
		regs = append(regs, ectoinject.RegisterInstance[*events.Emitter](container, a.emitter))
	}
	if a.graph != nil {
		regs = append(regs,
			ectoinject.RegisterInstance[*graph.NodeService](container, a.nodes),
			ectoinject.RegisterInstance[*graph.EdgeService](container, a.edges),
			ectoinject.RegisterInstance[*graph.QueryService](container, a.query),
			ectoinject.RegisterInstance[*gsync.Engine](container, a.syncer),
			ectoinject.RegisterInstance[*consistency.Checker](container, a.checker),
		)
	}
	for _, err := range regs {
		if err != nil {
			return fmt.Errorf("failed to register dependency: %w", err)
		}
	}
	return nil
}

// Close tears down in reverse dependency order.
func (a *app) Close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close kafka producer")
		}
	}
	if a.graph != nil {
		if err := a.graph.Close(ctx); err != nil {
			a.logger.WithError(err).Warn("Failed to close graph client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close database")
		}
	}
	if a.flush != nil {
		a.flush()
	}
}
