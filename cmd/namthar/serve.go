package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/khandro-archive/namthar/internal/platform/middleware"
	"github.com/khandro-archive/namthar/internal/platform/startup"
	"github.com/khandro-archive/namthar/internal/platform/tracing"
	"github.com/khandro-archive/namthar/pkg/kafka"
	"github.com/khandro-archive/namthar/pkg/processor"
	consistencyroute "github.com/khandro-archive/namthar/pkg/routes/consistency"
	duplicateroute "github.com/khandro-archive/namthar/pkg/routes/duplicate"
	entityroute "github.com/khandro-archive/namthar/pkg/routes/entity"
	graphroute "github.com/khandro-archive/namthar/pkg/routes/graph"
	"github.com/khandro-archive/namthar/pkg/routes/health"
	mergeroute "github.com/khandro-archive/namthar/pkg/routes/merge"
	syncroute "github.com/khandro-archive/namthar/pkg/routes/sync"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the extraction intake consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newAppShell()
	if err != nil {
		return err
	}
	defer a.flush()
	log := a.logger

	if a.cfg.TracingEnabled {
		shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
			ServiceName: a.cfg.AppName,
			Endpoint:    a.cfg.OtlpEndpoint,
			Insecure:    a.cfg.OtlpInsecure,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	var (
		server        *echo.Echo
		healthChecker *health.Checker
		consumer      *kafka.Consumer
	)

	boot := startup.New(log, a.cfg.StartupMaxAttempts)

	boot.AddDependency(startup.FuncDependency{
		Name:    "postgres",
		StartFn: a.connectDB,
		StopFn: func(context.Context) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	})

	boot.AddDependency(startup.FuncDependency{
		Name:    "graph",
		StartFn: a.connectGraph,
		StopFn: func(ctx context.Context) error {
			if a.graph != nil {
				return a.graph.Close(ctx)
			}
			return nil
		},
	})

	boot.AddDependency(startup.FuncDependency{
		Name:     "services",
		Requires: []string{"postgres", "graph"},
		StartFn: func(context.Context) error {
			a.wire()
			return a.registerDependencies()
		},
		StopFn: func(context.Context) error {
			if a.producer != nil {
				return a.producer.Close()
			}
			return nil
		},
	})

	boot.AddDependency(startup.FuncDependency{
		Name:     "http",
		Requires: []string{"services"},
		StartFn: func(context.Context) error {
			server, healthChecker = buildServer(a)
			go func() {
				if err := server.Start(fmt.Sprintf(":%d", a.cfg.Port)); err != nil && err != http.ErrServerClosed {
					log.WithError(err).Error("HTTP server stopped unexpectedly")
					stop()
				}
			}()
			return nil
		},
		StopFn: func(ctx context.Context) error {
			if server != nil {
				return server.Shutdown(ctx)
			}
			return nil
		},
	})

	if a.cfg.KafkaConsumerEnabled && len(a.cfg.KafkaBrokers) > 0 {
		boot.AddDependency(startup.FuncDependency{
			Name:     "intake-consumer",
			Requires: []string{"services"},
			StartFn: func(ctx context.Context) error {
				scanner := a.scanner
				if !a.cfg.DedupeScanOnIntake {
					scanner = nil
				}
				proc := processor.NewProcessor(log, a.entityRepo, a.relRepo, scanner)
				consumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       a.cfg.KafkaBrokers,
					Topic:         a.cfg.KafkaInputTopic,
					ConsumerGroup: a.cfg.KafkaConsumerGroup,
				}, log, proc.HandleMessage)
				return consumer.Start(ctx)
			},
			StopFn: func(context.Context) error {
				if consumer != nil {
					return consumer.Stop()
				}
				return nil
			},
		})
	}

	if err := boot.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = boot.Stop(stopCtx)
		return err
	}
	healthChecker.SetReady(true)
	log.WithFields(map[string]any{"port": a.cfg.Port, "version": version}).Infof("%s listening on :%d", a.cfg.AppName, a.cfg.Port)

	<-ctx.Done()
	log.Info("Shutting down")
	healthChecker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return boot.Stop(shutdownCtx)
}

func buildServer(a *app) (*echo.Echo, *health.Checker) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = a.cfg.MaxHeaderBytes

	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	e.HTTPErrorHandler = middleware.Error(a.logger)

	api := e.Group("/api/v1")
	entityroute.Register(api.Group("/entities"))
	duplicateroute.Register(api.Group("/duplicates"))
	mergeroute.Register(api.Group("/merge"))
	syncroute.Register(api.Group("/sync"))
	consistencyroute.Register(api.Group("/consistency"))
	graphroute.Register(api.Group("/graph"))

	checker := health.NewChecker(a.db, a.graph, version)
	checker.RegisterRoutes(e)

	return e, checker
}
