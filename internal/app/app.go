// Package app собирает сервис книжного магазина: хранилища, движок заказов,
// HTTP API, gRPC health, метрики и фоновые воркеры.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/health"
	"github.com/vladislavdragonenkov/bookshop/internal/metrics"
	"github.com/vladislavdragonenkov/bookshop/internal/seed"
	"github.com/vladislavdragonenkov/bookshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bookshop/internal/service/ledger"
	"github.com/vladislavdragonenkov/bookshop/internal/service/orders"
	"github.com/vladislavdragonenkov/bookshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/bookshop/internal/telemetry"
	"github.com/vladislavdragonenkov/bookshop/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/bookshop/internal/version"
)

// NewLogger настраивает logrus по уровню и формату из конфигурации.
func NewLogger(cfg Config) *log.Logger {
	logger := log.New()
	if strings.EqualFold(cfg.LogFormat, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// service — собранные компоненты до запуска серверов.
type service struct {
	cfg      Config
	logger   *log.Entry
	deps     *Dependencies
	engine   *orders.Engine
	registry *prometheus.Registry
	health   *health.Handler
	api      http.Handler
	outbox   *outbox.Worker
	cleanup  *idempotency.CleanupWorker
	msg      *messaging
}

func newService(ctx context.Context, cfg Config, logger *log.Entry) (*service, error) {
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.SeedOnStart {
		doc, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("load seed: %w", err)
		}
		repos := seed.Repositories{Statuses: deps.Statuses, Catalog: deps.Catalog, Accounts: deps.Accounts, Coupons: deps.Coupons}
		if _, err := seed.Apply(ctx, repos, doc, logger.WithField("component", "seed")); err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("apply seed: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	orderMetrics := metrics.NewOrderMetricsWithRegisterer(registry)

	hooks := ledger.NewHooks(deps.Accounts, deps.Catalog, deps.Ledger, logger.WithField("component", "ledger"),
		ledger.WithMetrics(orderMetrics))

	engine := orders.NewEngine(orders.Dependencies{
		Orders:   deps.Orders,
		Statuses: deps.Statuses,
		Coupons:  deps.Coupons,
		Catalog:  deps.Catalog,
		Accounts: deps.Accounts,
		Hooks:    hooks,
		Timeline: deps.Timeline,
		Outbox:   deps.Outbox,
	}, orders.WithLogger(logger.WithField("component", "orders")), orders.WithMetrics(orderMetrics))

	if err := engine.Bootstrap(ctx); err != nil {
		// Сервис стартует, но отвечает 500 и не проходит readiness.
		logger.WithError(err).Error("order status table is not valid")
	}

	healthHandler := health.NewHandler(version.Get().Version)
	healthHandler.Register("storage", deps.StorageCheck)
	healthHandler.Register("status_table", engine.Bootstrap)
	if deps.IdempotencyCheck != nil {
		healthHandler.RegisterOptional("idempotency_store", deps.IdempotencyCheck)
	}

	msg := initMessaging(ctx, cfg, deps, logger)

	outboxOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(metrics.NewOutboxMetrics(registry)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	var outboxWorker *outbox.Worker
	if msg != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(msg.dlq))
		outboxWorker = outbox.NewWorker(deps.Outbox, msg.publisher, outboxOpts...)
	}

	cleanup := idempotency.NewCleanupWorker(deps.Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(registry)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	api := httpapi.NewRouter(engine, httpapi.Options{
		Auth:           httpapi.NewAuthenticator(cfg.JWTSecret),
		Idempotency:    deps.Idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         logger.WithField("component", "http"),
	})

	return &service{
		cfg:      cfg,
		logger:   logger,
		deps:     deps,
		engine:   engine,
		registry: registry,
		health:   healthHandler,
		api:      api,
		outbox:   outboxWorker,
		cleanup:  cleanup,
		msg:      msg,
	}, nil
}

// Run запускает сервис и блокируется до отмены ctx или ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := NewLogger(cfg).WithField("component", "app")
	logger.WithField("build", version.String()).Info("starting bookshop service")

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "bookshop-service",
		Version:     version.Get().Version,
		SampleRatio: cfg.OTLPSampleRatio,
	})
	if err != nil {
		logger.WithError(err).Warn("tracing is disabled")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.deps.Close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()
	defer svc.msg.close(logger)

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{}, 2)
	startWorker := func(run func(context.Context)) {
		go func() {
			defer func() { workersDone <- struct{}{} }()
			run(workersCtx)
		}()
	}
	workers := 0
	if svc.outbox != nil {
		startWorker(svc.outbox.Run)
		workers++
	}
	startWorker(svc.cleanup.Run)
	workers++

	errCh := make(chan error, 3)
	grpcSrv := newGRPCServer(svc.registry, logger)

	metricsSrv, _, err := serveHTTP("metrics", cfg.MetricsAddr, newMetricsHandler(svc.registry, svc.health), errCh, logger)
	if err == nil {
		_, err = grpcSrv.serve(cfg.GRPCAddr, errCh, logger)
	}
	var apiSrv *http.Server
	if err == nil {
		apiSrv, _, err = serveHTTP("api", cfg.HTTPAddr, svc.api, errCh, logger)
	}
	if err == nil {
		grpcSrv.setServing(true)
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			err = ctx.Err()
		case err = <-errCh:
			logger.WithError(err).Error("server failed")
		}
	}

	shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
	grpcSrv.stop(cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)

	stopWorkers()
	for i := 0; i < workers; i++ {
		<-workersDone
	}
	return err
}
