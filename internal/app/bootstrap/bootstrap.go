package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	votingledger "ballotbox/contexts/governance/voting-ledger"
	ledgermetrics "ballotbox/contexts/governance/voting-ledger/adapters/metrics"
	postgresadapter "ballotbox/contexts/governance/voting-ledger/adapters/postgres"
	"ballotbox/internal/platform/config"
	"ballotbox/internal/platform/db"
	"ballotbox/internal/platform/httpserver"
	"ballotbox/internal/platform/messaging"
	"ballotbox/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

// Runtime is the wiring shared by every process.
type Runtime struct {
	Config   config.Config
	Module   votingledger.Module
	Database *db.Database
	Bus      *messaging.Bus
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

type APIApp struct {
	runtime *Runtime
	server  *httpserver.Server
	metrics *metrics.Server
}

type WorkerApp struct {
	runtime *Runtime
	metrics *metrics.Server
}

// OperatorApp backs ballotctl. It carries no background loops.
type OperatorApp struct {
	*Runtime
}

func BuildAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) (*APIApp, error) {
	runtime, err := NewRuntime(ctx, cfg, processLogger(logger, "api"))
	if err != nil {
		return nil, err
	}
	return &APIApp{
		runtime: runtime,
		server:  httpserver.New(runtime.Module, runtime.Logger, normalizeAddr(cfg.HTTPPort, ":8080")),
		metrics: metrics.NewServer(normalizeAddr(cfg.MetricsPort, ":9090"), runtime.Registry, runtime.Logger),
	}, nil
}

func BuildWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*WorkerApp, error) {
	runtime, err := NewRuntime(ctx, cfg, processLogger(logger, "worker"))
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		runtime: runtime,
		metrics: metrics.NewServer(normalizeAddr(cfg.MetricsPort, ":9090"), runtime.Registry, runtime.Logger),
	}, nil
}

func BuildOperator(ctx context.Context, cfg config.Config, logger *slog.Logger) (*OperatorApp, error) {
	runtime, err := NewRuntime(ctx, cfg, processLogger(logger, "ballotctl"))
	if err != nil {
		return nil, err
	}
	return &OperatorApp{Runtime: runtime}, nil
}

// NewRuntime connects storage, migrates it and wires the voting ledger
// module onto the gorm repository and the in-process bus.
func NewRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", cfg.ServiceName)
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, errors.New("BALLOTBOX_DATABASE_DSN is required")
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	repo := postgresadapter.NewRepository(database.DB, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	bus := messaging.NewBus(logger)
	registry := metrics.NewRegistry()
	module := votingledger.NewModule(votingledger.Dependencies{
		Ledgers:                    repo,
		Schedule:                   repo,
		Requests:                   repo,
		RightsStore:                repo,
		Outbox:                     repo,
		OutboxRepo:                 repo,
		EventDedup:                 repo,
		Bus:                        bus,
		Metrics:                    ledgermetrics.NewSettlementMetrics(registry),
		Clock:                      postgresadapter.SystemClock{},
		IDGenerator:                postgresadapter.UUIDGenerator{},
		RandomnessTimeout:          cfg.RandomnessTimeout,
		MaxRandomnessAttempts:      cfg.MaxRandomnessAttempts,
		OracleDelay:                cfg.OracleDelay,
		OutboxBatchSize:            cfg.OutboxBatchSize,
		EventDedupTTL:              cfg.EventDedupTTL,
		DisableFulfillmentConsumer: !cfg.EnableFulfillmentConsumer,
		Logger:                     logger,
	})

	logger.Info("runtime wired",
		"event", "bootstrap_runtime_wired",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"dialect", database.Dialect,
	)
	return &Runtime{
		Config:   cfg,
		Module:   module,
		Database: database,
		Bus:      bus,
		Registry: registry,
		Logger:   logger,
	}, nil
}

func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Bus != nil {
		errs = append(errs, r.Bus.Close())
	}
	if r.Database != nil {
		errs = append(errs, r.Database.Close())
	}
	return errors.Join(errs...)
}

func (a *APIApp) Run(ctx context.Context) error {
	a.runtime.Logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	g.Go(func() error { return a.metrics.Run(gctx) })
	return g.Wait()
}

func (a *APIApp) Close() error {
	return a.runtime.Close()
}

// Run starts the fulfilment consumer, schedules the periodic jobs and serves
// metrics until ctx is cancelled.
func (w *WorkerApp) Run(ctx context.Context) error {
	cfg := w.runtime.Config
	logger := w.runtime.Logger
	module := w.runtime.Module

	g, gctx := errgroup.WithContext(ctx)
	if err := module.Workers.FulfillmentConsumer.Start(gctx); err != nil {
		return err
	}

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := "@every " + cfg.SweepInterval.String()
	jobs := []struct {
		name    string
		enabled bool
		run     func(context.Context) error
	}{
		{name: "deadline_sweeper", enabled: true, run: module.Workers.Sweeper.RunOnce},
		{name: "randomness_watchdog", enabled: cfg.EnableRandomnessWatchdog, run: module.Workers.Watchdog.RunOnce},
		{name: "local_oracle", enabled: cfg.EnableLocalOracle && module.Oracle != nil, run: func(ctx context.Context) error {
			_, err := module.Oracle.RunOnce(ctx)
			return err
		}},
		{name: "outbox_relay", enabled: true, run: module.Workers.OutboxRelay.RunOnce},
	}
	for _, job := range jobs {
		if !job.enabled {
			continue
		}
		if _, err := scheduler.AddFunc(spec, func() {
			if err := job.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker job failed",
					"event", "bootstrap_worker_job_failed",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"job", job.name,
					"error", err.Error(),
				)
			}
		}); err != nil {
			return err
		}
	}

	logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"sweep_interval", cfg.SweepInterval.String(),
		"local_oracle", cfg.EnableLocalOracle,
		"fulfillment_consumer", cfg.EnableFulfillmentConsumer,
	)

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})
	g.Go(func() error { return w.metrics.Run(gctx) })
	return g.Wait()
}

func (w *WorkerApp) Close() error {
	return w.runtime.Close()
}

func processLogger(logger *slog.Logger, process string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("process", process)
}

func normalizeAddr(port string, fallback string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return fallback
	}
	if strings.Contains(value, ":") {
		return value
	}
	return ":" + value
}
