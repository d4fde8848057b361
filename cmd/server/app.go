package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quote-sentinel/internal/alerting"
	"quote-sentinel/internal/bottleneck"
	"quote-sentinel/internal/circuitbreaker"
	"quote-sentinel/internal/config"
	"quote-sentinel/internal/core/memory"
	"quote-sentinel/internal/core/ports"
	"quote-sentinel/internal/core/postgres/repository"
	"quote-sentinel/internal/core/updater"
	"quote-sentinel/internal/diagnostics"
	infraredis "quote-sentinel/internal/infrastructure/redis"
	"quote-sentinel/internal/logging"
	"quote-sentinel/internal/recovery"
	"quote-sentinel/internal/service"
	"quote-sentinel/internal/tracker"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const defaultSummaryWindow = 24 * time.Hour

// app holds every component built from the command line.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	clock  clockwork.Clock

	repo   ports.WorkflowRepository
	alerts ports.AlertRepository
	trends ports.TrendSource

	redis *redis.Client
	bus   *infraredis.RedisEventBus
	queue *infraredis.RedisQueue

	breakers   *circuitbreaker.Manager
	dispatcher *alerting.Dispatcher
	recovery   *recovery.Coordinator
	tracker    *tracker.Tracker
	health     service.HealthService

	closers []func() error
}

func newApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	logger, err := logging.New(cmd.String("log-level"))
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		clock:  clockwork.NewRealClock(),
	}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if err := a.openStore(cmd.String("database-url")); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx, cmd.String("redis-addr")); err != nil {
		a.Close()
		return nil, err
	}

	a.wire()
	return a, nil
}

func (a *app) openStore(url string) error {
	if url == "" || url == memoryDatabase {
		a.logger.Warn("using in-process store, data is lost on exit")
		store := memory.NewStore()
		a.repo, a.alerts, a.trends = store, store, store
		return nil
	}
	if !strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") && !strings.Contains(url, "host=") {
		return fmt.Errorf("unsupported database url %q", url)
	}

	db, err := repository.Open(url)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql handle: %w", err)
	}
	a.closers = append(a.closers, sqlDB.Close)

	a.repo = repository.NewWorkflowRepository(db)
	a.alerts = repository.NewAlertRepository(db)
	a.trends = repository.NewTrendRepository(db)
	return nil
}

func (a *app) openRedis(ctx context.Context, addr string) error {
	if addr == "" {
		a.logger.Warn("redis disabled: no step-event consumer, operator channel or follow-up queue")
		return nil
	}

	client, err := infraredis.NewRedisClient(ctx, addr)
	if err != nil {
		return err
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)

	a.bus = infraredis.NewRedisEventBus(client, logging.WithModule(a.logger, "event_bus"))
	a.queue = infraredis.NewRedisQueue(client)
	return nil
}

func (a *app) wire() {
	cfg := a.cfg

	a.breakers = circuitbreaker.NewManager(logging.WithModule(a.logger, "circuit_breaker"), cfg.Breakers.Default)
	for service, c := range cfg.Breakers.Services {
		a.breakers.Configure(service, c)
	}
	if a.redis != nil {
		// gmail is left out: a degraded send would look delivered.
		cache := infraredis.NewDegradationCache(a.redis, cfg.Breakers.DegradationTTL, logging.WithModule(a.logger, "degradation"))
		a.breakers.SetDegradation(circuitbreaker.ServicePDF, cache)
		a.breakers.SetDegradation(circuitbreaker.ServiceAI, cache)
	}

	rows := updater.New(a.repo, cfg.Tracker.MaxUpdateAttempts)

	var notifier ports.AlertNotifier
	if a.bus != nil {
		notifier = a.bus
	}
	a.dispatcher = alerting.NewDispatcher(alerting.Options{
		Rows:     rows,
		Repo:     a.repo,
		Alerts:   a.alerts,
		Trends:   a.trends,
		Notifier: notifier,
		Clock:    a.clock,
		Policy:   cfg.Alerting,
		Logger:   logging.WithModule(a.logger, "alerting"),
	})

	var followUps ports.FollowUpQueue
	if a.queue != nil {
		followUps = a.queue
	}
	a.recovery = recovery.NewCoordinator(rows, recovery.InitRegistry(recovery.Dependencies{
		Clock:     a.clock,
		Breakers:  a.breakers,
		FollowUps: followUps,
		Logger:    logging.WithModule(a.logger, "recovery"),
	}), logging.WithModule(a.logger, "recovery"))

	a.tracker = tracker.New(tracker.Options{
		Repo:        a.repo,
		Rows:        rows,
		Detector:    bottleneck.NewDetector(cfg.Thresholds()),
		Diagnostics: diagnostics.NewEngine(cfg.Diagnostics),
		Recovery:    a.recovery,
		Alerts:      a.dispatcher,
		Clock:       a.clock,
		Logger:      logging.WithModule(a.logger, "tracker"),
	})

	a.health = service.NewHealthService(a.repo, a.alerts, a.breakers, a.clock, cfg.Alerting.FailureRateMax)
}

// Close cancels pending recoveries and releases connections, newest first.
func (a *app) Close() {
	if a.recovery != nil {
		a.recovery.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}
