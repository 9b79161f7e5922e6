// Command hooksd runs the webhook delivery pipeline: the outbox dispatcher,
// the queue consumer, the polling sweep and the retention schedule.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-command"
	"github.com/goliatone/go-hooks/adapters/gocommand"
	"github.com/goliatone/go-hooks/adapters/gojob"
	"github.com/goliatone/go-hooks/adapters/gologger"
	"github.com/goliatone/go-hooks/adapters/otelmetrics"
	"github.com/goliatone/go-hooks/core"
	hookmigrations "github.com/goliatone/go-hooks/migrations"
	"github.com/goliatone/go-hooks/netguard"
	"github.com/goliatone/go-hooks/security"
	sqlstore "github.com/goliatone/go-hooks/store/sql"
	"github.com/goliatone/go-hooks/transport"
	"github.com/goliatone/go-hooks/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", defaultConfigFile, "path to the YAML configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "hooksd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := loadDaemonConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	loggers := gologger.ResolveComponents(newRootLogger(os.Stdout, cfg.Logging), nil)

	// --- Persistence ---

	client, err := openPersistence(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	loggers.Service.Info("database ready", "driver", cfg.Database.Driver)

	factoryOpts, err := factoryOptions(cfg)
	if err != nil {
		return err
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		return fmt.Errorf("repository factory: %w", err)
	}

	metrics := otelmetrics.NewRecorder(nil, otelmetrics.WithErrorHandler(func(name string, err error) {
		loggers.Service.Warn("metric instrument unavailable", "metric", name, "error", err)
	}))

	targets, err := buildTargetRegistry(cfg.Targets)
	if err != nil {
		return fmt.Errorf("targets: %w", err)
	}
	serviceOpts := append(factory.ServiceOptions(),
		core.WithTargetResolver(targets),
		core.WithLoggerProvider(loggers.Provider),
		core.WithLogger(loggers.Service),
		core.WithMetricsRecorder(metrics),
		core.WithConfigProvider(core.NewCfgxConfigProvider(cfg)),
	)
	service, err := core.NewService(core.Config{}, serviceOpts...)
	if err != nil {
		return fmt.Errorf("service: %w", err)
	}
	hooksCfg := service.Config()

	// --- Command bus ---

	bus := gocommand.NewRegistryAdapter(command.NewRegistry())
	subs, err := gocommand.RegisterWebhookHandlers(bus, service)
	if err != nil {
		return fmt.Errorf("command handlers: %w", err)
	}
	defer subs.Unsubscribe()
	if err := bus.Initialize(); err != nil {
		return fmt.Errorf("command registry: %w", err)
	}

	// --- Delivery pipeline ---

	jobs := factory.DeliveryJobStore()
	engine, err := webhooks.NewEngine(jobs, factory.WebhookStore(), transport.NewClient(),
		webhooks.WithConfig(hooksCfg),
		webhooks.WithLogger(loggers.Worker),
		webhooks.WithMetricsRecorder(metrics),
		webhooks.WithLimitedEffortChecker(netguard.NewChecker(hooksCfg.Delivery, netguard.WithLogger(loggers.Worker))),
	)
	if err != nil {
		return fmt.Errorf("delivery engine: %w", err)
	}
	worker, err := webhooks.NewWorker(engine, jobs, hooksCfg, loggers.Worker)
	if err != nil {
		return fmt.Errorf("delivery worker: %w", err)
	}

	deliveryQueue, err := gojob.NewSQLQueue(client.DB().DB, gojob.SQLQueueConfig{
		Driver:            cfg.Database.Driver,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})
	if err != nil {
		return fmt.Errorf("delivery queue: %w", err)
	}
	if err := deliveryQueue.Migrate(ctx); err != nil {
		return err
	}
	dispatcher, err := core.NewOutboxDispatcher(
		jobs,
		gojob.NewEnqueuerAdapter(deliveryQueue, loggers.Dispatcher),
		core.OutboxDispatcherConfig{BatchSize: cfg.Queue.DispatchBatch},
		loggers.Dispatcher,
	)
	if err != nil {
		return fmt.Errorf("outbox dispatcher: %w", err)
	}
	consumer, err := gojob.NewDeliveryConsumer(
		gojob.NewDequeuerAdapter(deliveryQueue, gojob.RetryPolicy{MaxDelay: cfg.Queue.MaxRetryDelay}),
		worker,
		gojob.WithConsumerLogger(loggers.Consumer),
		gojob.WithConsumerHook(gojob.NewObservingHook(loggers.Consumer, metrics)),
		gojob.WithErrorDelay(cfg.Queue.ErrorDelay),
	)
	if err != nil {
		return fmt.Errorf("delivery consumer: %w", err)
	}

	pruner, err := newPruneScheduler(cfg.Schedule.Prune, loggers.Scheduler)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return runDispatchLoop(gctx, dispatcher, cfg.Queue.DispatchInterval, cfg.Queue.DispatchBatch, loggers.Dispatcher)
	})
	group.Go(func() error {
		return consumer.Run(gctx)
	})
	group.Go(func() error {
		return worker.Start(gctx)
	})
	group.Go(func() error {
		pruner.Start()
		<-gctx.Done()
		<-pruner.Stop().Done()
		return nil
	})

	loggers.Service.Info("hooksd started",
		"concurrency", hooksCfg.Worker.Concurrency,
		"poll_interval", hooksCfg.Worker.PollInterval.String(),
		"prune_schedule", cfg.Schedule.Prune,
	)
	err = group.Wait()
	loggers.Service.Info("hooksd stopped")
	return err
}

type persistenceConfig struct {
	db databaseConfig
}

func (c persistenceConfig) GetDebug() bool                { return c.db.Debug }
func (c persistenceConfig) GetDriver() string             { return c.db.Driver }
func (c persistenceConfig) GetServer() string             { return c.db.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "hooksd" }

// openPersistence connects, registers the dialect's migrations and applies
// them.
func openPersistence(ctx context.Context, cfg databaseConfig) (*persistence.Client, error) {
	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var (
		dialect       schema.Dialect
		migrationsFor string
	)
	switch cfg.Driver {
	case "sqlite3":
		sqlDB.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
		migrationsFor = hookmigrations.DialectSQLite
	default:
		dialect = pgdialect.New()
		migrationsFor = hookmigrations.DialectPostgres
	}

	client, err := persistence.New(persistenceConfig{db: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	if _, err := hookmigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, hookmigrations.WithValidationTargets(migrationsFor)); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

func factoryOptions(cfg daemonConfig) ([]sqlstore.FactoryOption, error) {
	var opts []sqlstore.FactoryOption
	if cfg.Secrets.AppKey != "" {
		codec, err := security.NewAppKeySecretProviderFromString(
			cfg.Secrets.AppKey,
			security.WithKeyID(cfg.Secrets.KeyID),
			security.WithVersion(cfg.Secrets.Version),
		)
		if err != nil {
			return nil, fmt.Errorf("secret codec: %w", err)
		}
		opts = append(opts, sqlstore.WithFactorySecretCodec(codec))
	}
	if cfg.Cache.Enabled {
		cacheCfg := repositorycache.DefaultConfig()
		if cfg.Cache.TTL > 0 {
			cacheCfg.TTL = cfg.Cache.TTL
		}
		cacheService, err := repositorycache.NewCacheService(cacheCfg)
		if err != nil {
			return nil, fmt.Errorf("webhook cache: %w", err)
		}
		opts = append(opts, sqlstore.WithWebhookCache(cacheService))
	}
	return opts, nil
}
