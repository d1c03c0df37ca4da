// Package app wires the application together: database, redis, message bus,
// engines and the lifecycle dispatcher.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eshields/caseplan/internal/prisoner"
	scheduleApp "github.com/eshields/caseplan/internal/schedules/application"
	scheduleDomain "github.com/eshields/caseplan/internal/schedules/domain"
	"github.com/eshields/caseplan/internal/schedules/infrastructure/idempotency"
	schedulePersistence "github.com/eshields/caseplan/internal/schedules/infrastructure/persistence"
	sharedApplication "github.com/eshields/caseplan/internal/shared/application"
	"github.com/eshields/caseplan/internal/shared/infrastructure/eventbus"
	"github.com/eshields/caseplan/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/eshields/caseplan/internal/shared/infrastructure/persistence"
	"github.com/eshields/caseplan/pkg/config"
	"github.com/eshields/caseplan/pkg/observability"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database (exactly one of the two is set)
	DB       *pgxpool.Pool
	SQLiteDB *sql.DB

	// Redis
	RedisClient *redis.Client

	// Repositories
	InductionRepo scheduleDomain.InductionHistoryRepository
	ReviewRepo    scheduleDomain.ReviewHistoryRepository
	OutboxRepo    outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Prisoner search
	PrisonerLookup scheduleApp.PersonLookup

	// Engines
	InductionEngine *scheduleApp.InductionEngine
	ReviewEngine    *scheduleApp.ReviewEngine
	Orchestrator    *scheduleApp.ScheduleOrchestrator
	Dispatcher      *scheduleApp.LifecycleEventDispatcher

	// Messaging
	EventPublisher  eventbus.Publisher
	EventConsumer   eventbus.Consumer
	OutboxProcessor *outbox.Processor

	// Health
	Health *observability.HealthRegistry

	closers []func()
}

// Options tune container construction.
type Options struct {
	// ActionPlanCheck gates review creation. Required unless the caller
	// only uses the lifecycle path.
	ActionPlanCheck scheduleApp.ActionPlanExistenceCheck
}

// NewContainer builds the dependency graph from configuration. A sqlite
// DATABASE_URL selects local mode: sqlite storage, in-process dedup and an
// in-process event bus instead of a broker connection.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = observability.LoggerFromEnv()
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		Health: observability.NewHealthRegistry(),
	}

	rules := scheduleDomain.DeadlineRules{
		AdmissionLeadDays:         cfg.AdmissionLeadDays,
		ExtendedAdmissionLeadDays: cfg.ExtendedAdmissionLeadDays,
		HolidayFrom:               cfg.HolidayFrom,
		HolidayTo:                 cfg.HolidayTo,
		RescheduleLeadDays:        cfg.RescheduleLeadDays,
		ReviewTransferWindowDays:  cfg.ReviewTransferWindowDays,
		ReviewAbsenceWindowDays:   cfg.ReviewAbsenceWindowDays,
		ReviewIntervalDays:        cfg.ReviewIntervalDays,
		PreReleaseHorizonDays:     cfg.PreReleaseHorizonDays,
	}

	localMode := isSQLiteURL(cfg.DatabaseURL)
	if localMode {
		if err := c.initSQLite(ctx); err != nil {
			c.Close()
			return nil, err
		}
	} else {
		if err := c.initPostgres(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	var deduper scheduleApp.DeliveryDeduper
	if localMode {
		deduper = scheduleApp.NewMemoryDeduper()
	} else {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		c.RedisClient = redis.NewClient(redisOpts)
		c.closers = append(c.closers, func() { _ = c.RedisClient.Close() })
		c.Health.Register("redis", observability.PingHealthChecker(
			"redis", observability.HealthStatusDegraded,
			func(ctx context.Context) error { return c.RedisClient.Ping(ctx).Err() },
		))
		deduper = idempotency.NewRedisDeduper(c.RedisClient, cfg.DedupRetention)
	}

	searchClient := prisoner.NewClient(cfg.PrisonerSearchURL, &http.Client{Timeout: 10 * time.Second}, logger)
	if c.RedisClient != nil {
		c.PrisonerLookup = prisoner.NewCachedLookup(searchClient, c.RedisClient, cfg.PrisonerCacheTTL, logger)
	} else {
		c.PrisonerLookup = searchClient
	}

	c.InductionEngine = scheduleApp.NewInductionEngine(
		c.InductionRepo, c.OutboxRepo, c.UnitOfWork, rules, time.Now, logger)
	c.ReviewEngine = scheduleApp.NewReviewEngine(
		c.ReviewRepo, c.OutboxRepo, c.UnitOfWork, c.PrisonerLookup, rules, time.Now, logger)
	c.Orchestrator = scheduleApp.NewScheduleOrchestrator(
		c.InductionEngine, c.ReviewEngine, opts.ActionPlanCheck, logger)
	c.Dispatcher = scheduleApp.NewLifecycleEventDispatcher(
		c.InductionEngine, c.ReviewEngine, c.UnitOfWork, deduper, logger)

	if err := c.initMessaging(localMode); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Container) initPostgres(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, c.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	c.DB = pool
	c.closers = append(c.closers, pool.Close)
	c.Health.Register("database", observability.PingHealthChecker(
		"database", observability.HealthStatusUnhealthy, pool.Ping,
	))

	c.InductionRepo = schedulePersistence.NewPostgresInductionRepository(pool)
	c.ReviewRepo = schedulePersistence.NewPostgresReviewRepository(pool)
	c.OutboxRepo = outbox.NewPostgresRepository(pool)
	c.UnitOfWork = sharedPersistence.NewPostgresUnitOfWork(pool)
	return nil
}

func (c *Container) initSQLite(ctx context.Context) error {
	dsn := sqliteDSN(c.Config.DatabaseURL)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serialises writes; a single connection avoids
	// SQLITE_BUSY under the worker's concurrency.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite database: %w", err)
	}
	c.SQLiteDB = db
	c.closers = append(c.closers, func() { _ = db.Close() })
	c.Health.Register("database", observability.PingHealthChecker(
		"database", observability.HealthStatusUnhealthy, db.PingContext,
	))

	c.InductionRepo = schedulePersistence.NewSQLiteInductionRepository(db)
	c.ReviewRepo = schedulePersistence.NewSQLiteReviewRepository(db)
	c.OutboxRepo = outbox.NewSQLiteRepository(db)
	c.UnitOfWork = sharedPersistence.NewSQLiteUnitOfWork(db)
	return nil
}

func (c *Container) initMessaging(localMode bool) error {
	if localMode {
		// No broker locally: one synchronous bus carries both sides, so
		// outbox notifications still flow and lifecycle events published
		// on it reach the dispatcher.
		bus := eventbus.NewInProcessEventBus(c.Logger)
		bus.RegisterConsumer(c.Dispatcher)
		c.EventPublisher = bus
		c.EventConsumer = bus
		c.Logger.Info("local mode, using in-process event bus")
	} else {
		publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
		if err != nil {
			if c.Config.IsDevelopment() {
				c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
				c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
			} else {
				return fmt.Errorf("connect to RabbitMQ: %w", err)
			}
		} else {
			c.EventPublisher = publisher
			c.closers = append(c.closers, func() { _ = publisher.Close() })
		}

		consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
			URL:       c.Config.RabbitMQURL,
			Exchange:  c.Config.LifecycleExchange,
			QueueName: c.Config.LifecycleQueue,
			Logger:    c.Logger,
		}, eventbus.NewConsumerRegistry(c.Logger))
		if err != nil {
			if !c.Config.IsDevelopment() {
				return fmt.Errorf("connect lifecycle consumer: %w", err)
			}
			c.Logger.Warn("RabbitMQ not available, lifecycle consumer disabled", "error", err)
		} else {
			consumer.RegisterConsumer(c.Dispatcher)
			c.EventConsumer = consumer
			c.closers = append(c.closers, func() { _ = consumer.Close() })
		}
	}

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval: c.Config.OutboxPollInterval,
		BatchSize:    c.Config.OutboxBatchSize,
		MaxRetries:   c.Config.OutboxMaxRetries,
	}, c.Logger)
	return nil
}

// Close releases every resource the container owns, in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func isSQLiteURL(u string) bool {
	return strings.HasPrefix(u, "sqlite:") || strings.HasPrefix(u, "file:") ||
		strings.HasSuffix(u, ".db") || u == ":memory:"
}

func sqliteDSN(u string) string {
	return strings.TrimPrefix(u, "sqlite:")
}
