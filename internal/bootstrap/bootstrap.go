// Package bootstrap assembles repositories, services and jobs from configuration.
package bootstrap

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/classifier"
	"github.com/spec-kit/ticket-sla/internal/config"
	"github.com/spec-kit/ticket-sla/internal/dedup"
	"github.com/spec-kit/ticket-sla/internal/events"
	"github.com/spec-kit/ticket-sla/internal/notify"
	"github.com/spec-kit/ticket-sla/internal/observability"
	"github.com/spec-kit/ticket-sla/internal/persistence"
	"github.com/spec-kit/ticket-sla/internal/repository"
	"github.com/spec-kit/ticket-sla/internal/repository/memstore"
	"github.com/spec-kit/ticket-sla/internal/service"
	"github.com/spec-kit/ticket-sla/internal/worker"
)

const dedupKeyPrefix = "ticket-sla:dedup:"

// Repositories groups the storage interfaces.
type Repositories struct {
	Workflows repository.WorkflowRepository
	Tickets   repository.TicketRepository
	History   repository.TransitionHistoryRepository
	Messages  repository.TicketMessageRepository
	Health    repository.ConversationHealthRepository
	Staff     repository.StaffRepository
	Teams     repository.TeamRepository
}

// Container holds every long-lived component of the process.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Repos    Repositories

	Events    events.Dispatcher
	Pool      *worker.Pool
	Auth      *service.AuthService
	Workflows *service.WorkflowService
	Ledger    *service.LedgerService
	Lifecycle *service.LifecycleService
	Health    *service.HealthScorer

	WarningJob   *worker.SLAWarningJob
	ViolationJob *worker.SLAViolationJob

	closers []func() error
}

// New connects storage and builds every service. Without a Postgres DSN the in-memory store is used.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	if err := c.initStorage(ctx); err != nil {
		c.Close()
		return nil, err
	}
	cache, err := c.initDedup()
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Events = events.NewInMemoryDispatcher(logger)
	c.Pool = worker.NewPool(cfg.Worker.PoolSize, logger.Named("pool"))

	c.Auth = service.NewAuthService(*cfg, service.AuthDependencies{StaffRepo: c.Repos.Staff, TeamRepo: c.Repos.Teams})
	c.Workflows = service.NewWorkflowService(service.WorkflowDependencies{WorkflowRepo: c.Repos.Workflows, Logger: logger})
	c.Ledger = service.NewLedgerService(service.LedgerDependencies{
		HistoryRepo: c.Repos.History,
		Graphs:      c.Workflows,
		Logger:      logger,
		Metrics:     c.Metrics,
	})
	c.Lifecycle = service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  c.Repos.Tickets,
		MessageRepo: c.Repos.Messages,
		TeamRepo:    c.Repos.Teams,
		StaffRepo:   c.Repos.Staff,
		Graphs:      c.Workflows,
		Ledger:      c.Ledger,
		Dispatcher:  c.Events,
		Logger:      logger,
	})
	c.initHealth()

	monitorDeps := worker.MonitorDependencies{
		Ledger:    c.Ledger,
		Tickets:   c.Repos.Tickets,
		Staff:     c.Repos.Staff,
		Cache:     cache,
		Notifier:  c.initNotifier(),
		Config:    cfg.Monitor,
		EmailFrom: cfg.Notification.EmailFrom,
		Logger:    logger,
		Metrics:   c.Metrics,
	}
	c.WarningJob = worker.NewSLAWarningJob(monitorDeps)
	c.ViolationJob = worker.NewSLAViolationJob(monitorDeps)
	return c, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	pg, err := persistence.NewPostgres(ctx, c.Config.Postgres, c.Logger)
	if err != nil {
		return err
	}
	c.Postgres = pg
	c.closers = append(c.closers, func() error { pg.Close(); return nil })

	pool := pg.PoolHandle()
	if pool == nil {
		c.Logger.Warn("using in-memory storage; data is lost on exit")
		store := memstore.New()
		c.Repos = Repositories{
			Workflows: store.Workflows(),
			Tickets:   store.Tickets(),
			History:   store.History(),
			Messages:  store.Messages(),
			Health:    store.Health(),
			Staff:     store.Staff(),
			Teams:     store.Teams(),
		}
		return nil
	}

	if c.Config.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, c.Logger); err != nil {
			return err
		}
	}
	c.Repos = Repositories{
		Workflows: repository.NewWorkflowRepository(pool),
		Tickets:   repository.NewTicketRepository(pool),
		History:   repository.NewTransitionHistoryRepository(pool),
		Messages:  repository.NewTicketMessageRepository(pool),
		Health:    repository.NewConversationHealthRepository(pool),
		Staff:     repository.NewStaffRepository(pool),
		Teams:     repository.NewTeamRepository(pool),
	}
	return nil
}

func (c *Container) initDedup() (dedup.Cache, error) {
	c.Redis = persistence.NewRedis(c.Config.Redis, c.Logger)
	if client := c.Redis.ClientHandle(); client != nil {
		c.closers = append(c.closers, func() error { c.Redis.Close(); return nil })
		return dedup.NewRedisCache(client, dedupKeyPrefix), nil
	}
	mem, err := dedup.NewMemoryCache(0)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() error { mem.Close(); return nil })
	return mem, nil
}

func (c *Container) initNotifier() *notify.Dispatcher {
	n := c.Config.Notification
	if len(n.KafkaBrokers) == 0 {
		c.Logger.Warn("no notification brokers configured; notifications are logged only")
		sender := notify.NewLogSender(c.Logger)
		return notify.NewDispatcher(sender, sender, c.Logger, c.Metrics)
	}
	publisher := notify.NewKafkaPublisher(n.KafkaBrokers, n.PushTopic, n.EmailTopic)
	c.closers = append(c.closers, publisher.Close)
	c.Logger.Info("publishing notifications to kafka", zap.Strings("brokers", n.KafkaBrokers))
	return notify.NewDispatcher(publisher, publisher, c.Logger, c.Metrics)
}

func (c *Container) initHealth() {
	cls, err := classifier.NewOpenAIClassifier(c.Config.Classifier, c.Logger)
	if errors.Is(err, classifier.ErrNotConfigured) {
		c.Logger.Warn("CLASSIFIER_API_KEY not provided; conversation health scoring disabled")
		return
	}
	if err != nil {
		c.Logger.Warn("classifier unavailable; conversation health scoring disabled", zap.Error(err))
		return
	}
	c.Health = service.NewHealthScorer(service.HealthScorerDependencies{
		HealthRepo: c.Repos.Health,
		Classifier: cls,
		Logger:     c.Logger,
		Metrics:    c.Metrics,
	})
}

// StartHealthWorker subscribes conversation scoring to new messages when scoring is enabled.
func (c *Container) StartHealthWorker() {
	var evaluator worker.HealthEvaluator
	if c.Health != nil {
		evaluator = c.Health
	}
	worker.StartHealthWorker(c.Events, c.Pool, evaluator, c.Logger)
}

// Jobs returns the monitor jobs.
func (c *Container) Jobs() []worker.ScheduledJob {
	return []worker.ScheduledJob{c.WarningJob, c.ViolationJob}
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}
