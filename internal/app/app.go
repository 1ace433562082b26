package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/manager-sync/external/partnerapi"
	"github.com/riskibarqy/manager-sync/internal/config"
	"github.com/riskibarqy/manager-sync/internal/domain/budget"
	"github.com/riskibarqy/manager-sync/internal/domain/element"
	"github.com/riskibarqy/manager-sync/internal/domain/game"
	"github.com/riskibarqy/manager-sync/internal/domain/synclog"
	"github.com/riskibarqy/manager-sync/internal/domain/userstat"
	"github.com/riskibarqy/manager-sync/internal/infrastructure/events"
	"github.com/riskibarqy/manager-sync/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/manager-sync/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/manager-sync/internal/infrastructure/repository/redisstore"
	"github.com/riskibarqy/manager-sync/internal/interfaces/httpapi"
	"github.com/riskibarqy/manager-sync/internal/platform/logging"
	"github.com/riskibarqy/manager-sync/internal/platform/metrics"
	"github.com/riskibarqy/manager-sync/internal/platform/resilience"
	"github.com/riskibarqy/manager-sync/internal/usecase"
)

// App holds the assembled service. Close releases what New opened, in
// reverse order.
type App struct {
	Server    *http.Server
	Scheduler *Scheduler
	Sync      *usecase.SyncService

	closers []namedCloser
	logger  *logging.Logger
}

type namedCloser struct {
	name  string
	close func() error
}

type stores struct {
	games    game.Repository
	elements element.Repository
	users    userstat.Repository
	logs     synclog.Repository
	budget   budget.Repository
}

func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	st, err := a.buildStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	governor := usecase.NewBudgetGovernor(st.budget, usecase.BudgetConfig{
		DailyLimit: cfg.APIBudgetDailyLimit,
		Reserve:    cfg.APIBudgetReserve,
	}, logger, m)

	client := partnerapi.NewClient(partnerapi.ClientConfig{
		BaseURL:       cfg.PartnerAPIBaseURL,
		APIKey:        cfg.PartnerAPIKey,
		Timeout:       cfg.PartnerAPITimeout,
		SlowThreshold: cfg.PartnerAPISlowThreshold,
		Retry: resilience.RetryConfig{
			MaxRetries:          cfg.PartnerAPIMaxRetries,
			MaxRateLimitRetries: cfg.PartnerAPIRateLimitMaxRetries,
			BackoffBase:         cfg.PartnerAPIBackoffBase,
			MaxBackoff:          cfg.PartnerAPIMaxBackoff,
		},
		RateLimitDefaultWait: cfg.PartnerAPIRateLimitDefaultWait,
		RateLimitMaxWait:     cfg.PartnerAPIRateLimitMaxWait,
		PageSize:             cfg.PartnerAPIPageSize,
		PageDelay:            cfg.PartnerAPIPageDelay,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.PartnerAPICircuitEnabled,
			FailureThreshold: cfg.PartnerAPICircuitFailureCount,
			OpenTimeout:      cfg.PartnerAPICircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.PartnerAPICircuitHalfOpenMax,
		},
		ValidateCacheTTL: cfg.PartnerAPIValidateCacheTTL,
		Budget:           governor,
		Logger:           logger,
		Metrics:          m,
	})

	publisher, err := a.buildPublisher(cfg)
	if err != nil {
		return nil, err
	}

	scheduleSvc := usecase.NewScheduleService(st.games, usecase.ScheduleConfig{
		CriticalLead:     cfg.ScheduleCriticalLead,
		CriticalLag:      cfg.ScheduleCriticalLag,
		CriticalInterval: cfg.ScheduleCriticalInterval,
	}, logger)
	syncSvc := usecase.NewSyncService(usecase.SyncDependencies{
		Games:    st.games,
		Elements: st.elements,
		Users:    st.users,
		Logs:     st.logs,
		Partner:  client,
		Schedule: scheduleSvc,
		Events:   publisher,
	}, usecase.SyncConfig{BatchSize: cfg.SyncBatchSize}, logger, m)

	handler := httpapi.NewHandler(syncSvc, scheduleSvc, governor, client, logger)
	router := httpapi.NewRouter(handler, m.Handler(), logger, cfg.InternalJobToken)

	a.Sync = syncSvc
	a.Server = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.SchedulerEnabled {
		a.Scheduler = NewScheduler(syncSvc, cfg.SchedulerInterval, logger)
	}

	ok = true
	return a, nil
}

func (a *App) buildStores(ctx context.Context, cfg config.Config) (stores, error) {
	seed := bootstrapGames(cfg.BootstrapGames)

	var st stores
	var db *sqlx.DB
	if cfg.UsesDatabase() {
		var err error
		db, err = openDB(ctx, cfg, a.logger)
		if err != nil {
			return stores{}, err
		}
		a.addCloser("postgres", db.Close)

		if err := postgres.BootstrapGames(ctx, db, seed); err != nil {
			return stores{}, err
		}
		st = stores{
			games:    postgres.NewGameRepository(db),
			elements: postgres.NewElementRepository(db),
			users:    postgres.NewUserGameStatRepository(db),
			logs:     postgres.NewSyncLogRepository(db),
		}
		a.logger.Info("using postgres repositories", "db", resolveDBTarget(cfg.DBURL, false).Name, "bootstrap_games", len(seed))
	} else {
		for _, g := range seed {
			if err := g.Validate(); err != nil {
				return stores{}, fmt.Errorf("bootstrap game %s/%s: %w", g.SubsiteKey, g.GameKey, err)
			}
		}
		st = stores{
			games:    memory.NewGameRepository(seed),
			elements: memory.NewElementRepository(),
			users:    memory.NewUserGameStatRepository(),
			logs:     memory.NewSyncLogRepository(),
		}
		a.logger.Warn("DB_URL empty, using in-memory repositories", "bootstrap_games", len(seed))
	}

	switch cfg.APIBudgetStore {
	case config.BudgetStorePostgres:
		if db == nil {
			return stores{}, fmt.Errorf("postgres budget store requires DB_URL")
		}
		st.budget = postgres.NewBudgetRepository(db)
	case config.BudgetStoreRedis:
		client, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return stores{}, err
		}
		a.addCloser("redis", client.Close)
		st.budget = redisstore.NewBudgetRepository(client)
	default:
		a.logger.Warn("api budget kept in memory, the daily quota is not shared across instances")
		st.budget = memory.NewBudgetRepository()
	}

	return st, nil
}

func (a *App) buildPublisher(cfg config.Config) (usecase.SyncEventPublisher, error) {
	if !cfg.SyncEventsEnabled {
		return nil, nil
	}

	publisher, err := events.NewKafkaPublisher(events.KafkaPublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaSyncTopic,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build sync event publisher: %w", err)
	}
	a.addCloser("kafka", publisher.Close)
	return publisher, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func bootstrapGames(items []config.BootstrapGame) []game.Game {
	out := make([]game.Game, 0, len(items))
	for _, item := range items {
		out = append(out, game.Game{
			SubsiteKey:          item.SubsiteKey,
			GameKey:             item.GameKey,
			Name:                item.SubsiteKey + "/" + item.GameKey,
			RoundState:          game.RoundStatePending,
			IsActive:            true,
			SyncIntervalMinutes: item.SyncIntervalMinutes,
		})
	}
	return out
}
