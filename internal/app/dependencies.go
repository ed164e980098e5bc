package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
	"github.com/vladislavdragonenkov/bookshop/internal/health"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/postgres"
	"github.com/vladislavdragonenkov/bookshop/internal/storage/redis"
)

// Dependencies — хранилища выбранного драйвера.
type Dependencies struct {
	Orders      domain.OrderRepository
	Statuses    domain.StatusRepository
	Coupons     domain.CouponRepository
	Catalog     domain.CatalogRepository
	Accounts    domain.AccountRepository
	Ledger      domain.LedgerRepository
	Timeline    domain.TimelineRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	// StorageCheck проверяет доступность основного хранилища.
	StorageCheck health.CheckFunc
	// IdempotencyCheck задан, если ключи идемпотентности хранятся в Redis.
	IdempotencyCheck health.CheckFunc

	closers []func() error
}

// Close освобождает соединения в обратном порядке.
func (d *Dependencies) Close() error {
	var firstErr error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.closers = nil
	return firstErr
}

// NewMemoryDependencies собирает in-memory хранилища.
func NewMemoryDependencies() *Dependencies {
	return &Dependencies{
		Orders:       memory.NewOrderRepository(),
		Statuses:     memory.NewStatusRepository(),
		Coupons:      memory.NewCouponRepository(),
		Catalog:      memory.NewCatalogRepository(),
		Accounts:     memory.NewAccountRepository(),
		Ledger:       memory.NewLedgerRepository(),
		Timeline:     memory.NewTimelineRepository(),
		Outbox:       memory.NewOutboxRepository(),
		Idempotency:  memory.NewIdempotencyRepository(),
		StorageCheck: func(context.Context) error { return nil },
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	var deps *Dependencies

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		deps = NewMemoryDependencies()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		deps = &Dependencies{
			Orders:       postgres.NewOrderRepository(store),
			Statuses:     postgres.NewStatusRepository(store),
			Coupons:      postgres.NewCouponRepository(store),
			Catalog:      postgres.NewCatalogRepository(store),
			Accounts:     postgres.NewAccountRepository(store),
			Ledger:       postgres.NewLedgerRepository(store),
			Timeline:     postgres.NewTimelineRepository(store),
			Outbox:       postgres.NewOutboxRepository(store),
			Idempotency:  postgres.NewIdempotencyRepository(store),
			StorageCheck: store.Ping,
			closers:      []func() error{store.Close},
		}
		logger.Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		repo := redis.NewIdempotencyRepository(client, "")
		if err := repo.Ping(ctx); err != nil {
			_ = client.Close()
			_ = deps.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		deps.Idempotency = repo
		deps.IdempotencyCheck = repo.Ping
		deps.closers = append(deps.closers, client.Close)
		logger.WithField("addr", cfg.RedisAddr).Info("using redis idempotency store")
	}

	return deps, nil
}
