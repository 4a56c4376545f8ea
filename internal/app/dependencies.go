package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
	"github.com/vladislavdragonenkov/ims/internal/storage/postgres"
	"github.com/vladislavdragonenkov/ims/internal/storage/rediscache"
)

// runtimeDependencies содержит репозитории, выбранные конфигурацией.
type runtimeDependencies struct {
	products        domain.ProductRepository
	customers       domain.CustomerRepository
	orders          domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository

	store       *postgres.Store
	redisClient *redis.Client
}

// initRuntimeDependencies создаёт хранилище по cfg.StorageDriver и, если задан
// RedisAddr, оборачивает репозиторий клиентов кэшем.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		deps.products = memory.NewProductRepository()
		deps.customers = memory.NewCustomerRepository()
		deps.orders = memory.NewOrderRepository()
		deps.outboxRepo = memory.NewOutboxRepository()
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("используем in-memory хранилище")
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("ensure postgres schema: %w", err)
			}
		}
		deps.store = store
		deps.products = postgres.NewProductRepository(store)
		deps.customers = postgres.NewCustomerRepository(store)
		deps.orders = postgres.NewOrderRepository(store)
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("используем PostgreSQL хранилище")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		client := rediscache.NewClient(cfg.RedisAddr)
		deps.redisClient = client
		deps.customers = rediscache.NewCustomerRepository(
			deps.customers,
			rediscache.New(client, "ims"),
			cfg.RedisTTL,
			logger.WithField("layer", "customer-cache"),
		)
		logger.WithField("redis_addr", cfg.RedisAddr).Info("кэш клиентов включён")
	}

	return deps, nil
}

// close освобождает внешние подключения.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil {
		return
	}
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
