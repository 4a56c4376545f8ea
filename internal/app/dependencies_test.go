package app

import (
	"context"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
	"github.com/vladislavdragonenkov/ims/internal/storage/rediscache"
)

func TestInitRuntimeDependencies_MemoryDrivers(t *testing.T) {
	t.Parallel()

	// Пустой драйвер и регистр значения не должны влиять на выбор in-memory хранилища.
	for _, driver := range []string{"", StorageDriverMemory, " Memory "} {
		t.Run("driver="+driver, func(t *testing.T) {
			logger := log.WithField("test", "memory-storage")
			deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: driver}, logger)
			require.NoError(t, err)
			defer deps.close(logger)

			require.NotNil(t, deps.products)
			require.NotNil(t, deps.customers)
			require.NotNil(t, deps.orders)
			require.IsType(t, &memory.OutboxRepository{}, deps.outboxRepo)
			require.IsType(t, &memory.IdempotencyRepository{}, deps.idempotencyRepo)
			require.Nil(t, deps.store, "memory storage must not open postgres")
			require.Nil(t, deps.redisClient, "redis is off without RedisAddr")
		})
	}
}

func TestInitRuntimeDependencies_RedisWrapsCustomers(t *testing.T) {
	t.Parallel()

	logger := log.WithField("test", "redis-cache")
	// Клиент go-redis подключается лениво, поэтому недоступный адрес не ломает старт.
	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
		RedisAddr:     "127.0.0.1:1",
		RedisTTL:      time.Minute,
	}, logger)
	require.NoError(t, err)
	defer deps.close(logger)

	require.NotNil(t, deps.redisClient)
	require.IsType(t, &rediscache.CustomerRepository{}, deps.customers)
}

func TestInitRuntimeDependencies_InvalidStorage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "postgres without dsn",
			cfg:     Config{StorageDriver: StorageDriverPostgres, PostgresDSN: "  "},
			wantErr: "postgres dsn is required",
		},
		{
			name:    "unsupported driver",
			cfg:     Config{StorageDriver: "sqlite"},
			wantErr: `unsupported storage driver "sqlite"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, err := initRuntimeDependencies(context.Background(), tt.cfg, log.WithField("test", "invalid-storage"))
			require.ErrorContains(t, err, tt.wantErr)
			require.Nil(t, deps)
		})
	}
}

func TestRuntimeDependenciesClose_Nil(t *testing.T) {
	var deps *runtimeDependencies
	require.NotPanics(t, func() { deps.close(log.WithField("test", "close")) })
}
