package rediscache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
)

type fakeCache struct {
	mu      sync.Mutex
	items   map[string]string
	failGet bool
	gets    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return "", false, errors.New("connection refused")
	}
	value, ok := c.items[key]
	return value, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.items[key] = value
	return nil
}

func (c *fakeCache) SetIfAbsent(_ context.Context, key string, value string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		return false, nil
	}
	c.sets++
	c.items[key] = value
	return true, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *fakeCache) Key(entity, id string) string {
	return fmt.Sprintf("ims:%s:%s", entity, id)
}

// countingRepository считает обращения к хранилищу. afterGet, если задан, выполняется
// один раз после чтения, до возврата результата.
type countingRepository struct {
	domain.CustomerRepository
	gets     int
	afterGet func()
}

func (r *countingRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	r.gets++
	customer, err := r.CustomerRepository.Get(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return customer, err
}

func newTestRepository(t *testing.T) (*CustomerRepository, *countingRepository, *fakeCache) {
	t.Helper()

	logger := log.New()
	logger.SetOutput(io.Discard)

	store := &countingRepository{CustomerRepository: memory.NewCustomerRepository()}
	cache := newFakeCache()
	repo := NewCustomerRepository(store, cache, time.Minute, log.NewEntry(logger))

	require.NoError(t, repo.Create(context.Background(), domain.Customer{
		ID:        "c-1",
		Name:      "Ana",
		Email:     "ana@example.com",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}))
	return repo, store, cache
}

func TestCustomerRepository_ReadThrough(t *testing.T) {
	repo, store, cache := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)
	require.Equal(t, "Ana", first.Name)
	require.Equal(t, 1, store.gets)
	require.Equal(t, 1, cache.sets)

	second, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, store.gets, "second read must be served from cache")
}

func TestCustomerRepository_UpdateAndDeleteInvalidate(t *testing.T) {
	repo, store, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, domain.Customer{ID: "c-1", Name: "Ana Maria", Email: "ana@example.com"}))
	updated, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)
	require.Equal(t, "Ana Maria", updated.Name)
	require.Equal(t, 2, store.gets)

	require.NoError(t, repo.Delete(ctx, "c-1"))
	_, err = repo.Get(ctx, "c-1")
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)

	require.ErrorIs(t, repo.Delete(ctx, "c-1"), domain.ErrCustomerNotFound)
}

func TestCustomerRepository_CacheFailureFallsBackToStore(t *testing.T) {
	repo, store, cache := newTestRepository(t)
	cache.failGet = true

	customer, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	require.Equal(t, "c-1", customer.ID)
	require.Equal(t, 1, store.gets)
}

func TestCustomerRepository_CorruptedEntryIsIgnored(t *testing.T) {
	repo, store, cache := newTestRepository(t)
	cache.items[cache.Key(customerEntity, "c-1")] = "{not json"

	customer, err := repo.Get(context.Background(), "c-1")
	require.NoError(t, err)
	require.Equal(t, "Ana", customer.Name)
	require.Equal(t, 1, store.gets)
}

func TestCustomerRepository_DeleteDuringReadThroughIsNotResurrected(t *testing.T) {
	repo, store, cache := newTestRepository(t)
	ctx := context.Background()

	// Удаление успевает пройти между чтением из хранилища и прогревом кеша.
	store.afterGet = func() {
		require.NoError(t, repo.Delete(ctx, "c-1"))
	}
	stale, err := repo.Get(ctx, "c-1")
	require.NoError(t, err)
	require.Equal(t, "Ana", stale.Name)

	require.Equal(t, invalidatedMarker, cache.items[cache.Key(customerEntity, "c-1")])
	_, err = repo.Get(ctx, "c-1")
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)
	require.Equal(t, 2, store.gets)
}

func TestCustomerRepository_InvalidatedKeyIsNotWarmed(t *testing.T) {
	repo, store, cache := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Update(ctx, domain.Customer{ID: "c-1", Name: "Ana Maria", Email: "ana@example.com"}))

	for i := 0; i < 2; i++ {
		customer, err := repo.Get(ctx, "c-1")
		require.NoError(t, err)
		require.Equal(t, "Ana Maria", customer.Name)
	}
	require.Equal(t, 2, store.gets, "reads go to the store while the marker lives")
	require.Zero(t, cache.sets)
}
