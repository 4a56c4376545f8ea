package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const (
	customerEntity = "customer"
	// DefaultTTL — срок жизни карточки клиента в кеше.
	DefaultTTL = 5 * time.Minute
	// InvalidationTTL — срок жизни метки инвалидации. Пока она есть, чтения идут в хранилище
	// и не прогревают кеш, поэтому запоздалое заполнение не вернёт удалённую карточку.
	InvalidationTTL = 30 * time.Second

	invalidatedMarker = "invalidated"
)

// CustomerRepository кеширует чтения карточек клиентов (read-through).
// Get читает из Redis, при промахе идёт в хранилище и прогревает кеш.
// Update и Delete сначала пишут в хранилище, затем ставят на ключ метку инвалидации;
// прогрев идёт через SET NX и метку не перезаписывает.
// Сбои Redis не ломают чтение: запрос уходит в хранилище.
type CustomerRepository struct {
	next   domain.CustomerRepository
	cache  Cache
	ttl    time.Duration
	logger *log.Entry
}

// NewCustomerRepository оборачивает next кешем. ttl<=0 заменяется на DefaultTTL.
func NewCustomerRepository(next domain.CustomerRepository, cache Cache, ttl time.Duration, logger *log.Entry) *CustomerRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &CustomerRepository{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.WithField("component", "customer-cache"),
	}
}

type cachedCustomer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *CustomerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	key := r.cache.Key(customerEntity, id)
	logger := r.logger.WithField("customer_id", id)

	raw, hit, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.WithError(err).Warn("customer cache read failed")
	case hit && raw == invalidatedMarker:
	case hit:
		var cached cachedCustomer
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return domain.Customer(cached), nil
		}
		logger.Warn("customer cache entry is corrupted")
		if err := r.cache.Delete(ctx, key); err != nil {
			logger.WithError(err).Warn("failed to drop corrupted customer cache entry")
		}
	}

	customer, err := r.next.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	if payload, err := json.Marshal(cachedCustomer(customer)); err == nil {
		if _, err := r.cache.SetIfAbsent(ctx, key, string(payload), r.ttl); err != nil {
			logger.WithError(err).Warn("customer cache write failed")
		}
	}
	return customer, nil
}

func (r *CustomerRepository) ListAll(ctx context.Context) ([]domain.Customer, error) {
	return r.next.ListAll(ctx)
}

func (r *CustomerRepository) Create(ctx context.Context, customer domain.Customer) error {
	return r.next.Create(ctx, customer)
}

func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if err := r.next.Update(ctx, customer); err != nil {
		return err
	}
	r.invalidate(ctx, customer.ID)
	return nil
}

func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	err := r.next.Delete(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrCustomerNotFound) {
		return err
	}
	// Ключ удаляется и для отсутствующего клиента: в кеше могла остаться устаревшая запись.
	r.invalidate(ctx, id)
	return err
}

func (r *CustomerRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Set(ctx, r.cache.Key(customerEntity, id), invalidatedMarker, InvalidationTTL); err != nil {
		r.logger.WithError(err).WithField("customer_id", id).Warn("customer cache invalidation failed")
	}
}

var _ domain.CustomerRepository = (*CustomerRepository)(nil)
