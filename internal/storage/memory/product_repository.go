package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// productRepositoryInMemory — in-memory каталог товаров.
// Каждая операция атомарна под мьютексом, как одиночная запись в документной БД.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory репозиторий товаров для локальной разработки и тестов.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) ListAll(_ context.Context) ([]domain.Product, error) {
	return r.list(func(domain.Product) bool { return true }), nil
}

func (r *productRepositoryInMemory) ListAvailable(_ context.Context) ([]domain.Product, error) {
	return r.list(func(p domain.Product) bool { return p.Available() }), nil
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[product.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.items[product.ID] = product
	return nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.CreatedAt = current.CreatedAt
	r.items[product.ID] = product
	return nil
}

func (r *productRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.items, id)
	return nil
}

// ApplyQuantityDelta меняет остаток без проверки итогового значения.
func (r *productRepositoryInMemory) ApplyQuantityDelta(_ context.Context, id string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Quantity += delta
	r.items[id] = product
	return nil
}

func (r *productRepositoryInMemory) DecrementIfAvailable(_ context.Context, id string, qty int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	if product.Quantity < qty {
		return product.Quantity, domain.ErrStockInsufficient
	}
	product.Quantity -= qty
	r.items[id] = product
	return product.Quantity, nil
}

func (r *productRepositoryInMemory) list(keep func(domain.Product) bool) []domain.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(r.items))
	for _, product := range r.items {
		if keep(product) {
			result = append(result, product)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
