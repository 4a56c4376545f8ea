package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// ProductInput содержит поля карточки товара.
type ProductInput struct {
	Name        string
	Description string
	UnitPrice   float64
	Quantity    int
}

// ProductService управляет каталогом товаров и их остатками.
type ProductService struct {
	repo   domain.ProductRepository
	logger *log.Entry
	now    func() time.Time
}

// NewProductService создаёт сервис товаров.
func NewProductService(repo domain.ProductRepository, logger *log.Entry) *ProductService {
	if logger == nil {
		logger = log.WithField("component", "product-catalog")
	}
	return &ProductService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create сохраняет новый товар с начальным остатком.
func (s *ProductService) Create(ctx context.Context, input ProductInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		UnitPrice:   input.UnitPrice,
		Quantity:    input.Quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"quantity":   product.Quantity,
	}).Info("product created")
	return product, nil
}

// Update перезаписывает карточку товара, включая остаток.
func (s *ProductService) Update(ctx context.Context, id string, input ProductInput) (domain.Product, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	current.Name = strings.TrimSpace(input.Name)
	current.Description = strings.TrimSpace(input.Description)
	current.UnitPrice = input.UnitPrice
	current.Quantity = input.Quantity
	current.UpdatedAt = s.now()
	if errs := current.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.repo.Update(ctx, current); err != nil {
		return domain.Product{}, err
	}
	return current, nil
}

// Delete удаляет товар. Позиции прошлых заказов хранят снимок и не затрагиваются.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

// Get возвращает товар по идентификатору.
func (s *ProductService) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.Get(ctx, id)
}

// List возвращает весь каталог.
func (s *ProductService) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListAll(ctx)
}

// ListAvailable возвращает товары, которые есть на складе.
func (s *ProductService) ListAvailable(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListAvailable(ctx)
}
