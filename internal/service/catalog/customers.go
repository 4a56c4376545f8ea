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

// CustomerInput содержит поля карточки клиента, которые задаёт пользователь.
type CustomerInput struct {
	Name  string
	Email string
	Phone string
}

// CustomerService управляет карточками клиентов.
type CustomerService struct {
	repo   domain.CustomerRepository
	logger *log.Entry
	now    func() time.Time
}

// NewCustomerService создаёт сервис клиентов. repo может быть обёрнут кэшем.
func NewCustomerService(repo domain.CustomerRepository, logger *log.Entry) *CustomerService {
	if logger == nil {
		logger = log.WithField("component", "customer-catalog")
	}
	return &CustomerService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create проверяет обязательные поля и сохраняет нового клиента.
func (s *CustomerService) Create(ctx context.Context, input CustomerInput) (domain.Customer, error) {
	now := s.now()
	customer := domain.Customer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.TrimSpace(input.Email),
		Phone:     strings.TrimSpace(input.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := customer.Validate(); len(errs) > 0 {
		return domain.Customer{}, errors.Join(errs...)
	}

	if err := s.repo.Create(ctx, customer); err != nil {
		return domain.Customer{}, err
	}

	s.logger.WithField("customer_id", customer.ID).Info("customer created")
	return customer, nil
}

// Update перезаписывает поля клиента. ErrCustomerNotFound, если клиента нет.
func (s *CustomerService) Update(ctx context.Context, id string, input CustomerInput) (domain.Customer, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}

	current.Name = strings.TrimSpace(input.Name)
	current.Email = strings.TrimSpace(input.Email)
	current.Phone = strings.TrimSpace(input.Phone)
	current.UpdatedAt = s.now()
	if errs := current.Validate(); len(errs) > 0 {
		return domain.Customer{}, errors.Join(errs...)
	}

	if err := s.repo.Update(ctx, current); err != nil {
		return domain.Customer{}, err
	}
	return current, nil
}

// Delete удаляет клиента. Заказы клиента остаются и показываются как "removed customer".
func (s *CustomerService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("customer_id", id).Info("customer deleted")
	return nil
}

// Get возвращает клиента по идентификатору.
func (s *CustomerService) Get(ctx context.Context, id string) (domain.Customer, error) {
	return s.repo.Get(ctx, id)
}

// List возвращает всех клиентов.
func (s *CustomerService) List(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListAll(ctx)
}
