package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// Catalog описывает YAML-файл начального каталога.
type Catalog struct {
	Customers []CustomerEntry `yaml:"customers"`
	Products  []ProductEntry  `yaml:"products"`
}

// CustomerEntry описывает клиента в файле каталога. ID необязателен; с явным ID повторная загрузка не создаёт дублей.
type CustomerEntry struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Phone string `yaml:"phone"`
}

// ProductEntry описывает товар в файле каталога.
type ProductEntry struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
	Quantity    int     `yaml:"quantity"`
}

// Result считает созданные и пропущенные записи.
type Result struct {
	CustomersCreated int
	ProductsCreated  int
	Skipped          int
}

// LoadFile читает и разбирает файл каталога.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read seed file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse разбирает YAML и проверяет все записи. Неизвестные ключи считаются ошибкой.
func Parse(data []byte) (Catalog, error) {
	var catalog Catalog

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&catalog); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("parse seed YAML: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

// Validate проверяет записи и возвращает все найденные ошибки с номерами записей.
func (c Catalog) Validate() error {
	var errs []error
	for i, entry := range c.Customers {
		customer := entry.customer(time.Time{})
		for _, err := range customer.Validate() {
			errs = append(errs, fmt.Errorf("customers[%d]: %w", i, err))
		}
	}
	for i, entry := range c.Products {
		product := entry.product(time.Time{})
		for _, err := range product.Validate() {
			errs = append(errs, fmt.Errorf("products[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Apply записывает каталог в репозитории. Записи с уже существующим ID пропускаются.
func Apply(ctx context.Context, catalog Catalog, customers domain.CustomerRepository, products domain.ProductRepository, logger *log.Entry) (Result, error) {
	if logger == nil {
		logger = log.WithField("component", "seed")
	}

	var result Result
	now := time.Now().UTC()

	for _, entry := range catalog.Customers {
		customer := entry.customer(now)
		err := customers.Create(ctx, customer)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			result.Skipped++
			logger.WithField("customer_id", customer.ID).Debug("customer already seeded")
		case err != nil:
			return result, fmt.Errorf("seed customer %q: %w", customer.Name, err)
		default:
			result.CustomersCreated++
		}
	}

	for _, entry := range catalog.Products {
		product := entry.product(now)
		err := products.Create(ctx, product)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			result.Skipped++
			logger.WithField("product_id", product.ID).Debug("product already seeded")
		case err != nil:
			return result, fmt.Errorf("seed product %q: %w", product.Name, err)
		default:
			result.ProductsCreated++
		}
	}

	logger.WithFields(log.Fields{
		"customers": result.CustomersCreated,
		"products":  result.ProductsCreated,
		"skipped":   result.Skipped,
	}).Info("catalog seeded")
	return result, nil
}

func (e CustomerEntry) customer(now time.Time) domain.Customer {
	return domain.Customer{
		ID:        idOrNew(e.ID),
		Name:      strings.TrimSpace(e.Name),
		Email:     strings.TrimSpace(e.Email),
		Phone:     strings.TrimSpace(e.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (e ProductEntry) product(now time.Time) domain.Product {
	return domain.Product{
		ID:          idOrNew(e.ID),
		Name:        strings.TrimSpace(e.Name),
		Description: strings.TrimSpace(e.Description),
		UnitPrice:   e.Price,
		Quantity:    e.Quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func idOrNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
