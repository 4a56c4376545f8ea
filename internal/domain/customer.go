package domain

import (
	"strings"
	"time"
)

// Customer описывает карточку клиента. Email не уникален, телефон необязателен.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет обязательные поля клиента и возвращает список замечаний.
func (c *Customer) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ErrCustomerNameRequired)
	}
	if strings.TrimSpace(c.Email) == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	}

	return errs
}
