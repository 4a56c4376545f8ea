package domain

import (
	"strings"
	"time"
)

// Product — товар каталога с остатком на складе.
type Product struct {
	ID          string
	Name        string
	Description string
	// UnitPrice не проверяется на неотрицательность.
	UnitPrice float64
	// Quantity — остаток на складе. С атомарным списанием не опускается ниже нуля.
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available сообщает, есть ли товар в наличии.
func (p *Product) Available() bool {
	return p.Quantity > 0
}

// Validate проверяет поля товара перед сохранением.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrProductQuantityInvalid)
	}

	return errs
}
