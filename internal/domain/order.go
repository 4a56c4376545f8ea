package domain

import (
	"math"
	"strings"
	"time"
)

// MaxLineQuantity ограничивает количество одной позиции диапазоном колонки INTEGER.
const MaxLineQuantity = math.MaxInt32

// OrderStatus описывает общий статус заказа.
type OrderStatus string

const (
	// OrderStatusPending — начальный статус ранних версий приложения, встречается в старых данных.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ оформлен, остатки списаны.
	OrderStatusConfirmed OrderStatus = "confirmed"
)

// DeliveryStatus отслеживает физическую доставку отдельно от статуса заказа.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusInTransit DeliveryStatus = "in-transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// DeliveryStatusAll — значение фильтра, означающее "без фильтрации".
const DeliveryStatusAll = "all"

// DeliveryStatuses возвращает допустимые статусы доставки в порядке жизненного цикла.
func DeliveryStatuses() []DeliveryStatus {
	return []DeliveryStatus{
		DeliveryStatusPending,
		DeliveryStatusInTransit,
		DeliveryStatusDelivered,
		DeliveryStatusCancelled,
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusInTransit, DeliveryStatusDelivered, DeliveryStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseDeliveryStatus разбирает строку статуса доставки.
func ParseDeliveryStatus(raw string) (DeliveryStatus, error) {
	status := DeliveryStatus(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", ErrInvalidDeliveryStatus
	}
	return status, nil
}

// DeliveryAddress хранит структурированный адрес доставки.
type DeliveryAddress struct {
	Street       string
	Number       string
	Neighborhood string
	City         string
}

// IsZero сообщает, что адрес не заполнен.
func (a DeliveryAddress) IsZero() bool {
	return a == DeliveryAddress{}
}

// OrderLine — позиция заказа со снимком названия и цены на момент оформления.
type OrderLine struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice float64
	Subtotal  float64
}

// Order агрегирует позиции заказа, итог и статусы.
type Order struct {
	ID             string
	CustomerID     string
	CreatedAt      time.Time
	Lines          []OrderLine
	Total          float64
	Status         OrderStatus
	DeliveryStatus DeliveryStatus
	// DeliveryAddress равен nil, если адрес не передан.
	DeliveryAddress *DeliveryAddress
}

// LinesTotal пересчитывает сумму подытогов позиций.
func (o *Order) LinesTotal() float64 {
	var total float64
	for _, line := range o.Lines {
		total += line.Subtotal
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.CustomerID) == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrNoProductsSelected)
	}
	for _, line := range o.Lines {
		if line.Quantity <= 0 || line.Quantity > MaxLineQuantity {
			errs = append(errs, LineError{ProductID: line.ProductID, Err: ErrLineQuantityInvalid})
		}
	}
	if o.DeliveryStatus != "" && !o.DeliveryStatus.Valid() {
		errs = append(errs, ErrInvalidDeliveryStatus)
	}

	return errs
}

// OrderFilter задаёт выборку заказов. Пустой DeliveryStatus выбирает все заказы.
type OrderFilter struct {
	DeliveryStatus DeliveryStatus
}

// NewOrderFilter строит фильтр из пользовательского значения; "" и "all" означают все заказы.
func NewOrderFilter(raw string) OrderFilter {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, DeliveryStatusAll) {
		return OrderFilter{}
	}
	return OrderFilter{DeliveryStatus: DeliveryStatus(raw)}
}

// Matches проверяет, попадает ли заказ в выборку.
func (f OrderFilter) Matches(order Order) bool {
	return f.DeliveryStatus == "" || order.DeliveryStatus == f.DeliveryStatus
}

// RemovedCustomerLabel подставляется вместо имени, если клиент удалён или не найден.
const RemovedCustomerLabel = "removed customer"

// OrderView дополняет заказ именем клиента, разрешённым на момент чтения.
type OrderView struct {
	Order
	CustomerName string
}
