package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCustomerRequired — в заказе не указан идентификатор клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// ErrCustomerNameRequired — у клиента не заполнено имя.
	ErrCustomerNameRequired = errors.New("customer name is required")
	// ErrCustomerEmailRequired — у клиента не заполнен email.
	ErrCustomerEmailRequired = errors.New("customer email is required")
	// ErrCustomerNotFound возвращается, если клиента нет в репозитории.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrProductNameRequired — у товара не заполнено название.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrProductQuantityInvalid — отрицательный остаток при создании/редактировании товара.
	ErrProductQuantityInvalid = errors.New("product quantity must be non-negative")
	// ErrProductPriceRequired — цена не передана при создании или редактировании товара.
	ErrProductPriceRequired = errors.New("product price is required")
	// ErrProductQuantityRequired — остаток не передан при создании или редактировании товара.
	ErrProductQuantityRequired = errors.New("product quantity is required")
	// ErrProductNotFound возвращается, если товара нет в репозитории.
	ErrProductNotFound = errors.New("product not found")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNoProductsSelected — в заказе нет ни одной позиции с количеством > 0.
	ErrNoProductsSelected = errors.New("no products selected")
	// ErrInvalidDeliveryStatus — статус доставки вне допустимого набора.
	ErrInvalidDeliveryStatus = errors.New("invalid status")
	// ErrLineQuantityInvalid — количество позиции не положительно или превышает MaxLineQuantity.
	ErrLineQuantityInvalid = errors.New("line quantity is out of range")
	// ErrStockInsufficient — на складе меньше единиц, чем запрошено.
	ErrStockInsufficient = errors.New("insufficient stock")

	// ErrAlreadyExists — запись с таким ID уже есть в хранилище.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrStorageUnavailable — хранилище недоступно (соединение, таймаут).
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// ErrorKind классифицирует ошибки для внешнего слоя (HTTP-коды, метрики).
type ErrorKind string

const (
	KindUnknown               ErrorKind = "unknown"
	KindNotFound              ErrorKind = "not_found"
	KindValidationFailed      ErrorKind = "validation_failed"
	KindStockInsufficient     ErrorKind = "stock_insufficient"
	KindConnectionUnavailable ErrorKind = "connection_unavailable"
)

// KindOf определяет вид ошибки, учитывая обёртки и агрегированные ошибки размещения.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var placement *PlacementError
	if errors.As(err, &placement) {
		return placement.Kind()
	}

	switch {
	case errors.Is(err, ErrStorageUnavailable):
		return KindConnectionUnavailable
	case errors.Is(err, ErrStockInsufficient):
		return KindStockInsufficient
	case errors.Is(err, ErrCustomerNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrOrderNotFound):
		return KindNotFound
	case errors.Is(err, ErrNoProductsSelected),
		errors.Is(err, ErrInvalidDeliveryStatus),
		errors.Is(err, ErrLineQuantityInvalid),
		errors.Is(err, ErrCustomerRequired),
		errors.Is(err, ErrCustomerNameRequired),
		errors.Is(err, ErrCustomerEmailRequired),
		errors.Is(err, ErrProductNameRequired),
		errors.Is(err, ErrProductQuantityInvalid),
		errors.Is(err, ErrProductPriceRequired),
		errors.Is(err, ErrProductQuantityRequired):
		return KindValidationFailed
	default:
		return KindUnknown
	}
}

// IsIdempotencyConflict проверяет, что ключ уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// LineError описывает проблему с одной позицией заказа.
type LineError struct {
	ProductID string
	// Available заполняется только для ошибок нехватки остатка.
	Available int
	Err       error
}

func (e LineError) Error() string {
	if errors.Is(e.Err, ErrStockInsufficient) {
		return fmt.Sprintf("product %s: insufficient stock: available %d", e.ProductID, e.Available)
	}
	return fmt.Sprintf("product %s: %v", e.ProductID, e.Err)
}

// Message возвращает текст ошибки без идентификатора товара.
func (e LineError) Message() string {
	if errors.Is(e.Err, ErrStockInsufficient) {
		return fmt.Sprintf("insufficient stock: available %d", e.Available)
	}
	return e.Err.Error()
}

func (e LineError) Unwrap() error { return e.Err }

// PlacementError агрегирует все ошибки позиций, найденные при проверке заказа.
type PlacementError struct {
	Lines []LineError
}

func (e *PlacementError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		parts = append(parts, line.Error())
	}
	return "order placement rejected: " + strings.Join(parts, "; ")
}

// Unwrap позволяет errors.Is находить причины внутри агрегата.
func (e *PlacementError) Unwrap() []error {
	errs := make([]error, 0, len(e.Lines))
	for _, line := range e.Lines {
		errs = append(errs, line)
	}
	return errs
}

// Kind возвращает вид агрегата: недоступность хранилища > нехватка остатка > товар не найден.
func (e *PlacementError) Kind() ErrorKind {
	kind := KindValidationFailed
	for _, line := range e.Lines {
		switch {
		case errors.Is(line.Err, ErrStorageUnavailable):
			return KindConnectionUnavailable
		case errors.Is(line.Err, ErrStockInsufficient):
			kind = KindStockInsufficient
		case errors.Is(line.Err, ErrProductNotFound) && kind != KindStockInsufficient:
			kind = KindNotFound
		}
	}
	return kind
}
