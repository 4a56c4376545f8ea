package domain

import "context"

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// ListAll возвращает весь каталог.
	ListAll(ctx context.Context) ([]Product, error)
	// ListAvailable возвращает товары с остатком > 0.
	ListAvailable(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, product Product) error
	// Update перезаписывает карточку товара целиком, включая остаток.
	Update(ctx context.Context, product Product) error
	Delete(ctx context.Context, id string) error
	// ApplyQuantityDelta безусловно прибавляет delta к остатку. ErrProductNotFound, если товара нет.
	ApplyQuantityDelta(ctx context.Context, id string, delta int) error
	// DecrementIfAvailable атомарно списывает qty, только если остаток >= qty.
	// Возвращает ErrStockInsufficient вместе с текущим остатком при нехватке.
	DecrementIfAvailable(ctx context.Context, id string, qty int) (available int, err error)
}

// CustomerRepository описывает требования к хранилищу клиентов.
type CustomerRepository interface {
	// Get возвращает клиента или ErrCustomerNotFound.
	Get(ctx context.Context, id string) (Customer, error)
	ListAll(ctx context.Context) ([]Customer, error)
	Create(ctx context.Context, customer Customer) error
	Update(ctx context.Context, customer Customer) error
	Delete(ctx context.Context, id string) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. ErrAlreadyExists, если ID занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы по фильтру, от новых к старым.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// UpdateDeliveryStatus меняет только статус доставки.
	UpdateDeliveryStatus(ctx context.Context, id string, status DeliveryStatus) error
	// Delete удаляет заказ. ErrOrderNotFound, если его нет.
	Delete(ctx context.Context, id string) error
}
