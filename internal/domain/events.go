package domain

import "time"

// OrderLineEvent описывает позицию заказа в событиях.
type OrderLineEvent struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderPlacedEvent публикуется после оформления заказа и списания остатков.
type OrderPlacedEvent struct {
	OrderID    string           `json:"order_id"`
	CustomerID string           `json:"customer_id"`
	Total      float64          `json:"total"`
	Lines      []OrderLineEvent `json:"lines"`
	PlacedAt   time.Time        `json:"placed_at"`
}

// OrderCancelledEvent публикуется после возврата остатков и удаления заказа.
type OrderCancelledEvent struct {
	OrderID string `json:"order_id"`
	// Restored — позиции, остаток по которым был возвращён. Удалённые товары сюда не попадают.
	Restored    []OrderLineEvent `json:"restored"`
	CancelledAt time.Time        `json:"cancelled_at"`
}

// DeliveryStatusChangedEvent публикуется при смене статуса доставки.
type DeliveryStatusChangedEvent struct {
	OrderID   string         `json:"order_id"`
	Previous  DeliveryStatus `json:"previous"`
	Current   DeliveryStatus `json:"current"`
	ChangedAt time.Time      `json:"changed_at"`
}

// LineEvents переводит позиции заказа в вид для событий.
func LineEvents(lines []OrderLine) []OrderLineEvent {
	result := make([]OrderLineEvent, 0, len(lines))
	for _, line := range lines {
		result = append(result, OrderLineEvent{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return result
}
