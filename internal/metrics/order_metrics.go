package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Направления движения остатка для ims_stock_units_total.
const (
	StockDecrement = "decrement"
	StockRestore   = "restore"
	// StockCompensate — возврат списания, откаченного при неудачном оформлении.
	StockCompensate = "compensate"
)

// OrderMetrics содержит метрики сценариев работы с заказами.
// Все методы безопасно вызывать на nil.
type OrderMetrics struct {
	ordersPlaced    prometheus.Counter
	ordersRejected  *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	deliveryChanges *prometheus.CounterVec
	stockUnits      *prometheus.CounterVec
	outboxEnqueued  *prometheus.CounterVec

	placementDuration prometheus.Histogram
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация переиспользует уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersPlaced: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ims_orders_placed_total",
			Help: "Total number of orders placed successfully",
		})),
		ordersRejected: Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ims_orders_rejected_total",
			Help: "Total number of rejected order placements by error kind",
		}, []string{"reason"})),
		ordersCancelled: Register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ims_orders_cancelled_total",
			Help: "Total number of cancelled orders",
		})),
		deliveryChanges: Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ims_order_delivery_status_changes_total",
			Help: "Total number of delivery status updates by target status",
		}, []string{"status"})),
		stockUnits: Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ims_stock_units_total",
			Help: "Stock units moved by order workflow, by direction",
		}, []string{"direction"})),
		outboxEnqueued: Register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ims_outbox_enqueued_total",
			Help: "Total number of order events written to outbox",
		}, []string{"event_type"})),
		placementDuration: Register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ims_order_placement_duration_seconds",
			Help:    "Duration of order placement in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		})),
	}
}

// Register регистрирует collector и возвращает его. Если коллектор с тем же
// описанием уже зарегистрирован, возвращается существующий. При nil registerer
// коллектор возвращается без регистрации.
func Register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if registerer == nil {
		return collector
	}
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordPlaced фиксирует успешно оформленный заказ.
func (m *OrderMetrics) RecordPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// RecordRejected фиксирует отказ в оформлении; reason равен виду ошибки.
func (m *OrderMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

// RecordCancelled фиксирует отмену заказа.
func (m *OrderMetrics) RecordCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// RecordDeliveryStatusChange фиксирует смену статуса доставки.
func (m *OrderMetrics) RecordDeliveryStatusChange(status string) {
	if m == nil {
		return
	}
	m.deliveryChanges.WithLabelValues(status).Inc()
}

// RecordStockUnits добавляет units к счётчику движения остатка.
func (m *OrderMetrics) RecordStockUnits(direction string, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.stockUnits.WithLabelValues(direction).Add(float64(units))
}

// RecordOutboxEnqueued фиксирует запись события в outbox.
func (m *OrderMetrics) RecordOutboxEnqueued(eventType string) {
	if m == nil {
		return
	}
	m.outboxEnqueued.WithLabelValues(eventType).Inc()
}

// RecordPlacementDuration записывает длительность оформления заказа.
func (m *OrderMetrics) RecordPlacementDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.placementDuration.Observe(duration.Seconds())
}
