package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/metrics"
)

// Service реализует сценарии работы с заказами: оформление, отмену,
// смену статуса доставки и выборку с именами клиентов.
type Service struct {
	products  domain.ProductRepository
	customers domain.CustomerRepository
	orders    domain.OrderRepository
	outbox    domain.OutboxRepository
	guard     StockGuard
	logger    *log.Entry
	metrics   *metrics.OrderMetrics
	now       func() time.Time
	newID     func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithOutbox включает запись событий заказа в outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithStockGuard задаёт режим списания остатков.
func WithStockGuard(guard StockGuard) Option {
	return func(s *Service) {
		s.guard = guard
	}
}

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики. Без них сервис метрики не пишет.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService создаёт сервис заказов поверх репозиториев.
func NewService(
	products domain.ProductRepository,
	customers domain.CustomerRepository,
	orders domain.OrderRepository,
	options ...Option,
) *Service {
	s := &Service{
		products:  products,
		customers: customers,
		orders:    orders,
		guard:     StockGuardAtomic,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "order-workflow")
	}
	if !s.guard.Valid() {
		s.guard = StockGuardAtomic
	}
	return s
}

// CancelOrder возвращает остатки по всем позициям и затем удаляет заказ.
func (s *Service) CancelOrder(ctx context.Context, id string) error {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}

	logger := s.logger.WithField("order_id", order.ID)
	restored := make([]domain.OrderLine, 0, len(order.Lines))
	units := 0
	for _, line := range order.Lines {
		err := s.products.ApplyQuantityDelta(ctx, line.ProductID, line.Quantity)
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			logger.WithField("product_id", line.ProductID).Debug("product removed, stock restore skipped")
			continue
		case err != nil:
			return fmt.Errorf("restore stock for product %s: %w", line.ProductID, err)
		}
		restored = append(restored, line)
		units += line.Quantity
	}

	if err := s.orders.Delete(ctx, order.ID); err != nil {
		return fmt.Errorf("delete order %s: %w", order.ID, err)
	}

	s.metrics.RecordCancelled()
	s.metrics.RecordStockUnits(metrics.StockRestore, units)
	s.emit(ctx, domain.EventOrderCancelled, order.ID, domain.OrderCancelledEvent{
		OrderID:     order.ID,
		Restored:    domain.LineEvents(restored),
		CancelledAt: s.now(),
	})

	logger.WithField("restored_units", units).Info("order cancelled")
	return nil
}

// UpdateDeliveryStatus выставляет статус доставки. Допустим переход из любого статуса в любой.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, id, status string) (domain.Order, error) {
	next, err := domain.ParseDeliveryStatus(status)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	previous := order.DeliveryStatus

	if err := s.orders.UpdateDeliveryStatus(ctx, order.ID, next); err != nil {
		return domain.Order{}, err
	}
	order.DeliveryStatus = next

	s.metrics.RecordDeliveryStatusChange(string(next))
	s.emit(ctx, domain.EventOrderDeliveryStatusChanged, order.ID, domain.DeliveryStatusChangedEvent{
		OrderID:   order.ID,
		Previous:  previous,
		Current:   next,
		ChangedAt: s.now(),
	})

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"previous": previous,
		"current":  next,
	}).Info("delivery status updated")
	return order, nil
}

// ListOrders возвращает заказы по фильтру статуса доставки, от новых к старым.
// "" и "all" означают все заказы.
func (s *Service) ListOrders(ctx context.Context, filter string) ([]domain.OrderView, error) {
	orders, err := s.orders.List(ctx, domain.NewOrderFilter(filter))
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	views := make([]domain.OrderView, 0, len(orders))
	for _, order := range orders {
		name, ok := names[order.CustomerID]
		if !ok {
			name = s.customerName(ctx, order.CustomerID)
			names[order.CustomerID] = name
		}
		views = append(views, domain.OrderView{Order: order, CustomerName: name})
	}
	return views, nil
}

// GetOrder возвращает один заказ с именем клиента.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.OrderView, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.OrderView{}, err
	}
	return domain.OrderView{Order: order, CustomerName: s.customerName(ctx, order.CustomerID)}, nil
}

// customerName не возвращает ошибок: любой сбой разрешения даёт RemovedCustomerLabel.
func (s *Service) customerName(ctx context.Context, customerID string) string {
	if strings.TrimSpace(customerID) == "" {
		return domain.RemovedCustomerLabel
	}

	customer, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if !errors.Is(err, domain.ErrCustomerNotFound) {
			s.logger.WithError(err).WithField("customer_id", customerID).Warn("customer lookup failed")
		}
		return domain.RemovedCustomerLabel
	}
	return customer.Name
}

func (s *Service) emit(ctx context.Context, eventType, orderID string, event any) {
	if s.outbox == nil {
		return
	}

	logger := s.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"event_type": eventType,
	})

	payload, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("failed to marshal order event")
		return
	}

	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		logger.WithError(err).Warn("failed to enqueue order event")
		return
	}
	s.metrics.RecordOutboxEnqueued(eventType)
}
