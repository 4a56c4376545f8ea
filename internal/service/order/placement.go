package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/metrics"
)

// compensationTimeout ограничивает возврат остатков, который выполняется даже после отмены запроса.
const compensationTimeout = 5 * time.Second

// LineRequest описывает запрошенную позицию.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest содержит входные данные оформления.
type PlaceOrderRequest struct {
	CustomerID      string
	Lines           []LineRequest
	DeliveryAddress *domain.DeliveryAddress
}

// PlaceOrder проверяет все позиции, списывает остатки и сохраняет заказ.
// Ошибки позиций накапливаются и возвращаются вместе как *domain.PlacementError;
// при любой ошибке остатки не меняются и заказ не создаётся.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (order domain.Order, err error) {
	start := s.now()
	logger := s.logger.WithField("customer_id", req.CustomerID)
	defer func() {
		s.metrics.RecordPlacementDuration(s.now().Sub(start))
		if err != nil {
			s.metrics.RecordRejected(string(domain.KindOf(err)))
			logger.WithError(err).Info("order placement rejected")
		}
	}()

	if strings.TrimSpace(req.CustomerID) == "" {
		return domain.Order{}, domain.ErrCustomerRequired
	}

	lines, err := s.validateLines(ctx, mergeLines(req.Lines))
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.applyStock(ctx, lines); err != nil {
		return domain.Order{}, err
	}

	order = domain.Order{
		ID:             s.newID(),
		CustomerID:     req.CustomerID,
		CreatedAt:      s.now(),
		Lines:          lines,
		Status:         domain.OrderStatusConfirmed,
		DeliveryStatus: domain.DeliveryStatusPending,
	}
	order.Total = order.LinesTotal()
	if req.DeliveryAddress != nil && !req.DeliveryAddress.IsZero() {
		address := *req.DeliveryAddress
		order.DeliveryAddress = &address
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.compensate(ctx, lines)
		return domain.Order{}, fmt.Errorf("order invariants: %w", errors.Join(errs...))
	}

	if err := s.orders.Create(ctx, order); err != nil {
		s.compensate(ctx, lines)
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	units := 0
	for _, line := range lines {
		units += line.Quantity
	}
	s.metrics.RecordPlaced()
	s.metrics.RecordStockUnits(metrics.StockDecrement, units)
	s.emit(ctx, domain.EventOrderPlaced, order.ID, domain.OrderPlacedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Total:      order.Total,
		Lines:      domain.LineEvents(order.Lines),
		PlacedAt:   order.CreatedAt,
	})

	logger.WithFields(log.Fields{
		"order_id": order.ID,
		"lines":    len(order.Lines),
		"total":    order.Total,
	}).Info("order placed")
	return order, nil
}

// mergeLines отбрасывает позиции с количеством <= 0 и складывает повторы одного товара.
// Порядок первых вхождений сохраняется. Сумма насыщается на MaxLineQuantity+1, такую позицию
// отклоняет validateLines.
func mergeLines(requested []LineRequest) []LineRequest {
	merged := make([]LineRequest, 0, len(requested))
	index := make(map[string]int, len(requested))
	for _, line := range requested {
		if line.Quantity <= 0 {
			continue
		}
		quantity := min(line.Quantity, domain.MaxLineQuantity+1)
		productID := strings.TrimSpace(line.ProductID)
		if i, ok := index[productID]; ok {
			merged[i].Quantity = min(merged[i].Quantity+quantity, domain.MaxLineQuantity+1)
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, LineRequest{ProductID: productID, Quantity: quantity})
	}
	return merged
}

// validateLines сверяет каждую позицию с текущим остатком, не останавливаясь на первой ошибке.
func (s *Service) validateLines(ctx context.Context, requested []LineRequest) ([]domain.OrderLine, error) {
	var (
		accepted   = make([]domain.OrderLine, 0, len(requested))
		lineErrors []domain.LineError
	)

	for _, line := range requested {
		if line.Quantity > domain.MaxLineQuantity {
			lineErrors = append(lineErrors, domain.LineError{ProductID: line.ProductID, Err: domain.ErrLineQuantityInvalid})
			continue
		}
		product, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			lineErrors = append(lineErrors, domain.LineError{ProductID: line.ProductID, Err: err})
			continue
		}
		if product.Quantity < line.Quantity {
			lineErrors = append(lineErrors, domain.LineError{
				ProductID: line.ProductID,
				Available: product.Quantity,
				Err:       domain.ErrStockInsufficient,
			})
			continue
		}

		accepted = append(accepted, domain.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.UnitPrice,
			Subtotal:  product.UnitPrice * float64(line.Quantity),
		})
	}

	if len(lineErrors) > 0 {
		return nil, &domain.PlacementError{Lines: lineErrors}
	}
	if len(accepted) == 0 {
		return nil, domain.ErrNoProductsSelected
	}
	return accepted, nil
}

// applyStock списывает остатки по позициям по очереди. Если одно из списаний не прошло,
// уже выполненные возвращаются.
func (s *Service) applyStock(ctx context.Context, lines []domain.OrderLine) error {
	for i, line := range lines {
		lineErr := s.decrement(ctx, line)
		if lineErr == nil {
			continue
		}

		s.compensate(ctx, lines[:i])
		return &domain.PlacementError{Lines: []domain.LineError{*lineErr}}
	}
	return nil
}

func (s *Service) decrement(ctx context.Context, line domain.OrderLine) *domain.LineError {
	if s.guard == StockGuardLegacy {
		if err := s.products.ApplyQuantityDelta(ctx, line.ProductID, -line.Quantity); err != nil {
			return &domain.LineError{ProductID: line.ProductID, Err: err}
		}
		return nil
	}

	available, err := s.products.DecrementIfAvailable(ctx, line.ProductID, line.Quantity)
	switch {
	case errors.Is(err, domain.ErrStockInsufficient):
		return &domain.LineError{ProductID: line.ProductID, Available: available, Err: domain.ErrStockInsufficient}
	case err != nil:
		return &domain.LineError{ProductID: line.ProductID, Err: err}
	}
	return nil
}

// compensate возвращает ранее списанные остатки. Отмена ctx запроса на возврат не влияет,
// его ограничивает compensationTimeout. Ошибки только логируются.
func (s *Service) compensate(ctx context.Context, lines []domain.OrderLine) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	units := 0
	for _, line := range lines {
		if err := s.products.ApplyQuantityDelta(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
			}).Error("failed to compensate stock decrement")
			continue
		}
		units += line.Quantity
	}
	s.metrics.RecordStockUnits(metrics.StockCompensate, units)
}
