package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

func TestOrderRepository_PostgresCreateGetListAndDelete(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	older := sampleOrder("order-1", now.Add(-2*time.Minute), domain.DeliveryStatusDelivered)
	older.DeliveryAddress = &domain.DeliveryAddress{Street: "Rua A", Number: "10", City: "Recife"}
	newer := sampleOrder("order-2", now.Add(-time.Minute), domain.DeliveryStatusPending)

	for _, order := range []domain.Order{older, newer} {
		if err := repo.Create(ctx, order); err != nil {
			t.Fatalf("create %s: %v", order.ID, err)
		}
	}
	if err := repo.Create(ctx, older); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate id, got %v", err)
	}

	got, err := repo.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.CustomerID != older.CustomerID || got.Status != domain.OrderStatusConfirmed || got.Total != older.Total {
		t.Fatalf("unexpected order payload: %+v", got)
	}
	if len(got.Lines) != 2 || got.Lines[0].ProductID != "p-1" || got.Lines[1].Subtotal != 7.5 {
		t.Fatalf("unexpected lines: %+v", got.Lines)
	}
	if got.DeliveryAddress == nil || got.DeliveryAddress.City != "Recife" {
		t.Fatalf("unexpected address: %+v", got.DeliveryAddress)
	}

	all, err := repo.List(ctx, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != newer.ID || all[0].DeliveryAddress != nil || len(all[1].Lines) != 2 {
		t.Fatalf("unexpected list result: %+v", all)
	}

	delivered, err := repo.List(ctx, domain.NewOrderFilter("delivered"))
	if err != nil {
		t.Fatalf("list delivered: %v", err)
	}
	if len(delivered) != 1 || delivered[0].ID != older.ID {
		t.Fatalf("unexpected delivered list: %+v", delivered)
	}

	if err := repo.UpdateDeliveryStatus(ctx, newer.ID, domain.DeliveryStatusInTransit); err != nil {
		t.Fatalf("update delivery status: %v", err)
	}
	updated, err := repo.Get(ctx, newer.ID)
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if updated.DeliveryStatus != domain.DeliveryStatusInTransit {
		t.Fatalf("expected in-transit, got %s", updated.DeliveryStatus)
	}

	if err := repo.Delete(ctx, older.ID); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if _, err := repo.Get(ctx, older.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound after delete, got %v", err)
	}

	var lines int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM order_lines WHERE order_id = $1`, older.ID).Scan(&lines); err != nil {
		t.Fatalf("count lines: %v", err)
	}
	if lines != 0 {
		t.Fatalf("expected lines removed with order, got %d", lines)
	}
}

func TestOrderRepository_PostgresMissingOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on get, got %v", err)
	}
	if err := repo.UpdateDeliveryStatus(ctx, "missing", domain.DeliveryStatusDelivered); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on update, got %v", err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on delete, got %v", err)
	}

	empty, err := repo.List(ctx, domain.NewOrderFilter("unknown-status"))
	if err != nil {
		t.Fatalf("list with unknown status: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty list, got %d", len(empty))
	}
}

func sampleOrder(id string, createdAt time.Time, status domain.DeliveryStatus) domain.Order {
	return domain.Order{
		ID:         id,
		CustomerID: "customer-1",
		CreatedAt:  createdAt,
		Lines: []domain.OrderLine{
			{ProductID: "p-1", Name: "Caneta", Quantity: 4, UnitPrice: 5, Subtotal: 20},
			{ProductID: "p-2", Name: "Borracha", Quantity: 5, UnitPrice: 1.5, Subtotal: 7.5},
		},
		Total:          27.5,
		Status:         domain.OrderStatusConfirmed,
		DeliveryStatus: status,
	}
}
