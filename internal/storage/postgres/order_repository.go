package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

const orderColumns = `id, customer_id, status, delivery_status, total,
	delivery_street, delivery_number, delivery_neighborhood, delivery_city, created_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create сохраняет заказ и его позиции в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var street, number, neighborhood, city sql.NullString
	if addr := order.DeliveryAddress; addr != nil {
		street = sql.NullString{String: addr.Street, Valid: true}
		number = sql.NullString{String: addr.Number, Valid: true}
		neighborhood = sql.NullString{String: addr.Neighborhood, Valid: true}
		city = sql.NullString{String: addr.City, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, order.CustomerID, string(order.Status), string(order.DeliveryStatus), order.Total,
		street, number, neighborhood, city, order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return wrapErr("insert order", err)
	}

	for i, line := range order.Lines {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				order_id, line_no, product_id, name, quantity, unit_price, subtotal
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			order.ID, i, line.ProductID, line.Name, line.Quantity, line.UnitPrice, line.Subtotal,
		); err != nil {
			return wrapErr("insert order line", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return wrapErr("commit create order", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, wrapErr("select order", err)
	}

	lines, err := r.loadLines(ctx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[order.ID]
	return order, nil
}

// List возвращает заказы по фильтру, от новых к старым; позиции подгружаются одним запросом.
func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders`
	args := make([]any, 0, 1)
	if filter.DeliveryStatus != "" {
		query += ` WHERE delivery_status = $1`
		args = append(args, string(filter.DeliveryStatus))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, wrapErr("scan order row", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate order rows", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	lines, err := r.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (r *orderRepository) UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET delivery_status = $2
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return wrapErr("update order delivery status", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

// Delete удаляет заказ; позиции удаляются каскадно.
func (r *orderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return wrapErr("delete order", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) loadLines(ctx context.Context, orderIDs []string) (map[string][]domain.OrderLine, error) {
	// pgx stdlib кодирует []string как text[].
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, quantity, unit_price, subtotal
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no
	`, orderIDs)
	if err != nil {
		return nil, wrapErr("load order lines", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			line    domain.OrderLine
		)
		if err := rows.Scan(&orderID, &line.ProductID, &line.Name, &line.Quantity, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, wrapErr("scan order line", err)
		}
		result[orderID] = append(result[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate order lines", err)
	}
	return result, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                              domain.Order
		status, deliveryStatus             string
		street, number, neighborhood, city sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &status, &deliveryStatus, &order.Total,
		&street, &number, &neighborhood, &city, &order.CreatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.DeliveryStatus = domain.DeliveryStatus(deliveryStatus)
	order.CreatedAt = order.CreatedAt.UTC()
	if street.Valid || number.Valid || neighborhood.Valid || city.Valid {
		order.DeliveryAddress = &domain.DeliveryAddress{
			Street:       street.String,
			Number:       number.String,
			Neighborhood: neighborhood.String,
			City:         city.String,
		}
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
