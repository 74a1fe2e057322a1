package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/joao-fontenele/storefront-orderflow/internal/database"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

type OrderRepository struct {
	db database.DBTX
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{db: tx}
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, id, "")
}

// GetForUpdate loads the order and locks its row until the surrounding
// transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, id, "FOR UPDATE")
}

func (r *OrderRepository) get(ctx context.Context, id, lock string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_price, payment_method, payment_status, order_status, created_at, updated_at
		FROM orders
		WHERE id = $1
	`+lock, id).Scan(
		&order.ID, &order.UserID, &order.TotalPrice, &order.PaymentMethod,
		&order.PaymentStatus, &order.Status, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, variant_id, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.VariantID, &item.Price, &item.Quantity); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, order *domain.Order, status domain.OrderStatus) error {
	paymentStatus := status.PaymentStatusAfter(order.PaymentStatus)

	err := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET order_status = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at
	`, status, paymentStatus, order.ID).Scan(&order.UpdatedAt)
	if err != nil {
		return err
	}

	order.Status = status
	order.PaymentStatus = paymentStatus
	return nil
}

// MarkPaid records a settled payment. The order status only moves when the
// order was still waiting for payment.
func (r *OrderRepository) MarkPaid(ctx context.Context, order *domain.Order) error {
	status := order.Status
	if status == domain.OrderStatusPendingPayment {
		status = domain.OrderStatusPaid
	}

	err := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET order_status = $1, payment_status = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING updated_at
	`, status, domain.PaymentStatusPaid, order.ID).Scan(&order.UpdatedAt)
	if err != nil {
		return err
	}

	order.Status = status
	order.PaymentStatus = domain.PaymentStatusPaid
	return nil
}
