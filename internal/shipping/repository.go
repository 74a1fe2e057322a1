package shipping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/joao-fontenele/storefront-orderflow/internal/database"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

type Repository struct {
	db database.DBTX
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*domain.ShippingOrder, error) {
	s := &domain.ShippingOrder{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, status, shipped_at, delivered_at, created_at, updated_at
		FROM shipping_orders
		WHERE order_id = $1
	`, orderID).Scan(&s.ID, &s.OrderID, &s.Status, &s.ShippedAt, &s.DeliveredAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return s, nil
}

// UpdateStatus moves the order's shipping record to status. shipped_at and
// delivered_at are stamped on first entry and never overwritten. Returns nil
// when the order has no shipping record.
func (r *Repository) UpdateStatus(ctx context.Context, orderID string, status domain.ShippingStatus) (*domain.ShippingOrder, error) {
	s := &domain.ShippingOrder{}

	err := r.db.QueryRowContext(ctx, `
		UPDATE shipping_orders
		SET status = $2::text,
			shipped_at = CASE WHEN $2::text = 'shipping' THEN COALESCE(shipped_at, NOW()) ELSE shipped_at END,
			delivered_at = CASE WHEN $2::text = 'delivered' THEN COALESCE(delivered_at, NOW()) ELSE delivered_at END,
			updated_at = NOW()
		WHERE order_id = $1
		RETURNING id, order_id, status, shipped_at, delivered_at, created_at, updated_at
	`, orderID, status).Scan(&s.ID, &s.OrderID, &s.Status, &s.ShippedAt, &s.DeliveredAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return s, nil
}

// AppendLog writes an audit entry holding a JSON snapshot of the shipping
// record. Log rows are never updated.
func (r *Repository) AppendLog(ctx context.Context, s *domain.ShippingOrder, message string) (*domain.ShippingLog, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}

	entry := &domain.ShippingLog{
		ShippingID: s.ID,
		Status:     s.Status,
		Message:    message,
		Raw:        raw,
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO shipping_logs (shipping_id, status, message, raw)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, entry.ShippingID, entry.Status, entry.Message, string(raw)).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (r *Repository) ListLogs(ctx context.Context, shippingID string) ([]domain.ShippingLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shipping_id, status, message, raw, created_at
		FROM shipping_logs
		WHERE shipping_id = $1
		ORDER BY created_at, id
	`, shippingID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	logs := []domain.ShippingLog{}
	for rows.Next() {
		var (
			l   domain.ShippingLog
			raw []byte
		)
		if err := rows.Scan(&l.ID, &l.ShippingID, &l.Status, &l.Message, &raw, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Raw = raw
		logs = append(logs, l)
	}

	return logs, rows.Err()
}
