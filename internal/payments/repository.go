package payments

import (
	"context"
	"database/sql"
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

// GetForUpdate returns the order's payment row, creating a pending one when
// the order has none, and locks it.
func (r *Repository) GetForUpdate(ctx context.Context, orderID, method string) (*domain.Payment, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (order_id, method, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING
	`, orderID, method, domain.PaymentStatePending)
	if err != nil {
		return nil, err
	}

	return r.scan(r.db.QueryRowContext(ctx, `
		SELECT id, order_id, method, status, COALESCE(transaction_code, ''), paid_at, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		FOR UPDATE
	`, orderID))
}

func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	p, err := r.scan(r.db.QueryRowContext(ctx, `
		SELECT id, order_id, method, status, COALESCE(transaction_code, ''), paid_at, created_at, updated_at
		FROM payments
		WHERE order_id = $1
	`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *Repository) MarkSucceeded(ctx context.Context, p *domain.Payment, transactionCode string) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE payments
		SET status = $2, paid_at = NOW(), transaction_code = COALESCE(NULLIF($3, ''), transaction_code), updated_at = NOW()
		WHERE id = $1
		RETURNING COALESCE(transaction_code, ''), paid_at, updated_at
	`, p.ID, domain.PaymentStateSuccess, transactionCode).Scan(&p.TransactionCode, &p.PaidAt, &p.UpdatedAt)
	if err != nil {
		return err
	}

	p.Status = domain.PaymentStateSuccess
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, p *domain.Payment, transactionCode string) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE payments
		SET status = $2, transaction_code = COALESCE(NULLIF($3, ''), transaction_code), updated_at = NOW()
		WHERE id = $1
		RETURNING COALESCE(transaction_code, ''), updated_at
	`, p.ID, domain.PaymentStateFailed, transactionCode).Scan(&p.TransactionCode, &p.UpdatedAt)
	if err != nil {
		return err
	}

	p.Status = domain.PaymentStateFailed
	return nil
}

func (r *Repository) scan(row *sql.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(&p.ID, &p.OrderID, &p.Method, &p.Status, &p.TransactionCode, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}
