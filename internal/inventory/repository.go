package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/joao-fontenele/storefront-orderflow/internal/database"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInvalidQuantity   = errors.New("quantity must be between 1 and 2147483647")
	ErrInvalidItem       = errors.New("variant id is required")
)

type InventoryRepository struct {
	db   database.DBTX
	pool *sql.DB
}

func NewInventoryRepository(db *sql.DB) *InventoryRepository {
	return &InventoryRepository{db: db, pool: db}
}

// WithTx returns a repository whose statements run inside tx. Multi-item
// operations on it do not open their own transaction.
func (r *InventoryRepository) WithTx(tx *sql.Tx) *InventoryRepository {
	return &InventoryRepository{db: tx}
}

func (r *InventoryRepository) GetVariant(ctx context.Context, variantID string) (*domain.ProductVariant, error) {
	v := &domain.ProductVariant{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, product_id, size, color, price, stock
		FROM product_variants
		WHERE id = $1
	`, variantID).Scan(&v.ID, &v.ProductID, &v.Size, &v.Color, &v.Price, &v.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return v, nil
}

// Deduct removes stock for every adjustment or for none of them. Each line is
// a single conditional decrement, so concurrent deductions cannot oversell.
func (r *InventoryRepository) Deduct(ctx context.Context, items []domain.StockAdjustment) error {
	merged, err := normalize(items)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(db database.DBTX) error {
		for _, item := range merged {
			result, err := db.ExecContext(ctx, `
				UPDATE product_variants
				SET stock = stock - $2
				WHERE id = $1 AND stock >= $2
			`, item.VariantID, item.Quantity)
			if err != nil {
				return fmt.Errorf("deduct variant %s: %w", item.VariantID, err)
			}

			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return err
			}

			if rowsAffected == 0 {
				return r.explainMiss(ctx, db, item.VariantID)
			}
		}
		return nil
	})
}

// Restore puts stock back for every adjustment it can. Missing variants are
// skipped; the last such error is returned along with the number of lines
// restored. Database errors abort immediately.
func (r *InventoryRepository) Restore(ctx context.Context, items []domain.StockAdjustment) (int, error) {
	merged, err := normalize(items)
	if err != nil {
		return 0, err
	}

	var restored int
	var lastErr error

	err = r.inTx(ctx, func(db database.DBTX) error {
		for _, item := range merged {
			result, err := db.ExecContext(ctx, `
				UPDATE product_variants
				SET stock = stock + $2
				WHERE id = $1
			`, item.VariantID, item.Quantity)
			if err != nil {
				return fmt.Errorf("restore variant %s: %w", item.VariantID, err)
			}

			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return err
			}

			if rowsAffected == 0 {
				lastErr = fmt.Errorf("restore variant %s: %w", item.VariantID, ErrVariantNotFound)
				continue
			}
			restored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return restored, lastErr
}

func (r *InventoryRepository) explainMiss(ctx context.Context, db database.DBTX, variantID string) error {
	var stock int
	err := db.QueryRowContext(ctx, `SELECT stock FROM product_variants WHERE id = $1`, variantID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("variant %s: %w", variantID, ErrVariantNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("variant %s has %d left: %w", variantID, stock, ErrInsufficientStock)
}

func (r *InventoryRepository) inTx(ctx context.Context, fn func(db database.DBTX) error) error {
	if r.pool == nil {
		return fn(r.db)
	}
	return database.WithTx(ctx, r.pool, func(tx *sql.Tx) error {
		return fn(tx)
	})
}

// normalize merges repeated variants and orders lines by variant id so that
// concurrent multi-item adjustments lock rows in the same order. Each line and
// each merged total must fit the stock column's int4 range.
func normalize(items []domain.StockAdjustment) ([]domain.StockAdjustment, error) {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		if item.VariantID == "" {
			return nil, ErrInvalidItem
		}
		if item.Quantity <= 0 || item.Quantity > math.MaxInt32-totals[item.VariantID] {
			return nil, fmt.Errorf("variant %s: %w", item.VariantID, ErrInvalidQuantity)
		}
		totals[item.VariantID] += item.Quantity
	}

	merged := make([]domain.StockAdjustment, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, domain.StockAdjustment{VariantID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].VariantID < merged[j].VariantID })

	return merged, nil
}
