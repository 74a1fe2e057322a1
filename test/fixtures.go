//go:build integration

package test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

const (
	jwtSecret     = "integration-jwt-secret"
	paymentSecret = "integration-payment-secret"
)

type fixtures struct {
	t  *testing.T
	db *sql.DB
}

func newFixtures(t *testing.T, db *sql.DB) *fixtures {
	return &fixtures{t: t, db: db}
}

func (f *fixtures) profile(role string) string {
	f.t.Helper()
	id := uuid.NewString()
	_, err := f.db.Exec(`INSERT INTO profiles (id, email, full_name, role) VALUES ($1, $2, $3, $4)`,
		id, id[:8]+"@example.com", "Test "+role, role)
	require.NoError(f.t, err)
	return id
}

func (f *fixtures) variant(stock int) string {
	f.t.Helper()
	var productID string
	require.NoError(f.t, f.db.QueryRow(`INSERT INTO products (name) VALUES ('Test product') RETURNING id`).Scan(&productID))

	var id string
	require.NoError(f.t, f.db.QueryRow(`
		INSERT INTO product_variants (product_id, size, color, price, stock)
		VALUES ($1, 'M', 'black', 25.00, $2)
		RETURNING id
	`, productID, stock).Scan(&id))
	return id
}

type line struct {
	variantID string
	quantity  int
}

func (f *fixtures) order(userID string, status domain.OrderStatus, lines ...line) string {
	f.t.Helper()
	paymentStatus := domain.PaymentStatusUnpaid
	if status != domain.OrderStatusPendingPayment {
		paymentStatus = domain.PaymentStatusPaid
	}

	var id string
	require.NoError(f.t, f.db.QueryRow(`
		INSERT INTO orders (user_id, total_price, payment_method, payment_status, order_status)
		VALUES ($1, $2, 'card', $3, $4)
		RETURNING id
	`, userID, decimal.NewFromInt(int64(25*len(lines))), paymentStatus, status).Scan(&id))

	for _, l := range lines {
		_, err := f.db.Exec(`INSERT INTO order_items (order_id, variant_id, price, quantity) VALUES ($1, $2, 25.00, $3)`,
			id, l.variantID, l.quantity)
		require.NoError(f.t, err)
	}
	return id
}

func (f *fixtures) shippingRecord(orderID string) string {
	f.t.Helper()
	var id string
	require.NoError(f.t, f.db.QueryRow(`INSERT INTO shipping_orders (order_id) VALUES ($1) RETURNING id`, orderID).Scan(&id))
	return id
}

func (f *fixtures) stock(variantID string) int {
	f.t.Helper()
	var stock int
	require.NoError(f.t, f.db.QueryRow(`SELECT stock FROM product_variants WHERE id = $1`, variantID).Scan(&stock))
	return stock
}

func (f *fixtures) orderState(orderID string) (domain.OrderStatus, domain.PaymentStatus, time.Time) {
	f.t.Helper()
	var (
		status  domain.OrderStatus
		payment domain.PaymentStatus
		updated time.Time
	)
	require.NoError(f.t, f.db.QueryRow(`SELECT order_status, payment_status, updated_at FROM orders WHERE id = $1`, orderID).
		Scan(&status, &payment, &updated))
	return status, payment, updated
}

func (f *fixtures) notifications(userID string) []domain.Notification {
	f.t.Helper()
	rows, err := f.db.Query(`SELECT title, message, type FROM notifications WHERE user_id = $1 ORDER BY created_at, id`, userID)
	require.NoError(f.t, err)
	defer func() { _ = rows.Close() }()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		require.NoError(f.t, rows.Scan(&n.Title, &n.Message, &n.Type))
		out = append(out, n)
	}
	require.NoError(f.t, rows.Err())
	return out
}

func (f *fixtures) queuedEmails(orderID string) []domain.EmailKind {
	f.t.Helper()
	rows, err := f.db.Query(`SELECT payload->>'kind' FROM outbox WHERE message_key = $1 ORDER BY id`, orderID)
	require.NoError(f.t, err)
	defer func() { _ = rows.Close() }()

	var out []domain.EmailKind
	for rows.Next() {
		var k domain.EmailKind
		require.NoError(f.t, rows.Scan(&k))
		out = append(out, k)
	}
	require.NoError(f.t, rows.Err())
	return out
}

func (f *fixtures) count(query string, args ...any) int {
	f.t.Helper()
	var n int
	require.NoError(f.t, f.db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}
