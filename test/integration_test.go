//go:build integration

package test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-orderflow/internal/api"
	"github.com/joao-fontenele/storefront-orderflow/internal/auth"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/inventory"
	"github.com/joao-fontenele/storefront-orderflow/internal/messaging"
	"github.com/joao-fontenele/storefront-orderflow/internal/outbox"
	"github.com/joao-fontenele/storefront-orderflow/internal/payments"
)

type env struct {
	db      *sql.DB
	fx      *fixtures
	handler http.Handler
	adminID string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	pg := SetupPostgres(ctx, t)
	t.Cleanup(pg.Cleanup)

	db := pg.OpenDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := api.NewRouter(api.Options{
		DB:            db,
		Roles:         auth.NewProfileRoles(db),
		JWTSecret:     jwtSecret,
		PaymentSecret: paymentSecret,
		Locale:        "en",
		Logger:        logger,
	})

	fx := newFixtures(t, db)
	return &env{db: db, fx: fx, handler: handler, adminID: fx.profile(auth.RoleAdmin)}
}

func (e *env) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *env) callback(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payment/callback", strings.NewReader(body))
	req.Header.Set(payments.SignatureHeader, payments.Sign([]byte(paymentSecret), []byte(body)))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestUpdateStatus(t *testing.T) {
	e := newEnv(t)
	customer := e.fx.profile("customer")

	t.Run("invalid status writes nothing", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusPaid)
		_, _, before := e.fx.orderState(orderID)

		rec := e.do(t, http.MethodPost, "/admin/orders/update-status", e.adminID,
			`{"orderId":"`+orderID+`","newStatus":"teleported"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		status, _, after := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusPaid, status)
		require.True(t, before.Equal(after))
	})

	t.Run("non-admin is rejected without writes", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusPaid)

		rec := e.do(t, http.MethodPost, "/admin/orders/update-status", customer,
			`{"orderId":"`+orderID+`","newStatus":"processing"}`)
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = e.do(t, http.MethodPost, "/admin/orders/update-status", "",
			`{"orderId":"`+orderID+`","newStatus":"processing"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		status, _, _ := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusPaid, status)
	})

	t.Run("regression is a state conflict", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusDelivered)

		rec := e.do(t, http.MethodPost, "/admin/orders/update-status", e.adminID,
			`{"orderId":"`+orderID+`","newStatus":"processing"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		status, _, _ := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusDelivered, status)
	})

	t.Run("shipping mirrors onto shipping record, log, notification and email", func(t *testing.T) {
		buyer := e.fx.profile("customer")
		orderID := e.fx.order(buyer, domain.OrderStatusProcessing)
		shippingID := e.fx.shippingRecord(orderID)

		rec := e.do(t, http.MethodPost, "/admin/orders/update-status", e.adminID,
			`{"orderId":"`+orderID+`","newStatus":"shipping"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var shipStatus string
		var shippedAt sql.NullTime
		require.NoError(t, e.db.QueryRow(`SELECT status, shipped_at FROM shipping_orders WHERE id = $1`, shippingID).
			Scan(&shipStatus, &shippedAt))
		require.Equal(t, "shipping", shipStatus)
		require.True(t, shippedAt.Valid)

		require.Equal(t, 1, e.fx.count(`SELECT COUNT(*) FROM shipping_logs WHERE shipping_id = $1 AND status = 'shipping'`, shippingID))

		notes := e.fx.notifications(buyer)
		require.Len(t, notes, 1)
		require.Equal(t, "Order shipped", notes[0].Title)

		require.Equal(t, []domain.EmailKind{domain.EmailOrderShipping}, e.fx.queuedEmails(orderID))

		rec = e.do(t, http.MethodGet, "/admin/orders/"+orderID+"/shipping", e.adminID, "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"status":"shipping"`)
	})

	t.Run("shipping timestamps are stamped once", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusProcessing)
		shippingID := e.fx.shippingRecord(orderID)

		stamps := func() (sql.NullTime, sql.NullTime) {
			var shippedAt, deliveredAt sql.NullTime
			require.NoError(t, e.db.QueryRow(`SELECT shipped_at, delivered_at FROM shipping_orders WHERE id = $1`, shippingID).
				Scan(&shippedAt, &deliveredAt))
			return shippedAt, deliveredAt
		}
		advance := func(target domain.OrderStatus) {
			rec := e.do(t, http.MethodPost, "/admin/orders/update-status", e.adminID,
				`{"orderId":"`+orderID+`","newStatus":"`+string(target)+`"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}

		advance(domain.OrderStatusShipping)
		shippedAt, deliveredAt := stamps()
		require.True(t, shippedAt.Valid)
		require.False(t, deliveredAt.Valid)

		advance(domain.OrderStatusDelivered)
		shippedAfterDelivery, deliveredAt := stamps()
		require.True(t, shippedAfterDelivery.Time.Equal(shippedAt.Time))
		require.True(t, deliveredAt.Valid)

		advance(domain.OrderStatusCompleted)
		shippedAfterCompletion, deliveredAfterCompletion := stamps()
		require.True(t, shippedAfterCompletion.Time.Equal(shippedAt.Time))
		require.True(t, deliveredAfterCompletion.Time.Equal(deliveredAt.Time))

		status, _, _ := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusCompleted, status)
	})

	t.Run("order without shipping record still updates", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusPendingPayment)

		rec := e.do(t, http.MethodPost, "/admin/orders/update-status", e.adminID,
			`{"orderId":"`+orderID+`","newStatus":"processing"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		status, payment, _ := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusProcessing, status)
		require.Equal(t, domain.PaymentStatusPaid, payment)
	})

	t.Run("failing side effect rolls back alone", func(t *testing.T) {
		_, err := e.db.Exec(`
			CREATE FUNCTION reject_notifications() RETURNS trigger AS $$
			BEGIN RAISE EXCEPTION 'notifications offline'; END;
			$$ LANGUAGE plpgsql;
			CREATE TRIGGER reject_notifications BEFORE INSERT ON notifications
			FOR EACH ROW EXECUTE FUNCTION reject_notifications();
		`)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = e.db.Exec(`DROP TRIGGER reject_notifications ON notifications; DROP FUNCTION reject_notifications();`)
		})

		buyer := e.fx.profile("customer")
		orderID := e.fx.order(buyer, domain.OrderStatusShipping)

		rec := e.do(t, http.MethodPost, "/admin/orders/update-status", e.adminID,
			`{"orderId":"`+orderID+`","newStatus":"delivered"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		status, _, _ := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusDelivered, status)
		require.Empty(t, e.fx.notifications(buyer))
		require.Equal(t, []domain.EmailKind{domain.EmailOrderDelivered}, e.fx.queuedEmails(orderID))
	})
}

func TestCancel(t *testing.T) {
	e := newEnv(t)
	customer := e.fx.profile("customer")

	t.Run("restores each variant once and warns the owner", func(t *testing.T) {
		v1 := e.fx.variant(5)
		v2 := e.fx.variant(3)
		orderID := e.fx.order(customer, domain.OrderStatusProcessing, line{v1, 2}, line{v2, 1})

		rec := e.do(t, http.MethodPost, "/admin/orders/cancel", e.adminID, `{"orderId":"`+orderID+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		status, _, _ := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusCancelled, status)
		require.Equal(t, 7, e.fx.stock(v1))
		require.Equal(t, 4, e.fx.stock(v2))

		notes := e.fx.notifications(customer)
		require.Len(t, notes, 1)
		require.Equal(t, domain.SeverityWarning, notes[0].Type)
		require.Contains(t, notes[0].Message, "#"+strings.ToUpper(orderID[:8]))
		require.Equal(t, []domain.EmailKind{domain.EmailOrderCancelled}, e.fx.queuedEmails(orderID))

		rec = e.do(t, http.MethodPost, "/admin/orders/cancel", e.adminID, `{"orderId":"`+orderID+`"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, 7, e.fx.stock(v1))
		require.Equal(t, 4, e.fx.stock(v2))
	})

	t.Run("concurrent cancels restore once", func(t *testing.T) {
		v := e.fx.variant(0)
		orderID := e.fx.order(customer, domain.OrderStatusProcessing, line{v, 3})

		var wg sync.WaitGroup
		codes := make(chan int, 5)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				codes <- e.do(t, http.MethodPost, "/admin/orders/cancel", e.adminID, `{"orderId":"`+orderID+`"}`).Code
			}()
		}
		wg.Wait()
		close(codes)

		ok := 0
		for code := range codes {
			if code == http.StatusOK {
				ok++
			}
		}
		require.Equal(t, 1, ok)
		require.Equal(t, 3, e.fx.stock(v))
	})

	t.Run("delivered order cannot be cancelled", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusDelivered)
		_, _, before := e.fx.orderState(orderID)

		rec := e.do(t, http.MethodPost, "/admin/orders/cancel", e.adminID, `{"orderId":"`+orderID+`"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "cannot cancel in current status")

		status, _, after := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusDelivered, status)
		require.True(t, before.Equal(after))
	})

	t.Run("missing variant does not block cancellation", func(t *testing.T) {
		v := e.fx.variant(1)
		orderID := e.fx.order(customer, domain.OrderStatusPaid, line{v, 1}, line{"99999999-9999-9999-9999-999999999999", 2})

		rec := e.do(t, http.MethodPost, "/admin/orders/cancel", e.adminID, `{"orderId":"`+orderID+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, 2, e.fx.stock(v))
	})

	t.Run("unknown order", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/admin/orders/cancel", e.adminID, `{"orderId":"88888888-8888-8888-8888-888888888888"}`)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestInventoryDeduct(t *testing.T) {
	e := newEnv(t)

	t.Run("short item fails the whole call", func(t *testing.T) {
		plenty := e.fx.variant(10)
		scarce := e.fx.variant(1)

		rec := e.do(t, http.MethodPost, "/admin/inventory/deduct", e.adminID,
			`{"items":[{"variantId":"`+plenty+`","quantity":3},{"variantId":"`+scarce+`","quantity":2}]}`)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, 10, e.fx.stock(plenty))
		require.Equal(t, 1, e.fx.stock(scarce))
	})

	t.Run("concurrent deductions never oversell", func(t *testing.T) {
		v := e.fx.variant(10)
		repo := inventory.NewInventoryRepository(e.db)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Deduct(context.Background(), []domain.StockAdjustment{{VariantID: v, Quantity: 1}})
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 10, succeeded)
		require.Equal(t, 0, e.fx.stock(v))
	})

	t.Run("restore and variant lookup", func(t *testing.T) {
		v := e.fx.variant(2)

		rec := e.do(t, http.MethodPost, "/admin/inventory/restore", e.adminID,
			`{"items":[{"variantId":"`+v+`","quantity":3}]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = e.do(t, http.MethodGet, "/admin/variants/"+v, e.adminID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var variant domain.ProductVariant
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &variant))
		require.Equal(t, 5, variant.Stock)
	})
}

func TestPaymentCallback(t *testing.T) {
	e := newEnv(t)
	customer := e.fx.profile("customer")

	t.Run("success marks payment and order paid once", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusPendingPayment)
		body := `{"orderId":"` + orderID + `","status":"success","transactionCode":"TX-1"}`

		rec := e.callback(t, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var paymentStatus, txCode string
		var paidAt sql.NullTime
		require.NoError(t, e.db.QueryRow(`SELECT status, transaction_code, paid_at FROM payments WHERE order_id = $1`, orderID).
			Scan(&paymentStatus, &txCode, &paidAt))
		require.Equal(t, "success", paymentStatus)
		require.Equal(t, "TX-1", txCode)
		require.True(t, paidAt.Valid)

		status, payment, _ := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusPaid, status)
		require.Equal(t, domain.PaymentStatusPaid, payment)

		rec = e.callback(t, body)
		require.Equal(t, http.StatusOK, rec.Code)

		notes := e.fx.notifications(customer)
		require.Len(t, notes, 1)
		require.Equal(t, domain.SeveritySuccess, notes[0].Type)
		require.Equal(t, []domain.EmailKind{domain.EmailPaymentSucceeded}, e.fx.queuedEmails(orderID))
	})

	t.Run("failure touches only the payment", func(t *testing.T) {
		buyer := e.fx.profile("customer")
		orderID := e.fx.order(buyer, domain.OrderStatusPendingPayment)
		_, _, before := e.fx.orderState(orderID)

		rec := e.callback(t, `{"orderId":"`+orderID+`","status":"failed"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		require.Equal(t, 1, e.fx.count(`SELECT COUNT(*) FROM payments WHERE order_id = $1 AND status = 'failed'`, orderID))
		status, payment, after := e.fx.orderState(orderID)
		require.Equal(t, domain.OrderStatusPendingPayment, status)
		require.Equal(t, domain.PaymentStatusUnpaid, payment)
		require.True(t, before.Equal(after))
		require.Empty(t, e.fx.notifications(buyer))
	})

	t.Run("cancelled order rejects success", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusCancelled)

		rec := e.callback(t, `{"orderId":"`+orderID+`","status":"success"}`)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, 0, e.fx.count(`SELECT COUNT(*) FROM payments WHERE order_id = $1 AND status = 'success'`, orderID))
	})

	t.Run("unsigned callback writes nothing", func(t *testing.T) {
		orderID := e.fx.order(customer, domain.OrderStatusPendingPayment)

		req := httptest.NewRequest(http.MethodPost, "/payment/callback",
			bytes.NewReader([]byte(`{"orderId":"`+orderID+`","status":"success"}`)))
		rec := httptest.NewRecorder()
		e.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, 0, e.fx.count(`SELECT COUNT(*) FROM payments WHERE order_id = $1`, orderID))
	})
}

func TestCustomerTriggers(t *testing.T) {
	e := newEnv(t)
	owner := e.fx.profile("customer")
	stranger := e.fx.profile("customer")
	orderID := e.fx.order(owner, domain.OrderStatusPendingPayment)

	t.Run("owner can notify and queue email", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/notifications", owner,
			`{"orderId":"`+orderID+`","title":"Order placed","message":"Thanks!","type":"success"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = e.do(t, http.MethodPost, "/email/order", owner, `{"orderId":"`+orderID+`","type":"order_placed"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Equal(t, []domain.EmailKind{domain.EmailOrderPlaced}, e.fx.queuedEmails(orderID))

		rec = e.do(t, http.MethodGet, "/notifications", owner, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var list []domain.Notification
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		require.Len(t, list, 1)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		rec := e.do(t, http.MethodPost, "/notifications", stranger,
			`{"orderId":"`+orderID+`","title":"x","message":"y","type":"info"}`)
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = e.do(t, http.MethodPost, "/email/order", stranger, `{"orderId":"`+orderID+`","type":"order_success"}`)
		require.Equal(t, http.StatusForbidden, rec.Code)

		require.Empty(t, e.fx.notifications(stranger))
	})
}

func TestOutboxRelayPublishesToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	e := newEnv(t)
	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	customer := e.fx.profile("customer")
	orderID := e.fx.order(customer, domain.OrderStatusPendingPayment)

	store := outbox.NewRepository(e.db)
	require.NoError(t, store.Enqueue(ctx, domain.TopicEmails, orderID, domain.EmailRequestedEvent{
		Kind:    domain.EmailOrderPlaced,
		OrderID: orderID,
		UserID:  customer,
	}))

	producer := messaging.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	relay := outbox.NewRelay(store, producer, outbox.DefaultRelayConfig(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Eventually(t, func() bool {
		n, err := relay.Tick(ctx)
		return err == nil && n == 1
	}, time.Minute, time.Second)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)

	consumer := messaging.NewConsumer(brokers, domain.TopicEmails, "integration-test", messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stop := context.WithTimeout(ctx, time.Minute)
	defer stop()

	var got domain.EmailRequestedEvent
	err = consumer.Consume(consumeCtx, func(_ context.Context, key, payload []byte) error {
		require.Equal(t, orderID, string(key))
		require.NoError(t, json.Unmarshal(payload, &got))
		stop()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, domain.EmailOrderPlaced, got.Kind)
	require.Equal(t, orderID, got.OrderID)
}
