package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/storefront-orderflow/internal/database"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/notifications"
	"github.com/joao-fontenele/storefront-orderflow/internal/orders"
	"github.com/joao-fontenele/storefront-orderflow/internal/outbox"
	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderClosed    = errors.New("order is closed")
	ErrInvalidOutcome = errors.New("invalid payment status")
)

type Callback struct {
	OrderID         string                `json:"orderId"`
	Status          domain.PaymentOutcome `json:"status"`
	TransactionCode string                `json:"transactionCode,omitempty"`
}

type Result struct {
	Order   *domain.Order   `json:"order"`
	Payment *domain.Payment `json:"payment"`
	// Replayed is set when the payment had already succeeded and nothing
	// was written.
	Replayed bool `json:"replayed"`
}

type Service struct {
	db            *sql.DB
	orders        *orders.OrderRepository
	payments      *Repository
	notifications *notifications.Repository
	outbox        *outbox.Repository
	metrics       *telemetry.Instruments
	logger        *slog.Logger
}

func NewService(db *sql.DB, metrics *telemetry.Instruments, logger *slog.Logger) *Service {
	return &Service{
		db:            db,
		orders:        orders.NewOrderRepository(db),
		payments:      NewRepository(db),
		notifications: notifications.NewRepository(db),
		outbox:        outbox.NewRepository(db),
		metrics:       metrics,
		logger:        logger,
	}
}

// HandleCallback applies a gateway outcome to the order's payment. The order
// and payment rows stay locked until the result commits, so concurrent or
// replayed callbacks are applied once.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (*Result, error) {
	if !cb.Status.Valid() {
		return nil, ErrInvalidOutcome
	}

	var (
		res        *Result
		fromStatus domain.OrderStatus
	)

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		order, err := s.orders.WithTx(tx).GetForUpdate(ctx, cb.OrderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil {
			return ErrOrderNotFound
		}
		fromStatus = order.Status

		payments := s.payments.WithTx(tx)
		payment, err := payments.GetForUpdate(ctx, order.ID, order.PaymentMethod)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}

		res = &Result{Order: order, Payment: payment}

		if payment.Status == domain.PaymentStateSuccess {
			res.Replayed = true
			return nil
		}

		if cb.Status == domain.PaymentOutcomeFailed {
			return payments.MarkFailed(ctx, payment, cb.TransactionCode)
		}

		if order.Status == domain.OrderStatusCancelled || order.Status == domain.OrderStatusReturned {
			return fmt.Errorf("order %s is %s: %w", order.ID, order.Status, ErrOrderClosed)
		}

		if err := payments.MarkSucceeded(ctx, payment, cb.TransactionCode); err != nil {
			return fmt.Errorf("mark payment succeeded: %w", err)
		}
		if err := s.orders.WithTx(tx).MarkPaid(ctx, order); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		effects := database.NewSideEffects(tx, s.logger, s.metrics)

		if err := effects.Run(ctx, "notification", func() error {
			_, err := s.notifications.WithTx(tx).Insert(ctx, order.UserID,
				"Payment successful",
				fmt.Sprintf("Payment for order #%s was received.", order.ShortID()),
				domain.SeveritySuccess,
			)
			return err
		}, "order_id", order.ID); err != nil {
			return err
		}

		return effects.Run(ctx, "email", func() error {
			return s.outbox.WithTx(tx).Enqueue(ctx, domain.TopicEmails, order.ID, domain.EmailRequestedEvent{
				Kind:      domain.EmailPaymentSucceeded,
				OrderID:   order.ID,
				UserID:    order.UserID,
				Timestamp: time.Now().UTC(),
			})
		}, "order_id", order.ID)
	})
	if err != nil {
		return nil, err
	}

	if res.Order.Status != fromStatus {
		s.metrics.Transition(ctx, string(fromStatus), string(res.Order.Status))
	}

	s.logger.Info("payment callback applied",
		"order_id", res.Order.ID,
		"outcome", cb.Status,
		"payment_status", res.Payment.Status,
		"replayed", res.Replayed,
	)

	return res, nil
}
