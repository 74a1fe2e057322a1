package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/storefront-orderflow/internal/database"
	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
	"github.com/joao-fontenele/storefront-orderflow/internal/inventory"
	"github.com/joao-fontenele/storefront-orderflow/internal/notifications"
	"github.com/joao-fontenele/storefront-orderflow/internal/outbox"
	"github.com/joao-fontenele/storefront-orderflow/internal/shipping"
	"github.com/joao-fontenele/storefront-orderflow/internal/telemetry"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrNotCancellable   = errors.New("cannot cancel in current status")
	ErrShippingNotFound = errors.New("shipping record not found")
)

type ShippingHistory struct {
	Shipping *domain.ShippingOrder `json:"shipping"`
	Logs     []domain.ShippingLog  `json:"logs"`
}

// Service owns the admin side of the order lifecycle. Every operation locks
// the order row first, so concurrent changes to one order are serialised.
type Service struct {
	db            *sql.DB
	orders        *OrderRepository
	shipping      *shipping.Repository
	inventory     *inventory.InventoryRepository
	notifications *notifications.Repository
	outbox        *outbox.Repository
	locale        string
	metrics       *telemetry.Instruments
	logger        *slog.Logger
}

func NewService(db *sql.DB, locale string, metrics *telemetry.Instruments, logger *slog.Logger) *Service {
	return &Service{
		db:            db,
		orders:        NewOrderRepository(db),
		shipping:      shipping.NewRepository(db),
		inventory:     inventory.NewInventoryRepository(db),
		notifications: notifications.NewRepository(db),
		outbox:        outbox.NewRepository(db),
		locale:        locale,
		metrics:       metrics,
		logger:        logger,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ShippingHistory(ctx context.Context, orderID string) (*ShippingHistory, error) {
	record, err := s.shipping.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrShippingNotFound
	}

	logs, err := s.shipping.ListLogs(ctx, record.ID)
	if err != nil {
		return nil, err
	}

	return &ShippingHistory{Shipping: record, Logs: logs}, nil
}

// UpdateStatus moves an order to target and mirrors the change onto its
// shipping record, shipping log, notifications and email queue. Those
// follow-ups never fail the update.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, target domain.OrderStatus) (*domain.Order, error) {
	if err := domain.ValidateAdminTarget(target); err != nil {
		return nil, fmt.Errorf("%q: %w", target, err)
	}

	var (
		order *domain.Order
		from  domain.OrderStatus
	)

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.orders.WithTx(tx)

		var err error
		order, err = repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil {
			return ErrOrderNotFound
		}

		from = order.Status
		if !from.CanTransitionTo(target) {
			return fmt.Errorf("%s to %s: %w", from, target, domain.ErrInvalidTransition)
		}

		if err := repo.UpdateStatus(ctx, order, target); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		return s.afterStatusChange(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(ctx, string(from), string(target))
	s.logger.Info("order status updated", "order_id", order.ID, "from", from, "to", target)

	return order, nil
}

func (s *Service) afterStatusChange(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	effects := database.NewSideEffects(tx, s.logger, s.metrics)

	if shipStatus, ok := domain.ShippingStatusFor(order.Status); ok {
		ship := s.shipping.WithTx(tx)

		var record *domain.ShippingOrder
		if err := effects.Run(ctx, "shipping", func() error {
			var err error
			record, err = ship.UpdateStatus(ctx, order.ID, shipStatus)
			return err
		}, "order_id", order.ID); err != nil {
			return err
		}

		if record != nil && record.Status.Logged() {
			if err := effects.Run(ctx, "shipping_log", func() error {
				_, err := ship.AppendLog(ctx, record, shipping.Label(s.locale, record.Status))
				return err
			}, "order_id", order.ID); err != nil {
				return err
			}
		}
	}

	if title, message, ok := domain.StatusNotification(order, order.Status); ok {
		if err := effects.Run(ctx, "notification", func() error {
			_, err := s.notifications.WithTx(tx).Insert(ctx, order.UserID, title, message, domain.SeverityInfo)
			return err
		}, "order_id", order.ID); err != nil {
			return err
		}
	}

	if kind, ok := domain.StatusEmail(order.Status); ok {
		if err := s.enqueueEmail(ctx, tx, effects, order, kind); err != nil {
			return err
		}
	}

	return nil
}

// Cancel cancels an order that has not shipped yet and puts its stock back.
func (s *Service) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		order *domain.Order
		from  domain.OrderStatus
	)

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.orders.WithTx(tx)

		var err error
		order, err = repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order == nil {
			return ErrOrderNotFound
		}

		from = order.Status
		if !from.Cancellable() {
			return fmt.Errorf("order is %s: %w", from, ErrNotCancellable)
		}

		if err := repo.UpdateStatus(ctx, order, domain.OrderStatusCancelled); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}

		effects := database.NewSideEffects(tx, s.logger, s.metrics)

		if err := effects.Run(ctx, "restock", func() error {
			restored, err := s.inventory.WithTx(tx).Restore(ctx, order.StockAdjustments())
			if errors.Is(err, inventory.ErrVariantNotFound) {
				s.logger.Warn("restock skipped missing variants", "error", err, "order_id", order.ID, "restored", restored)
				return nil
			}
			return err
		}, "order_id", order.ID); err != nil {
			return err
		}

		if err := effects.Run(ctx, "notification", func() error {
			_, err := s.notifications.WithTx(tx).Insert(ctx, order.UserID,
				"Order cancelled",
				fmt.Sprintf("Order #%s has been cancelled.", order.ShortID()),
				domain.SeverityWarning,
			)
			return err
		}, "order_id", order.ID); err != nil {
			return err
		}

		return s.enqueueEmail(ctx, tx, effects, order, domain.EmailOrderCancelled)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(ctx, string(from), string(domain.OrderStatusCancelled))
	s.logger.Info("order cancelled", "order_id", order.ID, "from", from)

	return order, nil
}

func (s *Service) enqueueEmail(ctx context.Context, tx *sql.Tx, effects *database.SideEffects, order *domain.Order, kind domain.EmailKind) error {
	return effects.Run(ctx, "email", func() error {
		return s.outbox.WithTx(tx).Enqueue(ctx, domain.TopicEmails, order.ID, domain.EmailRequestedEvent{
			Kind:      kind,
			OrderID:   order.ID,
			UserID:    order.UserID,
			Timestamp: time.Now().UTC(),
		})
	}, "order_id", order.ID, "kind", kind)
}
