package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipping       OrderStatus = "shipping"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusReturned       OrderStatus = "returned"
)

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
)

// orderTransitions lists every allowed source -> target pair. Anything not
// listed is rejected, including re-applying the current status.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusPaid, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusPaid:           {OrderStatusProcessing, OrderStatusShipping, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipping, OrderStatusCancelled},
	OrderStatusShipping:       {OrderStatusDelivered},
	OrderStatusDelivered:      {OrderStatusCompleted, OrderStatusReturned},
	OrderStatusCompleted:      {OrderStatusReturned},
}

var adminSettable = map[OrderStatus]bool{
	OrderStatusPaid:       true,
	OrderStatusProcessing: true,
	OrderStatusShipping:   true,
	OrderStatusDelivered:  true,
	OrderStatusCompleted:  true,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusProcessing, OrderStatusShipping,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// AdminSettable reports whether an administrator may request s through the
// status update operation. Cancellation has its own operation.
func (s OrderStatus) AdminSettable() bool {
	return adminSettable[s]
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

// PaymentStatusAfter returns the payment status an order carries once it
// has moved to s. Leaving pending_payment implies the order was paid.
func (s OrderStatus) PaymentStatusAfter(current PaymentStatus) PaymentStatus {
	if s == OrderStatusPendingPayment || s == OrderStatusCancelled {
		return current
	}
	return PaymentStatusPaid
}

// ValidateAdminTarget checks a requested status against the vocabulary
// before any row is read.
func ValidateAdminTarget(s OrderStatus) error {
	if !s.Valid() || !s.AdminSettable() {
		return ErrInvalidStatus
	}
	return nil
}

type OrderItem struct {
	ID        string          `json:"id"`
	VariantID string          `json:"variant_id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PaymentMethod string          `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Status        OrderStatus     `json:"order_status"`
	Items         []OrderItem     `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ShortID is the customer-facing order reference: the first eight
// characters of the id, upper-cased.
func (o *Order) ShortID() string {
	id := o.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// StockAdjustments converts the order lines into inventory adjustments.
func (o *Order) StockAdjustments() []StockAdjustment {
	adjustments := make([]StockAdjustment, 0, len(o.Items))
	for _, item := range o.Items {
		adjustments = append(adjustments, StockAdjustment{VariantID: item.VariantID, Quantity: item.Quantity})
	}
	return adjustments
}
