package domain

import (
	"encoding/json"
	"time"
)

type ShippingStatus string

const (
	ShippingStatusCreated   ShippingStatus = "created"
	ShippingStatusPicking   ShippingStatus = "picking"
	ShippingStatusShipping  ShippingStatus = "shipping"
	ShippingStatusDelivered ShippingStatus = "delivered"
	ShippingStatusFailed    ShippingStatus = "failed"
	ShippingStatusReturned  ShippingStatus = "returned"
)

// ShippingStatusFor maps an order status onto the shipping record's status.
// The second return value is false for order statuses that leave the
// shipping record untouched.
func ShippingStatusFor(s OrderStatus) (ShippingStatus, bool) {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusProcessing:
		return ShippingStatusCreated, true
	case OrderStatusShipping:
		return ShippingStatusShipping, true
	case OrderStatusDelivered, OrderStatusCompleted:
		return ShippingStatusDelivered, true
	}
	return "", false
}

// Logged reports whether entering s is recorded in the shipping log.
func (s ShippingStatus) Logged() bool {
	return s == ShippingStatusCreated || s == ShippingStatusShipping || s == ShippingStatusDelivered
}

type ShippingOrder struct {
	ID          string         `json:"id"`
	OrderID     string         `json:"order_id"`
	Status      ShippingStatus `json:"status"`
	ShippedAt   *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type ShippingLog struct {
	ID         string          `json:"id"`
	ShippingID string          `json:"shipping_id"`
	Status     ShippingStatus  `json:"status"`
	Message    string          `json:"message"`
	Raw        json.RawMessage `json:"raw,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
