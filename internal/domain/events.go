package domain

import "time"

const TopicEmails = "storefront.emails"

type EmailKind string

const (
	EmailOrderPlaced      EmailKind = "order_placed"
	EmailOrderSuccess     EmailKind = "order_success"
	EmailPaymentSucceeded EmailKind = "payment_succeeded"
	EmailOrderShipping    EmailKind = "order_shipping"
	EmailOrderDelivered   EmailKind = "order_delivered"
	EmailOrderCancelled   EmailKind = "order_cancelled"
)

func (k EmailKind) Valid() bool {
	switch k {
	case EmailOrderPlaced, EmailOrderSuccess, EmailPaymentSucceeded, EmailOrderShipping,
		EmailOrderDelivered, EmailOrderCancelled:
		return true
	}
	return false
}

// UserTriggerable reports whether a customer may request this email for
// their own order.
func (k EmailKind) UserTriggerable() bool {
	return k == EmailOrderPlaced || k == EmailOrderSuccess
}

// StatusEmail returns the email sent when an order enters s, if any.
func StatusEmail(s OrderStatus) (EmailKind, bool) {
	switch s {
	case OrderStatusShipping:
		return EmailOrderShipping, true
	case OrderStatusDelivered:
		return EmailOrderDelivered, true
	case OrderStatusCancelled:
		return EmailOrderCancelled, true
	}
	return "", false
}

type EmailRequestedEvent struct {
	Kind      EmailKind `json:"kind"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}
