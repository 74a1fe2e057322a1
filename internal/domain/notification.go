package domain

import "time"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
		return true
	}
	return false
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Severity  `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusNotification returns the customer-facing notice for orders entering
// s. Statuses without a notice return ok=false.
func StatusNotification(order *Order, s OrderStatus) (title, message string, ok bool) {
	ref := "#" + order.ShortID()
	switch s {
	case OrderStatusProcessing:
		return "Order is being prepared", "Order " + ref + " is being prepared for shipment.", true
	case OrderStatusShipping:
		return "Order shipped", "Order " + ref + " is on its way.", true
	case OrderStatusDelivered:
		return "Order delivered", "Order " + ref + " has been delivered. Thank you for shopping with us!", true
	}
	return "", "", false
}
