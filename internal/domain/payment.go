package domain

import "time"

type PaymentState string

const (
	PaymentStatePending PaymentState = "pending"
	PaymentStateSuccess PaymentState = "success"
	PaymentStateFailed  PaymentState = "failed"
)

// PaymentOutcome is what the gateway reports in its callback.
type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "success"
	PaymentOutcomeFailed  PaymentOutcome = "failed"
)

func (o PaymentOutcome) Valid() bool {
	return o == PaymentOutcomeSuccess || o == PaymentOutcomeFailed
}

type Payment struct {
	ID              string       `json:"id"`
	OrderID         string       `json:"order_id"`
	Method          string       `json:"method"`
	Status          PaymentState `json:"status"`
	TransactionCode string       `json:"transaction_code,omitempty"`
	PaidAt          *time.Time   `json:"paid_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
