package events

import (
	"time"

	"github.com/google/uuid"
)

// Event type names.
const (
	TypePaymentSucceeded      = "PaymentSucceeded"
	TypePaymentFailed         = "PaymentFailed"
	TypeCancellationRequested = "CancellationRequested"
	TypeCancellationApproved  = "CancellationApproved"
	TypeCancellationRejected  = "CancellationRejected"
	TypeRefundCompleted       = "RefundCompleted"
)

// PaymentSucceededEvent is published when the gateway confirms an order payment.
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID   uuid.UUID `json:"order_id"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

// PaymentFailedEvent is published when the gateway reports a failed payment.
type PaymentFailedEvent struct {
	BaseEvent
	OrderID   uuid.UUID `json:"order_id"`
	Reference string    `json:"reference"`
	Reason    string    `json:"reason"`
}

// CancelledItem summarizes one line item of a cancellation for customer-facing messages.
type CancelledItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Amount   int64  `json:"amount"`
}

// CancellationEvent carries a cancellation request transition.
// The same payload serves every cancellation event type.
type CancellationEvent struct {
	BaseEvent
	CancellationID   string          `json:"cancellation_id"`
	OrderID          uuid.UUID       `json:"order_id"`
	OrderNo          string          `json:"order_no"`
	CustomerEmail    string          `json:"customer_email"`
	CustomerName     string          `json:"customer_name"`
	CancellationType string          `json:"cancellation_type"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	Items            []CancelledItem `json:"items"`
	RefundAmount     int64           `json:"refund_amount"`
	RefundPercentage float64         `json:"refund_percentage"`
	DeliveryRefund   int64           `json:"delivery_refund"`
	Timing           string          `json:"timing"`
	Bonuses          []string        `json:"bonuses,omitempty"`
	Penalties        []string        `json:"penalties,omitempty"`
	Comments         string          `json:"comments,omitempty"`
	RefundID         string          `json:"refund_id,omitempty"`
	RefundDate       *time.Time      `json:"refund_date,omitempty"`
}
