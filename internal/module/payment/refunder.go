package payment

import "context"

// RefundInput describes a refund against a captured payment.
// Amount is in minor currency units.
type RefundInput struct {
	ChargeID       string
	Amount         int64
	Currency       string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundResult is the gateway's view of a created refund.
type RefundResult struct {
	ID     string
	Status string
	Amount int64
}

// Refunder issues refunds through a payment gateway.
// Calls with the same IdempotencyKey must create at most one refund.
type Refunder interface {
	Refund(ctx context.Context, in RefundInput) (*RefundResult, error)
}
