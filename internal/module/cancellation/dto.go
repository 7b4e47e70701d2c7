package cancellation

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/refundpolicy"
)

// RequestBody is the wire form of a cancellation or estimate request.
// orderId and orderNo are accepted for orderRef, additionalReason for customReason.
type RequestBody struct {
	OrderRef         string           `json:"orderRef"`
	OrderID          string           `json:"orderId"`
	OrderNo          string           `json:"orderNo"`
	Reason           string           `json:"reason"`
	CustomReason     string           `json:"customReason"`
	AdditionalReason string           `json:"additionalReason"`
	Notes            string           `json:"notes"`
	ItemsToCancel    []ItemBody       `json:"itemsToCancel"`
	PricingSnapshot  *PricingSnapshot `json:"pricingSnapshot"`
}

// ItemBody targets one order line. id is accepted for itemId.
type ItemBody struct {
	ItemID   string `json:"itemId"`
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Price    *int64 `json:"price"`
}

// ProcessBody is the wire form of an admin decision.
// cancellationId is accepted for requestId, adminComments for comments.
type ProcessBody struct {
	RequestID          string   `json:"requestId"`
	CancellationID     string   `json:"cancellationId"`
	Action             string   `json:"action"`
	Comments           string   `json:"comments"`
	AdminComments      string   `json:"adminComments"`
	OverridePercentage *float64 `json:"overridePercentage"`
}

// CompleteBody is the wire form of a refund completion.
// cancellationId is accepted for requestId, transactionId for transactionRef.
type CompleteBody struct {
	RequestID      string `json:"requestId"`
	CancellationID string `json:"cancellationId"`
	TransactionRef string `json:"transactionRef"`
	TransactionID  string `json:"transactionId"`
	Comments       string `json:"comments"`
}

// CreatedResponse is returned by POST /cancellation/request.
type CreatedResponse struct {
	RequestID        string              `json:"requestId"`
	CancellationID   string              `json:"cancellationId"`
	CancellationType Type                `json:"cancellationType"`
	Status           Status              `json:"status"`
	ExpectedRefund   int64               `json:"expectedRefund"`
	RefundPercentage float64             `json:"refundPercentage"`
	IncludesDelivery bool                `json:"includesDelivery"`
	DeliveryRefund   int64               `json:"deliveryRefund"`
	Calculation      refundpolicy.Result `json:"calculation"`
}

// ProcessResponse is returned by POST /cancellation/process.
type ProcessResponse struct {
	RequestID        string       `json:"requestId"`
	CancellationID   string       `json:"cancellationId"`
	Status           Status       `json:"status"`
	RefundAmount     int64        `json:"refundAmount"`
	RefundPercentage float64      `json:"refundPercentage"`
	DeliveryRefund   int64        `json:"deliveryRefund"`
	RefundStatus     RefundStatus `json:"refundStatus,omitempty"`
	OrderStatus      order.Status `json:"orderStatus"`
}

// CompleteResponse is returned by POST /cancellation/complete-refund.
type CompleteResponse struct {
	RequestID      string       `json:"requestId"`
	CancellationID string       `json:"cancellationId"`
	RefundID       string       `json:"refundId"`
	RefundDate     *time.Time   `json:"refundDate"`
	RefundAmount   int64        `json:"refundAmount"`
	RefundStatus   RefundStatus `json:"refundStatus"`
	Source         RefundSource `json:"source"`
}

// ListResponse is a page of requests.
type ListResponse struct {
	Requests []*Request `json:"requests"`
	Total    int64      `json:"total"`
	Page     int        `json:"page,omitempty"`
	PageSize int        `json:"pageSize,omitempty"`
}

// ItemEstimate is the estimated refund of one targeted line.
type ItemEstimate struct {
	ItemID          uuid.UUID `json:"itemId"`
	Name            string    `json:"name"`
	Quantity        int       `json:"quantity"`
	LineTotal       int64     `json:"lineTotal"`
	Basis           int64     `json:"basis"`
	EstimatedRefund int64     `json:"estimatedRefund"`
}

// Estimate is a dry run of a cancellation request.
type Estimate struct {
	OrderID          uuid.UUID           `json:"orderId"`
	OrderNo          string              `json:"orderNo"`
	CancellationType Type                `json:"cancellationType"`
	Items            []ItemEstimate      `json:"items"`
	IncludesDelivery bool                `json:"includesDelivery"`
	DeliveryRefund   int64               `json:"deliveryRefund"`
	ExpectedRefund   int64               `json:"expectedRefund"`
	Calculation      refundpolicy.Result `json:"calculation"`
	HasPending       bool                `json:"hasPendingRequest"`
}
