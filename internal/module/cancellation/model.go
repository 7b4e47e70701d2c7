package cancellation

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/refundpolicy"
)

// Type classifies what a request cancels.
type Type string

const (
	TypeFullOrder    Type = "FULL_ORDER"
	TypePartialItems Type = "PARTIAL_ITEMS"
)

// Status is the review status of a request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// RefundStatus tracks an approved request's refund.
type RefundStatus string

const (
	RefundProcessing RefundStatus = "PROCESSING"
	RefundCompleted  RefundStatus = "COMPLETED"
)

// RefundSource records where a refund id came from.
type RefundSource string

const (
	SourceGateway   RefundSource = "gateway"
	SourceManual    RefundSource = "manual"
	SourceGenerated RefundSource = "generated"
)

// Request is a customer's request to cancel all or part of an order.
// Money fields are minor currency units.
type Request struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CancellationID string    `json:"cancellationId" gorm:"uniqueIndex;not null"`
	OrderID        uuid.UUID `json:"orderId" gorm:"type:uuid;not null;index;uniqueIndex:idx_cancellation_requests_one_pending,where:status = 'PENDING'"`
	OrderNo        string    `json:"orderNo"`
	UserID         uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
	Type           Type      `json:"cancellationType" gorm:"not null"`
	Status         Status    `json:"status" gorm:"not null;index"`
	Reason         string    `json:"reason" gorm:"not null"`
	CustomReason   string    `json:"customReason,omitempty"`
	Notes          string    `json:"notes,omitempty"`

	Items    []RequestItem    `json:"itemsToCancel" gorm:"foreignKey:RequestID"`
	Delivery DeliverySnapshot `json:"deliveryContext" gorm:"embedded;embeddedPrefix:delivery_"`
	Pricing  *PricingSnapshot `json:"pricingSnapshot,omitempty" gorm:"type:jsonb;serializer:json"`

	IncludesDelivery    bool                `json:"includesDelivery"`
	DeliveryRefund      int64               `json:"deliveryRefund"`
	ExpectedRefund      int64               `json:"expectedRefund"`
	Estimate            refundpolicy.Result `json:"estimate" gorm:"type:jsonb;serializer:json"`
	PreviousOrderStatus order.Status        `json:"previousOrderStatus,omitempty"`

	Admin  AdminResponse `json:"adminResponse" gorm:"embedded;embeddedPrefix:admin_"`
	Refund RefundDetails `json:"refundDetails" gorm:"embedded;embeddedPrefix:refund_"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name.
func (Request) TableName() string {
	return "cancellation_requests"
}

// RequestItem is one order line targeted by a request.
// Basis is the amount the refund percentage applies to.
type RequestItem struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RequestID       uuid.UUID `json:"-" gorm:"type:uuid;not null;index"`
	ItemID          uuid.UUID `json:"itemId" gorm:"type:uuid;not null"`
	Name            string    `json:"name"`
	Quantity        int       `json:"quantity"`
	LineTotal       int64     `json:"lineTotal"`
	ClientPrice     *int64    `json:"clientPrice,omitempty"`
	Basis           int64     `json:"basis"`
	EstimatedRefund int64     `json:"estimatedRefund"`
	ApprovedRefund  int64     `json:"approvedRefund"`
}

// TableName returns the database table name.
func (RequestItem) TableName() string {
	return "cancellation_request_items"
}

// DeliverySnapshot captures the order's delivery state when the request was made.
type DeliverySnapshot struct {
	EstimatedDate *time.Time `json:"estimatedDate,omitempty"`
	ActualDate    *time.Time `json:"actualDate,omitempty"`
	PastDue       bool       `json:"pastDue"`
}

// PricingSnapshot is the pricing the customer saw at checkout. It can only
// lower the refund basis, never raise it.
type PricingSnapshot struct {
	Subtotal       *int64 `json:"subtotal,omitempty"`
	DeliveryCharge *int64 `json:"deliveryCharge,omitempty"`
}

// AdminResponse is the reviewer's decision.
type AdminResponse struct {
	ProcessedBy        *uuid.UUID `json:"processedBy,omitempty" gorm:"type:uuid"`
	ProcessedAt        *time.Time `json:"processedDate,omitempty"`
	Comments           string     `json:"comments,omitempty"`
	RefundAmount       int64      `json:"refundAmount"`
	RefundPercentage   float64    `json:"refundPercentage"`
	OverridePercentage *float64   `json:"overridePercentage,omitempty"`
}

// RefundDetails tracks the money movement of an approved request.
type RefundDetails struct {
	Status         RefundStatus         `json:"refundStatus,omitempty"`
	RefundID       string               `json:"refundId,omitempty" gorm:"index"`
	RefundDate     *time.Time           `json:"refundDate,omitempty"`
	TransactionRef string               `json:"transactionRef,omitempty"`
	Source         RefundSource         `json:"source,omitempty"`
	CompletedBy    *uuid.UUID           `json:"completedBy,omitempty" gorm:"type:uuid"`
	Comments       string               `json:"comments,omitempty"`
	DeliveryAmount int64                `json:"deliveryAmount"`
	Calculation    *refundpolicy.Result `json:"enhancedRefundData,omitempty" gorm:"type:jsonb;serializer:json"`
}

// ItemIDs returns the targeted order item ids in request order.
func (r *Request) ItemIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.Items))
	for i, item := range r.Items {
		ids[i] = item.ItemID
	}
	return ids
}

// IsOwnedBy reports whether userID filed the request.
func (r *Request) IsOwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && r.UserID == userID
}
