package order

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the fulfilment status of an order.
type Status string

const (
	StatusPaymentPending     Status = "PAYMENT_PENDING"
	StatusOrderPlaced        Status = "ORDER_PLACED"
	StatusProcessing         Status = "PROCESSING"
	StatusOutForDelivery     Status = "OUT_FOR_DELIVERY"
	StatusDelivered          Status = "DELIVERED"
	StatusCancelRequested    Status = "CANCEL_REQUESTED"
	StatusPartiallyCancelled Status = "PARTIALLY_CANCELLED"
	StatusCancelled          Status = "CANCELLED"
	StatusRefundProcessing   Status = "REFUND_PROCESSING"
)

// PaymentStatus represents the payment status of an order.
type PaymentStatus string

const (
	PaymentPending                 PaymentStatus = "PENDING"
	PaymentPaid                    PaymentStatus = "PAID"
	PaymentFailed                  PaymentStatus = "FAILED"
	PaymentRefundProcessing        PaymentStatus = "REFUND_PROCESSING"
	PaymentPartialRefundProcessing PaymentStatus = "PARTIAL_REFUND_PROCESSING"
	PaymentRefundSuccessful        PaymentStatus = "REFUND_SUCCESSFUL"
	PaymentCancelled               PaymentStatus = "CANCELLED"
)

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "ONLINE"
	PaymentMethodCOD    PaymentMethod = "COD"
)

// ItemKind distinguishes catalog products from bundles.
type ItemKind string

const (
	ItemKindProduct ItemKind = "product"
	ItemKindBundle  ItemKind = "bundle"
)

// ItemStatus is the lifecycle status of a line item.
type ItemStatus string

const (
	ItemActive    ItemStatus = "Active"
	ItemCancelled ItemStatus = "Cancelled"
)

// RefundStatus is the refund progress of a line item or ledger entry.
type RefundStatus string

const (
	RefundNone       RefundStatus = ""
	RefundProcessing RefundStatus = "Processing"
	RefundCompleted  RefundStatus = "Completed"
)

// EntryKind says what a ledger entry refunds.
type EntryKind string

const (
	EntryItem     EntryKind = "ITEM"
	EntryDelivery EntryKind = "DELIVERY"
)

// Order is the order aggregate. Money fields are minor currency units.
type Order struct {
	ID                    uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderNo               string        `json:"orderNo" gorm:"uniqueIndex;not null"`
	UserID                uuid.UUID     `json:"userId" gorm:"type:uuid;not null;index"`
	CustomerEmail         string        `json:"customerEmail"`
	CustomerName          string        `json:"customerName"`
	LoyaltyTier           string        `json:"loyaltyTier,omitempty"`
	Subtotal              int64         `json:"subtotal"`
	DeliveryCharge        int64         `json:"deliveryCharge"`
	TotalAmt              int64         `json:"totalAmt"`
	OriginalTotal         int64         `json:"originalTotal"`
	Currency              string        `json:"currency" gorm:"not null;default:INR"`
	Status                Status        `json:"status" gorm:"not null;index"`
	PaymentStatus         PaymentStatus `json:"paymentStatus" gorm:"not null"`
	PaymentMethod         PaymentMethod `json:"paymentMethod" gorm:"not null;default:ONLINE"`
	PaymentReference      string        `json:"-" gorm:"index"`
	IsFullOrderCancelled  bool          `json:"isFullOrderCancelled"`
	EstimatedDeliveryDate *time.Time    `json:"estimatedDeliveryDate,omitempty"`
	ActualDeliveryDate    *time.Time    `json:"actualDeliveryDate,omitempty"`
	PaidAt                *time.Time    `json:"paidAt,omitempty"`
	CreatedAt             time.Time     `json:"createdAt"`
	UpdatedAt             time.Time     `json:"updatedAt"`

	Items         []OrderItem   `json:"items,omitempty" gorm:"foreignKey:OrderID"`
	RefundSummary []RefundEntry `json:"refundSummary,omitempty" gorm:"foreignKey:OrderID"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// OrderItem is a line item. LineTotal is Quantity times the size-adjusted unit price.
type OrderItem struct {
	ID             uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID        uuid.UUID    `json:"orderId" gorm:"type:uuid;not null;index"`
	Position       int          `json:"position"`
	Kind           ItemKind     `json:"kind" gorm:"not null;default:product"`
	CatalogID      string       `json:"catalogId" gorm:"not null"`
	Name           string       `json:"name" gorm:"not null"`
	Quantity       int          `json:"quantity" gorm:"not null;default:1"`
	UnitPrice      int64        `json:"unitPrice"`
	Size           string       `json:"size,omitempty"`
	SizePrice      *int64       `json:"sizePrice,omitempty"`
	LineTotal      int64        `json:"lineTotal"`
	Status         ItemStatus   `json:"status" gorm:"not null;default:Active"`
	CancelApproved bool         `json:"cancelApproved"`
	RefundStatus   RefundStatus `json:"refundStatus,omitempty"`
	RefundAmount   int64        `json:"refundAmount"`
	CancelledAt    *time.Time   `json:"cancelledAt,omitempty"`
}

// TableName returns the database table name.
func (OrderItem) TableName() string {
	return "order_items"
}

// EffectiveUnitPrice returns the size price when one is set.
func (i *OrderItem) EffectiveUnitPrice() int64 {
	if i.SizePrice != nil {
		return *i.SizePrice
	}
	return i.UnitPrice
}

// IsActive reports whether the item is still part of the order.
func (i *OrderItem) IsActive() bool {
	return i.Status == ItemActive && !i.CancelApproved
}

// RefundEntry is one row of the append-only refund ledger.
// A nil ItemID means the entry refunds the delivery charge.
type RefundEntry struct {
	ID          uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID     uuid.UUID    `json:"orderId" gorm:"type:uuid;not null;index"`
	ItemID      *uuid.UUID   `json:"itemId,omitempty" gorm:"type:uuid"`
	RequestID   uuid.UUID    `json:"requestId" gorm:"type:uuid;not null;index"`
	Kind        EntryKind    `json:"kind" gorm:"not null"`
	Amount      int64        `json:"amount"`
	Status      RefundStatus `json:"status" gorm:"not null"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// TableName returns the database table name.
func (RefundEntry) TableName() string {
	return "order_refund_entries"
}

// ActiveItems returns pointers to the items still active, in order.
func (o *Order) ActiveItems() []*OrderItem {
	active := make([]*OrderItem, 0, len(o.Items))
	for i := range o.Items {
		if o.Items[i].IsActive() {
			active = append(active, &o.Items[i])
		}
	}
	return active
}

// FindItem returns the item with the given id.
func (o *Order) FindItem(id uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i]
		}
	}
	return nil
}

// RecomputeTotals derives subtotal and total from the active items.
// The delivery charge is owed only while at least one item remains.
func (o *Order) RecomputeTotals() {
	var subtotal int64
	active := 0
	for _, item := range o.ActiveItems() {
		subtotal += item.LineTotal
		active++
	}
	o.Subtotal = subtotal
	if active == 0 {
		o.TotalAmt = 0
		return
	}
	o.TotalAmt = subtotal + o.DeliveryCharge
}

// LedgerTotal sums every ledger entry.
func (o *Order) LedgerTotal() int64 {
	var total int64
	for _, e := range o.RefundSummary {
		total += e.Amount
	}
	return total
}

// AppendRefund adds entries to the ledger. It refuses when the ledger would
// exceed the amount originally charged, leaving the ledger untouched.
func (o *Order) AppendRefund(entries ...RefundEntry) error {
	sum := o.LedgerTotal()
	for _, e := range entries {
		if e.Amount < 0 {
			return ErrLedgerExceedsTotal.WithMessage("negative refund entry")
		}
		sum += e.Amount
	}
	if sum > o.OriginalTotal {
		return ErrLedgerExceedsTotal
	}
	o.RefundSummary = append(o.RefundSummary, entries...)
	return nil
}

// HasProcessingRefunds reports whether any ledger entry, other than those of
// except, is still processing.
func (o *Order) HasProcessingRefunds(except uuid.UUID) bool {
	for _, e := range o.RefundSummary {
		if e.RequestID != except && e.Status == RefundProcessing {
			return true
		}
	}
	return false
}

// CompleteRefunds marks the ledger entries of requestID and their items as
// completed. It returns the number of ledger entries touched.
func (o *Order) CompleteRefunds(requestID uuid.UUID, at time.Time) int {
	n := 0
	for i := range o.RefundSummary {
		e := &o.RefundSummary[i]
		if e.RequestID != requestID || e.Status == RefundCompleted {
			continue
		}
		e.Status = RefundCompleted
		completedAt := at
		e.CompletedAt = &completedAt
		n++
		if e.ItemID != nil {
			if item := o.FindItem(*e.ItemID); item != nil {
				item.RefundStatus = RefundCompleted
			}
		}
	}
	return n
}

// IsOwnedBy reports whether userID placed the order.
func (o *Order) IsOwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && o.UserID == userID
}
