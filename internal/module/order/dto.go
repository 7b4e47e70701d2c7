package order

import (
	"time"

	"github.com/google/uuid"
)

// CreateOrderItemRequest is one line item of an imported order.
type CreateOrderItemRequest struct {
	Kind      ItemKind `json:"kind"`
	CatalogID string   `json:"catalogId" binding:"required"`
	Name      string   `json:"name" binding:"required"`
	Quantity  int      `json:"quantity" binding:"required,min=1"`
	UnitPrice int64    `json:"unitPrice" binding:"min=0"`
	Size      string   `json:"size"`
	SizePrice *int64   `json:"sizePrice" binding:"omitempty,min=0"`
}

// CreateOrderRequest imports an order placed through checkout.
type CreateOrderRequest struct {
	UserID                uuid.UUID                `json:"userId" binding:"required"`
	CustomerEmail         string                   `json:"customerEmail" binding:"required,email"`
	CustomerName          string                   `json:"customerName"`
	LoyaltyTier           string                   `json:"loyaltyTier"`
	Currency              string                   `json:"currency"`
	PaymentMethod         PaymentMethod            `json:"paymentMethod"`
	DeliveryCharge        int64                    `json:"deliveryCharge" binding:"min=0"`
	EstimatedDeliveryDate *time.Time               `json:"estimatedDeliveryDate"`
	Items                 []CreateOrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// UpdateStatusRequest is the admin status update body.
type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
}

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int `form:"page" binding:"min=1"`
	PageSize int `form:"page_size" binding:"min=1,max=100"`
}

// NewPagination creates pagination with defaults.
func NewPagination() *Pagination {
	return &Pagination{
		Page:     1,
		PageSize: 20,
	}
}

// Offset returns the offset for database queries.
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// OrderItemResponse represents an order item in API responses.
type OrderItemResponse struct {
	ID             uuid.UUID    `json:"id"`
	Kind           ItemKind     `json:"kind"`
	CatalogID      string       `json:"catalogId"`
	Name           string       `json:"name"`
	Quantity       int          `json:"quantity"`
	UnitPrice      int64        `json:"unitPrice"`
	Size           string       `json:"size,omitempty"`
	SizePrice      *int64       `json:"sizePrice,omitempty"`
	LineTotal      int64        `json:"lineTotal"`
	Status         ItemStatus   `json:"status"`
	CancelApproved bool         `json:"cancelApproved"`
	RefundStatus   RefundStatus `json:"refundStatus,omitempty"`
	RefundAmount   int64        `json:"refundAmount"`
	CancelledAt    *time.Time   `json:"cancelledAt,omitempty"`
}

// RefundEntryResponse represents a ledger entry in API responses.
type RefundEntryResponse struct {
	ItemID      *uuid.UUID   `json:"itemId,omitempty"`
	RequestID   uuid.UUID    `json:"requestId"`
	Kind        EntryKind    `json:"kind"`
	Amount      int64        `json:"amount"`
	Status      RefundStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID                    uuid.UUID             `json:"id"`
	OrderNo               string                `json:"orderNo"`
	Status                Status                `json:"status"`
	PaymentStatus         PaymentStatus         `json:"paymentStatus"`
	PaymentMethod         PaymentMethod         `json:"paymentMethod"`
	Subtotal              int64                 `json:"subtotal"`
	DeliveryCharge        int64                 `json:"deliveryCharge"`
	TotalAmt              int64                 `json:"totalAmt"`
	OriginalTotal         int64                 `json:"originalTotal"`
	Currency              string                `json:"currency"`
	IsFullOrderCancelled  bool                  `json:"isFullOrderCancelled"`
	EstimatedDeliveryDate *time.Time            `json:"estimatedDeliveryDate,omitempty"`
	ActualDeliveryDate    *time.Time            `json:"actualDeliveryDate,omitempty"`
	PaidAt                *time.Time            `json:"paidAt,omitempty"`
	CreatedAt             time.Time             `json:"createdAt"`
	Items                 []OrderItemResponse   `json:"items"`
	RefundSummary         []RefundEntryResponse `json:"refundSummary"`
}

// OrderListResponse is a page of orders.
type OrderListResponse struct {
	Orders   []*OrderResponse `json:"orders"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// ToResponse converts an Order to OrderResponse.
func (o *Order) ToResponse() *OrderResponse {
	resp := &OrderResponse{
		ID:                    o.ID,
		OrderNo:               o.OrderNo,
		Status:                o.Status,
		PaymentStatus:         o.PaymentStatus,
		PaymentMethod:         o.PaymentMethod,
		Subtotal:              o.Subtotal,
		DeliveryCharge:        o.DeliveryCharge,
		TotalAmt:              o.TotalAmt,
		OriginalTotal:         o.OriginalTotal,
		Currency:              o.Currency,
		IsFullOrderCancelled:  o.IsFullOrderCancelled,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		ActualDeliveryDate:    o.ActualDeliveryDate,
		PaidAt:                o.PaidAt,
		CreatedAt:             o.CreatedAt,
		Items:                 make([]OrderItemResponse, 0, len(o.Items)),
		RefundSummary:         make([]RefundEntryResponse, 0, len(o.RefundSummary)),
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemResponse{
			ID:             item.ID,
			Kind:           item.Kind,
			CatalogID:      item.CatalogID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Size:           item.Size,
			SizePrice:      item.SizePrice,
			LineTotal:      item.LineTotal,
			Status:         item.Status,
			CancelApproved: item.CancelApproved,
			RefundStatus:   item.RefundStatus,
			RefundAmount:   item.RefundAmount,
			CancelledAt:    item.CancelledAt,
		})
	}
	for _, e := range o.RefundSummary {
		resp.RefundSummary = append(resp.RefundSummary, RefundEntryResponse{
			ItemID:      e.ItemID,
			RequestID:   e.RequestID,
			Kind:        e.Kind,
			Amount:      e.Amount,
			Status:      e.Status,
			CreatedAt:   e.CreatedAt,
			CompletedAt: e.CompletedAt,
		})
	}
	return resp
}
