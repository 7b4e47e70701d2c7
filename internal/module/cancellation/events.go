package cancellation

import (
	"time"

	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/shared/events"
)

const aggregateType = "CancellationRequest"

func newEvent(eventType string, req *Request, o *order.Order, at time.Time) *events.CancellationEvent {
	e := &events.CancellationEvent{
		BaseEvent:        events.NewBaseEvent(eventType, req.ID, aggregateType, at),
		CancellationID:   req.CancellationID,
		OrderID:          o.ID,
		OrderNo:          o.OrderNo,
		CustomerEmail:    o.CustomerEmail,
		CustomerName:     o.CustomerName,
		CancellationType: string(req.Type),
		Status:           string(req.Status),
		Currency:         o.Currency,
		Items:            make([]events.CancelledItem, len(req.Items)),
		RefundAmount:     req.ExpectedRefund,
		RefundPercentage: req.Estimate.RefundPercentage,
		DeliveryRefund:   req.DeliveryRefund,
		Timing:           string(req.Estimate.Timing),
		Bonuses:          req.Estimate.Bonuses.Reasons,
		Penalties:        req.Estimate.Penalties.Reasons,
	}

	approved := req.Status == StatusApproved
	for i, item := range req.Items {
		amount := item.EstimatedRefund
		if approved {
			amount = item.ApprovedRefund
		}
		e.Items[i] = events.CancelledItem{Name: item.Name, Quantity: item.Quantity, Amount: amount}
	}

	if req.Status != StatusPending {
		e.Comments = req.Admin.Comments
	}
	if calc := req.Refund.Calculation; approved && calc != nil {
		e.RefundAmount = req.Admin.RefundAmount
		e.RefundPercentage = req.Admin.RefundPercentage
		e.DeliveryRefund = req.Refund.DeliveryAmount
		e.Timing = string(calc.Timing)
		e.Bonuses = calc.Bonuses.Reasons
		e.Penalties = calc.Penalties.Reasons
	}
	if req.Refund.Status == RefundCompleted {
		e.RefundID = req.Refund.RefundID
		e.RefundDate = req.Refund.RefundDate
	}
	return e
}
