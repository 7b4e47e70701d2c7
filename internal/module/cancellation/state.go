package cancellation

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/refundpolicy"
)

// Decision is an admin's verdict on a pending request.
type Decision struct {
	By       uuid.UUID
	At       time.Time
	Comments string
}

// Approval is a Decision plus the authoritative refund figures.
// ItemShares are aligned with the request's Items.
type Approval struct {
	Decision
	Calculation      refundpolicy.Result
	Override         *float64
	ItemShares       []int64
	IncludesDelivery bool
	DeliveryShare    int64
}

// Completion describes how an approved refund was paid out.
type Completion struct {
	By             uuid.UUID
	At             time.Time
	RefundID       string
	TransactionRef string
	Source         RefundSource
	Comments       string
}

// Reject moves a pending request to REJECTED.
func (r *Request) Reject(d Decision) error {
	if r.Status != StatusPending {
		return ErrAlreadyProcessed.WithMessage("request %s is already %s", r.CancellationID, r.Status)
	}
	r.Status = StatusRejected
	r.Admin = AdminResponse{
		ProcessedBy: uuidPtr(d.By),
		ProcessedAt: timePtr(d.At),
		Comments:    d.Comments,
	}
	return nil
}

// Approve moves a pending request to APPROVED with its refund PROCESSING.
func (r *Request) Approve(a Approval) error {
	if r.Status != StatusPending {
		return ErrAlreadyProcessed.WithMessage("request %s is already %s", r.CancellationID, r.Status)
	}
	for i := range r.Items {
		if i < len(a.ItemShares) {
			r.Items[i].ApprovedRefund = a.ItemShares[i]
		}
	}
	calc := a.Calculation
	r.Status = StatusApproved
	r.IncludesDelivery = a.IncludesDelivery
	r.Admin = AdminResponse{
		ProcessedBy:        uuidPtr(a.By),
		ProcessedAt:        timePtr(a.At),
		Comments:           a.Comments,
		RefundAmount:       calc.RefundAmount,
		RefundPercentage:   calc.RefundPercentage,
		OverridePercentage: a.Override,
	}
	r.Refund = RefundDetails{
		Status:         RefundProcessing,
		DeliveryAmount: a.DeliveryShare,
		Calculation:    &calc,
	}
	return nil
}

// CanComplete reports why the refund of r cannot be completed, if it cannot.
func (r *Request) CanComplete() error {
	if r.Status != StatusApproved {
		return ErrNotApproved.WithMessage("request %s is %s", r.CancellationID, r.Status)
	}
	if r.Refund.Status == RefundCompleted {
		return ErrRefundAlreadyCompleted.WithMessage("refund for %s was already completed as %s", r.CancellationID, r.Refund.RefundID)
	}
	return nil
}

// CompleteRefund moves the refund of an approved request to COMPLETED.
func (r *Request) CompleteRefund(c Completion) error {
	if err := r.CanComplete(); err != nil {
		return err
	}
	r.Refund.Status = RefundCompleted
	r.Refund.RefundID = c.RefundID
	r.Refund.RefundDate = timePtr(c.At)
	r.Refund.TransactionRef = c.TransactionRef
	r.Refund.Source = c.Source
	r.Refund.CompletedBy = uuidPtr(c.By)
	r.Refund.Comments = c.Comments
	return nil
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func timePtr(t time.Time) *time.Time {
	return &t
}
