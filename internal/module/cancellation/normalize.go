package cancellation

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/refundpolicy"
	apperrors "github.com/storefront/server/internal/shared/errors"
)

// Action is an admin decision on a pending request.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// ReasonOther must come with a free-text custom reason.
const ReasonOther = "OTHER"

// ParseAction accepts APPROVE/APPROVED and REJECT/REJECTED in any case.
func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "APPROVE", "APPROVED":
		return ActionApprove, true
	case "REJECT", "REJECTED":
		return ActionReject, true
	default:
		return "", false
	}
}

// ItemSelection targets one order line.
// A zero Quantity means the whole line.
type ItemSelection struct {
	ItemID      uuid.UUID
	Quantity    int
	ClientPrice *int64
}

// RequestCommand is a normalized cancellation request.
// Empty Items means every active item.
type RequestCommand struct {
	UserID       uuid.UUID
	OrderRef     string
	Reason       string
	CustomReason string
	Notes        string
	Items        []ItemSelection
	Pricing      *PricingSnapshot
}

// ProcessCommand is a normalized admin decision.
type ProcessCommand struct {
	AdminID    uuid.UUID
	RequestRef string
	Action     Action
	Comments   string
	Override   *float64
}

// CompleteCommand is a normalized refund completion.
type CompleteCommand struct {
	AdminID        uuid.UUID
	RequestRef     string
	TransactionRef string
	Comments       string
}

// Normalize folds the aliased wire fields into a RequestCommand.
func (b *RequestBody) Normalize(userID uuid.UUID) (RequestCommand, error) {
	return b.normalize(userID, true)
}

// NormalizeEstimate is Normalize for a price preview, where the reason is optional.
func (b *RequestBody) NormalizeEstimate(userID uuid.UUID) (RequestCommand, error) {
	return b.normalize(userID, false)
}

func (b *RequestBody) normalize(userID uuid.UUID, requireReason bool) (RequestCommand, error) {
	fields := make(map[string]string)
	cmd := RequestCommand{
		UserID:       userID,
		OrderRef:     pick(fields, "orderRef", b.OrderRef, b.OrderID, b.OrderNo),
		Reason:       strings.TrimSpace(b.Reason),
		CustomReason: pick(fields, "customReason", b.CustomReason, b.AdditionalReason),
		Notes:        strings.TrimSpace(b.Notes),
		Pricing:      b.PricingSnapshot,
	}
	if cmd.OrderRef == "" && fields["orderRef"] == "" {
		fields["orderRef"] = "is required"
	}
	if requireReason && cmd.Reason == "" {
		fields["reason"] = "is required"
	}

	for i, item := range b.ItemsToCancel {
		key := fmt.Sprintf("itemsToCancel[%d]", i)
		ref := pick(fields, key, item.ItemID, item.ID)
		if _, bad := fields[key]; bad {
			continue
		}
		id, err := uuid.Parse(ref)
		switch {
		case err != nil:
			fields[key] = "itemId must be a valid id"
		case item.Quantity < 0:
			fields[key] = "quantity must not be negative"
		case item.Price != nil && *item.Price < 0:
			fields[key] = "price must not be negative"
		default:
			cmd.Items = append(cmd.Items, ItemSelection{ItemID: id, Quantity: item.Quantity, ClientPrice: item.Price})
		}
	}

	if p := b.PricingSnapshot; p != nil {
		if p.Subtotal != nil && *p.Subtotal < 0 {
			fields["pricingSnapshot.subtotal"] = "must not be negative"
		}
		if p.DeliveryCharge != nil && *p.DeliveryCharge < 0 {
			fields["pricingSnapshot.deliveryCharge"] = "must not be negative"
		}
	}

	if len(fields) > 0 {
		return RequestCommand{}, apperrors.Validation(fields)
	}
	return cmd, nil
}

// Normalize folds the aliased wire fields into a ProcessCommand.
func (b *ProcessBody) Normalize(adminID uuid.UUID) (ProcessCommand, error) {
	fields := make(map[string]string)
	cmd := ProcessCommand{
		AdminID:    adminID,
		RequestRef: pick(fields, "requestId", b.RequestID, b.CancellationID),
		Comments:   pick(fields, "comments", b.Comments, b.AdminComments),
		Override:   b.OverridePercentage,
	}
	if cmd.RequestRef == "" && fields["requestId"] == "" {
		fields["requestId"] = "is required"
	}
	action, ok := ParseAction(b.Action)
	if !ok {
		fields["action"] = "must be APPROVE or REJECT"
	}
	cmd.Action = action
	if o := b.OverridePercentage; o != nil && (*o < 0 || *o > 100) {
		fields["overridePercentage"] = "must be between 0 and 100"
	}

	if len(fields) > 0 {
		return ProcessCommand{}, apperrors.Validation(fields)
	}
	return cmd, nil
}

// Normalize folds the aliased wire fields into a CompleteCommand.
func (b *CompleteBody) Normalize(adminID uuid.UUID) (CompleteCommand, error) {
	fields := make(map[string]string)
	cmd := CompleteCommand{
		AdminID:        adminID,
		RequestRef:     pick(fields, "requestId", b.RequestID, b.CancellationID),
		TransactionRef: pick(fields, "transactionRef", b.TransactionRef, b.TransactionID),
		Comments:       strings.TrimSpace(b.Comments),
	}
	if cmd.RequestRef == "" && fields["requestId"] == "" {
		fields["requestId"] = "is required"
	}

	if len(fields) > 0 {
		return CompleteCommand{}, apperrors.Validation(fields)
	}
	return cmd, nil
}

// normalizeReason resolves the canonical reason under policy.
func normalizeReason(policy *refundpolicy.Policy, reason, custom string) (string, error) {
	canonical, ok := policy.NormalizeReason(reason)
	if !ok {
		msg := "is not an accepted cancellation reason"
		if len(policy.AllowedReasons) > 0 {
			msg = "must be one of " + strings.Join(policy.AllowedReasons, ", ")
		}
		return "", apperrors.Validation(map[string]string{"reason": msg})
	}
	if strings.EqualFold(canonical, ReasonOther) && custom == "" {
		return "", apperrors.Validation(map[string]string{"customReason": "is required when reason is OTHER"})
	}
	return canonical, nil
}

// pick returns the single non-empty value among aliases. Aliases that
// disagree are recorded as a field error under name.
func pick(fields map[string]string, name string, values ...string) string {
	var out string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if out != "" && v != out {
			fields[name] = "conflicting values supplied under different names"
			return ""
		}
		out = v
	}
	return out
}
