package cancellation

import (
	"fmt"
	"time"

	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/refundpolicy"
	apperrors "github.com/storefront/server/internal/shared/errors"
)

// quote is the priced outcome of cancelling targets from an order.
type quote struct {
	targets          []*order.OrderItem
	bases            []int64
	includesDelivery bool
	deliveryBasis    int64
	result           refundpolicy.Result
	itemShares       []int64
	deliveryShare    int64
}

func (q *quote) cancellationType() Type {
	if q.includesDelivery {
		return TypeFullOrder
	}
	return TypePartialItems
}

// selectTargets resolves a selection against the order's items. An empty
// selection targets every active item. Inactive targets are skipped.
func selectTargets(o *order.Order, sel []ItemSelection) ([]*order.OrderItem, []*int64, error) {
	active := o.ActiveItems()
	if len(active) == 0 {
		return nil, nil, ErrNoActiveItems
	}
	if len(sel) == 0 {
		return active, make([]*int64, len(active)), nil
	}

	fields := make(map[string]string)
	seen := make(map[string]bool, len(sel))
	var targets []*order.OrderItem
	var prices []*int64
	for i, s := range sel {
		key := fmt.Sprintf("itemsToCancel[%d]", i)
		item := o.FindItem(s.ItemID)
		switch {
		case seen[s.ItemID.String()]:
			fields[key] = "item listed more than once"
		case item == nil:
			fields[key] = "item does not belong to this order"
		case s.Quantity != 0 && s.Quantity != item.Quantity:
			fields[key] = fmt.Sprintf("quantity must be %d, lines are cancelled whole", item.Quantity)
		case item.IsActive():
			targets = append(targets, item)
			prices = append(prices, s.ClientPrice)
		}
		seen[s.ItemID.String()] = true
	}
	if len(fields) > 0 {
		return nil, nil, apperrors.Validation(fields)
	}
	if len(targets) == 0 {
		return nil, nil, ErrNoActiveItems.WithMessage("the selected items are already cancelled")
	}
	return targets, prices, nil
}

// coversAllActive reports whether targets are exactly the order's active items.
// This is the one rule deciding whether the delivery charge is refunded.
func coversAllActive(o *order.Order, targets []*order.OrderItem) bool {
	active := o.ActiveItems()
	if len(active) != len(targets) {
		return false
	}
	want := make(map[*order.OrderItem]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	for _, a := range active {
		if !want[a] {
			return false
		}
	}
	return true
}

// itemBases returns the refund basis per target: the server line total,
// lowered to the customer's price when that is smaller. A snapshot subtotal
// below the full-order basis is spread across the lines.
func itemBases(targets []*order.OrderItem, prices []*int64, pricing *PricingSnapshot, fullOrder bool) []int64 {
	bases := make([]int64, len(targets))
	var sum int64
	for i, t := range targets {
		bases[i] = t.LineTotal
		if i < len(prices) && prices[i] != nil && *prices[i] < bases[i] {
			bases[i] = *prices[i]
		}
		sum += bases[i]
	}
	if fullOrder && pricing != nil && pricing.Subtotal != nil && *pricing.Subtotal < sum {
		bases, _ = refundpolicy.Split(*pricing.Subtotal, bases, 0)
	}
	return bases
}

func deliveryBasis(o *order.Order, pricing *PricingSnapshot) int64 {
	basis := o.DeliveryCharge
	if pricing != nil && pricing.DeliveryCharge != nil && *pricing.DeliveryCharge < basis {
		basis = *pricing.DeliveryCharge
	}
	return basis
}

// price runs the engine over the bases and splits the refund across the
// lines and the delivery charge. The legacy flat percentage is used when the
// engine rejects a positive amount.
func price(policy *refundpolicy.Policy, o *order.Order, targets []*order.OrderItem, bases []int64, pricing *PricingSnapshot, override *float64, now time.Time) *quote {
	q := &quote{
		targets:          targets,
		bases:            bases,
		includesDelivery: coversAllActive(o, targets),
	}
	if q.includesDelivery {
		q.deliveryBasis = deliveryBasis(o, pricing)
	}

	amount := q.deliveryBasis
	for _, b := range bases {
		amount += b
	}

	in := refundpolicy.Input{
		Amount:            amount,
		OrderDate:         o.CreatedAt,
		Now:               now,
		EstimatedDelivery: o.EstimatedDeliveryDate,
		ActualDelivery:    o.ActualDeliveryDate,
		Override:          override,
	}
	if o.LoyaltyTier != "" {
		in.Customer = &refundpolicy.CustomerInfo{Tier: o.LoyaltyTier}
	}
	q.result = refundpolicy.Calculate(policy, in)
	if q.result.Rejected && amount > 0 {
		q.result = refundpolicy.Legacy(amount, policy)
	}

	q.itemShares, q.deliveryShare = refundpolicy.Split(q.result.RefundAmount, bases, q.deliveryBasis)
	return q
}
