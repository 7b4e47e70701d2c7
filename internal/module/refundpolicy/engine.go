package refundpolicy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Timing is the timing tier name reported on a result.
type Timing string

const (
	TimingEarly    Timing = "EARLY"
	TimingStandard Timing = "STANDARD"
	TimingLate     Timing = "LATE"
)

// Method records how a result was produced.
type Method string

const (
	MethodPolicy Method = "POLICY"
	MethodLegacy Method = "LEGACY"
)

var hundred = decimal.NewFromInt(100)

// CustomerInfo carries the optional customer attributes that earn bonuses.
type CustomerInfo struct {
	Tier string
}

// Input is everything the engine needs to price one cancellation.
// Amount is in minor currency units.
type Input struct {
	Amount            int64
	OrderDate         time.Time
	Now               time.Time
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
	Override          *float64
	Customer          *CustomerInfo
}

// Bonuses lists the percentage points added to the base percentage.
type Bonuses struct {
	TotalBonus float64  `json:"totalBonus"`
	Reasons    []string `json:"reasons"`
}

// Penalties lists the percentage points deducted from the base percentage.
type Penalties struct {
	TotalPenalty float64  `json:"totalPenalty"`
	Reasons      []string `json:"reasons"`
}

// Result is the refund calculation value object.
type Result struct {
	OriginalAmount   int64     `json:"originalAmount"`
	BasePercentage   float64   `json:"basePercentage"`
	RefundPercentage float64   `json:"refundPercentage"`
	RefundAmount     int64     `json:"refundAmount"`
	Timing           Timing    `json:"cancellationTiming"`
	DaysSinceOrder   int       `json:"daysSinceOrder"`
	OverrideApplied  bool      `json:"overrideApplied,omitempty"`
	Bonuses          Bonuses   `json:"bonuses"`
	Penalties        Penalties `json:"penalties"`
	Method           Method    `json:"method"`
	PolicyVersion    string    `json:"policyVersion,omitempty"`
	Rejected         bool      `json:"rejected,omitempty"`
}

// Calculate prices a cancellation under policy. It is a pure function: the
// same policy and input always produce the same result. A non-positive amount
// or a missing policy yields a rejected zero result.
func Calculate(policy *Policy, in Input) Result {
	res := Result{
		Method:    MethodPolicy,
		Bonuses:   Bonuses{Reasons: []string{}},
		Penalties: Penalties{Reasons: []string{}},
	}
	if policy == nil || len(policy.Tiers) == 0 || in.Amount <= 0 {
		res.Rejected = true
		if policy != nil {
			res.PolicyVersion = policy.Version
		}
		return res
	}
	res.PolicyVersion = policy.Version
	res.OriginalAmount = in.Amount

	res.DaysSinceOrder = DaysBetween(in.OrderDate, in.Now)
	tier := policy.TierFor(res.DaysSinceOrder)
	res.Timing = Timing(tier.Name)
	res.BasePercentage = tier.Percentage
	if in.Override != nil {
		res.BasePercentage = *in.Override
		res.OverrideApplied = true
	}

	if in.Customer != nil {
		if points, ok := policy.BonusFor(in.Customer.Tier); ok {
			res.Bonuses.TotalBonus += points
			res.Bonuses.Reasons = append(res.Bonuses.Reasons,
				fmt.Sprintf("%s member bonus: +%s%%", in.Customer.Tier, formatPoints(points)))
		}
	}

	switch {
	case in.ActualDelivery != nil && !in.Now.Before(*in.ActualDelivery):
		if points := policy.Penalties.AfterDelivery; points > 0 {
			res.Penalties.TotalPenalty += points
			res.Penalties.Reasons = append(res.Penalties.Reasons,
				fmt.Sprintf("cancelled after delivery: -%s%%", formatPoints(points)))
		}
	case in.EstimatedDelivery != nil && in.Now.After(*in.EstimatedDelivery):
		if points := policy.Penalties.PastEstimatedDelivery; points > 0 {
			res.Penalties.TotalPenalty += points
			res.Penalties.Reasons = append(res.Penalties.Reasons,
				fmt.Sprintf("cancelled past estimated delivery: -%s%%", formatPoints(points)))
		}
	}

	pct := decimal.NewFromFloat(res.BasePercentage).
		Add(decimal.NewFromFloat(res.Bonuses.TotalBonus)).
		Sub(decimal.NewFromFloat(res.Penalties.TotalPenalty))
	pct = clampPercentage(pct).Round(2)

	res.RefundPercentage = pct.InexactFloat64()
	res.RefundAmount = applyPercentage(in.Amount, pct)
	return res
}

// Legacy prices a cancellation with the flat fallback percentage. It is used
// when the policy engine rejects the input or no policy is available.
func Legacy(amount int64, policy *Policy) Result {
	res := Result{
		Method:    MethodLegacy,
		Bonuses:   Bonuses{Reasons: []string{}},
		Penalties: Penalties{Reasons: []string{}},
	}
	if policy != nil {
		res.PolicyVersion = policy.Version
	}
	if amount <= 0 {
		res.Rejected = true
		return res
	}

	pct := clampPercentage(decimal.NewFromFloat(policy.legacyPercentage())).Round(2)
	res.OriginalAmount = amount
	res.BasePercentage = pct.InexactFloat64()
	res.RefundPercentage = res.BasePercentage
	res.RefundAmount = applyPercentage(amount, pct)
	return res
}

// DaysBetween returns the whole days elapsed from start to now, never negative.
func DaysBetween(start, now time.Time) int {
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / (24 * time.Hour))
}

// Split allocates total across item bases and an optional delivery basis in
// proportion to each basis. Item shares are rounded down and the remainder
// goes to the delivery share, so the shares always sum to total. When
// deliveryBasis is zero the remainder goes to the last item.
func Split(total int64, itemBases []int64, deliveryBasis int64) ([]int64, int64) {
	shares := make([]int64, len(itemBases))
	sum := deliveryBasis
	for _, b := range itemBases {
		sum += b
	}
	if total <= 0 || sum <= 0 {
		return shares, 0
	}

	totalDec := decimal.NewFromInt(total)
	sumDec := decimal.NewFromInt(sum)
	var allocated int64
	for i, b := range itemBases {
		shares[i] = totalDec.Mul(decimal.NewFromInt(b)).Div(sumDec).Floor().IntPart()
		allocated += shares[i]
	}

	remainder := total - allocated
	if deliveryBasis > 0 || len(shares) == 0 {
		return shares, remainder
	}
	shares[len(shares)-1] += remainder
	return shares, 0
}

func clampPercentage(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// applyPercentage returns amount * pct / 100 rounded half-up to a minor unit.
func applyPercentage(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0).IntPart()
}

func formatPoints(points float64) string {
	return decimal.NewFromFloat(points).String()
}
