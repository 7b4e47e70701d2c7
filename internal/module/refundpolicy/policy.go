package refundpolicy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/storefront/server/internal/shared/config"
)

// DefaultLegacyPercentage is the flat refund percentage used when a policy
// does not carry its own legacy value.
const DefaultLegacyPercentage = 75

// Tier is a timing tier. A nil MaxDays makes the tier unbounded.
type Tier struct {
	Name       string  `json:"name"`
	MaxDays    *int    `json:"maxDays,omitempty"`
	Percentage float64 `json:"percentage"`
}

// PenaltyRules holds the percentage points deducted for late cancellations.
type PenaltyRules struct {
	AfterDelivery         float64 `json:"afterDelivery"`
	PastEstimatedDelivery float64 `json:"pastEstimatedDelivery"`
}

// Policy is the active cancellation policy document.
// It is fetched once per operation and passed to Calculate explicitly.
type Policy struct {
	Version              string             `json:"version"`
	Tiers                []Tier             `json:"tiers"`
	LoyaltyBonuses       map[string]float64 `json:"loyaltyBonuses,omitempty"`
	Penalties            PenaltyRules       `json:"penalties"`
	LegacyPercentage     float64            `json:"legacyPercentage"`
	BlockedOrderStatuses []string           `json:"blockedOrderStatuses"`
	AllowedReasons       []string           `json:"allowedReasons"`
}

// Validate checks that the policy can be used by the engine.
// Tiers must be ordered by MaxDays with non-increasing percentages, and the
// last tier must be unbounded.
func (p *Policy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: policy is nil", ErrInvalidPolicy)
	}
	if len(p.Tiers) == 0 {
		return fmt.Errorf("%w: at least one tier is required", ErrInvalidPolicy)
	}

	for i, tier := range p.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("%w: tier %d has no name", ErrInvalidPolicy, i)
		}
		if !validPercentage(tier.Percentage) {
			return fmt.Errorf("%w: tier %s percentage %.2f out of range", ErrInvalidPolicy, tier.Name, tier.Percentage)
		}
		last := i == len(p.Tiers)-1
		if last && tier.MaxDays != nil {
			return fmt.Errorf("%w: last tier %s must be unbounded", ErrInvalidPolicy, tier.Name)
		}
		if !last && tier.MaxDays == nil {
			return fmt.Errorf("%w: only the last tier may be unbounded", ErrInvalidPolicy)
		}
		if tier.MaxDays != nil && *tier.MaxDays < 0 {
			return fmt.Errorf("%w: tier %s has negative max days", ErrInvalidPolicy, tier.Name)
		}
		if i == 0 {
			continue
		}
		prev := p.Tiers[i-1]
		if tier.MaxDays != nil && *tier.MaxDays <= *prev.MaxDays {
			return fmt.Errorf("%w: tiers must be sorted by max days", ErrInvalidPolicy)
		}
		if tier.Percentage > prev.Percentage {
			return fmt.Errorf("%w: tier %s refunds more than %s", ErrInvalidPolicy, tier.Name, prev.Name)
		}
	}

	for name, points := range p.LoyaltyBonuses {
		if points < 0 || points > 100 {
			return fmt.Errorf("%w: loyalty bonus %s out of range", ErrInvalidPolicy, name)
		}
	}
	if !validPercentage(p.Penalties.AfterDelivery) || !validPercentage(p.Penalties.PastEstimatedDelivery) {
		return fmt.Errorf("%w: penalties out of range", ErrInvalidPolicy)
	}
	if !validPercentage(p.LegacyPercentage) {
		return fmt.Errorf("%w: legacy percentage out of range", ErrInvalidPolicy)
	}
	return nil
}

// TierFor returns the tier that applies after the given number of days.
func (p *Policy) TierFor(days int) Tier {
	for _, tier := range p.Tiers {
		if tier.MaxDays == nil || days <= *tier.MaxDays {
			return tier
		}
	}
	return p.Tiers[len(p.Tiers)-1]
}

// BonusFor returns the bonus points for a loyalty tier.
func (p *Policy) BonusFor(loyaltyTier string) (float64, bool) {
	if loyaltyTier == "" {
		return 0, false
	}
	points, ok := p.LoyaltyBonuses[strings.ToUpper(loyaltyTier)]
	return points, ok && points > 0
}

// IsBlocked reports whether orders in status may not be cancelled.
func (p *Policy) IsBlocked(status string) bool {
	return slices.ContainsFunc(p.BlockedOrderStatuses, func(s string) bool {
		return strings.EqualFold(s, status)
	})
}

// NormalizeReason matches reason against the allowed reasons case-insensitively
// and returns the canonical spelling. A policy without allowed reasons accepts
// any non-empty reason.
func (p *Policy) NormalizeReason(reason string) (string, bool) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", false
	}
	if len(p.AllowedReasons) == 0 {
		return reason, true
	}
	for _, allowed := range p.AllowedReasons {
		if strings.EqualFold(allowed, reason) {
			return allowed, true
		}
	}
	return "", false
}

// legacyPercentage returns the flat fallback percentage.
func (p *Policy) legacyPercentage() float64 {
	if p == nil || p.LegacyPercentage <= 0 {
		return DefaultLegacyPercentage
	}
	return p.LegacyPercentage
}

// Clone returns a deep copy of the policy.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Tiers = make([]Tier, len(p.Tiers))
	for i, tier := range p.Tiers {
		cp.Tiers[i] = tier
		if tier.MaxDays != nil {
			days := *tier.MaxDays
			cp.Tiers[i].MaxDays = &days
		}
	}
	if p.LoyaltyBonuses != nil {
		cp.LoyaltyBonuses = make(map[string]float64, len(p.LoyaltyBonuses))
		for k, v := range p.LoyaltyBonuses {
			cp.LoyaltyBonuses[k] = v
		}
	}
	cp.BlockedOrderStatuses = slices.Clone(p.BlockedOrderStatuses)
	cp.AllowedReasons = slices.Clone(p.AllowedReasons)
	return &cp
}

// FromConfig builds a validated policy from the configured default.
func FromConfig(cfg config.PolicyConfig) (*Policy, error) {
	p := &Policy{
		Version:              cfg.Version,
		Tiers:                make([]Tier, 0, len(cfg.Tiers)),
		LoyaltyBonuses:       make(map[string]float64, len(cfg.LoyaltyBonuses)),
		LegacyPercentage:     cfg.LegacyPercentage,
		BlockedOrderStatuses: upperAll(cfg.BlockedOrderStatuses),
		AllowedReasons:       upperAll(cfg.AllowedReasons),
		Penalties: PenaltyRules{
			AfterDelivery:         cfg.AfterDeliveryPenalty,
			PastEstimatedDelivery: cfg.PastEstimatedDeliveryPenalty,
		},
	}
	for _, tc := range cfg.Tiers {
		tier := Tier{Name: strings.ToUpper(tc.Name), Percentage: tc.Percentage}
		if tc.MaxDays >= 0 {
			days := tc.MaxDays
			tier.MaxDays = &days
		}
		p.Tiers = append(p.Tiers, tier)
	}
	// viper lowercases map keys.
	for name, points := range cfg.LoyaltyBonuses {
		p.LoyaltyBonuses[strings.ToUpper(name)] = points
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func upperAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, strings.ToUpper(v))
		}
	}
	return out
}

func validPercentage(v float64) bool {
	return v >= 0 && v <= 100
}
