package refundpolicy

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func defaultPolicy() *Policy {
	return &Policy{
		Version: "test",
		Tiers: []Tier{
			{Name: "EARLY", MaxDays: intPtr(2), Percentage: 90},
			{Name: "STANDARD", MaxDays: intPtr(7), Percentage: 75},
			{Name: "LATE", Percentage: 50},
		},
		LoyaltyBonuses: map[string]float64{"VIP": 5, "GOLD": 2},
		Penalties: PenaltyRules{
			AfterDelivery:         25,
			PastEstimatedDelivery: 10,
		},
		LegacyPercentage:     75,
		BlockedOrderStatuses: []string{"OUT_FOR_DELIVERY", "DELIVERED", "CANCELLED"},
		AllowedReasons:       []string{"CHANGED_MIND", "ORDERED_BY_MISTAKE", "OTHER"},
	}
}
