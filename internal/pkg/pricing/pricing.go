package pricing

import (
	"fmt"
	"math"

	"github.com/ManuelReschke/VipLedger/internal/pkg/rates"
)

// Base prices in USD per tier index. Index 8 is the administrative tier.
var basePrices = []float64{0.22, 0.33, 0.44, 0.66, 0.88, 1.10, 1.55, 2.0, 0.6}

var tierNames = []string{
	"Vip x2",
	"Vip x3",
	"Vip x4",
	"Vip x6",
	"Vip x8",
	"Vip x10",
	"Vip x15",
	"Vip x20",
	"Administrador",
}

// tierQuantities maps a tier index to the quantity written to the VIP column.
// The administrative tier uses the sentinel 500, which the merge engine never
// sees.
var tierQuantities = []int{2, 3, 4, 6, 8, 10, 15, 20, 500}

// AdminQuantity marks a purchase as an administrative credit rather than a
// tiered entitlement.
const AdminQuantity = 500

// AdminTierIndex is the tier index of the administrative tier.
const AdminTierIndex = 8

// Longer durations multiply the base month count without a linear price
// increase; the discount is baked into these multipliers staying applied to a
// single month's price.
var durationMultipliers = []int{1, 2, 3, 6, 12}

var durationPhrases = []string{"un mes", "dos meses", "tres meses", "seis meses", "un año"}

// ValidateTier checks a tier index against the configured range.
func ValidateTier(tier int) error {
	if tier < 0 || tier >= len(basePrices) {
		return fmt.Errorf("tier index %d out of range", tier)
	}
	return nil
}

// ValidateDuration checks a duration index against the configured range.
func ValidateDuration(duration int) error {
	if duration < 0 || duration >= len(durationMultipliers) {
		return fmt.Errorf("duration index %d out of range", duration)
	}
	return nil
}

// Price computes the purchase price for a tier and duration on a tenant,
// in local currency, rounded to the nearest unit of 10. Two (tenant, tier)
// combinations are fixed-price by agreement and bypass the rate math.
func Price(tier, duration int, tenantName string) (int, error) {
	if err := ValidateTier(tier); err != nil {
		return 0, err
	}
	if err := ValidateDuration(duration); err != nil {
		return 0, err
	}

	if (tenantName == "gaming" || tenantName == "vs") && tier == AdminTierIndex {
		return 1000, nil
	}

	adjusted := basePrices[tier] * rates.Value()
	final := adjusted * float64(durationMultipliers[duration])
	return int(math.Round(final/10)) * 10, nil
}

// TierName returns the display name for a tier index.
func TierName(tier int) string {
	if tier < 0 || tier >= len(tierNames) {
		return ""
	}
	return tierNames[tier]
}

// TierQuantity returns the VIP column quantity for a tier index.
func TierQuantity(tier int) int {
	if tier < 0 || tier >= len(tierQuantities) {
		return 0
	}
	return tierQuantities[tier]
}

// DurationMultiplier returns the month count for a duration index.
func DurationMultiplier(duration int) int {
	if duration < 0 || duration >= len(durationMultipliers) {
		return 0
	}
	return durationMultipliers[duration]
}

// DurationPhrase returns the human readable duration for line-item text.
func DurationPhrase(duration int) string {
	if duration < 0 || duration >= len(durationPhrases) {
		return ""
	}
	return durationPhrases[duration]
}

// QuantityTier returns the tier index for a VIP quantity, or -1 when the
// quantity is not one the shop sells. Used to re-validate gateway metadata.
func QuantityTier(quantity int) int {
	for i, q := range tierQuantities {
		if q == quantity {
			return i
		}
	}
	return -1
}
