package pricing

import (
	"math"
	"strings"

	"ventapos/backend/internal/domain"
)

// Tier markup factors applied over the tier-1 price when a product has no
// explicit price stored for that tier.
var tierMarkup = [6]float64{0, 1.0, 1.05, 1.10, 1.15, 1.20}

// TierPrice returns the stored price for the given tier, falling back to a
// markup over tier 1 when the stored value is unset. Tiers outside 1..5 clamp
// to tier 1.
func TierPrice(product domain.Product, tier int) int64 {
	if tier < 1 || tier > 5 {
		tier = 1
	}
	stored := [6]int64{0,
		product.Price1Cents,
		product.Price2Cents,
		product.Price3Cents,
		product.Price4Cents,
		product.Price5Cents,
	}
	if stored[tier] >= 1 {
		return stored[tier]
	}
	return int64(math.Round(float64(product.Price1Cents) * tierMarkup[tier]))
}

// Resolve computes the effective unit price for a line. Precedence: explicit
// custom price, then a session override for the tier, then the stored tier
// price.
func Resolve(product domain.Product, tier int, overrides map[int]int64, customCents int64) int64 {
	if customCents > 0 {
		return customCents
	}
	if overrides != nil {
		if v, ok := overrides[tier]; ok && v > 0 {
			return v
		}
	}
	return TierPrice(product, tier)
}

// CostFloor is the minimum sell price before an admin authorization is
// required. It is a fraction of the tier-1 price, which doubles as the cost
// reference in this catalog.
func CostFloor(product domain.Product) int64 {
	return int64(math.Round(float64(product.Price1Cents) * 0.7))
}

// BelowCostFloor reports whether a custom price needs authorization. It never
// blocks on its own; callers decide what to do with the flag.
func BelowCostFloor(product domain.Product, priceCents int64) bool {
	return priceCents < CostFloor(product)
}

// ApplyTara adjusts a unit price for a packaging selection and returns the
// display unit factor. Stock math stays in base units regardless of the
// factor.
func ApplyTara(priceCents int64, tara *domain.TaraSelection) (int64, int) {
	if tara == nil {
		return priceCents, 1
	}
	factor := tara.UnitFactor
	if factor < 1 {
		factor = 1
	}
	return priceCents + tara.PriceDeltaCents, factor
}

// taraLines are the catalog lines whose products sell with packaging
// adjustments.
var taraLines = map[string]bool{
	"granel":  true,
	"bulk":    true,
	"empaque": true,
}

// TaraApplies reports whether a catalog line carries tara selections.
func TaraApplies(line string) bool {
	return taraLines[strings.ToLower(strings.TrimSpace(line))]
}
