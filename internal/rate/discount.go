package rate

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ApplyDiscount reduces a pre-discount price per the policy's discount kind
// and returns the final price together with the amount removed. The amount is
// always derived as price minus final, never stored independently.
//
// Percentage values are applied as given; range checks on DiscountValue
// belong to the input boundary, not here.
func ApplyDiscount(price decimal.Decimal, kind DiscountKind, value decimal.Decimal) (final, amount decimal.Decimal) {
	if value.Sign() <= 0 {
		return price, decimal.Zero
	}
	switch kind {
	case DiscountFixed:
		final = price.Sub(value)
		if final.Sign() < 0 {
			final = decimal.Zero
		}
	case DiscountPercentage:
		final = price.Mul(hundred.Sub(value)).Div(hundred)
	default:
		final = price
	}
	return final, price.Sub(final)
}
