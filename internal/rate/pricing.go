package rate

import "github.com/shopspring/decimal"

// DefaultRatePerKg is the hard fallback applied when neither the client nor
// the global configuration carries a usable rate.
var DefaultRatePerKg = decimal.NewFromInt(100)

var one = decimal.NewFromInt(1)

// Price computes the pre-discount charge for a shipment of the given weight.
//
// The branch order is a load-bearing tie-break for policies with several
// non-zero fields and must not be reordered:
//
//  1. non-positive weight prices at zero
//  2. tiered pricing when BaseRate is set; the extra-kg rate falls back to
//     BaseRate itself when ExtraRatePerKg is zero
//  3. weight exactly equal to RatePerKg selects USDSurcharge (legacy
//     data-entry convention, preserved as observed)
//  4. flat per-kg pricing on RatePerKg
//  5. flat USDSurcharge
//  6. default per-kg fallback
func Price(p Policy, weightKg decimal.Decimal) decimal.Decimal {
	if weightKg.Sign() <= 0 {
		return decimal.Zero
	}
	if p.BaseRate.IsPositive() {
		if weightKg.LessThanOrEqual(one) {
			return p.BaseRate
		}
		extra := p.ExtraRatePerKg
		if !extra.IsPositive() {
			extra = p.BaseRate
		}
		return p.BaseRate.Add(weightKg.Sub(one).Mul(extra))
	}
	if p.RatePerKg.IsPositive() {
		if weightKg.Equal(p.RatePerKg) {
			return p.USDSurcharge
		}
		return weightKg.Mul(p.RatePerKg)
	}
	if p.USDSurcharge.IsPositive() {
		return p.USDSurcharge
	}
	return weightKg.Mul(DefaultRatePerKg)
}
