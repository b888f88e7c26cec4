package rate

import "github.com/shopspring/decimal"

// DiscountKind selects how a discount value is interpreted.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// Policy holds the rate fields consulted during pricing. The four monetary
// fields are overloaded by history: RatePerKg and USDSurcharge are legacy
// flat-rate fields, BaseRate and ExtraRatePerKg drive tiered pricing.
type Policy struct {
	RatePerKg      decimal.Decimal `json:"ratePerKg"`
	USDSurcharge   decimal.Decimal `json:"usdSurcharge"`
	BaseRate       decimal.Decimal `json:"baseRate"`
	ExtraRatePerKg decimal.Decimal `json:"extraRatePerKg"`
	DiscountType   DiscountKind    `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
}

// Populated reports whether the policy carries any usable rate. An all-zero
// policy is treated as "no override" by the resolver.
func (p Policy) Populated() bool {
	return p.RatePerKg.IsPositive() ||
		p.USDSurcharge.IsPositive() ||
		p.BaseRate.IsPositive() ||
		p.ExtraRatePerKg.IsPositive()
}

// Normalize fills a zero DiscountType so stored policies always round-trip
// with a valid enum value.
func (p Policy) Normalize() Policy {
	if p.DiscountType != DiscountPercentage && p.DiscountType != DiscountFixed {
		p.DiscountType = DiscountPercentage
	}
	return p
}
