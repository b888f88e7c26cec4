package rate

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPriceZeroWeight(t *testing.T) {
	policy := Policy{BaseRate: d("500"), ExtraRatePerKg: d("400")}
	for _, w := range []string{"0", "-1", "-0.5"} {
		if got := Price(policy, d(w)); !got.IsZero() {
			t.Fatalf("weight %s: expected 0, got %s", w, got)
		}
	}
}

func TestPriceTiered(t *testing.T) {
	policy := Policy{BaseRate: d("500"), ExtraRatePerKg: d("400")}
	cases := []struct {
		weight string
		want   string
	}{
		{"0.5", "500"},
		{"1", "500"},
		{"2", "900"},
		{"3", "1300"},
		{"2.5", "1100"},
	}
	for _, tc := range cases {
		got := Price(policy, d(tc.weight))
		if !got.Equal(d(tc.want)) {
			t.Fatalf("weight %s: expected %s, got %s", tc.weight, tc.want, got)
		}
	}
}

func TestPriceTieredExtraFallsBackToBase(t *testing.T) {
	policy := Policy{BaseRate: d("500")}
	got := Price(policy, d("2"))
	if !got.Equal(d("1000")) {
		t.Fatalf("expected 1000, got %s", got)
	}
}

func TestPriceTieredWinsOverFlatFields(t *testing.T) {
	// All four fields set: BaseRate takes precedence.
	policy := Policy{BaseRate: d("500"), ExtraRatePerKg: d("400"), RatePerKg: d("50"), USDSurcharge: d("999")}
	got := Price(policy, d("2"))
	if !got.Equal(d("900")) {
		t.Fatalf("expected 900, got %s", got)
	}
}

func TestPriceWeightEqualsRateSelectsSurcharge(t *testing.T) {
	policy := Policy{RatePerKg: d("5"), USDSurcharge: d("750")}
	got := Price(policy, d("5"))
	if !got.Equal(d("750")) {
		t.Fatalf("expected 750, got %s", got)
	}
	// Any other weight prices per kg.
	got = Price(policy, d("4"))
	if !got.Equal(d("20")) {
		t.Fatalf("expected 20, got %s", got)
	}
}

func TestPriceFlatPerKg(t *testing.T) {
	policy := Policy{RatePerKg: d("120")}
	got := Price(policy, d("2.5"))
	if !got.Equal(d("300")) {
		t.Fatalf("expected 300, got %s", got)
	}
}

func TestPriceSurchargeOnly(t *testing.T) {
	policy := Policy{USDSurcharge: d("80")}
	got := Price(policy, d("9"))
	if !got.Equal(d("80")) {
		t.Fatalf("expected 80, got %s", got)
	}
}

func TestPriceDefaultFallback(t *testing.T) {
	got := Price(Policy{}, d("3"))
	if !got.Equal(d("300")) {
		t.Fatalf("expected 300, got %s", got)
	}
}

func TestPolicyPopulated(t *testing.T) {
	if (Policy{}).Populated() {
		t.Fatal("zero policy must not report populated")
	}
	if (Policy{DiscountValue: d("10")}).Populated() {
		t.Fatal("discount-only policy must not report populated")
	}
	if !(Policy{USDSurcharge: d("1")}).Populated() {
		t.Fatal("surcharge-only policy must report populated")
	}
}
