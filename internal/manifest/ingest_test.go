package manifest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/imexpress/backend-billing/internal/rate"
)

type stubQuoter struct {
	fail map[string]bool
}

// Prices every shipment at weight*100 with a 10 discount so totals are easy
// to assert.
func (s stubQuoter) QuoteFor(_ context.Context, name, _ string, weightKg decimal.Decimal) (rate.Quote, error) {
	if s.fail[name] {
		return rate.Quote{}, rate.ErrRateLookup
	}
	price := weightKg.Mul(decimal.NewFromInt(100))
	discount := decimal.NewFromInt(10)
	return rate.Quote{
		Resolution: rate.Resolution{ClientID: "IM001", Source: rate.SourceClient},
		Price:      price,
		Discount:   discount,
		Total:      price.Sub(discount),
	}, nil
}

func dataRow(consignee, address, weight string) []string {
	row := make([]string, LayoutV2.Width)
	row[LayoutV2.AWB] = "AWB-" + consignee
	row[LayoutV2.Consignee] = consignee
	row[LayoutV2.ConsigneeAddr] = address
	row[LayoutV2.Weight] = weight
	row[LayoutV2.Pieces] = "2"
	row[LayoutV2.Destination] = "DAC"
	return row
}

func headerRow() []string {
	row := make([]string, LayoutV2.Width)
	row[0] = "NO"
	row[LayoutV2.AWB] = "AWB NO"
	row[LayoutV2.Shipper] = "SHIPPER"
	return row
}

func newPipeline(q Quoter) *Pipeline {
	return NewPipeline(q, LayoutV2, zerolog.Nop())
}

func TestProcessPricesRowsAfterHeader(t *testing.T) {
	rows := [][]string{
		{"manifest for week 12"},
		headerRow(),
		dataRow("Acme", "1 Main St", "2"),
		dataRow("Globex", "2 Side St", "3"),
	}
	result, err := newPipeline(stubQuoter{}).Process(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	require.Equal(t, "Acme", result.Items[0].Consignee)
	require.Equal(t, 2, result.Items[0].Quantity)
	require.Equal(t, "IM001", result.Items[0].ClientID)
	require.True(t, result.Items[0].Total.Equal(decimal.NewFromInt(190)))
	require.True(t, result.GrandTotal.Equal(decimal.NewFromInt(480)))
	require.True(t, result.TotalDiscount.Equal(decimal.NewFromInt(20)))
}

func TestProcessWithoutHeaderTreatsAllRowsAsData(t *testing.T) {
	rows := [][]string{
		dataRow("Acme", "1 Main St", "1"),
	}
	result, err := newPipeline(stubQuoter{}).Process(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
}

func TestProcessPreservesOrderAndSkipsUnpriceable(t *testing.T) {
	rows := [][]string{
		headerRow(),
		dataRow("Alpha", "A St", "2"),
		dataRow("Beta", "B St", ""), // no weight: kept, unpriced
		dataRow("Gamma", "C St", "1"),
	}
	result, err := newPipeline(stubQuoter{}).Process(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	require.Equal(t, []string{"Alpha", "Beta", "Gamma"}, []string{
		result.Items[0].Consignee, result.Items[1].Consignee, result.Items[2].Consignee,
	})
	require.True(t, result.Items[1].Total.IsZero())
	// Grand total excludes the unpriced row.
	require.True(t, result.GrandTotal.Equal(decimal.NewFromInt(280)))
}

func TestProcessDegradesFailedLookupsToWarnings(t *testing.T) {
	rows := [][]string{
		headerRow(),
		dataRow("Alpha", "A St", "2"),
		dataRow("Broken", "B St", "5"),
		dataRow("Gamma", "C St", "1"),
	}
	result, err := newPipeline(stubQuoter{fail: map[string]bool{"Broken": true}}).Process(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, 3, result.Warnings[0].Row)
	require.True(t, result.Items[1].Price.IsZero())
	require.True(t, result.GrandTotal.Equal(decimal.NewFromInt(280)))
}

func TestProcessRoundTripTotals(t *testing.T) {
	rows := [][]string{
		headerRow(),
		dataRow("Alpha", "A St", "2"),
		dataRow("Beta", "B St", "4"),
	}
	result, err := newPipeline(stubQuoter{}).Process(context.Background(), rows)
	require.NoError(t, err)

	sumPrices := decimal.Zero
	for _, item := range result.Items {
		sumPrices = sumPrices.Add(item.Price)
	}
	require.True(t, result.GrandTotal.Add(result.TotalDiscount).Equal(sumPrices))
}

func TestProcessEmptyInputs(t *testing.T) {
	_, err := newPipeline(stubQuoter{}).Process(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyManifest)

	// Header only, no data rows.
	_, err = newPipeline(stubQuoter{}).Process(context.Background(), [][]string{headerRow()})
	require.ErrorIs(t, err, ErrEmptyManifest)

	// Blank rows only.
	_, err = newPipeline(stubQuoter{}).Process(context.Background(), [][]string{{"", ""}, {" "}})
	require.ErrorIs(t, err, ErrEmptyManifest)
}

func TestLayoutV1LegacyColumns(t *testing.T) {
	row := make([]string, LayoutV1.Width)
	row[LayoutV1.AWB] = "AWB1"
	row[LayoutV1.Consignee] = "Acme"
	row[LayoutV1.ConsigneeAddr] = "1 Main St"
	row[LayoutV1.Weight] = "2.5"

	result, err := NewPipeline(stubQuoter{}, LayoutV1, zerolog.Nop()).Process(context.Background(), [][]string{row})
	require.NoError(t, err)
	require.Equal(t, 1, result.LayoutVersion)
	require.Equal(t, "Acme", result.Items[0].Consignee)
	require.True(t, result.Items[0].Weight.Equal(decimal.RequireFromString("2.5")))
	// Columns absent from the legacy format read as empty.
	require.Empty(t, result.Items[0].BagNo)
}

func TestParseDecimalCell(t *testing.T) {
	cases := map[string]string{"2": "2", "2.5": "2.5", "1,250.75": "1250.75", " 3 ": "3"}
	for in, want := range cases {
		got, ok := parseDecimalCell(in)
		require.True(t, ok, in)
		require.True(t, got.Equal(decimal.RequireFromString(want)))
	}
	for _, in := range []string{"", "abc", "12kg"} {
		_, ok := parseDecimalCell(in)
		require.False(t, ok, in)
	}
}

func TestFindHeader(t *testing.T) {
	rows := [][]string{
		{"title"},
		{"", "AWB NO"},
		{"data"},
	}
	require.Equal(t, 1, FindHeader(rows))
	require.Equal(t, -1, FindHeader([][]string{{"just", "data"}}))
}
