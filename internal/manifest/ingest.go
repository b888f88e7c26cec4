package manifest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imexpress/backend-billing/internal/obs"
	"github.com/imexpress/backend-billing/internal/rate"
)

// ErrEmptyManifest marks an uploaded sheet with no usable rows. Unlike
// per-row pricing failures this is a hard error.
var ErrEmptyManifest = errors.New("manifest contains no data rows")

// LineItem is one priced manifest row.
type LineItem struct {
	AWB              string          `json:"awb"`
	Extra            string          `json:"extra,omitempty"`
	Shipper          string          `json:"shipper"`
	ShipperAddress   string          `json:"shipperAddress,omitempty"`
	Consignee        string          `json:"consignee"`
	BinVAT           string          `json:"binVat,omitempty"`
	Destination      string          `json:"destination"`
	ConsigneeAddress string          `json:"consigneeAddress"`
	Contact          string          `json:"contact,omitempty"`
	Telephone        string          `json:"telephone,omitempty"`
	Quantity         int             `json:"quantity"`
	Weight           decimal.Decimal `json:"weight"`
	Volume           string          `json:"volume,omitempty"`
	Description      string          `json:"description,omitempty"`
	COD              string          `json:"cod,omitempty"`
	Value            string          `json:"value,omitempty"`
	Remarks          string          `json:"remarks,omitempty"`
	BagNo            string          `json:"bagNo,omitempty"`
	// ClientID is the code of the matched client, resolved once at ingestion
	// time. The consignee name/address stay denormalized for display.
	ClientID string          `json:"clientId,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// RowWarning flags a row that was kept but could not be priced.
type RowWarning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Result is a fully processed manifest batch.
type Result struct {
	Items         []LineItem      `json:"items"`
	GrandTotal    decimal.Decimal `json:"grandTotal"`
	TotalDiscount decimal.Decimal `json:"totalDiscount"`
	Warnings      []RowWarning    `json:"warnings,omitempty"`
	LayoutVersion int             `json:"layoutVersion"`
}

// Quoter prices one consignee/weight pair. *rate.Resolver satisfies it.
type Quoter interface {
	QuoteFor(ctx context.Context, name, address string, weightKg decimal.Decimal) (rate.Quote, error)
}

// Pipeline turns decoded spreadsheet rows into priced line items.
type Pipeline struct {
	quoter Quoter
	layout Layout
	log    zerolog.Logger
}

func NewPipeline(quoter Quoter, layout Layout, log zerolog.Logger) *Pipeline {
	return &Pipeline{quoter: quoter, layout: layout, log: log}
}

// Process scans rows in order and prices each one. Output order equals input
// row order: downstream edit and submit actions index items positionally.
// A failed rate lookup degrades that row to price zero and continues.
func (p *Pipeline) Process(ctx context.Context, rows [][]string) (Result, error) {
	if len(rows) == 0 {
		return Result{}, ErrEmptyManifest
	}

	start := 0
	if idx := FindHeader(rows); idx >= 0 {
		start = idx + 1
	}

	result := Result{
		GrandTotal:    decimal.Zero,
		TotalDiscount: decimal.Zero,
		LayoutVersion: p.layout.Version,
	}
	for i := start; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}
		item := p.extract(row)
		if item.Consignee != "" && item.Weight.IsPositive() {
			quote, err := p.quoter.QuoteFor(ctx, item.Consignee, item.ConsigneeAddress, item.Weight)
			if err != nil {
				result.Warnings = append(result.Warnings, RowWarning{
					Row:     i + 1,
					Message: fmt.Sprintf("rate lookup failed for %q; row kept unpriced", item.Consignee),
				})
				if obs.RateLookupFailures != nil {
					obs.RateLookupFailures.Inc()
				}
				if obs.ManifestRowsTotal != nil {
					obs.ManifestRowsTotal.WithLabelValues("lookup_failed").Inc()
				}
				p.log.Warn().Err(err).Int("row", i+1).Str("consignee", item.Consignee).Msg("row left unpriced")
			} else {
				item.ClientID = quote.Resolution.ClientID
				item.Price = quote.Price
				item.Discount = quote.Discount
				item.Total = quote.Total
				if obs.ManifestRowsTotal != nil {
					obs.ManifestRowsTotal.WithLabelValues("priced").Inc()
				}
			}
		} else if obs.ManifestRowsTotal != nil {
			obs.ManifestRowsTotal.WithLabelValues("unpriced").Inc()
		}

		result.Items = append(result.Items, item)
		result.GrandTotal = result.GrandTotal.Add(item.Total)
		result.TotalDiscount = result.TotalDiscount.Add(item.Discount)
	}

	if len(result.Items) == 0 {
		return Result{}, ErrEmptyManifest
	}
	return result, nil
}

func (p *Pipeline) extract(row []string) LineItem {
	l := p.layout
	item := LineItem{
		AWB:              l.Cell(row, l.AWB),
		Extra:            l.Cell(row, l.Extra),
		Shipper:          l.Cell(row, l.Shipper),
		ShipperAddress:   l.Cell(row, l.ShipperAddress),
		Consignee:        l.Cell(row, l.Consignee),
		BinVAT:           l.Cell(row, l.BinVAT),
		Destination:      l.Cell(row, l.Destination),
		ConsigneeAddress: l.Cell(row, l.ConsigneeAddr),
		Contact:          l.Cell(row, l.Contact),
		Telephone:        l.Cell(row, l.Telephone),
		Volume:           l.Cell(row, l.Volume),
		Description:      l.Cell(row, l.Description),
		COD:              l.Cell(row, l.COD),
		Value:            l.Cell(row, l.Value),
		Remarks:          l.Cell(row, l.Remarks),
		BagNo:            l.Cell(row, l.BagNo),
		Quantity:         1,
		Weight:           decimal.Zero,
		Price:            decimal.Zero,
		Discount:         decimal.Zero,
		Total:            decimal.Zero,
	}
	if n, err := strconv.Atoi(l.Cell(row, l.Pieces)); err == nil && n >= 1 {
		item.Quantity = n
	}
	if w, ok := parseDecimalCell(l.Cell(row, l.Weight)); ok {
		item.Weight = w
	}
	return item
}

func parseDecimalCell(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
