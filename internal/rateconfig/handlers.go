package rateconfig

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/rate"
)

// Handler exposes rate configuration and preview endpoints.
type Handler struct {
	service  *Service
	resolver *rate.Resolver
}

func NewHandler(service *Service, resolver *rate.Resolver) *Handler {
	return &Handler{service: service, resolver: resolver}
}

// Get handles GET /api/rate-config.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Get(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

type saveRequest struct {
	RatePerKg        decimal.Decimal   `json:"ratePerKg"`
	USDSurcharge     decimal.Decimal   `json:"usdSurcharge"`
	BaseRate         decimal.Decimal   `json:"baseRate"`
	ExtraRatePerKg   decimal.Decimal   `json:"extraRatePerKg"`
	DiscountType     rate.DiscountKind `json:"discountType" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue    decimal.Decimal   `json:"discountValue"`
	UpdateAllClients bool              `json:"updateAllClients"`
}

func (req saveRequest) toPolicy() (rate.Policy, error) {
	p := rate.Policy{
		RatePerKg:      req.RatePerKg,
		USDSurcharge:   req.USDSurcharge,
		BaseRate:       req.BaseRate,
		ExtraRatePerKg: req.ExtraRatePerKg,
		DiscountType:   req.DiscountType,
		DiscountValue:  req.DiscountValue,
	}
	for field, v := range map[string]decimal.Decimal{
		"ratePerKg":      p.RatePerKg,
		"usdSurcharge":   p.USDSurcharge,
		"baseRate":       p.BaseRate,
		"extraRatePerKg": p.ExtraRatePerKg,
		"discountValue":  p.DiscountValue,
	} {
		if v.Sign() < 0 {
			return rate.Policy{}, common.ValidationError(field, "must not be negative")
		}
	}
	if p.DiscountType == rate.DiscountPercentage && p.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return rate.Policy{}, common.ValidationError("discountValue", "percentage discount must not exceed 100")
	}
	return p.Normalize(), nil
}

// Save handles POST /api/rate-config (admin only).
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.RenderError(w, err)
		return
	}
	policy, err := req.toPolicy()
	if err != nil {
		common.RenderError(w, err)
		return
	}
	result, err := h.service.Save(r.Context(), policy, req.UpdateAllClients)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

type previewRequest struct {
	Name    string          `json:"name" validate:"required"`
	Address string          `json:"address" validate:"required"`
	Weight  decimal.Decimal `json:"weight"`
}

// Preview handles POST /api/rate-preview: the same resolve/price/discount
// path the ingestion pipeline uses, exposed for the rate configuration UI.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.RenderError(w, err)
		return
	}
	if req.Weight.Sign() < 0 {
		common.RenderError(w, common.ValidationError("weight", "must not be negative"))
		return
	}
	quote, err := h.resolver.QuoteFor(r.Context(), req.Name, req.Address, req.Weight)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}
