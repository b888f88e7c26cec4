package client

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/rate"
)

// Handler exposes the client registry endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type identityRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
}

// Check handles POST /api/clients/check: registration status plus the policy
// that would price this identity's shipments.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.RenderError(w, err)
		return
	}
	result, err := h.service.Check(r.Context(), req.Name, req.Address)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// CheckDuplicate handles POST /api/clients/check-duplicate.
func (h *Handler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.RenderError(w, err)
		return
	}
	dup, existing, err := h.service.IsDuplicate(r.Context(), req.Name, req.Address)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	body := map[string]any{"duplicate": dup}
	if existing != nil {
		body["clientId"] = existing.ClientID
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": body})
}

type registerRequest struct {
	Name       string `json:"name" validate:"required"`
	Address    string `json:"address" validate:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email" validate:"omitempty,email"`
	ClientType Type   `json:"clientType" validate:"omitempty,oneof=VIP NEW REGULAR"`
}

// Register handles POST /api/clients/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.RenderError(w, err)
		return
	}
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	created, err := h.service.Register(r.Context(), principal.ID, RegisterInput{
		Name:       req.Name,
		Address:    req.Address,
		Phone:      req.Phone,
		Email:      req.Email,
		ClientType: req.ClientType,
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// List handles GET /api/clients.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.List(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	if clients == nil {
		clients = []Client{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": clients})
}

// Get handles GET /api/clients/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, common.ValidationError("id", "invalid client id"))
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

type policyPayload struct {
	RatePerKg      decimal.Decimal   `json:"ratePerKg" validate:"omitempty"`
	USDSurcharge   decimal.Decimal   `json:"usdSurcharge"`
	BaseRate       decimal.Decimal   `json:"baseRate"`
	ExtraRatePerKg decimal.Decimal   `json:"extraRatePerKg"`
	DiscountType   rate.DiscountKind `json:"discountType" validate:"omitempty,oneof=percentage fixed"`
	DiscountValue  decimal.Decimal   `json:"discountValue"`
}

func (p policyPayload) toPolicy() (rate.Policy, error) {
	policy := rate.Policy{
		RatePerKg:      p.RatePerKg,
		USDSurcharge:   p.USDSurcharge,
		BaseRate:       p.BaseRate,
		ExtraRatePerKg: p.ExtraRatePerKg,
		DiscountType:   p.DiscountType,
		DiscountValue:  p.DiscountValue,
	}
	for field, v := range map[string]decimal.Decimal{
		"ratePerKg":      policy.RatePerKg,
		"usdSurcharge":   policy.USDSurcharge,
		"baseRate":       policy.BaseRate,
		"extraRatePerKg": policy.ExtraRatePerKg,
		"discountValue":  policy.DiscountValue,
	} {
		if v.Sign() < 0 {
			return rate.Policy{}, common.ValidationError(field, "must not be negative")
		}
	}
	if policy.DiscountType == rate.DiscountPercentage && policy.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return rate.Policy{}, common.ValidationError("discountValue", "percentage discount must not exceed 100")
	}
	return policy.Normalize(), nil
}

type updateRequest struct {
	Name       string `json:"name" validate:"required"`
	Address    string `json:"address" validate:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email" validate:"omitempty,email"`
	ClientType Type   `json:"clientType" validate:"omitempty,oneof=VIP NEW REGULAR"`
	policyPayload
}

// Update handles PUT /api/clients/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, common.ValidationError("id", "invalid client id"))
		return
	}
	var req updateRequest
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
	updated, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:       req.Name,
		Address:    req.Address,
		Phone:      req.Phone,
		Email:      req.Email,
		ClientType: req.ClientType,
		Policy:     policy,
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Delete handles DELETE /api/clients/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, common.ValidationError("id", "invalid client id"))
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"deleted": true}})
}

type rateRulePayload struct {
	Pattern string          `json:"pattern" validate:"required"`
	Weight  decimal.Decimal `json:"weight"`
	Rate    decimal.Decimal `json:"rate"`
}

type saveRatesRequest struct {
	Rules []rateRulePayload `json:"rules" validate:"dive"`
}

// SaveRates handles POST /api/clients/{id}/rates.
func (h *Handler) SaveRates(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, common.ValidationError("id", "invalid client id"))
		return
	}
	var req saveRatesRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.RenderError(w, err)
		return
	}
	rules := make([]RateRule, 0, len(req.Rules))
	for _, p := range req.Rules {
		rules = append(rules, RateRule{Pattern: p.Pattern, Weight: p.Weight, Rate: p.Rate})
	}
	if err := h.service.SaveRateRules(r.Context(), id, rules); err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"saved": len(rules)}})
}

// AssignClientIDs handles POST /api/clients/assign-client-ids (admin).
func (h *Handler) AssignClientIDs(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.AssignClientIDs(r.Context())
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"assigned": n}})
}
