package bill

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/imexpress/backend-billing/internal/common"
	"github.com/imexpress/backend-billing/internal/manifest"
)

// Handler exposes bill submission and review endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type submitRequest struct {
	CustomerName string              `json:"customerName" validate:"required"`
	Phone        string              `json:"phone"`
	Email        string              `json:"email" validate:"omitempty,email"`
	Address      string              `json:"address"`
	Items        []manifest.LineItem `json:"items" validate:"required,min=1"`
}

// Submit handles POST /api/submit-bill.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
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
	created, err := h.service.Submit(r.Context(), principal.ID, SubmitInput{
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Email:        req.Email,
		Address:      req.Address,
		Items:        req.Items,
	})
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// List handles GET /api/bills. Admins see everything; users see their own
// submissions. An optional ?status= filter narrows the result.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	filter := ListFilter{}
	if status := Status(r.URL.Query().Get("status")); status != "" {
		if !ValidStatus(status) {
			common.RenderError(w, common.ValidationError("status", "unknown status filter"))
			return
		}
		filter.Status = status
	}
	if !principal.IsAdmin() {
		filter.SubmittedBy = principal.ID
	}
	bills, err := h.service.List(r.Context(), filter)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	if bills == nil {
		bills = []Bill{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": bills})
}

// Get handles GET /api/bills/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, common.ValidationError("id", "invalid bill id"))
		return
	}
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	if !principal.IsAdmin() && b.SubmittedBy != principal.ID {
		common.JSONError(w, http.StatusForbidden, common.CodeForbidden, "not your bill", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

type statusRequest struct {
	Status Status `json:"status" validate:"required,oneof=approved rejected"`
}

// UpdateStatus handles PUT /api/bills/{id}/status (admin only).
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.RenderError(w, common.ValidationError("id", "invalid bill id"))
		return
	}
	var req statusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RenderError(w, err)
		return
	}
	if err := common.Validate(req); err != nil {
		common.RenderError(w, err)
		return
	}
	updated, err := h.service.Decide(r.Context(), id, req.Status)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}
