package discount

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/rawises/storefront-api/internal/common"
)

// ConfigStore is the subset of Store used by the HTTP handlers.
type ConfigStore interface {
	Get(ctx context.Context) (Config, error)
	Save(ctx context.Context, cfg Config) (Config, error)
}

// Handler serves the public and admin discount endpoints.
type Handler struct {
	Store ConfigStore
}

type updateRequest struct {
	Enabled            *bool           `json:"memberDiscountEnabled" validate:"required"`
	Rate               decimal.Decimal `json:"memberDiscountRate"`
	MinimumOrderAmount decimal.Decimal `json:"minimumOrderAmount"`
	Description        string          `json:"description" validate:"max=280"`
}

// Get handles GET /discounts/member and GET /admin/discounts/member.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "DISCOUNT_NOT_CONFIGURED", "discount settings unavailable", nil)
		return
	}
	cfg, err := h.Store.Get(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "DISCOUNT_FETCH_ERROR", "unable to load discount settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cfg})
}

// Update handles PUT /admin/discounts/member. The rate is clamped to [0,50] before storing.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "DISCOUNT_NOT_CONFIGURED", "discount settings unavailable", nil)
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.MinimumOrderAmount.IsNegative() {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "minimumOrderAmount must not be negative", nil)
		return
	}
	saved, err := h.Store.Save(r.Context(), Config{
		Enabled:            *req.Enabled,
		Rate:               req.Rate,
		MinimumOrderAmount: req.MinimumOrderAmount,
		Description:        req.Description,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "DISCOUNT_SAVE_ERROR", "unable to save discount settings", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": saved})
}
