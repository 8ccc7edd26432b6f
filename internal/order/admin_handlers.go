package order

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/common"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Svc    *Service
	Logger zerolog.Logger
}

type patchStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// List handles GET /admin/orders?status=&page=&limit=.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, defaultListLimit)
	if perPage > maxListLimit {
		perPage = maxListLimit
	}
	orders, total, err := h.Svc.List(r.Context(), ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Page:   page,
		Limit:  perPage,
	})
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": orders,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: total,
		},
	})
}

// Get handles GET /admin/orders/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	ord, err := h.Svc.AdminGet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

// PatchStatus updates the order status with state-machine validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	ord, err := h.Svc.ChangeStatus(r.Context(), chi.URLParam(r, "id"), Status(req.Status))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}
