package order

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/common"
)

// Handler serves customer order reads. Guests identify themselves with the
// checkout e-mail in the `email` query parameter.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// Get handles GET /orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	ord, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"), userID, email)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrInvalidStatus):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unsupported status", nil)
	case errors.Is(err, ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	default:
		logger.Error().Err(err).Msg("order_request_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
	}
}
