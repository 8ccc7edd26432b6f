package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/common"
)

// Handler exposes HTTP endpoints for payment creation and status polling.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

type cardReq struct {
	HolderName  string `json:"cardHolderName" validate:"required,max=100"`
	Number      string `json:"cardNumber" validate:"required,numeric,min=12,max=19"`
	ExpiryMonth string `json:"expiryMonth" validate:"required,numeric,len=2"`
	ExpiryYear  string `json:"expiryYear" validate:"required,numeric,min=2,max=4"`
	CVV         string `json:"cvv" validate:"required,numeric,min=3,max=4"`
}

type createReq struct {
	OrderID      string  `json:"orderId" validate:"required,max=64"`
	Email        string  `json:"email" validate:"omitempty,email"`
	Installments int     `json:"installments" validate:"omitempty,min=1,max=12"`
	Card         cardReq `json:"card" validate:"required"`
}

type createResp struct {
	Status      string `json:"status"`
	PaymentHTML string `json:"payment_html"`
	OrderID     string `json:"orderId"`
	InvoiceID   string `json:"invoiceId"`
	Message     string `json:"message"`
}

// Create signs a gateway checkout for the caller's order and returns the
// auto-submitting redirect document.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Card.Number = strings.ReplaceAll(req.Card.Number, " ", "")
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	userID, _ := common.UserID(r.Context())
	res, err := h.Svc.Create(r.Context(), CreateInput{
		OrderID:      req.OrderID,
		UserID:       userID,
		Email:        req.Email,
		Installments: req.Installments,
		Card: Card{
			HolderName:  strings.TrimSpace(req.Card.HolderName),
			Number:      req.Card.Number,
			ExpiryMonth: req.Card.ExpiryMonth,
			ExpiryYear:  req.Card.ExpiryYear,
			CVV:         req.Card.CVV,
		},
	})
	if err != nil {
		h.writeCreateError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, createResp{
		Status:      "success",
		PaymentHTML: res.Checkout.HTML,
		OrderID:     res.Attempt.OrderID,
		InvoiceID:   res.Attempt.InvoiceID,
		Message:     "Ödeme sayfasına yönlendiriliyorsunuz",
	})
}

func (h *Handler) writeCreateError(w http.ResponseWriter, err error) {
	var cfgErr *ConfigError
	switch {
	case errors.As(err, &cfgErr):
		h.Logger.Error().Strs("missing", cfgErr.Missing).Msg("payment_not_configured")
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment gateway is not configured", map[string]any{"missing": cfgErr.Missing})
	case errors.Is(err, ErrOrderNotFound):
		common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
	case errors.Is(err, ErrAlreadyPaid):
		common.JSONError(w, http.StatusConflict, "ORDER_ALREADY_PAID", "order already paid", nil)
	case errors.Is(err, ErrOrderNotPayable):
		common.JSONError(w, http.StatusConflict, "ORDER_NOT_PAYABLE", "order cannot be paid", nil)
	case errors.Is(err, ErrHashKey):
		h.Logger.Error().Err(err).Msg("payment_hash_failed")
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_SIGNING_FAILED", "payment could not be signed", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		common.JSONError(w, http.StatusGatewayTimeout, "PAYMENT_TIMEOUT", "payment creation timed out", nil)
	default:
		h.Logger.Error().Err(err).Msg("payment_create_failed")
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_CREATE_FAILED", "payment could not be created", nil)
	}
}

// Return answers the browser redirect from the gateway with the persisted
// attempt state. It never changes state.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid parameters", nil)
		return
	}
	invoiceID := strings.TrimSpace(r.Form.Get("merchant_oid"))
	if invoiceID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "merchant_oid is required", nil)
		return
	}
	view, err := h.Svc.ReturnStatus(r.Context(), invoiceID)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "payment not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load payment", nil)
		return
	}
	if reported := strings.TrimSpace(r.Form.Get("status")); reported != "" && !view.Final {
		h.Logger.Debug().Str("invoice_id", invoiceID).Str("reported_status", reported).Msg("payment_return_before_webhook")
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// Status reports the consolidated payment status for an order the caller may read.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	view, err := h.Svc.ConsolidatedStatus(r.Context(), orderID, userID, r.URL.Query().Get("email"))
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "STATUS_ERROR", "failed to load payment status", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": view})
}

// FailureReasons lists the gateway failure code table.
func (h *Handler) FailureReasons(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": FailureReasons()})
}
