package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/common"
	"github.com/rawises/storefront-api/internal/obs"
)

const maxWebhookBody = 64 << 10

// Webhook handles gateway callbacks: signature verification, replay
// protection and settlement.
type Webhook struct {
	Svc       *Service
	Provider  Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle processes url-encoded callbacks posted by the gateway.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	h.process(w, r)
}

// HandleCheck processes JSON callbacks posted to the 3D check endpoint.
func (h Webhook) HandleCheck(w http.ResponseWriter, r *http.Request) {
	if !isSipayWebhookQuery(r) {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", nil)
		return
	}
	h.process(w, r)
}

// Probe answers the GET liveness checks the gateway performs on callback URLs.
func (h Webhook) Probe(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.URL.Path, "/3d/check") && !isSipayWebhookQuery(r) {
		common.JSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"message":   "Sipay webhook endpoint is active",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func isSipayWebhookQuery(r *http.Request) bool {
	q := r.URL.Query()
	return q.Get("code") == "SIPAY" && q.Get("requestType") == "webhook"
}

func (h Webhook) process(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	variant := "unknown"
	result := "error"
	defer func() {
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues(variant, result).Inc()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		result = "bad_request"
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	verified, err := h.Provider.VerifyWebhook(r, body)
	if verified.Variant != "" {
		variant = verified.Variant
	}
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			h.Logger.Error().Strs("missing", cfgErr.Missing).Msg("payment_webhook_not_configured")
			common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment gateway is not configured", map[string]any{"missing": cfgErr.Missing})
			return
		}
		result = "bad_request"
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !verified.Valid {
		result = "invalid_signature"
		h.Logger.Warn().Str("invoice_id", verified.Event.MerchantOID).Str("variant", variant).Msg("payment_webhook_signature_mismatch")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	ctx := r.Context()
	replayKey := ""
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = fmt.Sprintf("wh:%s:%s", h.Provider.Name(), common.Sha256Hex(string(body)))
		ok, err := h.Replay.SetNX(ctx, replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			result = "replay"
			common.JSON(w, http.StatusOK, map[string]any{"status": "OK"})
			return
		}
	}

	payload := verified.ProviderPayload
	if payload == nil {
		payload = body
	}
	outcome, err := h.Svc.ApplyWebhook(ctx, verified.Event, payload)
	if err != nil {
		if replayKey != "" {
			_ = h.Replay.Del(context.WithoutCancel(ctx), replayKey).Err()
		}
		switch {
		case errors.Is(err, ErrAttemptNotFound):
			result = "not_found"
			common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "payment not found", nil)
		case errors.Is(err, ErrAmountMismatch):
			result = "amount_mismatch"
			common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "provider amount mismatch", nil)
		default:
			h.Logger.Error().Err(err).Str("invoice_id", verified.Event.MerchantOID).Msg("payment_webhook_failed")
			common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_PROCESSING_ERROR", "webhook processing failed", nil)
		}
		return
	}
	result = "applied"
	if outcome.Duplicate {
		result = "duplicate"
	}
	common.JSON(w, http.StatusOK, map[string]any{"status": "OK"})
}
