package payment_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/order"
	"github.com/rawises/storefront-api/internal/payment"
)

type webhookFixture struct {
	store   *memStore
	hook    payment.Webhook
	invoice string
}

func newWebhookFixture(t *testing.T) webhookFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := newMemStore(pendingOrder("o-1"))
	svc, _ := newService(store)
	res, err := svc.Create(context.Background(), payment.CreateInput{OrderID: "o-1", UserID: "user-1"})
	require.NoError(t, err)

	return webhookFixture{
		store: store,
		hook: payment.Webhook{
			Svc:       svc,
			Provider:  svc.Provider,
			Replay:    rdb,
			ReplayTTL: time.Hour,
			Logger:    zerolog.Nop(),
		},
		invoice: res.Attempt.InvoiceID,
	}
}

func postForm(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sipay", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestWebhookAppliesOnceForDuplicateDelivery(t *testing.T) {
	fx := newWebhookFixture(t)
	body := formCallback("merchant-key", fx.invoice, "success", "204.00").Encode()

	first := postForm(fx.hook.Handle, body)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.JSONEq(t, `{"status":"OK"}`, first.Body.String())
	transitions := len(fx.store.transitions)

	second := postForm(fx.hook.Handle, body)
	require.Equal(t, http.StatusOK, second.Code)
	require.JSONEq(t, `{"status":"OK"}`, second.Body.String())
	require.Equal(t, transitions, len(fx.store.transitions))
	require.Equal(t, 1, fx.store.stockCalls["o-1"])
	require.Equal(t, order.PaymentPaid, fx.store.orders["o-1"].PaymentStatus)
}

func TestWebhookTamperedHashLeavesOrderUnchanged(t *testing.T) {
	fx := newWebhookFixture(t)
	values := formCallback("merchant-key", fx.invoice, "success", "204.00")
	values.Set("hash", payment.SignCallback(payment.VariantForm, "other-key", fx.invoice, "success", "204.00"))

	rec := postForm(fx.hook.Handle, values.Encode())
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "INVALID_SIGNATURE")
	require.Equal(t, order.PaymentPending, fx.store.orders["o-1"].PaymentStatus)
	require.Equal(t, order.StatusPending, fx.store.orders["o-1"].Status)
	require.Equal(t, payment.StateRedirected, fx.store.attempt(fx.invoice).State)
}

func TestWebhookMalformedBody(t *testing.T) {
	fx := newWebhookFixture(t)
	rec := postForm(fx.hook.Handle, "status=success")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "WEBHOOK_INVALID")
}

func TestWebhookUnknownInvoice(t *testing.T) {
	fx := newWebhookFixture(t)
	body := formCallback("merchant-key", "RW-unknown-1", "success", "204.00").Encode()
	rec := postForm(fx.hook.Handle, body)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookAmountMismatch(t *testing.T) {
	fx := newWebhookFixture(t)
	body := formCallback("merchant-key", fx.invoice, "success", "10.00").Encode()
	rec := postForm(fx.hook.Handle, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "AMOUNT_MISMATCH")

	rec = postForm(fx.hook.Handle, formCallback("merchant-key", fx.invoice, "success", "204.00").Encode())
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookCheckEndpoint(t *testing.T) {
	fx := newWebhookFixture(t)
	hash := payment.SignCallback(payment.VariantJSON, "merchant-key", fx.invoice, "failed", "204.00")
	body := `{"merchant_oid":"` + fx.invoice + `","status":"failed","total_amount":"204.00","hash":"` + hash + `","failed_reason_code":"01"}`

	noQuery := httptest.NewRequest(http.MethodPost, "/api/v1/sf/ps/payment/3d/check", strings.NewReader(body))
	noQuery.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.hook.HandleCheck(rec, noQuery)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/sf/ps/payment/3d/check?code=SIPAY&requestType=webhook", strings.NewReader("{"))
	bad.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	fx.hook.HandleCheck(rec, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sf/ps/payment/3d/check?code=SIPAY&requestType=webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	fx.hook.HandleCheck(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, order.PaymentFailed, fx.store.orders["o-1"].PaymentStatus)
	require.Equal(t, payment.StateReconciledFailed, fx.store.attempt(fx.invoice).State)
}

func TestWebhookProbe(t *testing.T) {
	fx := newWebhookFixture(t)
	rec := httptest.NewRecorder()
	fx.hook.Probe(rec, httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/sipay", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"OK"`)
}
