package payment

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Customer carries the billing contact sent to the gateway.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Card holds card entry fields. It only lives for the duration of one request.
type Card struct {
	HolderName  string `json:"cardHolderName"`
	Number      string `json:"cardNumber"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	CVV         string `json:"cvv"`
}

// CheckoutItem is one basket line reported to the gateway.
type CheckoutItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// CheckoutRequest is the input to a hosted-redirect hand-off.
type CheckoutRequest struct {
	OrderID      string
	InvoiceID    string
	Amount       decimal.Decimal
	Currency     string
	Installments int
	Customer     Customer
	Card         Card
	Items        []CheckoutItem
}

// FormField is one hidden input of the redirect form.
type FormField struct {
	Name  string
	Value string
}

// Checkout is the signed redirect document returned to the browser.
type Checkout struct {
	Provider  string
	InvoiceID string
	Action    string
	Fields    []FormField
	HTML      string
}

// WebhookEvent is the normalised gateway callback.
type WebhookEvent struct {
	MerchantOID      string `json:"merchant_oid" validate:"required"`
	Status           string `json:"status" validate:"required,oneof=success failed"`
	TotalAmount      string `json:"total_amount" validate:"required"`
	Hash             string `json:"hash" validate:"required"`
	FailedReasonCode string `json:"failed_reason_code"`
	FailedReasonMsg  string `json:"failed_reason_msg"`
	PaymentType      string `json:"payment_type"`
	TestMode         string `json:"test_mode"`
	Currency         string `json:"currency"`
	PaymentAmount    string `json:"payment_amount"`
}

// Succeeded reports whether the gateway captured the payment.
func (e WebhookEvent) Succeeded() bool { return e.Status == "success" }

// WebhookVerifyResult contains the parsed callback and the signature outcome.
type WebhookVerifyResult struct {
	Valid           bool
	Variant         string
	Event           WebhookEvent
	ProviderPayload []byte
	Err             error
}

// Provider abstracts the gateway operations used by the payment flow.
type Provider interface {
	Name() string
	BuildCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}
