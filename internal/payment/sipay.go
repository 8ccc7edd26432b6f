package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rawises/storefront-api/internal/common"
	"github.com/rawises/storefront-api/internal/pricing"
)

const (
	// VariantForm is the url-encoded callback signed with a base64 HMAC.
	VariantForm = "form"
	// VariantJSON is the JSON callback signed with a hex HMAC.
	VariantJSON = "json"
)

// ErrMalformedWebhook is returned when a callback body cannot be parsed.
var ErrMalformedWebhook = errors.New("payment: malformed webhook")

// Gateway holds the Sipay credentials and the storefront base URL.
type Gateway struct {
	BaseURL       string
	MerchantID    string
	MerchantKey   string
	AppKey        string
	AppSecret     string
	PublicBaseURL string
}

// Missing returns the environment variable names of unset credentials.
func (g Gateway) Missing() []string {
	var out []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			out = append(out, name)
		}
	}
	check("SIPAY_BASE_URL", g.BaseURL)
	check("SIPAY_MERCHANT_ID", g.MerchantID)
	check("SIPAY_MERCHANT_KEY", g.MerchantKey)
	check("SIPAY_APP_KEY", g.AppKey)
	check("SIPAY_APP_SECRET", g.AppSecret)
	check("PUBLIC_BASE_URL", g.PublicBaseURL)
	return out
}

// ConfigError reports missing gateway credentials.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "payment: gateway not configured: " + strings.Join(e.Missing, ", ")
}

// Sipay implements Provider for the Sipay paySmart3D hosted flow.
type Sipay struct {
	Gateway Gateway
	// Rand supplies IV and salt bytes. Nil means crypto/rand.
	Rand io.Reader
}

// MissingConfig lists the unset gateway variables.
func (s Sipay) MissingConfig() []string { return s.Gateway.Missing() }

// Name implements Provider.
func (s Sipay) Name() string { return "sipay" }

// BuildCheckout signs the request and renders the redirect form.
func (s Sipay) BuildCheckout(_ context.Context, req CheckoutRequest) (Checkout, error) {
	if missing := s.Gateway.Missing(); len(missing) > 0 {
		return Checkout{}, &ConfigError{Missing: missing}
	}
	if strings.TrimSpace(req.InvoiceID) == "" {
		return Checkout{}, errors.New("payment: invoice id is required")
	}
	installments := req.Installments
	if installments <= 0 {
		installments = 1
	}
	total := pricing.FormatAmount(req.Amount)
	hashKey, err := BuildHashKey(HashParams{
		Total:        total,
		Installments: installments,
		CurrencyCode: req.Currency,
		MerchantKey:  s.Gateway.MerchantKey,
		InvoiceID:    req.InvoiceID,
	}, s.Gateway.AppSecret, s.Rand)
	if err != nil {
		return Checkout{}, err
	}
	items, err := encodeItems(req.Items)
	if err != nil {
		return Checkout{}, err
	}
	name, surname := splitName(req.Customer.Name)
	holder := strings.TrimSpace(req.Card.HolderName)
	if holder == "" {
		holder = req.Customer.Name
	}
	base := strings.TrimRight(s.Gateway.PublicBaseURL, "/")
	fields := []FormField{
		{"cc_holder_name", holder},
		{"cc_no", req.Card.Number},
		{"expiry_month", req.Card.ExpiryMonth},
		{"expiry_year", req.Card.ExpiryYear},
		{"cvv", req.Card.CVV},
		{"currency_code", req.Currency},
		{"installments_number", strconv.Itoa(installments)},
		{"invoice_id", req.InvoiceID},
		{"invoice_description", fmt.Sprintf("Rawises.com - Sipariş #%s", req.OrderID)},
		{"name", name},
		{"surname", surname},
		{"total", total},
		{"merchant_key", s.Gateway.MerchantKey},
		{"items", items},
		{"cancel_url", base + "/payment/failed"},
		{"return_url", base + "/payment/success"},
		{"hash_key", hashKey},
		{"response_method", "POST"},
		{"bill_email", req.Customer.Email},
		{"bill_phone", req.Customer.Phone},
	}
	action := strings.TrimRight(s.Gateway.BaseURL, "/") + "/api/paySmart3D"
	html, err := RenderRedirect(action, fields)
	if err != nil {
		return Checkout{}, err
	}
	return Checkout{
		Provider:  s.Name(),
		InvoiceID: req.InvoiceID,
		Action:    action,
		Fields:    fields,
		HTML:      html,
	}, nil
}

// VerifyWebhook parses the callback and checks its HMAC. Parse and presence
// errors are returned as errors; a bad signature yields Valid=false.
func (s Sipay) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	if strings.TrimSpace(s.Gateway.MerchantKey) == "" {
		return WebhookVerifyResult{}, &ConfigError{Missing: []string{"SIPAY_MERCHANT_KEY"}}
	}
	variant := VariantForm
	if r != nil {
		if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "application/json" {
			variant = VariantJSON
		}
	}
	var (
		evt WebhookEvent
		err error
	)
	if variant == VariantJSON {
		evt, err = parseJSONCallback(body)
	} else {
		evt, err = parseFormCallback(body)
	}
	if err != nil {
		return WebhookVerifyResult{Variant: variant}, err
	}
	if err := common.ValidateStruct(evt); err != nil {
		return WebhookVerifyResult{Variant: variant}, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	result := WebhookVerifyResult{Variant: variant, Event: evt, ProviderPayload: body}
	provided, decodeErr := decodeSignature(variant, evt.Hash)
	expected := CallbackMAC(s.Gateway.MerchantKey, evt.MerchantOID, evt.Status, evt.TotalAmount)
	if decodeErr != nil || !hmac.Equal(provided, expected) {
		result.Err = errors.New("payment: signature mismatch")
		return result, nil
	}
	result.Valid = true
	return result, nil
}

// CallbackMAC computes HMAC-SHA256(merchantKey, oid + merchantKey + status + total).
func CallbackMAC(merchantKey, merchantOID, status, totalAmount string) []byte {
	mac := hmac.New(sha256.New, []byte(merchantKey))
	mac.Write([]byte(merchantOID + merchantKey + status + totalAmount))
	return mac.Sum(nil)
}

// SignCallback encodes CallbackMAC the way the given variant transmits it.
func SignCallback(variant, merchantKey, merchantOID, status, totalAmount string) string {
	sum := CallbackMAC(merchantKey, merchantOID, status, totalAmount)
	if variant == VariantJSON {
		return hex.EncodeToString(sum)
	}
	return base64.StdEncoding.EncodeToString(sum)
}

func decodeSignature(variant, value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if variant == VariantJSON {
		return hex.DecodeString(strings.ToLower(value))
	}
	return base64.StdEncoding.DecodeString(value)
}

func parseFormCallback(body []byte) (WebhookEvent, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	return WebhookEvent{
		MerchantOID:      strings.TrimSpace(values.Get("merchant_oid")),
		Status:           strings.TrimSpace(values.Get("status")),
		TotalAmount:      strings.TrimSpace(values.Get("total_amount")),
		Hash:             strings.TrimSpace(values.Get("hash")),
		FailedReasonCode: values.Get("failed_reason_code"),
		FailedReasonMsg:  values.Get("failed_reason_msg"),
		PaymentType:      values.Get("payment_type"),
		TestMode:         values.Get("test_mode"),
		Currency:         values.Get("currency"),
		PaymentAmount:    values.Get("payment_amount"),
	}, nil
}

// looseString accepts both JSON strings and numbers.
type looseString string

func (l *looseString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = looseString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*l = looseString(n.String())
	return nil
}

func parseJSONCallback(body []byte) (WebhookEvent, error) {
	var raw struct {
		MerchantOID      looseString `json:"merchant_oid"`
		Status           looseString `json:"status"`
		TotalAmount      looseString `json:"total_amount"`
		Hash             looseString `json:"hash"`
		FailedReasonCode looseString `json:"failed_reason_code"`
		FailedReasonMsg  looseString `json:"failed_reason_msg"`
		PaymentType      looseString `json:"payment_type"`
		TestMode         looseString `json:"test_mode"`
		Currency         looseString `json:"currency"`
		PaymentAmount    looseString `json:"payment_amount"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	return WebhookEvent{
		MerchantOID:      strings.TrimSpace(string(raw.MerchantOID)),
		Status:           strings.TrimSpace(string(raw.Status)),
		TotalAmount:      strings.TrimSpace(string(raw.TotalAmount)),
		Hash:             strings.TrimSpace(string(raw.Hash)),
		FailedReasonCode: string(raw.FailedReasonCode),
		FailedReasonMsg:  string(raw.FailedReasonMsg),
		PaymentType:      string(raw.PaymentType),
		TestMode:         string(raw.TestMode),
		Currency:         string(raw.Currency),
		PaymentAmount:    string(raw.PaymentAmount),
	}, nil
}

func encodeItems(items []CheckoutItem) (string, error) {
	type wireItem struct {
		Name        string `json:"name"`
		Price       string `json:"price"`
		Quantity    int    `json:"quantity"`
		Description string `json:"description"`
	}
	out := make([]wireItem, 0, len(items))
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		out = append(out, wireItem{Name: it.Name, Price: pricing.FormatAmount(it.Price), Quantity: qty, Description: it.Name})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("payment: encode items: %w", err)
	}
	return string(b), nil
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "Müşteri", "Müşteri"
	case 1:
		return parts[0], "Müşteri"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
