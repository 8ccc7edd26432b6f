package notify

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/rawises/storefront-api/internal/events"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type mailKind struct {
	subject  string
	template string
	text     string
}

var kinds = map[string]mailKind{
	events.TopicOrderPaid: {
		subject:  "Siparişiniz onaylandı - %s",
		template: "order_paid.html",
		text:     "%s numaralı siparişinizin ödemesi alındı.",
	},
	events.TopicPaymentFailed: {
		subject:  "Ödemeniz tamamlanamadı - %s",
		template: "payment_failed.html",
		text:     "%s numaralı siparişiniz için ödeme alınamadı.",
	},
	events.TopicPaymentExpired: {
		subject:  "Ödeme süresi doldu - %s",
		template: "payment_expired.html",
		text:     "%s numaralı siparişiniz için ödeme zaman aşımına uğradı.",
	},
	events.TopicOrderCanceled: {
		subject:  "Siparişiniz iptal edildi - %s",
		template: "order_canceled.html",
		text:     "%s numaralı siparişiniz iptal edildi.",
	},
}

type mailData struct {
	Name        string
	OrderNumber string
	Amount      string
	Currency    string
	Reason      string
}

type eventBody struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	FailureMessage string `json:"failureMessage"`
}

// Render builds the customer e-mail for an event. It reports false for topics
// that do not produce mail or events without a recipient.
func Render(ev events.Event) (Message, bool, error) {
	kind, ok := kinds[ev.Topic]
	if !ok {
		return Message{}, false, nil
	}
	var body eventBody
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &body); err != nil {
			return Message{}, false, fmt.Errorf("notify: decode payload: %w", err)
		}
	}
	to := strings.TrimSpace(body.Email)
	if to == "" {
		return Message{}, false, nil
	}
	number := body.OrderNumber
	if number == "" {
		number = body.OrderID
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = "Değerli müşterimiz"
	}
	var buf bytes.Buffer
	err := pages.ExecuteTemplate(&buf, kind.template, mailData{
		Name:        name,
		OrderNumber: number,
		Amount:      body.Amount,
		Currency:    body.Currency,
		Reason:      body.FailureMessage,
	})
	if err != nil {
		return Message{}, false, fmt.Errorf("notify: render %s: %w", kind.template, err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf(kind.subject, number),
		Text:    fmt.Sprintf(kind.text, number),
		HTML:    buf.String(),
	}, true, nil
}
