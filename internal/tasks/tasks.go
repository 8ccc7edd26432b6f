package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/rawises/storefront-api/internal/events"
)

const (
	TypePaymentExpire = "payment:expire"
	TypePaymentSweep  = "payment:sweep"
	TypeOrderNotify   = "order:notify"
)

// ExpirePayload identifies the attempt to time out.
type ExpirePayload struct {
	InvoiceID string `json:"invoiceId"`
}

// NotifyPayload carries the event that triggers a customer e-mail.
type NotifyPayload struct {
	Event events.Event `json:"event"`
}

// NewExpireTask builds a payment:expire task.
func NewExpireTask(invoiceID string) (*asynq.Task, error) {
	raw, err := json.Marshal(ExpirePayload{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePaymentExpire, raw), nil
}

// NewSweepTask builds the periodic payment:sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypePaymentSweep, nil)
}

// NewNotifyTask builds an order:notify task.
func NewNotifyTask(ev events.Event) (*asynq.Task, error) {
	raw, err := json.Marshal(NotifyPayload{Event: ev})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderNotify, raw), nil
}

func decode[T any](t *asynq.Task) (T, error) {
	var out T
	if err := json.Unmarshal(t.Payload(), &out); err != nil {
		return out, fmt.Errorf("%s: decode payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return out, nil
}
