package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// State is the lifecycle position of a payment attempt.
type State string

const (
	StateCreated           State = "created"
	StateRedirected        State = "redirected"
	StateConfirmedSuccess  State = "confirmed_success"
	StateConfirmedFailed   State = "confirmed_failed"
	StateReconciledSuccess State = "reconciled_success"
	StateReconciledFailed  State = "reconciled_failed"
	StateTimedOut          State = "timed_out"
)

// transitions lists the legal next states. A late webhook may still confirm a
// timed out attempt because the gateway outcome is authoritative.
var transitions = map[State][]State{
	StateCreated:          {StateRedirected, StateTimedOut, StateConfirmedSuccess, StateConfirmedFailed},
	StateRedirected:       {StateConfirmedSuccess, StateConfirmedFailed, StateTimedOut},
	StateTimedOut:         {StateConfirmedSuccess, StateConfirmedFailed},
	StateConfirmedSuccess: {StateReconciledSuccess},
	StateConfirmedFailed:  {StateReconciledFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources returns every state that may move to target.
func Sources(target State) []State {
	var out []State
	for from, nexts := range transitions {
		for _, n := range nexts {
			if n == target {
				out = append(out, from)
			}
		}
	}
	return out
}

// Confirmed reports whether the gateway outcome has been recorded.
func (s State) Confirmed() bool {
	switch s {
	case StateConfirmedSuccess, StateConfirmedFailed, StateReconciledSuccess, StateReconciledFailed:
		return true
	}
	return false
}

// Succeeded reports whether the attempt ended in a captured payment.
func (s State) Succeeded() bool {
	return s == StateConfirmedSuccess || s == StateReconciledSuccess
}

// Pending reports whether the attempt is still waiting for the gateway.
func (s State) Pending() bool {
	return s == StateCreated || s == StateRedirected
}

// Attempt is one hand-off to the gateway for an order. Card data is never stored.
type Attempt struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"orderId"`
	InvoiceID       string          `json:"invoiceId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	State           State           `json:"state"`
	FailureCode     string          `json:"failureCode,omitempty"`
	FailureMessage  string          `json:"failureMessage,omitempty"`
	PaymentType     string          `json:"paymentType,omitempty"`
	TestMode        bool            `json:"testMode"`
	ExpiresAt       time.Time       `json:"expiresAt"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	ProviderPayload []byte          `json:"-"`
}
