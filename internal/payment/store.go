package payment

import (
	"context"
	"time"

	"github.com/rawises/storefront-api/internal/order"
)

// AttemptUpdate carries the provider details recorded with a transition.
// Empty fields leave the stored values untouched and TestMode is sticky.
type AttemptUpdate struct {
	FailureCode     string
	FailureMessage  string
	PaymentType     string
	TestMode        bool
	ProviderPayload []byte
}

// Tx is the set of operations that run inside a settlement transaction.
type Tx interface {
	// LockAttemptByInvoice loads the attempt and holds a row lock until commit.
	LockAttemptByInvoice(ctx context.Context, invoiceID string) (Attempt, error)
	// TransitionAttempt moves the attempt from one state to another and
	// reports false when the current state no longer matches from.
	TransitionAttempt(ctx context.Context, id string, from, to State, upd AttemptUpdate) (bool, error)
	GetOrder(ctx context.Context, orderID string) (order.Order, error)
	SetOrderPayment(ctx context.Context, orderID string, status order.Status, payment order.PaymentStatus) error
	DecrementStockForOrder(ctx context.Context, orderID string) error
}

// Store persists payment attempts. Missing rows are reported as pgx.ErrNoRows.
type Store interface {
	Tx
	CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	GetAttemptByInvoice(ctx context.Context, invoiceID string) (Attempt, error)
	LatestAttemptForOrder(ctx context.Context, orderID string) (Attempt, error)
	ListExpiredAttempts(ctx context.Context, now time.Time, limit int) ([]Attempt, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

// ExpiryScheduler schedules the timeout check for a redirected attempt.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, invoiceID string, at time.Time) error
}
