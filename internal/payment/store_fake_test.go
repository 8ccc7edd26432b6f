package payment_test

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rawises/storefront-api/internal/order"
	"github.com/rawises/storefront-api/internal/payment"
)

type transition struct {
	ID       string
	From, To payment.State
}

type memStore struct {
	mu          sync.Mutex
	orders      map[string]order.Order
	attempts    map[string]payment.Attempt
	seq         int
	transitions []transition
	stockCalls  map[string]int
}

func newMemStore(orders ...order.Order) *memStore {
	s := &memStore{
		orders:     map[string]order.Order{},
		attempts:   map[string]payment.Attempt{},
		stockCalls: map[string]int{},
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) GetOrder(_ context.Context, id string) (order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (s *memStore) SetOrderPayment(_ context.Context, id string, status order.Status, ps order.PaymentStatus) error {
	o, ok := s.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	o.Status = status
	o.PaymentStatus = ps
	s.orders[id] = o
	return nil
}

func (s *memStore) DecrementStockForOrder(_ context.Context, id string) error {
	s.stockCalls[id]++
	return nil
}

func (s *memStore) CreateAttempt(_ context.Context, a payment.Attempt) (payment.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	a.ID = fmt.Sprintf("att-%d", s.seq)
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	s.attempts[a.ID] = a
	return a, nil
}

func (s *memStore) find(invoiceID string) (payment.Attempt, error) {
	for _, a := range s.attempts {
		if a.InvoiceID == invoiceID {
			return a, nil
		}
	}
	return payment.Attempt{}, pgx.ErrNoRows
}

func (s *memStore) GetAttemptByInvoice(_ context.Context, invoiceID string) (payment.Attempt, error) {
	return s.find(invoiceID)
}

func (s *memStore) LockAttemptByInvoice(_ context.Context, invoiceID string) (payment.Attempt, error) {
	return s.find(invoiceID)
}

func (s *memStore) LatestAttemptForOrder(_ context.Context, orderID string) (payment.Attempt, error) {
	var out []payment.Attempt
	for _, a := range s.attempts {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return payment.Attempt{}, pgx.ErrNoRows
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out[0], nil
}

func (s *memStore) ListExpiredAttempts(_ context.Context, now time.Time, limit int) ([]payment.Attempt, error) {
	var out []payment.Attempt
	for _, a := range s.attempts {
		if a.State.Pending() && !a.ExpiresAt.After(now) {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) TransitionAttempt(_ context.Context, id string, from, to payment.State, upd payment.AttemptUpdate) (bool, error) {
	a, ok := s.attempts[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if a.State != from {
		return false, nil
	}
	if !payment.CanTransition(from, to) {
		return false, fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	a.State = to
	if upd.FailureCode != "" {
		a.FailureCode = upd.FailureCode
	}
	if upd.FailureMessage != "" {
		a.FailureMessage = upd.FailureMessage
	}
	if upd.PaymentType != "" {
		a.PaymentType = upd.PaymentType
	}
	if upd.ProviderPayload != nil {
		a.ProviderPayload = upd.ProviderPayload
	}
	a.TestMode = a.TestMode || upd.TestMode
	s.attempts[id] = a
	s.transitions = append(s.transitions, transition{ID: id, From: from, To: to})
	return true, nil
}

func (s *memStore) InTx(_ context.Context, fn func(payment.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordersBefore := map[string]order.Order{}
	for k, v := range s.orders {
		ordersBefore[k] = v
	}
	attemptsBefore := map[string]payment.Attempt{}
	for k, v := range s.attempts {
		attemptsBefore[k] = v
	}
	n := len(s.transitions)
	if err := fn(s); err != nil {
		s.orders = ordersBefore
		s.attempts = attemptsBefore
		s.transitions = s.transitions[:n]
		return err
	}
	return nil
}

func (s *memStore) attempt(invoiceID string) payment.Attempt {
	a, _ := s.find(invoiceID)
	return a
}

type fixedRand struct{}

func (fixedRand) Read(p []byte) (int, error) {
	return bytes.NewReader(bytes.Repeat([]byte{0xab}, len(p))).Read(p)
}

type captureExpiry struct {
	invoices []string
	at       []time.Time
}

func (c *captureExpiry) ScheduleExpiry(_ context.Context, invoiceID string, at time.Time) error {
	c.invoices = append(c.invoices, invoiceID)
	c.at = append(c.at, at)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testGateway() payment.Gateway {
	return payment.Gateway{
		BaseURL:       "https://provisioning.sipay.com.tr/ccpayment",
		MerchantID:    "18309",
		MerchantKey:   "merchant-key",
		AppKey:        "app-key",
		AppSecret:     "app-secret",
		PublicBaseURL: "https://rawises.com",
	}
}

func pendingOrder(id string) order.Order {
	return order.Order{
		ID:            id,
		OrderNumber:   "RW100001",
		UserID:        "user-1",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		Customer:      order.Customer{Name: "Ayşe Yılmaz", Email: "ayse@example.com", Phone: "5551112233"},
		Items: []order.Item{
			{ProductID: "p1", Name: "Ruj", UnitPrice: dec("100"), Quantity: 2, LineTotal: dec("200")},
		},
		Subtotal:       dec("200"),
		DiscountAmount: dec("30"),
		TaxAmount:      dec("34"),
		TotalAmount:    dec("204"),
		Currency:       "TRY",
	}
}
