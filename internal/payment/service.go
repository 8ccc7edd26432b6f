package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rawises/storefront-api/internal/events"
	"github.com/rawises/storefront-api/internal/obs"
	"github.com/rawises/storefront-api/internal/order"
)

var (
	ErrNotConfigured    = errors.New("payment: service not configured")
	ErrOrderNotFound    = errors.New("payment: order not found")
	ErrOrderNotPayable  = errors.New("payment: order cannot be paid")
	ErrAlreadyPaid      = errors.New("payment: order already paid")
	ErrAttemptNotFound  = errors.New("payment: attempt not found")
	ErrAmountMismatch   = errors.New("payment: amount mismatch")
	ErrInvalidSignature = errors.New("payment: invalid signature")
)

// Service coordinates payment attempts from creation to settlement.
type Service struct {
	Store     Store
	Provider  Provider
	Expiry    ExpiryScheduler
	Events    *events.Bus
	Logger    zerolog.Logger
	IntentTTL time.Duration
	Currency  string
	Now       func() time.Time
}

// CreateInput identifies the order to pay and carries card details.
type CreateInput struct {
	OrderID      string
	UserID       string
	Email        string
	Installments int
	Card         Card
}

// CreateResult is returned to the storefront after a successful creation.
type CreateResult struct {
	Attempt  Attempt
	Checkout Checkout
}

// Outcome describes what a verified webhook changed.
type Outcome struct {
	Attempt   Attempt
	Applied   bool
	Duplicate bool
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ttl() time.Duration {
	if s.IntentTTL <= 0 {
		return 30 * time.Minute
	}
	return s.IntentTTL
}

// InvoiceID builds the merchant order id correlating an attempt with the gateway.
func InvoiceID(orderID string, at time.Time) string {
	return fmt.Sprintf("RW-%s-%d", orderID, at.UnixMilli())
}

// Create signs a checkout for the order and records a redirected attempt.
func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	var zero CreateResult
	if s == nil || s.Store == nil || s.Provider == nil {
		return zero, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Create")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.provider", s.Provider.Name()),
			attribute.Float64("payment.create.duration_ms", obs.DurationMillis(time.Since(start))),
			attribute.String("payment.create.result", result),
		)
		if obs.PaymentCreateTotal != nil {
			obs.PaymentCreateTotal.WithLabelValues(result).Inc()
		}
		if obs.PaymentCreateLatency != nil {
			obs.PaymentCreateLatency.Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	if c, ok := s.Provider.(interface{ MissingConfig() []string }); ok {
		if missing := c.MissingConfig(); len(missing) > 0 {
			result = "not_configured"
			return zero, &ConfigError{Missing: missing}
		}
	}
	span.SetAttributes(attribute.String("order.id", in.OrderID))
	ord, err := s.Store.GetOrder(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, ErrOrderNotFound
		}
		return zero, err
	}
	if !ord.AccessibleBy(in.UserID, in.Email) {
		return zero, ErrOrderNotFound
	}
	if ord.PaymentStatus == order.PaymentPaid {
		return zero, ErrAlreadyPaid
	}
	if ord.Status != order.StatusPending {
		return zero, ErrOrderNotPayable
	}
	if !ord.TotalAmount.IsPositive() {
		return zero, ErrOrderNotPayable
	}

	now := s.now()
	currency := ord.Currency
	if currency == "" {
		currency = s.Currency
	}
	req := CheckoutRequest{
		OrderID:      ord.ID,
		InvoiceID:    InvoiceID(ord.ID, now),
		Amount:       ord.TotalAmount,
		Currency:     currency,
		Installments: in.Installments,
		Customer:     Customer{Name: ord.Customer.Name, Email: ord.Customer.Email, Phone: ord.Customer.Phone},
		Card:         in.Card,
	}
	for _, it := range ord.Items {
		req.Items = append(req.Items, CheckoutItem{Name: it.Name, Price: it.UnitPrice, Quantity: it.Quantity})
	}
	checkout, err := s.Provider.BuildCheckout(ctx, req)
	if err != nil {
		span.RecordError(err)
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			result = "not_configured"
		}
		return zero, err
	}

	attempt, err := s.Store.CreateAttempt(ctx, Attempt{
		OrderID:   ord.ID,
		InvoiceID: req.InvoiceID,
		Amount:    ord.TotalAmount,
		Currency:  currency,
		State:     StateCreated,
		ExpiresAt: now.Add(s.ttl()),
	})
	if err != nil {
		return zero, err
	}
	ok, err := s.Store.TransitionAttempt(ctx, attempt.ID, StateCreated, StateRedirected, AttemptUpdate{})
	if err != nil {
		return zero, err
	}
	if ok {
		obs.ObservePaymentTransition(string(StateCreated), string(StateRedirected))
		attempt.State = StateRedirected
	}
	if s.Expiry != nil {
		if err := s.Expiry.ScheduleExpiry(ctx, attempt.InvoiceID, attempt.ExpiresAt); err != nil {
			s.Logger.Warn().Err(err).Str("invoice_id", attempt.InvoiceID).Msg("payment_expiry_schedule_failed")
		}
	}
	result = "success"
	s.Logger.Info().Str("order_id", ord.ID).Str("invoice_id", attempt.InvoiceID).Msg("payment_created")
	return CreateResult{Attempt: attempt, Checkout: checkout}, nil
}

// ApplyWebhook settles the attempt named by a verified webhook. A webhook for
// an attempt that is already confirmed is reported as a duplicate and changes
// nothing.
func (s *Service) ApplyWebhook(ctx context.Context, evt WebhookEvent, payload []byte) (Outcome, error) {
	if s == nil || s.Store == nil {
		return Outcome{}, ErrNotConfigured
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.ApplyWebhook")
	defer span.End()
	span.SetAttributes(attribute.String("payment.invoice_id", evt.MerchantOID), attribute.String("payment.status", evt.Status))

	var (
		out   Outcome
		ord   order.Order
		final State
	)
	err := s.Store.InTx(ctx, func(tx Tx) error {
		attempt, err := tx.LockAttemptByInvoice(ctx, evt.MerchantOID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAttemptNotFound
			}
			return err
		}
		out.Attempt = attempt
		if !amountMatches(attempt.Amount, evt.TotalAmount) {
			return ErrAmountMismatch
		}
		if attempt.State.Confirmed() {
			out.Duplicate = true
			return nil
		}
		target := StateConfirmedFailed
		reconciled := StateReconciledFailed
		if evt.Succeeded() {
			target = StateConfirmedSuccess
			reconciled = StateReconciledSuccess
		}
		upd := AttemptUpdate{
			PaymentType:     evt.PaymentType,
			TestMode:        parseTestMode(evt.TestMode),
			ProviderPayload: payload,
		}
		if !evt.Succeeded() {
			reason := DescribeFailure(evt.FailedReasonCode)
			upd.FailureCode = reason.Code
			upd.FailureMessage = reason.Message
			if !reason.Known && strings.TrimSpace(evt.FailedReasonMsg) != "" {
				upd.FailureMessage = strings.TrimSpace(evt.FailedReasonMsg)
			}
		}
		ok, err := tx.TransitionAttempt(ctx, attempt.ID, attempt.State, target, upd)
		if err != nil {
			return err
		}
		if !ok {
			out.Duplicate = true
			return nil
		}
		out.Attempt.FailureCode = upd.FailureCode
		out.Attempt.FailureMessage = upd.FailureMessage
		out.Attempt.PaymentType = upd.PaymentType
		out.Attempt.TestMode = upd.TestMode
		obs.ObservePaymentTransition(string(attempt.State), string(target))

		ord, err = tx.GetOrder(ctx, attempt.OrderID)
		if err != nil {
			return err
		}
		if evt.Succeeded() {
			status := ord.Status
			if status == order.StatusPending {
				status = order.StatusConfirmed
			}
			if err := tx.SetOrderPayment(ctx, ord.ID, status, order.PaymentPaid); err != nil {
				return err
			}
			if ord.PaymentStatus != order.PaymentPaid {
				if err := tx.DecrementStockForOrder(ctx, ord.ID); err != nil {
					return err
				}
			}
			ord.Status = status
			ord.PaymentStatus = order.PaymentPaid
		} else if ord.PaymentStatus != order.PaymentPaid {
			if err := tx.SetOrderPayment(ctx, ord.ID, ord.Status, order.PaymentFailed); err != nil {
				return err
			}
			ord.PaymentStatus = order.PaymentFailed
		}
		if _, err := tx.TransitionAttempt(ctx, attempt.ID, target, reconciled, AttemptUpdate{}); err != nil {
			return err
		}
		obs.ObservePaymentTransition(string(target), string(reconciled))
		final = reconciled
		out.Applied = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	if !out.Applied {
		s.Logger.Info().Str("invoice_id", evt.MerchantOID).Str("state", string(out.Attempt.State)).Msg("payment_webhook_duplicate")
		return out, nil
	}
	out.Attempt.State = final
	s.Logger.Info().Str("invoice_id", evt.MerchantOID).Str("order_id", ord.ID).Str("state", string(final)).Msg("payment_webhook_applied")
	s.emit(ctx, ord, out.Attempt, evt.Succeeded())
	return out, nil
}

// Expire times out an attempt that never received a webhook. It returns false
// when the attempt has already moved on.
func (s *Service) Expire(ctx context.Context, invoiceID string) (bool, error) {
	if s == nil || s.Store == nil {
		return false, ErrNotConfigured
	}
	var (
		expired bool
		ord     order.Order
		attempt Attempt
	)
	err := s.Store.InTx(ctx, func(tx Tx) error {
		var err error
		attempt, err = tx.LockAttemptByInvoice(ctx, invoiceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAttemptNotFound
			}
			return err
		}
		if !attempt.State.Pending() {
			return nil
		}
		if s.now().Before(attempt.ExpiresAt) {
			return nil
		}
		ok, err := tx.TransitionAttempt(ctx, attempt.ID, attempt.State, StateTimedOut, AttemptUpdate{})
		if err != nil || !ok {
			return err
		}
		obs.ObservePaymentTransition(string(attempt.State), string(StateTimedOut))
		ord, err = tx.GetOrder(ctx, attempt.OrderID)
		if err != nil {
			return err
		}
		if ord.PaymentStatus == order.PaymentPending {
			if err := tx.SetOrderPayment(ctx, ord.ID, ord.Status, order.PaymentFailed); err != nil {
				return err
			}
		}
		attempt.State = StateTimedOut
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		s.Logger.Info().Str("invoice_id", invoiceID).Msg("payment_timed_out")
		if s.Events != nil {
			if _, err := s.Events.Emit(ctx, events.TopicPaymentExpired, ord.ID, eventPayload(ord, attempt)); err != nil {
				s.Logger.Warn().Err(err).Str("order_id", ord.ID).Msg("payment_event_emit_failed")
			}
		}
	}
	return expired, nil
}

// Sweep times out every pending attempt whose deadline has passed.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	if s == nil || s.Store == nil {
		return 0, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 100
	}
	attempts, err := s.Store.ListExpiredAttempts(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	count := 0
	var joined error
	for _, a := range attempts {
		ok, err := s.Expire(ctx, a.InvoiceID)
		if err != nil {
			joined = errors.Join(joined, fmt.Errorf("expire %s: %w", a.InvoiceID, err))
			continue
		}
		if ok {
			count++
		}
	}
	return count, joined
}

// ReturnView is the read-only answer to a browser return redirect.
type ReturnView struct {
	OrderID       string         `json:"orderId"`
	InvoiceID     string         `json:"invoiceId"`
	Status        string         `json:"status"`
	Final         bool           `json:"final"`
	State         State          `json:"state"`
	FailureReason *FailureReason `json:"failureReason,omitempty"`
	Message       string         `json:"message"`
}

// ReturnStatus reports the persisted attempt state for a browser return.
// Parameters supplied by the browser are never trusted to change state.
func (s *Service) ReturnStatus(ctx context.Context, invoiceID string) (ReturnView, error) {
	if s == nil || s.Store == nil {
		return ReturnView{}, ErrNotConfigured
	}
	attempt, err := s.Store.GetAttemptByInvoice(ctx, strings.TrimSpace(invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReturnView{}, ErrAttemptNotFound
		}
		return ReturnView{}, err
	}
	return viewFor(attempt), nil
}

func viewFor(a Attempt) ReturnView {
	view := ReturnView{OrderID: a.OrderID, InvoiceID: a.InvoiceID, State: a.State}
	switch {
	case a.State.Succeeded():
		view.Status, view.Final, view.Message = "success", true, "Ödemeniz başarıyla alındı."
	case a.State == StateConfirmedFailed || a.State == StateReconciledFailed:
		reason := DescribeFailure(a.FailureCode)
		if !reason.Known && a.FailureMessage != "" {
			reason.Message = a.FailureMessage
		}
		view.Status, view.Final, view.FailureReason, view.Message = "failed", true, &reason, reason.Message
	case a.State == StateTimedOut:
		view.Status, view.Message = "timed_out", "Ödeme süresi doldu. Lütfen tekrar deneyin."
	default:
		view.Status, view.Message = "processing", "Ödemeniz işleniyor."
	}
	return view
}

// StatusView is the consolidated payment status of an order.
type StatusView struct {
	OrderID       string              `json:"orderId"`
	OrderStatus   order.Status        `json:"orderStatus"`
	PaymentStatus order.PaymentStatus `json:"paymentStatus"`
	Attempt       *ReturnView         `json:"attempt,omitempty"`
}

// ConsolidatedStatus returns the best-known payment status for an order.
func (s *Service) ConsolidatedStatus(ctx context.Context, orderID, userID, email string) (StatusView, error) {
	if s == nil || s.Store == nil {
		return StatusView{}, ErrNotConfigured
	}
	ord, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StatusView{}, ErrOrderNotFound
		}
		return StatusView{}, err
	}
	if !ord.AccessibleBy(userID, email) {
		return StatusView{}, ErrOrderNotFound
	}
	view := StatusView{OrderID: ord.ID, OrderStatus: ord.Status, PaymentStatus: ord.PaymentStatus}
	attempt, err := s.Store.LatestAttemptForOrder(ctx, ord.ID)
	switch {
	case err == nil:
		v := viewFor(attempt)
		view.Attempt = &v
	case !errors.Is(err, pgx.ErrNoRows):
		return StatusView{}, err
	}
	return view, nil
}

func (s *Service) emit(ctx context.Context, ord order.Order, attempt Attempt, succeeded bool) {
	if s.Events == nil {
		return
	}
	topic := events.TopicPaymentFailed
	if succeeded {
		topic = events.TopicOrderPaid
	}
	if _, err := s.Events.Emit(ctx, topic, ord.ID, eventPayload(ord, attempt)); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", ord.ID).Str("topic", topic).Msg("payment_event_emit_failed")
	}
}

func eventPayload(ord order.Order, attempt Attempt) map[string]any {
	payload := map[string]any{
		"orderId":     ord.ID,
		"orderNumber": ord.OrderNumber,
		"invoiceId":   attempt.InvoiceID,
		"state":       string(attempt.State),
		"amount":      attempt.Amount.StringFixed(2),
		"currency":    attempt.Currency,
		"email":       ord.Customer.Email,
		"name":        ord.Customer.Name,
	}
	if ord.UserID != "" {
		payload["userId"] = ord.UserID
	}
	ids := make([]string, 0, len(ord.Items))
	for _, it := range ord.Items {
		ids = append(ids, it.ProductID)
	}
	payload["productIds"] = ids
	if attempt.FailureCode != "" || attempt.FailureMessage != "" {
		payload["failureCode"] = attempt.FailureCode
		payload["failureMessage"] = attempt.FailureMessage
	}
	return payload
}

func amountMatches(expected decimal.Decimal, reported string) bool {
	reported = strings.TrimSpace(reported)
	if reported == "" {
		return false
	}
	got, err := decimal.NewFromString(strings.ReplaceAll(reported, ",", "."))
	if err != nil {
		return false
	}
	return got.Round(2).Equal(expected.Round(2))
}

func parseTestMode(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
