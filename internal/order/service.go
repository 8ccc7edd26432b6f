package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/events"
)

var (
	// ErrNotFound is returned when the order does not exist or the caller may not see it.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidStatus is returned for unknown status values.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidTransition is returned when the status change is not allowed.
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Service exposes order reads for customers and status management for admins.
type Service struct {
	Repo   Repo
	Events *events.Bus
	Logger zerolog.Logger
}

// Get returns an order the caller is allowed to read.
func (s *Service) Get(ctx context.Context, id, userID, email string) (Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !o.AccessibleBy(userID, email) {
		return Order{}, ErrNotFound
	}
	return o, nil
}

// AdminGet returns any order.
func (s *Service) AdminGet(ctx context.Context, id string) (Order, error) {
	return s.load(ctx, id)
}

// List returns a page of orders, newest first, and the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	if s == nil || s.Repo == nil {
		return nil, 0, errors.New("order service not configured")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.Repo.ListOrders(ctx, f)
}

// ChangeStatus moves an order to a new fulfilment status.
func (s *Service) ChangeStatus(ctx context.Context, id string, to Status) (Order, error) {
	to = Status(strings.ToLower(strings.TrimSpace(string(to))))
	if !to.Valid() {
		return Order{}, ErrInvalidStatus
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, to, o.PaymentStatus) {
		return Order{}, fmt.Errorf("%s -> %s: %w", o.Status, to, ErrInvalidTransition)
	}
	ok, err := s.Repo.UpdateStatus(ctx, id, o.Status, to)
	if err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	if !ok {
		return Order{}, fmt.Errorf("order changed concurrently: %w", ErrInvalidTransition)
	}
	from := o.Status
	o.Status = to
	if to == StatusRefunded {
		o.PaymentStatus = PaymentRefunded
	}
	s.emitStatus(ctx, o, from)
	return o, nil
}

func (s *Service) load(ctx context.Context, id string) (Order, error) {
	if s == nil || s.Repo == nil {
		return Order{}, errors.New("order service not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Order{}, ErrNotFound
	}
	o, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("load order: %w", err)
	}
	return o, nil
}

func (s *Service) emitStatus(ctx context.Context, o Order, from Status) {
	if s.Events == nil {
		return
	}
	topic := events.TopicOrderUpdated
	if o.Status == StatusCancelled {
		topic = events.TopicOrderCanceled
	}
	payload := EventPayload(o)
	payload["from"] = string(from)
	payload["to"] = string(o.Status)
	if _, err := s.Events.Emit(ctx, topic, o.ID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("order_id", o.ID).Str("topic", topic).Msg("order_event_emit_failed")
	}
}

// EventPayload is the common event body for order topics.
func EventPayload(o Order) map[string]any {
	payload := map[string]any{
		"orderId":     o.ID,
		"orderNumber": o.OrderNumber,
		"status":      string(o.Status),
		"amount":      o.TotalAmount.StringFixed(2),
		"currency":    o.Currency,
		"email":       o.Customer.Email,
		"name":        o.Customer.Name,
	}
	if o.UserID != "" {
		payload["userId"] = o.UserID
	}
	return payload
}
