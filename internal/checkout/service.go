package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rawises/storefront-api/internal/cart"
	"github.com/rawises/storefront-api/internal/events"
	"github.com/rawises/storefront-api/internal/order"
)

var (
	// ErrEmptyCart is returned when checking out a cart without items.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock is returned when a line exceeds the available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Input is the checkout request body.
type Input struct {
	CartID          string         `json:"cartId" validate:"required"`
	Customer        order.Customer `json:"customer" validate:"required"`
	ShippingAddress order.Address  `json:"shippingAddress" validate:"required"`
	Notes           string         `json:"notes" validate:"max=500"`
}

// Service converts carts into pending orders.
type Service struct {
	Carts    *cart.Service
	Products cart.ProductLookup
	Orders   order.Repo
	Events   *events.Bus
	Currency string
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create snapshots the cart's items and rounded totals into a pending order
// and clears the cart. The order's total is the amount later charged.
func (s *Service) Create(ctx context.Context, userID string, in Input) (order.Order, error) {
	if s == nil || s.Carts == nil || s.Orders == nil {
		return order.Order{}, errors.New("checkout service not configured")
	}
	userID = strings.TrimSpace(userID)
	view, err := s.Carts.Get(ctx, in.CartID, userID != "")
	if err != nil {
		return order.Order{}, err
	}
	if len(view.Items) == 0 {
		return order.Order{}, ErrEmptyCart
	}
	items := make([]order.Item, 0, len(view.Items))
	for _, it := range view.Items {
		if err := s.checkStock(ctx, it); err != nil {
			return order.Order{}, err
		}
		items = append(items, order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			LineTotal: it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2),
		})
	}
	now := s.now()
	currency := s.Currency
	if currency == "" {
		currency = "TRY"
	}
	totals := view.Totals
	in.Customer.Email = strings.ToLower(strings.TrimSpace(in.Customer.Email))
	ord, err := s.Orders.CreateOrder(ctx, order.Order{
		ID:              uuid.NewString(),
		OrderNumber:     orderNumber(now),
		UserID:          userID,
		Status:          order.StatusPending,
		PaymentStatus:   order.PaymentPending,
		Customer:        in.Customer,
		ShippingAddress: in.ShippingAddress,
		Items:           items,
		Subtotal:        totals.Subtotal,
		DiscountPercent: totals.DiscountPercent,
		DiscountAmount:  totals.MemberDiscountAmount,
		TaxAmount:       totals.VAT,
		ShippingCost:    decimal.Zero,
		TotalAmount:     totals.FinalTotal,
		Currency:        currency,
		Notes:           strings.TrimSpace(in.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return order.Order{}, fmt.Errorf("create order: %w", err)
	}
	if err := s.Carts.Clear(ctx, in.CartID); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", in.CartID).Msg("checkout_cart_clear_failed")
	}
	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, ord.ID, order.EventPayload(ord)); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", ord.ID).Msg("order_event_emit_failed")
		}
	}
	return ord, nil
}

func (s *Service) checkStock(ctx context.Context, it cart.Item) error {
	if s.Products == nil {
		return nil
	}
	p, err := s.Products.Lookup(ctx, it.ProductID)
	if err != nil {
		return fmt.Errorf("product %s: %w", it.ProductID, err)
	}
	if p.Stock < it.Quantity {
		return fmt.Errorf("product %s: %w", it.ProductID, ErrInsufficientStock)
	}
	return nil
}

func orderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "RW" + at.Format("20060102") + suffix
}
