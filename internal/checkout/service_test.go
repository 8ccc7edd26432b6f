package checkout_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/cart"
	"github.com/rawises/storefront-api/internal/catalog"
	"github.com/rawises/storefront-api/internal/checkout"
	"github.com/rawises/storefront-api/internal/common"
	"github.com/rawises/storefront-api/internal/events"
	"github.com/rawises/storefront-api/internal/order"
)

type products map[string]catalog.Product

func (p products) Lookup(_ context.Context, id string) (catalog.Product, error) {
	v, ok := p[id]
	if !ok {
		return catalog.Product{}, pgx.ErrNoRows
	}
	return v, nil
}

type orderSink struct{ created []order.Order }

func (s *orderSink) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.created = append(s.created, o)
	return o, nil
}

func (s *orderSink) GetOrder(context.Context, string) (order.Order, error) {
	return order.Order{}, pgx.ErrNoRows
}

func (s *orderSink) ListOrders(context.Context, order.ListFilter) ([]order.Order, int, error) {
	return nil, 0, nil
}

func (s *orderSink) UpdateStatus(context.Context, string, order.Status, order.Status) (bool, error) {
	return false, nil
}

type topicLog struct{ topics []string }

func (l *topicLog) InsertDomainEvent(_ context.Context, ev events.Event) (events.Event, error) {
	l.topics = append(l.topics, ev.Topic)
	return ev, nil
}

type fixture struct {
	svc     *checkout.Service
	carts   *cart.Service
	catalog products
	orders  *orderSink
	events  *topicLog
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	stock := products{
		"p1": {ID: "p1", Name: "Ruj", SKU: "RJ-1", SalePrice: decimal.RequireFromString("100"), Stock: 5, IsActive: true},
	}
	carts := &cart.Service{Store: &cart.Store{R: rdb, TTL: time.Hour}, Products: stock}
	orders := &orderSink{}
	log := &topicLog{}
	svc := &checkout.Service{
		Carts:    carts,
		Products: stock,
		Orders:   orders,
		Events:   &events.Bus{Store: log},
		Currency: "TRY",
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return fixture{svc: svc, carts: carts, catalog: stock, orders: orders, events: log}
}

func input(cartID string) checkout.Input {
	return checkout.Input{
		CartID:          cartID,
		Customer:        order.Customer{Name: "Ayşe Yılmaz", Email: " Ayse@Example.com", Phone: "5550000000"},
		ShippingAddress: order.Address{Line1: "Bağdat Cd. 1", City: "İstanbul", Country: "TR"},
	}
}

func TestCheckoutSnapshotsMemberTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.carts.Create(ctx, true)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.ID, "p1", 2, true)
	require.NoError(t, err)

	ord, err := f.svc.Create(ctx, "user-1", input(c.ID))
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, ord.Status)
	require.Equal(t, order.PaymentPending, ord.PaymentStatus)
	require.Equal(t, "user-1", ord.UserID)
	require.Equal(t, "ayse@example.com", ord.Customer.Email)
	require.True(t, ord.Subtotal.Equal(decimal.RequireFromString("200")))
	require.True(t, ord.DiscountAmount.Equal(decimal.RequireFromString("30")))
	require.True(t, ord.TaxAmount.Equal(decimal.RequireFromString("34")))
	require.True(t, ord.TotalAmount.Equal(decimal.RequireFromString("204")))
	require.Len(t, ord.Items, 1)
	require.True(t, ord.Items[0].LineTotal.Equal(decimal.RequireFromString("200")))
	require.True(t, strings.HasPrefix(ord.OrderNumber, "RW20250301"))
	require.Equal(t, []string{events.TopicOrderCreated}, f.events.topics)

	_, err = f.carts.Get(ctx, c.ID, true)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestCheckoutGuestPaysFullPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.carts.Create(ctx, false)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.ID, "p1", 2, false)
	require.NoError(t, err)

	ord, err := f.svc.Create(ctx, "", input(c.ID))
	require.NoError(t, err)
	require.Empty(t, ord.UserID)
	require.True(t, ord.DiscountAmount.IsZero())
	require.True(t, ord.TotalAmount.Equal(decimal.RequireFromString("240")))
}

func TestCheckoutRejectsEmptyAndUnderstocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.carts.Create(ctx, false)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "", input(c.ID))
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	_, err = f.carts.AddItem(ctx, c.ID, "p1", 3, false)
	require.NoError(t, err)
	p := f.catalog["p1"]
	p.Stock = 1
	f.catalog["p1"] = p

	_, err = f.svc.Create(ctx, "", input(c.ID))
	require.ErrorIs(t, err, checkout.ErrInsufficientStock)
	require.Empty(t, f.orders.created)
}

func TestCheckoutHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.carts.Create(ctx, true)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.ID, "p1", 1, true)
	require.NoError(t, err)

	h := &checkout.Handler{Svc: f.svc, Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Post("/checkout", h.Checkout)

	body := `{"cartId":"` + c.ID + `","customer":{"name":"Ayşe","email":"ayse@example.com","phone":"555"},"shippingAddress":{"line1":"Bağdat Cd.","city":"İstanbul"}}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	req = req.WithContext(common.WithUserID(req.Context(), "user-1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.orders.created, 1)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"cartId":"x","customer":{"email":"bad"}}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"cartId":"missing","customer":{"name":"A","email":"a@example.com","phone":"1"},"shippingAddress":{"line1":"x","city":"y"}}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
