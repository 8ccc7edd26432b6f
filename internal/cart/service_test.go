package cart_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/cart"
	"github.com/rawises/storefront-api/internal/catalog"
	"github.com/rawises/storefront-api/internal/discount"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeProducts map[string]catalog.Product

func (f fakeProducts) Lookup(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return catalog.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

type staticDiscount struct{ cfg discount.Config }

func (s staticDiscount) Get(context.Context) (discount.Config, error) { return s.cfg, nil }

func newCartService(t *testing.T, cfg discount.Config) (*cart.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &cart.Service{
		Store: &cart.Store{R: rdb, TTL: time.Hour},
		Products: fakeProducts{
			"p1": {ID: "p1", Name: "Ruj", SalePrice: dec("120"), DiscountPrice: dec("100"), Stock: 10, IsActive: true},
			"p2": {ID: "p2", Name: "Maskara", SalePrice: dec("50"), Stock: 3, IsActive: true},
			"p3": {ID: "p3", Name: "Tükendi", SalePrice: dec("10"), Stock: 0, IsActive: true},
		},
		Discounts: staticDiscount{cfg: cfg},
	}, mr
}

func TestCartMemberDiscountExample(t *testing.T) {
	svc, _ := newCartService(t, discount.DefaultConfig())
	ctx := context.Background()

	created, err := svc.Create(ctx, true)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, created.ID, "p1", 2, true)
	require.NoError(t, err)

	require.True(t, view.Totals.Subtotal.Equal(dec("200")))
	require.True(t, view.Totals.MemberDiscountAmount.Equal(dec("30")))
	require.True(t, view.Totals.VAT.Equal(dec("34")))
	require.True(t, view.Totals.FinalTotal.Equal(dec("204")))
	require.True(t, view.Discount.Applied)

	guest, err := svc.Get(ctx, created.ID, false)
	require.NoError(t, err)
	require.True(t, guest.Totals.MemberDiscountAmount.IsZero())
	require.True(t, guest.Totals.FinalTotal.Equal(dec("240")))
	require.False(t, guest.Discount.Applied)
}

func TestCartMinimumOrderAmount(t *testing.T) {
	cfg := discount.DefaultConfig()
	cfg.MinimumOrderAmount = dec("200")
	svc, _ := newCartService(t, cfg)
	ctx := context.Background()

	created, err := svc.Create(ctx, true)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, created.ID, "p2", 3, true)
	require.NoError(t, err)
	require.True(t, view.Totals.Subtotal.Equal(dec("150")))
	require.True(t, view.Totals.MemberDiscountAmount.IsZero())

	view, err = svc.AddItem(ctx, created.ID, "p2", 1, true)
	require.NoError(t, err)
	require.Equal(t, 3, view.Items[0].Quantity, "capped at stock")

	view, err = svc.AddItem(ctx, created.ID, "p1", 1, true)
	require.NoError(t, err)
	require.True(t, view.Totals.Subtotal.Equal(dec("250")))
	require.True(t, view.Totals.DiscountPercent.Equal(dec("15")))
}

func TestCartMergesAndRemoves(t *testing.T) {
	svc, _ := newCartService(t, discount.DefaultConfig())
	ctx := context.Background()
	created, err := svc.Create(ctx, false)
	require.NoError(t, err)

	_, err = svc.AddItem(ctx, created.ID, "p1", 1, false)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, created.ID, "p1", 2, false)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	require.Equal(t, 3, view.Items[0].Quantity)

	view, err = svc.UpdateQuantity(ctx, created.ID, "p1", 0, false)
	require.NoError(t, err)
	require.Empty(t, view.Items)
	require.True(t, view.Totals.FinalTotal.IsZero())

	_, err = svc.UpdateQuantity(ctx, created.ID, "p2", 2, false)
	require.ErrorIs(t, err, cart.ErrNotFound)

	_, err = svc.AddItem(ctx, created.ID, "p3", 1, false)
	require.ErrorIs(t, err, cart.ErrOutOfStock)

	_, err = svc.AddItem(ctx, created.ID, "p1", 0, false)
	require.ErrorIs(t, err, cart.ErrInvalidInput)

	require.NoError(t, svc.Clear(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID, false)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestCartRecomputesStaleTotals(t *testing.T) {
	svc, mr := newCartService(t, discount.DefaultConfig())
	ctx := context.Background()

	stale := map[string]any{
		"id":     "c1",
		"items":  []map[string]any{{"productId": "p1", "name": "Ruj", "unitPrice": "100", "quantity": 2}},
		"totals": map[string]any{"subtotal": "999", "finalTotal": "1"},
	}
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, mr.Set("cart:c1", string(raw)))

	view, err := svc.Get(ctx, "c1", true)
	require.NoError(t, err)
	require.True(t, view.Totals.Subtotal.Equal(dec("200")))
	require.True(t, view.Totals.FinalTotal.Equal(dec("204")))

	require.NoError(t, mr.Set("cart:c2", `{"id":"c2","items":[{"productId":"p1","unitPrice":"100","quantity":1}]}`))
	view, err = svc.Get(ctx, "c2", false)
	require.NoError(t, err)
	require.True(t, view.Totals.FinalTotal.Equal(dec("120")))
}

func TestCartStoreTTL(t *testing.T) {
	svc, mr := newCartService(t, discount.DefaultConfig())
	created, err := svc.Create(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, time.Hour, mr.TTL("cart:"+created.ID))

	mr.FastForward(2 * time.Hour)
	_, err = svc.Get(context.Background(), created.ID, false)
	require.ErrorIs(t, err, cart.ErrNotFound)
}
