package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDecEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "expected %s got %s", want, got.String())
}

func TestComputeTotalsMemberDiscountExample(t *testing.T) {
	items := []pricing.LineItem{{ProductID: "p1", UnitPrice: dec("100"), Quantity: 2}}
	totals := pricing.ComputeTotals(items, dec("15"))

	requireDecEqual(t, "200", totals.Subtotal)
	requireDecEqual(t, "30", totals.MemberDiscountAmount)
	requireDecEqual(t, "170", totals.PostDiscount)
	requireDecEqual(t, "34", totals.VAT)
	requireDecEqual(t, "204", totals.FinalTotal)
	requireDecEqual(t, "240", totals.TotalPrice)
	require.Equal(t, 2, totals.ItemCount)
}

func TestComputeTotalsEmpty(t *testing.T) {
	totals := pricing.ComputeTotals(nil, dec("15"))
	for _, v := range []decimal.Decimal{totals.Subtotal, totals.MemberDiscountAmount, totals.VAT, totals.FinalTotal, totals.TotalPrice} {
		require.True(t, v.IsZero())
	}
}

func TestComputeTotalsSkipsInvalidLines(t *testing.T) {
	items := []pricing.LineItem{
		{ProductID: "a", UnitPrice: dec("10"), Quantity: 0},
		{ProductID: "b", UnitPrice: dec("10"), Quantity: -3},
		{ProductID: "c", UnitPrice: dec("-5"), Quantity: 1},
		{ProductID: "d", UnitPrice: dec("12.50"), Quantity: 1},
	}
	totals := pricing.ComputeTotals(items, decimal.Zero)
	requireDecEqual(t, "12.50", totals.Subtotal)
	require.False(t, totals.FinalTotal.IsNegative())
}

func TestComputeTotalsOrderIndependentAndDeterministic(t *testing.T) {
	items := []pricing.LineItem{
		{ProductID: "a", UnitPrice: dec("19.90"), Quantity: 3},
		{ProductID: "b", UnitPrice: dec("249.99"), Quantity: 1},
		{ProductID: "c", UnitPrice: dec("7.35"), Quantity: 4},
	}
	reversed := []pricing.LineItem{items[2], items[1], items[0]}

	first := pricing.ComputeTotals(items, dec("12.5"))
	second := pricing.ComputeTotals(items, dec("12.5"))
	permuted := pricing.ComputeTotals(reversed, dec("12.5"))

	require.True(t, first.FinalTotal.Equal(second.FinalTotal))
	require.True(t, first.FinalTotal.Equal(permuted.FinalTotal))
	require.True(t, first.VAT.Equal(permuted.VAT))
}

func TestComputeTotalsFinalTotalIdentity(t *testing.T) {
	items := []pricing.LineItem{
		{ProductID: "a", UnitPrice: dec("33.33"), Quantity: 3},
		{ProductID: "b", UnitPrice: dec("0.99"), Quantity: 7},
	}
	for p := 0; p <= 50; p++ {
		totals := pricing.ComputeTotals(items, decimal.NewFromInt(int64(p)))
		post := totals.Subtotal.Sub(totals.MemberDiscountAmount)
		require.True(t, totals.VAT.Equal(post.Mul(dec("0.20"))), "percent %d", p)
		require.True(t, totals.FinalTotal.Equal(post.Add(totals.VAT)), "percent %d", p)
	}
}

func TestRoundedKeepsIdentity(t *testing.T) {
	items := []pricing.LineItem{{ProductID: "a", UnitPrice: dec("99.99"), Quantity: 1}}
	totals := pricing.ComputeTotals(items, dec("15")).Rounded()

	requireDecEqual(t, "15", totals.MemberDiscountAmount)
	requireDecEqual(t, "84.99", totals.PostDiscount)
	requireDecEqual(t, "17", totals.VAT)
	requireDecEqual(t, "101.99", totals.FinalTotal)
	require.Equal(t, "101.99", pricing.FormatAmount(totals.FinalTotal))
}

func TestRoundedDerivesVATFromRoundedPostDiscount(t *testing.T) {
	items := []pricing.LineItem{{ProductID: "a", UnitPrice: dec("0.25"), Quantity: 1}}
	totals := pricing.ComputeTotals(items, dec("10")).Rounded()

	requireDecEqual(t, "0.03", totals.MemberDiscountAmount)
	requireDecEqual(t, "0.22", totals.PostDiscount)
	requireDecEqual(t, "0.04", totals.VAT)
	requireDecEqual(t, "0.26", totals.FinalTotal)
}

func TestRoundedVATMatchesRateOverRange(t *testing.T) {
	engine := pricing.Engine{VATRate: dec("0.20")}
	for cents := 1; cents <= 500; cents += 7 {
		price := decimal.New(int64(cents), -2)
		for _, p := range []string{"0", "7.5", "15", "33"} {
			totals := engine.Compute([]pricing.LineItem{{ProductID: "a", UnitPrice: price, Quantity: 3}}, dec(p)).Rounded()
			require.True(t, totals.VAT.Equal(totals.PostDiscount.Mul(dec("0.20")).Round(2)), "price %s percent %s", price, p)
			require.True(t, totals.FinalTotal.Equal(totals.PostDiscount.Add(totals.VAT)), "price %s percent %s", price, p)
		}
	}
}

func TestEngineCustomRate(t *testing.T) {
	items := []pricing.LineItem{{ProductID: "a", UnitPrice: dec("50"), Quantity: 2}}
	totals := pricing.Engine{VATRate: dec("0.10")}.Compute(items, decimal.Zero)
	requireDecEqual(t, "10", totals.VAT)
	requireDecEqual(t, "110", totals.FinalTotal)
}
