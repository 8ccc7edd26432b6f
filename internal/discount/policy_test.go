package discount_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/discount"
)

func cfg(enabled bool, rate, min int64) discount.Config {
	return discount.Config{
		Enabled:            enabled,
		Rate:               decimal.NewFromInt(rate),
		MinimumOrderAmount: decimal.NewFromInt(min),
	}
}

func TestEligibleRequiresLogin(t *testing.T) {
	got := discount.Eligible(cfg(true, 15, 0), false, decimal.NewFromInt(1000))
	require.True(t, got.IsZero())
}

func TestEligibleMinimumOrderThreshold(t *testing.T) {
	c := cfg(true, 15, 200)
	require.True(t, discount.Eligible(c, true, decimal.NewFromInt(150)).IsZero())
	require.True(t, discount.Eligible(c, true, decimal.NewFromInt(200)).Equal(decimal.NewFromInt(15)))
}

func TestEligibleDisabled(t *testing.T) {
	require.True(t, discount.Eligible(cfg(false, 15, 0), true, decimal.NewFromInt(500)).IsZero())
}

func TestEligibleClampsOutOfRangeStoredRate(t *testing.T) {
	require.True(t, discount.Eligible(cfg(true, 80, 0), true, decimal.NewFromInt(10)).Equal(decimal.NewFromInt(50)))
	require.True(t, discount.Eligible(cfg(true, -5, 0), true, decimal.NewFromInt(10)).IsZero())
}

func TestDefaultConfig(t *testing.T) {
	d := discount.DefaultConfig()
	require.True(t, d.Enabled)
	require.True(t, d.Rate.Equal(decimal.NewFromInt(15)))
	require.True(t, d.MinimumOrderAmount.IsZero())
	require.Equal(t, discount.DefaultDescription, d.Description)
}
