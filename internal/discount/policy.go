package discount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxRate is the highest member discount percentage that can be configured.
var MaxRate = decimal.NewFromInt(50)

// DefaultDescription is shown to customers when no description is configured.
const DefaultDescription = "Üye müşterilere özel indirim"

// Config is the admin-managed member discount setting.
type Config struct {
	Enabled            bool            `json:"memberDiscountEnabled"`
	Rate               decimal.Decimal `json:"memberDiscountRate"`
	MinimumOrderAmount decimal.Decimal `json:"minimumOrderAmount"`
	Description        string          `json:"description"`
}

// DefaultConfig returns the setting used until an admin saves one.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Rate:               decimal.NewFromInt(15),
		MinimumOrderAmount: decimal.Zero,
		Description:        DefaultDescription,
	}
}

// Normalize clamps the rate to [0, MaxRate] and the minimum order amount to >= 0.
func (c Config) Normalize() Config {
	out := c
	switch {
	case out.Rate.IsNegative():
		out.Rate = decimal.Zero
	case out.Rate.GreaterThan(MaxRate):
		out.Rate = MaxRate
	}
	if out.MinimumOrderAmount.IsNegative() {
		out.MinimumOrderAmount = decimal.Zero
	}
	out.Description = strings.TrimSpace(out.Description)
	return out
}

// Eligible returns the discount percent that applies to a cart, or zero.
// The config is normalised again here because storage may have been edited
// outside the admin API.
func Eligible(cfg Config, loggedIn bool, subtotal decimal.Decimal) decimal.Decimal {
	cfg = cfg.Normalize()
	if !cfg.Enabled || !loggedIn {
		return decimal.Zero
	}
	if subtotal.LessThan(cfg.MinimumOrderAmount) {
		return decimal.Zero
	}
	return cfg.Rate
}
