package pricing

import (
	"github.com/shopspring/decimal"
)

// DefaultVATRate is the VAT applied to the post-discount subtotal.
var DefaultVATRate = decimal.RequireFromString("0.20")

// MoneyPlaces is the number of decimal places used for payable amounts (kuruş).
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// LineItem describes one cart entry. UnitPrice is the discounted per-unit price.
type LineItem struct {
	ProductID string          `json:"productId"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// Totals aggregates computed cart amounts.
//
// TotalPrice is a display figure (VAT on the pre-discount subtotal) and is
// intentionally different from FinalTotal, which is the payable amount.
type Totals struct {
	Subtotal             decimal.Decimal `json:"subtotal"`
	MemberDiscountAmount decimal.Decimal `json:"memberDiscountAmount"`
	PostDiscount         decimal.Decimal `json:"postDiscount"`
	VAT                  decimal.Decimal `json:"vat"`
	FinalTotal           decimal.Decimal `json:"finalTotal"`
	TotalPrice           decimal.Decimal `json:"totalPrice"`
	DiscountPercent      decimal.Decimal `json:"discountPercent"`
	VATRate              decimal.Decimal `json:"vatRate"`
	ItemCount            int             `json:"itemCount"`
}

// Engine computes cart totals for a fixed VAT rate.
type Engine struct {
	VATRate decimal.Decimal
}

// ComputeTotals computes totals with the default VAT rate.
func ComputeTotals(items []LineItem, discountPercent decimal.Decimal) Totals {
	return Engine{VATRate: DefaultVATRate}.Compute(items, discountPercent)
}

// Compute derives totals from the items and the member discount percent.
// Lines with a non-positive quantity or a negative price are skipped.
func (e Engine) Compute(items []LineItem, discountPercent decimal.Decimal) Totals {
	rate := e.VATRate
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	subtotal := decimal.Zero
	count := 0
	for _, it := range items {
		if it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			continue
		}
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		count += it.Quantity
	}
	percent := ClampPercent(discountPercent, decimal.NewFromInt(100))
	discount := subtotal.Mul(percent).Div(hundred)
	post := subtotal.Sub(discount)
	vat := post.Mul(rate)
	return Totals{
		Subtotal:             subtotal,
		MemberDiscountAmount: discount,
		PostDiscount:         post,
		VAT:                  vat,
		FinalTotal:           post.Add(vat),
		TotalPrice:           subtotal.Mul(decimal.NewFromInt(1).Add(rate)),
		DiscountPercent:      percent,
		VATRate:              rate,
		ItemCount:            count,
	}
}

// Rounded returns the totals rounded half-up to kuruş. The discount is
// rounded first, VAT is taken on the rounded post-discount amount and the
// final total is their sum, so FinalTotal = Subtotal - MemberDiscountAmount + VAT
// and VAT = round(PostDiscount x VATRate) both hold on the rounded figures.
func (t Totals) Rounded() Totals {
	out := t
	out.Subtotal = t.Subtotal.Round(MoneyPlaces)
	out.MemberDiscountAmount = t.MemberDiscountAmount.Round(MoneyPlaces)
	out.PostDiscount = out.Subtotal.Sub(out.MemberDiscountAmount)
	out.VAT = out.PostDiscount.Mul(t.VATRate).Round(MoneyPlaces)
	out.FinalTotal = out.PostDiscount.Add(out.VAT)
	out.TotalPrice = t.TotalPrice.Round(MoneyPlaces)
	return out
}

// ClampPercent bounds p to [0, max].
func ClampPercent(p, max decimal.Decimal) decimal.Decimal {
	if p.IsNegative() {
		return decimal.Zero
	}
	if p.GreaterThan(max) {
		return max
	}
	return p
}

// FormatAmount renders an amount with two decimals, the format used on the gateway wire.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}
