package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOriginalPriceMarkup is the factor used to derive the display-only
// "before discount" price.
var DefaultOriginalPriceMarkup = decimal.RequireFromString("1.25")

// Product is a sellable catalog entry as stored.
type Product struct {
	ID            string          `json:"id"`
	VariantID     string          `json:"variantId,omitempty"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Brand         string          `json:"brand"`
	Categories    []string        `json:"categories"`
	Tags          []string        `json:"tags"`
	ImageURL      string          `json:"imageUrl"`
	Slug          string          `json:"slug"`
	SKU           string          `json:"sku"`
	Barcode       string          `json:"barcode,omitempty"`
	SalePrice     decimal.Decimal `json:"salePrice"`
	DiscountPrice decimal.Decimal `json:"discountPrice"`
	Stock         int             `json:"stock"`
	IsActive      bool            `json:"isActive"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Price is the effective unit price: the discount price when set and positive,
// otherwise the sale price.
func (p Product) Price() decimal.Decimal {
	if p.DiscountPrice.IsPositive() {
		return p.DiscountPrice
	}
	return p.SalePrice
}

// ProductView is the storefront representation of a product.
type ProductView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Brand         string          `json:"brand"`
	Categories    []string        `json:"categories"`
	Tags          []string        `json:"tags"`
	ImageURL      string          `json:"imageUrl"`
	Slug          string          `json:"slug"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	Stock         int             `json:"stock"`
	InStock       bool            `json:"inStock"`
}

// View renders p for the storefront. OriginalPrice is price × markup and is
// never used for pricing.
func View(p Product, markup decimal.Decimal) ProductView {
	if !markup.IsPositive() {
		markup = DefaultOriginalPriceMarkup
	}
	price := p.Price()
	categories := p.Categories
	if categories == nil {
		categories = []string{}
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return ProductView{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Brand:         p.Brand,
		Categories:    categories,
		Tags:          tags,
		ImageURL:      p.ImageURL,
		Slug:          p.Slug,
		SKU:           p.SKU,
		Price:         price,
		OriginalPrice: price.Mul(markup).Round(2),
		Stock:         p.Stock,
		InStock:       p.Stock > 0,
	}
}

// Category is a category name with the number of active products in it.
type Category struct {
	Name     string `json:"name"`
	Products int64  `json:"products"`
}

// Filter narrows a product listing.
type Filter struct {
	Query    string
	Category string
	Brand    string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	InStock  *bool
	Sort     string
	Page     int
	Limit    int
}

// Offset returns the row offset for the filter page.
func (f Filter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}
