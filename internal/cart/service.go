package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rawises/storefront-api/internal/catalog"
	"github.com/rawises/storefront-api/internal/discount"
	"github.com/rawises/storefront-api/internal/obs"
	"github.com/rawises/storefront-api/internal/pricing"
)

var (
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrOutOfStock is returned when a product has no stock left.
	ErrOutOfStock = errors.New("product out of stock")
)

// ProductLookup resolves active products with current price and stock.
type ProductLookup interface {
	Lookup(ctx context.Context, id string) (catalog.Product, error)
}

// DiscountSource provides the member discount config.
type DiscountSource interface {
	Get(ctx context.Context) (discount.Config, error)
}

// Service encapsulates cart operations. Totals are always recomputed from
// the items and the current discount config.
type Service struct {
	Store     *Store
	Products  ProductLookup
	Discounts DiscountSource
	Engine    pricing.Engine
	Now       func() time.Time
}

// DiscountInfo describes the member discount applied to a cart.
type DiscountInfo struct {
	Applied            bool            `json:"applied"`
	Percent            decimal.Decimal `json:"percent"`
	Description        string          `json:"description"`
	MinimumOrderAmount decimal.Decimal `json:"minimumOrderAmount"`
}

// View is a cart with freshly computed totals.
type View struct {
	ID       string         `json:"id"`
	Items    []Item         `json:"items"`
	Totals   pricing.Totals `json:"totals"`
	Discount DiscountInfo   `json:"discount"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Store.R == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Create starts an empty cart.
func (s *Service) Create(ctx context.Context, loggedIn bool) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	cart := Cart{ID: uuid.NewString(), Items: []Item{}, UpdatedAt: s.now()}
	view, err := s.price(ctx, cart, loggedIn)
	if err != nil {
		return View{}, err
	}
	cart.Totals = view.Totals
	if err := s.Store.Save(ctx, cart); err != nil {
		return View{}, err
	}
	obs.ObserveCartMutation("create")
	return view, nil
}

// Get loads a cart and recomputes its totals.
func (s *Service) Get(ctx context.Context, id string, loggedIn bool) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	cart, err := s.Store.Load(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.price(ctx, cart, loggedIn)
}

// AddItem adds qty units of a product, merging with an existing line. The
// resulting quantity is capped at available stock.
func (s *Service) AddItem(ctx context.Context, id, productID string, qty int, loggedIn bool) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" || qty <= 0 {
		return View{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	product, err := s.lookup(ctx, productID)
	if err != nil {
		return View{}, err
	}
	if product.Stock <= 0 {
		return View{}, ErrOutOfStock
	}
	return s.mutate(ctx, "add", id, loggedIn, func(c *Cart) error {
		idx := c.find(productID)
		if idx < 0 {
			c.Items = append(c.Items, Item{
				ProductID: product.ID,
				Name:      product.Name,
				ImageURL:  product.ImageURL,
				SKU:       product.SKU,
				UnitPrice: product.Price(),
			})
			idx = len(c.Items) - 1
		}
		c.Items[idx].Quantity = capQty(c.Items[idx].Quantity+qty, product.Stock)
		return nil
	})
}

// UpdateQuantity sets a line quantity. A quantity of zero or less removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, id, productID string, qty int, loggedIn bool) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	if qty <= 0 {
		return s.RemoveItem(ctx, id, productID, loggedIn)
	}
	product, err := s.lookup(ctx, productID)
	if err != nil {
		return View{}, err
	}
	if product.Stock <= 0 {
		return View{}, ErrOutOfStock
	}
	return s.mutate(ctx, "update", id, loggedIn, func(c *Cart) error {
		idx := c.find(productID)
		if idx < 0 {
			return ErrNotFound
		}
		c.Items[idx].Quantity = capQty(qty, product.Stock)
		return nil
	})
}

// RemoveItem drops a line from the cart. Removing a missing line is a no-op.
func (s *Service) RemoveItem(ctx context.Context, id, productID string, loggedIn bool) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	return s.mutate(ctx, "remove", id, loggedIn, func(c *Cart) error {
		if idx := c.find(productID); idx >= 0 {
			c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		}
		return nil
	})
}

// Clear deletes the cart.
func (s *Service) Clear(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	obs.ObserveCartMutation("clear")
	return nil
}

func (s *Service) mutate(ctx context.Context, op, id string, loggedIn bool, fn func(*Cart) error) (View, error) {
	var view View
	_, err := s.Store.Update(ctx, id, func(c *Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		v, err := s.price(ctx, *c, loggedIn)
		if err != nil {
			return err
		}
		c.Totals = v.Totals
		view = v
		return nil
	})
	if err != nil {
		return View{}, err
	}
	obs.ObserveCartMutation(op)
	return view, nil
}

func (s *Service) lookup(ctx context.Context, productID string) (catalog.Product, error) {
	if s.Products == nil {
		return catalog.Product{}, errors.New("cart: product lookup not configured")
	}
	return s.Products.Lookup(ctx, productID)
}

func (s *Service) price(ctx context.Context, c Cart, loggedIn bool) (View, error) {
	cfg := discount.DefaultConfig()
	if s.Discounts != nil {
		loaded, err := s.Discounts.Get(ctx)
		if err != nil {
			return View{}, fmt.Errorf("cart: load discount: %w", err)
		}
		cfg = loaded
	}
	cfg = cfg.Normalize()
	engine := s.Engine
	if engine.VATRate.IsZero() {
		engine.VATRate = pricing.DefaultVATRate
	}
	lines := make([]pricing.LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		lines = append(lines, pricing.LineItem{ProductID: it.ProductID, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}
	subtotal := engine.Compute(lines, decimal.Zero).Subtotal
	percent := discount.Eligible(cfg, loggedIn, subtotal)
	totals := engine.Compute(lines, percent).Rounded()

	items := c.Items
	if items == nil {
		items = []Item{}
	}
	return View{
		ID:     c.ID,
		Items:  items,
		Totals: totals,
		Discount: DiscountInfo{
			Applied:            percent.IsPositive(),
			Percent:            percent,
			Description:        cfg.Description,
			MinimumOrderAmount: cfg.MinimumOrderAmount,
		},
	}, nil
}

func capQty(qty, stock int) int {
	if stock > 0 && qty > stock {
		return stock
	}
	return qty
}
