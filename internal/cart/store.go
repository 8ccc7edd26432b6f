package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rawises/storefront-api/internal/pricing"
)

// ErrNotFound indicates the requested cart could not be located.
var ErrNotFound = errors.New("cart not found")

// Item is one product line held in a cart.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"imageUrl,omitempty"`
	SKU       string          `json:"sku,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// Cart is the persisted cart document. Totals are derived and recomputed on
// every load; stored values are informational only.
type Cart struct {
	ID        string         `json:"id"`
	Items     []Item         `json:"items"`
	Totals    pricing.Totals `json:"totals"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (c *Cart) find(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// Store keeps carts as JSON documents under cart:<id>.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

const maxUpdateRetries = 5

func key(id string) string { return "cart:" + id }

func (s *Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

// Load reads a cart.
func (s *Store) Load(ctx context.Context, id string) (Cart, error) {
	return s.load(ctx, s.R, id)
}

func (s *Store) load(ctx context.Context, c redis.Cmdable, id string) (Cart, error) {
	raw, err := c.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("cart: load: %w", err)
	}
	var cart Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return Cart{}, fmt.Errorf("cart: decode: %w", err)
	}
	cart.ID = id
	return cart, nil
}

// Save writes the cart and refreshes its TTL.
func (s *Store) Save(ctx context.Context, cart Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}
	return s.R.Set(ctx, key(cart.ID), raw, s.ttl()).Err()
}

// Update applies fn to the stored cart under an optimistic WATCH transaction.
func (s *Store) Update(ctx context.Context, id string, fn func(*Cart) error) (Cart, error) {
	var out Cart
	txf := func(tx *redis.Tx) error {
		cart, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&cart); err != nil {
			return err
		}
		raw, err := json.Marshal(cart)
		if err != nil {
			return fmt.Errorf("cart: encode: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(id), raw, s.ttl())
			return nil
		})
		if err == nil {
			out = cart
		}
		return err
	}
	for i := 0; i < maxUpdateRetries; i++ {
		err := s.R.Watch(ctx, txf, key(id))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return Cart{}, fmt.Errorf("cart: update %s: too much contention", id)
}

// Delete removes the cart.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.R.Del(ctx, key(id)).Err()
}
