package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rawises/storefront-api/internal/common"
	"github.com/rawises/storefront-api/internal/events"
)

// Queries is the read side of the product store. Implementations only return
// active products.
type Queries interface {
	CountProducts(ctx context.Context, f Filter) (int64, error)
	ListProducts(ctx context.Context, f Filter) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	ListBrands(ctx context.Context) ([]string, error)
}

// Service orchestrates catalog queries, view assembly, and caching.
type Service struct {
	queries      Queries
	cache        *Cache
	markup       decimal.Decimal
	defaultPage  int
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries      Queries
	Cache        *Cache
	Markup       decimal.Decimal
	DefaultPage  int
	DefaultLimit int
	MaxLimit     int
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []ProductView
	Total int64
	Page  int
	Limit int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	defaultPage := cfg.DefaultPage
	if defaultPage < 1 {
		defaultPage = 1
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	markup := cfg.Markup
	if !markup.IsPositive() {
		markup = DefaultOriginalPriceMarkup
	}
	return &Service{
		queries:      cfg.Queries,
		cache:        cfg.Cache,
		markup:       markup,
		defaultPage:  defaultPage,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}, nil
}

// ParseListParams normalises raw query values into a Filter.
func (s *Service) ParseListParams(values url.Values) (Filter, error) {
	f := Filter{
		Page:  s.defaultPage,
		Limit: s.defaultLimit,
	}
	f.Query = strings.TrimSpace(values.Get("q"))
	f.Category = strings.TrimSpace(values.Get("category"))
	f.Brand = strings.TrimSpace(values.Get("brand"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return f, badRequest("page", "page must be a positive integer", err)
		}
		f.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return f, badRequest("limit", "limit must be a positive integer", err)
		}
		f.Limit = l
	}
	if f.Limit > s.maxLimit {
		f.Limit = s.maxLimit
	}

	var err error
	if f.MinPrice, err = parseAmount(values.Get("minPrice")); err != nil {
		return f, badRequest("minPrice", "minPrice must be a valid amount", err)
	}
	if f.MaxPrice, err = parseAmount(values.Get("maxPrice")); err != nil {
		return f, badRequest("maxPrice", "maxPrice must be a valid amount", err)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return f, badRequest("price", "minPrice cannot be greater than maxPrice", fmt.Errorf("invalid price range"))
	}
	if v := strings.TrimSpace(values.Get("inStock")); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return f, badRequest("inStock", "inStock must be true or false", err)
		}
		f.InStock = &b
	}
	f.Sort = normalizeSort(values.Get("sort"))
	return f, nil
}

// ListCategories returns categories with active product counts.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var cached []Category
	if ok, err := s.cache.GetJSON(ctx, categoriesCacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if rows == nil {
		rows = []Category{}
	}
	_ = s.cache.SetJSON(ctx, categoriesCacheKey, rows)
	return rows, nil
}

// ListBrands returns the distinct brand names.
func (s *Service) ListBrands(ctx context.Context) ([]string, error) {
	rows, err := s.queries.ListBrands(ctx)
	if err != nil {
		return nil, fmt.Errorf("list brands: %w", err)
	}
	if rows == nil {
		rows = []string{}
	}
	return rows, nil
}

// ListProducts returns a filtered product page. The unfiltered first page is cached.
func (s *Service) ListProducts(ctx context.Context, f Filter) (ProductListResult, error) {
	key, shouldUseCache := s.listCacheKey(f)
	if shouldUseCache {
		var cached cachedList
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return ProductListResult{Items: cached.Items, Total: cached.Total, Page: f.Page, Limit: f.Limit}, nil
		}
	}
	total, err := s.queries.CountProducts(ctx, f)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("count products: %w", err)
	}
	rows, err := s.queries.ListProducts(ctx, f)
	if err != nil {
		return ProductListResult{}, fmt.Errorf("list products: %w", err)
	}
	items := make([]ProductView, 0, len(rows))
	for _, p := range rows {
		items = append(items, View(p, s.markup))
	}
	if shouldUseCache {
		_ = s.cache.SetJSON(ctx, key, cachedList{Items: items, Total: total})
	}
	return ProductListResult{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// GetProduct returns the storefront view of an active product.
func (s *Service) GetProduct(ctx context.Context, id string) (ProductView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ProductView{}, badRequest("id", "id is required", nil)
	}
	var cached ProductView
	if ok, err := s.cache.GetJSON(ctx, detailCacheKey(id), &cached); err == nil && ok {
		return cached, nil
	}
	p, err := s.Lookup(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	view := View(p, s.markup)
	_ = s.cache.SetJSON(ctx, detailCacheKey(id), view)
	return view, nil
}

// Lookup loads an active product bypassing the cache, for stock and price checks.
func (s *Service) Lookup(ctx context.Context, id string) (Product, error) {
	p, err := s.queries.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, notFound(err)
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	if !p.IsActive {
		return Product{}, notFound(pgx.ErrNoRows)
	}
	return p, nil
}

// Invalidate drops cached views for the given products and the cached listing.
func (s *Service) Invalidate(ctx context.Context, ids ...string) error {
	keys := []string{popularListCacheKey, categoriesCacheKey}
	for _, id := range ids {
		keys = append(keys, detailCacheKey(id))
	}
	return s.cache.Delete(ctx, keys...)
}

// Notify implements events.Notifier: paid orders change stock, so their
// products are evicted from the cache.
func (s *Service) Notify(ctx context.Context, ev events.Event) error {
	if ev.Topic != events.TopicOrderPaid {
		return nil
	}
	var payload struct {
		ProductIDs []string `json:"productIds"`
	}
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("catalog: decode event: %w", err)
	}
	return s.Invalidate(ctx, payload.ProductIDs...)
}

const (
	popularListCacheKey = "catalog:products:list:popular"
	categoriesCacheKey  = "catalog:categories"
)

type cachedList struct {
	Items []ProductView `json:"items"`
	Total int64         `json:"total"`
}

func (s *Service) listCacheKey(f Filter) (string, bool) {
	if f.Page != s.defaultPage || f.Limit != s.defaultLimit {
		return "", false
	}
	if f.Query != "" || f.Category != "" || f.Brand != "" || f.MinPrice != nil || f.MaxPrice != nil || f.InStock != nil || f.Sort != "" {
		return "", false
	}
	return popularListCacheKey, true
}

func detailCacheKey(id string) string {
	return "catalog:products:detail:" + id
}

func parseAmount(v string) (*decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount")
	}
	return &d, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean: %s", value)
	}
}

func normalizeSort(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "price:asc", "price:desc", "name:asc", "name:desc", "newest":
		return s
	default:
		return ""
	}
}

func notFound(err error) *common.AppError {
	return &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: http.StatusNotFound, Err: err}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
