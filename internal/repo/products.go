package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rawises/storefront-api/internal/catalog"
)

const productColumns = `id, variant_id, name, description, brand, categories, tags, image_url, slug, sku,
	barcode, sale_price, discount_price, stock, is_active, created_at, updated_at`

const effectivePrice = `(CASE WHEN discount_price > 0 THEN discount_price ELSE sale_price END)`

// Products implements catalog.Queries.
type Products struct {
	db dbtx
}

var _ catalog.Queries = (*Products)(nil)

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.VariantID, &p.Name, &p.Description, &p.Brand, &p.Categories, &p.Tags,
		&p.ImageURL, &p.Slug, &p.SKU, &p.Barcode, &p.SalePrice, &p.DiscountPrice, &p.Stock, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// productWhere renders the WHERE clause for an active product listing.
func productWhere(f catalog.Filter) (string, []any) {
	clauses := []string{"is_active"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + q + "%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE %s OR brand ILIKE %s OR sku ILIKE %s)", p, p, p))
	}
	if f.Category != "" {
		clauses = append(clauses, arg(f.Category)+" = ANY(categories)")
	}
	if f.Brand != "" {
		clauses = append(clauses, "lower(brand) = lower("+arg(f.Brand)+")")
	}
	if f.MinPrice != nil {
		clauses = append(clauses, effectivePrice+" >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		clauses = append(clauses, effectivePrice+" <= "+arg(*f.MaxPrice))
	}
	if f.InStock != nil {
		if *f.InStock {
			clauses = append(clauses, "stock > 0")
		} else {
			clauses = append(clauses, "stock = 0")
		}
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func productOrder(sort string) string {
	switch sort {
	case "price:asc":
		return "ORDER BY " + effectivePrice + " ASC, id"
	case "price:desc":
		return "ORDER BY " + effectivePrice + " DESC, id"
	case "name:asc":
		return "ORDER BY name ASC, id"
	case "name:desc":
		return "ORDER BY name DESC, id"
	default:
		return "ORDER BY created_at DESC, id"
	}
}

func (r *Products) CountProducts(ctx context.Context, f catalog.Filter) (int64, error) {
	where, args := productWhere(f)
	var n int64
	err := r.db.QueryRow(ctx, "SELECT count(*) FROM products "+where, args...).Scan(&n)
	return n, err
}

func (r *Products) ListProducts(ctx context.Context, f catalog.Filter) ([]catalog.Product, error) {
	where, args := productWhere(f)
	args = append(args, f.Limit, f.Offset())
	sql := fmt.Sprintf("SELECT %s FROM products %s %s LIMIT $%d OFFSET $%d",
		productColumns, where, productOrder(f.Sort), len(args)-1, len(args))
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProduct returns the product regardless of its active flag.
func (r *Products) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	return scanProduct(r.db.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1 OR slug = $1", id))
}

func (r *Products) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT c, count(*) FROM products, unnest(categories) AS c
		WHERE is_active GROUP BY c ORDER BY c`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Category, error) {
		var c catalog.Category
		err := row.Scan(&c.Name, &c.Products)
		return c, err
	})
}

func (r *Products) ListBrands(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT brand FROM products WHERE is_active AND brand <> '' ORDER BY brand`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// UpsertProduct inserts or replaces a product keyed by id.
func (r *Products) UpsertProduct(ctx context.Context, p catalog.Product) error {
	if p.Categories == nil {
		p.Categories = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	_, err := r.db.Exec(ctx, `INSERT INTO products (id, variant_id, name, description, brand, categories, tags,
			image_url, slug, sku, barcode, sale_price, discount_price, stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			variant_id = EXCLUDED.variant_id, name = EXCLUDED.name, description = EXCLUDED.description,
			brand = EXCLUDED.brand, categories = EXCLUDED.categories, tags = EXCLUDED.tags,
			image_url = EXCLUDED.image_url, slug = EXCLUDED.slug, sku = EXCLUDED.sku, barcode = EXCLUDED.barcode,
			sale_price = EXCLUDED.sale_price, discount_price = EXCLUDED.discount_price,
			stock = EXCLUDED.stock, is_active = EXCLUDED.is_active, updated_at = now()`,
		p.ID, p.VariantID, p.Name, p.Description, p.Brand, p.Categories, p.Tags, p.ImageURL, p.Slug,
		p.SKU, p.Barcode, p.SalePrice, p.DiscountPrice, p.Stock, p.IsActive)
	return err
}
