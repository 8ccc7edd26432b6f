package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawises/storefront-api/internal/order"
)

const orderSelect = `SELECT o.id::text, o.order_number, coalesce(o.user_id::text, ''), o.status, o.payment_status,
	o.customer, o.shipping_address, o.subtotal, o.discount_percent, o.discount_amount, o.tax_amount,
	o.shipping_cost, o.total_amount, o.currency, o.notes, o.created_at, o.updated_at,
	coalesce((SELECT json_agg(json_build_object(
		'productId', i.product_id, 'name', i.name, 'sku', i.sku, 'unitPrice', i.unit_price,
		'quantity', i.quantity, 'lineTotal', i.line_total) ORDER BY i.position)
		FROM order_items i WHERE i.order_id = o.id), '[]'::json)
	FROM orders o`

// Orders implements order.Repo.
type Orders struct {
	db   dbtx
	pool *pgxpool.Pool
}

var _ order.Repo = (*Orders)(nil)

func scanOrder(row pgx.Row) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentStatus,
		&o.Customer, &o.ShippingAddress, &o.Subtotal, &o.DiscountPercent, &o.DiscountAmount, &o.TaxAmount,
		&o.ShippingCost, &o.TotalAmount, &o.Currency, &o.Notes, &o.CreatedAt, &o.UpdatedAt, &o.Items)
	return o, err
}

func getOrder(ctx context.Context, db dbtx, id string) (order.Order, error) {
	return scanOrder(db.QueryRow(ctx, orderSelect+" WHERE o.id::text = $1", id))
}

// CreateOrder stores the order and its item snapshot in one transaction.
func (r *Orders) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO orders (id, order_number, user_id, status, payment_status, customer,
				shipping_address, subtotal, discount_percent, discount_amount, tax_amount, shipping_cost,
				total_amount, currency, notes)
			VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING created_at, updated_at`,
			o.ID, o.OrderNumber, o.UserID, o.Status, o.PaymentStatus, o.Customer, o.ShippingAddress,
			o.Subtotal, o.DiscountPercent, o.DiscountAmount, o.TaxAmount, o.ShippingCost, o.TotalAmount,
			o.Currency, o.Notes).Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		batch := &pgx.Batch{}
		for i, it := range o.Items {
			batch.Queue(`INSERT INTO order_items (order_id, position, product_id, name, sku, unit_price, quantity, line_total)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				o.ID, i, it.ProductID, it.Name, it.SKU, it.UnitPrice, it.Quantity, it.LineTotal)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return nil
	})
	return o, err
}

func (r *Orders) GetOrder(ctx context.Context, id string) (order.Order, error) {
	return getOrder(ctx, r.db, id)
}

func (r *Orders) ListOrders(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, orderSelect+` WHERE ($1 = '' OR o.status = $1)
		ORDER BY o.created_at DESC, o.id LIMIT $2 OFFSET $3`, string(f.Status), f.Limit, f.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// UpdateStatus moves the order only while it is still in from. A refund also
// marks the payment refunded.
func (r *Orders) UpdateStatus(ctx context.Context, id string, from, to order.Status) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $3,
			payment_status = CASE WHEN $3 = 'refunded' THEN 'refunded' ELSE payment_status END,
			updated_at = now()
		WHERE id::text = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
