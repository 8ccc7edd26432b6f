package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawises/storefront-api/internal/order"
	"github.com/rawises/storefront-api/internal/payment"
)

const attemptColumns = `id::text, order_id::text, invoice_id, amount, currency, state, failure_code,
	failure_message, payment_type, test_mode, expires_at, created_at, updated_at, provider_payload`

// Payments implements payment.Store. Inside InTx the same type runs over the
// transaction, so Tx methods share one implementation.
type Payments struct {
	db   dbtx
	pool *pgxpool.Pool
}

var _ payment.Store = (*Payments)(nil)

func scanAttempt(row pgx.Row) (payment.Attempt, error) {
	var a payment.Attempt
	err := row.Scan(&a.ID, &a.OrderID, &a.InvoiceID, &a.Amount, &a.Currency, &a.State, &a.FailureCode,
		&a.FailureMessage, &a.PaymentType, &a.TestMode, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt, &a.ProviderPayload)
	return a, err
}

func (r *Payments) CreateAttempt(ctx context.Context, a payment.Attempt) (payment.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx, `INSERT INTO payment_attempts
			(order_id, invoice_id, amount, currency, state, expires_at, provider_payload)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
		RETURNING `+attemptColumns,
		a.OrderID, a.InvoiceID, a.Amount, a.Currency, string(a.State), a.ExpiresAt, a.ProviderPayload))
}

func (r *Payments) GetAttemptByInvoice(ctx context.Context, invoiceID string) (payment.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE invoice_id = $1`, invoiceID))
}

func (r *Payments) LockAttemptByInvoice(ctx context.Context, invoiceID string) (payment.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts
		WHERE invoice_id = $1 FOR UPDATE`, invoiceID))
}

func (r *Payments) LatestAttemptForOrder(ctx context.Context, orderID string) (payment.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts
		WHERE order_id::text = $1 ORDER BY created_at DESC LIMIT 1`, orderID))
}

// ListExpiredAttempts returns attempts still waiting on the gateway past their deadline.
func (r *Payments) ListExpiredAttempts(ctx context.Context, now time.Time, limit int) ([]payment.Attempt, error) {
	rows, err := r.db.Query(ctx, `SELECT `+attemptColumns+` FROM payment_attempts
		WHERE state IN ('created', 'redirected') AND expires_at <= $1
		ORDER BY expires_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []payment.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// transitionAttemptSQL moves an attempt from $2 to $3. Empty update fields
// keep the stored values, so a reconciliation step never erases the failure
// details recorded by the confirmation before it.
const transitionAttemptSQL = `UPDATE payment_attempts SET state = $3,
		failure_code = CASE WHEN $4 = '' THEN failure_code ELSE $4 END,
		failure_message = CASE WHEN $5 = '' THEN failure_message ELSE $5 END,
		payment_type = CASE WHEN $6 = '' THEN payment_type ELSE $6 END,
		test_mode = test_mode OR $7,
		provider_payload = coalesce($8, provider_payload),
		updated_at = now()
	WHERE id::text = $1 AND state = $2`

// TransitionAttempt applies a legal state change as a conditional update.
func (r *Payments) TransitionAttempt(ctx context.Context, id string, from, to payment.State, upd payment.AttemptUpdate) (bool, error) {
	if !payment.CanTransition(from, to) {
		return false, fmt.Errorf("payment attempt %s: illegal transition %s -> %s", id, from, to)
	}
	tag, err := r.db.Exec(ctx, transitionAttemptSQL,
		id, string(from), string(to), upd.FailureCode, upd.FailureMessage, upd.PaymentType, upd.TestMode, upd.ProviderPayload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Payments) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	return getOrder(ctx, r.db, orderID)
}

func (r *Payments) SetOrderPayment(ctx context.Context, orderID string, status order.Status, ps order.PaymentStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE orders SET status = $2, payment_status = $3, updated_at = now()
		WHERE id::text = $1`, orderID, string(status), string(ps))
	return err
}

// DecrementStockForOrder takes the ordered quantities out of stock, never below zero.
func (r *Payments) DecrementStockForOrder(ctx context.Context, orderID string) error {
	_, err := r.db.Exec(ctx, `UPDATE products p SET stock = greatest(p.stock - i.quantity, 0), updated_at = now()
		FROM order_items i WHERE i.order_id::text = $1 AND p.id = i.product_id`, orderID)
	return err
}

// InTx runs fn in a transaction over a Payments bound to it.
func (r *Payments) InTx(ctx context.Context, fn func(payment.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Payments{db: tx, pool: r.pool})
	})
}
