package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/events"
	"github.com/rawises/storefront-api/internal/lock"
	"github.com/rawises/storefront-api/internal/obs"
)

const sweepLockKey = "lock:payment:sweep"

// Payments is the payment service surface used by the worker.
type Payments interface {
	Expire(ctx context.Context, invoiceID string) (bool, error)
	Sweep(ctx context.Context, limit int) (int, error)
}

// Deliverer sends the customer e-mail for an event.
type Deliverer interface {
	Deliver(ctx context.Context, ev events.Event) error
}

// Handlers processes worker tasks.
type Handlers struct {
	Payments   Payments
	Mail       Deliverer
	Locker     lock.Locker
	SweepBatch int
	SweepTTL   time.Duration
	Logger     zerolog.Logger
}

// Register installs the task handlers on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.Use(h.observe)
	mux.HandleFunc(TypePaymentExpire, h.HandleExpire)
	mux.HandleFunc(TypePaymentSweep, h.HandleSweep)
	mux.HandleFunc(TypeOrderNotify, h.HandleNotify)
}

func (h *Handlers) observe(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		obs.ObserveTask(t.Type(), err)
		evt := h.Logger.Debug()
		if err != nil {
			evt = h.Logger.Warn().Err(err)
		}
		evt.Str("task", t.Type()).Dur("took", time.Since(start)).Msg("task processed")
		return err
	})
}

// HandleExpire times out a single attempt if it is still waiting.
func (h *Handlers) HandleExpire(ctx context.Context, t *asynq.Task) error {
	p, err := decode[ExpirePayload](t)
	if err != nil {
		return err
	}
	if strings.TrimSpace(p.InvoiceID) == "" {
		return fmt.Errorf("%s: missing invoice id: %w", t.Type(), asynq.SkipRetry)
	}
	expired, err := h.Payments.Expire(ctx, p.InvoiceID)
	if err != nil {
		return err
	}
	h.Logger.Info().Str("invoice_id", p.InvoiceID).Bool("expired", expired).Msg("payment_expire_checked")
	return nil
}

// HandleSweep times out stragglers. Only one worker sweeps at a time.
func (h *Handlers) HandleSweep(ctx context.Context, _ *asynq.Task) error {
	ttl := h.SweepTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	err := h.Locker.TryWithLock(ctx, sweepLockKey, ttl, func(ctx context.Context) error {
		n, err := h.Payments.Sweep(ctx, h.SweepBatch)
		if n > 0 {
			h.Logger.Info().Int("expired", n).Msg("payment_sweep_done")
		}
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		h.Logger.Debug().Msg("payment_sweep_skipped")
		return nil
	}
	return err
}

// HandleNotify sends the customer e-mail for the wrapped event.
func (h *Handlers) HandleNotify(ctx context.Context, t *asynq.Task) error {
	p, err := decode[NotifyPayload](t)
	if err != nil {
		return err
	}
	if h.Mail == nil {
		return nil
	}
	return h.Mail.Deliver(ctx, p.Event)
}
