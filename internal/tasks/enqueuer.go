package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/events"
)

// Client is the subset of *asynq.Client used to enqueue tasks.
type Client interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes background tasks. It implements payment.ExpiryScheduler
// and events.Notifier.
type Enqueuer struct {
	Client   Client
	Queue    string
	MaxRetry int
	Logger   zerolog.Logger
}

func (e Enqueuer) options(id string, extra ...asynq.Option) []asynq.Option {
	opts := []asynq.Option{asynq.TaskID(id)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	return append(opts, extra...)
}

func (e Enqueuer) enqueue(ctx context.Context, task *asynq.Task, opts []asynq.Option) error {
	if e.Client == nil {
		return errors.New("tasks: client not configured")
	}
	info, err := e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return err
	}
	e.Logger.Debug().Str("task", task.Type()).Str("task_id", info.ID).Msg("task_enqueued")
	return nil
}

// ScheduleExpiry enqueues the timeout check for an attempt at the given time.
// Enqueueing the same invoice twice is a no-op.
func (e Enqueuer) ScheduleExpiry(ctx context.Context, invoiceID string, at time.Time) error {
	task, err := NewExpireTask(invoiceID)
	if err != nil {
		return err
	}
	return e.enqueue(ctx, task, e.options(TypePaymentExpire+":"+invoiceID, asynq.ProcessAt(at)))
}

// Notify enqueues an order:notify task for topics that produce customer mail.
func (e Enqueuer) Notify(ctx context.Context, ev events.Event) error {
	if !customerTopic(ev.Topic) {
		return nil
	}
	task, err := NewNotifyTask(ev)
	if err != nil {
		return err
	}
	id := ev.ID
	if id == "" {
		id = ev.Topic + ":" + ev.AggregateID
	}
	return e.enqueue(ctx, task, e.options(TypeOrderNotify+":"+id))
}

func customerTopic(topic string) bool {
	for _, t := range events.CustomerTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
