package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/events"
	"github.com/rawises/storefront-api/internal/lock"
	"github.com/rawises/storefront-api/internal/tasks"
)

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type fakeClient struct {
	calls []enqueued
	seen  map[string]bool
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	var id string
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id = o.Value().(string)
		}
	}
	if f.seen[id] {
		return nil, asynq.ErrTaskIDConflict
	}
	f.seen[id] = true
	f.calls = append(f.calls, enqueued{task: task, opts: opts})
	return &asynq.TaskInfo{ID: id, Type: task.Type()}, nil
}

type fakePayments struct {
	expired []string
	sweeps  int
	err     error
}

func (f *fakePayments) Expire(_ context.Context, invoiceID string) (bool, error) {
	f.expired = append(f.expired, invoiceID)
	return true, f.err
}

func (f *fakePayments) Sweep(context.Context, int) (int, error) {
	f.sweeps++
	return 2, f.err
}

type fakeMail struct{ events []events.Event }

func (f *fakeMail) Deliver(_ context.Context, ev events.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func TestScheduleExpiryIsIdempotent(t *testing.T) {
	client := &fakeClient{}
	e := tasks.Enqueuer{Client: client, Queue: "payments", Logger: zerolog.Nop()}
	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, e.ScheduleExpiry(context.Background(), "RW-o1-1", at))
	require.NoError(t, e.ScheduleExpiry(context.Background(), "RW-o1-1", at))
	require.Len(t, client.calls, 1)

	call := client.calls[0]
	require.Equal(t, tasks.TypePaymentExpire, call.task.Type())
	var p tasks.ExpirePayload
	require.NoError(t, json.Unmarshal(call.task.Payload(), &p))
	require.Equal(t, "RW-o1-1", p.InvoiceID)

	var processAt time.Time
	for _, o := range call.opts {
		if o.Type() == asynq.ProcessAtOpt {
			processAt = o.Value().(time.Time)
		}
	}
	require.True(t, processAt.Equal(at))
}

func TestNotifyOnlyCustomerTopics(t *testing.T) {
	client := &fakeClient{}
	e := tasks.Enqueuer{Client: client}
	ctx := context.Background()

	require.NoError(t, e.Notify(ctx, events.Event{ID: "1", Topic: events.TopicOrderCreated, AggregateID: "o1"}))
	require.NoError(t, e.Notify(ctx, events.Event{ID: "2", Topic: events.TopicOrderPaid, AggregateID: "o1"}))
	require.Len(t, client.calls, 1)
	require.Equal(t, tasks.TypeOrderNotify, client.calls[0].task.Type())
}

func TestHandlersViaServeMux(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	payments := &fakePayments{}
	mail := &fakeMail{}
	h := &tasks.Handlers{Payments: payments, Mail: mail, Locker: lock.Locker{R: rdb}, Logger: zerolog.Nop()}
	mux := asynq.NewServeMux()
	h.Register(mux)
	ctx := context.Background()

	expire, err := tasks.NewExpireTask("RW-o1-1")
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, expire))
	require.Equal(t, []string{"RW-o1-1"}, payments.expired)

	require.NoError(t, mux.ProcessTask(ctx, tasks.NewSweepTask()))
	require.Equal(t, 1, payments.sweeps)

	require.NoError(t, mr.Set("lock:payment:sweep", "other-worker"))
	require.NoError(t, mux.ProcessTask(ctx, tasks.NewSweepTask()))
	require.Equal(t, 1, payments.sweeps, "sweep skipped while another worker holds the lock")

	notifyTask, err := tasks.NewNotifyTask(events.Event{ID: "e1", Topic: events.TopicOrderPaid, Payload: json.RawMessage(`{"email":"a@example.com"}`)})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(ctx, notifyTask))
	require.Len(t, mail.events, 1)
	require.JSONEq(t, `{"email":"a@example.com"}`, string(mail.events[0].Payload))

	err = mux.ProcessTask(ctx, asynq.NewTask(tasks.TypePaymentExpire, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	payments.err = errors.New("db down")
	require.Error(t, mux.ProcessTask(ctx, expire))
}
