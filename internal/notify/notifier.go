package notify

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rawises/storefront-api/internal/events"
)

// EmailNotifier sends the customer e-mail for an event at most once.
type EmailNotifier struct {
	Mail    Mailer
	Enabled bool
	// Sent guards against re-sending when a task is retried after the mail went out.
	Sent    *redis.Client
	SentTTL time.Duration
	Logger  zerolog.Logger
}

// Deliver renders and sends the e-mail for ev.
func (n EmailNotifier) Deliver(ctx context.Context, ev events.Event) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	msg, ok, err := Render(ev)
	if err != nil || !ok {
		return err
	}
	key := "mail:sent:" + ev.Topic + ":" + ev.AggregateID
	if ev.ID != "" {
		key = "mail:sent:" + ev.ID
	}
	claimed, err := n.claim(ctx, key)
	if err != nil {
		return err
	}
	if !claimed {
		n.Logger.Debug().Str("event_id", ev.ID).Msg("mail_already_sent")
		return nil
	}
	if err := n.Mail.Send(ctx, msg); err != nil {
		n.release(key)
		return err
	}
	n.Logger.Info().Str("topic", ev.Topic).Str("order_id", ev.AggregateID).Msg("mail_sent")
	return nil
}

func (n EmailNotifier) claim(ctx context.Context, key string) (bool, error) {
	if n.Sent == nil {
		return true, nil
	}
	ttl := n.SentTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return n.Sent.SetNX(ctx, key, "1", ttl).Result()
}

func (n EmailNotifier) release(key string) {
	if n.Sent == nil {
		return
	}
	_ = n.Sent.Del(context.Background(), key).Err()
}
