package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rawises/storefront-api/internal/events"
	"github.com/rawises/storefront-api/internal/notify"
)

type captureMailer struct {
	sent []notify.Message
	err  error
}

func (c *captureMailer) Send(_ context.Context, msg notify.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func event(t *testing.T, id, topic string, payload map[string]any) events.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Event{ID: id, Topic: topic, AggregateID: "order-1", Payload: raw}
}

func TestRenderOrderPaid(t *testing.T) {
	msg, ok, err := notify.Render(event(t, "e1", events.TopicOrderPaid, map[string]any{
		"orderNumber": "RW20250301ABC123",
		"email":       "ayse@example.com",
		"name":        "Ayşe <b>",
		"amount":      "204.00",
		"currency":    "TRY",
	}))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ayse@example.com", msg.To)
	require.Contains(t, msg.Subject, "RW20250301ABC123")
	require.Contains(t, msg.HTML, "204.00 TRY")
	require.Contains(t, msg.HTML, "Ayşe &lt;b&gt;")
}

func TestRenderSkipsUnknownTopicAndMissingRecipient(t *testing.T) {
	_, ok, err := notify.Render(event(t, "e1", events.TopicOrderCreated, map[string]any{"email": "a@example.com"}))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = notify.Render(event(t, "e2", events.TopicPaymentFailed, map[string]any{"orderId": "o1"}))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmailNotifierSendsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mailer := &captureMailer{}
	n := notify.EmailNotifier{Mail: mailer, Enabled: true, Sent: rdb, SentTTL: time.Hour, Logger: zerolog.Nop()}
	ev := event(t, "evt-1", events.TopicPaymentFailed, map[string]any{
		"orderNumber":    "RW1",
		"email":          "ayse@example.com",
		"failureMessage": "Yetersiz bakiye",
	})

	require.NoError(t, n.Deliver(context.Background(), ev))
	require.NoError(t, n.Deliver(context.Background(), ev))
	require.Len(t, mailer.sent, 1)
	require.Contains(t, mailer.sent[0].HTML, "Yetersiz bakiye")
}

func TestEmailNotifierReleasesClaimOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	mailer := &captureMailer{err: errors.New("relay down")}
	n := notify.EmailNotifier{Mail: mailer, Enabled: true, Sent: rdb}
	ev := event(t, "evt-2", events.TopicOrderPaid, map[string]any{"orderNumber": "RW2", "email": "a@example.com"})

	require.Error(t, n.Deliver(context.Background(), ev))
	require.False(t, mr.Exists("mail:sent:evt-2"))

	mailer.err = nil
	require.NoError(t, n.Deliver(context.Background(), ev))
	require.Len(t, mailer.sent, 1)
}

func TestRelayMailerPostsJSON(t *testing.T) {
	var got notify.Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := notify.NewRelayMailer(srv.URL, "relay-token", "siparis@rawises.com", time.Second, nil)
	err := m.Send(context.Background(), notify.Message{To: "ayse@example.com", Subject: "Merhaba", HTML: "<p>x</p>"})
	require.NoError(t, err)
	require.Equal(t, "Bearer relay-token", auth)
	require.Equal(t, "siparis@rawises.com", got.From)
	require.Equal(t, "ayse@example.com", got.To)
}

func TestRelayMailerRejectsClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	m := notify.NewRelayMailer(srv.URL, "", "", time.Second, nil)
	require.Error(t, m.Send(context.Background(), notify.Message{To: "a@example.com"}))
}
