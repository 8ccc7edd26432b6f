package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rawises/storefront-api/internal/resilience"
)

// Message is a rendered transactional e-mail.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Mailer delivers e-mails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes e-mails to the log instead of sending them. Used when no
// relay is configured.
type LogMailer struct {
	Logger zerolog.Logger
}

// Send implements Mailer.
func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Msg("mail_logged")
	return nil
}

// RelayMailer posts e-mails as JSON to an HTTP mail relay.
type RelayMailer struct {
	URL   string
	Token string
	From  string
	HTTP  resilience.HTTPClient
}

// NewRelayMailer builds a relay client with a traced transport and a circuit breaker.
func NewRelayMailer(url, token, from string, timeout time.Duration, logger *zerolog.Logger) *RelayMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &RelayMailer{
		URL:   strings.TrimSpace(url),
		Token: strings.TrimSpace(token),
		From:  from,
		HTTP: resilience.HTTPClient{
			Client:      client,
			Breaker:     resilience.NewBreaker(resilience.BreakerConfig{Target: "mail-relay", Logger: logger}),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
		},
	}
}

// Send implements Mailer. 4xx answers are not retried.
func (m *RelayMailer) Send(ctx context.Context, msg Message) error {
	if m == nil || m.URL == "" {
		return errors.New("notify: mail relay not configured")
	}
	if msg.From == "" {
		msg.From = m.From
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.Token != "" {
		req.Header.Set("Authorization", "Bearer "+m.Token)
	}
	resp, err := m.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("notify: relay: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: relay responded %s", resp.Status)
	}
	return nil
}
