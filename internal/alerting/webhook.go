package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookAdapter posts notifications as JSON to a chat webhook endpoint.
type WebhookAdapter struct {
	defaultURL string
	client     *http.Client
	logger     zerolog.Logger
}

type webhookPayload struct {
	Rule        string `json:"rule"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

// NewWebhookAdapter constructs the webhook channel.
func NewWebhookAdapter(defaultURL string, timeout time.Duration, logger zerolog.Logger) *WebhookAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookAdapter{
		defaultURL: defaultURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_webhook").Logger(),
	}
}

// Name identifies the channel.
func (a *WebhookAdapter) Name() string { return "webhook" }

// Send posts the payload. recipient is a target URL; empty falls back to the
// configured default.
func (a *WebhookAdapter) Send(ctx context.Context, recipient string, msg Message) error {
	url := recipient
	if url == "" {
		url = a.defaultURL
	}
	if url == "" {
		return fmt.Errorf("webhook: no url configured")
	}

	body, err := json.Marshal(webhookPayload{
		Rule:        msg.RuleName,
		Severity:    string(msg.Severity),
		Message:     msg.Body,
		TriggeredAt: msg.TriggeredAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	a.logger.Info().
		Str("rule", msg.RuleName).
		Str("severity", string(msg.Severity)).
		Msg("notification delivered via webhook")
	return nil
}

var _ Adapter = (*WebhookAdapter)(nil)
