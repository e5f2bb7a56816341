package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramAdapter delivers notifications through the Telegram Bot API.
type TelegramAdapter struct {
	botToken      string
	defaultChatID string
	baseURL       string
	client        *http.Client
	logger        zerolog.Logger
}

// NewTelegramAdapter constructs the Telegram channel.
func NewTelegramAdapter(botToken, defaultChatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramAdapter{
		botToken:      botToken,
		defaultChatID: defaultChatID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		logger:        logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Name identifies the channel.
func (a *TelegramAdapter) Name() string { return "telegram" }

// Send calls the sendMessage API. recipient is a chat id; empty falls back
// to the configured default.
func (a *TelegramAdapter) Send(ctx context.Context, recipient string, msg Message) error {
	chatID := recipient
	if chatID == "" {
		chatID = a.defaultChatID
	}
	if chatID == "" {
		return fmt.Errorf("telegram: no chat id configured")
	}

	payload := map[string]string{
		"chat_id": chatID,
		"text":    renderMessage(msg),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", a.baseURL, a.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	a.logger.Info().
		Str("rule", msg.RuleName).
		Str("severity", string(msg.Severity)).
		Msg("notification delivered via telegram")
	return nil
}

var _ Adapter = (*TelegramAdapter)(nil)
