package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"metric-alerts/internal/rule"
)

func testMessage() Message {
	return Message{
		RuleName:    "btc-high",
		Severity:    rule.SeverityWarning,
		Body:        "BTC price 51000 is above threshold 50000",
		TriggeredAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestTelegramAdapterSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	adapter := NewTelegramAdapter("token", "default-chat", srv.URL, time.Second, testLogger())
	if err := adapter.Send(context.Background(), "", testMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if received["chat_id"] != "default-chat" {
		t.Fatalf("expected default chat id, got %#v", received)
	}
	if !strings.Contains(received["text"], "btc-high") {
		t.Fatalf("text should carry the rule name: %q", received["text"])
	}
	if !strings.Contains(received["text"], "WARNING") {
		t.Fatalf("text should carry the severity: %q", received["text"])
	}
}

func TestTelegramAdapterRecipientOverride(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	adapter := NewTelegramAdapter("token", "default-chat", srv.URL, time.Second, testLogger())
	if err := adapter.Send(context.Background(), "rule-chat", testMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if received["chat_id"] != "rule-chat" {
		t.Fatalf("recipient should override the default chat id: %#v", received)
	}
}

func TestTelegramAdapterNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	adapter := NewTelegramAdapter("token", "chat", srv.URL, time.Second, testLogger())
	if err := adapter.Send(context.Background(), "", testMessage()); err == nil {
		t.Fatal("ok=false should error")
	}
}

func TestWebhookAdapterSuccess(t *testing.T) {
	var payload webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(srv.URL, time.Second, testLogger())
	if err := adapter.Send(context.Background(), "", testMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if payload.Rule != "btc-high" || payload.Severity != "warning" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestWebhookAdapterNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := NewWebhookAdapter(srv.URL, time.Second, testLogger())
	if err := adapter.Send(context.Background(), "", testMessage()); err == nil {
		t.Fatal("502 should error")
	}
}

func TestWebhookAdapterRequiresURL(t *testing.T) {
	adapter := NewWebhookAdapter("", time.Second, testLogger())
	if err := adapter.Send(context.Background(), "", testMessage()); err == nil {
		t.Fatal("missing url should error")
	}
}

func TestEmailAdapterRequiresRecipient(t *testing.T) {
	adapter := NewEmailAdapter("smtp.example.com", 587, "alerts@example.com", "", "", testLogger())
	if err := adapter.Send(context.Background(), "", testMessage()); err == nil {
		t.Fatal("missing recipient should error")
	}
}

func TestRegistryLookup(t *testing.T) {
	telegram := NewTelegramAdapter("token", "chat", "", time.Second, testLogger())
	registry := NewRegistry(telegram)

	if _, err := registry.Get("telegram"); err != nil {
		t.Fatalf("Get(telegram): %v", err)
	}
	if _, err := registry.Get("pager"); err == nil {
		t.Fatal("unknown channel should error")
	}
}
