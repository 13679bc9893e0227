package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/efreitasn/brokerage/internal/domain"
)

func TestWebhookService_Upsert(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "acc-1", "0")

	webhooks, created, err := env.webhooks.Upsert(env.ctx, UpsertWebhookRequest{
		AccountID: "acc-1",
		URL:       "https://example.com/hooks",
		Events:    []string{domain.EventOrderFilled, domain.EventTradeExecuted, domain.EventOrderFilled},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || len(webhooks) != 2 {
		t.Fatalf("created=%v len=%d, want true/2", created, len(webhooks))
	}
	if webhooks[0].Event != domain.EventOrderFilled || webhooks[1].Event != domain.EventTradeExecuted {
		t.Fatalf("events out of request order: %s, %s", webhooks[0].Event, webhooks[1].Event)
	}

	again, created, err := env.webhooks.Upsert(env.ctx, UpsertWebhookRequest{
		AccountID: "acc-1",
		URL:       "https://example.com/v2",
		Events:    []string{domain.EventOrderFilled, domain.EventOrderRejected},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected created=true when one subscription is new")
	}
	if again[0].WebhookID != webhooks[0].WebhookID || again[0].URL != "https://example.com/v2" {
		t.Fatalf("existing subscription not updated in place: %+v", again[0])
	}

	list, err := env.webhooks.List(env.ctx, "acc-1", "")
	if err != nil || len(list) != 3 {
		t.Fatalf("list = %d, %v", len(list), err)
	}

	if err := env.webhooks.Delete(list[0].WebhookID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.webhooks.Delete(list[0].WebhookID); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}

func TestWebhookService_ListByEvent(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "acc-1", "0")
	_, _, err := env.webhooks.Upsert(env.ctx, UpsertWebhookRequest{
		AccountID: "acc-1",
		URL:       "https://example.com/hook",
		Events:    []string{domain.EventOrderFilled, domain.EventTradeExecuted},
	})
	if err != nil {
		t.Fatal(err)
	}

	list, err := env.webhooks.List(env.ctx, "acc-1", domain.EventTradeExecuted)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Event != domain.EventTradeExecuted {
		t.Fatalf("list = %+v", list)
	}

	var ve *domain.ValidationError
	if _, err := env.webhooks.List(env.ctx, "acc-1", "order.expired"); !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestWebhookService_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "acc-1", "0")

	tests := []struct {
		name    string
		req     UpsertWebhookRequest
		wantMsg string
	}{
		{"empty url", UpsertWebhookRequest{AccountID: "acc-1", Events: []string{domain.EventOrderFilled}}, "url is required"},
		{"http scheme", UpsertWebhookRequest{AccountID: "acc-1", URL: "http://example.com", Events: []string{domain.EventOrderFilled}}, "url must use https scheme"},
		{"relative url", UpsertWebhookRequest{AccountID: "acc-1", URL: "not-a-url", Events: []string{domain.EventOrderFilled}}, "url must be a valid absolute URL"},
		{"too long", UpsertWebhookRequest{AccountID: "acc-1", URL: "https://example.com/" + strings.Repeat("a", 2048), Events: []string{domain.EventOrderFilled}}, "url must be at most 2048 characters"},
		{"no events", UpsertWebhookRequest{AccountID: "acc-1", URL: "https://example.com"}, "events must be a non-empty array"},
		{"unknown event", UpsertWebhookRequest{AccountID: "acc-1", URL: "https://example.com", Events: []string{"order.expired"}}, ""},
		{"bad account", UpsertWebhookRequest{AccountID: "a b", URL: "https://example.com", Events: []string{domain.EventOrderFilled}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.webhooks.Upsert(env.ctx, tt.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if tt.wantMsg != "" && ve.Message != tt.wantMsg {
				t.Fatalf("message = %q, want %q", ve.Message, tt.wantMsg)
			}
		})
	}
}

func TestWebhookService_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.webhooks.Upsert(env.ctx, UpsertWebhookRequest{
		AccountID: "ghost",
		URL:       "https://example.com",
		Events:    []string{domain.EventOrderFilled},
	})
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := env.webhooks.List(env.ctx, "ghost", ""); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
