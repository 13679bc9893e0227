package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/brokerage/internal/domain"
)

// WebhookLookup finds the subscription for an account and event.
type WebhookLookup interface {
	Lookup(accountID, event string) *domain.Webhook
}

// Webhook POSTs events to the URL an account registered for them.
type Webhook struct {
	hooks  WebhookLookup
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

var _ Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier whose deliveries time out after
// timeout.
func NewWebhook(hooks WebhookLookup, timeout time.Duration, logger *slog.Logger) *Webhook {
	return &Webhook{
		hooks:  hooks,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Publish dispatches in the background; it returns immediately.
func (w *Webhook) Publish(_ context.Context, accountID, eventType string, payload any) {
	wh := w.hooks.Lookup(accountID, eventType)
	if wh == nil {
		return
	}

	body, err := json.Marshal(newEvent(accountID, eventType, payload))
	if err != nil {
		w.logger.Error("webhook payload", slog.String("event", eventType), slog.String("error", err.Error()))
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliver(wh, eventType, body)
	}()
}

// Wait blocks until in-flight deliveries finish.
func (w *Webhook) Wait() {
	w.wg.Wait()
}

func (w *Webhook) deliver(wh *domain.Webhook, eventType string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		w.logger.Warn("webhook request", slog.String("webhook_id", wh.WebhookID), slog.String("error", err.Error()))
		return
	}

	deliveryID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", deliveryID)
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", eventType)

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed",
			slog.String("webhook_id", wh.WebhookID),
			slog.String("delivery_id", deliveryID),
			slog.String("error", err.Error()),
		)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook rejected",
			slog.String("webhook_id", wh.WebhookID),
			slog.String("delivery_id", deliveryID),
			slog.Int("status", resp.StatusCode),
		)
	}
}
