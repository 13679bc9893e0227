package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

var webhookEvents = []string{
	domain.EventOrderFilled,
	domain.EventOrderRejected,
	domain.EventOrderCancelled,
	domain.EventTradeExecuted,
}

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	AccountID string
	URL       string
	Events    []string
}

// WebhookService handles webhook subscriptions. Delivery is done by
// notify.Webhook reading the same store.
type WebhookService struct {
	store  *store.WebhookStore
	ledger store.Ledger
	now    func() time.Time
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(webhooks *store.WebhookStore, ledger store.Ledger) *WebhookService {
	return &WebhookService{
		store:  webhooks,
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// Upsert validates the request and creates or updates one subscription per
// event. It returns the resulting webhooks and whether any was new.
func (s *WebhookService) Upsert(ctx context.Context, req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	if err := checkAccountID(req.AccountID); err != nil {
		return nil, false, err
	}
	if err := checkWebhookURL(req.URL); err != nil {
		return nil, false, err
	}
	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	events := make([]string, 0, len(req.Events))
	seen := make(map[string]bool, len(req.Events))
	for _, e := range req.Events {
		if !isWebhookEvent(e) {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + e + ". Must be one of: " + strings.Join(webhookEvents, ", "),
			}
		}
		if !seen[e] {
			seen[e] = true
			events = append(events, e)
		}
	}

	if _, err := s.ledger.GetWallet(ctx, req.AccountID); err != nil {
		return nil, false, err
	}

	now := s.now()
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(events))
	for _, e := range events {
		w, created := s.store.Upsert(&domain.Webhook{
			WebhookID: uuid.New().String(),
			AccountID: req.AccountID,
			Event:     e,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		anyCreated = anyCreated || created
		webhooks = append(webhooks, w)
	}
	return webhooks, anyCreated, nil
}

// List returns the account's subscriptions. A non-empty event narrows the
// result to that event type.
func (s *WebhookService) List(ctx context.Context, accountID, event string) ([]*domain.Webhook, error) {
	if event != "" && !isWebhookEvent(event) {
		return nil, &domain.ValidationError{
			Message: "Unknown event type: " + event + ". Must be one of: " + strings.Join(webhookEvents, ", "),
		}
	}
	if _, err := s.ledger.GetWallet(ctx, accountID); err != nil {
		return nil, err
	}

	all := s.store.ListByAccount(accountID)
	if event == "" {
		return all, nil
	}
	filtered := make([]*domain.Webhook, 0, len(all))
	for _, w := range all {
		if w.Event == event {
			filtered = append(filtered, w)
		}
	}
	return filtered, nil
}

// Delete removes a subscription by id.
func (s *WebhookService) Delete(webhookID string) error {
	return s.store.Delete(webhookID)
}

func checkWebhookURL(raw string) error {
	if raw == "" {
		return &domain.ValidationError{Message: "url is required"}
	}
	if len(raw) > 2048 {
		return &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return &domain.ValidationError{Message: "url must use https scheme"}
	}
	return nil
}

func isWebhookEvent(e string) bool {
	for _, known := range webhookEvents {
		if e == known {
			return true
		}
	}
	return false
}
