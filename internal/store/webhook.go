package store

import (
	"slices"
	"strings"
	"sync"

	"github.com/efreitasn/brokerage/internal/domain"
)

// WebhookStore keeps at most one webhook per (account_id, event) pair.
// Values handed in and out are copies.
type WebhookStore struct {
	mu        sync.RWMutex
	webhooks  map[string]*domain.Webhook            // webhook_id → webhook
	byAccount map[string]map[string]*domain.Webhook // account_id → event → webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks:  make(map[string]*domain.Webhook),
		byAccount: make(map[string]map[string]*domain.Webhook),
	}
}

// Upsert registers w, or points the existing (account_id, event)
// subscription at w.URL. The existing webhook_id is kept. It returns the
// stored webhook and whether it was newly created.
func (s *WebhookStore) Upsert(w *domain.Webhook) (*domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.byAccount[w.AccountID]
	if existing, ok := events[w.Event]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		c := *existing
		return &c, false
	}

	stored := *w
	s.webhooks[w.WebhookID] = &stored
	if events == nil {
		events = make(map[string]*domain.Webhook)
		s.byAccount[w.AccountID] = events
	}
	events[w.Event] = &stored

	c := stored
	return &c, true
}

// Get returns domain.ErrWebhookNotFound if id is unknown.
func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	c := *w
	return &c, nil
}

// ListByAccount returns the account's webhooks ordered by event name.
func (s *WebhookStore) ListByAccount(accountID string) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byAccount[accountID]
	result := make([]*domain.Webhook, 0, len(events))
	for _, w := range events {
		c := *w
		result = append(result, &c)
	}
	slices.SortFunc(result, func(a, b *domain.Webhook) int {
		return strings.Compare(a.Event, b.Event)
	})
	return result
}

// Delete removes the webhook from both indexes.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.webhooks, id)

	events := s.byAccount[w.AccountID]
	delete(events, w.Event)
	if len(events) == 0 {
		delete(s.byAccount, w.AccountID)
	}
	return nil
}

// Lookup returns the subscription for accountID and event, or nil.
func (s *WebhookStore) Lookup(accountID, event string) *domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.byAccount[accountID][event]
	if !ok {
		return nil
	}
	c := *w
	return &c
}
