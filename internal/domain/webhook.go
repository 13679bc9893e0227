package domain

import "time"

// Event types published for order and trade activity.
const (
	EventOrderFilled    = "order.filled"
	EventOrderRejected  = "order.rejected"
	EventOrderCancelled = "order.cancelled"
	EventTradeExecuted  = "trade.executed"
)

// Webhook represents an account's subscription to an event notification.
type Webhook struct {
	WebhookID string
	AccountID string
	Event     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
