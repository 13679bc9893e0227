package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(_ context.Context, accountID, eventType string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, accountID+":"+eventType)
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, Nop{}, b}.Publish(context.Background(), "acc-1", domain.EventOrderFilled, nil)

	assert.Equal(t, []string{"acc-1:order.filled"}, a.events)
	assert.Equal(t, []string{"acc-1:order.filled"}, b.events)
}

func TestNewOrderData(t *testing.T) {
	price := decimal.RequireFromString("101.5")
	o := &domain.Order{
		OrderID: "o1", AccountID: "acc-1", Symbol: "AAPL",
		Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Quantity: 3, LimitPrice: &price,
		Status: domain.OrderStatusRejected, RejectionReason: domain.RejectInsufficientFunds,
	}

	body, err := json.Marshal(NewOrderData(o))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "101.5", got["limit_price"])
	assert.Equal(t, "insufficient_funds", got["rejection_reason"])
	assert.Equal(t, "rejected", got["status"])
}

func TestWebhook_DeliversWithHeaders(t *testing.T) {
	type delivery struct {
		header http.Header
		body   Event
	}
	received := make(chan delivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		received <- delivery{header: r.Header.Clone(), body: ev}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hooks := store.NewWebhookStore()
	hooks.Upsert(&domain.Webhook{WebhookID: "wh-1", AccountID: "acc-1", Event: domain.EventTradeExecuted, URL: srv.URL})

	n := NewWebhook(hooks, time.Second, discardLogger())
	n.Publish(context.Background(), "acc-1", domain.EventTradeExecuted, TradeData{TradeID: "t1"})
	n.Publish(context.Background(), "acc-1", domain.EventOrderFilled, OrderData{OrderID: "o1"}) // no subscription
	n.Wait()

	select {
	case d := <-received:
		assert.Equal(t, "wh-1", d.header.Get("X-Webhook-Id"))
		assert.Equal(t, domain.EventTradeExecuted, d.header.Get("X-Event-Type"))
		assert.NotEmpty(t, d.header.Get("X-Delivery-Id"))
		assert.Equal(t, "application/json", d.header.Get("Content-Type"))
		assert.Equal(t, domain.EventTradeExecuted, d.body.Event)
		assert.Equal(t, "acc-1", d.body.AccountID)
	default:
		t.Fatal("expected one delivery")
	}
	assert.Empty(t, received)
}

func TestWebhook_UnreachableDoesNotPanic(t *testing.T) {
	hooks := store.NewWebhookStore()
	hooks.Upsert(&domain.Webhook{WebhookID: "wh-1", AccountID: "acc-1", Event: domain.EventOrderCancelled, URL: "http://127.0.0.1:1"})

	n := NewWebhook(hooks, 100*time.Millisecond, discardLogger())
	n.Publish(context.Background(), "acc-1", domain.EventOrderCancelled, nil)
	n.Wait()
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, logger: discardLogger()}

	p.Publish(context.Background(), "acc-9", domain.EventOrderRejected, OrderData{OrderID: "o1"})

	require.Len(t, w.msgs, 1)
	m := w.msgs[0]
	assert.Equal(t, "acc-9", string(m.Key))
	require.Len(t, m.Headers, 1)
	assert.Equal(t, domain.EventOrderRejected, string(m.Headers[0].Value))

	var ev Event
	require.NoError(t, json.Unmarshal(m.Value, &ev))
	assert.Equal(t, domain.EventOrderRejected, ev.Event)
	assert.NotEmpty(t, ev.Timestamp)
}

func dialHub(t *testing.T, hub *Hub, accountID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, accountID)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHub_AccountEventsAndSubscriptions(t *testing.T) {
	hub := NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub, "acc-1")

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Symbols: []string{"AAPL"}}))
	ack := readEvent(t, conn)
	assert.Equal(t, "subscriptions", ack.Event)

	hub.Publish(ctx, "acc-2", domain.EventOrderFilled, OrderData{OrderID: "other"})
	hub.Publish(ctx, "acc-1", domain.EventOrderFilled, OrderData{OrderID: "mine"})
	ev := readEvent(t, conn)
	assert.Equal(t, domain.EventOrderFilled, ev.Event)
	assert.Equal(t, "acc-1", ev.AccountID)

	hub.PublishPrice(&domain.Instrument{Symbol: "MSFT", CurrentPrice: decimal.NewFromInt(1)})
	hub.PublishPrice(&domain.Instrument{Symbol: "AAPL", CurrentPrice: decimal.NewFromInt(2)})
	ev = readEvent(t, conn)
	assert.Equal(t, EventPriceUpdated, ev.Event)
	assert.Equal(t, "AAPL", ev.Data.(map[string]any)["symbol"])

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "unsubscribe", Events: []string{domain.EventOrderFilled}}))
	ack = readEvent(t, conn)
	assert.Equal(t, "subscriptions", ack.Event)

	hub.Publish(ctx, "acc-1", domain.EventOrderFilled, nil)
	hub.Publish(ctx, "acc-1", domain.EventOrderCancelled, nil)
	ev = readEvent(t, conn)
	assert.Equal(t, domain.EventOrderCancelled, ev.Event)
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	hub := NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	conn := dialHub(t, hub, "acc-1")
	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe"}))
	readEvent(t, conn)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	// Publishing after shutdown must not block.
	hub.Publish(context.Background(), "acc-1", domain.EventOrderFilled, nil)
}
