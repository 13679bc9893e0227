package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/efreitasn/brokerage/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// EventPriceUpdated is pushed to connections subscribed to a symbol.
const EventPriceUpdated = "price.updated"

var accountEvents = []string{
	domain.EventOrderFilled,
	domain.EventOrderRejected,
	domain.EventOrderCancelled,
	domain.EventTradeExecuted,
}

// clientMessage is what a connection may send.
//
//	{"action": "subscribe", "events": ["order.filled"], "symbols": ["AAPL"]}
type clientMessage struct {
	Action  string   `json:"action"`
	Events  []string `json:"events"`
	Symbols []string `json:"symbols"`
}

// subscriptions is one connection's interest set. Only Hub.Run touches it.
type subscriptions struct {
	events  map[string]struct{}
	symbols map[string]struct{}
}

func newSubscriptions() *subscriptions {
	s := &subscriptions{
		events:  make(map[string]struct{}, len(accountEvents)),
		symbols: make(map[string]struct{}),
	}
	for _, e := range accountEvents {
		s.events[e] = struct{}{}
	}
	return s
}

func (s *subscriptions) apply(m clientMessage) {
	switch m.Action {
	case "subscribe":
		for _, e := range m.Events {
			s.events[e] = struct{}{}
		}
		for _, sym := range m.Symbols {
			s.symbols[sym] = struct{}{}
		}
	case "unsubscribe":
		for _, e := range m.Events {
			delete(s.events, e)
		}
		for _, sym := range m.Symbols {
			delete(s.symbols, sym)
		}
	}
}

func (s *subscriptions) snapshot() map[string][]string {
	out := map[string][]string{"events": {}, "symbols": {}}
	for e := range s.events {
		out["events"] = append(out["events"], e)
	}
	for sym := range s.symbols {
		out["symbols"] = append(out["symbols"], sym)
	}
	return out
}

type client struct {
	accountID string
	conn      *websocket.Conn
	send      chan []byte
	subs      *subscriptions
}

type outbound struct {
	accountID string // empty for symbol broadcasts
	event     string
	symbol    string
	data      []byte
}

type command struct {
	c   *client
	msg clientMessage
}

// Hub pushes events to websocket connections. Connection registration,
// subscription changes and fan-out all run on the Run goroutine.
type Hub struct {
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	register   chan *client
	unregister chan *client
	commands   chan command
	broadcast  chan outbound
	done       chan struct{}

	clients map[string]map[*client]struct{} // account_id → connections
}

var _ Notifier = (*Hub)(nil)

// NewHub creates a hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		commands:   make(chan command),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*client]struct{}),
	}
}

// Run owns the hub state until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
				}
			}
			h.clients = nil
			return

		case c := <-h.register:
			conns, ok := h.clients[c.accountID]
			if !ok {
				conns = make(map[*client]struct{})
				h.clients[c.accountID] = conns
			}
			conns[c] = struct{}{}

		case c := <-h.unregister:
			h.drop(c)

		case cmd := <-h.commands:
			if !h.registered(cmd.c) {
				continue
			}
			cmd.c.subs.apply(cmd.msg)
			ack, _ := json.Marshal(newEvent(cmd.c.accountID, "subscriptions", cmd.c.subs.snapshot()))
			h.push(cmd.c, ack)

		case m := <-h.broadcast:
			if m.accountID != "" {
				for c := range h.clients[m.accountID] {
					if _, ok := c.subs.events[m.event]; ok {
						h.push(c, m.data)
					}
				}
				continue
			}
			for _, conns := range h.clients {
				for c := range conns {
					if _, ok := c.subs.symbols[m.symbol]; ok {
						h.push(c, m.data)
					}
				}
			}
		}
	}
}

func (h *Hub) registered(c *client) bool {
	_, ok := h.clients[c.accountID][c]
	return ok
}

// push drops connections that cannot keep up.
func (h *Hub) push(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("websocket client too slow, dropping", slog.String("account_id", c.accountID))
		h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	conns, ok := h.clients[c.accountID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.accountID)
	}
	close(c.send)
}

// Publish queues an account event for connected clients. Events are
// dropped if the hub is saturated or stopped.
func (h *Hub) Publish(_ context.Context, accountID, eventType string, payload any) {
	data, err := json.Marshal(newEvent(accountID, eventType, payload))
	if err != nil {
		h.logger.Error("websocket payload", slog.String("event", eventType), slog.String("error", err.Error()))
		return
	}
	h.enqueue(outbound{accountID: accountID, event: eventType, data: data})
}

// PublishPrice pushes an instrument's new price to connections subscribed
// to its symbol.
func (h *Hub) PublishPrice(inst *domain.Instrument) {
	data, err := json.Marshal(newEvent("", EventPriceUpdated, map[string]any{
		"symbol":     inst.Symbol,
		"price":      inst.CurrentPrice,
		"updated_at": inst.UpdatedAt,
	}))
	if err != nil {
		return
	}
	h.enqueue(outbound{event: EventPriceUpdated, symbol: inst.Symbol, data: data})
}

func (h *Hub) enqueue(m outbound) {
	select {
	case h.broadcast <- m:
	case <-h.done:
	default:
		h.logger.Warn("websocket hub saturated, dropping event", slog.String("event", m.event))
	}
}

// ServeWS upgrades the request and streams accountID's events over it.
// It returns once the connection is established.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, accountID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		accountID: accountID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		subs:      newSubscriptions(),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return nil
	}

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read", slog.String("account_id", c.accountID), slog.String("error", err.Error()))
			}
			return
		}
		select {
		case h.commands <- command{c: c, msg: msg}:
		case <-h.done:
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
