package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"QuoteForge/internal/domain/models"
	drepo "QuoteForge/internal/domain/repository"
	"QuoteForge/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pingPeriod     = 30 * time.Second
	clientBufSize  = 256
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type outbound struct {
	Type    string      `json:"type"` // tick, event
	Payload interface{} `json:"payload"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	symbols map[string]bool // empty = all symbols
	userID  string
}

// Hub fans ticks and user events out to websocket subscribers. A slow client
// gets its frames dropped, never the whole hub; ticks are filtered by the
// client's symbol subscription and events by its user id.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	metrics drepo.Metrics
	log     *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(metrics drepo.Metrics, log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		metrics: metrics,
		log:     log,
	}
}

// ServeHTTP upgrades a subscriber connection. Query params: symbols (comma
// separated, optional) and user_id (optional, required for user events).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, clientBufSize),
		symbols: make(map[string]bool),
		userID:  r.URL.Query().Get("user_id"),
	}
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		for _, s := range splitComma(raw) {
			c.symbols[s] = true
		}
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// readPump discards inbound frames; the stream is one-directional. Its real
// job is detecting a closed connection.
func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// BroadcastTick sends a tick to every subscriber of its symbol.
func (h *Hub) BroadcastTick(_ context.Context, tick *models.PriceTick) error {
	b, err := json.Marshal(outbound{Type: "tick", Payload: tick})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if len(c.symbols) > 0 && !c.symbols[tick.Symbol] {
			continue
		}
		select {
		case c.send <- b:
		default:
			if h.metrics != nil {
				h.metrics.RecordError("ws_client_drop")
			}
		}
	}
	return nil
}

// BroadcastEvent sends a user event to that user's connections only.
func (h *Hub) BroadcastEvent(_ context.Context, event *models.UserEvent) error {
	b, err := json.Marshal(outbound{Type: "event", Payload: event})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.userID == "" || c.userID != event.UserID {
			continue
		}
		select {
		case c.send <- b:
		default:
			if h.metrics != nil {
				h.metrics.RecordError("ws_client_drop")
			}
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.drop(c)
	}
	return nil
}

var _ drepo.Broadcaster = (*Hub)(nil)
