package notify

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/spotex/exchange/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Notifier receives domain events after the owning transaction has
// committed. Delivery is best effort: a failed or slow consumer never rolls
// back or delays a trade.
type Notifier interface {
	OrderMatched(order models.Order)
}

// Nop discards all events.
type Nop struct{}

func (Nop) OrderMatched(models.Order) {}

// Event is the wire shape pushed to websocket subscribers.
type Event struct {
	Type  string       `json:"type"`
	Order models.Order `json:"order"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub fans events out to connected websocket clients.
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// OrderMatched broadcasts a fill notification for one side of a trade.
func (h *Hub) OrderMatched(order models.Order) {
	h.broadcast(Event{Type: "order_matched", Order: order})
}

func (h *Hub) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.log.Warn("failed to send event, dropping client", zap.Error(err))
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.conn.Close()
}

// HandleWS upgrades the request and subscribes the connection until it
// closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}
