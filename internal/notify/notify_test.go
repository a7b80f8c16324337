package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spotex/exchange/internal/models"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_OrderMatched(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := dialHub(t, hub)

	order := models.Order{
		ID:     7,
		UserID: 1,
		Symbol: "BTC",
		Side:   models.SideBuy,
		Amount: decimal.NewFromFloat(0.1),
		Price:  decimal.NewFromInt(500),
		Status: models.StatusFilled,
	}

	// Give the server a moment to register the client before broadcasting.
	time.Sleep(50 * time.Millisecond)
	hub.OrderMatched(order)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "order_matched", event.Type)
	assert.Equal(t, 7, event.Order.ID)
	assert.Equal(t, models.StatusFilled, event.Order.Status)
}

func TestHub_DropsDeadClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	conn := dialHub(t, hub)

	time.Sleep(50 * time.Millisecond)
	conn.Close()
	time.Sleep(50 * time.Millisecond)

	// Both broadcasts must return without error; the first may discover the
	// dead connection and evict it.
	hub.OrderMatched(models.Order{ID: 1})
	hub.OrderMatched(models.Order{ID: 2})

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.LessOrEqual(t, len(hub.clients), 1)
}

func TestNop(t *testing.T) {
	// Must not panic.
	Nop{}.OrderMatched(models.Order{ID: 1})
}
