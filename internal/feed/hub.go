// Package feed streams committed ledger operations to websocket subscribers.
package feed

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reflection-token-lab/internal/api"
	"reflection-token-lab/internal/observability"
)

// HubConfig configures a Hub.
type HubConfig struct {
	// SendBuffer is the per-subscriber queue length. A subscriber whose
	// queue is full is dropped.
	SendBuffer int
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration
	// PingInterval is how often idle connections are pinged.
	PingInterval time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Hub fans events out to websocket subscribers. Broadcast never blocks on
// a subscriber.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *log.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
	once   sync.Once
}

// NewHub creates a hub. logger and metrics may be nil.
func NewHub(config *HubConfig, logger *log.Logger, metrics *observability.Metrics) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		config:   cfg,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
		metrics:  metrics,
		clients:  make(map[*subscriber]struct{}),
	}
}

// Subscribers returns the current number of subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues ev for every subscriber.
func (h *Hub) Broadcast(ev api.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Printf("marshal event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Printf("dropping slow subscriber %s", c.remote)
			h.removeLocked(c)
			if h.metrics != nil {
				h.metrics.FeedDropped.Inc()
			}
		}
	}
}

// Handler returns an http.HandlerFunc that upgrades to a websocket and
// subscribes the connection.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("websocket upgrade error: %v", err)
			return
		}

		c := &subscriber{
			conn:   conn,
			remote: conn.RemoteAddr().String(),
			send:   make(chan []byte, h.config.SendBuffer),
		}
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return
		}
		h.clients[c] = struct{}{}
		h.updateGaugeLocked()
		h.mu.Unlock()

		go h.writeLoop(c)
		go h.readLoop(c)
	}
}

// Close disconnects all subscribers and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// readLoop discards client messages and detects disconnects.
func (h *Hub) readLoop(c *subscriber) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *subscriber) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes the send queue; writeLoop then closes the connection.
func (h *Hub) removeLocked(c *subscriber) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.once.Do(func() { close(c.send) })
	h.updateGaugeLocked()
}

func (h *Hub) updateGaugeLocked() {
	if h.metrics != nil {
		h.metrics.FeedSubscribers.Set(float64(len(h.clients)))
	}
}
