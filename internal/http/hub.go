package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/observability/metrics"
	"voice-translation-viewer/internal/service/viewer"
)

const writeWait = 5 * time.Second

// Hub pushes view snapshots to connected WebSocket clients. A slow client
// only ever holds the latest snapshot; older ones are replaced.
type Hub struct {
	current    func() viewer.Views
	clients    map[*client]struct{}
	broadcast  chan viewer.Views
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan viewer.Views
}

// offer replaces any undelivered snapshot in ch with v. It reports whether
// an older snapshot was replaced.
func offer(ch chan viewer.Views, v viewer.Views) bool {
	replaced := false
	for {
		select {
		case ch <- v:
			return replaced
		default:
		}
		select {
		case <-ch:
			replaced = true
		default:
		}
	}
}

// NewHub creates a hub. current primes each new client with the views at
// connect time.
func NewHub(current func() viewer.Views) *Hub {
	return &Hub{
		current:    current,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan viewer.Views, 1),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("ws-hub"),
	}
}

// Publish queues a snapshot for every client without blocking. A snapshot
// not yet broadcast is replaced, so the latest one always goes out.
func (h *Hub) Publish(v viewer.Views) {
	if offer(h.broadcast, v) {
		h.logger.Debug().Uint64("version", v.Version).Msg("Pending snapshot coalesced")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run serves register, unregister and broadcast requests until ctx is
// cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
		h.metrics.WebSocketClients.Set(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WebSocketClients.Set(float64(n))
			h.logger.Info().Int("clients", n).Msg("Client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WebSocketClients.Set(float64(n))
			h.logger.Info().Int("clients", n).Msg("Client disconnected")

		case v := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				offer(c.send, v)
			}
			h.mu.RUnlock()
			h.metrics.ViewBroadcasts.Inc()
		}
	}
}

// ServeHTTP upgrades the request and streams views until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan viewer.Views, 1)}
	c.send <- h.current()

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)

	// Inbound messages are ignored; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for v := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(v); err != nil {
			h.logger.Debug().Err(err).Msg("Write error")
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
