// Package realtime pushes notification entries to websocket subscribers.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"erp-approval-middleware/internal/domain/notification"

	"github.com/gorilla/websocket"
)

const (
	// Idle time allowed between client frames. The server pings twice per
	// window so a passive subscriber still answers in time.
	defaultPongWait = 60 * time.Second
	writeWait       = 5 * time.Second
)

// Event is the frame sent to subscribers.
type Event struct {
	Type string             `json:"type"`
	Data notification.Entry `json:"data"`
}

type client struct {
	user string
	conn *websocket.Conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

func (c *client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub tracks connected subscribers. A user may hold several connections.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	log      *slog.Logger
	pongWait time.Duration
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{clients: make(map[*client]struct{}), log: log, pongWait: defaultPongWait}
}

// WithPongWait changes the keepalive window; tests shorten it.
func (h *Hub) WithPongWait(d time.Duration) *Hub {
	h.pongWait = d
	return h
}

func (h *Hub) pingPeriod() time.Duration { return h.pongWait / 2 }

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.log.Debug("websocket client registered", "user", c.user)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.log.Debug("websocket client unregistered", "user", c.user)
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts e to every subscriber. Connections that fail to
// accept the frame are closed and dropped.
func (h *Hub) Publish(e notification.Entry) {
	msg, err := json.Marshal(Event{Type: "notification", Data: e})
	if err != nil {
		h.log.Error("websocket: encode notification", "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(msg); err != nil {
			h.log.Warn("websocket: drop subscriber", "user", c.user, "err", err)
			h.unregister(c)
			_ = c.conn.Close()
		}
	}
}

// Serve registers an upgraded connection and blocks in its read loop until
// the client goes away. Inbound frames other than control frames are ignored.
// While it runs the server pings the client, so a subscriber that never
// sends anything stays connected as long as it answers pings.
func (h *Hub) Serve(conn *websocket.Conn, user string) {
	c := &client{user: user, conn: conn}
	h.register(c)
	done := make(chan struct{})
	defer func() {
		close(done)
		h.unregister(c)
		_ = conn.Close()
	}()
	go h.keepalive(c, done)

	wait := h.pongWait
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		c.mu.Lock()
		defer c.mu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket: unexpected close", "user", user, "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
	}
}

// keepalive pings c until done closes. A failed ping closes the connection,
// which ends Serve's read loop.
func (h *Hub) keepalive(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				h.log.Debug("websocket: ping failed", "user", c.user, "err", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}
