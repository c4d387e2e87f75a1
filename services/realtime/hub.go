// Package realtime pushes freshly persisted snapshots to websocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"market_backend/models"
)

const (
	MaxClients   = 100
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 256
)

// Message is the frame sent to subscribers
type Message struct {
	Type     string          `json:"type"`
	Category models.Category `json:"category,omitempty"`
	Data     any             `json:"data,omitempty"`
	Time     string          `json:"time"`
}

type outbound struct {
	category models.Category
	payload  []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu         sync.RWMutex
	categories map[models.Category]bool
}

// wants reports whether the client follows category; no subscription means everything
func (c *client) wants(category models.Category) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.categories) == 0 || c.categories[category]
}

type Hub struct {
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan outbound
	done       chan struct{}
}

func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan outbound, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is cancelled, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= MaxClients {
				h.mu.Unlock()
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server at capacity"))
				_ = c.conn.Close()
				h.logger.WithField("max_clients", MaxClients).Warn("websocket client rejected")
				continue
			}
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.WithField("clients", n).Debug("websocket client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.WithField("clients", n).Debug("websocket client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				if !c.wants(msg.category) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues a snapshot for subscribers of category. It never blocks;
// when the queue is full the update is dropped.
func (h *Hub) Publish(category models.Category, snap models.Snapshot) {
	payload, err := json.Marshal(Message{
		Type:     "snapshot",
		Category: category,
		Data:     snap.View(),
		Time:     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.WithError(err).Error("failed to encode snapshot message")
		return
	}
	select {
	case h.broadcast <- outbound{category: category, payload: payload}:
	default:
		h.logger.WithField("category", category).Warn("websocket broadcast queue full, dropping update")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and registers the connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ClientCount() >= MaxClients {
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		categories: make(map[models.Category]bool),
	}
	for _, raw := range r.URL.Query()["category"] {
		if cat, err := models.ParseCategory(raw); err == nil {
			c.categories[cat] = true
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(h)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles {"action":"subscribe"|"unsubscribe","categories":[...]} commands
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Debug("websocket read error")
			}
			return
		}

		var cmd struct {
			Action     string   `json:"action"`
			Categories []string `json:"categories"`
		}
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}

		c.mu.Lock()
		for _, name := range cmd.Categories {
			cat, err := models.ParseCategory(name)
			if err != nil {
				continue
			}
			switch cmd.Action {
			case "subscribe":
				c.categories[cat] = true
			case "unsubscribe":
				delete(c.categories, cat)
			}
		}
		c.mu.Unlock()
	}
}
