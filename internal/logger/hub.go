package logger

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// liveMessage is one frame pushed to /api/live subscribers.
type liveMessage struct {
	Type      string     `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Count     int        `json:"count"`
	Aircraft  []Position `json:"aircraft"`
}

type liveClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans each stored poll batch out to connected dashboard websockets.
type Hub struct {
	clients    map[*liveClient]bool
	broadcast  chan []byte
	register   chan *liveClient
	unregister chan *liveClient
	upgrader   websocket.Upgrader

	mu     sync.Mutex // serializes Publish against Close
	closed bool
}

// NewHub creates a hub. The dashboard is served from another origin, so
// upgrades are accepted from anywhere, matching the API's open CORS
// policy.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*liveClient]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run drives the hub event loop; it returns after Close.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case message, ok := <-h.broadcast:
			if !ok {
				for client := range h.clients {
					close(client.send)
				}
				return
			}
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop the frame rather than block the loop.
				}
			}
		}
	}
}

// Close stops the event loop and disconnects every client. Safe to call
// more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.broadcast)
}

// Publish pushes a stored batch to all subscribers. After Close it is a
// no-op, so a poll still in flight during shutdown cannot hit the closed
// broadcast channel.
func (h *Hub) Publish(batch []Position) {
	msg := liveMessage{
		Type:      "positions",
		Timestamp: time.Now().UTC(),
		Count:     len(batch),
		Aircraft:  batch,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// HandleLive upgrades the request and streams poll batches to the client.
func (h *Hub) HandleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Logger] websocket upgrade error: %v", err)
		return
	}
	client := &liveClient{conn: conn, send: make(chan []byte, 64)}
	h.register <- client
	go client.writePump()
	go client.readPump(h)
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// readPump discards inbound frames; the live stream is one-way. It exists
// to notice disconnects and answer pings.
func (c *liveClient) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
