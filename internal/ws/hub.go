// Package ws fans queue and recording state out to WebSocket clients:
// per-task deltas as they happen, queue stats on the broadcast interval,
// and periodic full snapshots coalesced by content hash.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamvault/streamvault/internal/observability"
)

// Message types pushed to clients.
const (
	MsgTaskStatus      = "task_status_update"
	MsgTaskProgress    = "task_progress_update"
	MsgQueueStats      = "queue_stats_update"
	MsgBackgroundQueue = "background_queue_update"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Envelope is the wire format for every outbound message.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	// Timestamp is the server-side emission time.
	Timestamp time.Time `json:"timestamp"`
}

// Client is one connected WebSocket peer. Slow peers whose send buffer
// fills are dropped rather than allowed to stall the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the client set and serializes all membership changes and
// broadcasts through its run loop.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	log     *slog.Logger
	metrics *observability.Metrics
}

// NewHub creates a Hub. Call Run before serving connections.
func NewHub(log *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        observability.WithComponent(log, "ws"),
		metrics:    metrics,
	}
}

// Run processes hub events until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				close(client.send)
				delete(h.clients, client)
			}
			h.setClientGauge(0)
			h.log.Debug("hub stopped, all clients disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			h.setClientGauge(len(h.clients))
			h.log.Debug("client connected", "total", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setClientGauge(len(h.clients))
				h.log.Debug("client disconnected", "total", len(h.clients))
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					delete(h.clients, client)
					close(client.send)
					h.setClientGauge(len(h.clients))
				}
			}
		}
	}
}

// Close stops the run loop and disconnects every client.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) setClientGauge(n int) {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
}

// Broadcast sends a typed message to all clients. The payload is dropped
// when the broadcast channel is full; deltas are cheap and snapshots
// repeat.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(Envelope{Type: msgType, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		h.log.Error("marshal failed", "type", msgType, "error", err)
		return
	}
	h.BroadcastRaw(payload)
}

// BroadcastRaw sends a pre-marshaled message to all clients.
func (h *Hub) BroadcastRaw(payload []byte) {
	select {
	case h.broadcast <- payload:
	case <-h.done:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request and attaches the client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames; clients only listen, so anything read is
// discarded. Its exit drives unregistration.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
