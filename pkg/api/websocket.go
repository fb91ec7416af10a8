package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/gheregistry/pkg/github"
	"github.com/ethpandaops/gheregistry/pkg/store"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// createUpgrader creates a WebSocket upgrader with origin validation.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	originSet := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// Non-browser clients send no Origin.
			if origin == "" || allowAll {
				return true
			}

			return originSet[origin]
		},
	}
}

// MessageType represents the type of event stream message.
type MessageType string

const (
	// Server -> Client messages.
	MessageTypeServerCreated      MessageType = "server_created"
	MessageTypeServerDeleted      MessageType = "server_deleted"
	MessageTypeServerReachability MessageType = "server_reachability"
	MessageTypePong               MessageType = "pong"

	// Client -> Server messages.
	MessageTypePing MessageType = "ping"
)

// Message represents an event stream message.
type Message struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

func newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// HubMetrics records the number of connected clients.
type HubMetrics interface {
	SetWebSocketClients(count int)
}

// Hub maintains the set of active clients and broadcasts registry events to them.
type Hub struct {
	log     logrus.FieldLogger
	metrics HubMetrics

	// Registered clients.
	clients map[*Client]bool

	// Register requests from clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Broadcast messages to all clients.
	broadcast chan *Message

	// Closed when Run returns.
	done chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(log logrus.FieldLogger, m HubMetrics) *Hub {
	return &Hub{
		log:        log.WithField("component", "websocket"),
		metrics:    m,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Starting WebSocket hub")

	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.log.Info("Stopping WebSocket hub")

			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			h.updateMetrics()
			h.log.WithFields(logrus.Fields{
				"client":  client.id,
				"subject": client.subject,
			}).Debug("Client registered")

		case client := <-h.unregister:
			h.remove(client)
			h.log.WithField("client", client.id).Debug("Client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()

			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow consumer.
					close(client.send)
					delete(h.clients, client)
				}
			}

			h.mu.Unlock()
			h.updateMetrics()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}

	h.mu.Unlock()

	h.updateMetrics()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) updateMetrics() {
	if h.metrics != nil {
		h.metrics.SetWebSocketClients(h.ClientCount())
	}
}

// sendTo queues msg for a single client, unless the hub already dropped it.
func (h *Hub) sendTo(client *Client, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return
	}

	select {
	case client.send <- msg:
	default:
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg *Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("Broadcast channel full, dropping message")
	}
}

// BroadcastServerCreated broadcasts a newly registered server.
func (h *Hub) BroadcastServerCreated(server *store.Server) {
	h.Broadcast(newMessage(MessageTypeServerCreated, server))
}

// BroadcastServerDeleted broadcasts a deleted server.
func (h *Hub) BroadcastServerDeleted(server *store.Server) {
	h.Broadcast(newMessage(MessageTypeServerDeleted, server))
}

// BroadcastReachability broadcasts a reachability transition.
func (h *Hub) BroadcastReachability(r *github.Reachability) {
	h.Broadcast(newMessage(MessageTypeServerReachability, r))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Client represents a WebSocket client connection.
type Client struct {
	id      string
	subject string
	hub     *Hub
	conn    *websocket.Conn
	send    chan *Message
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, subject string) *Client {
	return &Client{
		id:      uuid.New().String(),
		subject: subject,
		hub:     hub,
		conn:    conn,
		send:    make(chan *Message, 256),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}

		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("WebSocket read error")
			}

			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.WithError(err).Warn("Failed to parse WebSocket message")

			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages from the client.
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePing:
		c.hub.sendTo(c, newMessage(MessageTypePong, nil))

	default:
		c.hub.log.WithField("type", msg.Type).Warn("Unknown message type")
	}
}

// ServeWs upgrades an authenticated request and attaches it to the hub.
func ServeWs(hub *Hub, subject string, allowedOrigins []string, w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(allowedOrigins)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.WithError(err).Error("Failed to upgrade WebSocket")

		return
	}

	client := NewClient(hub, conn, subject)

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()

		return
	}

	go client.WritePump()
	go client.ReadPump()
}
