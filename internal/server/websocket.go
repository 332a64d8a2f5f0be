package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	wshandler "github.com/windfall/storyspeak/internal/handler/ws"
	"github.com/windfall/storyspeak/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the HTTP router
	},
}

// WebSocketMessage represents a WebSocket message.
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one WebSocket connection following a session.
type Client struct {
	ID        string
	SessionID string
	Hub       *WebSocketHub
	Conn      *websocket.Conn
	Send      chan []byte
}

type sessionEvent struct {
	sessionID string
	data      []byte
}

// WebSocketHub fans session snapshots out to the connections following
// each session.
type WebSocketHub struct {
	sessions   map[string]map[*Client]bool
	broadcast  chan sessionEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        zerolog.Logger
}

// NewWebSocketHub creates a new WebSocket hub.
func NewWebSocketHub(log zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan sessionEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the WebSocket hub. It returns when ctx ends.
func (h *WebSocketHub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("WebSocket hub shutting down")
			h.mu.Lock()
			for _, clients := range h.sessions {
				for client := range clients {
					close(client.Send)
				}
			}
			h.sessions = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			clients, ok := h.sessions[client.SessionID]
			if !ok {
				clients = make(map[*Client]bool)
				h.sessions[client.SessionID] = clients
			}
			clients[client] = true
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.ID).Str("session_id", client.SessionID).Msg("Client connected")

		case client := <-h.unregister:
			h.remove(client)
			h.log.Info().Str("client_id", client.ID).Str("session_id", client.SessionID).Msg("Client disconnected")

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.sessions[event.sessionID] {
				select {
				case client.Send <- event.data:
				default:
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *WebSocketHub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *WebSocketHub) removeLocked(client *Client) {
	clients, ok := h.sessions[client.SessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.sessions, client.SessionID)
	}
}

// Publish queues a snapshot for the session's connections. Events are
// dropped when the hub is backed up or stopped.
func (h *WebSocketHub) Publish(sessionID string, snap session.Snapshot) {
	data, err := wshandler.Encode(wshandler.TypeSnapshot, snap)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to encode snapshot")
		return
	}
	select {
	case h.broadcast <- sessionEvent{sessionID: sessionID, data: data}:
	default:
		h.log.Warn().Str("session_id", sessionID).Msg("WebSocket hub busy, snapshot dropped")
	}
}

// HandleWebSocket upgrades the connection and streams the session's
// snapshots, starting with the current one.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request, sessionID string, handler *wshandler.Handler) {
	initial, err := handler.Snapshot(r.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load snapshot")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &Client{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Hub:       h,
		Conn:      conn,
		Send:      make(chan []byte, 256),
	}
	client.Send <- initial

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump(handler)
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.sessions {
		n += len(clients)
	}
	return n
}

func (c *Client) readPump(handler *wshandler.Handler) {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}

		// Parse message
		var msg WebSocketMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.log.Error().Err(err).Msg("Failed to parse WebSocket message")
			continue
		}

		// Handle message
		response, err := handler.Handle(context.Background(), c.SessionID, msg.Type, msg.Payload)
		if err != nil {
			c.Hub.log.Error().Err(err).Str("type", msg.Type).Msg("Failed to handle message")
			continue
		}

		if response != nil {
			c.Hub.mu.RLock()
			if c.Hub.sessions[c.SessionID][c] {
				select {
				case c.Send <- response:
				default:
				}
			}
			c.Hub.mu.RUnlock()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
