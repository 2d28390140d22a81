package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"ispmanager/internal/authz"
	"ispmanager/internal/model"
	"ispmanager/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventAccessChanged tells clients to refetch /api/auth/me
const EventAccessChanged = "access_changed"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins; CORS already restricts browser callers of the API
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the JSON frame pushed to clients
type Event struct {
	Type    string `json:"type"`
	UserIDs []uint `json:"user_ids"`
}

// Client represents a single connected WebSocket client
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uint
	Admin  bool
}

// wants reports whether the client should see an event. Admins see every
// change; other users only changes to their own access.
func (c *Client) wants(e Event) bool {
	if c.Admin {
		return true
	}
	for _, id := range e.UserIDs {
		if id == c.UserID {
			return true
		}
	}
	return false
}

// Hub maintains the set of active clients and fans events out to them
type Hub struct {
	clients    map[*Client]bool
	events     chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	log        *zap.Logger
}

// NewHub initializes a new WS Hub instance
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		events:     make(chan Event, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Run starts the core dispatch loop for WebSocket events
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("websocket client connected", zap.Uint("user_id", client.UserID))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Debug("websocket client disconnected", zap.Uint("user_id", client.UserID))
			}
			h.mu.Unlock()
		case e := <-h.events:
			h.dispatch(e)
		}
	}
}

func (h *Hub) dispatch(e Event) {
	message, err := json.Marshal(e)
	if err != nil {
		h.log.Error("failed to encode websocket event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.wants(e) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			close(client.Send)
			delete(h.clients, client)
		}
	}
}

// AccessChanged queues an event for the users whose grants changed. It never
// blocks the writer; when the queue is full the event is dropped.
func (h *Hub) AccessChanged(userIDs []uint) {
	e := Event{Type: EventAccessChanged, UserIDs: append([]uint(nil), userIDs...)}
	select {
	case h.events <- e:
	default:
		h.log.Warn("websocket event queue full, dropping event", zap.Uints("user_ids", userIDs))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump keeps the connection alive and unregisters the client on close
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read failed", zap.Uint("user_id", c.UserID), zap.Error(err))
			}
			break
		}
	}
}

// ServeWs authenticates the token query param and upgrades the connection.
// Browsers cannot set headers on a websocket handshake.
func ServeWs(hub *Hub, c *gin.Context, auth service.AuthService) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	p, err := auth.Authenticate(c.Request.Context(), tokenString)
	if err != nil {
		hub.log.Info("websocket connection rejected", zap.Error(err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: p.UserID,
		Admin:  authz.RequireRole(p, model.RoleAdmin).Allowed,
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
