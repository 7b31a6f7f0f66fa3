package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Authenticator resolves the ?token= query parameter into an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// Authorizer is the tenant and permission gate applied to every delivery.
type Authorizer interface {
	Authorize(ctx context.Context, actor service.Actor, scope service.Scope, required ...permission.Name) error
}

// Message is the frame pushed to clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	At    time.Time   `json:"at"`
}

// event is an encoded frame plus what a client needs to be allowed to see it.
type event struct {
	name  string
	scope service.Scope
	raw   []byte
}

// Client represents a single connected WebSocket client
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan *event
	actor service.Actor
}

// Hub fans committed domain events out to the connected clients allowed to
// read them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	authz      Authorizer
	logger     *zap.Logger
}

// NewHub builds a hub; allowedOrigins empty accepts any origin. Without an
// authorizer only superusers receive events.
func NewHub(logger *zap.Logger, allowedOrigins []string, authz Authorizer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *event, sendBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		authz:      authz,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Run dispatches registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("websocket client connected", zap.String("user_id", client.actor.ID.String()))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Debug("websocket client disconnected", zap.String("user_id", client.actor.ID.String()))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Publish queues an event for broadcast. It never blocks the caller;
// events are dropped when the queue is full.
func (h *Hub) Publish(name string, scope service.Scope, payload interface{}) {
	raw, err := json.Marshal(Message{Event: name, Data: payload, At: time.Now().UTC()})
	if err != nil {
		h.logger.Warn("failed to encode websocket event", zap.String("event", name), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &event{name: name, scope: scope, raw: raw}:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping event", zap.String("event", name))
	}
}

// allowed runs the same scope and read-permission check as the HTTP API.
// It is called from the client's own write goroutine so lookups never
// stall the hub loop.
func (h *Hub) allowed(actor service.Actor, ev *event) bool {
	if actor.IsSuperuser {
		return true
	}
	required, known := service.EventPermission(ev.name)
	if h.authz == nil || !known {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := h.authz.Authorize(ctx, actor, ev.scope, required); err != nil {
		h.logger.Debug("websocket event withheld",
			zap.String("event", ev.name),
			zap.String("user_id", actor.ID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

// writePump writes the events this client may see, one frame each.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.hub.allowed(c.actor, ev) {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, ev.raw); err != nil {
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

// readPump only drains control frames; clients do not send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
	}
}

// ServeWs authenticates the ?token= parameter and upgrades the connection.
func (h *Hub) ServeWs(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.logger.Info("websocket connection rejected", zap.Error(err))
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{hub: h, conn: conn, send: make(chan *event, sendBufferSize), actor: service.ActorFromUser(user)}
		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
