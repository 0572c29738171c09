package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Shugur-Network/dmsync/internal/errors"
	"github.com/Shugur-Network/dmsync/internal/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 8
)

// SyncEvent is pushed to websocket clients after every completed sync.
type SyncEvent struct {
	Type          string    `json:"type"`
	At            time.Time `json:"at"`
	Conversations int       `json:"conversations"`
	Messages      int       `json:"messages"`
	Unread        int       `json:"unread"`
	LimitReached  bool      `json:"limit_reached"`
}

// Hub fans sync notifications out to websocket clients. Clients only
// listen; anything they send is discarded.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
		logger:  logger.Named("hub"),
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// NotifySynced broadcasts a summary of snap. Clients whose buffer is full
// are disconnected.
func (h *Hub) NotifySynced(snap *models.Snapshot) {
	if snap == nil {
		return
	}
	evt := SyncEvent{
		Type:          "synced",
		At:            h.now(),
		Conversations: len(snap.Conversations),
		Messages:      snap.MessageCount(),
		LimitReached:  snap.SyncState.QueryLimitReached,
	}
	for _, c := range snap.Conversations {
		if c.Unread() {
			evt.Unread++
		}
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Failed to encode sync event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Debug("Dropping slow websocket client", zap.String("client", c.ws.RemoteAddr().String()))
			delete(h.clients, c)
			c.close()
		}
	}
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		h.logger.Debug("Websocket upgrade failed", zap.Error(errors.WebSocketError("upgrade", err)))
		return nil
	}
	c := &client{ws: ws, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Websocket read failed", zap.Error(errors.WebSocketError("read", err)))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
