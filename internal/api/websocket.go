package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/client"
	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub tracks websocket subscribers and pushes analysis events to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every subscriber. Slow subscribers whose
// buffer is full miss the event.
func (h *Hub) Broadcast(eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("Failed to marshal websocket event", zap.String("type", eventType), zap.Error(err))
		return
	}
	msg, err := json.Marshal(client.Event{Type: eventType, Data: payload})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Websocket subscriber too slow, dropping event", zap.String("type", eventType))
		}
	}
}

// CloseAll disconnects every subscriber, e.g. on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WebSocketConnections.Inc()
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		metrics.WebSocketConnections.Dec()
	}
	h.mu.Unlock()
}

// ServeWS upgrades the request and runs the subscriber until it goes away.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &wsClient{
		conn: conn,
		send: make(chan []byte, constants.WebSocketConfig.SendBufferSize),
	}
	h.register(cl)
	h.logger.Debug("Websocket subscriber connected", zap.Int("active", h.Count()))

	go h.writePump(cl)
	h.readPump(cl)
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.WebSocketConfig.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketConfig.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketConfig.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Websocket read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketConfig.PongWait))

		reply := h.handleClientMessage(data)
		msg, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *Hub) handleClientMessage(data []byte) client.Event {
	var in client.Event
	if err := json.Unmarshal(data, &in); err != nil {
		return client.Event{Type: client.EventError, Message: "invalid JSON"}
	}
	switch in.Type {
	case client.EventPing:
		return client.Event{Type: client.EventPong}
	case client.EventGetStatus:
		return client.Event{Type: client.EventStatus, ActiveConnections: h.Count()}
	default:
		return client.Event{Type: client.EventError, Message: "Unknown message type: " + in.Type}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(constants.WebSocketConfig.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketConfig.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketConfig.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
