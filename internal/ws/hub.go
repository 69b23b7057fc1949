package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dartcam/internal/logger"
	"dartcam/internal/pipeline"
)

const writeWait = 10 * time.Second

// Hub manages WebSocket connections for real-time hit streaming
type Hub struct {
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex

	// writeMu serialises writes; gorilla connections allow one writer.
	writeMu sync.Mutex
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]bool)}
}

// Register adds a connection
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	n := len(h.clients)
	h.mu.Unlock()
	logger.Debug(logger.Fields{"remote": conn.RemoteAddr().String(), "clients": n}, "[WS] client registered")
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		logger.Debug(logger.Fields{"remote": conn.RemoteAddr().String()}, "[WS] client unregistered")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a text message to every client, dropping clients that fail.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logger.Warn(logger.Fields{"error": err.Error()}, "[WS] send failed, dropping client")
			h.Unregister(conn)
			conn.Close()
		}
	}
}

// BroadcastEvent encodes ev and sends it to every client.
func (h *Hub) BroadcastEvent(ev pipeline.Event) {
	if h.ClientCount() == 0 {
		return
	}
	msg := NewMessage(ev)
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error(logger.Fields{"error": err.Error()}, "[WS] failed to marshal message")
		return
	}
	h.Broadcast(data)
}

// ping writes a ping control frame under the write lock.
func (h *Hub) ping(conn *websocket.Conn) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// Attach forwards bus events to clients until the returned function is called.
func (h *Hub) Attach(bus *pipeline.EventBus) func() {
	ch, unsub := bus.SubscribeChannel(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			h.BroadcastEvent(ev)
		}
	}()
	return func() {
		unsub()
		<-done
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.clients
	h.clients = make(map[*websocket.Conn]bool)
	h.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
		conn.Close()
	}
}
