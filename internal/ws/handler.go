package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"dartcam/internal/logger"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The tablet UI is served from a different origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades requests on /ws/hits and registers them with the hub
type Handler struct {
	hub *Hub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(logger.Fields{"remote": r.RemoteAddr, "error": err.Error()}, "[WS] upgrade failed")
		return
	}

	h.hub.Register(conn)
	go h.readPump(conn)
}

// readPump keeps the connection alive and notices disconnects. Clients are
// not expected to send anything.
func (h *Handler) readPump(conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := h.hub.ping(conn); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug(logger.Fields{"error": err.Error()}, "[WS] read error")
			}
			return
		}
	}
}
