package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"proof-host/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler streams task status events to websocket clients
type WebSocketHandler struct {
	feed     *services.StatusFeed
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(feed *services.StatusFeed, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		feed:   feed,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// WatchMessage narrows the feed to the listed task keys; an empty list
// subscribes to every task.
type WatchMessage struct {
	Action   string   `json:"action"` // "watch" | "ping"
	TaskKeys []string `json:"task_keys,omitempty"`
}

// HandleWebSocket serves one feed connection
// GET /v3/proof/ws?task_keys=0xabc,0xdef
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	client := h.feed.Register()
	defer h.feed.Unregister(client.ID)
	if raw := c.Query("task_keys"); raw != "" {
		client.Watch(strings.Split(raw, ",")...)
	}

	entry := h.logger.WithFields(logrus.Fields{"component": "status_feed", "client_id": client.ID})
	entry.Info("📡 WebSocket client connected")

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(gin.H{"type": "connected", "client_id": client.ID, "timestamp": time.Now()}); err != nil {
		return
	}

	pongChan := make(chan struct{}, 4)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					entry.WithError(err).Debug("WebSocket read ended")
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if messageType != websocket.TextMessage {
				continue
			}
			var msg WatchMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				entry.WithError(err).Debug("Ignoring malformed client message")
				continue
			}
			switch msg.Action {
			case "watch":
				client.Watch(msg.TaskKeys...)
			case "ping":
				select {
				case pongChan <- struct{}{}:
				default:
				}
			}
		}
	}()

	// all writes happen on this goroutine
	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()
	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				entry.WithError(err).Warn("❌ WebSocket write failed")
				return
			}
		case <-pongChan:
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteJSON(gin.H{"type": "pong", "timestamp": time.Now()}); err != nil {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			entry.Info("🔌 WebSocket client disconnected")
			return
		}
	}
}
