// internal/handler/events_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/controller"
	"github.com/HugoP8/whazaaa/internal/logger"
	"github.com/HugoP8/whazaaa/internal/notify"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBacklog = 64
)

// EventsHandler streams a user's notification topics over a websocket.
// Every frame is a JSON notify.Envelope.
type EventsHandler struct {
	Hub *notify.Hub
	// AllowedOrigin is matched against the Origin header; "*" or empty
	// accepts any origin.
	AllowedOrigin string

	upgrader websocket.Upgrader
}

func NewEventsHandler(hub *notify.Hub, allowedOrigin string) *EventsHandler {
	h := &EventsHandler{Hub: hub, AllowedOrigin: allowedOrigin}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *EventsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return h.AllowedOrigin == "" || h.AllowedOrigin == "*" || origin == "" || origin == h.AllowedOrigin
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := controller.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warn("websocket upgrade failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	send := make(chan []byte, sendBacklog)
	done := make(chan struct{})

	onEvent := func(topic string, payload any) {
		frame, err := notify.Encode(topic, payload)
		if err != nil {
			logger.Error("❌ failed to encode event", zap.String("topic", topic), zap.Error(err))
			return
		}
		select {
		case send <- frame:
		case <-done:
		default:
			logger.Warn("⚠️ websocket backlog full, dropping event",
				zap.Int64("user_id", userID),
				zap.String("topic", topic),
			)
		}
	}

	topics := notify.UserTopics(userID)
	ids := make([]string, len(topics))
	for i, topic := range topics {
		ids[i] = h.Hub.Subscribe(topic, onEvent)
	}
	logger.Info("🔔 events client connected", zap.Int64("user_id", userID))

	go h.writeLoop(conn, send, done)
	h.readLoop(conn)

	close(done)
	for i, topic := range topics {
		h.Hub.Unsubscribe(topic, ids[i])
	}
	conn.Close()
	logger.Info("events client disconnected", zap.Int64("user_id", userID))
}

// readLoop only services control frames; clients have nothing to say.
func (h *EventsHandler) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventsHandler) writeLoop(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
