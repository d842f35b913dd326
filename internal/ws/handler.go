package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gw "github.com/gorilla/websocket"
)

type Conn = gw.Conn

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusSource reports the latest recorded notify status for an intent, so
// a freshly connected client sees where the payment stands.
type StatusSource interface {
	LatestStatus(ctx context.Context, intentID string) (string, error)
}

type Handler struct {
	hub    *Hub
	status StatusSource
	logger *slog.Logger
}

func NewHandler(hub *Hub, status StatusSource, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, status: status, logger: logger}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	intentID := r.PathValue("intentID")
	if intentID == "" || !strings.HasPrefix(intentID, "pi_") {
		http.Error(w, "invalid payment intent id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:      h.hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		intentID: intentID,
	}

	client.hub.register <- client
	go client.writePump()
	go client.readPump()

	status, err := h.status.LatestStatus(r.Context(), intentID)
	if err != nil {
		h.logger.Warn("latest status lookup failed", "intent_id", intentID, "err", err)
		return
	}
	if status == "" {
		return
	}

	upd := PaymentUpdate{PaymentIntentID: intentID, Status: status}
	if b, err := json.Marshal(upd); err == nil {
		select {
		case client.send <- b:
		case <-time.After(1 * time.Second):
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
			return
		}
	}
}
