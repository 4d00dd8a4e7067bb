package websocket

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	hub *Hub
}

// NewHandler starts the hub; it stops when ctx is done.
func NewHandler(ctx context.Context, hub *Hub) *Handler {
	go hub.Run(ctx)

	return &Handler{
		hub: hub,
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	clientID := c.GetString("request_id")
	if userID := c.GetString("user_id"); userID != "" {
		clientID = fmt.Sprintf("%s/%s", userID, clientID)
	}

	client := NewClient(h.hub, conn, clientID)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Handler) Publish(topic, eventType string, data interface{}) {
	h.hub.Publish(topic, eventType, data)
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
