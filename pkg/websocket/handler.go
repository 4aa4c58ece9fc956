package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    hub.config.ReadBufferSize,
			WriteBufferSize:   hub.config.WriteBufferSize,
			HandshakeTimeout:  hub.config.HandshakeTimeout,
			EnableCompression: hub.config.EnableCompression,
			CheckOrigin:       originChecker(hub.config.AllowedOrigins),
		},
	}
}

// HandleWebSocket upgrades an authenticated request. The auth middleware
// stores user_id and display_name in the gin context.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if max := h.hub.config.MaxConnections; max > 0 && h.hub.ConnectionCount() >= max {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many connections"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, Principal{
		UserID:      userID,
		DisplayName: c.GetString("display_name"),
	})

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
	}
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
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
