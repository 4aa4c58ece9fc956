package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type Client struct {
	ID        string
	Principal Principal

	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	limiter   *rate.Limiter
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, principal Principal) *Client {
	return &Client{
		ID:        uuid.NewString(),
		Principal: principal,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, hub.config.SendBufferSize),
		limiter:   rate.NewLimiter(rate.Limit(hub.config.MessagesPerSecond), hub.config.MessageBurst),
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	pongWait := c.hub.config.PongTimeout

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.WithConnection(c.ID).WithError(err).Warn("WebSocket read error")
			}
			break
		}

		c.handleMessage(ctx, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	writeWait := c.hub.config.WriteTimeout
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per envelope; clients parse each frame as a single JSON document.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				queued, ok := <-c.send
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, message []byte) {
	if !c.limiter.Allow() {
		c.hub.SendToConnection(c.ID, "error", ErrorPayload{
			Code:    "RATE_LIMITED",
			Message: "too many messages",
		})
		return
	}

	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
		c.hub.SendToConnection(c.ID, "error", ErrorPayload{
			Code:    "BAD_REQUEST",
			Message: "malformed message",
		})
		return
	}

	if c.hub.router == nil {
		return
	}
	c.hub.router.Dispatch(ctx, c.ID, c.Principal, msg.Type, msg.Data)
}

// closeWithReason is safe to call from any goroutine.
func (c *Client) closeWithReason(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.hub.config.WriteTimeout)
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.conn.Close()
	})
}
