package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"convoy/pkg/logger"
)

// Router receives decoded client events. Implementations must not block on
// network I/O: they run on the connection's read goroutine.
type Router interface {
	Dispatch(ctx context.Context, connID string, principal Principal, eventType string, data json.RawMessage)
	Disconnect(connID string)
}

type Config struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	SendBufferSize    int
	MessagesPerSecond float64
	MessageBurst      int
	MaxConnections    int
	EnableCompression bool
	AllowedOrigins    []string
}

func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		HandshakeTimeout:  10 * time.Second,
		PingInterval:      54 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    4096,
		SendBufferSize:    256,
		MessagesPerSecond: 20,
		MessageBurst:      40,
		MaxConnections:    10000,
		AllowedOrigins:    []string{"*"},
	}
}

// Hub owns the live socket connections keyed by connection id and delivers
// outbound events to them. Room semantics live in the router.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex

	router Router
	config *Config
	log    *logger.Logger
}

func NewHub(config *Config, log *logger.Logger) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     config,
		log:        log,
	}
}

// SetRouter must be called before Run.
func (h *Hub) SetRouter(router Router) {
	h.router = router
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(ctx, client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) registerClient(ctx context.Context, client *Client) {
	h.mutex.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mutex.Unlock()

	h.log.WithConnection(client.ID).WithFields(map[string]interface{}{
		"user_id":     client.Principal.UserID,
		"connections": count,
	}).Debug("Client registered")

	go client.writePump()
	go client.readPump(ctx)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.ID]
	if ok && current == client {
		delete(h.clients, client.ID)
		close(client.send)
	}
	h.mutex.Unlock()

	if !ok || current != client {
		return
	}

	h.log.WithConnection(client.ID).Debug("Client unregistered")

	if h.router != nil {
		h.router.Disconnect(client.ID)
	}
}

func (h *Hub) shutdown() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for id, client := range h.clients {
		client.closeWithReason(websocket.CloseGoingAway, "server shutting down")
		close(client.send)
		delete(h.clients, id)
	}
}

// leave hands a finished client back to Run. It gives up once Run has exited.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// SendToConnection queues one event for a connection without blocking. A
// connection whose buffer is full is closed.
func (h *Hub) SendToConnection(connID, event string, payload interface{}) error {
	data, err := encodeEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, ok := h.clients[connID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}

	select {
	case client.send <- data:
		return nil
	default:
		go client.closeWithReason(websocket.ClosePolicyViolation, "send buffer full")
		return fmt.Errorf("%w: %s", ErrSendBufferFull, connID)
	}
}

// CloseConnection sends a close frame carrying reason and drops the socket.
func (h *Hub) CloseConnection(connID, reason string) error {
	h.mutex.RLock()
	client, ok := h.clients[connID]
	h.mutex.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}

	client.closeWithReason(websocket.CloseNormalClosure, reason)
	return nil
}

func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
