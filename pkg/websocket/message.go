package websocket

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSendBufferFull     = errors.New("send buffer full")
)

// Message is the inbound envelope a client writes.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Envelope is the outbound frame pushed to clients.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Principal is the authenticated caller bound to a connection at upgrade.
type Principal struct {
	UserID      string
	DisplayName string
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeEnvelope(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      event,
		Data:      payload,
		Timestamp: getCurrentTimestamp(),
	})
}

func getCurrentTimestamp() int64 {
	return time.Now().UnixMilli()
}
