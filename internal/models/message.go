package models

type MessageType string

const (
	MessageTypeChat    MessageType = "chat"
	MessageTypeSOS     MessageType = "sos"
	MessageTypeWarning MessageType = "warning"
	MessageTypeInfo    MessageType = "info"
	MessageTypeHazard  MessageType = "hazard"
)

// MessageBody is the timeline entry carried by a room-message event.
type MessageBody struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Sender    string      `json:"sender"`
	Timestamp int64       `json:"timestamp"`
}

type RoomMessage struct {
	From    string      `json:"from"`
	Message MessageBody `json:"message"`
}
