package services

import (
	"context"
	"encoding/json"
	"errors"

	"convoy/internal/utils"
	"convoy/pkg/cache"
	"convoy/pkg/logger"
)

// RoomDeletionHandler tears down live state for a deleted room.
type RoomDeletionHandler interface {
	DeleteRoom(ctx context.Context, roomCode, roomID string)
}

// RoomDeletionFunc adapts a function to RoomDeletionHandler.
type RoomDeletionFunc func(ctx context.Context, roomCode, roomID string)

func (f RoomDeletionFunc) DeleteRoom(ctx context.Context, roomCode, roomID string) {
	f(ctx, roomCode, roomID)
}

// DeletionNotifier announces that a room was deleted.
type DeletionNotifier interface {
	NotifyRoomDeleted(ctx context.Context, roomCode, roomID string) error
}

// RoomDeletedMessage travels on the rooms:deleted channel.
type RoomDeletedMessage struct {
	RoomCode string `json:"roomCode"`
	RoomID   string `json:"roomId"`
}

type directDeletionNotifier struct {
	handler RoomDeletionHandler
}

// NewDirectDeletionNotifier calls the in-process hub.
func NewDirectDeletionNotifier(handler RoomDeletionHandler) DeletionNotifier {
	return &directDeletionNotifier{handler: handler}
}

func (n *directDeletionNotifier) NotifyRoomDeleted(ctx context.Context, roomCode, roomID string) error {
	n.handler.DeleteRoom(ctx, roomCode, roomID)
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

type redisDeletionNotifier struct {
	publisher Publisher
}

// NewRedisDeletionNotifier publishes deletions so every server instance
// subscribed with ListenRoomDeletions tears the room down.
func NewRedisDeletionNotifier(publisher Publisher) DeletionNotifier {
	return &redisDeletionNotifier{publisher: publisher}
}

func (n *redisDeletionNotifier) NotifyRoomDeleted(ctx context.Context, roomCode, roomID string) error {
	return n.publisher.Publish(ctx, utils.RoomDeletedChannel, RoomDeletedMessage{
		RoomCode: roomCode,
		RoomID:   roomID,
	})
}

// ListenRoomDeletions forwards rooms:deleted messages to handler until ctx
// is cancelled.
func ListenRoomDeletions(ctx context.Context, redisCache *cache.RedisCache, handler RoomDeletionHandler, log *logger.Logger) {
	sub := redisCache.Subscribe(ctx, utils.RoomDeletedChannel)
	defer sub.Close()

	log.WithField("channel", utils.RoomDeletedChannel).Info("Listening for room deletions")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := handleRoomDeleted(ctx, []byte(msg.Payload), handler); err != nil {
				log.WithError(err).Warn("Ignoring malformed room deletion message")
			}
		}
	}
}

func handleRoomDeleted(ctx context.Context, payload []byte, handler RoomDeletionHandler) error {
	var msg RoomDeletedMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	if msg.RoomCode == "" {
		return errors.New("room deletion message without room code")
	}
	handler.DeleteRoom(ctx, msg.RoomCode, msg.RoomID)
	return nil
}
