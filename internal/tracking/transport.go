package tracking

import (
	"context"

	"convoy/internal/models"
)

// Transport pushes events to live client connections.
type Transport interface {
	SendToConnection(connID, event string, payload interface{}) error
	CloseConnection(connID, reason string) error
}

// RoomDirectory resolves room metadata owned by the room-management service.
type RoomDirectory interface {
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
}

// StateMirror copies ephemeral room state to an external store so REST
// readers and other processes can see it. Failures never affect the hub.
type StateMirror interface {
	SaveMemberLocation(ctx context.Context, code string, member MemberView) error
	RemoveMember(ctx context.Context, code, identity string) error
	SaveHazard(ctx context.Context, code string, hazard models.Hazard) error
	Purge(ctx context.Context, code string) error
}

type nopMirror struct{}

func (nopMirror) SaveMemberLocation(context.Context, string, MemberView) error { return nil }
func (nopMirror) RemoveMember(context.Context, string, string) error           { return nil }
func (nopMirror) SaveHazard(context.Context, string, models.Hazard) error      { return nil }
func (nopMirror) Purge(context.Context, string) error                          { return nil }
