package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"convoy/internal/validators"
	"convoy/pkg/websocket"
)

// Dispatch decodes one client event, validates it and routes it to the
// matching hub operation. Every error stops here: validation and auth
// failures are logged and dropped, a missing room is reported to the caller.
func (h *Hub) Dispatch(ctx context.Context, connID string, principal websocket.Principal, eventType string, data json.RawMessage) {
	err := h.route(ctx, connID, principal, eventType, data)
	if err == nil {
		return
	}

	log := h.log.WithConnection(connID).WithField("event", eventType).WithError(err)

	switch {
	case errors.Is(err, ErrNotFound):
		log.Info("Event referenced an unknown room or member")
		h.reply(connID, "NOT_FOUND", err)
	case errors.Is(err, ErrValidation):
		log.Debug("Dropped invalid event")
	case errors.Is(err, ErrUnauthorized):
		log.Warn("Dropped event from unauthenticated connection")
	case errors.Is(err, ErrConflict):
		log.Debug("Dropped conflicting event")
	default:
		log.Error("Failed to handle event")
		h.reply(connID, "INTERNAL_ERROR", errors.New("request could not be processed"))
	}
}

func (h *Hub) reply(connID, code string, err error) {
	if sendErr := h.transport.SendToConnection(connID, EventError, ErrorPayload{
		Code:    code,
		Message: err.Error(),
	}); sendErr != nil {
		h.log.LogDeliveryFailure(connID, EventError, sendErr)
	}
}

func (h *Hub) route(ctx context.Context, connID string, principal websocket.Principal, eventType string, data json.RawMessage) error {
	switch eventType {
	case EventJoinRoom:
		var p JoinRoomPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		if principal.UserID == "" {
			return fmt.Errorf("%w: connection has no identity", ErrUnauthorized)
		}
		if p.UserID != "" && p.UserID != principal.UserID {
			h.log.WithConnection(connID).WithIdentity(principal.UserID).Warn("Ignoring userId that differs from the authenticated identity")
		}
		name := p.Username
		if name == "" {
			name = principal.DisplayName
		}
		return h.Join(ctx, connID, principal.UserID, name, validators.NormalizeRoomCode(p.RoomCode))

	case EventLocationUpdate:
		var p LocationUpdatePayload
		if err := decode(data, &p); err != nil {
			return err
		}
		var sampleAt time.Time
		if p.Timestamp > 0 {
			sampleAt = time.UnixMilli(p.Timestamp)
		}
		return h.LocationUpdate(ctx, connID, validators.NormalizeRoomCode(p.RoomCode), p.Coords, sampleAt)

	case EventChatMessage:
		var p ChatMessagePayload
		if err := decode(data, &p); err != nil {
			return err
		}
		return h.ChatMessage(ctx, connID, validators.NormalizeRoomCode(p.RoomCode), p.Message.Type, p.Message.Content)

	case EventAddHazard:
		var p AddHazardPayload
		if err := decode(data, &p); err != nil {
			return err
		}
		_, err := h.AddHazard(ctx, connID, validators.NormalizeRoomCode(p.RoomID), p.Type, p.Lat, p.Lon, p.UserName)
		return err

	case EventStationaryResponse:
		var p StationaryResponsePayload
		if err := decode(data, &p); err != nil {
			return err
		}
		return h.StationaryResponse(ctx, connID, validators.NormalizeRoomCode(p.RoomCode), p.Response)

	case EventClearSOS:
		var p RoomCodePayload
		if err := decode(data, &p); err != nil {
			return err
		}
		return h.ClearSOS(ctx, connID, validators.NormalizeRoomCode(p.RoomCode))

	case EventLeaveRoom:
		var p RoomCodePayload
		if err := decode(data, &p); err != nil {
			return err
		}
		return h.LeaveRoom(ctx, connID, validators.NormalizeRoomCode(p.RoomCode))

	case EventBatteryUpdate:
		var p BatteryUpdatePayload
		if err := decode(data, &p); err != nil {
			return err
		}
		return h.BatteryUpdate(ctx, connID, validators.NormalizeRoomCode(p.RoomCode), p.Level, p.Charging)

	default:
		return fmt.Errorf("%w: unknown event %q", ErrValidation, eventType)
	}
}

func decode(data json.RawMessage, dest interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing payload", ErrValidation)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if errs := validators.ValidateStruct(dest); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, errs.Error())
	}
	return nil
}
