package tracking

import (
	"convoy/internal/models"
)

// Inbound events.
const (
	EventJoinRoom           = "join-room"
	EventLocationUpdate     = "location-update"
	EventChatMessage        = "chat-message"
	EventAddHazard          = "add-hazard"
	EventStationaryResponse = "stationary-response"
	EventClearSOS           = "clear-sos"
	EventLeaveRoom          = "leave-room"
	EventBatteryUpdate      = "battery-update"
)

// Outbound events. location-update and battery-update reuse the inbound names.
const (
	EventRoomUsers             = "room-users"
	EventUserJoined            = "user-joined"
	EventUserLeft              = "user-left"
	EventAnomalyAlert          = "anomaly-alert"
	EventRoomMessage           = "room-message"
	EventUserStationary        = "user-stationary"
	EventUserStationaryCleared = "user-stationary-cleared"
	EventStationaryConfirm     = "stationary-confirm"
	EventUserSOS               = "user-sos"
	EventUserSOSCleared        = "user-sos-cleared"
	EventHazardAdded           = "hazard-added"
	EventRoomDeleted           = "room-deleted"
	EventRoomSnapshot          = "room-snapshot"
	EventError                 = "error"
	EventSessionReplaced       = "session-replaced"
)

const systemSender = "system"

// Inbound payloads.

type JoinRoomPayload struct {
	RoomCode string `json:"roomCode" validate:"required,room_code"`
	Username string `json:"username" validate:"omitempty,max=64"`
	UserID   string `json:"userId"`
}

type LocationUpdatePayload struct {
	RoomCode  string         `json:"roomCode" validate:"required"`
	Coords    *models.Coords `json:"coords" validate:"required"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

type ChatMessagePayload struct {
	RoomCode string          `json:"roomCode" validate:"required"`
	Message  ChatMessageBody `json:"message"`
}

type ChatMessageBody struct {
	Type    models.MessageType `json:"type" validate:"message_type"`
	Content string             `json:"content" validate:"max=1000"`
}

type AddHazardPayload struct {
	RoomID   string            `json:"roomId" validate:"required"`
	Type     models.HazardType `json:"type" validate:"required,hazard_type"`
	Lat      float64           `json:"lat" validate:"min=-90,max=90"`
	Lon      float64           `json:"lon" validate:"min=-180,max=180"`
	UserName string            `json:"userName" validate:"omitempty,max=64"`
}

type StationaryResponsePayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
	Response string `json:"response" validate:"required"`
}

type RoomCodePayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

type BatteryUpdatePayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
	Level    int    `json:"level" validate:"min=0,max=100"`
	Charging bool   `json:"charging"`
}

// Outbound payloads.

type RosterEntry struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
	UserID       string `json:"userId"`
}

type MemberRef struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
	UserID       string `json:"userId"`
}

type LocationBroadcast struct {
	MemberRef
	Coords models.Coords `json:"coords"`
}

type AnomalyAlertPayload struct {
	MemberRef
	Type     AlertKind      `json:"type"`
	Coords   *models.Coords `json:"coords,omitempty"`
	Distance float64        `json:"distance"`
	Limit    float64        `json:"limit"`
}

type UserStationaryPayload struct {
	MemberRef
	Since int64 `json:"since"`
}

type StationaryConfirmPayload struct {
	Message   string `json:"message"`
	TimeoutMs int64  `json:"timeoutMs"`
}

type SOSPayload struct {
	MemberRef
	Reason models.SOSReason `json:"reason"`
	Coords *models.Coords   `json:"coords,omitempty"`
}

type RoomDeletedPayload struct {
	RoomID   string `json:"roomId"`
	RoomCode string `json:"roomCode"`
}

type RoomSnapshotPayload struct {
	RoomCode string          `json:"roomCode"`
	Geofence models.Geofence `json:"geofence"`
	Members  []MemberView    `json:"members"`
	Hazards  []models.Hazard `json:"hazards"`
}

type BatteryBroadcast struct {
	MemberRef
	Level    int  `json:"level"`
	Charging bool `json:"charging"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SessionReplacedPayload struct {
	Reason string `json:"reason"`
}

func refOf(m *Member) MemberRef {
	return MemberRef{
		ConnectionID: m.ConnectionID,
		Username:     m.DisplayName,
		UserID:       m.Identity,
	}
}
