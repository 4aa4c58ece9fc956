package utils

import "time"

// Application Constants
const (
	AppName    = "Convoy"
	AppVersion = "1.0.0"

	// Authentication
	JWTAccessTokenTTL = 24 * time.Hour

	// Rooms
	RoomCodeLength        = 6
	RoomCodeMaxAttempts   = 5
	MaxChatMessageLength  = 1000
	ExternalCallTimeout   = 2 * time.Second
	RoomDeletedChannel    = "rooms:deleted"
	LowBatteryWarningText = "battery is low"
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrNotFound         = "not found"
	ErrConflict         = "conflict"
	ErrValidationFailed = "validation failed"
)

// Cache Keys
const (
	CacheRoomPrefix     = "room:"
	CacheRoomLocations  = ":locations"
	CacheRoomHazards    = ":hazards"
	CacheRoomMetaSuffix = ":meta"
)

// Geographic Constants
const (
	EarthRadiusKM = 6371.0
)
