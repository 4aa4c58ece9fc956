package models

import (
	"time"
)

// Coords is a WGS84 position as sent by clients.
type Coords struct {
	Lat float64 `json:"lat" bson:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" bson:"lng" validate:"min=-180,max=180"`
}

// Place is a route endpoint of a room. Coordinates are optional; when only an
// address is given the room service tries to geocode it.
type Place struct {
	Address string  `json:"address" bson:"address" validate:"omitempty,max=255"`
	Coords  *Coords `json:"coords,omitempty" bson:"coords,omitempty" validate:"omitempty"`
	PlaceID string  `json:"place_id,omitempty" bson:"place_id,omitempty"`
}

// TrailPoint is one entry of a member's recent path.
type TrailPoint struct {
	Coords    Coords    `json:"coords"`
	Timestamp time.Time `json:"timestamp"`
}
