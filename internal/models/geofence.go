package models

// Geofence is the circular area anchored at the room creator. Center is nil
// until the creator has reported a position.
type Geofence struct {
	Center       *Coords `json:"center,omitempty"`
	RadiusMeters float64 `json:"radiusMeters"`
}
