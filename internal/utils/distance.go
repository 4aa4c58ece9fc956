package utils

import (
	"math"

	"convoy/internal/models"
)

// DistanceMeters returns the great-circle distance between two positions.
func DistanceMeters(a, b models.Coords) float64 {
	return haversineDistance(a.Lat, a.Lng, b.Lat, b.Lng) * 1000
}

func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	// Convert to radians
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	// Distance in kilometers
	return EarthRadiusKM * c
}

// IsWithinGeofence reports whether point lies inside the circle of
// radiusMeters around center. The boundary counts as inside.
func IsWithinGeofence(center, point models.Coords, radiusMeters float64) bool {
	return DistanceMeters(center, point) <= radiusMeters
}

// Offset moves a position by the given meters north and east. It is accurate
// enough for the short distances used in room geofences.
func Offset(from models.Coords, northMeters, eastMeters float64) models.Coords {
	dLat := northMeters / (EarthRadiusKM * 1000) * 180 / math.Pi
	dLng := eastMeters / (EarthRadiusKM * 1000 * math.Cos(from.Lat*math.Pi/180)) * 180 / math.Pi
	return models.Coords{Lat: from.Lat + dLat, Lng: from.Lng + dLng}
}
