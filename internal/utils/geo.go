package utils

import (
	"fmt"

	"convoy/internal/models"
)

func FormatCoords(c models.Coords) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

func IsValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// GroupCenter is the arithmetic mean of the given positions. The boolean is
// false when there is nothing to average.
func GroupCenter(points []models.Coords) (models.Coords, bool) {
	if len(points) == 0 {
		return models.Coords{}, false
	}

	var totalLat, totalLng float64
	for _, point := range points {
		totalLat += point.Lat
		totalLng += point.Lng
	}

	return models.Coords{
		Lat: totalLat / float64(len(points)),
		Lng: totalLng / float64(len(points)),
	}, true
}
