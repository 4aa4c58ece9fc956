package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"convoy/internal/models"
)

func TestDistanceMeters(t *testing.T) {
	a := models.Coords{Lat: 0, Lng: 0}
	b := models.Coords{Lat: 0, Lng: 1}

	// One degree of longitude at the equator.
	assert.InDelta(t, 111195, DistanceMeters(a, b), 50)
	assert.Zero(t, DistanceMeters(a, a))
	assert.InDelta(t, DistanceMeters(a, b), DistanceMeters(b, a), 1e-9)
}

func TestOffsetRoundTrip(t *testing.T) {
	origin := models.Coords{Lat: 48.8566, Lng: 2.3522}

	north := Offset(origin, 500, 0)
	assert.InDelta(t, 500, DistanceMeters(origin, north), 1)
	assert.Greater(t, north.Lat, origin.Lat)

	east := Offset(origin, 0, 300)
	assert.InDelta(t, 300, DistanceMeters(origin, east), 1)
	assert.Greater(t, east.Lng, origin.Lng)
}

func TestIsWithinGeofence(t *testing.T) {
	center := models.Coords{Lat: 10, Lng: 10}

	assert.True(t, IsWithinGeofence(center, center, 100))
	assert.True(t, IsWithinGeofence(center, Offset(center, 99, 0), 100))
	assert.False(t, IsWithinGeofence(center, Offset(center, 101, 0), 100))
}

func TestGroupCenter(t *testing.T) {
	_, ok := GroupCenter(nil)
	assert.False(t, ok)

	center, ok := GroupCenter([]models.Coords{{Lat: 0, Lng: 0}, {Lat: 2, Lng: 4}})
	assert.True(t, ok)
	assert.Equal(t, models.Coords{Lat: 1, Lng: 2}, center)
}

func TestIsValidCoordinates(t *testing.T) {
	assert.True(t, IsValidCoordinates(90, -180))
	assert.False(t, IsValidCoordinates(90.1, 0))
	assert.False(t, IsValidCoordinates(0, 181))
}

func TestGenerateRoomCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateRoomCode()
		assert.Len(t, code, RoomCodeLength)
		for _, r := range code {
			assert.Contains(t, roomCodeChars, string(r))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90)
}
