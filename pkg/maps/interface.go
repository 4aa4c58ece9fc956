package maps

import (
	"context"
	"errors"
)

// ErrNoResults is returned when a lookup succeeds but matches nothing.
var ErrNoResults = errors.New("no geocoding results")

// Geocoder resolves room endpoints between addresses and coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodeResponse, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResponse, error)
}

type GeocodeResponse struct {
	Results []GeocodeResult `json:"results"`
}

type GeocodeResult struct {
	PlaceID     string   `json:"place_id"`
	Address     string   `json:"formatted_address"`
	Coordinates Location `json:"geometry"`
	Types       []string `json:"types"`
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// First returns the best match or ErrNoResults.
func (r *GeocodeResponse) First() (*GeocodeResult, error) {
	if r == nil || len(r.Results) == 0 {
		return nil, ErrNoResults
	}
	return &r.Results[0], nil
}
