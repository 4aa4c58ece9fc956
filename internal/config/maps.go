package config

import (
	"time"
)

type MapsConfig struct {
	Provider       string            `yaml:"provider"`
	GoogleMaps     *GoogleMapsConfig `yaml:"google_maps"`
	GeocodeTimeout time.Duration     `yaml:"geocode_timeout"`
}

type GoogleMapsConfig struct {
	APIKey string `yaml:"api_key"`
}

// Enabled reports whether address lookup is configured at all.
func (m *MapsConfig) Enabled() bool {
	return m != nil && m.Provider == "google" && m.GoogleMaps != nil && m.GoogleMaps.APIKey != ""
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		Provider: getEnv("MAPS_PROVIDER", "google"),
		GoogleMaps: &GoogleMapsConfig{
			APIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
		},
		GeocodeTimeout: getEnvAsDuration("MAPS_GEOCODE_TIMEOUT", 5*time.Second),
	}
}
