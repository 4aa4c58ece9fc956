package config

import (
	"time"
)

const (
	MinGeofenceRadius     = 100.0
	MaxGeofenceRadius     = 2000.0
	DefaultGeofenceRadius = 300.0
	DefaultTrailDuration  = 10 * time.Minute
)

// TrackingConfig holds the thresholds that drive room coordination and
// anomaly detection. Distances are in meters.
type TrackingConfig struct {
	StationaryThreshold time.Duration `yaml:"stationary_threshold"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
	AlertCooldown       time.Duration `yaml:"alert_cooldown"`
	TrailDuration       time.Duration `yaml:"trail_duration"`
	TrailMaxPoints      int           `yaml:"trail_max_points"`
	GeofenceRadius      float64       `yaml:"geofence_radius"`
	DeviationThreshold  float64       `yaml:"deviation_threshold"`
	MovementThreshold   float64       `yaml:"movement_threshold"`
	ActiveWindow        time.Duration `yaml:"active_window"`
	SOSDuration         time.Duration `yaml:"sos_duration"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	PruneInterval       time.Duration `yaml:"prune_interval"`
	LowBatteryPercent   int           `yaml:"low_battery_percent"`
}

func DefaultTrackingConfig() *TrackingConfig {
	return &TrackingConfig{
		StationaryThreshold: 120 * time.Second,
		ConfirmationTimeout: 30 * time.Second,
		AlertCooldown:       30 * time.Second,
		TrailDuration:       DefaultTrailDuration,
		TrailMaxPoints:      100,
		GeofenceRadius:      DefaultGeofenceRadius,
		DeviationThreshold:  150,
		MovementThreshold:   5,
		ActiveWindow:        30 * time.Second,
		SOSDuration:         30 * time.Second,
		SweepInterval:       30 * time.Second,
		PruneInterval:       60 * time.Second,
		LowBatteryPercent:   15,
	}
}

func loadTrackingConfig() *TrackingConfig {
	d := DefaultTrackingConfig()
	return &TrackingConfig{
		StationaryThreshold: getEnvAsMillis("STATIONARY_THRESHOLD_MS", d.StationaryThreshold),
		ConfirmationTimeout: getEnvAsMillis("STATIONARY_CONFIRM_TIMEOUT_MS", d.ConfirmationTimeout),
		AlertCooldown:       getEnvAsMillis("DEVIATION_COOLDOWN_MS", d.AlertCooldown),
		TrailDuration:       TrailDurationFromMinutes(getEnvAsInt("TRAIL_DURATION_MINUTES", 10)),
		TrailMaxPoints:      getEnvAsInt("TRAIL_MAX_POINTS", d.TrailMaxPoints),
		GeofenceRadius:      ClampGeofenceRadius(getEnvAsFloat64("GEOFENCE_RADIUS_METERS", d.GeofenceRadius), d.GeofenceRadius),
		DeviationThreshold:  getEnvAsFloat64("DEVIATION_THRESHOLD_METERS", d.DeviationThreshold),
		MovementThreshold:   getEnvAsFloat64("MOVEMENT_THRESHOLD_METERS", d.MovementThreshold),
		ActiveWindow:        getEnvAsMillis("ACTIVE_WINDOW_MS", d.ActiveWindow),
		SOSDuration:         getEnvAsMillis("SOS_AUTO_CLEAR_MS", d.SOSDuration),
		SweepInterval:       getEnvAsMillis("SWEEP_INTERVAL_MS", d.SweepInterval),
		PruneInterval:       getEnvAsMillis("PRUNE_INTERVAL_MS", d.PruneInterval),
		LowBatteryPercent:   getEnvAsInt("LOW_BATTERY_PERCENT", d.LowBatteryPercent),
	}
}

// TrailDurationFromMinutes accepts the selectable 5/10/15 minute windows and
// falls back to the default for anything else.
func TrailDurationFromMinutes(minutes int) time.Duration {
	switch minutes {
	case 5, 10, 15:
		return time.Duration(minutes) * time.Minute
	default:
		return DefaultTrailDuration
	}
}

// ClampGeofenceRadius keeps a radius inside the operator range. Zero or
// negative means "not set" and yields fallback, itself clamped; a fallback
// that is not set either yields DefaultGeofenceRadius.
func ClampGeofenceRadius(radius, fallback float64) float64 {
	switch {
	case radius <= 0 && fallback <= 0:
		return DefaultGeofenceRadius
	case radius <= 0:
		return ClampGeofenceRadius(fallback, DefaultGeofenceRadius)
	case radius < MinGeofenceRadius:
		return MinGeofenceRadius
	case radius > MaxGeofenceRadius:
		return MaxGeofenceRadius
	default:
		return radius
	}
}
