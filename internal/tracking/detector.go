package tracking

import (
	"strings"
	"time"

	"convoy/internal/config"
	"convoy/internal/models"
	"convoy/internal/utils"
)

type AlertKind string

const (
	// AlertGeofence: a member is outside the circle around the creator.
	AlertGeofence AlertKind = "geofence"
	// AlertAnchor: the creator has drifted away from the rest of the group.
	AlertAnchor AlertKind = "anchor"
	// AlertDeviation: a member is far from the group centre.
	AlertDeviation AlertKind = "deviation"
)

type Alert struct {
	Kind     AlertKind
	Distance float64
	Limit    float64
	Center   models.Coords
}

// Detector classifies location samples and decides when a member is due for
// a stationary check. It holds no state of its own; cooldowns live on the
// member and callers must hold the room lock.
type Detector struct {
	cfg *config.TrackingConfig
}

func NewDetector(cfg *config.TrackingConfig) *Detector {
	if cfg == nil {
		cfg = config.DefaultTrackingConfig()
	}
	return &Detector{cfg: cfg}
}

// GroupCenter is the mean position of the room's active members.
func (d *Detector) GroupCenter(room *Room, now time.Time) (models.Coords, int, bool) {
	points := d.activePoints(room, now, "")
	center, ok := utils.GroupCenter(points)
	return center, len(points), ok
}

func (d *Detector) activePoints(room *Room, now time.Time, except string) []models.Coords {
	points := make([]models.Coords, 0, len(room.members))
	for id, m := range room.members {
		if id == except || !m.active(now, d.cfg.ActiveWindow) {
			continue
		}
		points = append(points, *m.Coords)
	}
	return points
}

// Evaluate runs the geofence and deviation checks for member after a
// location sample. Each check has its own cooldown and stamps it only when
// it yields an alert.
func (d *Detector) Evaluate(room *Room, member *Member, now time.Time) []Alert {
	if member.Coords == nil {
		return nil
	}

	var alerts []Alert

	if alert, ok := d.checkGeofence(room, member, now); ok {
		alerts = append(alerts, alert)
	}
	if alert, ok := d.checkDeviation(room, member, now); ok {
		alerts = append(alerts, alert)
	}

	return alerts
}

func (d *Detector) checkGeofence(room *Room, member *Member, now time.Time) (Alert, bool) {
	if !d.cooledDown(member.lastGeofenceAlertAt, now) {
		return Alert{}, false
	}

	radius := room.GeofenceRadius
	kind := AlertGeofence

	var center models.Coords
	if member.Identity == room.CreatorID {
		others := d.activePoints(room, now, member.Identity)
		c, ok := utils.GroupCenter(others)
		if !ok {
			return Alert{}, false
		}
		center = c
		kind = AlertAnchor
	} else {
		creator, ok := room.members[room.CreatorID]
		if !ok || creator.Coords == nil {
			return Alert{}, false
		}
		center = *creator.Coords
	}

	if utils.IsWithinGeofence(center, *member.Coords, radius) {
		return Alert{}, false
	}

	member.lastGeofenceAlertAt = now
	return Alert{
		Kind:     kind,
		Distance: utils.DistanceMeters(center, *member.Coords),
		Limit:    radius,
		Center:   center,
	}, true
}

func (d *Detector) checkDeviation(room *Room, member *Member, now time.Time) (Alert, bool) {
	if !d.cooledDown(member.lastDeviationAlertAt, now) {
		return Alert{}, false
	}

	center, count, ok := d.GroupCenter(room, now)
	if !ok || count < 2 {
		return Alert{}, false
	}

	distance := utils.DistanceMeters(center, *member.Coords)
	if distance <= d.cfg.DeviationThreshold {
		return Alert{}, false
	}

	member.lastDeviationAlertAt = now
	return Alert{
		Kind:     AlertDeviation,
		Distance: distance,
		Limit:    d.cfg.DeviationThreshold,
		Center:   center,
	}, true
}

func (d *Detector) cooledDown(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= d.cfg.AlertCooldown
}

// DueForPrompt reports whether member has been still long enough to be asked
// if they are OK. Members already pending, stationary or in SOS are skipped.
func (d *Detector) DueForPrompt(member *Member, now time.Time) bool {
	if member.LastMovedAt.IsZero() || member.pending != nil || member.Stationary || member.SOS {
		return false
	}
	return now.Sub(member.LastMovedAt) >= d.cfg.StationaryThreshold
}

// IsAffirmative reports whether a stationary-response means "I'm OK".
func IsAffirmative(response string) bool {
	switch strings.ToLower(strings.TrimSpace(response)) {
	case "yes", "y", "ok", "okay", "i'm ok", "im ok", "i am ok":
		return true
	}
	return false
}
