package tracking

import (
	"time"

	"convoy/internal/models"
)

// pendingConfirmation is an outstanding "are you OK?" prompt. id lets a
// fired timer recognise that it has been superseded.
type pendingConfirmation struct {
	id       uint64
	deadline time.Time
	timer    *time.Timer
}

func (p *pendingConfirmation) cancel() {
	if p != nil && p.timer != nil {
		p.timer.Stop()
	}
}

// Member is one participant's live state inside a room. It is keyed by
// identity; the connection id is replaced on reconnect. All fields are
// guarded by the owning room's mutex.
type Member struct {
	Identity     string
	DisplayName  string
	ConnectionID string
	JoinedAt     time.Time

	Coords         *models.Coords
	PreviousCoords *models.Coords
	Path           []models.TrailPoint
	LastSeenAt     time.Time
	LastMovedAt    time.Time
	lastSampleAt   time.Time

	Stationary      bool
	StationarySince time.Time
	SOS             bool
	SOSReason       models.SOSReason

	Battery  *int
	Charging bool

	pending  *pendingConfirmation
	sosTimer *time.Timer
	sosGen   uint64

	lastGeofenceAlertAt  time.Time
	lastDeviationAlertAt time.Time
}

// MemberView is the public projection of a member sent to clients.
type MemberView struct {
	ConnectionID string              `json:"connectionId"`
	UserID       string              `json:"userId"`
	Username     string              `json:"username"`
	Coords       *models.Coords      `json:"coords,omitempty"`
	Trail        []models.TrailPoint `json:"trail"`
	Battery      *int                `json:"battery,omitempty"`
	Charging     bool                `json:"charging"`
	Stationary   bool                `json:"stationary"`
	SOS          bool                `json:"sos"`
	Active       bool                `json:"active"`
	LastSeenAt   int64               `json:"lastSeenAt,omitempty"`
}

// Pending reports whether a stationary prompt is outstanding.
func (m *Member) Pending() bool {
	return m.pending != nil
}

func (m *Member) active(now time.Time, window time.Duration) bool {
	return m.Coords != nil && now.Sub(m.LastSeenAt) <= window
}

func (m *Member) view(now time.Time, window time.Duration) MemberView {
	v := MemberView{
		ConnectionID: m.ConnectionID,
		UserID:       m.Identity,
		Username:     m.DisplayName,
		Trail:        append([]models.TrailPoint(nil), m.Path...),
		Charging:     m.Charging,
		Stationary:   m.Stationary,
		SOS:          m.SOS,
		Active:       m.active(now, window),
	}
	if m.Coords != nil {
		c := *m.Coords
		v.Coords = &c
	}
	if m.Battery != nil {
		b := *m.Battery
		v.Battery = &b
	}
	if !m.LastSeenAt.IsZero() {
		v.LastSeenAt = m.LastSeenAt.UnixMilli()
	}
	if v.Trail == nil {
		v.Trail = []models.TrailPoint{}
	}
	return v
}

func (m *Member) clearPending() bool {
	if m.pending == nil {
		return false
	}
	m.pending.cancel()
	m.pending = nil
	return true
}

func (m *Member) clearSOS() bool {
	if m.sosTimer != nil {
		m.sosTimer.Stop()
		m.sosTimer = nil
	}
	m.sosGen++
	if !m.SOS {
		return false
	}
	m.SOS = false
	m.SOSReason = ""
	return true
}

func (m *Member) clearStationary() bool {
	if !m.Stationary {
		return false
	}
	m.Stationary = false
	m.StationarySince = time.Time{}
	return true
}

// stopTimers releases every timer the member owns.
func (m *Member) stopTimers() {
	m.clearPending()
	if m.sosTimer != nil {
		m.sosTimer.Stop()
		m.sosTimer = nil
	}
	m.sosGen++
}

// pruneTrail drops points older than window and keeps at most maxPoints.
func (m *Member) pruneTrail(now time.Time, window time.Duration, maxPoints int) {
	cutoff := now.Add(-window)
	start := 0
	for start < len(m.Path) && m.Path[start].Timestamp.Before(cutoff) {
		start++
	}
	if maxPoints > 0 && len(m.Path)-start > maxPoints {
		start = len(m.Path) - maxPoints
	}
	if start > 0 {
		m.Path = append([]models.TrailPoint(nil), m.Path[start:]...)
	}
}
