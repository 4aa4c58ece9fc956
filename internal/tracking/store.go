package tracking

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"convoy/internal/config"
	"convoy/internal/models"
	"convoy/internal/utils"
)

const maxRoomHazards = 50

// errRoomRetired marks a room the pruner forgot while a caller held it.
var errRoomRetired = fmt.Errorf("%w: room retired", ErrNotFound)

// RoomMeta is what the hub needs to know about a room from its directory.
type RoomMeta struct {
	Code           string
	RoomID         string
	CreatorID      string
	GeofenceRadius float64
}

// Room is the live state of one room. Every field is guarded by mu; the
// hub holds mu for the whole of each mutation and the events it derives.
type Room struct {
	mu sync.Mutex

	Code           string
	RoomID         string
	CreatorID      string
	GeofenceRadius float64

	members    map[string]*Member
	hazards    []models.Hazard
	emptySince time.Time
	deleted    bool
	retired    bool
}

// LocationResult describes what applying one location sample changed.
type LocationResult struct {
	Moved             bool
	Distance          float64
	ClearedPending    bool
	ClearedStationary bool
	ClearedSOS        bool
	Member            MemberView
}

// newRoom falls back to defaultRadius when the room carries no radius of its own.
func newRoom(meta RoomMeta, defaultRadius float64, now time.Time) *Room {
	return &Room{
		Code:           meta.Code,
		RoomID:         meta.RoomID,
		CreatorID:      meta.CreatorID,
		GeofenceRadius: config.ClampGeofenceRadius(meta.GeofenceRadius, defaultRadius),
		members:        make(map[string]*Member),
		emptySince:     now,
	}
}

func (r *Room) Member(identity string) (*Member, bool) {
	m, ok := r.members[identity]
	return m, ok
}

// Geofence is centred on the creator's live position.
func (r *Room) Geofence() models.Geofence {
	g := models.Geofence{RadiusMeters: r.GeofenceRadius}
	if creator, ok := r.members[r.CreatorID]; ok && creator.Coords != nil {
		c := *creator.Coords
		g.Center = &c
	}
	return g
}

func (r *Room) join(identity, displayName, connID string, now time.Time) (*Member, bool) {
	if m, ok := r.members[identity]; ok {
		m.DisplayName = displayName
		m.ConnectionID = connID
		return m, true
	}

	m := &Member{
		Identity:     identity,
		DisplayName:  displayName,
		ConnectionID: connID,
		JoinedAt:     now,
	}
	r.members[identity] = m
	r.emptySince = time.Time{}
	return m, false
}

func (r *Room) applyLocation(m *Member, coords models.Coords, sampleAt, now time.Time, cfg *config.TrackingConfig) (LocationResult, error) {
	if sampleAt.IsZero() {
		sampleAt = now
	}
	if !m.lastSampleAt.IsZero() && sampleAt.Before(m.lastSampleAt) {
		return LocationResult{}, fmt.Errorf("%w: stale location sample for %s", ErrConflict, m.Identity)
	}

	var res LocationResult
	if m.Coords == nil {
		res.Moved = true
	} else {
		prev := *m.Coords
		m.PreviousCoords = &prev
		res.Distance = utils.DistanceMeters(prev, coords)
		res.Moved = res.Distance > cfg.MovementThreshold
	}

	c := coords
	m.Coords = &c
	m.lastSampleAt = sampleAt
	m.LastSeenAt = now
	m.Path = append(m.Path, models.TrailPoint{Coords: coords, Timestamp: now})
	m.pruneTrail(now, cfg.TrailDuration, cfg.TrailMaxPoints)

	if res.Moved {
		m.LastMovedAt = now
		res.ClearedPending = m.clearPending()
		res.ClearedStationary = m.clearStationary()
		res.ClearedSOS = m.clearSOS()
	}

	res.Member = m.view(now, cfg.ActiveWindow)
	return res, nil
}

func (r *Room) remove(identity, connID string, now time.Time) (*Member, bool) {
	m, ok := r.members[identity]
	if !ok || (connID != "" && m.ConnectionID != connID) {
		return nil, false
	}

	m.stopTimers()
	delete(r.members, identity)
	if len(r.members) == 0 {
		r.emptySince = now
	}
	return m, true
}

func (r *Room) sortedMembers() []*Member {
	members := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].DisplayName != members[j].DisplayName {
			return members[i].DisplayName < members[j].DisplayName
		}
		return members[i].Identity < members[j].Identity
	})
	return members
}

func (r *Room) views(now time.Time, window time.Duration) []MemberView {
	members := r.sortedMembers()
	views := make([]MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, m.view(now, window))
	}
	return views
}

func (r *Room) roster() []RosterEntry {
	members := r.sortedMembers()
	roster := make([]RosterEntry, 0, len(members))
	for _, m := range members {
		roster = append(roster, RosterEntry{
			ConnectionID: m.ConnectionID,
			Username:     m.DisplayName,
			UserID:       m.Identity,
		})
	}
	return roster
}

func (r *Room) addHazard(h models.Hazard) {
	r.hazards = append(r.hazards, h)
	if len(r.hazards) > maxRoomHazards {
		r.hazards = append([]models.Hazard(nil), r.hazards[len(r.hazards)-maxRoomHazards:]...)
	}
}

func (r *Room) Hazards() []models.Hazard {
	return append([]models.Hazard{}, r.hazards...)
}

// Store owns every live room, keyed by room code.
type Store struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	tombstones map[string]tombstone

	cfg *config.TrackingConfig
}

type tombstone struct {
	roomID    string
	deletedAt time.Time
}

func NewStore(cfg *config.TrackingConfig) *Store {
	if cfg == nil {
		cfg = config.DefaultTrackingConfig()
	}
	return &Store{
		rooms:      make(map[string]*Room),
		tombstones: make(map[string]tombstone),
		cfg:        cfg,
	}
}

func (s *Store) get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

// ensure returns the live room for meta, creating it on first join. A
// deleted room is never resurrected under the same room id.
func (s *Store) ensure(meta RoomMeta, now time.Time) (*Room, error) {
	if room, ok := s.get(meta.Code); ok {
		return room, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[meta.Code]; ok {
		return room, nil
	}
	if t, ok := s.tombstones[meta.Code]; ok && (t.roomID == "" || t.roomID == meta.RoomID) {
		return nil, fmt.Errorf("%w: room %s was deleted", ErrNotFound, meta.Code)
	}
	delete(s.tombstones, meta.Code)

	room := newRoom(meta, s.cfg.GeofenceRadius, now)
	s.rooms[meta.Code] = room
	return room, nil
}

// Update runs fn with the room locked.
func (s *Store) Update(code string, fn func(*Room) error) error {
	room, ok := s.get(code)
	if !ok {
		return fmt.Errorf("%w: room %s", ErrNotFound, code)
	}
	return s.lockRoom(room, fn)
}

func (s *Store) lockRoom(room *Room, fn func(*Room) error) error {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.deleted {
		return fmt.Errorf("%w: room %s was deleted", ErrNotFound, room.Code)
	}
	if room.retired {
		return errRoomRetired
	}
	return fn(room)
}

// joinRoom runs fn on the live room for meta, creating it if needed.
func (s *Store) joinRoom(meta RoomMeta, now time.Time, fn func(*Room) error) error {
	for attempt := 0; attempt < 3; attempt++ {
		room, err := s.ensure(meta, now)
		if err != nil {
			return err
		}
		err = s.lockRoom(room, fn)
		if errors.Is(err, errRoomRetired) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: room %s is unavailable", ErrConflict, meta.Code)
}

// Join adds identity to the room, or refreshes its slot when already present.
func (s *Store) Join(meta RoomMeta, identity, displayName, connID string, now time.Time) (MemberView, error) {
	var view MemberView
	err := s.joinRoom(meta, now, func(r *Room) error {
		m, _ := r.join(identity, displayName, connID, now)
		view = m.view(now, s.cfg.ActiveWindow)
		return nil
	})
	return view, err
}

func (s *Store) ApplyLocation(code, identity string, coords models.Coords, sampleAt, now time.Time) (LocationResult, error) {
	var res LocationResult
	err := s.Update(code, func(r *Room) error {
		m, ok := r.members[identity]
		if !ok {
			return fmt.Errorf("%w: %s is not in room %s", ErrNotFound, identity, code)
		}
		var err error
		res, err = r.applyLocation(m, coords, sampleAt, now, s.cfg)
		return err
	})
	return res, err
}

// Remove deletes the member only while connID is its current connection.
// An empty connID removes unconditionally.
func (s *Store) Remove(code, identity, connID string, now time.Time) bool {
	removed := false
	s.Update(code, func(r *Room) error {
		_, removed = r.remove(identity, connID, now)
		return nil
	})
	return removed
}

func (s *Store) SnapshotMembers(code string, now time.Time) []MemberView {
	var views []MemberView
	s.Update(code, func(r *Room) error {
		views = r.views(now, s.cfg.ActiveWindow)
		return nil
	})
	return views
}

func (s *Store) Hazards(code string) []models.Hazard {
	var hazards []models.Hazard
	s.Update(code, func(r *Room) error {
		hazards = r.Hazards()
		return nil
	})
	return hazards
}

// Delete removes the room atomically with respect to joins and returns the
// members present at call time. Deleting an unknown room still tombstones it.
func (s *Store) Delete(code, roomID string, now time.Time) []*Member {
	s.mu.Lock()
	room, ok := s.rooms[code]
	delete(s.rooms, code)
	if roomID == "" && ok {
		roomID = room.RoomID
	}
	s.tombstones[code] = tombstone{roomID: roomID, deletedAt: now}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	room.deleted = true
	members := room.sortedMembers()
	for _, m := range members {
		m.stopTimers()
	}
	room.members = make(map[string]*Member)
	return members
}

func (s *Store) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// PruneTrails drops expired trail points, forgets rooms that have been
// empty for a whole trail window and expires old tombstones.
func (s *Store) PruneTrails(now time.Time) (points int, rooms int) {
	window := s.cfg.TrailDuration

	for _, code := range s.Codes() {
		room, ok := s.get(code)
		if !ok {
			continue
		}

		room.mu.Lock()
		for _, m := range room.members {
			before := len(m.Path)
			m.pruneTrail(now, window, s.cfg.TrailMaxPoints)
			points += before - len(m.Path)
		}
		idle := len(room.members) == 0 && !room.emptySince.IsZero() && now.Sub(room.emptySince) >= window
		room.mu.Unlock()

		if idle {
			s.mu.Lock()
			// Re-check under the store lock; a join may have raced in.
			room.mu.Lock()
			if current, ok := s.rooms[code]; ok && current == room && len(room.members) == 0 {
				delete(s.rooms, code)
				room.retired = true
				rooms++
			}
			room.mu.Unlock()
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	for code, t := range s.tombstones {
		if now.Sub(t.deletedAt) >= window {
			delete(s.tombstones, code)
		}
	}
	s.mu.Unlock()

	return points, rooms
}
