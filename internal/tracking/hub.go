package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"convoy/internal/config"
	"convoy/internal/models"
	"convoy/internal/utils"
	"convoy/pkg/logger"
)

// Hub routes validated client events into the room store, runs anomaly
// detection and fans the resulting events out to room members.
type Hub struct {
	cfg       *config.TrackingConfig
	registry  *Registry
	store     *Store
	detector  *Detector
	transport Transport
	directory RoomDirectory
	mirror    StateMirror
	log       *logger.Logger
	now       func() time.Time

	confirmSeq atomic.Uint64
}

type Option func(*Hub)

func WithStateMirror(mirror StateMirror) Option {
	return func(h *Hub) {
		if mirror != nil {
			h.mirror = mirror
		}
	}
}

// WithClock replaces time.Now for state timestamps. Timers still run on the
// wall clock.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		h.now = now
		h.registry.now = now
	}
}

func NewHub(cfg *config.TrackingConfig, transport Transport, directory RoomDirectory, log *logger.Logger, opts ...Option) *Hub {
	if cfg == nil {
		cfg = config.DefaultTrackingConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}

	h := &Hub{
		cfg:       cfg,
		registry:  NewRegistry(transport, log),
		store:     NewStore(cfg),
		detector:  NewDetector(cfg),
		transport: transport,
		directory: directory,
		mirror:    nopMirror{},
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Store() *Store       { return h.store }

// delivery is one queued outbound event.
type delivery struct {
	connID  string
	event   string
	payload interface{}
}

// outbox collects events while a room is locked so every recipient list
// comes from one consistent member snapshot. It is flushed after unlock.
type outbox []delivery

func (o *outbox) to(connID, event string, payload interface{}) {
	if connID == "" {
		return
	}
	*o = append(*o, delivery{connID: connID, event: event, payload: payload})
}

// room queues event for every member except the given identity.
func (o *outbox) room(room *Room, event string, payload interface{}, exceptIdentity string) {
	for _, m := range room.sortedMembers() {
		if m.Identity == exceptIdentity {
			continue
		}
		o.to(m.ConnectionID, event, payload)
	}
}

func (h *Hub) flush(out outbox) {
	for _, d := range out {
		if err := h.transport.SendToConnection(d.connID, d.event, d.payload); err != nil {
			h.log.LogDeliveryFailure(d.connID, d.event, fmt.Errorf("%w: %v", ErrDelivery, err))
		}
	}
}

func (h *Hub) systemMessage(kind models.MessageType, content string, now time.Time) models.RoomMessage {
	return models.RoomMessage{
		From: systemSender,
		Message: models.MessageBody{
			Type:      kind,
			Content:   content,
			Sender:    systemSender,
			Timestamp: now.UnixMilli(),
		},
	}
}

// session resolves the caller's session and checks it is bound to roomCode.
func (h *Hub) session(connID, roomCode string) (Session, error) {
	session, ok := h.registry.Lookup(connID)
	if !ok {
		return Session{}, fmt.Errorf("%w: connection %s has not joined a room", ErrUnauthorized, connID)
	}
	if roomCode == "" {
		return Session{}, fmt.Errorf("%w: room code is required", ErrValidation)
	}
	if session.RoomCode != roomCode {
		return Session{}, fmt.Errorf("%w: connection is in room %q, not %q", ErrValidation, session.RoomCode, roomCode)
	}
	return session, nil
}

// memberFor returns the caller's member while connID still owns the slot.
func memberFor(room *Room, session Session) (*Member, error) {
	m, ok := room.members[session.Identity]
	if !ok || m.ConnectionID != session.ConnectionID {
		return nil, fmt.Errorf("%w: %s is not active in room %s", ErrNotFound, session.Identity, room.Code)
	}
	return m, nil
}

// Join subscribes connID to roomCode under identity. A previous connection
// for the same identity is evicted; a previous room membership is dropped.
func (h *Hub) Join(ctx context.Context, connID, identity, displayName, roomCode string) error {
	if identity == "" {
		return fmt.Errorf("%w: no identity on connection %s", ErrUnauthorized, connID)
	}
	if roomCode == "" || displayName == "" {
		return fmt.Errorf("%w: room code and display name are required", ErrValidation)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, utils.ExternalCallTimeout)
	defer cancel()

	meta, err := h.directory.GetRoomByCode(lookupCtx, roomCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to resolve room %s: %w", roomCode, err)
	}

	roomCode = meta.Code
	previous := h.registry.Register(identity, displayName, connID, roomCode)
	if previous != nil && previous.RoomCode != "" && previous.RoomCode != roomCode {
		h.removeMember(ctx, previous.RoomCode, identity, previous.ConnectionID)
	}

	now := h.now()
	var out outbox
	err = h.store.joinRoom(RoomMeta{
		Code:           meta.Code,
		RoomID:         meta.ID.Hex(),
		CreatorID:      meta.CreatorID,
		GeofenceRadius: meta.GeofenceRadius,
	}, now, func(room *Room) error {
		m, rejoined := room.join(identity, displayName, connID, now)

		out.room(room, EventRoomUsers, room.roster(), "")
		out.room(room, EventUserJoined, refOf(m), identity)
		out.to(connID, EventRoomSnapshot, RoomSnapshotPayload{
			RoomCode: room.Code,
			Geofence: room.Geofence(),
			Members:  room.views(now, h.cfg.ActiveWindow),
			Hazards:  room.Hazards(),
		})

		h.log.LogRoomEvent(room.Code, EventJoinRoom, map[string]interface{}{
			"user_id":       identity,
			"connection_id": connID,
			"rejoined":      rejoined,
			"members":       len(room.members),
		})
		return nil
	})
	if err != nil {
		h.registry.Unregister(identity, connID)
		return err
	}

	h.flush(out)
	return nil
}

// LocationUpdate applies a position sample from connID and broadcasts it
// together with any state changes and anomaly alerts it caused.
func (h *Hub) LocationUpdate(ctx context.Context, connID, roomCode string, coords *models.Coords, sampleAt time.Time) error {
	session, err := h.session(connID, roomCode)
	if err != nil {
		return err
	}
	if coords == nil || !utils.IsValidCoordinates(coords.Lat, coords.Lng) {
		return fmt.Errorf("%w: coords are missing or out of range", ErrValidation)
	}

	now := h.now()
	var (
		out  outbox
		view MemberView
	)
	err = h.store.Update(roomCode, func(room *Room) error {
		m, err := memberFor(room, session)
		if err != nil {
			return err
		}

		res, err := room.applyLocation(m, *coords, sampleAt, now, h.cfg)
		if err != nil {
			return err
		}
		view = res.Member

		if res.ClearedPending || res.ClearedStationary {
			out.room(room, EventRoomMessage, h.systemMessage(models.MessageTypeInfo,
				fmt.Sprintf("%s is moving again", m.DisplayName), now), "")
		}
		if res.ClearedStationary {
			out.room(room, EventUserStationaryCleared, refOf(m), "")
		}
		if res.ClearedSOS {
			out.room(room, EventUserSOSCleared, refOf(m), "")
		}

		for _, alert := range h.detector.Evaluate(room, m, now) {
			h.emitAlert(room, m, alert, now, &out)
		}

		out.room(room, EventLocationUpdate, LocationBroadcast{
			MemberRef: refOf(m),
			Coords:    *coords,
		}, "")
		return nil
	})
	if err != nil {
		return err
	}

	h.flush(out)
	h.mirrorLocation(ctx, roomCode, view)
	return nil
}

func (h *Hub) emitAlert(room *Room, m *Member, alert Alert, now time.Time, out *outbox) {
	ref := refOf(m)
	coords := *m.Coords

	h.log.LogAnomaly(room.Code, m.Identity, string(alert.Kind), map[string]interface{}{
		"distance_m": int(alert.Distance),
		"limit_m":    int(alert.Limit),
	})

	switch alert.Kind {
	case AlertGeofence:
		out.room(room, EventAnomalyAlert, AnomalyAlertPayload{
			MemberRef: ref,
			Type:      AlertGeofence,
			Coords:    &coords,
			Distance:  alert.Distance,
			Limit:     alert.Limit,
		}, "")
		out.room(room, EventRoomMessage, h.systemMessage(models.MessageTypeWarning,
			fmt.Sprintf("%s is far from the group (%.0f m from the leader)", m.DisplayName, alert.Distance), now), m.Identity)
		out.to(m.ConnectionID, EventRoomMessage, h.systemMessage(models.MessageTypeWarning,
			fmt.Sprintf("You are %.0f m away from the group leader", alert.Distance), now))

	case AlertAnchor:
		out.room(room, EventAnomalyAlert, AnomalyAlertPayload{
			MemberRef: ref,
			Type:      AlertGeofence,
			Coords:    &coords,
			Distance:  alert.Distance,
			Limit:     alert.Limit,
		}, "")
		out.room(room, EventRoomMessage, h.systemMessage(models.MessageTypeWarning,
			fmt.Sprintf("Group leader %s is %.0f m away from the rest of the group", m.DisplayName, alert.Distance), now), "")

	case AlertDeviation:
		out.room(room, EventAnomalyAlert, AnomalyAlertPayload{
			MemberRef: ref,
			Type:      AlertDeviation,
			Distance:  alert.Distance,
			Limit:     alert.Limit,
		}, "")
	}
}

// ChatMessage relays a message to the whole room. An "sos" message also
// raises the sender's SOS state.
func (h *Hub) ChatMessage(ctx context.Context, connID, roomCode string, kind models.MessageType, content string) error {
	session, err := h.session(connID, roomCode)
	if err != nil {
		return err
	}
	if kind == "" {
		kind = models.MessageTypeChat
	}
	if kind != models.MessageTypeChat && kind != models.MessageTypeSOS {
		return fmt.Errorf("%w: unsupported message type %q", ErrValidation, kind)
	}
	if kind == models.MessageTypeChat && content == "" {
		return fmt.Errorf("%w: message content is required", ErrValidation)
	}
	if len(content) > utils.MaxChatMessageLength {
		return fmt.Errorf("%w: message is too long", ErrValidation)
	}
	if kind == models.MessageTypeSOS && content == "" {
		content = "SOS! I need help"
	}

	now := h.now()
	var out outbox
	err = h.store.Update(roomCode, func(room *Room) error {
		m, err := memberFor(room, session)
		if err != nil {
			return err
		}

		out.room(room, EventRoomMessage, models.RoomMessage{
			From: m.ConnectionID,
			Message: models.MessageBody{
				Type:      kind,
				Content:   content,
				Sender:    m.DisplayName,
				Timestamp: now.UnixMilli(),
			},
		}, "")

		if kind == models.MessageTypeSOS {
			h.raiseSOS(room, m, models.SOSReasonManual)
			out.room(room, EventUserSOS, SOSPayload{
				MemberRef: refOf(m),
				Reason:    models.SOSReasonManual,
				Coords:    m.Coords,
			}, "")
			h.log.LogAnomaly(room.Code, m.Identity, "sos", map[string]interface{}{"reason": models.SOSReasonManual})
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.flush(out)
	return nil
}

// ClearSOS tells the room the caller has cleared their SOS. The SOS flag
// itself expires on its timer or on movement.
func (h *Hub) ClearSOS(ctx context.Context, connID, roomCode string) error {
	session, err := h.session(connID, roomCode)
	if err != nil {
		return err
	}

	var out outbox
	err = h.store.Update(roomCode, func(room *Room) error {
		m, err := memberFor(room, session)
		if err != nil {
			return err
		}
		out.room(room, EventUserSOSCleared, refOf(m), "")
		return nil
	})
	if err != nil {
		return err
	}

	h.flush(out)
	return nil
}

// AddHazard records a hazard, sends it to the other members and posts a
// timeline entry to everyone including the reporter.
func (h *Hub) AddHazard(ctx context.Context, connID, roomCode string, hazardType models.HazardType, lat, lon float64, userName string) (*models.Hazard, error) {
	session, err := h.session(connID, roomCode)
	if err != nil {
		return nil, err
	}
	if hazardType == "" || !utils.IsValidCoordinates(lat, lon) {
		return nil, fmt.Errorf("%w: hazard type and valid position are required", ErrValidation)
	}

	now := h.now()
	var (
		out    outbox
		hazard models.Hazard
	)
	err = h.store.Update(roomCode, func(room *Room) error {
		m, err := memberFor(room, session)
		if err != nil {
			return err
		}

		name := userName
		if name == "" {
			name = m.DisplayName
		}
		hazard = models.Hazard{
			ID:           newHazardID(),
			RoomCode:     room.Code,
			Type:         hazardType,
			Lat:          lat,
			Lon:          lon,
			ReportedBy:   m.Identity,
			ReporterName: name,
			CreatedAt:    now,
		}
		room.addHazard(hazard)

		out.room(room, EventHazardAdded, hazard, m.Identity)
		out.room(room, EventRoomMessage, models.RoomMessage{
			From: m.ConnectionID,
			Message: models.MessageBody{
				Type:      models.MessageTypeHazard,
				Content:   fmt.Sprintf("%s reported %s", name, hazardLabel(hazardType)),
				Sender:    name,
				Timestamp: now.UnixMilli(),
			},
		}, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.flush(out)

	mirrorCtx, cancel := context.WithTimeout(ctx, utils.ExternalCallTimeout)
	defer cancel()
	if err := h.mirror.SaveHazard(mirrorCtx, roomCode, hazard); err != nil {
		h.log.WithRoom(roomCode).WithError(err).Warn("Failed to mirror hazard")
	}
	return &hazard, nil
}

// BatteryUpdate shares the caller's battery level and warns the room once
// when it drops below the low-battery mark.
func (h *Hub) BatteryUpdate(ctx context.Context, connID, roomCode string, level int, charging bool) error {
	session, err := h.session(connID, roomCode)
	if err != nil {
		return err
	}
	if level < 0 || level > 100 {
		return fmt.Errorf("%w: battery level out of range", ErrValidation)
	}

	now := h.now()
	var out outbox
	err = h.store.Update(roomCode, func(room *Room) error {
		m, err := memberFor(room, session)
		if err != nil {
			return err
		}

		wasLow := m.Battery != nil && *m.Battery <= h.cfg.LowBatteryPercent
		lvl := level
		m.Battery = &lvl
		m.Charging = charging

		out.room(room, EventBatteryUpdate, BatteryBroadcast{
			MemberRef: refOf(m),
			Level:     level,
			Charging:  charging,
		}, "")

		if !charging && level <= h.cfg.LowBatteryPercent && !wasLow {
			out.room(room, EventRoomMessage, h.systemMessage(models.MessageTypeWarning,
				fmt.Sprintf("%s's %s (%d%%)", m.DisplayName, utils.LowBatteryWarningText, level), now), "")
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.flush(out)
	return nil
}

// LeaveRoom removes the caller from the room but keeps the socket open.
func (h *Hub) LeaveRoom(ctx context.Context, connID, roomCode string) error {
	session, err := h.session(connID, roomCode)
	if err != nil {
		return err
	}

	h.registry.Unregister(session.Identity, connID)
	h.removeMember(ctx, roomCode, session.Identity, connID)
	return nil
}

// Disconnect cleans up after a closed connection. Calling it more than once,
// or for a connection that never joined, is a no-op.
func (h *Hub) Disconnect(connID string) {
	session, ok := h.registry.Lookup(connID)
	if !ok {
		return
	}

	h.registry.Unregister(session.Identity, connID)
	if session.RoomCode != "" {
		h.removeMember(context.Background(), session.RoomCode, session.Identity, connID)
	}
}

func (h *Hub) removeMember(ctx context.Context, roomCode, identity, connID string) {
	now := h.now()
	var (
		out     outbox
		removed bool
	)
	h.store.Update(roomCode, func(room *Room) error {
		m, ok := room.remove(identity, connID, now)
		if !ok {
			return nil
		}
		removed = true

		out.room(room, EventUserLeft, refOf(m), "")
		out.room(room, EventRoomUsers, room.roster(), "")

		h.log.LogRoomEvent(room.Code, "leave-room", map[string]interface{}{
			"user_id":       identity,
			"connection_id": connID,
			"members":       len(room.members),
		})
		return nil
	})
	if !removed {
		return
	}

	h.flush(out)

	mirrorCtx, cancel := context.WithTimeout(ctx, utils.ExternalCallTimeout)
	defer cancel()
	if err := h.mirror.RemoveMember(mirrorCtx, roomCode, identity); err != nil {
		h.log.WithRoom(roomCode).WithError(err).Warn("Failed to remove mirrored member")
	}
}

// DeleteRoom tears down a room after the room service deleted it. Every
// member present at call time gets room-deleted; later joins are refused.
func (h *Hub) DeleteRoom(ctx context.Context, roomCode, roomID string) {
	members := h.store.Delete(roomCode, roomID, h.now())

	payload := RoomDeletedPayload{RoomID: roomID, RoomCode: roomCode}
	var out outbox
	for _, m := range members {
		out.to(m.ConnectionID, EventRoomDeleted, payload)
	}
	h.flush(out)

	for _, m := range members {
		h.registry.Unregister(m.Identity, m.ConnectionID)
	}

	mirrorCtx, cancel := context.WithTimeout(ctx, utils.ExternalCallTimeout)
	defer cancel()
	if err := h.mirror.Purge(mirrorCtx, roomCode); err != nil {
		h.log.WithRoom(roomCode).WithError(err).Warn("Failed to purge mirrored room state")
	}

	h.log.LogRoomEvent(roomCode, EventRoomDeleted, map[string]interface{}{
		"room_id": roomID,
		"members": len(members),
	})
}

func (h *Hub) SnapshotMembers(roomCode string) []MemberView {
	return h.store.SnapshotMembers(roomCode, h.now())
}

func (h *Hub) Hazards(roomCode string) []models.Hazard {
	return h.store.Hazards(roomCode)
}

// PruneTrails trims trail history across all rooms.
func (h *Hub) PruneTrails() {
	points, rooms := h.store.PruneTrails(h.now())
	if points > 0 || rooms > 0 {
		h.log.WithFields(map[string]interface{}{
			"points": points,
			"rooms":  rooms,
		}).Debug("Pruned room state")
	}
}

func (h *Hub) mirrorLocation(ctx context.Context, roomCode string, view MemberView) {
	mirrorCtx, cancel := context.WithTimeout(ctx, utils.ExternalCallTimeout)
	defer cancel()
	if err := h.mirror.SaveMemberLocation(mirrorCtx, roomCode, view); err != nil {
		h.log.WithRoom(roomCode).WithError(err).Debug("Failed to mirror member location")
	}
}

func hazardLabel(t models.HazardType) string {
	switch t {
	case models.HazardTypeRoadClosure:
		return "a road closure"
	case models.HazardTypeOther:
		return "a hazard"
	default:
		return "a " + string(t) + " hazard"
	}
}
