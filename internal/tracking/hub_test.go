package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/models"
	"convoy/internal/utils"
	"convoy/pkg/websocket"
)

var anchor = models.Coords{Lat: 10, Lng: 10}

func TestHubJoinBroadcastsRoster(t *testing.T) {
	f := newHubFixture(t, nil)

	f.join(t, "conn-a", testCreatorID, "Alice")
	f.join(t, "conn-b", "user-b", "Bob")

	rosters := f.transport.payloads("conn-a", EventRoomUsers)
	require.Len(t, rosters, 2)
	roster := rosters[1].([]RosterEntry)
	require.Len(t, roster, 2)
	assert.Equal(t, "Alice", roster[0].Username)
	assert.Equal(t, "Bob", roster[1].Username)

	joined := f.transport.payloads("conn-a", EventUserJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "conn-b", joined[0].(MemberRef).ConnectionID)
	assert.Zero(t, f.transport.count("conn-b", EventUserJoined), "the joiner is not told about itself")

	snapshots := f.transport.payloads("conn-b", EventRoomSnapshot)
	require.Len(t, snapshots, 1)
	snapshot := snapshots[0].(RoomSnapshotPayload)
	assert.Len(t, snapshot.Members, 2)
	assert.Equal(t, 300.0, snapshot.Geofence.RadiusMeters)
}

func TestHubJoinUnknownRoom(t *testing.T) {
	f := newHubFixture(t, nil)

	err := f.hub.Join(context.Background(), "conn-a", "user-a", "Alice", "NOPE42")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 0, f.hub.Registry().Count())
	assert.Equal(t, 0, f.hub.Store().Len())
}

func TestHubJoinValidation(t *testing.T) {
	f := newHubFixture(t, nil)

	err := f.hub.Join(context.Background(), "conn-a", "", "Alice", testRoomCode)
	assert.True(t, errors.Is(err, ErrUnauthorized))

	err = f.hub.Join(context.Background(), "conn-a", "user-a", "", testRoomCode)
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Equal(t, 0, f.hub.Store().Len())
}

func TestHubRejoinEvictsOnlyPreviousConnection(t *testing.T) {
	f := newHubFixture(t, nil)

	f.join(t, "conn-a", testCreatorID, "Alice")
	f.join(t, "conn-b1", "user-b", "Bob")
	f.join(t, "conn-b2", "user-b", "Bob")

	closed := f.transport.closedConns()
	require.Len(t, closed, 1)
	assert.Equal(t, "conn-b1", closed[0].connID)

	members := f.hub.SnapshotMembers(testRoomCode)
	require.Len(t, members, 2)
	count := 0
	for _, m := range members {
		if m.UserID == "user-b" {
			count++
			assert.Equal(t, "conn-b2", m.ConnectionID)
		}
	}
	assert.Equal(t, 1, count)

	// The evicted socket closing later must not remove the new session.
	f.hub.Disconnect("conn-b1")
	assert.Len(t, f.hub.SnapshotMembers(testRoomCode), 2)
}

func TestHubJoinOtherRoomLeavesPrevious(t *testing.T) {
	f := newHubFixture(t, nil)

	f.join(t, "conn-a", testCreatorID, "Alice")
	f.join(t, "conn-b", "user-b", "Bob")
	require.NoError(t, f.hub.Join(context.Background(), "conn-b", "user-b", "Bob", "XYZ789"))

	assert.Len(t, f.hub.SnapshotMembers(testRoomCode), 1)
	assert.Len(t, f.hub.SnapshotMembers("XYZ789"), 1)
	assert.Equal(t, 1, f.transport.count("conn-a", EventUserLeft))
}

func TestHubLocationUpdateBroadcast(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", testCreatorID, "Alice")
	f.join(t, "conn-b", "user-b", "Bob")

	f.move(t, "conn-b", anchor)

	for _, conn := range []string{"conn-a", "conn-b"} {
		updates := f.transport.payloads(conn, EventLocationUpdate)
		require.Len(t, updates, 1)
		update := updates[0].(LocationBroadcast)
		assert.Equal(t, "conn-b", update.ConnectionID)
		assert.Equal(t, "Bob", update.Username)
		assert.Equal(t, anchor, update.Coords)
	}
}

func TestHubLocationUpdateRequiresJoin(t *testing.T) {
	f := newHubFixture(t, nil)
	c := anchor

	err := f.hub.LocationUpdate(context.Background(), "conn-x", testRoomCode, &c, time.Time{})
	assert.True(t, errors.Is(err, ErrUnauthorized))

	f.join(t, "conn-a", testCreatorID, "Alice")
	err = f.hub.LocationUpdate(context.Background(), "conn-a", testRoomCode, nil, time.Time{})
	assert.True(t, errors.Is(err, ErrValidation))
	err = f.hub.LocationUpdate(context.Background(), "conn-a", "", &c, time.Time{})
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Zero(t, f.transport.total(EventLocationUpdate))
}

func TestHubGeofenceBreachIsRateLimited(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", testCreatorID, "Alice")
	f.join(t, "conn-b", "user-b", "Bob")
	f.move(t, "conn-a", anchor)
	f.transport.reset()

	far := utils.Offset(anchor, 500, 0)
	f.move(t, "conn-b", far)

	assert.Len(t, f.transport.roomMessages("conn-a", models.MessageTypeWarning), 1, "room sees one warning")
	private := f.transport.roomMessages("conn-b", models.MessageTypeWarning)
	require.Len(t, private, 1, "the breaching member gets a private message")
	assert.Contains(t, private[0].Message.Content, "You are")

	alerts := f.transport.payloads("conn-a", EventAnomalyAlert)
	require.NotEmpty(t, alerts)
	assert.Equal(t, AlertGeofence, alerts[0].(AnomalyAlertPayload).Type)

	// 100 qualifying updates inside one cooldown window.
	pos := far
	for i := 0; i < 100; i++ {
		f.clock.Advance(100 * time.Millisecond)
		pos = utils.Offset(pos, 0, 1)
		f.move(t, "conn-b", pos)
	}

	assert.Len(t, f.transport.roomMessages("conn-a", models.MessageTypeWarning), 1)
	assert.Len(t, f.transport.roomMessages("conn-b", models.MessageTypeWarning), 1)
	assert.Len(t, geofenceAlerts(f.transport.payloads("conn-a", EventAnomalyAlert)), 1)

	// The window has passed; the next update alerts again.
	f.clock.Advance(f.cfg.AlertCooldown)
	f.move(t, "conn-b", utils.Offset(pos, 0, 1))
	assert.Len(t, f.transport.roomMessages("conn-a", models.MessageTypeWarning), 2)
	assert.Len(t, geofenceAlerts(f.transport.payloads("conn-a", EventAnomalyAlert)), 2)
}

func geofenceAlerts(payloads []interface{}) []AnomalyAlertPayload {
	var out []AnomalyAlertPayload
	for _, p := range payloads {
		if alert := p.(AnomalyAlertPayload); alert.Type == AlertGeofence {
			out = append(out, alert)
		}
	}
	return out
}

func TestHubGeofenceUsesConfiguredDefaultRadius(t *testing.T) {
	cfg := testTrackingConfig()
	cfg.GeofenceRadius = 1000
	f := newHubFixture(t, cfg)
	f.directory.rooms[testRoomCode].GeofenceRadius = 0

	f.join(t, "conn-a", testCreatorID, "Alice")
	f.join(t, "conn-b", "user-b", "Bob")
	f.move(t, "conn-a", anchor)
	f.move(t, "conn-b", utils.Offset(anchor, 500, 0))

	assert.Empty(t, f.transport.roomMessages("conn-a", models.MessageTypeWarning))
	assert.Empty(t, geofenceAlerts(f.transport.payloads("conn-a", EventAnomalyAlert)))

	var radius float64
	require.NoError(t, f.hub.Store().Update(testRoomCode, func(room *Room) error {
		radius = room.GeofenceRadius
		return nil
	}))
	assert.Equal(t, 1000.0, radius)

	f.move(t, "conn-b", utils.Offset(anchor, 1200, 0))
	assert.Len(t, f.transport.roomMessages("conn-a", models.MessageTypeWarning), 1)
}

func TestHubStationaryTimeoutEscalates(t *testing.T) {
	cfg := testTrackingConfig()
	cfg.SOSDuration = 5 * time.Second
	f := newHubFixture(t, cfg)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")
	f.move(t, "conn-a", models.Coords{Lat: 0, Lng: 0})

	f.clock.Advance(125 * time.Second)
	assert.Equal(t, 1, f.hub.SweepRoom(testRoomCode))
	assert.Equal(t, 0, f.hub.SweepRoom(testRoomCode), "a pending member is not prompted twice")

	prompts := f.transport.payloads("conn-a", EventStationaryConfirm)
	require.Len(t, prompts, 1)
	assert.Equal(t, f.cfg.ConfirmationTimeout.Milliseconds(), prompts[0].(StationaryConfirmPayload).TimeoutMs)
	assert.Zero(t, f.transport.count("conn-b", EventStationaryConfirm))

	require.Eventually(t, func() bool {
		return f.transport.count("conn-b", EventUserStationary) == 1
	}, time.Second, 5*time.Millisecond)

	stationary := f.transport.payloads("conn-b", EventUserStationary)[0].(UserStationaryPayload)
	assert.Equal(t, "conn-a", stationary.ConnectionID)
	assert.NotEmpty(t, f.transport.roomMessages("conn-b", models.MessageTypeWarning))
	assert.Equal(t, 1, f.transport.count("conn-b", EventUserSOS))

	m := f.member(t, "user-a")
	assert.True(t, m.Stationary)
	assert.Nil(t, m.pending)

	// A late answer after the timeout is ignored.
	require.NoError(t, f.hub.StationaryResponse(context.Background(), "conn-a", testRoomCode, "yes"))
	assert.True(t, f.member(t, "user-a").Stationary)
}

func TestHubStationaryAffirmativeResponseWins(t *testing.T) {
	cfg := testTrackingConfig()
	cfg.ConfirmationTimeout = 300 * time.Millisecond
	f := newHubFixture(t, cfg)
	f.join(t, "conn-a", "user-a", "Alice")
	f.move(t, "conn-a", anchor)

	f.clock.Advance(cfg.StationaryThreshold)
	require.Equal(t, 1, f.hub.SweepRoom(testRoomCode))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.hub.StationaryResponse(context.Background(), "conn-a", testRoomCode, "yes"))

	time.Sleep(2 * cfg.ConfirmationTimeout)
	assert.Zero(t, f.transport.count("conn-a", EventUserStationary))
	assert.Len(t, f.transport.roomMessages("conn-a", models.MessageTypeInfo), 1)

	m := f.member(t, "user-a")
	assert.False(t, m.Stationary)
	assert.Nil(t, m.pending)
	assert.Equal(t, f.clock.Now(), m.LastMovedAt)
}

func TestHubSOSExpiryReturnsStationaryMemberToActive(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")
	f.move(t, "conn-a", anchor)

	f.clock.Advance(f.cfg.StationaryThreshold)
	require.Equal(t, 1, f.hub.SweepRoom(testRoomCode))
	require.NoError(t, f.hub.StationaryResponse(context.Background(), "conn-a", testRoomCode, "no"))
	require.True(t, f.member(t, "user-a").Stationary)

	require.Eventually(t, func() bool {
		return f.transport.count("conn-b", EventUserSOSCleared) == 1
	}, time.Second, 5*time.Millisecond)

	m := f.member(t, "user-a")
	assert.False(t, m.SOS)
	assert.False(t, m.Stationary)
	assert.Equal(t, 1, f.transport.count("conn-b", EventUserStationaryCleared))

	f.clock.Advance(f.cfg.StationaryThreshold - time.Second)
	assert.Zero(t, f.hub.SweepRoom(testRoomCode), "a fresh threshold starts at expiry")

	f.clock.Advance(time.Second)
	assert.Equal(t, 1, f.hub.SweepRoom(testRoomCode), "a member still not moving is asked again")

	require.NoError(t, f.hub.StationaryResponse(context.Background(), "conn-a", testRoomCode, "yes"))
	m = f.member(t, "user-a")
	assert.False(t, m.Stationary)
	assert.Nil(t, m.pending)
}

func TestHubStationaryNegativeResponseEscalates(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.move(t, "conn-a", anchor)

	f.clock.Advance(f.cfg.StationaryThreshold)
	require.Equal(t, 1, f.hub.SweepRoom(testRoomCode))
	require.NoError(t, f.hub.StationaryResponse(context.Background(), "conn-a", testRoomCode, "no"))

	assert.Equal(t, 1, f.transport.count("conn-a", EventUserStationary))
	sos := f.transport.payloads("conn-a", EventUserSOS)
	require.Len(t, sos, 1)
	assert.Equal(t, models.SOSReasonNeedsHelp, sos[0].(SOSPayload).Reason)
}

func TestHubUnreachablePromptEscalatesImmediately(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")
	f.move(t, "conn-a", anchor)
	f.transport.breakConn("conn-a")

	f.clock.Advance(f.cfg.StationaryThreshold)
	f.hub.SweepRoom(testRoomCode)

	assert.Equal(t, 1, f.transport.count("conn-b", EventUserStationary))
	sos := f.transport.payloads("conn-b", EventUserSOS)
	require.Len(t, sos, 1)
	assert.Equal(t, models.SOSReasonUnreachable, sos[0].(SOSPayload).Reason)
}

func TestHubMovementClearsStationaryAndSOS(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.move(t, "conn-a", anchor)

	f.clock.Advance(f.cfg.StationaryThreshold)
	f.hub.SweepRoom(testRoomCode)
	require.NoError(t, f.hub.StationaryResponse(context.Background(), "conn-a", testRoomCode, "help"))
	f.transport.reset()

	f.clock.Advance(time.Second)
	f.move(t, "conn-a", utils.Offset(anchor, 30, 0))

	assert.Equal(t, 1, f.transport.count("conn-a", EventUserStationaryCleared))
	assert.Equal(t, 1, f.transport.count("conn-a", EventUserSOSCleared))
	assert.Len(t, f.transport.roomMessages("conn-a", models.MessageTypeInfo), 1)

	m := f.member(t, "user-a")
	assert.False(t, m.Stationary)
	assert.False(t, m.SOS)
	assert.Equal(t, f.clock.Now(), m.LastMovedAt)

	// The stale SOS timer must not fire a second clear.
	time.Sleep(2 * f.cfg.SOSDuration)
	assert.Equal(t, 1, f.transport.count("conn-a", EventUserSOSCleared))
}

func TestHubChatSOSAutoClears(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")

	require.NoError(t, f.hub.ChatMessage(context.Background(), "conn-a", testRoomCode, models.MessageTypeSOS, ""))

	assert.Len(t, f.transport.roomMessages("conn-b", models.MessageTypeSOS), 1)
	sos := f.transport.payloads("conn-b", EventUserSOS)
	require.Len(t, sos, 1)
	assert.Equal(t, models.SOSReasonManual, sos[0].(SOSPayload).Reason)
	assert.True(t, f.member(t, "user-a").SOS)

	require.Eventually(t, func() bool {
		return f.transport.count("conn-b", EventUserSOSCleared) == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.member(t, "user-a").SOS)
}

func TestHubRepeatedSOSRestartsTimer(t *testing.T) {
	cfg := testTrackingConfig()
	cfg.SOSDuration = 400 * time.Millisecond
	f := newHubFixture(t, cfg)
	f.join(t, "conn-a", "user-a", "Alice")

	ctx := context.Background()
	require.NoError(t, f.hub.ChatMessage(ctx, "conn-a", testRoomCode, models.MessageTypeSOS, "help"))
	time.Sleep(250 * time.Millisecond)
	require.NoError(t, f.hub.ChatMessage(ctx, "conn-a", testRoomCode, models.MessageTypeSOS, "still need help"))
	time.Sleep(250 * time.Millisecond)

	assert.Zero(t, f.transport.count("conn-a", EventUserSOSCleared), "the first timer was replaced")
	require.Eventually(t, func() bool {
		return f.transport.count("conn-a", EventUserSOSCleared) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHubChatRelaysToEveryone(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")

	require.NoError(t, f.hub.ChatMessage(context.Background(), "conn-a", testRoomCode, "", "hello"))

	for _, conn := range []string{"conn-a", "conn-b"} {
		msgs := f.transport.roomMessages(conn, models.MessageTypeChat)
		require.Len(t, msgs, 1)
		assert.Equal(t, "conn-a", msgs[0].From)
		assert.Equal(t, "Alice", msgs[0].Message.Sender)
		assert.Equal(t, "hello", msgs[0].Message.Content)
	}

	err := f.hub.ChatMessage(context.Background(), "conn-a", testRoomCode, models.MessageTypeChat, "")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestHubClearSOSOnlyNotifies(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")

	require.NoError(t, f.hub.ClearSOS(context.Background(), "conn-a", testRoomCode))

	cleared := f.transport.payloads("conn-b", EventUserSOSCleared)
	require.Len(t, cleared, 1)
	assert.Equal(t, "conn-a", cleared[0].(MemberRef).ConnectionID)
}

func TestHubAddHazard(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")

	hazard, err := f.hub.AddHazard(context.Background(), "conn-a", testRoomCode, models.HazardTypeAccident, 10, 10, "")
	require.NoError(t, err)
	assert.NotEmpty(t, hazard.ID)
	assert.Equal(t, "Alice", hazard.ReporterName)

	assert.Zero(t, f.transport.count("conn-a", EventHazardAdded), "reporter does not get hazard-added")
	assert.Equal(t, 1, f.transport.count("conn-b", EventHazardAdded))
	assert.Len(t, f.transport.roomMessages("conn-a", models.MessageTypeHazard), 1)
	assert.Len(t, f.transport.roomMessages("conn-b", models.MessageTypeHazard), 1)

	assert.Len(t, f.hub.Hazards(testRoomCode), 1)
}

func TestHubBatteryLowWarnsOnce(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")

	ctx := context.Background()
	require.NoError(t, f.hub.BatteryUpdate(ctx, "conn-a", testRoomCode, 50, false))
	require.NoError(t, f.hub.BatteryUpdate(ctx, "conn-a", testRoomCode, 12, false))
	require.NoError(t, f.hub.BatteryUpdate(ctx, "conn-a", testRoomCode, 10, false))

	assert.Equal(t, 3, f.transport.count("conn-a", EventBatteryUpdate))
	assert.Len(t, f.transport.roomMessages("conn-a", models.MessageTypeWarning), 1)
}

func TestHubDisconnectIsIdempotent(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")

	f.hub.Disconnect("conn-b")
	f.hub.Disconnect("conn-b")
	f.hub.Disconnect("never-joined")

	assert.Equal(t, 1, f.transport.count("conn-a", EventUserLeft))
	assert.Len(t, f.hub.SnapshotMembers(testRoomCode), 1)
	_, ok := f.hub.Registry().Lookup("conn-b")
	assert.False(t, ok)
}

func TestHubLeaveRoom(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")

	require.NoError(t, f.hub.LeaveRoom(context.Background(), "conn-b", testRoomCode))

	assert.Equal(t, 1, f.transport.count("conn-a", EventUserLeft))
	assert.Len(t, f.hub.SnapshotMembers(testRoomCode), 1)
	assert.Empty(t, f.transport.closedConns(), "leaving keeps the socket open")
}

func TestHubDeleteRoom(t *testing.T) {
	f := newHubFixture(t, nil)
	f.join(t, "conn-a", "user-a", "Alice")
	f.join(t, "conn-b", "user-b", "Bob")
	f.move(t, "conn-a", anchor)
	f.clock.Advance(f.cfg.StationaryThreshold)
	f.hub.SweepRoom(testRoomCode)

	f.hub.DeleteRoom(context.Background(), testRoomCode, "room-1")

	for _, conn := range []string{"conn-a", "conn-b"} {
		deleted := f.transport.payloads(conn, EventRoomDeleted)
		require.Len(t, deleted, 1)
		assert.Equal(t, RoomDeletedPayload{RoomID: "room-1", RoomCode: testRoomCode}, deleted[0])
	}
	assert.Empty(t, f.hub.SnapshotMembers(testRoomCode))
	assert.Equal(t, 0, f.hub.Registry().Count())

	// The pending prompt timer was stopped with the room.
	time.Sleep(2 * f.cfg.ConfirmationTimeout)
	assert.Zero(t, f.transport.total(EventUserStationary))

	// Deleting again is harmless.
	f.hub.DeleteRoom(context.Background(), testRoomCode, "room-1")
	assert.Equal(t, 1, f.transport.count("conn-a", EventRoomDeleted))
}

func TestHubDispatch(t *testing.T) {
	f := newHubFixture(t, nil)
	principal := websocket.Principal{UserID: "user-a", DisplayName: "Alice"}
	ctx := context.Background()

	raw := func(v interface{}) json.RawMessage {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return data
	}

	f.hub.Dispatch(ctx, "conn-a", principal, EventJoinRoom, raw(map[string]string{"roomCode": "abc123"}))
	members := f.hub.SnapshotMembers(testRoomCode)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].Username, "display name falls back to the authenticated name")

	f.hub.Dispatch(ctx, "conn-a", principal, EventLocationUpdate, raw(map[string]interface{}{
		"roomCode": testRoomCode,
		"coords":   map[string]float64{"lat": 10, "lng": 10},
	}))
	assert.Equal(t, 1, f.transport.count("conn-a", EventLocationUpdate))

	// Out-of-range coordinates are dropped without a broadcast.
	f.hub.Dispatch(ctx, "conn-a", principal, EventLocationUpdate, raw(map[string]interface{}{
		"roomCode": testRoomCode,
		"coords":   map[string]float64{"lat": 120, "lng": 10},
	}))
	assert.Equal(t, 1, f.transport.count("conn-a", EventLocationUpdate))

	f.hub.Dispatch(ctx, "conn-a", principal, EventJoinRoom, raw(map[string]string{"roomCode": "NOPE42"}))
	errs := f.transport.payloads("conn-a", EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "NOT_FOUND", errs[0].(ErrorPayload).Code)

	f.hub.Dispatch(ctx, "conn-x", websocket.Principal{}, EventJoinRoom, raw(map[string]string{"roomCode": testRoomCode}))
	assert.Zero(t, f.transport.count("conn-x", EventRoomSnapshot))

	f.hub.Dispatch(ctx, "conn-a", principal, "unknown-event", raw(map[string]string{}))
	f.hub.Dispatch(ctx, "conn-a", principal, EventChatMessage, json.RawMessage(`{not json`))
	assert.Len(t, f.transport.payloads("conn-a", EventError), 1)
}
