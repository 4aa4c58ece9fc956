package tracking

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoy/internal/config"
	"convoy/internal/models"
	"convoy/internal/utils"
)

var testMeta = RoomMeta{Code: testRoomCode, RoomID: "room-1", CreatorID: testCreatorID, GeofenceRadius: 300}

func TestStoreJoinIsIdempotent(t *testing.T) {
	store := NewStore(config.DefaultTrackingConfig())
	now := time.Now()

	_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", now)
	require.NoError(t, err)
	view, err := store.Join(testMeta, "user-1", "Alice B", "conn-2", now)
	require.NoError(t, err)

	assert.Equal(t, "conn-2", view.ConnectionID)
	assert.Equal(t, "Alice B", view.Username)

	members := store.SnapshotMembers(testRoomCode, now)
	require.Len(t, members, 1)
	assert.Equal(t, "user-1", members[0].UserID)
}

func TestStoreApplyLocationMovement(t *testing.T) {
	store := NewStore(config.DefaultTrackingConfig())
	start := time.Now()
	origin := models.Coords{Lat: 10, Lng: 10}

	_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", start)
	require.NoError(t, err)

	res, err := store.ApplyLocation(testRoomCode, "user-1", origin, time.Time{}, start)
	require.NoError(t, err)
	assert.True(t, res.Moved, "first sample counts as movement")

	res, err = store.ApplyLocation(testRoomCode, "user-1", utils.Offset(origin, 2, 0), time.Time{}, start.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, res.Moved)
	assert.InDelta(t, 2, res.Distance, 0.1)

	res, err = store.ApplyLocation(testRoomCode, "user-1", utils.Offset(origin, 20, 0), time.Time{}, start.Add(2*time.Second))
	require.NoError(t, err)
	assert.True(t, res.Moved)

	var member Member
	require.NoError(t, store.Update(testRoomCode, func(r *Room) error {
		member = *r.members["user-1"]
		return nil
	}))
	assert.Equal(t, start.Add(2*time.Second), member.LastMovedAt)
	assert.Equal(t, start.Add(2*time.Second), member.LastSeenAt)
	require.NotNil(t, member.PreviousCoords)
	assert.Len(t, member.Path, 3)
}

func TestStoreMovementClearsStationaryAndSOS(t *testing.T) {
	store := NewStore(config.DefaultTrackingConfig())
	now := time.Now()
	origin := models.Coords{Lat: 10, Lng: 10}

	_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", now)
	require.NoError(t, err)
	_, err = store.ApplyLocation(testRoomCode, "user-1", origin, time.Time{}, now)
	require.NoError(t, err)

	require.NoError(t, store.Update(testRoomCode, func(r *Room) error {
		m := r.members["user-1"]
		m.Stationary = true
		m.SOS = true
		m.pending = &pendingConfirmation{id: 1, timer: time.AfterFunc(time.Hour, func() {})}
		return nil
	}))

	res, err := store.ApplyLocation(testRoomCode, "user-1", utils.Offset(origin, 0, 50), time.Time{}, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, res.Moved)
	assert.True(t, res.ClearedPending)
	assert.True(t, res.ClearedStationary)
	assert.True(t, res.ClearedSOS)
	assert.False(t, res.Member.Stationary)
	assert.False(t, res.Member.SOS)
}

func TestStoreTrailIsBounded(t *testing.T) {
	cfg := config.DefaultTrackingConfig()
	cfg.TrailMaxPoints = 5
	cfg.TrailDuration = 5 * time.Minute
	store := NewStore(cfg)
	start := time.Now()
	origin := models.Coords{Lat: 10, Lng: 10}

	_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", start)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := store.ApplyLocation(testRoomCode, "user-1", utils.Offset(origin, float64(i*10), 0), time.Time{}, start.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	members := store.SnapshotMembers(testRoomCode, start.Add(8*time.Second))
	require.Len(t, members, 1)
	assert.Len(t, members[0].Trail, 5)

	points, _ := store.PruneTrails(start.Add(10 * time.Minute))
	assert.Equal(t, 5, points)
	members = store.SnapshotMembers(testRoomCode, start.Add(10*time.Minute))
	assert.Empty(t, members[0].Trail)
}

func TestStoreRejectsStaleSample(t *testing.T) {
	store := NewStore(config.DefaultTrackingConfig())
	now := time.Now()

	_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", now)
	require.NoError(t, err)

	_, err = store.ApplyLocation(testRoomCode, "user-1", models.Coords{Lat: 1, Lng: 1}, now, now)
	require.NoError(t, err)
	_, err = store.ApplyLocation(testRoomCode, "user-1", models.Coords{Lat: 2, Lng: 2}, now.Add(-time.Second), now)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestStoreConcurrentSamplesKeepLatest(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := NewStore(config.DefaultTrackingConfig())
		now := time.Now()
		origin := models.Coords{Lat: 10, Lng: 10}
		later := utils.Offset(origin, 1, 0)

		_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", now)
		require.NoError(t, err)

		samples := []struct {
			coords models.Coords
			at     time.Time
		}{
			{origin, now},
			{later, now.Add(time.Second)},
		}

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			moved int
		)
		for _, s := range samples {
			wg.Add(1)
			go func(c models.Coords, at time.Time) {
				defer wg.Done()
				res, err := store.ApplyLocation(testRoomCode, "user-1", c, at, now)
				if err != nil {
					return
				}
				if res.Moved {
					mu.Lock()
					moved++
					mu.Unlock()
				}
			}(s.coords, s.at)
		}
		wg.Wait()

		members := store.SnapshotMembers(testRoomCode, now)
		require.Len(t, members, 1)
		require.NotNil(t, members[0].Coords)
		assert.Equal(t, later, *members[0].Coords)
		assert.Equal(t, 1, moved)
	}
}

func TestStoreRemoveIsConnectionGuarded(t *testing.T) {
	store := NewStore(config.DefaultTrackingConfig())
	now := time.Now()

	_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", now)
	require.NoError(t, err)
	_, err = store.Join(testMeta, "user-1", "Alice", "conn-2", now)
	require.NoError(t, err)

	assert.False(t, store.Remove(testRoomCode, "user-1", "conn-1", now))
	assert.Len(t, store.SnapshotMembers(testRoomCode, now), 1)
	assert.True(t, store.Remove(testRoomCode, "user-1", "conn-2", now))
	assert.Empty(t, store.SnapshotMembers(testRoomCode, now))
}

func TestStoreDeleteBlocksRejoin(t *testing.T) {
	store := NewStore(config.DefaultTrackingConfig())
	now := time.Now()

	_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", now)
	require.NoError(t, err)
	_, err = store.Join(testMeta, "user-2", "Bob", "conn-2", now)
	require.NoError(t, err)

	members := store.Delete(testRoomCode, "", now)
	assert.Len(t, members, 2)
	assert.Equal(t, 0, store.Len())

	_, err = store.Join(testMeta, "user-1", "Alice", "conn-1", now)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Empty(t, store.Delete(testRoomCode, "", now), "second delete is a no-op")
}

func TestStorePruneForgetsIdleRooms(t *testing.T) {
	cfg := config.DefaultTrackingConfig()
	store := NewStore(cfg)
	now := time.Now()

	_, err := store.Join(testMeta, "user-1", "Alice", "conn-1", now)
	require.NoError(t, err)
	require.True(t, store.Remove(testRoomCode, "user-1", "conn-1", now))

	_, rooms := store.PruneTrails(now.Add(time.Minute))
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 1, store.Len())

	_, rooms = store.PruneTrails(now.Add(cfg.TrailDuration))
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 0, store.Len())

	_, err = store.Join(testMeta, "user-1", "Alice", "conn-1", now)
	assert.NoError(t, err, "a forgotten room is recreated on the next join")
}
