package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"convoy/internal/config"
	"convoy/internal/models"
	"convoy/pkg/logger"
)

type sentEvent struct {
	connID  string
	event   string
	payload interface{}
}

type closedConn struct {
	connID string
	reason string
}

// recordingTransport captures every outbound event.
type recordingTransport struct {
	mu     sync.Mutex
	sent   []sentEvent
	closed []closedConn
	broken map[string]bool
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{broken: make(map[string]bool)}
}

func (f *recordingTransport) SendToConnection(connID, event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broken[connID] {
		return errors.New("connection gone")
	}
	f.sent = append(f.sent, sentEvent{connID: connID, event: event, payload: payload})
	return nil
}

func (f *recordingTransport) CloseConnection(connID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, closedConn{connID: connID, reason: reason})
	return nil
}

func (f *recordingTransport) breakConn(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broken[connID] = true
}

func (f *recordingTransport) payloads(connID, event string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []interface{}
	for _, s := range f.sent {
		if s.connID == connID && s.event == event {
			out = append(out, s.payload)
		}
	}
	return out
}

func (f *recordingTransport) count(connID, event string) int {
	return len(f.payloads(connID, event))
}

func (f *recordingTransport) total(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, s := range f.sent {
		if s.event == event {
			n++
		}
	}
	return n
}

func (f *recordingTransport) closedConns() []closedConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]closedConn(nil), f.closed...)
}

func (f *recordingTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.closed = nil
}

func (f *recordingTransport) roomMessages(connID string, kind models.MessageType) []models.RoomMessage {
	var out []models.RoomMessage
	for _, p := range f.payloads(connID, EventRoomMessage) {
		msg := p.(models.RoomMessage)
		if msg.Message.Type == kind {
			out = append(out, msg)
		}
	}
	return out
}

type fakeDirectory struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

func newFakeDirectory(rooms ...*models.Room) *fakeDirectory {
	d := &fakeDirectory{rooms: make(map[string]*models.Room)}
	for _, r := range rooms {
		d.rooms[r.Code] = r
	}
	return d
}

func (d *fakeDirectory) GetRoomByCode(_ context.Context, code string) (*models.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[code]
	if !ok {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, code)
	}
	return room, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	testRoomCode  = "ABC123"
	testCreatorID = "creator-1"
)

func testTrackingConfig() *config.TrackingConfig {
	cfg := config.DefaultTrackingConfig()
	cfg.ConfirmationTimeout = 60 * time.Millisecond
	cfg.SOSDuration = 80 * time.Millisecond
	return cfg
}

type hubFixture struct {
	hub       *Hub
	transport *recordingTransport
	directory *fakeDirectory
	clock     *fakeClock
	cfg       *config.TrackingConfig
}

func newHubFixture(t *testing.T, cfg *config.TrackingConfig) *hubFixture {
	t.Helper()
	if cfg == nil {
		cfg = testTrackingConfig()
	}

	transport := newRecordingTransport()
	directory := newFakeDirectory(
		&models.Room{Code: testRoomCode, CreatorID: testCreatorID, GeofenceRadius: 300},
		&models.Room{Code: "XYZ789", CreatorID: "someone-else", GeofenceRadius: 300},
	)
	clock := newFakeClock()
	hub := NewHub(cfg, transport, directory, logger.NewNop(), WithClock(clock.Now))

	return &hubFixture{hub: hub, transport: transport, directory: directory, clock: clock, cfg: cfg}
}

func (f *hubFixture) join(t *testing.T, connID, identity, name string) {
	t.Helper()
	require.NoError(t, f.hub.Join(context.Background(), connID, identity, name, testRoomCode))
}

func (f *hubFixture) move(t *testing.T, connID string, c models.Coords) {
	t.Helper()
	require.NoError(t, f.hub.LocationUpdate(context.Background(), connID, testRoomCode, &c, time.Time{}))
}

func (f *hubFixture) member(t *testing.T, identity string) Member {
	t.Helper()
	var snapshot Member
	err := f.hub.store.Update(testRoomCode, func(room *Room) error {
		m, ok := room.members[identity]
		if !ok {
			return ErrNotFound
		}
		snapshot = *m
		return nil
	})
	require.NoError(t, err)
	return snapshot
}
