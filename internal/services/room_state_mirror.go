package services

import (
	"context"
	"encoding/json"
	"time"

	"convoy/internal/models"
	"convoy/internal/tracking"
	"convoy/internal/utils"
)

const (
	mirroredHazardLimit = 50
	defaultMirrorTTL    = 15 * time.Minute
)

// StateStore is the subset of pkg/cache used to mirror live room state.
type StateStore interface {
	HSet(ctx context.Context, key, field string, value interface{}) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
	RPush(ctx context.Context, key string, value interface{}) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	SetExpire(ctx context.Context, key string, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RoomStateMirror copies the latest member positions and hazards of every
// room into redis so they can be read outside the process. The in-memory
// store stays authoritative.
type RoomStateMirror struct {
	store StateStore
	ttl   time.Duration
}

func NewRoomStateMirror(store StateStore, ttl time.Duration) *RoomStateMirror {
	if ttl <= 0 {
		ttl = defaultMirrorTTL
	}
	return &RoomStateMirror{store: store, ttl: ttl}
}

func locationsKey(code string) string {
	return utils.CacheRoomPrefix + code + utils.CacheRoomLocations
}

func hazardsKey(code string) string {
	return utils.CacheRoomPrefix + code + utils.CacheRoomHazards
}

func (m *RoomStateMirror) SaveMemberLocation(ctx context.Context, roomCode string, view tracking.MemberView) error {
	key := locationsKey(roomCode)
	if err := m.store.HSet(ctx, key, view.UserID, view); err != nil {
		return err
	}
	return m.store.SetExpire(ctx, key, m.ttl)
}

func (m *RoomStateMirror) RemoveMember(ctx context.Context, roomCode, identity string) error {
	return m.store.HDel(ctx, locationsKey(roomCode), identity)
}

func (m *RoomStateMirror) SaveHazard(ctx context.Context, roomCode string, hazard models.Hazard) error {
	key := hazardsKey(roomCode)
	if err := m.store.RPush(ctx, key, hazard); err != nil {
		return err
	}
	if err := m.store.LTrim(ctx, key, -mirroredHazardLimit, -1); err != nil {
		return err
	}
	return m.store.SetExpire(ctx, key, m.ttl)
}

func (m *RoomStateMirror) Purge(ctx context.Context, roomCode string) error {
	return m.store.Delete(ctx, locationsKey(roomCode), hazardsKey(roomCode))
}

// MemberLocations returns the mirrored member views keyed by identity.
func (m *RoomStateMirror) MemberLocations(ctx context.Context, roomCode string) (map[string]tracking.MemberView, error) {
	raw, err := m.store.HGetAll(ctx, locationsKey(roomCode))
	if err != nil {
		return nil, err
	}

	views := make(map[string]tracking.MemberView, len(raw))
	for identity, data := range raw {
		var view tracking.MemberView
		if err := json.Unmarshal([]byte(data), &view); err != nil {
			continue
		}
		views[identity] = view
	}
	return views, nil
}

func (m *RoomStateMirror) ListHazards(ctx context.Context, roomCode string) ([]models.Hazard, error) {
	raw, err := m.store.LRange(ctx, hazardsKey(roomCode), 0, -1)
	if err != nil {
		return nil, err
	}

	hazards := make([]models.Hazard, 0, len(raw))
	for _, data := range raw {
		var hazard models.Hazard
		if err := json.Unmarshal([]byte(data), &hazard); err != nil {
			continue
		}
		hazards = append(hazards, hazard)
	}
	return hazards, nil
}
