package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"convoy/internal/models"
	"convoy/internal/repositories/interfaces"
	"convoy/pkg/maps"
)

type fakeRoomRepo struct {
	mu        sync.Mutex
	rooms     map[string]*models.Room
	createErr error
	creates   int
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[string]*models.Room)}
}

func (r *fakeRoomRepo) Create(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.rooms[room.Code]; exists {
		return fmt.Errorf("%w: %s", interfaces.ErrDuplicateKey, room.Code)
	}
	room.ID = primitive.NewObjectID()
	copied := *room
	r.rooms[room.Code] = &copied
	return nil
}

func (r *fakeRoomRepo) GetByCode(_ context.Context, code string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[code]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	copied := *room
	return &copied, nil
}

func (r *fakeRoomRepo) DeleteByCode(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[code]; !ok {
		return interfaces.ErrRecordNotFound
	}
	delete(r.rooms, code)
	return nil
}

func (r *fakeRoomRepo) ListByCreator(_ context.Context, creatorID string, _ int64) ([]*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Room
	for _, room := range r.rooms {
		if room.CreatorID == creatorID {
			copied := *room
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeStore implements RoomCache, StateStore and Publisher in memory.
type fakeStore struct {
	mu        sync.Mutex
	values    map[string][]byte
	hashes    map[string]map[string]string
	lists     map[string][]string
	expiry    map[string]time.Duration
	published []string
	gets      int
	getErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values: make(map[string][]byte),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
		expiry: make(map[string]time.Duration),
	}
}

func (f *fakeStore) Get(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gets++
	if f.getErr != nil {
		return f.getErr
	}
	data, ok := f.values[key]
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal(data, dest)
}

func (f *fakeStore) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = data
	f.expiry[key] = expiration
	return nil
}

func (f *fakeStore) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
		delete(f.hashes, key)
		delete(f.lists, key)
	}
	return nil
}

func (f *fakeStore) HSet(_ context.Context, key, field string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hashes[key] == nil {
		f.hashes[key] = make(map[string]string)
	}
	f.hashes[key][field] = string(data)
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) HDel(_ context.Context, key string, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range fields {
		delete(f.hashes[key], field)
	}
	return nil
}

func (f *fakeStore) RPush(_ context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = append(f.lists[key], string(data))
	return nil
}

func (f *fakeStore) LRange(_ context.Context, key string, _, _ int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists[key]...), nil
}

// LTrim only supports the negative "keep the last n" form used by the mirror.
func (f *fakeStore) LTrim(_ context.Context, key string, start, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.lists[key]
	if keep := int(-start); start < 0 && len(list) > keep {
		f.lists[key] = list[len(list)-keep:]
	}
	return nil
}

func (f *fakeStore) SetExpire(_ context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiry[key] = expiration
	return nil
}

func (f *fakeStore) Publish(_ context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, channel+" "+string(data))
	return nil
}

type fakeGeocoder struct {
	forward map[string]maps.GeocodeResult
	reverse *maps.GeocodeResult
	err     error
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (*maps.GeocodeResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	resp := &maps.GeocodeResponse{}
	if result, ok := g.forward[address]; ok {
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

func (g *fakeGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (*maps.GeocodeResponse, error) {
	if g.err != nil {
		return nil, g.err
	}
	resp := &maps.GeocodeResponse{}
	if g.reverse != nil {
		resp.Results = append(resp.Results, *g.reverse)
	}
	return resp, nil
}

type deletedRoom struct {
	code string
	id   string
}

type recordingDeletionHandler struct {
	mu      sync.Mutex
	deleted []deletedRoom
}

func (h *recordingDeletionHandler) DeleteRoom(_ context.Context, roomCode, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, deletedRoom{code: roomCode, id: roomID})
}

type failingNotifier struct{ err error }

func (n failingNotifier) NotifyRoomDeleted(context.Context, string, string) error {
	return n.err
}
