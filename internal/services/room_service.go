package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"convoy/internal/config"
	"convoy/internal/models"
	"convoy/internal/repositories/interfaces"
	"convoy/internal/tracking"
	"convoy/internal/utils"
	"convoy/internal/validators"
	"convoy/pkg/cache"
	"convoy/pkg/logger"
	"convoy/pkg/maps"
)

var ErrForbidden = errors.New("only the room creator can do this")

type RoomService interface {
	CreateRoom(ctx context.Context, creatorID, creatorName string, req *models.CreateRoomRequest) (*models.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*models.Room, error)
	DeleteRoom(ctx context.Context, code, requesterID string) error
	ListRooms(ctx context.Context, creatorID string) ([]*models.Room, error)
}

// RoomCache is the subset of pkg/cache the room service needs.
type RoomCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type roomService struct {
	repo     interfaces.RoomRepository
	cache    RoomCache
	geocoder maps.Geocoder
	notifier DeletionNotifier
	fallback RoomDeletionHandler
	cacheTTL time.Duration
	timeout  time.Duration
	radius   float64
	log      *logger.Logger
	newCode  func() string
}

type RoomServiceOption func(*roomService)

func WithRoomCache(cache RoomCache, ttl time.Duration) RoomServiceOption {
	return func(s *roomService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithGeocoder(geocoder maps.Geocoder, timeout time.Duration) RoomServiceOption {
	return func(s *roomService) {
		s.geocoder = geocoder
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithDefaultGeofenceRadius sets the radius given to rooms created without one.
func WithDefaultGeofenceRadius(radius float64) RoomServiceOption {
	return func(s *roomService) {
		s.radius = radius
	}
}

func WithDeletionNotifier(notifier DeletionNotifier) RoomServiceOption {
	return func(s *roomService) {
		s.notifier = notifier
	}
}

// WithDeletionFallback tears down local state when the notifier cannot
// announce a deletion, so this instance never keeps serving a deleted room.
func WithDeletionFallback(handler RoomDeletionHandler) RoomServiceOption {
	return func(s *roomService) {
		s.fallback = handler
	}
}

func NewRoomService(repo interfaces.RoomRepository, log *logger.Logger, opts ...RoomServiceOption) RoomService {
	if log == nil {
		log = logger.NewNop()
	}
	s := &roomService{
		repo:     repo,
		cacheTTL: 5 * time.Minute,
		timeout:  5 * time.Second,
		radius:   config.DefaultGeofenceRadius,
		log:      log,
		newCode:  utils.GenerateRoomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func roomCacheKey(code string) string {
	return utils.CacheRoomPrefix + code + utils.CacheRoomMetaSuffix
}

func (s *roomService) CreateRoom(ctx context.Context, creatorID, creatorName string, req *models.CreateRoomRequest) (*models.Room, error) {
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator is required", tracking.ErrUnauthorized)
	}
	if errs := validators.ValidateCreateRoomRequest(req); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", tracking.ErrValidation, errs.Error())
	}

	room := &models.Room{
		CreatorID:      creatorID,
		CreatorName:    creatorName,
		Source:         s.resolvePlace(ctx, req.Source),
		Destination:    s.resolvePlace(ctx, req.Destination),
		GeofenceRadius: config.ClampGeofenceRadius(req.GeofenceRadius, s.radius),
	}

	for attempt := 1; attempt <= utils.RoomCodeMaxAttempts; attempt++ {
		room.Code = s.newCode()

		err := s.repo.Create(ctx, room)
		if err == nil {
			s.log.LogRoomEvent(room.Code, "room-created", map[string]interface{}{
				"creator_id":      creatorID,
				"geofence_radius": room.GeofenceRadius,
			})
			return room, nil
		}
		if !errors.Is(err, interfaces.ErrDuplicateKey) {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}
		s.log.WithField("attempt", attempt).Debug("Room code collision, retrying")
	}

	return nil, fmt.Errorf("%w: could not allocate a unique room code", tracking.ErrConflict)
}

// resolvePlace fills in whichever half of a place is missing when a
// geocoder is configured. Lookup failures keep the place as given.
func (s *roomService) resolvePlace(ctx context.Context, place models.Place) models.Place {
	place.Address = strings.TrimSpace(place.Address)
	if s.geocoder == nil {
		return place
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch {
	case place.Coords == nil && place.Address != "":
		resp, err := s.geocoder.Geocode(lookupCtx, place.Address)
		if err != nil {
			s.log.WithError(err).WithField("address", place.Address).Warn("Failed to geocode room place")
			return place
		}
		best, err := resp.First()
		if err != nil {
			s.log.WithField("address", place.Address).Info("Room place has no geocoding match")
			return place
		}
		place.Coords = &models.Coords{Lat: best.Coordinates.Latitude, Lng: best.Coordinates.Longitude}
		place.PlaceID = best.PlaceID

	case place.Coords != nil && place.Address == "":
		resp, err := s.geocoder.ReverseGeocode(lookupCtx, place.Coords.Lat, place.Coords.Lng)
		if err != nil {
			s.log.WithError(err).WithField("coords", utils.FormatCoords(*place.Coords)).Warn("Failed to reverse geocode room place")
			return place
		}
		if best, err := resp.First(); err == nil {
			place.Address = best.Address
			place.PlaceID = best.PlaceID
		}
	}

	return place
}

func (s *roomService) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	code = validators.NormalizeRoomCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: room code is required", tracking.ErrValidation)
	}

	if s.cache != nil {
		var cached models.Room
		err := s.cache.Get(ctx, roomCacheKey(code), &cached)
		if err == nil {
			return &cached, nil
		}
		if !cache.IsNil(err) {
			s.log.WithContext(ctx).WithRoom(code).WithError(err).Warn("Room cache lookup failed, falling back to database")
		}
	}

	room, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: room %s", tracking.ErrNotFound, code)
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, roomCacheKey(code), room, s.cacheTTL); err != nil {
			s.log.WithContext(ctx).WithRoom(code).WithError(err).Debug("Failed to cache room")
		}
	}

	return room, nil
}

func (s *roomService) DeleteRoom(ctx context.Context, code, requesterID string) error {
	room, err := s.GetRoomByCode(ctx, code)
	if err != nil {
		return err
	}
	if room.CreatorID != requesterID {
		return ErrForbidden
	}

	if err := s.repo.DeleteByCode(ctx, room.Code); err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			return fmt.Errorf("%w: room %s", tracking.ErrNotFound, room.Code)
		}
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, roomCacheKey(room.Code)); err != nil {
			s.log.WithContext(ctx).WithRoom(room.Code).WithError(err).Warn("Failed to evict deleted room from cache")
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyRoomDeleted(ctx, room.Code, room.ID.Hex()); err != nil {
			log := s.log.WithContext(ctx).WithRoom(room.Code).WithError(err)
			if s.fallback == nil {
				log.Error("Failed to announce room deletion")
				return fmt.Errorf("room deleted but live sessions were not closed: %w", err)
			}
			log.Warn("Failed to announce room deletion, closing local sessions only")
			s.fallback.DeleteRoom(ctx, room.Code, room.ID.Hex())
		}
	}

	return nil
}

func (s *roomService) ListRooms(ctx context.Context, creatorID string) ([]*models.Room, error) {
	rooms, err := s.repo.ListByCreator(ctx, creatorID, 50)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []*models.Room{}
	}
	return rooms, nil
}
