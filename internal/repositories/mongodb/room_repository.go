package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"convoy/internal/models"
	"convoy/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type roomRepository struct {
	collection *mongo.Collection
	timeout    time.Duration
}

// NewRoomRepository bounds every query by timeout when it is positive.
func NewRoomRepository(db *mongo.Database, timeout time.Duration) interfaces.RoomRepository {
	return &roomRepository{
		collection: db.Collection("rooms"),
		timeout:    timeout,
	}
}

func (r *roomRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	room.ID = primitive.NewObjectID()
	room.CreatedAt = time.Now()
	room.UpdatedAt = room.CreatedAt

	_, err := r.collection.InsertOne(ctx, room)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: room code %s", interfaces.ErrDuplicateKey, room.Code)
		}
		return fmt.Errorf("failed to create room: %w", err)
	}

	return nil
}

func (r *roomRepository) GetByCode(ctx context.Context, code string) (*models.Room, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var room models.Room
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&room)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: room %s", interfaces.ErrRecordNotFound, code)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return &room, nil
}

func (r *roomRepository) DeleteByCode(ctx context.Context, code string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"code": code})
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: room %s", interfaces.ErrRecordNotFound, code)
	}

	return nil
}

func (r *roomRepository) ListByCreator(ctx context.Context, creatorID string, limit int64) ([]*models.Room, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, bson.M{"creator_id": creatorID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find rooms by creator: %w", err)
	}
	defer cursor.Close(ctx)

	var rooms []*models.Room
	for cursor.Next(ctx) {
		var room models.Room
		if err := cursor.Decode(&room); err != nil {
			return nil, fmt.Errorf("failed to decode room: %w", err)
		}
		rooms = append(rooms, &room)
	}

	return rooms, cursor.Err()
}
