package interfaces

import (
	"context"
	"errors"

	"convoy/internal/models"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
)

type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByCode(ctx context.Context, code string) (*models.Room, error)
	DeleteByCode(ctx context.Context, code string) error

	// Creator listing
	ListByCreator(ctx context.Context, creatorID string, limit int64) ([]*models.Room, error)
}
