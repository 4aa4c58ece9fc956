package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Room struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Code           string             `json:"code" bson:"code" validate:"required"`
	CreatorID      string             `json:"creator_id" bson:"creator_id" validate:"required"`
	CreatorName    string             `json:"creator_name" bson:"creator_name"`
	Source         Place              `json:"source" bson:"source"`
	Destination    Place              `json:"destination" bson:"destination"`
	GeofenceRadius float64            `json:"geofence_radius" bson:"geofence_radius"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" bson:"updated_at"`
}

type CreateRoomRequest struct {
	Source         Place   `json:"source" validate:"required"`
	Destination    Place   `json:"destination" validate:"required"`
	GeofenceRadius float64 `json:"geofence_radius" validate:"omitempty,min=100,max=2000"`
}
