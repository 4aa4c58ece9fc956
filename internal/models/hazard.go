package models

import (
	"time"
)

type HazardType string

const (
	HazardTypeAccident    HazardType = "accident"
	HazardTypeRoadClosure HazardType = "road_closure"
	HazardTypePothole     HazardType = "pothole"
	HazardTypeTraffic     HazardType = "traffic"
	HazardTypeWeather     HazardType = "weather"
	HazardTypePolice      HazardType = "police"
	HazardTypeOther       HazardType = "other"
)

// Hazard is a road hazard reported by a room member.
type Hazard struct {
	ID           string     `json:"id"`
	RoomCode     string     `json:"roomCode"`
	Type         HazardType `json:"type"`
	Lat          float64    `json:"lat"`
	Lon          float64    `json:"lon"`
	ReportedBy   string     `json:"reportedBy"`
	ReporterName string     `json:"userName"`
	CreatedAt    time.Time  `json:"createdAt"`
}
