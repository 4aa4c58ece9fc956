package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"convoy/internal/middleware"
	"convoy/internal/models"
	"convoy/internal/services"
	"convoy/internal/tracking"
	"convoy/internal/utils"
	"convoy/internal/validators"
	"convoy/pkg/logger"
)

// LiveRooms exposes the in-memory state of rooms with connected members.
type LiveRooms interface {
	SnapshotMembers(roomCode string) []tracking.MemberView
	Hazards(roomCode string) []models.Hazard
}

// HazardArchive serves hazards for rooms that have no live state.
type HazardArchive interface {
	ListHazards(ctx context.Context, roomCode string) ([]models.Hazard, error)
}

type RoomHandler struct {
	roomService services.RoomService
	live        LiveRooms
	archive     HazardArchive
	log         *logger.Logger
}

type RoomDetails struct {
	Room    *models.Room          `json:"room"`
	Members []tracking.MemberView `json:"members"`
}

func NewRoomHandler(roomService services.RoomService, live LiveRooms, archive HazardArchive, log *logger.Logger) *RoomHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &RoomHandler{
		roomService: roomService,
		live:        live,
		archive:     archive,
		log:         log,
	}
}

// CreateRoom creates a room owned by the caller
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, displayName, ok := middleware.CurrentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	if errs := validators.ValidateCreateRoomRequest(&req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), userID, displayName, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Room created successfully", room)
}

// ListRooms returns the rooms the caller created
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	rooms, err := h.roomService.ListRooms(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Rooms retrieved successfully", rooms)
}

// GetRoom returns room metadata plus its live members
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	members := h.live.SnapshotMembers(room.Code)
	if members == nil {
		members = []tracking.MemberView{}
	}

	utils.SuccessResponse(c, "Room retrieved successfully", RoomDetails{
		Room:    room,
		Members: members,
	})
}

// DeleteRoom deletes a room; only its creator may do this
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	userID, _, ok := middleware.CurrentUser(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	if err := h.roomService.DeleteRoom(c.Request.Context(), c.Param("code"), userID); err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Room deleted successfully", nil)
}

// GetHazards lists hazards reported in a room
func (h *RoomHandler) GetHazards(c *gin.Context) {
	room, err := h.roomService.GetRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	hazards := h.live.Hazards(room.Code)
	if len(hazards) == 0 && h.archive != nil {
		archived, err := h.archive.ListHazards(c.Request.Context(), room.Code)
		if err != nil {
			h.log.WithRoom(room.Code).WithError(err).Warn("Failed to read archived hazards")
		} else {
			hazards = archived
		}
	}
	if hazards == nil {
		hazards = []models.Hazard{}
	}

	utils.SuccessResponse(c, "Hazards retrieved successfully", hazards)
}

func (h *RoomHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		utils.NotFoundResponse(c, "Room")
	case errors.Is(err, services.ErrForbidden):
		utils.ForbiddenResponse(c)
	case errors.Is(err, tracking.ErrValidation):
		utils.BadRequestResponse(c, err.Error())
	case errors.Is(err, tracking.ErrUnauthorized):
		utils.UnauthorizedResponse(c)
	case errors.Is(err, tracking.ErrConflict):
		utils.ConflictResponse(c, err.Error())
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("Room request failed")
		utils.InternalServerErrorResponse(c)
	}
}
