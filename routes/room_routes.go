package routes

import (
	"github.com/gin-gonic/gin"

	"convoy/internal/handlers"
	"convoy/internal/middleware"
	"convoy/pkg/websocket"
)

// SetupRoomRoutes registers the room API under r
func SetupRoomRoutes(r *gin.RouterGroup, roomHandler *handlers.RoomHandler, jwtSecret string) {
	rooms := r.Group("/rooms")
	rooms.Use(middleware.AuthRequired(jwtSecret))
	{
		rooms.POST("", roomHandler.CreateRoom)
		rooms.GET("", roomHandler.ListRooms)
		rooms.GET("/:code", roomHandler.GetRoom)
		rooms.DELETE("/:code", roomHandler.DeleteRoom)
		rooms.GET("/:code/hazards", roomHandler.GetHazards)
	}
}

// SetupWebSocketRoutes registers the authenticated upgrade endpoint
func SetupWebSocketRoutes(r *gin.Engine, wsHandler *websocket.Handler, jwtSecret string) {
	r.GET("/ws", middleware.AuthRequired(jwtSecret), wsHandler.HandleWebSocket)
}

func SetupHealthRoutes(r *gin.Engine, healthHandler *handlers.HealthHandler) {
	r.GET("/health", healthHandler.Health)
}
