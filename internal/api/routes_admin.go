package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sessiongate/internal/handlers"
)

func registerAdminRoutes(admin *gin.RouterGroup, handler *handlers.AdminSessionHandler) {
	sessions := admin.Group("/sessions")
	{
		sessions.GET("/statistics", handler.Statistics)
		sessions.GET("/suspicious", handler.Suspicious)
		sessions.POST("/cleanup", handler.Cleanup)
		sessions.POST("/:id/terminate", handler.Terminate)
	}

	users := admin.Group("/users/:userID/sessions")
	{
		users.GET("", handler.UserSessions)
		users.POST("/terminate", handler.TerminateUser)
	}
}
