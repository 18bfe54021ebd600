package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/sessiongate/internal/handlers"
)

func registerLoginRoutes(service *gin.RouterGroup, handler *handlers.SessionHandler, limiter gin.HandlerFunc) {
	service.POST("/sessions", limiter, handler.Create)
}

func registerSessionRoutes(sessions *gin.RouterGroup, handler *handlers.SessionHandler) {
	sessions.GET("/me", handler.ListMine)
	sessions.POST("/heartbeat", handler.Heartbeat)
	sessions.POST("/extend", handler.Extend)
	sessions.POST("/logout", handler.Logout)
	sessions.POST("/logout_all", handler.LogoutAll)
}
