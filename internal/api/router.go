package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echodesk/internal/middleware"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	Health        *HealthHandler
	Notifications *NotificationHandler
	Rooms         *RoomHandler
	// WS upgrades GET /v1/ws. It runs behind the JWT middleware.
	WS gin.HandlerFunc
}

// NewRouter wires every HTTP route.
//
// /v1/health and /metrics are public. Everything else under /v1 needs a
// valid JWT, and the notification and room routes need an admin one.
func NewRouter(h Handlers, jwtSecret string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.Metrics())

	r.GET("/v1/health", h.Health.Check)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtSecret))
	v1.GET("/ws", h.WS)

	admin := v1.Group("", middleware.RequireRole(models.RoleAdmin))
	admin.POST("/notifications", h.Notifications.Send)
	admin.POST("/notifications/group", h.Notifications.SendGroup)
	admin.GET("/admin/rooms", h.Rooms.List)
	admin.GET("/admin/rooms/:key/messages", h.Rooms.Messages)
	admin.POST("/admin/rooms/:key/messages", h.Rooms.Reply)
	admin.POST("/admin/rooms/:key/close", h.Rooms.Close)

	return r
}
