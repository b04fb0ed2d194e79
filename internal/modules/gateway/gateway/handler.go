package gateway

import (
	"github.com/gin-gonic/gin"

	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/response"
)

// RegisterRoutes mounts socket.io on root and the stats endpoint on api.
func RegisterRoutes(root, api *gin.RouterGroup, hub *Hub) {
	handler := gin.WrapH(hub.Handler())
	root.Any("/socket.io", handler)
	root.Any("/socket.io/*any", handler)

	api.GET("/gateway/stats", func(c *gin.Context) {
		response.OK(c, hub.Stats(c.Request.Context()))
	})
}
