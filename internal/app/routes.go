package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dhanjayarya01/cinemasync-backend/internal/middleware"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/gateway/gateway"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/health"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/room"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/user"
	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/response"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes() {
	r := a.router
	authMW := middleware.Auth(a.verifier)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "cinemasync-backend",
		"version": "1.0.0",
	}

	// socket.io is mounted before the rate limiter; its long-polling
	// transport would otherwise exhaust the per-IP budget.
	root := r.Group("")
	api := r.Group(apiPrefix)
	gateway.RegisterRoutes(root, api, a.hub)

	api.Use(middleware.RateLimit(a.rc.Raw(), a.logger.Named("ratelimit")))
	api.Use(middleware.OptionalAuth(a.verifier))

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptime := time.Since(processStart)
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptime.Milliseconds(),
			"humanize":  humanizeDuration(uptime),
		})
	})

	health.RegisterRoutes(api, a.db, a.rc.Raw(), a.sched, authMW)
	user.NewHandler(a.users).RegisterRoutes(api, authMW)
	room.NewHandler(a.rooms).RegisterRoutes(api, authMW, middleware.Idempotence(a.rc.Raw()))
}
