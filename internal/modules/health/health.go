package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/cron"
	"github.com/dhanjayarya01/cinemasync-backend/internal/pkg/response"
)

const pingTimeout = 2 * time.Second

// RegisterRoutes mounts the public probe and the authenticated cron admin.
// rdb may be nil.
func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, rdb *redis.Client, sched *cron.Scheduler, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		sqlDB, err := db.DB()
		dbOK := err == nil && sqlDB.PingContext(ctx) == nil
		redisOK := rdb == nil || rdb.Ping(ctx).Err() == nil

		status := "ok"
		code := http.StatusOK
		if !dbOK || !redisOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":   status,
			"database": dbOK,
			"redis":    redisOK,
		})
	})

	cronGroup := rg.Group("/health/cron", authMW)
	cronGroup.GET("", func(c *gin.Context) {
		response.OK(c, sched.List())
	})
	cronGroup.POST("/run/:name", func(c *gin.Context) {
		if err := sched.RunNow(c.Request.Context(), c.Param("name")); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.OK(c, gin.H{"message": "job finished"})
	})
}
