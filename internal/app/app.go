package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dhanjayarya01/cinemasync-backend/internal/config"
	"github.com/dhanjayarya01/cinemasync-backend/internal/database"
	"github.com/dhanjayarya01/cinemasync-backend/internal/middleware"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/auth"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/gateway/gateway"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/realtime"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/room"
	"github.com/dhanjayarya01/cinemasync-backend/internal/modules/user"
	pkgcron "github.com/dhanjayarya01/cinemasync-backend/internal/pkg/cron"
	pkgredis "github.com/dhanjayarya01/cinemasync-backend/internal/pkg/redis"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	rc     *pkgredis.Client
	hub    *gateway.Hub
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler

	verifier *auth.Verifier
	users    *user.Service
	rooms    *room.Service
}

// New initializes the application: config → DB → Redis → core → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	applyRuntimeSettings(cfg, logger)

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger.Named("http")))
	origins := newOriginPolicy(cfg.AllowedOrigins, cfg.IsDev())
	router.Use(cors.New(corsConfig(origins)))

	verifier := auth.NewVerifier(db)
	users := user.NewService(db)
	store := room.NewStore(db)
	rooms := room.NewService(db, store, logger.Named("room"), cfg.Realtime.DefaultCapacity, cfg.Realtime.MaxCapacity)

	hub := gateway.NewHub(gateway.Options{
		Redis:     rc,
		Fanout:    cfg.Realtime.RedisFanout,
		QueueSize: cfg.Realtime.QueueSize,
		Origins:   origins.Allow,
		Logger:    logger.Named("gateway"),
	})
	core := realtime.NewService(realtime.Options{
		Rooms:     store,
		Users:     users,
		Verifier:  verifier,
		Forwarder: hub,
		Presence:  hub.RoomPresence(),
		Logger:    logger.Named("realtime"),
		OpTimeout: cfg.Realtime.HandlerTimeout,
	})
	hub.Attach(core)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	sched := pkgcron.New(logger.Named("cron"))
	registerCronJobs(sched, rooms, hub)
	sched.Start(ctx)

	app := &App{
		cfg:      cfg,
		router:   router,
		db:       db,
		rc:       rc,
		hub:      hub,
		logger:   logger,
		cancel:   cancel,
		sched:    sched,
		verifier: verifier,
		users:    users,
		rooms:    rooms,
	}
	app.registerRoutes()
	return app, nil
}

func corsConfig(origins *originPolicy) cors.Config {
	return cors.Config{
		AllowOriginFunc:  origins.Allow,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown closes every socket, letting disconnect cleanup reach the
// database, then stops background work.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.hub.Shutdown(ctx); err != nil {
		a.logger.Warn("gateway shutdown incomplete", zap.Error(err))
	}
	a.cancel()
}

// Close releases the Redis and database connections.
func (a *App) Close() {
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("close redis failed", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

var processStart = time.Now()
