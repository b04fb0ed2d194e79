package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 3001

	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "cinemasync"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"

	defaultDBMaxOpenConns = 25
	defaultDBMaxIdleConns = 10

	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0
	defaultLogsDir    = "logs"

	defaultRoomCapacity   = 10
	defaultMaxCapacity    = 50
	defaultQueueSize      = 64
	defaultHandlerTimeout = 5 * time.Second

	envJWTSecret   = "CINEMASYNC_JWT_SECRET"
	envDatabaseDSN = "CINEMASYNC_DATABASE_DSN"
	envRedisURL    = "CINEMASYNC_REDIS_URL"
	envLogDir      = "CINEMASYNC_LOG_DIR"
)
