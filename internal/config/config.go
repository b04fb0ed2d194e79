package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	DSN            string                `yaml:"dsn"`
	RedisURL       string                `yaml:"redis_url"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Env            string                `yaml:"env"` // "development" | "production"
	Paths          RuntimePathsConfig    `yaml:"paths"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	JWTSecret      string                `yaml:"jwt_secret"`
	Realtime       RealtimeConfig        `yaml:"realtime"`

	// baseDir is the directory of the loaded config file; relative runtime
	// paths resolve against it.
	baseDir string
}

type DatabaseRuntimeConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`

	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

type RedisRuntimeConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Params   map[string]string `yaml:"params"`
}

type RuntimePathsConfig struct {
	Logs string `yaml:"logs"`
}

// RealtimeConfig tunes the socket gateway and room core.
type RealtimeConfig struct {
	RedisFanout     bool          `yaml:"redis_fanout"`
	DefaultCapacity int           `yaml:"default_capacity"`
	MaxCapacity     int           `yaml:"max_capacity"`
	QueueSize       int           `yaml:"queue_size"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
}

type rawAppConfig struct {
	Port           int               `yaml:"port"`
	DSN            string            `yaml:"dsn"`
	DatabaseURL    string            `yaml:"database_url"`
	RedisURL       string            `yaml:"redis_url"`
	Database       rawDatabaseConfig `yaml:"database"`
	Redis          rawRedisConfig    `yaml:"redis"`
	Env            string            `yaml:"env"`
	NodeEnv        string            `yaml:"node_env"`
	Paths          rawPathsConfig    `yaml:"paths"`
	LogDir         string            `yaml:"log_dir"`
	AllowedOrigins []string          `yaml:"allowed_origins"`
	CORSOrigins    []string          `yaml:"cors_allowed_origins"`
	JWTSecret      string            `yaml:"jwt_secret"`
	Realtime       rawRealtimeConfig `yaml:"realtime"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`

	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

type rawRedisConfig struct {
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Params   map[string]string `yaml:"params"`
}

type rawPathsConfig struct {
	Logs string `yaml:"logs"`
}

type rawRealtimeConfig struct {
	RedisFanout     *bool  `yaml:"redis_fanout"`
	DefaultCapacity int    `yaml:"default_capacity"`
	MaxCapacity     int    `yaml:"max_capacity"`
	QueueSize       int    `yaml:"queue_size"`
	HandlerTimeout  string `yaml:"handler_timeout"`
}

// Load reads the YAML file at configPath. A missing file is an error; every
// key is optional and falls back to a default.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content, path)
	if err != nil {
		return nil, err
	}
	if abs, absErr := filepath.Abs(path); absErr == nil {
		cfg.baseDir = filepath.Dir(abs)
	}
	return cfg, nil
}

// Parse decodes config content; source is only used in error messages.
func Parse(content []byte, source string) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", source, err)
		}
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, fmt.Errorf("config %q: %w", source, err)
	}
	applyEnvOverrides(&cfg)

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, source)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, source)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, source)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, source)
	}
	if cfg.Realtime.DefaultCapacity > cfg.Realtime.MaxCapacity {
		return nil, fmt.Errorf("realtime.default_capacity %d exceeds realtime.max_capacity %d in %q",
			cfg.Realtime.DefaultCapacity, cfg.Realtime.MaxCapacity, source)
	}

	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,

			MaxOpenConns: defaultDBMaxOpenConns,
			MaxIdleConns: defaultDBMaxIdleConns,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Realtime: RealtimeConfig{
			DefaultCapacity: defaultRoomCapacity,
			MaxCapacity:     defaultMaxCapacity,
			QueueSize:       defaultQueueSize,
			HandlerTimeout:  defaultHandlerTimeout,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.NodeEnv); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}

	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSOrigins)
	}

	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		cfg.JWTSecret = v
	}

	rt, err := applyRawRealtimeConfig(cfg.Realtime, raw.Realtime)
	if err != nil {
		return err
	}
	cfg.Realtime = rt

	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := normalizeRedisRawURL(raw.RedisURL); v != "" {
		cfg.RedisURL = v
	}
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.Env = normalizeEnv(cfg.Env)
	return nil
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current
	db := raw.Database
	if v := strings.TrimSpace(db.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(db.URL); v != "" && cfg.DSN == "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(db.Host); v != "" {
		cfg.Host = v
	}
	if db.Port != 0 {
		cfg.Port = db.Port
	}
	if v := firstNonEmpty(db.User, db.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(db.Password); v != "" {
		cfg.Password = v
	}
	if v := firstNonEmpty(db.Name, db.DBName); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(db.Charset); v != "" {
		cfg.Charset = v
	}
	if db.ParseTime != nil {
		cfg.ParseTime = *db.ParseTime
	}
	if v := strings.TrimSpace(db.Loc); v != "" {
		cfg.Loc = v
	}
	if db.Params != nil {
		cfg.Params = db.Params
	}
	if db.MaxOpenConns > 0 {
		cfg.MaxOpenConns = db.MaxOpenConns
	}
	if db.MaxIdleConns > 0 {
		cfg.MaxIdleConns = db.MaxIdleConns
	}
	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current
	r := raw.Redis
	if v := strings.TrimSpace(r.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(r.Host); v != "" {
		cfg.Host = v
	}
	if r.Port != 0 {
		cfg.Port = r.Port
	}
	if v := strings.TrimSpace(r.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(r.Password); v != "" {
		cfg.Password = v
	}
	if r.DB != nil {
		cfg.DB = *r.DB
	}
	if r.TLS != nil {
		cfg.TLS = *r.TLS
	}
	if r.Params != nil {
		cfg.Params = r.Params
	}
	return normalizeRedisConfig(cfg)
}

func applyRawRealtimeConfig(current RealtimeConfig, raw rawRealtimeConfig) (RealtimeConfig, error) {
	cfg := current
	if raw.RedisFanout != nil {
		cfg.RedisFanout = *raw.RedisFanout
	}
	if raw.DefaultCapacity != 0 {
		cfg.DefaultCapacity = raw.DefaultCapacity
	}
	if raw.MaxCapacity != 0 {
		cfg.MaxCapacity = raw.MaxCapacity
	}
	if raw.QueueSize != 0 {
		cfg.QueueSize = raw.QueueSize
	}
	if v := strings.TrimSpace(raw.HandlerTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid realtime.handler_timeout %q: %w", v, err)
		}
		cfg.HandlerTimeout = d
	}
	return normalizeRealtimeConfig(cfg), nil
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(envJWTSecret)); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(envDatabaseDSN)); v != "" {
		cfg.DSN = v
	}
	if v := normalizeRedisRawURL(os.Getenv(envRedisURL)); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envLogDir)); v != "" {
		cfg.Paths.Logs = v
	}
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// LogDir returns the directory for daily log files. A relative paths.logs
// is taken from the config file's directory, or the working directory when
// the config was parsed from memory.
func (c *AppConfig) LogDir() string {
	dir := strings.TrimSpace(c.Paths.Logs)
	if dir == "" {
		dir = defaultLogsDir
	}
	if filepath.IsAbs(dir) || c.baseDir == "" {
		return filepath.Clean(dir)
	}
	return filepath.Join(c.baseDir, dir)
}
