// internal/config/config.go
//
// Environment-driven configuration for the server.
// main loads an optional .env file (godotenv) first; Load then reads the
// process environment, applying defaults for anything unset.

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Port         string
	LogLevel     string
	LogFormat    string // "json" | "console"
	StaticDir    string
	ClientOrigin string

	DBPath       string
	StoreBackend string
	GamesDir     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	SessionTTL        time.Duration
	GCInterval        time.Duration
	HeartbeatInterval time.Duration

	MaxKeyLen       int
	MaxMessageBytes int64
	MsgRate         float64
	MsgBurst        int

	AdminJWTSecret string
}

// Load reads the environment through getenv (os.Getenv when nil).
func Load(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}

	c := &Config{
		Port:           env("PORT", "3000"),
		LogLevel:       env("LOG_LEVEL", "info"),
		LogFormat:      env("LOG_FORMAT", "json"),
		StaticDir:      env("STATIC_DIR", "public"),
		ClientOrigin:   env("CLIENT_ORIGIN", ""),
		DBPath:         env("DB_PATH", "./data/seabattle.db"),
		StoreBackend:   strings.ToLower(env("STORE_BACKEND", BackendSQLite)),
		GamesDir:       env("GAMES_DIR", "./data/games"),
		RedisAddr:      env("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  env("REDIS_PASSWORD", ""),
		RedisPrefix:    env("REDIS_PREFIX", "seabattle:game:"),
		AdminJWTSecret: env("ADMIN_JWT_SECRET", ""),
	}

	var errs []error
	dur := func(k, def string) time.Duration {
		d, err := time.ParseDuration(env(k, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			return 0
		}
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", k))
		}
		return d
	}
	num := func(k, def string) int {
		n, err := strconv.Atoi(env(k, def))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
		return n
	}

	c.SessionTTL = dur("SESSION_TTL", "10m")
	c.GCInterval = dur("GC_INTERVAL", "1m")
	c.HeartbeatInterval = dur("HEARTBEAT_INTERVAL", "30s")
	c.RedisDB = num("REDIS_DB", "0")
	c.MaxKeyLen = num("MAX_KEY_LEN", "8")
	c.MaxMessageBytes = int64(num("MAX_MESSAGE_BYTES", "65536"))
	c.MsgBurst = num("MSG_BURST", "40")

	rate, err := strconv.ParseFloat(env("MSG_RATE", "20"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("MSG_RATE: %w", err))
	}
	c.MsgRate = rate

	switch c.StoreBackend {
	case BackendSQLite, BackendFile, BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND: unknown backend %q", c.StoreBackend))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unknown format %q", c.LogFormat))
	}
	if c.MaxKeyLen < 1 {
		errs = append(errs, errors.New("MAX_KEY_LEN: must be at least 1"))
	}
	if c.MaxMessageBytes < 1 {
		errs = append(errs, errors.New("MAX_MESSAGE_BYTES: must be positive"))
	}
	if c.MsgRate <= 0 || c.MsgBurst < 1 {
		errs = append(errs, errors.New("MSG_RATE and MSG_BURST must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return ":" + c.Port }
