// Package config loads server configuration from TTT_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name
const Prefix = "TTT_"

// Storage backends
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
)

// Config is the server configuration
type Config struct {
	Host     string     `env:"HOST"`
	Port     int        `env:"PORT" envDefault:"8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	StorageType string        `env:"STORAGE_TYPE" envDefault:"memory"`
	RedisURL    string        `env:"REDIS_URL"`
	RoomTTL     time.Duration `env:"ROOM_TTL" envDefault:"0s"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"tictactoe.db"`

	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"1h"`

	NATSURL string `env:"NATS_URL"`

	RateLimit        float64       `env:"RATE_LIMIT" envDefault:"10"`
	RateBurst        int           `env:"RATE_BURST" envDefault:"20"`
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"5s"`
}

// Load reads configuration from the process environment
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom reads configuration from environ, or the process environment if nil
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: Prefix, Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks for missing or inconsistent settings
func (c Config) Validate() error {
	var errs []error

	switch c.StorageType {
	case StorageMemory, StorageSQLite:
	case StorageRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New(Prefix+"REDIS_URL is required when storage type is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid %sSTORAGE_TYPE %q: must be memory, redis or sqlite", Prefix, c.StorageType))
	}

	if c.StorageType == StorageSQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New(Prefix+"SQLITE_PATH is required when storage type is sqlite"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New(Prefix+"JWT_SECRET is required"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid %sPORT %d", Prefix, c.Port))
	}
	if c.RoomTTL < 0 {
		errs = append(errs, errors.New(Prefix+"ROOM_TTL must not be negative"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New(Prefix+"TOKEN_TTL must be positive"))
	}

	return errors.Join(errs...)
}
