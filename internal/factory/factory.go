package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mcoot/tictactoe-go/internal/dependencies/clock"
	"github.com/mcoot/tictactoe-go/internal/dependencies/random"
	"github.com/mcoot/tictactoe-go/internal/events"
	"github.com/mcoot/tictactoe-go/internal/metrics"
	"github.com/mcoot/tictactoe-go/internal/services/auth"
	"github.com/mcoot/tictactoe-go/internal/services/connection"
	"github.com/mcoot/tictactoe-go/internal/services/room"
	"github.com/mcoot/tictactoe-go/internal/session"
	"github.com/mcoot/tictactoe-go/internal/storage"
	"github.com/mcoot/tictactoe-go/internal/storage/memory"
	redisstorage "github.com/mcoot/tictactoe-go/internal/storage/redis"
	"github.com/mcoot/tictactoe-go/internal/storage/sqlite"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
	StorageTypeSQLite = "sqlite"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Side channels
	Publisher       events.Publisher
	Metrics         metrics.Recorder
	MetricsRegistry *prometheus.Registry

	// Services
	Rooms       *room.Registry
	Connections *connection.Registry
	AuthService *auth.Service
	Coordinator *session.Coordinator
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "sqlite")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLitePath is the database file (required if StorageType is "sqlite")
	SQLitePath string
	// AuthConfig holds configuration for the auth service. Secret is required.
	AuthConfig auth.Config
	// SessionConfig holds websocket session settings
	// If zero value, defaults to session.DefaultConfig()
	SessionConfig session.Config
	// NATSURL enables room event publishing when set
	NATSURL string
	// RuntimeMetrics adds Go runtime and process collectors to the registry
	RuntimeMetrics bool
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	if cfg.AuthConfig.Secret == "" {
		return nil, errors.New("AuthConfig.Secret is required")
	}

	store, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		natsPublisher, err := events.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		publisher = natsPublisher
	}

	reg := prometheus.NewRegistry()
	if cfg.RuntimeMetrics {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	sessionCfg := cfg.SessionConfig
	if sessionCfg == (session.Config{}) {
		sessionCfg = session.DefaultConfig()
	}

	deps := dependencies{
		store:      store,
		clock:      clock.New(),
		random:     random.New(),
		publisher:  publisher,
		registry:   reg,
		authCfg:    cfg.AuthConfig,
		sessionCfg: sessionCfg,
		logger:     logger,
	}
	return newWithDependencies(deps), nil
}

func openStorage(cfg Config) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypeSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLitePath required when StorageType is sqlite")
		}
		return sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("invalid StorageType %q: must be 'memory', 'redis' or 'sqlite'", storageType)
	}
}

// dependencies are the externally supplied parts of an App
type dependencies struct {
	store      storage.Storage
	clock      clock.Clock
	random     random.Random
	publisher  events.Publisher
	registry   *prometheus.Registry
	authCfg    auth.Config
	sessionCfg session.Config
	logger     *slog.Logger
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(d dependencies) *App {
	recorder := metrics.NewCollector(d.registry)

	rooms := room.NewRegistry(d.store, d.clock, d.random, d.publisher, recorder, d.logger)
	connections := connection.NewRegistry(d.logger)
	authService := auth.New(d.store, d.clock, d.random, d.authCfg, d.logger)
	coordinator := session.NewCoordinator(authService, rooms, connections, d.random, recorder, d.sessionCfg, d.logger)

	return &App{
		Storage:         d.store,
		Clock:           d.clock,
		Random:          d.random,
		Publisher:       d.publisher,
		Metrics:         recorder,
		MetricsRegistry: d.registry,
		Rooms:           rooms,
		Connections:     connections,
		AuthService:     authService,
		Coordinator:     coordinator,
	}
}

// Close closes live connections, drains the publisher and releases storage
func (a *App) Close() error {
	a.Coordinator.Shutdown()
	return errors.Join(a.Publisher.Close(), a.Storage.Close())
}
