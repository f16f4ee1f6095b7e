package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcoot/tictactoe-go/internal/api/handler"
	"github.com/mcoot/tictactoe-go/internal/api/middleware"
	"github.com/mcoot/tictactoe-go/internal/api/response"
	"github.com/mcoot/tictactoe-go/internal/metrics"
	basemiddleware "github.com/mcoot/tictactoe-go/internal/middleware"
	"github.com/mcoot/tictactoe-go/internal/services/auth"
	"github.com/mcoot/tictactoe-go/internal/services/connection"
	"github.com/mcoot/tictactoe-go/internal/services/room"
	"github.com/mcoot/tictactoe-go/internal/session"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	AuthService *auth.Service
	Rooms       *room.Registry
	Connections *connection.Registry
	Coordinator *session.Coordinator
	// Gatherer backs GET /metrics; the endpoint is omitted when nil
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	playerHandler := handler.NewPlayerHandler(cfg.AuthService)
	roomHandler := handler.NewRoomHandler(cfg.Rooms)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := basemiddleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Player routes (no auth required for registering/logging in)
	api.HandleFunc("/players/register", playerHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/players/login", playerHandler.Login).Methods(http.MethodPost)

	// Protected player routes
	playerProtected := api.PathPrefix("/players").Subrouter()
	playerProtected.Use(authMiddleware)
	playerProtected.HandleFunc("/me", playerHandler.GetMe).Methods(http.MethodGet)

	// Room routes (all require auth)
	rooms := api.PathPrefix("/rooms").Subrouter()
	rooms.Use(authMiddleware)
	rooms.HandleFunc("/{code}", roomHandler.Get).Methods(http.MethodGet)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler(cfg.Connections)).Methods(http.MethodGet)

	// Websocket and scrape endpoints live outside the JSON API
	root := r.NewRoute().Subrouter()
	root.Use(basemiddleware.Recovery(cfg.Logger, basemiddleware.DefaultPanicHandler))
	root.Use(loggingMiddleware)
	root.HandleFunc("/ws", cfg.Coordinator.ServeWS).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		root.Handle("/metrics", metrics.Handler(cfg.Gatherer)).Methods(http.MethodGet)
	}

	return r
}

func healthHandler(connections *connection.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.HealthResponse{
			Status:      "ok",
			Connections: connections.Count(),
		})
	}
}
