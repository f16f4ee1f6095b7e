package response

import (
	"time"

	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/services/auth"
)

// Player represents a player in API responses
type Player struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email"`
	GamesWon  int       `json:"games_won"`
	CreatedAt time.Time `json:"created_at"`
}

// PlayerFromModel converts a model.Player to a response Player
func PlayerFromModel(p *model.Player) Player {
	return Player{
		ID:        string(p.ID),
		UserName:  p.DisplayName,
		Email:     p.Email,
		GamesWon:  p.GamesWon,
		CreatedAt: p.CreatedAt,
	}
}

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	Player    Player    `json:"player"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		Player:    PlayerFromModel(&s.Player),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

// HealthResponse is the response for the health endpoint
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}
