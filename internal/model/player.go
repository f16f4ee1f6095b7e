package model

import "time"

// PlayerID uniquely identifies a player across the system
type PlayerID string

// Player is an authenticated identity as seen by the game core
type Player struct {
	ID          PlayerID
	DisplayName string
	Email       string
	GamesWon    int // incremented once per won game
	CreatedAt   time.Time
}

// RegisteredPlayer holds the login credentials for a player
// Stored separately so the password hash never travels with the identity
type RegisteredPlayer struct {
	PlayerID     PlayerID
	Email        string // login key (unique)
	PasswordHash string // bcrypt hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
