package storage

import (
	"context"

	"github.com/mcoot/tictactoe-go/internal/model"
)

// Storage defines the interface for durable persistence of players and rooms.
// Implementations return copies: mutating a returned value never changes stored state.
type Storage interface {
	// Player operations. SavePlayer never changes GamesWon of an existing
	// player; only IncrementWinCount does.
	SavePlayer(ctx context.Context, player *model.Player) error
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	IncrementWinCount(ctx context.Context, id model.PlayerID) error
	// DeletePlayer removes a player that has no registered credentials.
	// Deleting an unknown player is not an error.
	DeletePlayer(ctx context.Context, id model.PlayerID) error

	// Registered player operations
	SaveRegisteredPlayer(ctx context.Context, rp *model.RegisteredPlayer) error
	GetRegisteredPlayerByEmail(ctx context.Context, email string) (*model.RegisteredPlayer, error)

	// Room operations
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error)
	SaveRoom(ctx context.Context, room *model.Room) error
	RoomExists(ctx context.Context, code model.RoomCode) (bool, error)

	// Close releases any underlying connections
	Close() error
}
