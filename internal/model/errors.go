package model

import (
	"errors"
	"fmt"
)

// Common errors used across the application
var (
	// Player errors
	ErrPlayerNotFound = errors.New("player not found")
	ErrEmailTaken     = errors.New("email is already registered")

	// Room errors
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomExists        = errors.New("room code already in use")
	ErrRoomFull          = errors.New("room is full")
	ErrAlreadyInRoom     = errors.New("player is already in room")
	ErrNotInRoom         = errors.New("player is not in room")
	ErrRoomCodeExhausted = errors.New("could not generate a unique room code")

	// Game errors
	ErrGameNotStarted = errors.New("game has not started")
	ErrGameFinished   = errors.New("game is already finished")
	ErrOutOfTurn      = errors.New("not this player's turn")
	ErrInvalidCell    = errors.New("invalid board cell")
	ErrCellOccupied   = errors.New("cell is already occupied")

	// ErrXPlaysFirst is the out-of-turn error for O attempting the opening move
	ErrXPlaysFirst = fmt.Errorf("%w: X plays first", ErrOutOfTurn)
)

// IsValidation reports whether err is a rule violation caused by the client
// rather than an infrastructure failure
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrRoomFull),
		errors.Is(err, ErrAlreadyInRoom),
		errors.Is(err, ErrNotInRoom),
		errors.Is(err, ErrGameNotStarted),
		errors.Is(err, ErrGameFinished),
		errors.Is(err, ErrOutOfTurn),
		errors.Is(err, ErrInvalidCell),
		errors.Is(err, ErrCellOccupied):
		return true
	}
	return false
}
