package response

import (
	"time"

	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/services/room"
)

// Board is the wire form of a board: a 3x3 grid of null, "X" or "O"
type Board [model.BoardSize][model.BoardSize]*string

// BoardFromModel converts a model.Board, mapping empty cells to null
func BoardFromModel(b model.Board) Board {
	var out Board
	for row := range b {
		for col := range b[row] {
			out[row][col] = symbolOrNil(b[row][col])
		}
	}
	return out
}

// RoomPlayer is a seated player
type RoomPlayer struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Symbol   string `json:"symbol"`
}

// Move is an entry in the move log
type Move struct {
	Row    int       `json:"row"`
	Col    int       `json:"col"`
	Player string    `json:"player"`
	Time   time.Time `json:"time"`
}

// MoveFromModel converts a model.Move
func MoveFromModel(m model.Move) Move {
	return Move{Row: m.Row, Col: m.Col, Player: string(m.Symbol), Time: m.Time}
}

// Room is the wire snapshot of a room
type Room struct {
	RoomID    string       `json:"roomId"`
	Players   []RoomPlayer `json:"players"`
	Board     Board        `json:"board"`
	Moves     []Move       `json:"moves"`
	Status    string       `json:"status"`
	Winner    *string      `json:"winner"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// RoomFromModel converts a model.Room
func RoomFromModel(r *model.Room) Room {
	players := make([]RoomPlayer, len(r.Seats))
	for i, s := range r.Seats {
		players[i] = RoomPlayer{
			UserID:   string(s.PlayerID),
			UserName: s.DisplayName,
			Symbol:   string(s.Symbol),
		}
	}

	moves := make([]Move, len(r.Moves))
	for i, m := range r.Moves {
		moves[i] = MoveFromModel(m)
	}

	return Room{
		RoomID:    string(r.Code),
		Players:   players,
		Board:     BoardFromModel(r.Board),
		Moves:     moves,
		Status:    string(r.Status),
		Winner:    winnerOrNil(r.Winner),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ConnectionEvent acknowledges a successful handshake
type ConnectionEvent struct {
	Type    model.EventType `json:"type"`
	Message string          `json:"message"`
}

// RoomCreatedEvent is sent to the creator of a room
type RoomCreatedEvent struct {
	Type     model.EventType `json:"type"`
	Room     Room            `json:"room"`
	Symbol   string          `json:"symbol"`
	NextTurn string          `json:"nextTurn"`
}

// PlayerJoinedEvent is sent to both players when the second player joins
type PlayerJoinedEvent struct {
	Type     model.EventType `json:"type"`
	Room     Room            `json:"room"`
	NextTurn string          `json:"nextTurn"`
}

// MoveMadeEvent is sent to both players after every accepted move
type MoveMadeEvent struct {
	Type       model.EventType `json:"type"`
	Move       Move            `json:"move"`
	Board      Board           `json:"board"`
	Winner     *string         `json:"winner"`
	RoomStatus string          `json:"roomStatus"`
	NextTurn   *string         `json:"nextTurn"`
}

// ErrorEvent reports a failure to the originating connection
type ErrorEvent struct {
	Type    model.EventType `json:"type"`
	Message string          `json:"message"`
}

// NewConnectionEvent builds the handshake acknowledgement
func NewConnectionEvent(message string) ConnectionEvent {
	return ConnectionEvent{Type: model.EventConnection, Message: message}
}

// NewRoomCreatedEvent builds a room_created event for the creator
func NewRoomCreatedEvent(r *model.Room) RoomCreatedEvent {
	return RoomCreatedEvent{
		Type:     model.EventRoomCreated,
		Room:     RoomFromModel(r),
		Symbol:   string(r.Seats[0].Symbol),
		NextTurn: string(r.NextTurn()),
	}
}

// NewPlayerJoinedEvent builds a player_joined event
func NewPlayerJoinedEvent(r *model.Room) PlayerJoinedEvent {
	return PlayerJoinedEvent{
		Type:     model.EventPlayerJoined,
		Room:     RoomFromModel(r),
		NextTurn: string(r.NextTurn()),
	}
}

// NewMoveMadeEvent builds a move_made event from an accepted move
func NewMoveMadeEvent(result *room.MoveResult) MoveMadeEvent {
	return MoveMadeEvent{
		Type:       model.EventMoveMade,
		Move:       MoveFromModel(result.Move),
		Board:      BoardFromModel(result.Room.Board),
		Winner:     winnerOrNil(result.Room.Winner),
		RoomStatus: string(result.Room.Status),
		NextTurn:   symbolOrNil(result.NextTurn),
	}
}

// NewErrorEvent builds an error event
func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: model.EventError, Message: message}
}

func symbolOrNil(s model.Symbol) *string {
	if s == model.SymbolNone {
		return nil
	}
	v := string(s)
	return &v
}

func winnerOrNil(w model.Winner) *string {
	if w == model.WinnerNone {
		return nil
	}
	v := string(w)
	return &v
}
