package model

import "time"

// RoomCode is a short human-shareable identifier for joining rooms
type RoomCode string

// RoomStatus represents where a room is in its lifecycle
type RoomStatus string

const (
	RoomStatusWaiting    RoomStatus = "waiting"     // One player seated
	RoomStatusInProgress RoomStatus = "in_progress" // Both seated, moves accepted
	RoomStatusFinished   RoomStatus = "finished"    // Won or drawn, terminal
)

// Winner records how a finished room ended
type Winner string

const (
	WinnerNone Winner = ""
	WinnerX    Winner = "X"
	WinnerO    Winner = "O"
	WinnerDraw Winner = "draw"
)

// WinnerFor returns the Winner value for a winning symbol
func WinnerFor(s Symbol) Winner {
	return Winner(s)
}

// MaxSeats is the number of players in a room
const MaxSeats = 2

// Seat binds a player to a symbol within a room
type Seat struct {
	PlayerID    PlayerID
	DisplayName string
	Symbol      Symbol
}

// Move is a single entry in a room's move log
type Move struct {
	Row    int
	Col    int
	Symbol Symbol
	Time   time.Time
}

// Position returns the cell the move was played in
func (m Move) Position() Position {
	return Position{Row: m.Row, Col: m.Col}
}

// Room is one match between two players
type Room struct {
	Code      RoomCode
	Seats     []Seat // first seat is X, second is O
	Board     Board
	Moves     []Move // append-only
	Status    RoomStatus
	Winner    Winner // set only when Status is finished
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SeatFor returns the seat held by the given player, or nil if not seated
func (r *Room) SeatFor(playerID PlayerID) *Seat {
	for i := range r.Seats {
		if r.Seats[i].PlayerID == playerID {
			return &r.Seats[i]
		}
	}
	return nil
}

// IsFull returns true when both seats are taken
func (r *Room) IsFull() bool {
	return len(r.Seats) >= MaxSeats
}

// NextTurn derives the symbol expected to move next from the move log.
// X always moves first, so an even-length log means it is X's turn.
func (r *Room) NextTurn() Symbol {
	if len(r.Moves)%2 == 0 {
		return SymbolX
	}
	return SymbolO
}

// Participants returns the IDs of all seated players in seat order
func (r *Room) Participants() []PlayerID {
	ids := make([]PlayerID, len(r.Seats))
	for i, s := range r.Seats {
		ids[i] = s.PlayerID
	}
	return ids
}

// Clone returns a deep copy of the room
func (r *Room) Clone() *Room {
	c := *r
	c.Seats = append([]Seat(nil), r.Seats...)
	c.Moves = append([]Move(nil), r.Moves...)
	return &c
}
