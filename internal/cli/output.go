package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format, w: os.Stdout}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintEvent outputs a websocket event; JSON output is one raw frame per line
func (o *Output) PrintEvent(evt Event) {
	if o.format == "json" {
		_, _ = fmt.Fprintln(o.w, string(evt.Raw))
		return
	}

	switch evt.Type {
	case TypeConnection:
		_, _ = fmt.Fprintln(o.w, evt.Message)
	case TypeError:
		_, _ = fmt.Fprintf(o.w, "Error: %s\n", evt.Message)
	case TypeRoomCreated:
		_, _ = fmt.Fprintf(o.w, "Room created: %s (you are %s)\n", evt.Room.RoomID, evt.Symbol)
		_, _ = fmt.Fprintln(o.w, "Waiting for an opponent...")
	case TypePlayerJoined:
		o.printRoom(*evt.Room)
		o.printNextTurn(evt.NextTurn)
	case TypeMoveMade:
		if evt.Move != nil {
			_, _ = fmt.Fprintf(o.w, "%s played (%d,%d)\n", evt.Move.Player, evt.Move.Row, evt.Move.Col)
		}
		if evt.Board != nil {
			o.printBoard(*evt.Board)
		}
		if evt.RoomStatus == "finished" {
			o.printResult(evt.Winner)
		} else {
			o.printNextTurn(evt.NextTurn)
		}
	default:
		_, _ = fmt.Fprintln(o.w, string(evt.Raw))
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case Player:
		o.printPlayer(v)
	case AuthResult:
		o.printAuthResult(v)
	case Room:
		o.printRoom(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// Player response type (matches API)
type Player struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	Email     string    `json:"email"`
	GamesWon  int       `json:"games_won"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResult combines player and token
type AuthResult struct {
	Player    Player    `json:"player"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Board is a 3x3 grid of "X", "O" or null
type Board [3][3]*string

// RoomPlayer is a seated player
type RoomPlayer struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Symbol   string `json:"symbol"`
}

// Move is an entry in a room's move log
type Move struct {
	Row    int       `json:"row"`
	Col    int       `json:"col"`
	Player string    `json:"player"`
	Time   time.Time `json:"time"`
}

// Room response type
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

// HealthResult response type
type HealthResult struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func (o *Output) printPlayer(p Player) {
	_, _ = fmt.Fprintf(o.w, "Player: %s (%s)\n", p.UserName, p.ID)
	_, _ = fmt.Fprintf(o.w, "Email: %s\n", p.Email)
	_, _ = fmt.Fprintf(o.w, "Games won: %d\n", p.GamesWon)
}

func (o *Output) printAuthResult(a AuthResult) {
	o.printPlayer(a.Player)
	_, _ = fmt.Fprintf(o.w, "Token: %s\n", a.Token)
}

func (o *Output) printRoom(r Room) {
	_, _ = fmt.Fprintf(o.w, "Room: %s\n", r.RoomID)
	_, _ = fmt.Fprintf(o.w, "Status: %s\n", r.Status)
	_, _ = fmt.Fprintf(o.w, "Players (%d):\n", len(r.Players))
	for _, p := range r.Players {
		_, _ = fmt.Fprintf(o.w, "  - %s: %s (%s)\n", p.Symbol, p.UserName, p.UserID)
	}
	o.printBoard(r.Board)
	if r.Status == "finished" {
		o.printResult(r.Winner)
	}
}

func (o *Output) printBoard(b Board) {
	_, _ = fmt.Fprintln(o.w, "     0   1   2")
	for row := range b {
		cells := make([]string, len(b[row]))
		for col, cell := range b[row] {
			cells[col] = "."
			if cell != nil {
				cells[col] = *cell
			}
		}
		_, _ = fmt.Fprintf(o.w, "  %d  %s\n", row, strings.Join(cells, " | "))
		if row < len(b)-1 {
			_, _ = fmt.Fprintln(o.w, "    ---+---+---")
		}
	}
}

func (o *Output) printNextTurn(next *string) {
	if next != nil {
		_, _ = fmt.Fprintf(o.w, "Next turn: %s\n", *next)
	}
}

func (o *Output) printResult(winner *string) {
	switch {
	case winner == nil:
	case *winner == "draw":
		_, _ = fmt.Fprintln(o.w, "Game over: draw")
	default:
		_, _ = fmt.Fprintf(o.w, "Game over: %s wins\n", *winner)
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	_, _ = fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	_, _ = fmt.Fprintf(o.w, "Connections: %d\n", h.Connections)
}
