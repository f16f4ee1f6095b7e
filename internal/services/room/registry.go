package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/tictactoe-go/internal/dependencies/clock"
	"github.com/mcoot/tictactoe-go/internal/dependencies/random"
	"github.com/mcoot/tictactoe-go/internal/events"
	"github.com/mcoot/tictactoe-go/internal/metrics"
	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/services/board"
	"github.com/mcoot/tictactoe-go/internal/storage"
)

const (
	// CodeLength is the length of generated room codes
	CodeLength = 6
	// CodeAlphabet is the characters used in room codes (avoid confusing chars)
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// MaxCodeAttempts bounds how many codes are tried before giving up
	MaxCodeAttempts = 10
)

// MoveResult is the outcome of an accepted move
type MoveResult struct {
	Room     *model.Room
	Move     model.Move
	Outcome  model.Outcome
	NextTurn model.Symbol // SymbolNone once the room is finished
}

// JoinedFunc is called with the room after a join commits, while the room is
// still locked. It must not block or call back into the registry.
type JoinedFunc func(room *model.Room)

// MovedFunc is called with the result after a move commits, while the room is
// still locked. It must not block or call back into the registry.
type MovedFunc func(result *MoveResult)

// entry holds one room's state. mu serializes every read-modify-write on the room.
type entry struct {
	mu      sync.Mutex
	room    *model.Room // nil until loaded
	removed bool        // detached from the registry map; holders must re-acquire
}

// Registry owns the active rooms and enforces their lifecycle and turn order.
// Rooms are cached in memory and loaded from storage on first access; the
// cached copy is only replaced after storage accepts the new state.
type Registry struct {
	storage   storage.Storage
	clock     clock.Clock
	random    random.Random
	publisher events.Publisher
	metrics   metrics.Recorder
	logger    *slog.Logger

	mu    sync.Mutex
	rooms map[model.RoomCode]*entry
}

// NewRegistry creates a new Registry
func NewRegistry(
	storage storage.Storage,
	clock clock.Clock,
	random random.Random,
	publisher events.Publisher,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		storage:   storage,
		clock:     clock,
		random:    random,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger.With(slog.String("component", "room_registry")),
		rooms:     make(map[model.RoomCode]*entry),
	}
}

// CreateRoom creates a waiting room with the player seated as X
func (r *Registry) CreateRoom(ctx context.Context, player model.Player) (*model.Room, error) {
	now := r.clock.Now()

	for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
		code := model.RoomCode(r.random.String(CodeLength, CodeAlphabet))
		if r.cached(code) {
			continue
		}
		exists, err := r.storage.RoomExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("check room code: %w", err)
		}
		if exists {
			continue
		}

		room := &model.Room{
			Code: code,
			Seats: []model.Seat{
				{PlayerID: player.ID, DisplayName: player.DisplayName, Symbol: model.SymbolX},
			},
			Status:    model.RoomStatusWaiting,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := r.storage.CreateRoom(ctx, room); err != nil {
			if errors.Is(err, model.ErrRoomExists) {
				continue
			}
			return nil, fmt.Errorf("create room: %w", err)
		}

		r.install(room)
		r.metrics.RoomCreated()
		r.logger.Info("room created",
			slog.String("room", string(code)),
			slog.String("player_id", string(player.ID)),
		)
		r.publish(ctx, events.TypeRoomCreated, room)
		return room.Clone(), nil
	}

	return nil, model.ErrRoomCodeExhausted
}

// GetRoom returns a snapshot of the room
func (r *Registry) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	e, err := r.lock(ctx, code)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.room.Clone(), nil
}

// JoinRoom seats the player as O and starts the game. A non-nil notify runs
// before the room is unlocked, so notifications for one room are issued in
// commit order.
func (r *Registry) JoinRoom(ctx context.Context, player model.Player, code model.RoomCode, notify JoinedFunc) (*model.Room, error) {
	e, err := r.lock(ctx, code)
	if err != nil {
		return nil, err
	}

	room, err := r.join(ctx, e, player)
	if err == nil && notify != nil {
		notify(room)
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.metrics.RoomJoined()
	r.logger.Info("player joined room",
		slog.String("room", string(code)),
		slog.String("player_id", string(player.ID)),
	)
	r.publish(ctx, events.TypeRoomJoined, room)
	return room, nil
}

func (r *Registry) join(ctx context.Context, e *entry, player model.Player) (*model.Room, error) {
	current := e.room
	switch {
	case current.SeatFor(player.ID) != nil:
		return nil, model.ErrAlreadyInRoom
	case current.IsFull():
		return nil, model.ErrRoomFull
	case current.Status == model.RoomStatusFinished:
		return nil, model.ErrGameFinished
	}

	next := current.Clone()
	next.Seats = append(next.Seats, model.Seat{
		PlayerID:    player.ID,
		DisplayName: player.DisplayName,
		Symbol:      model.SymbolO,
	})
	next.Status = model.RoomStatusInProgress
	next.UpdatedAt = r.clock.Now()

	if err := r.commit(ctx, e, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// MakeMove places the player's symbol at pos. A winning move credits the
// winner before notify runs, and notify runs before the room is unlocked,
// like JoinRoom's.
func (r *Registry) MakeMove(ctx context.Context, playerID model.PlayerID, code model.RoomCode, pos model.Position, notify MovedFunc) (*MoveResult, error) {
	e, err := r.lock(ctx, code)
	if err != nil {
		return nil, err
	}

	result, winner, err := r.move(ctx, e, playerID, pos)
	if err == nil && winner != "" {
		r.creditWin(ctx, code, winner)
	}
	if err == nil && notify != nil {
		notify(result)
	}
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.metrics.MoveApplied()
	if result.Room.Status == model.RoomStatusFinished {
		r.metrics.GameFinished(string(result.Room.Winner))
		r.logger.Info("game finished",
			slog.String("room", string(code)),
			slog.String("winner", string(result.Room.Winner)),
		)
		r.publish(ctx, events.TypeRoomFinished, result.Room)
	}
	return result, nil
}

func (r *Registry) move(ctx context.Context, e *entry, playerID model.PlayerID, pos model.Position) (*MoveResult, model.PlayerID, error) {
	current := e.room
	if current.Status == model.RoomStatusFinished {
		return nil, "", model.ErrGameFinished
	}
	seat := current.SeatFor(playerID)
	if seat == nil {
		return nil, "", model.ErrNotInRoom
	}
	if current.Status == model.RoomStatusWaiting {
		return nil, "", model.ErrGameNotStarted
	}
	if seat.Symbol != current.NextTurn() {
		if len(current.Moves) == 0 {
			return nil, "", model.ErrXPlaysFirst
		}
		return nil, "", model.ErrOutOfTurn
	}

	updated, outcome, err := board.Apply(current.Board, pos, seat.Symbol)
	if err != nil {
		return nil, "", err
	}

	now := r.clock.Now()
	move := model.Move{Row: pos.Row, Col: pos.Col, Symbol: seat.Symbol, Time: now}

	next := current.Clone()
	next.Board = updated
	next.Moves = append(next.Moves, move)
	next.UpdatedAt = now

	var winner model.PlayerID
	switch outcome {
	case model.OutcomeWin:
		next.Status = model.RoomStatusFinished
		next.Winner = model.WinnerFor(seat.Symbol)
		winner = seat.PlayerID
	case model.OutcomeDraw:
		next.Status = model.RoomStatusFinished
		next.Winner = model.WinnerDraw
	}

	if err := r.commit(ctx, e, next); err != nil {
		return nil, "", err
	}

	result := &MoveResult{
		Room:    next.Clone(),
		Move:    move,
		Outcome: outcome,
	}
	if next.Status != model.RoomStatusFinished {
		result.NextTurn = next.NextTurn()
	}
	return result, winner, nil
}

// creditWin bumps the winner's counter. The move is already committed, so a
// failure here is reported but never undoes the game result. Caller must hold
// the room's lock.
func (r *Registry) creditWin(ctx context.Context, code model.RoomCode, winner model.PlayerID) {
	if err := r.storage.IncrementWinCount(ctx, winner); err != nil {
		r.metrics.WinCountFailed()
		r.logger.Error("failed to increment win count",
			slog.String("room", string(code)),
			slog.String("player_id", string(winner)),
			slog.String("error", err.Error()),
		)
	}
}

// commit persists next and, only on success, makes it the cached state.
// Caller must hold e.mu.
func (r *Registry) commit(ctx context.Context, e *entry, next *model.Room) error {
	if err := r.storage.SaveRoom(ctx, next); err != nil {
		return fmt.Errorf("save room %s: %w", next.Code, err)
	}
	e.room = next
	return nil
}

func (r *Registry) publish(ctx context.Context, t events.Type, room *model.Room) {
	event := events.NewRoomEvent(t, room, r.clock.Now())
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish room event",
			slog.String("room", string(room.Code)),
			slog.String("event", string(t)),
			slog.String("error", err.Error()),
		)
	}
}

// acquire returns the entry for code, creating an empty placeholder if needed
func (r *Registry) acquire(code model.RoomCode) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rooms[code]
	if !ok {
		e = &entry{}
		r.rooms[code] = e
	}
	return e
}

// lock returns the locked entry for code, loading the room from storage if
// it is not cached. The caller must unlock e.mu.
func (r *Registry) lock(ctx context.Context, code model.RoomCode) (*entry, error) {
	for {
		e := r.acquire(code)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		if e.room != nil {
			return e, nil
		}

		room, err := r.storage.GetRoom(ctx, code)
		if err != nil {
			r.detach(code, e)
			e.mu.Unlock()
			if errors.Is(err, model.ErrRoomNotFound) {
				return nil, model.ErrRoomNotFound
			}
			return nil, fmt.Errorf("load room %s: %w", code, err)
		}
		e.room = room
		return e, nil
	}
}

// detach drops an unloaded placeholder. Caller must hold e.mu.
func (r *Registry) detach(code model.RoomCode, e *entry) {
	r.mu.Lock()
	if r.rooms[code] == e {
		delete(r.rooms, code)
	}
	r.mu.Unlock()
	e.removed = true
}

// install caches a newly created room unless a concurrent lookup already loaded it
func (r *Registry) install(room *model.Room) {
	e := r.acquire(room.Code)
	e.mu.Lock()
	if e.room == nil {
		e.room = room.Clone()
	}
	e.mu.Unlock()
}

// cached reports whether a loaded room with this code is in memory
func (r *Registry) cached(code model.RoomCode) bool {
	r.mu.Lock()
	e, ok := r.rooms[code]
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room != nil
}

// Len returns the number of rooms held in memory
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
