package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/storage"
)

// Storage is a SQLite-backed implementation of the storage interface.
// Rooms keep seats, board and move log as JSON columns; they are always
// read and written whole.
type Storage struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations
func Open(path string) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// toMillis normalizes timestamps into millisecond precision for storage
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// isConstraint reports whether err is a SQLite constraint violation with the given extended code
func isConstraint(err error, code int) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == code
}

// Player operations

func (s *Storage) SavePlayer(ctx context.Context, player *model.Player) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO players (id, display_name, email, games_won, created_at)
VALUES (?, ?, ?, 0, ?)
ON CONFLICT (id) DO UPDATE SET
    display_name = excluded.display_name,
    email = excluded.email`,
		string(player.ID), player.DisplayName, player.Email, toMillis(player.CreatedAt))
	if err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	return nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, display_name, email, games_won, created_at
FROM players WHERE id = ?`, string(id))

	var (
		player    model.Player
		playerID  string
		createdAt int64
	)
	if err := row.Scan(&playerID, &player.DisplayName, &player.Email, &player.GamesWon, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("get player: %w", err)
	}
	player.ID = model.PlayerID(playerID)
	player.CreatedAt = fromMillis(createdAt)
	return &player, nil
}

func (s *Storage) IncrementWinCount(ctx context.Context, id model.PlayerID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE players SET games_won = games_won + 1 WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("increment win count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment win count: %w", err)
	}
	if n == 0 {
		return model.ErrPlayerNotFound
	}
	return nil
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	return nil
}

// Registered player operations

func (s *Storage) SaveRegisteredPlayer(ctx context.Context, rp *model.RegisteredPlayer) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO registered_players (player_id, email, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (player_id) DO UPDATE SET
    email = excluded.email,
    password_hash = excluded.password_hash,
    updated_at = excluded.updated_at`,
		string(rp.PlayerID), rp.Email, rp.PasswordHash, toMillis(rp.CreatedAt), toMillis(rp.UpdatedAt))
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return model.ErrEmailTaken
		}
		return fmt.Errorf("save registered player: %w", err)
	}
	return nil
}

func (s *Storage) GetRegisteredPlayerByEmail(ctx context.Context, email string) (*model.RegisteredPlayer, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT player_id, email, password_hash, created_at, updated_at
FROM registered_players WHERE email = ?`, email)

	var (
		rp                   model.RegisteredPlayer
		playerID             string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&playerID, &rp.Email, &rp.PasswordHash, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("get registered player: %w", err)
	}
	rp.PlayerID = model.PlayerID(playerID)
	rp.CreatedAt = fromMillis(createdAt)
	rp.UpdatedAt = fromMillis(updatedAt)
	return &rp, nil
}

// Room operations

// roomRow is the column form of a room
type roomRow struct {
	seats, board, moves string
}

func encodeRoom(room *model.Room) (roomRow, error) {
	seats, err := json.Marshal(room.Seats)
	if err != nil {
		return roomRow{}, err
	}
	board, err := json.Marshal(room.Board)
	if err != nil {
		return roomRow{}, err
	}
	moves, err := json.Marshal(room.Moves)
	if err != nil {
		return roomRow{}, err
	}
	return roomRow{seats: string(seats), board: string(board), moves: string(moves)}, nil
}

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	row, err := encodeRoom(room)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO rooms (code, status, winner, seats, board, moves, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(room.Code), string(room.Status), string(room.Winner),
		row.seats, row.board, row.moves,
		toMillis(room.CreatedAt), toMillis(room.UpdatedAt))
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return model.ErrRoomExists
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, code model.RoomCode) (*model.Room, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT code, status, winner, seats, board, moves, created_at, updated_at
FROM rooms WHERE code = ?`, string(code))

	var (
		room                     model.Room
		roomCode, status, winner string
		seats, board, moves      string
		createdAt, updatedAt     int64
	)
	if err := row.Scan(&roomCode, &status, &winner, &seats, &board, &moves, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	room.Code = model.RoomCode(roomCode)
	room.Status = model.RoomStatus(status)
	room.Winner = model.Winner(winner)
	room.CreatedAt = fromMillis(createdAt)
	room.UpdatedAt = fromMillis(updatedAt)

	if err := json.Unmarshal([]byte(seats), &room.Seats); err != nil {
		return nil, fmt.Errorf("decode room seats: %w", err)
	}
	if err := json.Unmarshal([]byte(board), &room.Board); err != nil {
		return nil, fmt.Errorf("decode room board: %w", err)
	}
	if err := json.Unmarshal([]byte(moves), &room.Moves); err != nil {
		return nil, fmt.Errorf("decode room moves: %w", err)
	}
	return &room, nil
}

func (s *Storage) SaveRoom(ctx context.Context, room *model.Room) error {
	row, err := encodeRoom(room)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO rooms (code, status, winner, seats, board, moves, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (code) DO UPDATE SET
    status = excluded.status,
    winner = excluded.winner,
    seats = excluded.seats,
    board = excluded.board,
    moves = excluded.moves,
    updated_at = excluded.updated_at`,
		string(room.Code), string(room.Status), string(room.Winner),
		row.seats, row.board, row.moves,
		toMillis(room.CreatedAt), toMillis(room.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

func (s *Storage) RoomExists(ctx context.Context, code model.RoomCode) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE code = ?)`, string(code)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("room exists: %w", err)
	}
	return exists, nil
}
