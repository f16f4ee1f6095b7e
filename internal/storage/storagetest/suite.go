// Package storagetest provides a behavioural test suite shared by every
// storage backend.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/storage"
)

// Suite runs the same assertions against any storage.Storage.
// Backends embed it and set Storage in their SetupTest.
type Suite struct {
	suite.Suite
	Storage storage.Storage
	Ctx     context.Context
}

var fixedTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// NewPlayer returns a player fixture
func NewPlayer(id, name string) *model.Player {
	return &model.Player{
		ID:          model.PlayerID(id),
		DisplayName: name,
		Email:       name + "@example.com",
		CreatedAt:   fixedTime,
	}
}

// NewWaitingRoom returns a room fixture with one seated player
func NewWaitingRoom(code string, host model.PlayerID) *model.Room {
	return &model.Room{
		Code:      model.RoomCode(code),
		Seats:     []model.Seat{{PlayerID: host, DisplayName: "Host", Symbol: model.SymbolX}},
		Status:    model.RoomStatusWaiting,
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime,
	}
}

// Player tests

func (s *Suite) TestSaveAndGetPlayer() {
	player := NewPlayer("player-1", "alice")

	err := s.Storage.SavePlayer(s.Ctx, player)
	s.Require().NoError(err)

	retrieved, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal(player.ID, retrieved.ID)
	s.Equal(player.DisplayName, retrieved.DisplayName)
	s.Equal(player.Email, retrieved.Email)
	s.Equal(0, retrieved.GamesWon)
}

func (s *Suite) TestGetPlayerNotFound() {
	_, err := s.Storage.GetPlayer(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestIncrementWinCount() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, NewPlayer("player-1", "alice")))

	s.Require().NoError(s.Storage.IncrementWinCount(s.Ctx, "player-1"))
	s.Require().NoError(s.Storage.IncrementWinCount(s.Ctx, "player-1"))

	retrieved, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal(2, retrieved.GamesWon)
}

func (s *Suite) TestIncrementWinCountSurvivesProfileSave() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, NewPlayer("player-1", "alice")))
	s.Require().NoError(s.Storage.IncrementWinCount(s.Ctx, "player-1"))

	// Re-saving the profile must not reset the counter
	renamed := NewPlayer("player-1", "alice")
	renamed.DisplayName = "Alice B"
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, renamed))

	retrieved, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal("Alice B", retrieved.DisplayName)
	s.Equal(1, retrieved.GamesWon)
}

func (s *Suite) TestIncrementWinCountUnknownPlayer() {
	err := s.Storage.IncrementWinCount(s.Ctx, "nonexistent")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestDeletePlayer() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, NewPlayer("player-1", "alice")))
	s.Require().NoError(s.Storage.IncrementWinCount(s.Ctx, "player-1"))

	s.Require().NoError(s.Storage.DeletePlayer(s.Ctx, "player-1"))

	_, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.ErrorIs(err, model.ErrPlayerNotFound)

	// A later player with the same id starts from zero wins
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, NewPlayer("player-1", "alice")))
	retrieved, err := s.Storage.GetPlayer(s.Ctx, "player-1")
	s.Require().NoError(err)
	s.Equal(0, retrieved.GamesWon)
}

func (s *Suite) TestDeleteUnknownPlayer() {
	s.NoError(s.Storage.DeletePlayer(s.Ctx, "nonexistent"))
}

// Registered player tests

func (s *Suite) TestSaveAndGetRegisteredPlayerByEmail() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, NewPlayer("player-1", "alice")))
	rp := &model.RegisteredPlayer{
		PlayerID:     "player-1",
		Email:        "alice@example.com",
		PasswordHash: "hash123",
		CreatedAt:    fixedTime,
		UpdatedAt:    fixedTime,
	}

	err := s.Storage.SaveRegisteredPlayer(s.Ctx, rp)
	s.Require().NoError(err)

	retrieved, err := s.Storage.GetRegisteredPlayerByEmail(s.Ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("player-1"), retrieved.PlayerID)
	s.Equal("hash123", retrieved.PasswordHash)
}

func (s *Suite) TestGetRegisteredPlayerByEmailNotFound() {
	_, err := s.Storage.GetRegisteredPlayerByEmail(s.Ctx, "nobody@example.com")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *Suite) TestSaveRegisteredPlayerEmailTaken() {
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, NewPlayer("player-1", "alice")))
	s.Require().NoError(s.Storage.SavePlayer(s.Ctx, NewPlayer("player-2", "mallory")))
	s.Require().NoError(s.Storage.SaveRegisteredPlayer(s.Ctx, &model.RegisteredPlayer{
		PlayerID: "player-1", Email: "alice@example.com", PasswordHash: "a",
	}))

	err := s.Storage.SaveRegisteredPlayer(s.Ctx, &model.RegisteredPlayer{
		PlayerID: "player-2", Email: "alice@example.com", PasswordHash: "b",
	})
	s.ErrorIs(err, model.ErrEmailTaken)
}

// Room tests

func (s *Suite) TestCreateAndGetRoom() {
	room := NewWaitingRoom("AB12XY", "player-1")

	err := s.Storage.CreateRoom(s.Ctx, room)
	s.Require().NoError(err)

	retrieved, err := s.Storage.GetRoom(s.Ctx, "AB12XY")
	s.Require().NoError(err)
	s.Equal(model.RoomCode("AB12XY"), retrieved.Code)
	s.Equal(model.RoomStatusWaiting, retrieved.Status)
	s.Require().Len(retrieved.Seats, 1)
	s.Equal(model.SymbolX, retrieved.Seats[0].Symbol)
	s.Equal(model.WinnerNone, retrieved.Winner)
	s.True(room.CreatedAt.Equal(retrieved.CreatedAt))
}

func (s *Suite) TestCreateRoomDuplicateCode() {
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, NewWaitingRoom("AB12XY", "player-1")))

	err := s.Storage.CreateRoom(s.Ctx, NewWaitingRoom("AB12XY", "player-2"))
	s.ErrorIs(err, model.ErrRoomExists)
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.Storage.GetRoom(s.Ctx, "NOPE00")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestSaveRoomRoundTripsGameState() {
	room := NewWaitingRoom("AB12XY", "player-1")
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, room))

	room.Seats = append(room.Seats, model.Seat{PlayerID: "player-2", DisplayName: "Guest", Symbol: model.SymbolO})
	room.Status = model.RoomStatusInProgress
	room.Board[1][1] = model.SymbolX
	room.Moves = append(room.Moves, model.Move{Row: 1, Col: 1, Symbol: model.SymbolX, Time: fixedTime})
	s.Require().NoError(s.Storage.SaveRoom(s.Ctx, room))

	retrieved, err := s.Storage.GetRoom(s.Ctx, "AB12XY")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusInProgress, retrieved.Status)
	s.Len(retrieved.Seats, 2)
	s.Equal(model.SymbolX, retrieved.Board[1][1])
	s.Equal(model.SymbolNone, retrieved.Board[0][0])
	s.Require().Len(retrieved.Moves, 1)
	s.Equal(model.Position{Row: 1, Col: 1}, retrieved.Moves[0].Position())
	s.True(fixedTime.Equal(retrieved.Moves[0].Time))
}

func (s *Suite) TestGetRoomReturnsCopy() {
	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, NewWaitingRoom("AB12XY", "player-1")))

	first, err := s.Storage.GetRoom(s.Ctx, "AB12XY")
	s.Require().NoError(err)
	first.Board[0][0] = model.SymbolO
	first.Status = model.RoomStatusFinished

	second, err := s.Storage.GetRoom(s.Ctx, "AB12XY")
	s.Require().NoError(err)
	s.Equal(model.SymbolNone, second.Board[0][0])
	s.Equal(model.RoomStatusWaiting, second.Status)
}

func (s *Suite) TestRoomExists() {
	exists, err := s.Storage.RoomExists(s.Ctx, "AB12XY")
	s.Require().NoError(err)
	s.False(exists)

	s.Require().NoError(s.Storage.CreateRoom(s.Ctx, NewWaitingRoom("AB12XY", "player-1")))

	exists, err = s.Storage.RoomExists(s.Ctx, "AB12XY")
	s.Require().NoError(err)
	s.True(exists)
}
