package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/tictactoe-go/internal/dependencies/mocks"
	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/storage/memory"
	"github.com/mcoot/tictactoe-go/internal/testutil"
)

const testSecret = "test-secret"

// staleLookupStorage never sees existing credentials, like a registration that
// checked the email just before a concurrent one claimed it
type staleLookupStorage struct {
	*memory.Storage
}

func (staleLookupStorage) GetRegisteredPlayerByEmail(context.Context, string) (*model.RegisteredPlayer, error) {
	return nil, model.ErrPlayerNotFound
}

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	cfg := DefaultConfig()
	cfg.Secret = testSecret
	cfg.BcryptCost = bcrypt.MinCost
	s.service = New(s.storage, s.clock, s.random, cfg, testutil.NopLogger())
	s.ctx = context.Background()
}

// Register tests

func (s *ServiceSuite) TestRegisterSucceeds() {
	s.random.QueueID("player-1")

	session, err := s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")
	s.Require().NoError(err)

	s.NotEmpty(session.Token)
	s.Equal(model.PlayerID("player-1"), session.Player.ID)
	s.Equal("Alice", session.Player.DisplayName)
	s.Equal(s.clock.Now().Add(time.Hour), session.ExpiresAt)
}

func (s *ServiceSuite) TestRegisterPersistsHashedPassword() {
	_, _ = s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")

	rp, err := s.storage.GetRegisteredPlayerByEmail(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.NotEqual("password123", rp.PasswordHash)
	s.NoError(bcrypt.CompareHashAndPassword([]byte(rp.PasswordHash), []byte("password123")))
}

func (s *ServiceSuite) TestRegisterNormalizesEmail() {
	session, err := s.service.Register(s.ctx, "Alice", "  Alice@Example.COM ", "password123")
	s.Require().NoError(err)
	s.Equal("alice@example.com", session.Player.Email)

	_, err = s.storage.GetRegisteredPlayerByEmail(s.ctx, "alice@example.com")
	s.NoError(err)
}

func (s *ServiceSuite) TestRegisterDuplicateEmail() {
	_, _ = s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")

	_, err := s.service.Register(s.ctx, "Impostor", "ALICE@example.com", "other")
	s.ErrorIs(err, model.ErrEmailTaken)
}

// Login tests

func (s *ServiceSuite) TestRegisterLosingEmailRaceLeavesNoPlayer() {
	s.random.QueueID("player-1")
	_, err := s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")
	s.Require().NoError(err)

	cfg := DefaultConfig()
	cfg.Secret = testSecret
	cfg.BcryptCost = bcrypt.MinCost
	racing := New(staleLookupStorage{s.storage}, s.clock, s.random, cfg, testutil.NopLogger())

	s.random.QueueID("player-2")
	_, err = racing.Register(s.ctx, "Impostor", "alice@example.com", "other")
	s.ErrorIs(err, model.ErrEmailTaken)

	_, err = s.storage.GetPlayer(s.ctx, "player-2")
	s.ErrorIs(err, model.ErrPlayerNotFound)

	rp, err := s.storage.GetRegisteredPlayerByEmail(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("player-1"), rp.PlayerID)
}

func (s *ServiceSuite) TestLoginSucceeds() {
	registered, _ := s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")

	session, err := s.service.Login(s.ctx, "alice@example.com", "password123")
	s.Require().NoError(err)
	s.Equal(registered.Player.ID, session.Player.ID)
	s.NotEmpty(session.Token)
}

func (s *ServiceSuite) TestLoginWrongPassword() {
	_, _ = s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")

	_, err := s.service.Login(s.ctx, "alice@example.com", "wrong")
	s.ErrorIs(err, ErrInvalidCredentials)
}

func (s *ServiceSuite) TestLoginUnknownEmail() {
	_, err := s.service.Login(s.ctx, "nobody@example.com", "password123")
	s.ErrorIs(err, ErrInvalidCredentials)
}

// Verify tests

func (s *ServiceSuite) TestVerifyReturnsPlayer() {
	session, _ := s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")

	player, err := s.service.Verify(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal(session.Player.ID, player.ID)
	s.Equal("Alice", player.DisplayName)
}

func (s *ServiceSuite) TestVerifyIncludesCurrentWinCount() {
	session, _ := s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")
	s.Require().NoError(s.storage.IncrementWinCount(s.ctx, session.Player.ID))

	player, err := s.service.Verify(s.ctx, session.Token)
	s.Require().NoError(err)
	s.Equal(1, player.GamesWon)
}

func (s *ServiceSuite) TestVerifyEmptyToken() {
	_, err := s.service.Verify(s.ctx, "")
	s.ErrorIs(err, ErrMissingToken)
}

func (s *ServiceSuite) TestVerifyGarbageToken() {
	_, err := s.service.Verify(s.ctx, "not-a-jwt")
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestVerifyExpiredToken() {
	session, _ := s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")

	s.clock.Advance(time.Hour + time.Second)

	_, err := s.service.Verify(s.ctx, session.Token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestVerifyTokenSignedWithOtherSecret() {
	session, _ := s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")

	other := New(s.storage, s.clock, s.random, Config{Secret: "other-secret"}, testutil.NopLogger())
	_, err := other.Verify(s.ctx, session.Token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestVerifyRejectsOtherSigningMethod() {
	session, _ := s.service.Register(s.ctx, "Alice", "alice@example.com", "password123")

	claims := Claims{
		ID:    string(session.Player.ID),
		Email: session.Player.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "tictactoe",
			ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	s.Require().NoError(err)

	_, err = s.service.Verify(s.ctx, token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestVerifyUnknownPlayer() {
	session, err := s.service.issue(&model.Player{ID: "ghost", Email: "ghost@example.com"})
	s.Require().NoError(err)

	_, err = s.service.Verify(s.ctx, session.Token)
	s.ErrorIs(err, ErrInvalidToken)
}
