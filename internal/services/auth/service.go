package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/tictactoe-go/internal/dependencies/clock"
	"github.com/mcoot/tictactoe-go/internal/dependencies/random"
	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMissingToken       = errors.New("no token provided")
)

// Claims is the JWT payload identifying a player
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Session is an issued token together with the player it identifies
type Session struct {
	Token     string
	Player    model.Player
	ExpiresAt time.Time
}

// Config holds configuration for the auth service
type Config struct {
	// Secret signs and verifies HS256 tokens
	Secret string
	// TokenTTL is how long issued tokens remain valid
	TokenTTL time.Duration
	// Issuer is written to and required in the iss claim
	Issuer string
	// BcryptCost is the password hashing cost
	BcryptCost int
}

// DefaultConfig returns default auth configuration. Secret has no default.
func DefaultConfig() Config {
	return Config{
		TokenTTL:   time.Hour,
		Issuer:     "tictactoe",
		BcryptCost: bcrypt.DefaultCost,
	}
}

// Service registers players, checks passwords and issues and verifies tokens
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	random  random.Random
	cfg     Config
	logger  *slog.Logger
}

// New creates a new auth Service, filling unset config from DefaultConfig
func New(storage storage.Storage, clock clock.Clock, random random.Random, cfg Config, logger *slog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaults.TokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaults.Issuer
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	return &Service{
		storage: storage,
		clock:   clock,
		random:  random,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "auth")),
	}
}

// NormalizeEmail lowercases and trims an email for use as a login key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a player with login credentials and returns a session
func (s *Service) Register(ctx context.Context, displayName, email, password string) (*Session, error) {
	email = NormalizeEmail(email)

	_, err := s.storage.GetRegisteredPlayerByEmail(ctx, email)
	if err == nil {
		return nil, model.ErrEmailTaken
	}
	if !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	player := &model.Player{
		ID:          model.PlayerID(s.random.ID()),
		DisplayName: strings.TrimSpace(displayName),
		Email:       email,
		CreatedAt:   now,
	}

	if err := s.storage.SavePlayer(ctx, player); err != nil {
		return nil, err
	}

	// The email index is the uniqueness check; a concurrent registration
	// that passed the lookup above loses here and drops its player record.
	if err := s.storage.SaveRegisteredPlayer(ctx, &model.RegisteredPlayer{
		PlayerID:     player.ID,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		if delErr := s.storage.DeletePlayer(ctx, player.ID); delErr != nil {
			s.logger.Error("failed to remove player after registration failed",
				slog.String("player_id", string(player.ID)),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("player registered", slog.String("player_id", string(player.ID)))
	return s.issue(player)
}

// Login checks the password for email and returns a fresh session
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	rp, err := s.storage.GetRegisteredPlayerByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rp.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	player, err := s.storage.GetPlayer(ctx, rp.PlayerID)
	if err != nil {
		return nil, err
	}

	return s.issue(player)
}

// Verify resolves a bearer token to its player.
// Tokens for players that no longer exist are rejected.
func (s *Service) Verify(ctx context.Context, token string) (*model.Player, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		s.logger.Debug("token rejected", slog.String("error", err.Error()))
		return nil, ErrInvalidToken
	}

	player, err := s.storage.GetPlayer(ctx, model.PlayerID(claims.ID))
	if err != nil {
		if errors.Is(err, model.ErrPlayerNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return player, nil
}

// issue signs a token for the player
func (s *Service) issue(player *model.Player) (*Session, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.TokenTTL)

	claims := Claims{
		ID:    string(player.ID),
		Email: player.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   string(player.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{Token: signed, Player: *player, ExpiresAt: expiresAt}, nil
}
