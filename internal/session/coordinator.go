// Package session runs authenticated websocket connections: it performs the
// token handshake, keeps one connection per player, and routes inbound
// events to the room registry and outbound events back to the players.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mcoot/tictactoe-go/internal/api/request"
	"github.com/mcoot/tictactoe-go/internal/api/response"
	"github.com/mcoot/tictactoe-go/internal/dependencies/random"
	"github.com/mcoot/tictactoe-go/internal/metrics"
	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/services/auth"
	"github.com/mcoot/tictactoe-go/internal/services/connection"
	"github.com/mcoot/tictactoe-go/internal/services/room"
)

// Messages sent outside of room operations
const (
	MsgConnected       = "WebSocket connection established"
	MsgNoToken         = "No token provided"
	MsgInvalidToken    = "Invalid or expired token"
	MsgSessionReplaced = "Session replaced by a new connection"
	MsgUnknownAction   = "Unknown action"
	MsgInvalidMessage  = "Invalid message"
	MsgTooManyRequests = "Too many requests"
	MsgServerError     = "Server error"
)

// Authenticator resolves a bearer token to a player
type Authenticator interface {
	Verify(ctx context.Context, token string) (*model.Player, error)
}

// Config holds configuration for the Coordinator
type Config struct {
	// OperationTimeout bounds each credential check and room operation
	OperationTimeout time.Duration
	// RateLimit is the sustained inbound messages per second per connection (0 disables)
	RateLimit float64
	// RateBurst is the number of messages allowed in a burst
	RateBurst int
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		OperationTimeout: 5 * time.Second,
		RateLimit:        10,
		RateBurst:        20,
	}
}

// Coordinator is the websocket entry point
type Coordinator struct {
	auth        Authenticator
	rooms       *room.Registry
	connections *connection.Registry
	random      random.Random
	metrics     metrics.Recorder
	logger      *slog.Logger
	cfg         Config
	upgrader    websocket.Upgrader
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(
	authenticator Authenticator,
	rooms *room.Registry,
	connections *connection.Registry,
	random random.Random,
	recorder metrics.Recorder,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = DefaultConfig().OperationTimeout
	}
	return &Coordinator{
		auth:        authenticator,
		rooms:       rooms,
		connections: connections,
		random:      random,
		metrics:     recorder,
		logger:      logger.With(slog.String("component", "session")),
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients authenticate with a bearer token, not cookies
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// TokenFromRequest reads the bearer token from the token query parameter or
// the Authorization header
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// ServeWS upgrades the request and runs the connection until it closes
func (c *Coordinator) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	player, ok := c.authenticate(r, conn)
	if !ok {
		return
	}

	cl := newClient(c.random.ID(), player.ID, conn, c.limiter(), c.logger)
	// Queued before registration so it precedes any room broadcast
	cl.Send(encode(response.NewConnectionEvent(MsgConnected)))

	if previous := c.connections.Register(player.ID, cl); previous != nil {
		previous.Send(encode(response.NewErrorEvent(MsgSessionReplaced)))
		previous.Close()
		c.metrics.ConnectionEvicted()
		c.logger.Info("connection replaced",
			slog.String("player_id", string(player.ID)),
			slog.String("evicted_connection_id", previous.ID()),
		)
	}
	c.metrics.ConnectionOpened()
	cl.logger.Info("connection established")

	go cl.writePump()
	cl.readPump(func(data []byte) {
		c.handleMessage(cl, player, data)
	})

	c.connections.Unregister(player.ID, cl)
	cl.Close()
	c.metrics.ConnectionClosed()
	cl.logger.Info("connection closed")
}

// Shutdown closes every live connection
func (c *Coordinator) Shutdown() {
	n := c.connections.CloseAll()
	c.logger.Info("closed websocket connections", slog.Int("count", n))
}

// authenticate verifies the handshake token. On failure it reports the reason
// to the peer and closes the connection.
func (c *Coordinator) authenticate(r *http.Request, conn *websocket.Conn) (*model.Player, bool) {
	token := TokenFromRequest(r)
	if token == "" {
		c.reject(conn, MsgNoToken, "missing_token")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), c.cfg.OperationTimeout)
	defer cancel()

	player, err := c.auth.Verify(ctx, token)
	switch {
	case err == nil:
		return player, true
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		c.reject(conn, MsgInvalidToken, "invalid_token")
	default:
		c.logger.Error("token verification failed", slog.String("error", err.Error()))
		c.reject(conn, MsgServerError, "server_error")
	}
	return nil, false
}

// reject writes a final error event on a connection that was never registered
func (c *Coordinator) reject(conn *websocket.Conn, message, reason string) {
	c.metrics.HandshakeRejected(reason)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, encode(response.NewErrorEvent(message)))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
	_ = conn.Close()
}

func (c *Coordinator) limiter() *rate.Limiter {
	if c.cfg.RateLimit <= 0 {
		return nil
	}
	burst := c.cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.cfg.RateLimit), burst)
}

// handleMessage decodes one inbound frame and routes it by type
func (c *Coordinator) handleMessage(cl *client, player *model.Player, data []byte) {
	if !cl.allow() {
		c.replyError(cl, MsgTooManyRequests)
		return
	}

	var msg request.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError(cl, MsgInvalidMessage)
		return
	}
	c.metrics.MessageReceived(messageLabel(msg.Type))

	// Room operations run to completion even if this connection closes meanwhile
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.OperationTimeout)
	defer cancel()

	switch msg.Type {
	case model.EventCreateRoom:
		c.createRoom(ctx, cl, player)
	case model.EventJoinRoom:
		code, ok := roomCode(msg)
		if !ok {
			c.replyError(cl, MsgInvalidMessage)
			return
		}
		c.joinRoom(ctx, cl, player, code)
	case model.EventMakeMove:
		code, ok := roomCode(msg)
		if !ok || msg.Row == nil || msg.Col == nil {
			c.replyError(cl, MsgInvalidMessage)
			return
		}
		c.makeMove(ctx, cl, player, code, model.Position{Row: *msg.Row, Col: *msg.Col})
	default:
		c.replyError(cl, MsgUnknownAction)
	}
}

func (c *Coordinator) createRoom(ctx context.Context, cl *client, player *model.Player) {
	created, err := c.rooms.CreateRoom(ctx, *player)
	if err != nil {
		c.fail(cl, model.EventCreateRoom, err)
		return
	}
	cl.Send(encode(response.NewRoomCreatedEvent(created)))
}

func (c *Coordinator) joinRoom(ctx context.Context, cl *client, player *model.Player, code model.RoomCode) {
	_, err := c.rooms.JoinRoom(ctx, *player, code, func(joined *model.Room) {
		c.connections.Broadcast(joined.Participants(), encode(response.NewPlayerJoinedEvent(joined)))
	})
	if err != nil {
		c.fail(cl, model.EventJoinRoom, err)
	}
}

func (c *Coordinator) makeMove(ctx context.Context, cl *client, player *model.Player, code model.RoomCode, pos model.Position) {
	_, err := c.rooms.MakeMove(ctx, player.ID, code, pos, func(result *room.MoveResult) {
		c.connections.Broadcast(result.Room.Participants(), encode(response.NewMoveMadeEvent(result)))
	})
	if err != nil {
		c.fail(cl, model.EventMakeMove, err)
	}
}

// fail reports err to the originating connection only
func (c *Coordinator) fail(cl *client, action model.EventType, err error) {
	message := ErrorMessage(err)
	if !model.IsValidation(err) {
		cl.logger.Error("room operation failed",
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
	c.replyError(cl, message)
}

func (c *Coordinator) replyError(cl *client, message string) {
	c.metrics.MessageRejected(message)
	cl.Send(encode(response.NewErrorEvent(message)))
}

// ErrorMessage maps a room operation error to the text sent to the client
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrRoomNotFound):
		return "Room not found"
	case errors.Is(err, model.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, model.ErrAlreadyInRoom):
		return "Already in room"
	case errors.Is(err, model.ErrNotInRoom):
		return "Not in room"
	case errors.Is(err, model.ErrXPlaysFirst):
		return "X plays first"
	case errors.Is(err, model.ErrOutOfTurn):
		return "Not your turn"
	case errors.Is(err, model.ErrCellOccupied):
		return "Cell occupied"
	case errors.Is(err, model.ErrInvalidCell):
		return "Invalid cell"
	case errors.Is(err, model.ErrGameFinished):
		return "Game is already finished"
	case errors.Is(err, model.ErrGameNotStarted):
		return "Game has not started"
	default:
		return MsgServerError
	}
}

// messageLabel bounds the metric label to the known inbound types
func messageLabel(t model.EventType) string {
	switch t {
	case model.EventCreateRoom, model.EventJoinRoom, model.EventMakeMove:
		return string(t)
	default:
		return "unknown"
	}
}

// roomCode normalizes the roomId field
func roomCode(msg request.Message) (model.RoomCode, bool) {
	code := strings.ToUpper(strings.TrimSpace(msg.RoomID))
	return model.RoomCode(code), code != ""
}

// encode marshals an outbound event. All event types are plain structs, so
// encoding cannot fail.
func encode(v any) []byte {
	data, _ := json.Marshal(v)
	return data
}
