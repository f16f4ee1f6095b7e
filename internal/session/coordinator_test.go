package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/tictactoe-go/internal/api/request"
	"github.com/mcoot/tictactoe-go/internal/dependencies/mocks"
	"github.com/mcoot/tictactoe-go/internal/events"
	"github.com/mcoot/tictactoe-go/internal/metrics"
	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/services/auth"
	"github.com/mcoot/tictactoe-go/internal/services/connection"
	"github.com/mcoot/tictactoe-go/internal/services/room"
	"github.com/mcoot/tictactoe-go/internal/storage/memory"
	"github.com/mcoot/tictactoe-go/internal/testutil"
)

const eventTimeout = 2 * time.Second

// stallingMetrics parks the first MoveApplied call until release is closed
type stallingMetrics struct {
	metrics.Nop
	once    sync.Once
	parked  chan struct{}
	release chan struct{}
}

func newStallingMetrics() *stallingMetrics {
	return &stallingMetrics{parked: make(chan struct{}), release: make(chan struct{})}
}

func (m *stallingMetrics) MoveApplied() {
	m.once.Do(func() {
		close(m.parked)
		<-m.release
	})
}

// wsClient reads every frame in the background so tests can assert on
// absence of messages without tripping gorilla's read deadline semantics
type wsClient struct {
	t      *testing.T
	conn   *websocket.Conn
	events chan map[string]any
}

func (c *wsClient) send(msg any) {
	data, err := json.Marshal(msg)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

func (c *wsClient) sendRaw(data string) {
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (c *wsClient) next() map[string]any {
	select {
	case event, ok := <-c.events:
		require.True(c.t, ok, "connection closed while waiting for event")
		return event
	case <-time.After(eventTimeout):
		require.FailNow(c.t, "timed out waiting for event")
		return nil
	}
}

func (c *wsClient) nextOfType(eventType model.EventType) map[string]any {
	event := c.next()
	require.Equal(c.t, string(eventType), event["type"], "unexpected event %v", event)
	return event
}

func (c *wsClient) expectError(message string) {
	event := c.nextOfType(model.EventError)
	assert.Equal(c.t, message, event["message"])
}

func (c *wsClient) expectNothing() {
	select {
	case event, ok := <-c.events:
		if ok {
			assert.Fail(c.t, "unexpected event", "%v", event)
		}
	case <-time.After(150 * time.Millisecond):
	}
}

func (c *wsClient) expectClosed() {
	deadline := time.After(eventTimeout)
	for {
		select {
		case _, ok := <-c.events:
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(c.t, "connection was not closed")
		}
	}
}

type CoordinatorSuite struct {
	suite.Suite
	storage     *memory.Storage
	clock       *mocks.MockClock
	random      *mocks.MockRandom
	auth        *auth.Service
	rooms       *room.Registry
	connections *connection.Registry
	coordinator *Coordinator
	server      *httptest.Server
	ctx         context.Context
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.setup(DefaultConfig(), metrics.Nop{})
}

func (s *CoordinatorSuite) setup(cfg Config, recorder metrics.Recorder) {
	logger := testutil.NopLogger()
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.auth = auth.New(s.storage, s.clock, s.random, auth.Config{Secret: "test-secret", BcryptCost: bcrypt.MinCost}, logger)
	s.rooms = room.NewRegistry(s.storage, s.clock, s.random, events.NopPublisher{}, recorder, logger)
	s.connections = connection.NewRegistry(logger)
	s.coordinator = NewCoordinator(s.auth, s.rooms, s.connections, s.random, recorder, cfg, logger)
	s.server = httptest.NewServer(http.HandlerFunc(s.coordinator.ServeWS))
	s.ctx = context.Background()
}

func (s *CoordinatorSuite) TearDownTest() {
	s.coordinator.Shutdown()
	s.server.Close()
}

func (s *CoordinatorSuite) register(name string) string {
	session, err := s.auth.Register(s.ctx, name, strings.ToLower(name)+"@example.com", "password123")
	s.Require().NoError(err)
	return session.Token
}

func (s *CoordinatorSuite) dialRaw(query string, header http.Header) *wsClient {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	s.Require().NoError(err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &wsClient{t: s.T(), conn: conn, events: make(chan map[string]any, 64)}
	go func() {
		defer close(c.events)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var event map[string]any
			if json.Unmarshal(data, &event) == nil {
				c.events <- event
			}
		}
	}()
	s.T().Cleanup(func() { _ = conn.Close() })
	return c
}

// connect opens an authenticated connection and consumes the acknowledgement
func (s *CoordinatorSuite) connect(token string) *wsClient {
	c := s.dialRaw("?token="+token, nil)
	event := c.nextOfType(model.EventConnection)
	s.Equal(MsgConnected, event["message"])
	return c
}

// startGame has p1 create AB12XY and p2 join it, draining the resulting events
func (s *CoordinatorSuite) startGame(p1, p2 *wsClient) {
	s.random.QueueString("AB12XY")
	p1.send(request.CreateRoom())
	p1.nextOfType(model.EventRoomCreated)

	p2.send(request.JoinRoom("AB12XY"))
	p1.nextOfType(model.EventPlayerJoined)
	p2.nextOfType(model.EventPlayerJoined)
}

func board(event map[string]any) []any {
	return event["board"].([]any)
}

// Handshake tests

func (s *CoordinatorSuite) TestMissingToken() {
	c := s.dialRaw("", nil)

	c.expectError(MsgNoToken)
	c.expectClosed()
	s.Equal(0, s.connections.Count())
}

func (s *CoordinatorSuite) TestInvalidToken() {
	c := s.dialRaw("?token=garbage", nil)

	c.expectError(MsgInvalidToken)
	c.expectClosed()
}

func (s *CoordinatorSuite) TestExpiredToken() {
	token := s.register("Alice")
	s.clock.Advance(2 * time.Hour)

	c := s.dialRaw("?token="+token, nil)

	c.expectError(MsgInvalidToken)
	c.expectClosed()
}

func (s *CoordinatorSuite) TestBearerHeader() {
	token := s.register("Alice")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	c := s.dialRaw("", header)

	event := c.nextOfType(model.EventConnection)
	s.Equal(MsgConnected, event["message"])
	s.Eventually(func() bool { return s.connections.Count() == 1 }, eventTimeout, 10*time.Millisecond)
}

// Room flow tests

func (s *CoordinatorSuite) TestScenario() {
	p1 := s.connect(s.register("Alice"))
	p2 := s.connect(s.register("Bob"))
	bystander := s.connect(s.register("Carol"))

	s.random.QueueString("AB12XY")
	p1.send(request.CreateRoom())

	created := p1.nextOfType(model.EventRoomCreated)
	s.Equal("X", created["symbol"])
	s.Equal("X", created["nextTurn"])
	createdRoom := created["room"].(map[string]any)
	s.Equal("AB12XY", createdRoom["roomId"])
	s.Equal("waiting", createdRoom["status"])
	s.Nil(createdRoom["winner"])
	s.Len(createdRoom["players"], 1)

	p2.send(request.JoinRoom("AB12XY"))

	for _, c := range []*wsClient{p1, p2} {
		joined := c.nextOfType(model.EventPlayerJoined)
		s.Equal("X", joined["nextTurn"])
		joinedRoom := joined["room"].(map[string]any)
		s.Equal("in_progress", joinedRoom["status"])
		players := joinedRoom["players"].([]any)
		s.Require().Len(players, 2)
		s.Equal("O", players[1].(map[string]any)["symbol"])
		s.Equal("Bob", players[1].(map[string]any)["userName"])
	}

	p1.send(request.MakeMove("AB12XY", 1, 1))

	for _, c := range []*wsClient{p1, p2} {
		moved := c.nextOfType(model.EventMoveMade)
		s.Equal("O", moved["nextTurn"])
		s.Equal("in_progress", moved["roomStatus"])
		s.Nil(moved["winner"])
		s.Equal([]any{nil, "X", nil}, board(moved)[1])
		move := moved["move"].(map[string]any)
		s.Equal("X", move["player"])
		s.InDelta(1, move["row"], 0)
		s.InDelta(1, move["col"], 0)
	}

	p2.send(request.MakeMove("AB12XY", 1, 1))
	p2.expectError("Cell occupied")

	// The next thing p1 sees is p2's valid move, not the error
	p2.send(request.MakeMove("AB12XY", 0, 0))
	moved := p1.nextOfType(model.EventMoveMade)
	s.Equal("X", moved["nextTurn"])
	p2.nextOfType(model.EventMoveMade)

	bystander.expectNothing()
}

func (s *CoordinatorSuite) TestWinningMove() {
	p1 := s.connect(s.register("Alice"))
	p2 := s.connect(s.register("Bob"))
	s.startGame(p1, p2)

	moves := [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0, 2}}
	var last map[string]any
	for i, m := range moves {
		mover := p1
		if i%2 == 1 {
			mover = p2
		}
		mover.send(request.MakeMove("AB12XY", m[0], m[1]))
		last = p1.nextOfType(model.EventMoveMade)
		p2.nextOfType(model.EventMoveMade)
	}

	s.Equal("X", last["winner"])
	s.Equal("finished", last["roomStatus"])
	s.Nil(last["nextTurn"])
	s.Equal([]any{"X", "X", "X"}, board(last)[0])

	p2.send(request.MakeMove("AB12XY", 2, 2))
	p2.expectError("Game is already finished")

	player, err := s.storage.GetPlayer(s.ctx, "id-1")
	s.Require().NoError(err)
	s.Equal(1, player.GamesWon)
}

func (s *CoordinatorSuite) TestTurnErrors() {
	p1 := s.connect(s.register("Alice"))
	p2 := s.connect(s.register("Bob"))
	s.startGame(p1, p2)

	p2.send(request.MakeMove("AB12XY", 0, 0))
	p2.expectError("X plays first")

	p1.send(request.MakeMove("AB12XY", 0, 0))
	p1.nextOfType(model.EventMoveMade)
	p2.nextOfType(model.EventMoveMade)

	p1.send(request.MakeMove("AB12XY", 2, 2))
	p1.expectError("Not your turn")

	p2.send(request.MakeMove("AB12XY", 3, 3))
	p2.expectError("Invalid cell")

	p1.expectNothing()
}

func (s *CoordinatorSuite) TestRoomErrors() {
	p1 := s.connect(s.register("Alice"))
	p2 := s.connect(s.register("Bob"))
	p3 := s.connect(s.register("Carol"))

	p1.send(request.JoinRoom("NOPE99"))
	p1.expectError("Room not found")

	s.random.QueueString("AB12XY")
	p1.send(request.CreateRoom())
	p1.nextOfType(model.EventRoomCreated)

	p1.send(request.MakeMove("AB12XY", 0, 0))
	p1.expectError("Game has not started")

	p1.send(request.JoinRoom("AB12XY"))
	p1.expectError("Already in room")

	p2.send(request.JoinRoom("ab12xy"))
	p1.nextOfType(model.EventPlayerJoined)
	p2.nextOfType(model.EventPlayerJoined)

	p3.send(request.JoinRoom("AB12XY"))
	p3.expectError("Room is full")

	p3.send(request.MakeMove("AB12XY", 0, 0))
	p3.expectError("Not in room")

	p1.expectNothing()
}

func (s *CoordinatorSuite) TestMalformedMessages() {
	c := s.connect(s.register("Alice"))

	c.sendRaw("{not json")
	c.expectError(MsgInvalidMessage)

	c.sendRaw(`{"type":"resign"}`)
	c.expectError(MsgUnknownAction)

	c.sendRaw(`{"type":"join_room"}`)
	c.expectError(MsgInvalidMessage)

	c.sendRaw(`{"type":"make_move","roomId":"AB12XY","row":1}`)
	c.expectError(MsgInvalidMessage)

	// Still usable afterwards
	s.random.QueueString("AB12XY")
	c.send(request.CreateRoom())
	c.nextOfType(model.EventRoomCreated)
}

// Connection lifecycle tests

func (s *CoordinatorSuite) TestDisconnectLeavesRoomPlayable() {
	p1 := s.connect(s.register("Alice"))
	p2 := s.connect(s.register("Bob"))
	s.startGame(p1, p2)

	s.Require().NoError(p2.conn.Close())
	s.Eventually(func() bool { return s.connections.Count() == 1 }, eventTimeout, 10*time.Millisecond)

	p1.send(request.MakeMove("AB12XY", 1, 1))
	moved := p1.nextOfType(model.EventMoveMade)
	s.Equal("in_progress", moved["roomStatus"])

	stored, err := s.rooms.GetRoom(s.ctx, "AB12XY")
	s.Require().NoError(err)
	s.Equal(model.RoomStatusInProgress, stored.Status)
	s.Len(stored.Moves, 1)
}

func (s *CoordinatorSuite) TestSecondConnectionEvictsFirst() {
	token := s.register("Alice")
	first := s.connect(token)
	second := s.connect(token)

	first.expectError(MsgSessionReplaced)
	first.expectClosed()

	s.random.QueueString("AB12XY")
	second.send(request.CreateRoom())
	second.nextOfType(model.EventRoomCreated)
	s.Equal(1, s.connections.Count())
}

func (s *CoordinatorSuite) TestShutdownClosesConnections() {
	c := s.connect(s.register("Alice"))
	s.Eventually(func() bool { return s.connections.Count() == 1 }, eventTimeout, 10*time.Millisecond)

	s.coordinator.Shutdown()

	c.expectClosed()
	s.Equal(0, s.connections.Count())
}

func (s *CoordinatorSuite) TestRateLimit() {
	s.TearDownTest()
	s.setup(Config{RateLimit: 0.001, RateBurst: 2}, metrics.Nop{})

	c := s.connect(s.register("Alice"))
	for i := 0; i < 2; i++ {
		c.sendRaw(`{"type":"noop"}`)
		c.expectError(MsgUnknownAction)
	}

	c.sendRaw(`{"type":"noop"}`)
	c.expectError(MsgTooManyRequests)
}

func (s *CoordinatorSuite) TestMoveEventsArriveInCommitOrder() {
	stalling := newStallingMetrics()
	s.TearDownTest()
	s.setup(DefaultConfig(), stalling)
	defer close(stalling.release)

	p1 := s.connect(s.register("Alice"))
	p2 := s.connect(s.register("Bob"))
	s.startGame(p1, p2)

	// X's handler stalls after committing; O replies in the meantime
	p1.send(request.MakeMove("AB12XY", 0, 0))
	select {
	case <-stalling.parked:
	case <-time.After(eventTimeout):
		s.Require().FailNow("first move never committed")
	}
	p2.send(request.MakeMove("AB12XY", 1, 1))

	for _, c := range []*wsClient{p1, p2} {
		first := c.nextOfType(model.EventMoveMade)
		second := c.nextOfType(model.EventMoveMade)
		s.Equal("X", first["move"].(map[string]any)["player"])
		s.Equal("O", second["move"].(map[string]any)["player"])
	}
}

func (s *CoordinatorSuite) TestUnknownTypesShareOneMetricSeries() {
	reg := prometheus.NewRegistry()
	s.TearDownTest()
	s.setup(Config{}, metrics.NewCollector(reg))

	c := s.connect(s.register("Alice"))
	for i := 0; i < 50; i++ {
		c.sendRaw(fmt.Sprintf(`{"type":"junk-%d"}`, i))
		c.expectError(MsgUnknownAction)
	}
	s.random.QueueString("AB12XY")
	c.send(request.CreateRoom())
	c.nextOfType(model.EventRoomCreated)

	count, err := promtest.GatherAndCount(reg, "ttt_messages_received_total")
	s.Require().NoError(err)
	s.Equal(2, count, "one series for unknown types, one for create_room")
}

// ErrorMessage tests

func TestErrorMessage(t *testing.T) {
	cases := map[error]string{
		model.ErrRoomNotFound:          "Room not found",
		model.ErrRoomFull:              "Room is full",
		model.ErrAlreadyInRoom:         "Already in room",
		model.ErrNotInRoom:             "Not in room",
		model.ErrXPlaysFirst:           "X plays first",
		model.ErrOutOfTurn:             "Not your turn",
		model.ErrCellOccupied:          "Cell occupied",
		model.ErrInvalidCell:           "Invalid cell",
		model.ErrGameFinished:          "Game is already finished",
		model.ErrGameNotStarted:        "Game has not started",
		model.ErrRoomCodeExhausted:     MsgServerError,
		errors.New("connection reset"): MsgServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, ErrorMessage(err), err.Error())
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	assert.Equal(t, "abc", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer def")
	assert.Equal(t, "def", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic xyz")
	assert.Empty(t, TokenFromRequest(r))
}
