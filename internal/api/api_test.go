package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/tictactoe-go/internal/api"
	"github.com/mcoot/tictactoe-go/internal/api/apierr"
	"github.com/mcoot/tictactoe-go/internal/api/request"
	"github.com/mcoot/tictactoe-go/internal/api/response"
	"github.com/mcoot/tictactoe-go/internal/factory"
	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/testutil"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	app := factory.NewTestApp()
	t.Cleanup(func() { _ = app.Close() })

	router := api.NewRouter(api.RouterConfig{
		Logger:      testutil.NopLogger(),
		AuthService: app.AuthService,
		Rooms:       app.Rooms,
		Connections: app.Connections,
		Coordinator: app.Coordinator,
		Gatherer:    app.MetricsRegistry,
	})

	return &testServer{
		handler: router,
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp response.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Connections)
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)

	// Register
	registerBody := request.RegisterRequest{UserName: "alice", Email: "Alice@Example.com", Password: "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/players/register", registerBody, "")
	assert.Equal(t, http.StatusCreated, rr.Code)

	var registerResp response.AuthResponse
	err := json.Unmarshal(rr.Body.Bytes(), &registerResp)
	require.NoError(t, err)
	assert.Equal(t, "alice", registerResp.Player.UserName)
	assert.Equal(t, "alice@example.com", registerResp.Player.Email)
	assert.NotEmpty(t, registerResp.Token)

	// Login
	loginBody := request.LoginRequest{Email: "alice@example.com", Password: "secret123"}
	rr = ts.request(http.MethodPost, "/api/v1/players/login", loginBody, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var loginResp response.AuthResponse
	err = json.Unmarshal(rr.Body.Bytes(), &loginResp)
	require.NoError(t, err)
	assert.Equal(t, registerResp.Player.ID, loginResp.Player.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ts := newTestServer(t)

	registerPlayer(t, ts, "alice", "alice@example.com")

	body := request.RegisterRequest{UserName: "other", Email: "alice@example.com", Password: "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/players/register", body, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assertErrorCode(t, rr, apierr.CodeEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := map[string]request.RegisterRequest{
		"missing user name": {Email: "a@example.com", Password: "pw"},
		"invalid email":     {UserName: "a", Email: "nope", Password: "pw"},
		"missing password":  {UserName: "a", Email: "a@example.com"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/players/register", body, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assertErrorCode(t, rr, apierr.CodeInvalidRequest)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/players/register", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)

	registerPlayer(t, ts, "alice", "alice@example.com")

	body := request.LoginRequest{Email: "alice@example.com", Password: "wrong"}
	rr := ts.request(http.MethodPost, "/api/v1/players/login", body, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assertErrorCode(t, rr, apierr.CodeInvalidCredentials)
}

func TestGetMe(t *testing.T) {
	ts := newTestServer(t)

	auth := registerPlayer(t, ts, "bob", "bob@example.com")

	rr := ts.request(http.MethodGet, "/api/v1/players/me", nil, auth.Token)
	assert.Equal(t, http.StatusOK, rr.Code)

	var meResp response.Player
	err := json.Unmarshal(rr.Body.Bytes(), &meResp)
	require.NoError(t, err)
	assert.Equal(t, "bob", meResp.UserName)
	assert.Equal(t, 0, meResp.GamesWon)
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/players/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/rooms/AB12XY", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/players/me", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assertErrorCode(t, rr, apierr.CodeUnauthorized)
}

func TestGetRoom(t *testing.T) {
	ts := newTestServer(t)

	alice := registerPlayer(t, ts, "alice", "alice@example.com")
	bob := registerPlayer(t, ts, "bob", "bob@example.com")
	carol := registerPlayer(t, ts, "carol", "carol@example.com")

	ts.app.MockRandom.QueueString("AB12XY")
	host := playerFromAuth(alice)
	rm, err := ts.app.Rooms.CreateRoom(t.Context(), host)
	require.NoError(t, err)
	_, err = ts.app.Rooms.JoinRoom(t.Context(), playerFromAuth(bob), rm.Code, nil)
	require.NoError(t, err)
	_, err = ts.app.Rooms.MakeMove(t.Context(), host.ID, rm.Code, model.Position{Row: 1, Col: 1}, nil)
	require.NoError(t, err)

	// Seated players see the snapshot; codes are case-insensitive
	rr := ts.request(http.MethodGet, "/api/v1/rooms/ab12xy", nil, bob.Token)
	require.Equal(t, http.StatusOK, rr.Code)

	var snapshot response.Room
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snapshot))
	assert.Equal(t, "AB12XY", snapshot.RoomID)
	assert.Equal(t, "in_progress", snapshot.Status)
	assert.Nil(t, snapshot.Winner)
	require.Len(t, snapshot.Players, 2)
	assert.Equal(t, "X", snapshot.Players[0].Symbol)
	require.NotNil(t, snapshot.Board[1][1])
	assert.Equal(t, "X", *snapshot.Board[1][1])
	assert.Nil(t, snapshot.Board[0][0])
	assert.Len(t, snapshot.Moves, 1)

	// Others are refused
	rr = ts.request(http.MethodGet, "/api/v1/rooms/AB12XY", nil, carol.Token)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assertErrorCode(t, rr, apierr.CodeNotInRoom)

	rr = ts.request(http.MethodGet, "/api/v1/rooms/ZZZZZZ", nil, alice.Token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assertErrorCode(t, rr, apierr.CodeRoomNotFound)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	alice := registerPlayer(t, ts, "alice", "alice@example.com")
	ts.app.MockRandom.QueueString("MET123")
	_, err := ts.app.Rooms.CreateRoom(t.Context(), playerFromAuth(alice))
	require.NoError(t, err)

	rr := ts.request(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ttt_rooms_created_total 1")
}

func TestWebsocketThroughRouter(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	alice := registerPlayer(t, ts, "alice", "alice@example.com")
	ts.app.MockRandom.QueueString("WS1234")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + alice.Token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var connected response.ConnectionEvent
	require.NoError(t, conn.ReadJSON(&connected))
	assert.Equal(t, model.EventConnection, connected.Type)

	require.NoError(t, conn.WriteJSON(request.CreateRoom()))

	var created response.RoomCreatedEvent
	require.NoError(t, conn.ReadJSON(&created))
	assert.Equal(t, model.EventRoomCreated, created.Type)
	assert.Equal(t, "WS1234", created.Room.RoomID)
	assert.Equal(t, "X", created.Symbol)

	// The live connection is visible to the health endpoint
	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	var health response.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &health))
	assert.Equal(t, 1, health.Connections)

	// And the room to the REST snapshot
	rr = ts.request(http.MethodGet, "/api/v1/rooms/WS1234", nil, alice.Token)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// Helper functions

func registerPlayer(t *testing.T, ts *testServer, userName, email string) response.AuthResponse {
	t.Helper()

	body := request.RegisterRequest{UserName: userName, Email: email, Password: "secret123"}
	rr := ts.request(http.MethodPost, "/api/v1/players/register", body, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp response.AuthResponse
	err := json.Unmarshal(rr.Body.Bytes(), &resp)
	require.NoError(t, err)

	return resp
}

func playerFromAuth(a response.AuthResponse) model.Player {
	return model.Player{
		ID:          model.PlayerID(a.Player.ID),
		DisplayName: a.Player.UserName,
		Email:       a.Player.Email,
	}
}

func assertErrorCode(t *testing.T, rr *httptest.ResponseRecorder, code string) {
	t.Helper()

	var resp apierr.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, code, resp.Error.Code)
}
