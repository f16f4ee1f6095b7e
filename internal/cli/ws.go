package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message type names exchanged over the websocket
const (
	TypeCreateRoom   = "create_room"
	TypeJoinRoom     = "join_room"
	TypeMakeMove     = "make_move"
	TypeConnection   = "connection"
	TypeRoomCreated  = "room_created"
	TypePlayerJoined = "player_joined"
	TypeMoveMade     = "move_made"
	TypeError        = "error"
)

// Event is a decoded server message. Raw keeps the original frame for JSON output.
type Event struct {
	Type       string          `json:"type"`
	Message    string          `json:"message,omitempty"`
	Room       *Room           `json:"room,omitempty"`
	Symbol     string          `json:"symbol,omitempty"`
	NextTurn   *string         `json:"nextTurn,omitempty"`
	Move       *Move           `json:"move,omitempty"`
	Board      *Board          `json:"board,omitempty"`
	Winner     *string         `json:"winner,omitempty"`
	RoomStatus string          `json:"roomStatus,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// outbound is a client message
type outbound struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	Row    *int   `json:"row,omitempty"`
	Col    *int   `json:"col,omitempty"`
}

// WSError is an error event sent by the server
type WSError struct {
	Message string
}

func (e *WSError) Error() string {
	return e.Message
}

// Conn is an authenticated websocket connection to the game server
type Conn struct {
	ws        *websocket.Conn
	events    chan Event
	errCh     chan error
	done      chan struct{}
	closeOnce sync.Once
}

// WebsocketURL converts an http(s) server URL into the ws(s) URL of the game endpoint
func WebsocketURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// Dial connects and waits for the server to accept the token
func Dial(ctx context.Context, serverURL, token string) (*Conn, error) {
	if token == "" {
		return nil, errors.New("not logged in: run 'player login' or pass --token")
	}

	wsURL, err := WebsocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	c := &Conn{
		ws:     ws,
		events: make(chan Event, 16),
		errCh:  make(chan error, 1),
		done:   make(chan struct{}),
	}
	go c.readLoop()

	evt, err := c.Next(ctx)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if evt.Type == TypeError {
		_ = c.Close()
		return nil, &WSError{Message: evt.Message}
	}
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.errCh <- err
			return
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		evt.Raw = data
		select {
		case c.events <- evt:
		case <-c.done:
			return
		}
	}
}

// Events returns the channel of incoming events; it closes when the connection ends
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Err returns the error that ended the read loop, if any
func (c *Conn) Err() error {
	select {
	case err := <-c.errCh:
		return err
	default:
		return nil
	}
}

// Next waits for the next event
func (c *Conn) Next(ctx context.Context) (Event, error) {
	select {
	case evt, ok := <-c.events:
		if !ok {
			if err := c.Err(); err != nil {
				return Event{}, fmt.Errorf("connection closed: %w", err)
			}
			return Event{}, errors.New("connection closed")
		}
		return evt, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Await waits for an event of the given type. Error events end the wait.
func (c *Conn) Await(ctx context.Context, eventType string) (Event, error) {
	for {
		evt, err := c.Next(ctx)
		if err != nil {
			return Event{}, err
		}
		switch evt.Type {
		case eventType:
			return evt, nil
		case TypeError:
			return Event{}, &WSError{Message: evt.Message}
		}
	}
}

// CreateRoom asks the server for a new room
func (c *Conn) CreateRoom() error {
	return c.send(outbound{Type: TypeCreateRoom})
}

// JoinRoom joins an existing room
func (c *Conn) JoinRoom(code string) error {
	return c.send(outbound{Type: TypeJoinRoom, RoomID: code})
}

// MakeMove plays a cell in a room
func (c *Conn) MakeMove(code string, row, col int) error {
	return c.send(outbound{Type: TypeMakeMove, RoomID: code, Row: &row, Col: &col})
}

func (c *Conn) send(msg outbound) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return c.ws.WriteJSON(msg)
}

// Close sends a close frame and closes the connection
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}
