package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/services/connection"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size
	maxMessageSize = 4096

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// client is one authenticated websocket connection
type client struct {
	id       string
	playerID model.PlayerID
	conn     *websocket.Conn
	send     chan []byte
	limiter  *rate.Limiter // nil when unlimited
	logger   *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// Ensure client implements connection.Handle
var _ connection.Handle = (*client)(nil)

func newClient(id string, playerID model.PlayerID, conn *websocket.Conn, limiter *rate.Limiter, logger *slog.Logger) *client {
	return &client{
		id:       id,
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		limiter:  limiter,
		logger: logger.With(
			slog.String("connection_id", id),
			slog.String("player_id", string(playerID)),
		),
		done: make(chan struct{}),
	}
}

func (c *client) ID() string {
	return c.id
}

// Send queues msg without blocking
func (c *client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump after it flushes already queued messages
func (c *client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// allow reports whether another inbound message may be processed
func (c *client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// writePump is the only goroutine writing to the connection
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued
func (c *client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// readPump delivers every inbound frame to handle until the connection fails
func (c *client) readPump(handle func(data []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
		handle(data)
	}
}
