package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to every published subject
const DefaultSubjectPrefix = "ttt.rooms"

// Conn is the subset of *nats.Conn used by NATSPublisher
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes room events as JSON on core NATS subjects
// of the form <prefix>.<transition>, e.g. ttt.rooms.finished.
type NATSPublisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// ConnectNATS dials the NATS server at url and returns a publisher over the connection
func ConnectNATS(url string, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With(slog.String("component", "nats"))

	conn, err := nats.Connect(url,
		nats.Name("tictactoe-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return NewNATSPublisher(conn, DefaultSubjectPrefix, logger), nil
}

// NewNATSPublisher wraps an existing connection
func NewNATSPublisher(conn Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + strings.TrimPrefix(string(t), "room.")
}

func (p *NATSPublisher) Publish(ctx context.Context, event RoomEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode room event: %w", err)
	}

	subject := p.Subject(event.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug("room event published",
		slog.String("subject", subject),
		slog.String("room", event.RoomCode),
	)
	return nil
}

// Close flushes pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
