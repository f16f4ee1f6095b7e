// Package metrics collects and exposes Prometheus metrics for the game server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface used by services and the session layer
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	ConnectionEvicted()
	HandshakeRejected(reason string)
	MessageReceived(eventType string)
	MessageRejected(reason string)
	RoomCreated()
	RoomJoined()
	MoveApplied()
	GameFinished(winner string)
	WinCountFailed()
}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	evictions         prometheus.Counter
	handshakeRejected *prometheus.CounterVec
	messages          *prometheus.CounterVec
	messagesRejected  *prometheus.CounterVec
	roomsCreated      prometheus.Counter
	roomsJoined       prometheus.Counter
	moves             prometheus.Counter
	gamesFinished     *prometheus.CounterVec
	winCountFailures  prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ttt_active_connections",
			Help: "Number of authenticated websocket connections",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_connections_total",
			Help: "Total authenticated websocket connections",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_connection_evictions_total",
			Help: "Connections replaced by a newer connection for the same player",
		}),
		handshakeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttt_handshake_rejected_total",
			Help: "Websocket handshakes rejected, by reason",
		}, []string{"reason"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttt_messages_received_total",
			Help: "Inbound messages, by event type",
		}, []string{"type"}),
		messagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttt_messages_rejected_total",
			Help: "Inbound messages answered with an error, by reason",
		}, []string{"reason"}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_rooms_created_total",
			Help: "Rooms created",
		}),
		roomsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_rooms_joined_total",
			Help: "Rooms that reached two players",
		}),
		moves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_moves_total",
			Help: "Moves applied",
		}),
		gamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttt_games_finished_total",
			Help: "Finished games, by winner",
		}, []string{"winner"}),
		winCountFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ttt_win_count_failures_total",
			Help: "Win counter increments that failed after a game was won",
		}),
	}

	reg.MustRegister(
		c.activeConnections,
		c.connectionsTotal,
		c.evictions,
		c.handshakeRejected,
		c.messages,
		c.messagesRejected,
		c.roomsCreated,
		c.roomsJoined,
		c.moves,
		c.gamesFinished,
		c.winCountFailures,
	)

	return c
}

// Ensure Collector implements Recorder
var _ Recorder = (*Collector)(nil)

func (c *Collector) ConnectionOpened() {
	c.activeConnections.Inc()
	c.connectionsTotal.Inc()
}

func (c *Collector) ConnectionClosed() {
	c.activeConnections.Dec()
}

func (c *Collector) ConnectionEvicted() {
	c.evictions.Inc()
}

func (c *Collector) HandshakeRejected(reason string) {
	c.handshakeRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) MessageReceived(eventType string) {
	c.messages.WithLabelValues(eventType).Inc()
}

func (c *Collector) MessageRejected(reason string) {
	c.messagesRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) RoomCreated() {
	c.roomsCreated.Inc()
}

func (c *Collector) RoomJoined() {
	c.roomsJoined.Inc()
}

func (c *Collector) MoveApplied() {
	c.moves.Inc()
}

func (c *Collector) GameFinished(winner string) {
	c.gamesFinished.WithLabelValues(winner).Inc()
}

func (c *Collector) WinCountFailed() {
	c.winCountFailures.Inc()
}

// Nop discards all metrics
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) ConnectionOpened()        {}
func (Nop) ConnectionClosed()        {}
func (Nop) ConnectionEvicted()       {}
func (Nop) HandshakeRejected(string) {}
func (Nop) MessageReceived(string)   {}
func (Nop) MessageRejected(string)   {}
func (Nop) RoomCreated()             {}
func (Nop) RoomJoined()              {}
func (Nop) MoveApplied()             {}
func (Nop) GameFinished(string)      {}
func (Nop) WinCountFailed()          {}

// Handler returns an HTTP handler serving the registry in the Prometheus exposition format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
