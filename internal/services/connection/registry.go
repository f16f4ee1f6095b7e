package connection

import (
	"log/slog"
	"sync"

	"github.com/mcoot/tictactoe-go/internal/model"
)

// Handle is a live connection able to receive outbound messages
type Handle interface {
	// ID uniquely identifies this connection (not the player)
	ID() string
	// Send queues msg for delivery, returning false if the connection
	// is closed or its buffer is full
	Send(msg []byte) bool
	// Close terminates the connection
	Close()
}

// Registry maps each player to their single live connection
type Registry struct {
	mu      sync.RWMutex
	handles map[model.PlayerID]Handle
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handles: make(map[model.PlayerID]Handle),
		logger:  logger.With(slog.String("component", "connection_registry")),
	}
}

// Register binds h to the player, returning the handle it replaced, if any.
// The caller decides what to do with the previous handle.
func (r *Registry) Register(id model.PlayerID, h Handle) Handle {
	r.mu.Lock()
	previous := r.handles[id]
	r.handles[id] = h
	r.mu.Unlock()

	r.logger.Debug("connection registered",
		slog.String("player_id", string(id)),
		slog.String("connection_id", h.ID()),
	)
	return previous
}

// Unregister removes the player's binding only if it still points at h.
// A late close from an evicted connection leaves its replacement in place.
func (r *Registry) Unregister(id model.PlayerID, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.handles[id]
	if !ok || current != h {
		return false
	}
	delete(r.handles, id)

	r.logger.Debug("connection unregistered",
		slog.String("player_id", string(id)),
		slog.String("connection_id", h.ID()),
	)
	return true
}

// Get returns the player's current handle
func (r *Registry) Get(id model.PlayerID) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Send delivers msg to the player's connection. Absent players are not an error.
// A connection that cannot take msg is closed so its client reconnects rather
// than carrying on with a gap in its event stream.
func (r *Registry) Send(id model.PlayerID, msg []byte) bool {
	h, ok := r.Get(id)
	if !ok {
		return false
	}
	if !h.Send(msg) {
		r.logger.Warn("closing connection that could not take message",
			slog.String("player_id", string(id)),
			slog.String("connection_id", h.ID()),
		)
		h.Close()
		return false
	}
	return true
}

// Broadcast delivers msg to each player independently and returns how many received it
func (r *Registry) Broadcast(ids []model.PlayerID, msg []byte) int {
	delivered := 0
	for _, id := range ids {
		if r.Send(id, msg) {
			delivered++
		}
	}
	return delivered
}

// CloseAll closes and removes every registered connection, returning how many there were
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[model.PlayerID]Handle)
	r.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
	return len(handles)
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
