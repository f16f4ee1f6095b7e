// Package events publishes room lifecycle events to external subscribers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/mcoot/tictactoe-go/internal/model"
)

// Type identifies a room lifecycle transition
type Type string

const (
	TypeRoomCreated  Type = "room.created"
	TypeRoomJoined   Type = "room.joined"
	TypeRoomFinished Type = "room.finished"
)

// RoomEvent describes a room after a lifecycle transition
type RoomEvent struct {
	Type       Type      `json:"type"`
	RoomCode   string    `json:"room_code"`
	Players    []string  `json:"players"`
	Status     string    `json:"status"`
	Winner     string    `json:"winner,omitempty"`
	Moves      int       `json:"moves"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewRoomEvent builds an event from the room's current state
func NewRoomEvent(t Type, room *model.Room, at time.Time) RoomEvent {
	players := make([]string, 0, len(room.Seats))
	for _, id := range room.Participants() {
		players = append(players, string(id))
	}
	return RoomEvent{
		Type:       t,
		RoomCode:   string(room.Code),
		Players:    players,
		Status:     string(room.Status),
		Winner:     string(room.Winner),
		Moves:      len(room.Moves),
		OccurredAt: at,
	}
}

// Publisher delivers room events. Delivery is best effort: callers log
// failures but never roll back the state change that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event RoomEvent) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, RoomEvent) error { return nil }
func (NopPublisher) Close() error                             { return nil }

// MemoryPublisher records events in process
type MemoryPublisher struct {
	mu     sync.Mutex
	events []RoomEvent
}

var _ Publisher = (*MemoryPublisher)(nil)

// NewMemoryPublisher creates an empty MemoryPublisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, event RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of all recorded events in publish order
func (p *MemoryPublisher) Events() []RoomEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RoomEvent(nil), p.events...)
}

// Types returns the type of each recorded event in publish order
func (p *MemoryPublisher) Types() []Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]Type, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}
