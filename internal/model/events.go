package model

// EventType identifies a message exchanged over a player connection
type EventType string

const (
	// Client to server
	EventCreateRoom EventType = "create_room"
	EventJoinRoom   EventType = "join_room"
	EventMakeMove   EventType = "make_move"

	// Server to client
	EventConnection   EventType = "connection"
	EventRoomCreated  EventType = "room_created"
	EventPlayerJoined EventType = "player_joined"
	EventMoveMade     EventType = "move_made"
	EventError        EventType = "error"
)
