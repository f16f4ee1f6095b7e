package request

import "github.com/mcoot/tictactoe-go/internal/model"

// Message is an inbound websocket frame. Only the fields relevant to Type are set.
type Message struct {
	Type   model.EventType `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	Row    *int            `json:"row,omitempty"`
	Col    *int            `json:"col,omitempty"`
}

// CreateRoom builds a create_room message
func CreateRoom() Message {
	return Message{Type: model.EventCreateRoom}
}

// JoinRoom builds a join_room message
func JoinRoom(roomID string) Message {
	return Message{Type: model.EventJoinRoom, RoomID: roomID}
}

// MakeMove builds a make_move message
func MakeMove(roomID string, row, col int) Message {
	return Message{Type: model.EventMakeMove, RoomID: roomID, Row: &row, Col: &col}
}
