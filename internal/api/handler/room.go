package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mcoot/tictactoe-go/internal/api/middleware"
	"github.com/mcoot/tictactoe-go/internal/api/response"
	"github.com/mcoot/tictactoe-go/internal/model"
	"github.com/mcoot/tictactoe-go/internal/services/room"
)

// RoomHandler serves read-only room snapshots
type RoomHandler struct {
	rooms *room.Registry
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms *room.Registry) *RoomHandler {
	return &RoomHandler{
		rooms: rooms,
	}
}

// Get handles GET /api/v1/rooms/{code}. Only seated players may view a room.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	player := middleware.MustGetPlayer(r.Context())
	code := model.RoomCode(strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"])))

	rm, err := h.rooms.GetRoom(r.Context(), code)
	if err != nil {
		WriteError(w, err)
		return
	}
	if rm.SeatFor(player.ID) == nil {
		WriteError(w, model.ErrNotInRoom)
		return
	}

	response.JSON(w, http.StatusOK, response.RoomFromModel(rm))
}
