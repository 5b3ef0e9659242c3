package transport

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewMux wires the chat session endpoint and the room listing.
func NewMux(sessions *SessionHandler, rooms *RoomsHandler) *mux.Router {
	m := mux.NewRouter()
	m.Handle("/chat", sessions)
	m.Handle("/chatrooms", rooms).Methods(http.MethodGet)
	return m
}
