package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/samber/lo"

	"chat-router/contract"
)

type roomListing struct {
	Name string `json:"name"`
}

// RoomsHandler lists every known chat room: the ones live in the
// router plus the ones only present in the durable log.
type RoomsHandler struct {
	log    *slog.Logger
	router contract.IRouter
	events contract.EventLog
}

func NewRoomsHandler(router contract.IRouter, events contract.EventLog, log *slog.Logger) *RoomsHandler {
	return &RoomsHandler{log: log, router: router, events: events}
}

func (h *RoomsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	durable, err := h.events.Rooms()
	if err != nil {
		h.log.Error("listing rooms failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	names := lo.Uniq(append(h.router.LiveRooms(), durable...))
	sort.Strings(names)
	listings := lo.Map(names, func(name string, _ int) roomListing {
		return roomListing{Name: name}
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(listings); err != nil {
		h.log.Error("encoding room listing failed", "error", err)
	}
}
