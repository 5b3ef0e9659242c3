package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-router/domain/event"
)

type fakeEventLog struct {
	rooms []string
	err   error
}

func (f *fakeEventLog) Append(string, event.ChatRoomEvent) (uint64, error) {
	return 0, fmt.Errorf("not implemented")
}

func (f *fakeEventLog) ReadSince(string, uint64) ([]event.ChatRoomEvent, uint64, error) {
	return nil, 0, fmt.Errorf("not implemented")
}

func (f *fakeEventLog) Rooms() ([]string, error) { return f.rooms, f.err }

type liveRouter struct {
	fakeRouter
	rooms []string
}

func (r *liveRouter) LiveRooms() []string { return r.rooms }

func TestRoomsHandler_MergesLiveAndDurableRooms(t *testing.T) {
	req := require.New(t)
	handler := NewRoomsHandler(
		&liveRouter{rooms: []string{"lobby", "games"}},
		&fakeEventLog{rooms: []string{"games", "archive"}},
		testLogger(),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chatrooms", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("application/json", rec.Header().Get("Content-Type"))

	var listings []roomListing
	req.NoError(json.NewDecoder(rec.Body).Decode(&listings))
	req.Equal([]roomListing{{Name: "archive"}, {Name: "games"}, {Name: "lobby"}}, listings)
}

func TestRoomsHandler_EmptyStoreYieldsEmptyList(t *testing.T) {
	req := require.New(t)
	handler := NewRoomsHandler(&liveRouter{}, &fakeEventLog{}, testLogger())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chatrooms", nil))

	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq("[]", rec.Body.String())
}

func TestRoomsHandler_StoreFailureIsAnInternalError(t *testing.T) {
	req := require.New(t)
	handler := NewRoomsHandler(
		&liveRouter{},
		&fakeEventLog{err: fmt.Errorf("disk gone")},
		testLogger(),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chatrooms", nil))

	req.Equal(http.StatusInternalServerError, rec.Code)
}
