package repositories

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-router/domain"
	"chat-router/domain/event"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chatMessage(timestamp int64, userID, roomID, text string) domain.ChatMessage {
	return domain.ChatMessage{Timestamp: timestamp, UserID: userID, RoomID: roomID, Text: text}
}

func TestEventStore_AppendAssignsContiguousVersions(t *testing.T) {
	req := require.New(t)
	store := NewEventStore(newTestDB(t), testLogger())

	v1, err := store.Append("r1", event.MemberJoined{Message: chatMessage(100, "alice", "r1", "[alice] joined chat")})
	req.NoError(err)
	v2, err := store.Append("r1", event.MessageAdded{Message: chatMessage(101, "alice", "r1", "hi")})
	req.NoError(err)

	// versions are per room
	other, err := store.Append("r2", event.MemberJoined{Message: chatMessage(100, "bob", "r2", "[bob] joined chat")})
	req.NoError(err)

	req.Equal(uint64(1), v1)
	req.Equal(uint64(2), v2)
	req.Equal(uint64(1), other)
}

func TestEventStore_ReadSinceReturnsStorageOrderTail(t *testing.T) {
	req := require.New(t)
	store := NewEventStore(newTestDB(t), testLogger())

	// Given three events persisted in this exact order
	appended := []event.ChatRoomEvent{
		event.MemberJoined{Message: chatMessage(100, "alice", "r1", "[alice] joined chat")},
		event.MessageAdded{Message: chatMessage(200, "bob", "r1", "late clock")},
		event.MessageAdded{Message: chatMessage(150, "alice", "r1", "early clock")},
	}
	for _, evt := range appended {
		_, err := store.Append("r1", evt)
		req.NoError(err)
	}

	// When reading from the beginning
	events, last, err := store.ReadSince("r1", 0)
	req.NoError(err)

	// Then storage order is preserved, even where EventID order differs
	req.Equal(appended, events)
	req.Equal(uint64(3), last)

	// And a mid-log cursor yields only the tail
	tail, last, err := store.ReadSince("r1", 2)
	req.NoError(err)
	req.Equal(appended[2:], tail)
	req.Equal(uint64(3), last)

	// And reading past the end echoes the given version back
	empty, last, err := store.ReadSince("r1", 3)
	req.NoError(err)
	req.Empty(empty)
	req.Equal(uint64(3), last)
}

func TestEventStore_ReadSinceUnknownRoomIsEmpty(t *testing.T) {
	req := require.New(t)
	store := NewEventStore(newTestDB(t), testLogger())

	events, last, err := store.ReadSince("ghost", 0)
	req.NoError(err)
	req.Empty(events)
	req.Equal(uint64(0), last)
}

func TestEventStore_RoomsListsEveryPersistedRoom(t *testing.T) {
	req := require.New(t)
	store := NewEventStore(newTestDB(t), testLogger())

	for _, room := range []string{"alpha", "beta"} {
		_, err := store.Append(room, event.MemberJoined{Message: chatMessage(100, "alice", room, "[alice] joined chat")})
		req.NoError(err)
	}

	rooms, err := store.Rooms()
	req.NoError(err)
	req.ElementsMatch([]string{"alpha", "beta"}, rooms)
}
