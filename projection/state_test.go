package projection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/errors"
)

func message(timestamp int64, userID, text string) domain.ChatMessage {
	return domain.ChatMessage{Timestamp: timestamp, UserID: userID, RoomID: "r1", Text: text}
}

func TestRoomState_MembersReflectJoinLeaveBalance(t *testing.T) {
	req := require.New(t)
	state := NewRoomState("r1")

	// Given a join/post/join/leave history
	req.NoError(state.Apply(event.MemberJoined{Message: message(100, "alice", "[alice] joined chat")}))
	req.NoError(state.Apply(event.MessageAdded{Message: message(101, "alice", "hi")}))
	req.NoError(state.Apply(event.MemberJoined{Message: message(102, "bob", "[bob] joined chat")}))
	req.NoError(state.Apply(event.MemberLeft{Message: message(103, "alice", "[alice] left chat")}))

	// Then members hold the net balance and the log every event
	req.Equal([]string{"bob"}, state.Members())
	req.Equal(4, state.Len())
}

func TestRoomState_ChatLogOrdersByEventID(t *testing.T) {
	req := require.New(t)
	state := NewRoomState("r1")

	// Given messages persisted out of EventID order
	req.NoError(state.Apply(event.MessageAdded{Message: message(200, "bob", "second")}))
	req.NoError(state.Apply(event.MessageAdded{Message: message(200, "alice", "first")}))
	req.NoError(state.Apply(event.MessageAdded{Message: message(150, "carol", "earliest")}))

	// Then iteration follows (timestamp, userId), not insertion order
	entries := state.Log()
	req.Len(entries, 3)
	req.Equal("carol", entries[0].Message.UserID)
	req.Equal("alice", entries[1].Message.UserID)
	req.Equal("bob", entries[2].Message.UserID)
}

func TestRoomState_TailIsStrictlyAfterCursor(t *testing.T) {
	req := require.New(t)
	state := NewRoomState("r1")

	req.NoError(state.Apply(event.MemberJoined{Message: message(100, "alice", "[alice] joined chat")}))
	req.NoError(state.Apply(event.MessageAdded{Message: message(101, "alice", "hi")}))
	req.NoError(state.Apply(event.MemberJoined{Message: message(102, "bob", "[bob] joined chat")}))

	cursor := domain.EventID{Timestamp: 100, UserID: "alice"}
	tail := state.Tail(&cursor)
	req.Len(tail, 2)
	req.Equal("101/alice", tail[0].ID.String())
	req.Equal("102/bob", tail[1].ID.String())

	// a nil cursor replays everything
	req.Len(state.Tail(nil), 3)

	// a cursor past the end replays nothing
	end := domain.EventID{Timestamp: 999, UserID: "zed"}
	req.Empty(state.Tail(&end))
}

type bogusEvent struct{}

func (bogusEvent) Room() string             { return "r1" }
func (bogusEvent) Chat() domain.ChatMessage { return domain.ChatMessage{} }

func TestRoomState_UnknownEventVariantIsFatal(t *testing.T) {
	req := require.New(t)
	state := NewRoomState("r1")

	err := state.Apply(bogusEvent{})
	req.ErrorIs(err, errors.ErrUnknownEvent)
}

func TestRestore_EqualsReplayFromEmpty(t *testing.T) {
	req := require.New(t)

	events := []event.ChatRoomEvent{
		event.MemberJoined{Message: message(100, "alice", "[alice] joined chat")},
		event.MessageAdded{Message: message(101, "alice", "hi")},
		event.MemberJoined{Message: message(101, "bob", "[bob] joined chat")},
		event.MemberLeft{Message: message(102, "alice", "[alice] left chat")},
	}

	replayed := NewRoomState("r1")
	for _, evt := range events {
		req.NoError(replayed.Apply(evt))
	}

	restored := Restore("r1", replayed.Members(), messagesOf(replayed))

	req.Equal(replayed.Members(), restored.Members())
	req.Equal(replayed.Log(), restored.Log())
}

func messagesOf(s *RoomState) []domain.ChatMessage {
	var out []domain.ChatMessage
	for _, entry := range s.Log() {
		out = append(out, entry.Message)
	}
	return out
}
