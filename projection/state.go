// Package projection derives room state from observed events.
// The transition function is pure: no I/O, no side effects.
package projection

import (
	"fmt"
	"sort"

	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/errors"
)

// LogEntry is one position in a room's chat log.
type LogEntry struct {
	ID      domain.EventID
	Message domain.ChatMessage
}

// RoomState is the durable view of one room: the member set plus the
// chat log ordered by EventID. The log is append-only under that
// order; entries are never removed or reordered. Note that EventID
// order (timestamp, then userId) can differ from the order events were
// persisted in when near-simultaneous messages carry skewed
// timestamps; replay always follows EventID order.
type RoomState struct {
	roomID  string
	members map[string]struct{}
	chatLog []LogEntry
}

func NewRoomState(roomID string) *RoomState {
	return &RoomState{
		roomID:  roomID,
		members: make(map[string]struct{}),
	}
}

// Restore rebuilds a state from snapshot data. Entries are re-inserted
// through the same path as live events so ordering stays canonical.
func Restore(roomID string, members []string, chatLog []domain.ChatMessage) *RoomState {
	s := NewRoomState(roomID)
	for _, m := range members {
		s.members[m] = struct{}{}
	}
	for _, msg := range chatLog {
		s.insert(msg)
	}
	return s
}

// Apply computes the next state from one event. An unknown variant is
// a corrupted or version-skewed log and must not be silently ignored.
func (s *RoomState) Apply(evt event.ChatRoomEvent) error {
	switch e := evt.(type) {
	case event.MemberJoined:
		s.members[e.Message.UserID] = struct{}{}
		s.insert(e.Message)
	case event.MemberLeft:
		delete(s.members, e.Message.UserID)
		s.insert(e.Message)
	case event.MessageAdded:
		s.insert(e.Message)
	default:
		return fmt.Errorf("%w: %T", errors.ErrUnknownEvent, evt)
	}
	return nil
}

// insert places the message at its EventID position. An exact EventID
// collision overwrites in place, keeping the id a proper map key.
func (s *RoomState) insert(m domain.ChatMessage) {
	id := domain.EventIDOf(m)
	i := sort.Search(len(s.chatLog), func(i int) bool {
		return !s.chatLog[i].ID.Less(id)
	})
	if i < len(s.chatLog) && s.chatLog[i].ID == id {
		s.chatLog[i].Message = m
		return
	}
	s.chatLog = append(s.chatLog, LogEntry{})
	copy(s.chatLog[i+1:], s.chatLog[i:])
	s.chatLog[i] = LogEntry{ID: id, Message: m}
}

func (s *RoomState) RoomID() string { return s.roomID }

func (s *RoomState) Member(userID string) bool {
	_, ok := s.members[userID]
	return ok
}

// Members returns the current member set, sorted for determinism.
func (s *RoomState) Members() []string {
	out := make([]string, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s *RoomState) Len() int { return len(s.chatLog) }

// Log returns a copy of the chat log in EventID order.
func (s *RoomState) Log() []LogEntry {
	out := make([]LogEntry, len(s.chatLog))
	copy(out, s.chatLog)
	return out
}

// Tail returns the entries strictly after the given cursor, in EventID
// order. A nil cursor returns the whole log.
func (s *RoomState) Tail(after *domain.EventID) []LogEntry {
	if after == nil {
		return s.Log()
	}
	i := sort.Search(len(s.chatLog), func(i int) bool {
		return after.Less(s.chatLog[i].ID)
	})
	out := make([]LogEntry, len(s.chatLog)-i)
	copy(out, s.chatLog[i:])
	return out
}
