// Package domain contains core concepts of the chat system.
// This file defines chat messages and the keys that order them.
// Messages are immutable once built.
package domain

import (
	"fmt"
	"strconv"
	"strings"

	"chat-router/errors"
)

// ChatMessage is an immutable chat event as seen by clients.
// Timestamp is the logical send time, assigned by the sender.
type ChatMessage struct {
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"userId"`
	RoomID    string `json:"roomId"`
	Text      string `json:"text"`
}

// EventID orders a room's chat log: primary by timestamp, ties broken
// lexicographically by user id. It doubles as the replay cursor handed
// to clients, serialized as "<timestamp>/<userId>".
type EventID struct {
	Timestamp int64
	UserID    string
}

func EventIDOf(m ChatMessage) EventID {
	return EventID{Timestamp: m.Timestamp, UserID: m.UserID}
}

func (id EventID) String() string {
	return strconv.FormatInt(id.Timestamp, 10) + "/" + id.UserID
}

func (id EventID) Less(other EventID) bool {
	if id.Timestamp != other.Timestamp {
		return id.Timestamp < other.Timestamp
	}
	return id.UserID < other.UserID
}

// ParseEventID parses a "<timestamp>/<userId>" cursor string.
// A cursor a client cannot have produced is an error, never defaulted.
func ParseEventID(raw string) (EventID, error) {
	idx := strings.Index(raw, "/")
	if idx <= 0 || idx == len(raw)-1 {
		return EventID{}, fmt.Errorf("%w: %q", errors.ErrBadEventID, raw)
	}
	timestamp, err := strconv.ParseInt(raw[:idx], 10, 64)
	if err != nil {
		return EventID{}, fmt.Errorf("%w: %q", errors.ErrBadEventID, raw)
	}
	return EventID{Timestamp: timestamp, UserID: raw[idx+1:]}, nil
}

// Envelope is what a connected session receives: the message plus the
// cursor to resume from should the connection drop.
type Envelope struct {
	Message     ChatMessage `json:"message"`
	LastEventID string      `json:"lastEventId"`
}
