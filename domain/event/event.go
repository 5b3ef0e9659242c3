// Package event defines the closed set of durable room state changes.
// Events are the only unit of persisted state change; adding a variant
// here must be matched by the state transition in projection.
package event

import "chat-router/domain"

type ChatRoomEvent interface {
	Room() string
	Chat() domain.ChatMessage
}

type MemberJoined struct {
	Message domain.ChatMessage
}

func (e MemberJoined) Room() string             { return e.Message.RoomID }
func (e MemberJoined) Chat() domain.ChatMessage { return e.Message }

type MemberLeft struct {
	Message domain.ChatMessage
}

func (e MemberLeft) Room() string             { return e.Message.RoomID }
func (e MemberLeft) Chat() domain.ChatMessage { return e.Message }

type MessageAdded struct {
	Message domain.ChatMessage
}

func (e MessageAdded) Room() string             { return e.Message.RoomID }
func (e MessageAdded) Chat() domain.ChatMessage { return e.Message }
