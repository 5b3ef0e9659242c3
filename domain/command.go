package domain

// Command is anything routable to a room entity. Room is the routing
// key: for message posts it comes from the session, not from message
// content, so a client cannot post into a room it is not addressed to.
type Command interface {
	Room() string
}

type JoinChat struct {
	Timestamp int64
	Session   SessionInfo
	Listener  Sink
}

func (c JoinChat) Room() string { return c.Session.RoomID }

// RejoinChat re-establishes connectivity for a known user. It never
// generates or persists an event; missed messages are replayed from
// the session's last cursor.
type RejoinChat struct {
	Timestamp int64
	Session   SessionInfo
	Listener  Sink
}

func (c RejoinChat) Room() string { return c.Session.RoomID }

type LeaveChat struct {
	Timestamp int64
	Session   SessionInfo
}

func (c LeaveChat) Room() string { return c.Session.RoomID }

type AddMessage struct {
	Message ChatMessage
	Session SessionInfo
}

func (c AddMessage) Room() string { return c.Session.RoomID }

// StopSession is internal-only cleanup after a publish failure. It is
// never accepted from external callers and persists nothing.
type StopSession struct {
	RoomID    string
	SessionID string
}

func (c StopSession) Room() string { return c.RoomID }

// Committed acknowledges that a command was durably applied.
// LastEventID carries the cursor of the event the command produced,
// empty for commands that persist nothing.
type Committed struct {
	LastEventID string
}
