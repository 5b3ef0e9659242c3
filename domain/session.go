package domain

// SessionInfo identifies one physical connection attempt. It is built
// once by the transport layer and immutable afterwards. SessionID is
// connection-scoped and never persisted.
type SessionInfo struct {
	SessionID   string
	UserID      string
	RoomID      string
	LastEventID *EventID
	IsRejoin    bool
}

// Sink is the capability a room entity holds to reach one connected
// client. The transport owns the connection; the entity only ever
// pushes messages and signals end-of-stream.
type Sink interface {
	Push(Envelope) error
	Close() error
}
