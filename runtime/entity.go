package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/errors"
	"chat-router/projection"
)

// Config carries the runtime knobs the core recognizes.
type Config struct {
	ShardCount     int
	MailboxSize    int
	OutBufferSize  int
	Overflow       OverflowPolicy
	AskTimeout     time.Duration
	PassivateAfter time.Duration
	SnapshotEvery  int
}

type ask struct {
	cmd   domain.Command
	reply chan askReply
}

type askReply struct {
	ack domain.Committed
	err error
}

var _ contract.Worker = (*RoomEntity)(nil)

// RoomEntity is the sequential command processor for one room. It
// exclusively owns its RoomState and session Registry; every mutation
// happens on the Run goroutine, one command at a time, so state
// transitions are atomic without locking.
//
// On a supervised restart after a panic, recovery rebuilds the state
// from the event log but the registry starts empty: sessions that were
// connected before the failure are orphaned and must rejoin.
type RoomEntity struct {
	roomID   string
	log      *slog.Logger
	events   contract.EventLog
	snaps    contract.SnapshotStore
	cfg      Config
	inbox    chan ask
	registry *Registry

	state         *projection.RoomState
	version       uint64
	sinceSnapshot int
	lastActive    atomic.Int64
}

func NewRoomEntity(roomID string, events contract.EventLog, snaps contract.SnapshotStore, cfg Config, log *slog.Logger) *RoomEntity {
	e := &RoomEntity{
		roomID:   roomID,
		log:      log.With("room", roomID),
		events:   events,
		snaps:    snaps,
		cfg:      cfg,
		inbox:    make(chan ask, cfg.MailboxSize),
		registry: NewRegistry(),
	}
	e.touch()
	return e
}

// Run recovers durable state and then drains the inbox one command at
// a time. Commands sent while the entity is still recovering simply
// wait in the mailbox; they are processed once recovery completes.
func (e *RoomEntity) Run(ctx context.Context) error {
	if err := e.recoverState(); err != nil {
		return fmt.Errorf("recovering room %s: %w", e.roomID, err)
	}
	e.log.Debug("room entity active", "members", len(e.state.Members()), "version", e.version)

	for {
		select {
		case <-ctx.Done():
			e.registry.CloseAll()
			return ctx.Err()
		case a, ok := <-e.inbox:
			if !ok {
				e.registry.CloseAll()
				return nil
			}
			e.touch()
			rep := e.handle(a.cmd)
			if a.reply != nil {
				a.reply <- rep
			}
		}
	}
}

// recoverState seeds state from the latest snapshot, if any, then
// applies every event persisted after it in storage order. Transient
// session state is deliberately dropped first.
func (e *RoomEntity) recoverState() error {
	e.registry.CloseAll()

	state, version, err := e.snaps.Latest(e.roomID)
	if err != nil {
		return err
	}
	if state == nil {
		state = projection.NewRoomState(e.roomID)
	}

	tail, last, err := e.events.ReadSince(e.roomID, version)
	if err != nil {
		return err
	}
	for _, evt := range tail {
		if err := state.Apply(evt); err != nil {
			return err
		}
	}

	e.state = state
	e.version = last
	e.sinceSnapshot = 0
	return nil
}

func (e *RoomEntity) handle(cmd domain.Command) askReply {
	switch c := cmd.(type) {
	case domain.JoinChat:
		return e.handleJoin(c)
	case domain.RejoinChat:
		return e.handleRejoin(c)
	case domain.LeaveChat:
		return e.handleLeave(c)
	case domain.AddMessage:
		return e.handleAdd(c)
	case domain.StopSession:
		e.stopSession(c.SessionID)
		return askReply{}
	default:
		return askReply{err: fmt.Errorf("%w: %T", errors.ErrUnroutable, cmd)}
	}
}

func (e *RoomEntity) handleJoin(c domain.JoinChat) askReply {
	msg := domain.ChatMessage{
		Timestamp: c.Timestamp,
		UserID:    c.Session.UserID,
		RoomID:    e.roomID,
		Text:      fmt.Sprintf("[%s] joined chat", c.Session.UserID),
	}
	if err := e.persistAndApply(event.MemberJoined{Message: msg}); err != nil {
		return askReply{err: err}
	}

	out := NewOutbound(c.Session.SessionID, c.Listener, e.cfg.OutBufferSize, e.cfg.Overflow, e.log)
	if err := e.registry.Register(c.Session.SessionID, out); err != nil {
		out.Close()
		return askReply{err: err}
	}

	e.broadcast(msg)
	return askReply{ack: domain.Committed{LastEventID: domain.EventIDOf(msg).String()}}
}

// handleRejoin is a connectivity concern, not a room-state change:
// nothing is persisted. Missed entries are replayed strictly after the
// session's cursor, before any newly broadcast message, so the
// client's local log stays gap-free.
func (e *RoomEntity) handleRejoin(c domain.RejoinChat) askReply {
	out := NewOutbound(c.Session.SessionID, c.Listener, e.cfg.OutBufferSize, e.cfg.Overflow, e.log)
	if err := e.registry.Register(c.Session.SessionID, out); err != nil {
		out.Close()
		return askReply{err: err}
	}

	for _, entry := range e.state.Tail(c.Session.LastEventID) {
		env := domain.Envelope{Message: entry.Message, LastEventID: entry.ID.String()}
		if !e.publishTo(c.Session.SessionID, out, env) {
			break
		}
	}
	return askReply{ack: domain.Committed{}}
}

func (e *RoomEntity) handleLeave(c domain.LeaveChat) askReply {
	msg := domain.ChatMessage{
		Timestamp: c.Timestamp,
		UserID:    c.Session.UserID,
		RoomID:    e.roomID,
		Text:      fmt.Sprintf("[%s] left chat", c.Session.UserID),
	}
	if err := e.persistAndApply(event.MemberLeft{Message: msg}); err != nil {
		return askReply{err: err}
	}

	if out := e.registry.Remove(c.Session.SessionID); out != nil {
		out.Close()
	}

	e.broadcast(msg)
	return askReply{ack: domain.Committed{LastEventID: domain.EventIDOf(msg).String()}}
}

func (e *RoomEntity) handleAdd(c domain.AddMessage) askReply {
	// the routing key decides the room, never the message content
	msg := c.Message
	msg.RoomID = e.roomID

	if err := e.persistAndApply(event.MessageAdded{Message: msg}); err != nil {
		return askReply{err: err}
	}

	e.broadcast(msg)
	return askReply{ack: domain.Committed{LastEventID: domain.EventIDOf(msg).String()}}
}

// persistAndApply durably appends the event and then folds it into the
// in-memory state. A persistence failure is fatal to the command: the
// caller never sees a late Committed.
func (e *RoomEntity) persistAndApply(evt event.ChatRoomEvent) error {
	version, err := e.events.Append(e.roomID, evt)
	if err != nil {
		return err
	}
	e.version = version

	if err := e.state.Apply(evt); err != nil {
		return err
	}
	e.maybeSnapshot()
	return nil
}

// maybeSnapshot cuts a snapshot every SnapshotEvery events. Purely an
// optimization; failures are logged, never surfaced.
func (e *RoomEntity) maybeSnapshot() {
	if e.cfg.SnapshotEvery <= 0 {
		return
	}
	e.sinceSnapshot++
	if e.sinceSnapshot < e.cfg.SnapshotEvery {
		return
	}
	if err := e.snaps.Save(e.roomID, e.version, e.state); err != nil {
		e.log.Warn("snapshot failed", "version", e.version, "error", err)
		return
	}
	e.sinceSnapshot = 0
}

// broadcast publishes to every registered session. A failure on one
// channel never affects delivery to the others; broken sessions are
// stopped once the pass completes.
func (e *RoomEntity) broadcast(msg domain.ChatMessage) {
	env := domain.Envelope{Message: msg, LastEventID: domain.EventIDOf(msg).String()}

	var broken []string
	for sessionID, out := range e.registry.Snapshot() {
		if err := out.Publish(env); err != nil {
			e.log.Warn("publish failed", "session", sessionID, "error", err)
			broken = append(broken, sessionID)
			continue
		}
		e.registry.SetCursor(sessionID, env.LastEventID)
	}
	for _, sessionID := range broken {
		e.stopSession(sessionID)
	}
}

func (e *RoomEntity) publishTo(sessionID string, out *Outbound, env domain.Envelope) bool {
	if err := out.Publish(env); err != nil {
		e.log.Warn("publish failed", "session", sessionID, "error", err)
		e.stopSession(sessionID)
		return false
	}
	e.registry.SetCursor(sessionID, env.LastEventID)
	return true
}

// stopSession is transient cleanup only: no event is generated or
// persisted.
func (e *RoomEntity) stopSession(sessionID string) {
	if out := e.registry.Remove(sessionID); out != nil {
		e.log.Info("terminating session", "session", sessionID)
		out.Close()
	}
}

func (e *RoomEntity) touch() {
	e.lastActive.Store(time.Now().UnixNano())
}

// IdleSince reports the last time the entity processed a command or
// was resolved by the router.
func (e *RoomEntity) IdleSince() time.Time {
	return time.Unix(0, e.lastActive.Load())
}

func (e *RoomEntity) RoomID() string { return e.roomID }

func (e *RoomEntity) Stat() contract.MailboxStat {
	return contract.MailboxStat{
		Room:     e.roomID,
		Depth:    len(e.inbox),
		Capacity: cap(e.inbox),
		Sessions: e.registry.Len(),
	}
}
