package runtime

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
)

var _ contract.IRouter = (*Router)(nil)

// Router gives every room id a deterministic home: roomID → shard →
// the single live entity for that room, created lazily on first
// command. Two live entities never own the same room id concurrently;
// eviction of an idle entity only loses its transient session
// registry, which is an expected failover condition.
type Router struct {
	log    *slog.Logger
	cfg    Config
	events contract.EventLog
	snaps  contract.SnapshotStore
	sup    contract.ISupervisor

	mu     sync.Mutex
	ctx    context.Context
	shards []map[string]*liveEntity
}

type liveEntity struct {
	entity *RoomEntity
	cancel context.CancelFunc
}

func NewRouter(events contract.EventLog, snaps contract.SnapshotStore, sup contract.ISupervisor, cfg Config, log *slog.Logger) *Router {
	shards := make([]map[string]*liveEntity, cfg.ShardCount)
	for i := range shards {
		shards[i] = make(map[string]*liveEntity)
	}
	return &Router{
		log:    log,
		cfg:    cfg,
		events: events,
		snaps:  snaps,
		sup:    sup,
		shards: shards,
	}
}

// Start binds the lifetime of all future entities to ctx. Must be
// called once before the first Ask.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
}

// ShardOf is pure and deterministic for a fixed shard count: the same
// room id always routes to the same shard.
func (r *Router) ShardOf(roomID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(r.cfg.ShardCount))
}

// Ask routes a command to the room's entity and waits for its
// Committed ack, bounded by the configured ask timeout. A timeout or
// error means the caller must tear the session down; reconnecting via
// RejoinChat with the last observed cursor is the recovery path.
func (r *Router) Ask(ctx context.Context, cmd domain.Command) (domain.Committed, error) {
	switch cmd.(type) {
	case domain.JoinChat, domain.RejoinChat, domain.LeaveChat, domain.AddMessage:
	default:
		// StopSession and anything unknown never routes from outside
		return domain.Committed{}, fmt.Errorf("%w: %T", errors.ErrUnroutable, cmd)
	}
	if cmd.Room() == "" {
		return domain.Committed{}, fmt.Errorf("%w: empty room id", errors.ErrUnroutable)
	}

	entity, err := r.entityFor(cmd.Room())
	if err != nil {
		return domain.Committed{}, err
	}

	askCtx, cancel := context.WithTimeout(ctx, r.cfg.AskTimeout)
	defer cancel()

	a := ask{cmd: cmd, reply: make(chan askReply, 1)}
	select {
	case entity.inbox <- a:
	case <-askCtx.Done():
		return domain.Committed{}, fmt.Errorf("%w: room %s", errors.ErrAskTimeout, cmd.Room())
	}

	select {
	case rep := <-a.reply:
		return rep.ack, rep.err
	case <-askCtx.Done():
		return domain.Committed{}, fmt.Errorf("%w: room %s", errors.ErrAskTimeout, cmd.Room())
	}
}

// entityFor resolves or lazily creates the live entity owning a room.
// New entities run under supervision so a panic restarts them from
// durable state.
func (r *Router) entityFor(roomID string) (*RoomEntity, error) {
	shard := r.ShardOf(roomID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return nil, fmt.Errorf("router not started")
	}

	if live, ok := r.shards[shard][roomID]; ok {
		live.entity.touch()
		return live.entity, nil
	}

	entity := NewRoomEntity(roomID, r.events, r.snaps, r.cfg, r.log)
	entityCtx, cancel := context.WithCancel(r.ctx)
	r.sup.Start(entityCtx, entity)
	r.shards[shard][roomID] = &liveEntity{entity: entity, cancel: cancel}
	r.log.Info("room entity started", "room", roomID, "shard", shard)
	return entity, nil
}

// LiveRooms lists the rooms with an in-memory entity right now.
func (r *Router) LiveRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rooms []string
	for _, shard := range r.shards {
		for roomID := range shard {
			rooms = append(rooms, roomID)
		}
	}
	return rooms
}

// PassivateIdle evicts entities idle for longer than the given
// duration and returns their room ids. Durable state is always
// recoverable from the event log; only transient sessions are lost.
func (r *Router) PassivateIdle(idleAfter time.Duration) []string {
	cutoff := time.Now().Add(-idleAfter)

	r.mu.Lock()
	defer r.mu.Unlock()
	var passivated []string
	for _, shard := range r.shards {
		for roomID, live := range shard {
			if live.entity.IdleSince().After(cutoff) {
				continue
			}
			live.cancel()
			delete(shard, roomID)
			passivated = append(passivated, roomID)
		}
	}
	return passivated
}

// MailboxStats samples every live entity's inbox for telemetry.
func (r *Router) MailboxStats() []contract.MailboxStat {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats []contract.MailboxStat
	for _, shard := range r.shards {
		for _, live := range shard {
			stats = append(stats, live.entity.Stat())
		}
	}
	return stats
}
