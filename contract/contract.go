//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/projection"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself; supervision is the supervisor's job.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the
// worker, for logging and supervision purposes.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventLog is the append-only durable history of a room. Versions are
// per-room, contiguous, and assigned by Append in storage order.
type EventLog interface {
	Append(roomID string, evt event.ChatRoomEvent) (uint64, error)
	ReadSince(roomID string, afterVersion uint64) ([]event.ChatRoomEvent, uint64, error)
	Rooms() ([]string, error)
}

// SnapshotStore persists state cuts as a recovery optimization.
// Losing a snapshot never loses data; the log remains authoritative.
type SnapshotStore interface {
	Save(roomID string, version uint64, state *projection.RoomState) error
	Latest(roomID string) (*projection.RoomState, uint64, error)
}

// IRouter is the uniform way the transport layer talks to room
// entities without knowing their location.
type IRouter interface {
	Ask(ctx context.Context, cmd domain.Command) (domain.Committed, error)
	LiveRooms() []string
}

// MailboxStat is a point-in-time sample of one live entity's inbox.
type MailboxStat struct {
	Room     string
	Depth    int
	Capacity int
	Sessions int
}
